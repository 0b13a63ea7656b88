package harness

import (
	"encoding/base64"
	"strings"
)

// Verdict markers are sentinel tokens the harness prints on their own
// line. Payloads are base64-encoded so arbitrary user output can neither
// forge a verdict by accident nor corrupt an embedded message.
const (
	markerSentinel = "__DSTEST__"
	markerPass     = markerSentinel + ":PASS"
	markerFail     = markerSentinel + ":FAIL:"
	markerError    = markerSentinel + ":ERROR:"
)

type verdict int

const (
	verdictNone verdict = iota
	verdictPass
	verdictFail
	verdictError
)

// scanMarkers finds the verdict markers in captured output. Fail and
// error markers win over a pass marker printed elsewhere; a forged bare
// sentinel inside a longer line is not a marker.
func scanMarkers(output string) (verdict, string) {
	foundPass := false
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, markerFail):
			return verdictFail, decodePayload(strings.TrimPrefix(line, markerFail))
		case strings.HasPrefix(line, markerError):
			return verdictError, decodePayload(strings.TrimPrefix(line, markerError))
		case line == markerPass:
			foundPass = true
		}
	}
	if foundPass {
		return verdictPass, ""
	}
	return verdictNone, ""
}

func decodePayload(raw string) string {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	return string(decoded)
}

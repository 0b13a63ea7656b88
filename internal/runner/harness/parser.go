package harness

import (
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/backend"
	appErr "github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/errors"
)

const noVerdictMessage = "no verdict produced"

// Parse classifies one executed unit into an outcome. Precedence:
// a timed-out or failed execution outranks anything printed, a fail or
// error marker outranks a pass marker, and a run that produced no
// marker at all is an error, never a silent pass.
func Parse(test TestDefinition, res *backend.Result, execErr error) TestOutcome {
	out := TestOutcome{ID: test.ID, Name: test.Name}
	if res != nil {
		out.Duration = res.Duration
	}

	if execErr != nil {
		if e, ok := execErr.(*appErr.Error); ok {
			switch e.Code {
			case appErr.ExecutionTimeout:
				out.Status = StatusTimedOut
				out.Message = "execution timed out"
				return out
			case appErr.ExecutionCanceled:
				out.Status = StatusErrored
				out.Message = "execution canceled"
				return out
			}
		}
		out.Status = StatusErrored
		out.Message = execErr.Error()
		return out
	}

	if res == nil {
		out.Status = StatusErrored
		out.Message = noVerdictMessage
		return out
	}

	v, payload := scanMarkers(res.Stdout)
	switch v {
	case verdictFail:
		out.Status = StatusFailed
		out.Message = payload
	case verdictError:
		out.Status = StatusErrored
		out.Message = payload
	case verdictPass:
		out.Status = StatusPassed
	default:
		out.Status = StatusErrored
		out.Message = noVerdictMessage
		if res.ErrorSummary != "" {
			out.Message = res.ErrorSummary
		}
	}
	return out
}

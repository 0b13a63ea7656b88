package harness

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/project"
	appErr "github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/errors"
)

const harnessFilePrefix = "__dstest_"

// Unit is one executable test: the user's project plus a synthesized
// harness file that became the entry point.
type Unit struct {
	Files      []project.File
	EntryPoint string
	Test       TestDefinition
}

// Build wraps a project and one test definition into an executable unit.
// The harness imports the user's entry module inside its own guard (an
// import failure becomes an error verdict, not a crashed run), executes
// the test body, and emits exactly one verdict marker.
func Build(files []project.File, entryPoint string, test TestDefinition) (Unit, error) {
	if test.ID == "" {
		return Unit{}, appErr.ValidationError("test_id", "required")
	}
	if strings.TrimSpace(test.Code) == "" {
		return Unit{}, appErr.New(appErr.HarnessBuildFailed).WithMessage("test code is empty")
	}
	if err := project.Validate(files, entryPoint); err != nil {
		return Unit{}, err
	}

	harnessPath := fmt.Sprintf("%s%s.py", harnessFilePrefix, sanitizeID(test.ID))
	if _, taken := project.Lookup(files, harnessPath); taken {
		return Unit{}, appErr.New(appErr.HarnessBuildFailed).WithDetail("path", harnessPath)
	}

	module := entryModule(entryPoint)
	source := renderHarness(module, test.Code)

	combined := make([]project.File, 0, len(files)+1)
	combined = append(combined, files...)
	combined = append(combined, project.File{Path: harnessPath, Content: source})

	return Unit{Files: combined, EntryPoint: harnessPath, Test: test}, nil
}

// entryModule turns "pkg/main.py" into the importable module "pkg.main".
func entryModule(entryPoint string) string {
	trimmed := strings.TrimSuffix(entryPoint, ".py")
	return strings.ReplaceAll(trimmed, "/", ".")
}

// sanitizeID keeps the harness filename a valid module path component.
func sanitizeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// renderHarness embeds the test body base64-encoded and runs it through
// compile/exec, so its source text (multi-line string literals included)
// reaches the interpreter byte for byte.
func renderHarness(module, testCode string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(testCode))
	var b strings.Builder
	b.WriteString("import base64\n")
	b.WriteString("import sys\n")
	b.WriteString("import traceback\n")
	b.WriteString("\n")
	b.WriteString("def __dstest_emit(verdict, payload=\"\"):\n")
	b.WriteString("    line = \"" + markerSentinel + ":\" + verdict\n")
	b.WriteString("    if payload:\n")
	b.WriteString("        line += \":\" + base64.b64encode(payload.encode(\"utf-8\", \"replace\")).decode(\"ascii\")\n")
	b.WriteString("    sys.stdout.write(\"\\n\" + line + \"\\n\")\n")
	b.WriteString("    sys.stdout.flush()\n")
	b.WriteString("\n")
	b.WriteString("try:\n")
	b.WriteString("    from " + module + " import *\n")
	b.WriteString("except BaseException:\n")
	b.WriteString("    __dstest_emit(\"ERROR\", traceback.format_exc())\n")
	b.WriteString("    sys.exit(0)\n")
	b.WriteString("\n")
	b.WriteString("__dstest_code = base64.b64decode(\"" + encoded + "\").decode(\"utf-8\")\n")
	b.WriteString("\n")
	b.WriteString("try:\n")
	b.WriteString("    exec(compile(__dstest_code, \"<test>\", \"exec\"))\n")
	b.WriteString("except AssertionError as __dstest_exc:\n")
	b.WriteString("    __dstest_emit(\"FAIL\", str(__dstest_exc) or \"assertion failed\")\n")
	b.WriteString("except BaseException:\n")
	b.WriteString("    __dstest_emit(\"ERROR\", traceback.format_exc())\n")
	b.WriteString("else:\n")
	b.WriteString("    __dstest_emit(\"PASS\")\n")
	return b.String()
}

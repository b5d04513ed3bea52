package test_test

import (
	"strings"
	"testing"

	"github.com/aldas/go-canxl-regs"
	"github.com/stretchr/testify/assert"
)

// AssertFindingPresent checks that findings contain finding with given severity and message containing given text
func AssertFindingPresent(t *testing.T, findings canxl.Findings, sev canxl.Severity, contains string) bool {
	t.Helper()
	for _, f := range findings {
		if f.Severity == sev && strings.Contains(f.Message, contains) {
			return true
		}
	}
	return assert.Fail(t, "finding not found", "expected %v finding containing `%v` in:\n%v", sev, contains, formatFindings(findings))
}

// AssertNoFindings checks that findings do not contain any finding with given severities
func AssertNoFindings(t *testing.T, findings canxl.Findings, sevs ...canxl.Severity) bool {
	t.Helper()
	found := findings.Filter(sevs...)
	if len(found) == 0 {
		return true
	}
	return assert.Fail(t, "unexpected findings", "expected no %v findings, got:\n%v", sevs, formatFindings(found))
}

func formatFindings(findings canxl.Findings) string {
	sb := strings.Builder{}
	for _, f := range findings {
		sb.WriteString("  ")
		sb.WriteString(f.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package selfdev

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckSyntaxBalanced(t *testing.T) {
	src := "package a\n\nfunc f(xs []int) map[string]int {\n\tout := map[string]int{}\n\treturn out\n}\n"
	require.Empty(t, checkSyntax(src, "go"))
}

func TestCheckSyntaxUnbalanced(t *testing.T) {
	findings := checkSyntax("func f( {\n", "go")
	require.NotEmpty(t, findings)
	require.Contains(t, strings.Join(findings, "; "), "unclosed")

	findings = checkSyntax("x := a)\n", "go")
	require.Contains(t, strings.Join(findings, "; "), "unmatched")
}

func TestCheckSyntaxIgnoresCommentsAndStrings(t *testing.T) {
	src := "package a\n// an unbalanced ( in a comment\nvar s = \"also ( here\"\n/* and ( here */\nvar r = `raw ( string`\n"
	require.Empty(t, checkSyntax(src, "go"))

	py := "# comment with (\nx = \"string with (\"\ns = '''\nmultiline with (\n'''\n"
	require.Empty(t, checkSyntax(py, "python"))
}

func TestCheckSyntaxUnterminatedString(t *testing.T) {
	findings := checkSyntax("x := \"never closed\ny := 1\n", "go")
	require.Contains(t, strings.Join(findings, "; "), "unterminated string")

	// Go raw strings span lines legally.
	require.Empty(t, checkSyntax("x := `spans\nlines`\n", "go"))
}

func TestSemanticPatterns(t *testing.T) {
	src := "ok\n<<<<<<< HEAD\ntheirs\n=======\nours\n>>>>>>> branch\n"
	findings := matchPatterns(src, semanticPatterns)
	require.NotEmpty(t, findings)
	require.Contains(t, findings[0], "merge conflict marker")
	require.Contains(t, findings[0], "line 2")

	require.Empty(t, matchPatterns("clean content\n", semanticPatterns))
}

func TestSecurityPatterns(t *testing.T) {
	cases := map[string]string{
		`apiKey := "sk-123456789"`:                  "hardcoded credential",
		`exec.Command("sh", "-c", "rm "+userInput)`: "concatenation",
		`os.Chmod(path, 0777)`:                      "world-writable",
		`tls.Config{InsecureSkipVerify: true}`:      "TLS verification disabled",
		`requests.get(url, verify=False)`:           "TLS verification disabled",
	}
	for src, label := range cases {
		findings := matchPatterns(src, securityPatterns)
		require.NotEmpty(t, findings, "expected a finding for %q", src)
		require.Contains(t, strings.Join(findings, "; "), label)
	}
	require.Empty(t, matchPatterns(`perm := 0o644`, securityPatterns))
}

func TestCheckPerformance(t *testing.T) {
	src := "func f(items []string) string {\n" +
		"\tvar s string\n" +
		"\tfor _, it := range items {\n" +
		"\t\ts += \"item: \" + it\n" +
		"\t\tdefer cleanup()\n" +
		"\t\tdata, _ := os.ReadFile(it)\n" +
		"\t\t_ = data\n" +
		"\t}\n" +
		"\treturn s\n" +
		"}\n"
	findings := checkPerformance(src)
	joined := strings.Join(findings, "; ")
	require.Contains(t, joined, "string concatenation in loop")
	require.Contains(t, joined, "defer inside loop")
	require.Contains(t, joined, "unbuffered file IO in loop")

	// The same constructs outside a loop are fine.
	outside := "s += \"x\"\ndefer cleanup()\ndata, _ := os.ReadFile(p)\n"
	require.Empty(t, checkPerformance(outside))
}

func TestCheckFunctional(t *testing.T) {
	require.Contains(t, strings.Join(checkFunctional(nil), "; "), "empty")
	require.Contains(t, strings.Join(checkFunctional([]byte("a\x00b")), "; "), "NUL")
	require.Contains(t, strings.Join(checkFunctional([]byte{0xff, 0xfe, 0x41}), "; "), "UTF-8")
	require.Empty(t, checkFunctional([]byte("package a\n")))
}

func TestValidateChangesRunsRequestedChecks(t *testing.T) {
	e, root := newTestEngine(t, &fakeBackend{})
	writeFile(t, root, "internal/clean.go", "package a\n\nfunc f() {}\n")
	writeFile(t, root, "internal/dirty.go", "package a\n<<<<<<< HEAD\nfunc f( {\n")

	report, err := e.ValidateChanges(context.Background(), ValidateRequest{
		FilePaths: []string{"internal/clean.go", "internal/dirty.go"},
		Kinds:     []CheckKind{CheckSyntax, CheckSemantic},
	})
	require.NoError(t, err)
	require.False(t, report.AllPassed)
	require.Len(t, report.Checks, 4, "two checks per file")

	failed := 0
	for _, c := range report.Checks {
		if !c.Passed {
			failed++
			require.Equal(t, "internal/dirty.go", c.Path)
		}
	}
	require.Equal(t, 2, failed, "one failing check never stops the others")
}

func TestValidateChangesDefaultsToRecentFiles(t *testing.T) {
	e, root := newTestEngine(t, &fakeBackend{})
	writeFile(t, root, "internal/fresh.go", "package a\n")

	report, err := e.ValidateChanges(context.Background(), ValidateRequest{})
	require.NoError(t, err)
	require.Equal(t, []string{"internal/fresh.go"}, report.Files)
	require.True(t, report.AllPassed)
	require.Len(t, report.Checks, len(AllChecks))
}

func TestValidateChangesRunsTestCommand(t *testing.T) {
	e, root := newTestEngine(t, &fakeBackend{})
	writeFile(t, root, "internal/a.go", "package a\n")

	e.cfg.Validate.TestCommand = "echo all tests passed"
	report, err := e.ValidateChanges(context.Background(), ValidateRequest{RunTests: true})
	require.NoError(t, err)
	require.NotNil(t, report.Tests)
	require.True(t, report.Tests.Passed)
	require.Contains(t, report.Tests.OutputTail, "all tests passed")

	e.cfg.Validate.TestCommand = "echo failing output; exit 1"
	report, err = e.ValidateChanges(context.Background(), ValidateRequest{RunTests: true})
	require.NoError(t, err)
	require.False(t, report.Tests.Passed)
	require.False(t, report.AllPassed)
	require.Contains(t, report.Tests.OutputTail, "failing output")
}

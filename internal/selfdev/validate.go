// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package selfdev

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"github.com/forgelabs/mcpsmith/internal/subproc"
)

// CheckKind names one validation check.
type CheckKind string

const (
	CheckSyntax      CheckKind = "syntax"
	CheckSemantic    CheckKind = "semantic"
	CheckSecurity    CheckKind = "security"
	CheckPerformance CheckKind = "performance"
	CheckFunctional  CheckKind = "functional"
)

// AllChecks is the default check set.
var AllChecks = []CheckKind{CheckSyntax, CheckSemantic, CheckSecurity, CheckPerformance, CheckFunctional}

// ValidateRequest parameterizes one validation run.
type ValidateRequest struct {
	// FilePaths validates an explicit list; empty falls back to files modified
	// within the configured lookback window.
	FilePaths []string
	// Kinds selects the checks; empty runs all of them.
	Kinds []CheckKind
	// RunTests additionally runs the configured test command.
	RunTests bool
}

// CheckResult is one check's outcome for one file.
type CheckResult struct {
	Path     string    `json:"path"`
	Kind     CheckKind `json:"kind"`
	Passed   bool      `json:"passed"`
	Findings []string  `json:"findings,omitempty"`
}

// TestResult reports the optional test command run.
type TestResult struct {
	Command    string `json:"command"`
	Passed     bool   `json:"passed"`
	OutputTail string `json:"output_tail,omitempty"`
}

// ValidateReport is the outcome of one validation run.
type ValidateReport struct {
	Files     []string      `json:"files"`
	Checks    []CheckResult `json:"checks"`
	Tests     *TestResult   `json:"tests,omitempty"`
	AllPassed bool          `json:"all_passed"`
}

// ValidateChanges runs the requested checks over the target files. Each check
// runs independently; one failing check never stops the others. Targets
// default to files under the source roots modified within the lookback window.
func (e *Engine) ValidateChanges(ctx context.Context, req ValidateRequest) (*ValidateReport, error) {
	var files []string
	var err error
	if len(req.FilePaths) > 0 {
		files, err = resolveFiles(e.projectRoot, e.cfg.SourceRoots, req.FilePaths, 0)
	} else {
		files, err = recentlyModified(e.projectRoot, e.cfg.SourceRoots, e.cfg.Validate.Lookback())
	}
	if err != nil {
		return nil, err
	}

	kinds := req.Kinds
	if len(kinds) == 0 {
		kinds = AllChecks
	}

	report := &ValidateReport{Files: files, AllPassed: true}
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		path := filepath.Join(e.projectRoot, rel)
		raw, readErr := os.ReadFile(path)
		lang := languageFor(rel)

		for _, kind := range kinds {
			result := CheckResult{Path: rel, Kind: kind, Passed: true}
			if readErr != nil {
				if kind == CheckFunctional {
					result.Passed = false
					result.Findings = []string{"unreadable: " + readErr.Error()}
				}
				// Content checks are skipped for unreadable files; functional
				// already reports the root cause.
				report.Checks = append(report.Checks, result)
				if !result.Passed {
					report.AllPassed = false
				}
				continue
			}

			content := string(raw)
			var findings []string
			switch kind {
			case CheckSyntax:
				findings = checkSyntax(content, lang)
			case CheckSemantic:
				findings = matchPatterns(content, semanticPatterns)
			case CheckSecurity:
				findings = matchPatterns(content, securityPatterns)
			case CheckPerformance:
				findings = checkPerformance(content)
			case CheckFunctional:
				findings = checkFunctional(raw)
			default:
				findings = []string{fmt.Sprintf("unknown check kind %q", kind)}
			}
			if len(findings) > 0 {
				result.Passed = false
				result.Findings = findings
				report.AllPassed = false
				log.Warnf("selfdev: %s check flagged %s: %s", kind, rel, strings.Join(findings, "; "))
			}
			report.Checks = append(report.Checks, result)
		}
	}

	if req.RunTests {
		report.Tests = e.runTests(ctx)
		if !report.Tests.Passed {
			report.AllPassed = false
		}
	}
	return report, nil
}

func (e *Engine) runTests(ctx context.Context) *TestResult {
	command := e.cfg.Validate.TestCommand
	result, err := subproc.RunShell(ctx, command, e.projectRoot, nil, e.cfg.Validate.TestTimeout())
	test := &TestResult{Command: command, Passed: err == nil}
	if result != nil {
		test.OutputTail = result.Tail(40)
	}
	if err != nil {
		log.Warnf("selfdev: test command failed: %v", err)
	}
	return test
}

// checkFunctional verifies the raw bytes are usable source text.
func checkFunctional(raw []byte) []string {
	var findings []string
	if len(raw) == 0 {
		findings = append(findings, "file is empty")
	}
	if bytes.IndexByte(raw, 0) >= 0 {
		findings = append(findings, "file contains NUL bytes")
	}
	if !utf8.Valid(raw) {
		findings = append(findings, "file is not valid UTF-8")
	}
	return findings
}

type checkPattern struct {
	label string
	re    *regexp.Regexp
}

var semanticPatterns = []checkPattern{
	{"merge conflict marker", regexp.MustCompile(`(?m)^(<{7} |={7}$|>{7} )`)},
	{"leftover debugger statement", regexp.MustCompile(`(?m)^\s*debugger\b`)},
	{"leftover debug print", regexp.MustCompile(`console\.log\(|fmt\.Println\("DEBUG|print\("DEBUG`)},
}

var securityPatterns = []checkPattern{
	{"hardcoded credential", regexp.MustCompile(`(?i)(password|passwd|secret|api[_-]?key|auth[_-]?token)\s*(:=|[:=])\s*["'][^"']{4,}["']`)},
	{"shell command built by concatenation", regexp.MustCompile(`(?m)(exec\.Command|os\.system|subprocess\.(run|call|Popen))\([^)\n]*\+`)},
	{"world-writable file permission", regexp.MustCompile(`0o?77[0-7]\b`)},
	{"TLS verification disabled", regexp.MustCompile(`InsecureSkipVerify\s*:\s*true|verify\s*=\s*False`)},
}

// matchPatterns reports each matched pattern with the line of its first match.
func matchPatterns(content string, patterns []checkPattern) []string {
	var findings []string
	for _, p := range patterns {
		if loc := p.re.FindStringIndex(content); loc != nil {
			line := 1 + strings.Count(content[:loc[0]], "\n")
			findings = append(findings, fmt.Sprintf("%s at line %d", p.label, line))
		}
	}
	return findings
}

var loopHeader = regexp.MustCompile(`^\s*(for[\s(]|for$|while[\s(])`)

var loopHazards = []checkPattern{
	{"string concatenation in loop", regexp.MustCompile(`\w+\s*\+=\s*["']|=\s*\w+\s*\+\s*["']`)},
	{"unbuffered file IO in loop", regexp.MustCompile(`os\.ReadFile\(|os\.WriteFile\(|open\(`)},
	{"defer inside loop", regexp.MustCompile(`^\s*defer\s`)},
}

// checkPerformance flags hazardous constructs on lines inside loop bodies.
// Loop extent is approximated by brace depth (indentation-based languages get
// a fixed-size window).
func checkPerformance(content string) []string {
	var findings []string
	lines := strings.Split(content, "\n")

	depth := 0
	// loopDepths records the brace depth at which each active loop was opened.
	var loopDepths []int
	windowLeft := 0 // for brace-less (python) loop bodies

	for i, line := range lines {
		inLoop := len(loopDepths) > 0 || windowLeft > 0
		if inLoop && !loopHeader.MatchString(line) {
			for _, hazard := range loopHazards {
				if hazard.re.MatchString(line) {
					findings = append(findings, fmt.Sprintf("%s at line %d", hazard.label, i+1))
				}
			}
		}

		opens := strings.Count(line, "{")
		closes := strings.Count(line, "}")
		if loopHeader.MatchString(line) {
			if opens > 0 {
				loopDepths = append(loopDepths, depth)
			} else {
				windowLeft = 15
			}
		}
		depth += opens - closes
		for len(loopDepths) > 0 && depth <= loopDepths[len(loopDepths)-1] {
			loopDepths = loopDepths[:len(loopDepths)-1]
		}
		if windowLeft > 0 {
			windowLeft--
		}
	}
	return findings
}

// checkSyntax scans for unbalanced delimiters and unterminated string
// literals, skipping comments and string contents per language family.
func checkSyntax(content, lang string) []string {
	var findings []string

	hashComments := lang == "python" || lang == "shell"
	backtickStrings := lang == "go" || lang == "javascript" || lang == "typescript"

	var stack []struct {
		ch   byte
		line int
	}
	line := 1
	var stringQuote byte
	stringLine := 0
	inLineComment := false
	inBlockComment := false
	tripleQuote := "" // python multiline string delimiter

	for i := 0; i < len(content); i++ {
		c := content[i]
		if c == '\n' {
			line++
			inLineComment = false
			if stringQuote != 0 && stringQuote != '`' {
				findings = append(findings, fmt.Sprintf("unterminated string literal at line %d", stringLine))
				stringQuote = 0
			}
			continue
		}
		if inLineComment {
			continue
		}
		if inBlockComment {
			if c == '*' && i+1 < len(content) && content[i+1] == '/' {
				inBlockComment = false
				i++
			}
			continue
		}
		if tripleQuote != "" {
			if strings.HasPrefix(content[i:], tripleQuote) {
				i += len(tripleQuote) - 1
				tripleQuote = ""
			}
			continue
		}
		if stringQuote != 0 {
			if c == '\\' && stringQuote != '`' {
				i++
			} else if c == stringQuote {
				stringQuote = 0
			}
			continue
		}

		// Not inside a string or comment.
		switch {
		case hashComments && c == '#':
			inLineComment = true
		case !hashComments && c == '/' && i+1 < len(content) && content[i+1] == '/':
			inLineComment = true
			i++
		case !hashComments && c == '/' && i+1 < len(content) && content[i+1] == '*':
			inBlockComment = true
			i++
		case lang == "python" && (strings.HasPrefix(content[i:], `"""`) || strings.HasPrefix(content[i:], "'''")):
			tripleQuote = content[i : i+3]
			i += 2
		case c == '"' || c == '\'':
			stringQuote = c
			stringLine = line
		case c == '`' && backtickStrings:
			stringQuote = c
			stringLine = line
		case c == '(' || c == '[' || c == '{':
			stack = append(stack, struct {
				ch   byte
				line int
			}{c, line})
		case c == ')' || c == ']' || c == '}':
			want := map[byte]byte{')': '(', ']': '[', '}': '{'}[c]
			if len(stack) == 0 || stack[len(stack)-1].ch != want {
				findings = append(findings, fmt.Sprintf("unmatched %q at line %d", c, line))
			} else {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if stringQuote != 0 && stringQuote != '`' {
		findings = append(findings, fmt.Sprintf("unterminated string literal at line %d", stringLine))
	}
	for _, open := range stack {
		findings = append(findings, fmt.Sprintf("unclosed %q from line %d", open.ch, open.line))
	}
	return findings
}

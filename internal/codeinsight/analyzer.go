// Package codeinsight produces heuristic, non-epistemic annotations about
// code snippets. Nothing here ever becomes a Fact.
package codeinsight

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/anacreon-labs/factledger/internal/domain"
	"github.com/google/uuid"
)

const (
	LanguageGo         = "Go"
	LanguageCSharp     = "C#"
	LanguagePython     = "Python"
	LanguageJavaScript = "JavaScript"
	LanguageJava       = "Java"
	LanguageSQL        = "SQL"
	LanguageUnknown    = "Unknown"

	maxLineLength   = 120
	maxNestingDepth = 4
)

type languageRule struct {
	name    string
	pattern *regexp.Regexp
}

// Order matters: Java before C# because both declare classes, Go first
// because its "package" clause is unambiguous.
var languageRules = []languageRule{
	{LanguageGo, regexp.MustCompile(`(?m)^package\s+\w+\s*$|\bfunc\s+(\(\w+\s+\*?\w+\)\s*)?\w+\(|:=`)},
	{LanguageJava, regexp.MustCompile(`\b(public|private)\s+class\s+\w+|\bstatic\s+void\s+main\s*\(|\bSystem\.out\.print`)},
	{LanguageCSharp, regexp.MustCompile(`(?m)^\s*using\s+[\w.]+;|\bnamespace\s+[\w.]+|\bConsole\.Write|\bvoid\s+\w+\(`)},
	{LanguagePython, regexp.MustCompile(`(?m)^\s*def\s+\w+\s*\(|^\s*import\s+\w+\s*$|^\s*from\s+[\w.]+\s+import\s|^\s*class\s+\w+.*:\s*$`)},
	{LanguageJavaScript, regexp.MustCompile(`\b(const|let|var)\s+\w+\s*=|\bfunction\s*\w*\s*\(|=>|\bimport\s+.*\s+from\s+['"]`)},
	{LanguageSQL, regexp.MustCompile(`(?i)\b(select\s+.+\s+from|insert\s+into|update\s+\w+\s+set|delete\s+from|create\s+table)\b`)},
}

var (
	branchKeyword = regexp.MustCompile(`\b(if|elif|for|foreach|while|switch|case|catch|except)\b`)
	boolOperator  = regexp.MustCompile(`&&|\|\||\band\b|\bor\b`)
	todoMarker    = regexp.MustCompile(`\b(TODO|FIXME|XXX|HACK)\b`)
	emptyCatch    = regexp.MustCompile(`catch\s*(\([^)]*\))?\s*\{\s*\}|(?m)except[^:\n]*:\s*\n?\s*pass\s*$`)
	emptyErrCheck = regexp.MustCompile(`if\s+err\s*!=\s*nil\s*\{\s*\}`)
	asyncMethod   = regexp.MustCompile(`\basync\s+\w+(<[^>]*>)?\s+\w+\s*\(`)
	magicNumber   = regexp.MustCompile(`\b\d{2,}\b`)
)

// Analyzer is a stateless heuristic analyzer.
type Analyzer struct{}

func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

func (a *Analyzer) Analyze(code string) *domain.CodeInsight {
	lang := DetectLanguage(code)
	complexity := Complexity(code)
	lines := strings.Split(code, "\n")

	var issues, suggestions []string

	if n := countLongLines(lines); n > 0 {
		issues = append(issues, fmt.Sprintf("%d line(s) exceed %d characters", n, maxLineLength))
	}
	if n := len(todoMarker.FindAllString(code, -1)); n > 0 {
		issues = append(issues, fmt.Sprintf("%d TODO/FIXME marker(s) left in the code", n))
	}
	if depth := nestingDepth(lines, lang); depth > maxNestingDepth {
		issues = append(issues, fmt.Sprintf("nesting depth %d exceeds %d; extract inner blocks", depth, maxNestingDepth))
	}
	if emptyCatch.MatchString(code) {
		issues = append(issues, "empty catch/except block swallows errors")
	}

	switch lang {
	case LanguageGo:
		if emptyErrCheck.MatchString(code) {
			issues = append(issues, "error checked but ignored")
		}
	case LanguageCSharp:
		if asyncMethod.MatchString(code) && !strings.Contains(code, "await") {
			issues = append(issues, "async method without await")
		}
	case LanguagePython:
		if strings.Contains(code, "\t") {
			issues = append(issues, "tabs used for indentation; PEP 8 prefers spaces")
		}
		if strings.Contains(code, "def ") && !strings.Contains(code, "->") {
			suggestions = append(suggestions, "add type hints to function signatures")
		}
	case LanguageJavaScript:
		if strings.Contains(code, "var ") {
			issues = append(issues, "prefer const or let over var")
		}
		if strings.Contains(code, ".then(") && !strings.Contains(code, ".catch(") {
			issues = append(issues, "promise chain without .catch()")
		}
	}

	if complexity > 10 {
		suggestions = append(suggestions, "split the code into smaller functions")
	}
	if len(magicNumber.FindAllString(code, -1)) > 3 {
		suggestions = append(suggestions, "replace magic numbers with named constants")
	}
	if hasDuplicateLines(lines) {
		suggestions = append(suggestions, "extract repeated lines into a helper")
	}

	severity := domain.SeverityInfo
	if len(issues) > 0 {
		severity = domain.SeverityWarning
	}

	return &domain.CodeInsight{
		ID:          uuid.New(),
		Language:    lang,
		Complexity:  complexity,
		Context:     fmt.Sprintf("%s snippet, %d line(s)", lang, len(lines)),
		Observation: fmt.Sprintf("cyclomatic complexity %d (%s)", complexity, ComplexityLevel(complexity)),
		Issues:      issues,
		Suggestions: suggestions,
		Severity:    severity,
		CodeSnippet: code,
		CreatedAt:   time.Now().UTC(),
	}
}

func DetectLanguage(code string) string {
	for _, r := range languageRules {
		if r.pattern.MatchString(code) {
			return r.name
		}
	}
	return LanguageUnknown
}

// Complexity is 1 plus the number of branch points.
func Complexity(code string) int {
	return 1 + len(branchKeyword.FindAllString(code, -1)) + len(boolOperator.FindAllString(code, -1))
}

func ComplexityLevel(c int) string {
	switch {
	case c <= 5:
		return "low"
	case c <= 10:
		return "medium"
	case c <= 20:
		return "high"
	default:
		return "very high"
	}
}

func countLongLines(lines []string) int {
	n := 0
	for _, l := range lines {
		if len([]rune(l)) > maxLineLength {
			n++
		}
	}
	return n
}

// nestingDepth uses brace depth, or indentation width for Python.
func nestingDepth(lines []string, lang string) int {
	if lang == LanguagePython {
		deepest := 0
		for _, l := range lines {
			if strings.TrimSpace(l) == "" {
				continue
			}
			width := 0
			for _, r := range l {
				if r == ' ' {
					width++
				} else if r == '\t' {
					width += 4
				} else {
					break
				}
			}
			deepest = max(deepest, width/4)
		}
		return deepest
	}

	depth, deepest := 0, 0
	for _, l := range lines {
		for _, r := range l {
			switch r {
			case '{':
				depth++
				deepest = max(deepest, depth)
			case '}':
				if depth > 0 {
					depth--
				}
			}
		}
	}
	return deepest
}

func hasDuplicateLines(lines []string) bool {
	seen := make(map[string]int)
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if len(l) <= 20 {
			continue
		}
		seen[l]++
		if seen[l] > 2 {
			return true
		}
	}
	return false
}

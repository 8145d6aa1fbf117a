package cognitive

import (
	"regexp"
	"strings"

	"github.com/anacreon-labs/factledger/internal/domain"
)

var (
	codePatterns = []*regexp.Regexp{
		regexp.MustCompile("(?i)\\b(analise|analyze|revise|review|corrija|fix|melhore|improve)\\b.*\\b(código|code|script)\\b"),
		regexp.MustCompile("(?i)\\b(bug|erro|error|exception|problema)\\b.*\\b(código|code)\\b"),
		regexp.MustCompile("```[\\s\\S]*```"),
	}
	searchPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(pesquis[ae]|search|busque|procure|investigue|look\s+up)\b`),
		regexp.MustCompile(`(?i)(^|\s)(o que [eé]|what is)\s.*\b(na internet|online|web)\b`),
	}
	searchNoise = regexp.MustCompile(`(?i)\b(pesquis[ae]|search|busque|procure|investigue|look\s+up|sobre|about|for|na internet|online|web)\b`)

	teachingPT = regexp.MustCompile(`(?i)^(.+?)\s+(é|são|foi|era|tem|possui|contém)\s+(.+)$`)
	teachingEN = regexp.MustCompile(`(?i)^(.+?)\s+(is|are|was|were|has|have|contains)\s+(.+)$`)

	validationReply = regexp.MustCompile(`(?i)^(sim|não|nao|yes|no|aprovo|rejeito|approve|reject|ok)[.!]?$`)
)

var questionWords = []string{
	"o que", "qual", "quais", "quem", "onde", "quando", "como", "por que", "quanto",
	"what", "which", "who", "where", "when", "how", "why",
}

var subjectStopWords = map[string]bool{
	"é": true, "são": true, "foi": true, "um": true, "uma": true,
	"o": true, "a": true, "os": true, "as": true, "de": true, "da": true, "do": true,
	"is": true, "are": true, "was": true, "the": true, "an": true, "of": true,
}

// RegexIntentDetector classifies Portuguese and English turns with fixed
// patterns. Checks run in order: code, search, validation reply, question,
// teaching statement.
type RegexIntentDetector struct{}

func NewIntentDetector() *RegexIntentDetector {
	return &RegexIntentDetector{}
}

func (d *RegexIntentDetector) Detect(input string) domain.Intent {
	input = strings.TrimSpace(input)
	if input == "" {
		return domain.Intent{Type: domain.IntentUnknown, OriginalInput: input}
	}

	if matchesAny(codePatterns, input) {
		return domain.Intent{Type: domain.IntentCodeRequest, OriginalInput: input, Confidence: 0.95}
	}

	if matchesAny(searchPatterns, input) {
		return domain.Intent{
			Type:          domain.IntentSearchRequest,
			Subject:       domain.CleanText(searchNoise.ReplaceAllString(input, "")),
			OriginalInput: input,
			Confidence:    0.90,
		}
	}

	if validationReply.MatchString(input) {
		return domain.Intent{Type: domain.IntentValidationResponse, OriginalInput: input, Confidence: 0.70}
	}

	if isQuestion(input) {
		return domain.Intent{
			Type:          domain.IntentQuestion,
			Subject:       questionSubject(input),
			OriginalInput: input,
			Confidence:    0.80,
		}
	}

	for _, re := range []*regexp.Regexp{teachingPT, teachingEN} {
		if m := re.FindStringSubmatch(input); m != nil {
			return domain.Intent{
				Type:          domain.IntentTeaching,
				Subject:       domain.CleanText(m[1]),
				Relation:      strings.ToLower(strings.TrimSpace(m[2])),
				Object:        domain.CleanText(strings.TrimRight(m[3], ".!")),
				OriginalInput: input,
				Confidence:    0.85,
			}
		}
	}

	return domain.Intent{Type: domain.IntentUnknown, OriginalInput: input}
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// questionPrefix returns the question word s starts with, if any.
func questionPrefix(s string) string {
	lower := strings.ToLower(s)
	for _, qw := range questionWords {
		if lower == qw || strings.HasPrefix(lower, qw+" ") {
			return qw
		}
	}
	return ""
}

func isQuestion(s string) bool {
	return strings.HasSuffix(s, "?") || questionPrefix(s) != ""
}

func questionSubject(s string) string {
	s = strings.ToLower(strings.TrimRight(s, "?.! "))
	if qw := questionPrefix(s); qw != "" {
		s = strings.TrimSpace(s[len(qw):])
	}
	var kept []string
	for _, word := range strings.Fields(s) {
		if !subjectStopWords[word] {
			kept = append(kept, word)
		}
	}
	return domain.CleanText(strings.Join(kept, " "))
}

package chat

import (
	"strings"
	"unicode/utf8"
)

const shortAnswerLimit = 100

// completingRunes are terminal characters that mark an answer as finished.
var completingRunes = map[rune]bool{
	'.': true, '!': true, '?': true,
	'"': true, '\'': true, ')': true, '*': true,
}

// shortLegitimateWords are two-letter-or-less words that legitimately end
// a sentence: articles, prepositions, pronouns.
var shortLegitimateWords = map[string]bool{
	"a": true, "i": true, "an": true, "am": true, "as": true, "at": true,
	"be": true, "by": true, "do": true, "go": true, "he": true, "if": true,
	"in": true, "is": true, "it": true, "me": true, "my": true, "no": true,
	"of": true, "on": true, "or": true, "so": true, "to": true, "up": true,
	"us": true, "we": true,
}

// isTruncated judges whether a completed answer was cut off before its
// natural end. The heuristic is deliberately approximate; the rules run
// in a fixed order and the first match decides. A trailing ':' or '-'
// always reads as an interrupted lead-in, even on a short answer.
func isTruncated(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return false
	}

	last, _ := utf8.DecodeLastRuneInString(trimmed)
	if completingRunes[last] {
		return false
	}
	// a closing code fence or horizontal rule is a deliberate ending
	if strings.HasSuffix(trimmed, "```") ||
		strings.HasSuffix(trimmed, "---") ||
		strings.HasSuffix(trimmed, "***") ||
		strings.HasSuffix(trimmed, "___") {
		return false
	}
	if strings.HasSuffix(content, "\n") {
		return false
	}
	if strings.HasSuffix(trimmed, ":") || strings.HasSuffix(trimmed, "-") {
		return true
	}
	// short answers are assumed complete
	if utf8.RuneCountInString(trimmed) <= shortAnswerLimit {
		return false
	}

	fields := strings.Fields(trimmed)
	if len(fields) > 0 {
		lastWord := fields[len(fields)-1]
		if utf8.RuneCountInString(lastWord) <= 2 && !shortLegitimateWords[strings.ToLower(lastWord)] {
			return true
		}
	}

	// default to accepting the answer rather than issuing a needless
	// continuation request
	return false
}

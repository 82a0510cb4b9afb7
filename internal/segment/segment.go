// Package segment splits incrementally generated LLM text into sentences
// small enough for a visual-novel dialogue box. Parenthetical asides (stage
// directions) are kept as indivisible units no matter what punctuation they
// contain.
package segment

import (
	"regexp"
	"strings"
)

// Terminators are the characters that end a sentence. Consecutive
// terminators ("？！", trailing ellipsis of 。。) stay attached to the same
// sentence.
const Terminators = "。？！；\n"

var bracketPairs = map[rune]rune{
	'（': '）',
	'(': ')',
}

var parentheticalRe = regexp.MustCompile(`（[^（）]*）|\([^()]*\)`)

// ContainsTerminator reports whether s holds at least one sentence
// terminator. The producer uses it as a cheap pre-check before re-splitting
// its whole buffer on every incoming chunk.
func ContainsTerminator(s string) bool {
	return strings.ContainsAny(s, Terminators)
}

// Normalize collapses double newlines so paragraph breaks do not produce
// empty sentences.
func Normalize(text string) string {
	return strings.ReplaceAll(text, "\n\n", "\n")
}

// Split cuts text into the maximal prefix sequence of complete sentences
// plus, if present, one trailing incomplete fragment. A sentence is either a
// complete parenthetical span or a run of text ending in one-or-more
// terminators. An unclosed parenthetical swallows the rest of the input as
// the trailing fragment so the caller can wait for more tokens.
//
// Joining the returned slice reproduces the normalized input exactly; no
// character is ever dropped.
func Split(text string) []string {
	runes := []rune(Normalize(text))
	if len(runes) == 0 {
		return nil
	}

	var sentences []string
	start := 0

	for i := 0; i < len(runes); {
		c := runes[i]

		if closer, ok := bracketPairs[c]; ok {
			// An aside begins: whatever came before it is done.
			if i > start {
				sentences = append(sentences, string(runes[start:i]))
			}
			end := indexRune(runes, i+1, closer)
			if end < 0 {
				// Unclosed span, keep it whole until more text arrives.
				start = i
				break
			}
			sentences = append(sentences, string(runes[i:end+1]))
			i = end + 1
			start = i
			continue
		}

		if isTerminator(c) {
			end := i
			for end+1 < len(runes) && isTerminator(runes[end+1]) {
				end++
			}
			sentences = append(sentences, string(runes[start:end+1]))
			i = end + 1
			start = i
			continue
		}

		i++
	}

	if start < len(runes) {
		sentences = append(sentences, string(runes[start:]))
	}

	return sentences
}

// IsComplete reports whether a sentence returned by Split needs no further
// tokens: it ends in a terminator, or it is a closed parenthetical span.
// Split only ever produces an incomplete sentence as its last element.
func IsComplete(sentence string) bool {
	runes := []rune(sentence)
	if len(runes) == 0 {
		return false
	}
	if isTerminator(runes[len(runes)-1]) {
		return true
	}
	if closer, ok := bracketPairs[runes[0]]; ok {
		return len(runes) >= 2 && runes[len(runes)-1] == closer
	}
	return false
}

// StripParentheticals removes parenthetical spans (both bracket styles) from
// a single sentence, substituting replacement. Splitting is unaffected; this
// is for callers that do not want to voice stage directions.
func StripParentheticals(sentence, replacement string) string {
	return parentheticalRe.ReplaceAllString(sentence, replacement)
}

func isTerminator(c rune) bool {
	return strings.ContainsRune(Terminators, c)
}

func indexRune(runes []rune, from int, target rune) int {
	for i := from; i < len(runes); i++ {
		if runes[i] == target {
			return i
		}
	}
	return -1
}

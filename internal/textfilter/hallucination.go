// Package textfilter implements the deterministic text predicates the server
// applies to recognizer output: hallucination rejection for finals and
// repeated-phrase deduplication for partials.
//
// Whisper-family models hallucinate in recognisable patterns: repeated
// characters, repeated short phrases, repeated sentences, or output in an
// unrelated script. The filters here are pure functions of their input,
// locale-free, and use ASCII byte semantics for the script test, so they are
// unit-testable without any audio.
package textfilter

import (
	"strings"
	"unicode/utf8"
)

const (
	// minAcceptLen is the minimum stripped length of an accepted transcript.
	minAcceptLen = 2

	// minKeepAfterTruncate is the minimum length a truncated transcript must
	// retain to be kept rather than rejected outright.
	minKeepAfterTruncate = 10

	charRunLimit     = 6 // identical consecutive characters
	substrRunLimit   = 4 // consecutive repeats of a 2-8 char substring
	wordRunLimit     = 5 // consecutive repeats of a single word
	bigramRunLimit   = 4 // consecutive repeats of a two-word phrase
	sentenceRunLimit = 3 // occurrences of the same long sentence

	// minASCIIFraction is the smallest fraction of ASCII code points a
	// transcript longer than 10 characters may contain. Mostly-non-ASCII
	// output from an English session is a wrong-language hallucination.
	minASCIIFraction = 0.10
)

// CleanHallucination inspects a final transcript for hallucination patterns.
// It returns the (possibly truncated) text and true when the transcript is
// accepted, or ("", false) when it is rejected as noise.
//
// CleanHallucination is idempotent: feeding an accepted result back in
// returns it unchanged.
func CleanHallucination(text string) (string, bool) {
	t := strings.TrimSpace(text)
	if utf8.RuneCountInString(t) < minAcceptLen {
		return "", false
	}

	if hasCharRun(t, charRunLimit) {
		return "", false
	}

	if prefix, found := truncateSubstrRun(t); found {
		return keepOrReject(prefix)
	}

	words := strings.Fields(t)
	if prefix, found := truncatePhraseRun(words, 1, wordRunLimit); found {
		return keepOrReject(prefix)
	}
	if prefix, found := truncatePhraseRun(words, 2, bigramRunLimit); found {
		return keepOrReject(prefix)
	}

	if hasRepeatedSentence(t) {
		return "", false
	}

	if utf8.RuneCountInString(t) > 10 && asciiFraction(t) < minASCIIFraction {
		return "", false
	}

	return t, true
}

// keepOrReject applies the shared truncate-or-reject rule: a truncated
// transcript survives only if enough text remains to be meaningful.
func keepOrReject(prefix string) (string, bool) {
	prefix = strings.TrimSpace(prefix)
	if utf8.RuneCountInString(prefix) < minKeepAfterTruncate {
		return "", false
	}
	// The kept prefix may itself contain a pattern the earlier rules missed.
	return CleanHallucination(prefix)
}

// hasCharRun reports whether any character repeats at least limit times
// consecutively.
func hasCharRun(t string, limit int) bool {
	var prev rune
	run := 0
	for _, r := range t {
		if r == prev {
			run++
			if run >= limit {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}

// truncateSubstrRun looks for a short substring (2-8 characters) repeating at
// least substrRunLimit times consecutively. On a match it returns the text
// before the run and true.
func truncateSubstrRun(t string) (string, bool) {
	runes := []rune(t)
	for start := 0; start < len(runes); start++ {
		maxLen := 8
		if rem := (len(runes) - start) / substrRunLimit; rem < maxLen {
			maxLen = rem
		}
		for l := 2; l <= maxLen; l++ {
			if countRuneRuns(runes, start, l) >= substrRunLimit {
				return string(runes[:start]), true
			}
		}
	}
	return "", false
}

// countRuneRuns counts consecutive repetitions of runes[start:start+l]
// beginning at start.
func countRuneRuns(runes []rune, start, l int) int {
	count := 1
	for i := start + l; i+l <= len(runes); i += l {
		if !runesEqual(runes[start:start+l], runes[i:i+l]) {
			break
		}
		count++
	}
	return count
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// truncatePhraseRun looks for a phrase of phraseLen words repeating at least
// limit times consecutively. On a match it returns the words before the run,
// joined with single spaces, and true.
func truncatePhraseRun(words []string, phraseLen, limit int) (string, bool) {
	for start := 0; start+phraseLen <= len(words); start++ {
		count := 1
		for i := start + phraseLen; i+phraseLen <= len(words); i += phraseLen {
			if !phrasesEqual(words[start:start+phraseLen], words[i:i+phraseLen]) {
				break
			}
			count++
		}
		if count >= limit {
			return strings.Join(words[:start], " "), true
		}
	}
	return "", false
}

func phrasesEqual(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// hasRepeatedSentence reports whether any case-folded sentence longer than
// 10 characters occurs at least sentenceRunLimit times.
func hasRepeatedSentence(t string) bool {
	sentences := strings.FieldsFunc(t, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	seen := make(map[string]int)
	for _, s := range sentences {
		s = strings.ToLower(strings.TrimSpace(s))
		if utf8.RuneCountInString(s) <= 10 {
			continue
		}
		seen[s]++
		if seen[s] >= sentenceRunLimit {
			return true
		}
	}
	return false
}

// asciiFraction returns the fraction of code points in t below U+0080.
func asciiFraction(t string) float64 {
	total, ascii := 0, 0
	for _, r := range t {
		total++
		if r < 128 {
			ascii++
		}
	}
	if total == 0 {
		return 1
	}
	return float64(ascii) / float64(total)
}

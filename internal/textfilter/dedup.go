package textfilter

import "strings"

// DefaultMaxRepeats is the repetition count above which DedupRepeatedPhrases
// truncates. Three consecutive repeats are tolerated; a fourth is treated as
// a recognizer loop.
const DefaultMaxRepeats = 3

// DedupRepeatedPhrases removes trailing word/phrase loops from a partial
// transcript. It scans words left to right; at each starting position it
// tries phrase lengths 1..3 and counts consecutive repetitions of that
// phrase. When a phrase repeats more than maxRepeats times, the text is
// truncated to the prefix up through the first occurrence of the phrase.
//
// The result is always a word-split prefix of the input. Used only for
// partial transcripts; finals go through [CleanHallucination] instead.
func DedupRepeatedPhrases(text string, maxRepeats int) string {
	words := strings.Fields(text)
	if len(words) <= maxRepeats {
		return text
	}

	for start := 0; start < len(words); start++ {
		maxPhrase := (len(words) - start) / 2
		if maxPhrase > 3 {
			maxPhrase = 3
		}
		for phraseLen := 1; phraseLen <= maxPhrase; phraseLen++ {
			phrase := words[start : start+phraseLen]
			count := 0
			for i := start; i+phraseLen <= len(words); i += phraseLen {
				if !phrasesEqual(phrase, words[i:i+phraseLen]) {
					break
				}
				count++
			}
			if count > maxRepeats {
				return strings.Join(words[:start+phraseLen], " ")
			}
		}
	}
	return text
}

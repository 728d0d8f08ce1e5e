package platform

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// SplitThread splits text into an ordered sequence of segments, each at
// most limit characters including a trailing " (i/n)" indicator. Splits
// never break mid-word; words longer than the available room are the one
// exception and get hard-chunked. Indicators are relabeled in a second
// pass once the final segment count is known.
func SplitThread(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	words := strings.Fields(text)

	// The indicator width depends on the total count, which depends on
	// the room left after the indicator. Grow the reserved digit width
	// until the split is self-consistent.
	var parts []string
	for digits := 1; ; digits++ {
		overhead := 4 + 2*digits // " (i/n)" with up to `digits` digits each
		avail := limit - overhead
		if avail < 1 {
			// Limits too small to fit an indicator degrade to one rune
			// of content per segment instead of looping forever.
			avail = 1
		}
		parts = packWords(words, avail)
		if numDigits(len(parts)) <= digits {
			break
		}
	}

	n := len(parts)
	segments := make([]string, n)
	for i, part := range parts {
		segments[i] = fmt.Sprintf("%s (%d/%d)", part, i+1, n)
	}
	return segments
}

// packWords greedily fills segments of at most avail runes without
// breaking words, except words that alone exceed avail.
func packWords(words []string, avail int) []string {
	var parts []string
	var cur strings.Builder
	curLen := 0

	flush := func() {
		if curLen > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, word := range words {
		wordLen := utf8.RuneCountInString(word)

		if wordLen > avail {
			flush()
			for _, chunk := range chunkRunes(word, avail) {
				parts = append(parts, chunk)
			}
			continue
		}

		need := wordLen
		if curLen > 0 {
			need++ // joining space
		}
		if curLen+need > avail {
			flush()
			need = wordLen
		}
		if curLen > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
		curLen += need
	}
	flush()
	return parts
}

func chunkRunes(s string, size int) []string {
	runes := []rune(s)
	var chunks []string
	for len(runes) > size {
		chunks = append(chunks, string(runes[:size]))
		runes = runes[size:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

func numDigits(n int) int {
	d := 1
	for n >= 10 {
		n /= 10
		d++
	}
	return d
}

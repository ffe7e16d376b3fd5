package ingest

import "strings"

const (
	chunkSize    = 500
	chunkOverlap = 100
)

// SplitText breaks text into chunks of at most size runes with the given
// overlap between consecutive chunks. Breaks prefer paragraph, then line,
// then word boundaries so chunks stay readable.
func SplitText(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}
	if overlap >= size {
		overlap = size / 2
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			chunk := strings.TrimSpace(string(runes[start:]))
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		cut := findBreak(runes, start, end)
		chunk := strings.TrimSpace(string(runes[start:cut]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}

// findBreak looks backwards from end for the best boundary inside the window.
// It falls back to a hard cut at end when no boundary exists.
func findBreak(runes []rune, start, end int) int {
	// Only consider boundaries in the second half of the window so chunks
	// do not collapse to slivers.
	limit := start + (end-start)/2

	for _, boundary := range []string{"\n\n", "\n", ". ", " "} {
		if idx := lastIndexRunes(runes, boundary, limit, end); idx >= 0 {
			return idx + len([]rune(boundary))
		}
	}
	return end
}

// lastIndexRunes finds the last occurrence of sep within runes[from:to].
func lastIndexRunes(runes []rune, sep string, from, to int) int {
	sepRunes := []rune(sep)
	for i := to - len(sepRunes); i >= from; i-- {
		match := true
		for j, r := range sepRunes {
			if runes[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

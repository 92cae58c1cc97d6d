// Package chunk splits article text into byte-bounded pieces. The storage
// backend caps per-document size, so oversized text is stored as a
// contiguous, reassemblable chunk sequence.
package chunk

import "unicode/utf8"

const (
	// DefaultTargetBytes is tuned to the backend's document size ceiling.
	DefaultTargetBytes = 350 << 10

	growStep = 4 << 10
	backStep = 512
)

// Split walks the text left to right, growing each chunk in fixed steps
// until its UTF-8 byte length would meet or exceed targetBytes, then backing
// off in smaller steps past the overshoot. Chunks never split a rune and are
// never empty; concatenating them in order reproduces the input exactly.
// Every chunk is at most targetBytes unless a single rune exceeds it.
func Split(text string, targetBytes int) []string {
	if text == "" {
		return nil
	}
	if targetBytes <= 0 {
		targetBytes = DefaultTargetBytes
	}

	var chunks []string
	for start := 0; start < len(text); {
		if len(text)-start <= targetBytes {
			chunks = append(chunks, text[start:])
			break
		}

		end := start
		for end-start < targetBytes {
			end += growStep
		}
		if end > len(text) {
			end = len(text)
		}
		for end-start > targetBytes {
			end -= backStep
		}
		// Targets below the back-off step overshoot past start; clamp to a
		// full target-sized chunk instead.
		if end <= start {
			end = start + targetBytes
		}
		for end > start && !isRuneBoundary(text, end) {
			end--
		}
		if end <= start {
			// Force-advance by one rune so progress never stalls.
			_, size := utf8.DecodeRuneInString(text[start:])
			end = start + size
		}

		chunks = append(chunks, text[start:end])
		start = end
	}

	return chunks
}

func isRuneBoundary(text string, i int) bool {
	return i >= len(text) || utf8.RuneStart(text[i])
}

package indexer

import (
	"strings"
)

// chunk is one token-bounded slice of a document.
//
// Pos:      stable, zero-based position of the chunk inside the document.
// Text:     chunk content (built from one or more lines).
// TokenCnt: approximate token count (used for overlap math).
type chunk struct {
	Pos      int
	Text     string
	TokenCnt int
}

// splitChunks groups lines of text into token-bounded chunks with optional
// overlap. Deterministic for a given input, so chunk positions are stable
// across re-indexing runs.
func splitChunks(text string, targetTokens, overlapTokens int) []chunk {
	var (
		out    []chunk
		buf    []string
		tokSum int
		pos    int
	)

	// flush emits the current buffer as a chunk and seeds the next buffer
	// with a tail of at most overlapTokens.
	flush := func() {
		if tokSum == 0 {
			return
		}
		out = append(out, chunk{Pos: pos, Text: strings.Join(buf, "\n"), TokenCnt: tokSum})
		pos++

		if overlapTokens > 0 {
			// The carried tail never exceeds overlapTokens: a line too big
			// for the budget is not carried, or the next chunk would be a
			// near-duplicate of this one.
			keep := []string{}
			remain := overlapTokens
			for j := len(buf) - 1; j >= 0; j-- {
				t := approxTokens(buf[j])
				if t > remain {
					break
				}
				keep = append([]string{buf[j]}, keep...)
				remain -= t
			}
			buf = keep
			tokSum = overlapTokens - remain
		} else {
			buf = buf[:0]
			tokSum = 0
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		buf = append(buf, line)
		tokSum += approxTokens(line)

		if tokSum >= targetTokens {
			flush()
		}
	}

	// Tail shorter than the target still becomes a chunk, unless it is pure
	// overlap carried forward from the last emitted chunk.
	if tokSum > 0 && (len(out) == 0 || !isOverlapOnly(out[len(out)-1].Text, buf)) {
		out = append(out, chunk{Pos: pos, Text: strings.Join(buf, "\n"), TokenCnt: tokSum})
	}
	return out
}

// isOverlapOnly reports whether buf holds nothing beyond the tail of the
// previously emitted chunk.
func isOverlapOnly(prevText string, buf []string) bool {
	return strings.HasSuffix(prevText, strings.Join(buf, "\n"))
}

// approxTokens is a cheap token estimator (~4 chars per token).
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}

package chat

import (
	"regexp"
	"strings"

	"github.com/alihussainiF1/talk2folder/internal/models"
)

// The model is instructed to attribute claims inline as "[Source: name]".
// Markers are scrubbed from the streamed text and resolved into structured
// citations once the answer is complete.
var markerRe = regexp.MustCompile(`\[Source:\s*([^\]]+)\]`)

const markerPrefix = "[Source:"

// Candidate is a source the model was shown and may therefore cite.
// ChunkIndex is set for rag candidates only.
type Candidate struct {
	FileName     string
	SourceFileID string
	MimeType     string
	ChunkIndex   *int
}

// markerFilter strips citation markers from a stream of text fragments,
// holding back a trailing partial marker until it either completes or turns
// out to be ordinary text.
type markerFilter struct {
	pending string
}

// Feed appends a fragment and returns the text that is safe to emit.
func (f *markerFilter) Feed(s string) string {
	f.pending += s
	cleaned := markerRe.ReplaceAllString(f.pending, "")

	if idx := markerStart(cleaned); idx >= 0 {
		f.pending = cleaned[idx:]
		return cleaned[:idx]
	}
	f.pending = ""
	return cleaned
}

// markerStart locates the earliest "[" from which the rest of s could still
// grow into a marker. File names may themselves contain "[", so the last
// bracket is not necessarily the right split point.
func markerStart(s string) int {
	for idx := strings.IndexByte(s, '['); idx >= 0; {
		if couldBeMarker(s[idx:]) {
			return idx
		}
		next := strings.IndexByte(s[idx+1:], '[')
		if next < 0 {
			return -1
		}
		idx += 1 + next
	}
	return -1
}

// Flush returns whatever was held back. Called once the stream ends; an
// unterminated marker is emitted as-is rather than swallowed.
func (f *markerFilter) Flush() string {
	out := f.pending
	f.pending = ""
	return out
}

// couldBeMarker reports whether s might still grow into a citation marker.
func couldBeMarker(s string) bool {
	if strings.Contains(s, "]") {
		return false
	}
	if len(s) < len(markerPrefix) {
		return strings.HasPrefix(markerPrefix, s)
	}
	return strings.HasPrefix(s, markerPrefix)
}

// ResolveCitations removes every marker from text and maps the cited names
// onto candidates. Matching is case-insensitive on file name; markers naming
// nothing the model was shown are dropped; repeat citations dedupe.
func ResolveCitations(text string, candidates []Candidate) (string, []models.Citation) {
	var (
		citations []models.Citation
		seen      = map[string]bool{}
	)

	for _, m := range markerRe.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(m[1])
		c, ok := matchCandidate(name, candidates)
		if !ok {
			continue
		}
		key := strings.ToLower(c.FileName)
		if seen[key] {
			continue
		}
		seen[key] = true
		citations = append(citations, models.Citation{
			FileName:     c.FileName,
			SourceFileID: c.SourceFileID,
			MimeType:     c.MimeType,
			ChunkIndex:   c.ChunkIndex,
		})
	}

	clean := strings.TrimSpace(markerRe.ReplaceAllString(text, ""))
	return clean, citations
}

func matchCandidate(name string, candidates []Candidate) (Candidate, bool) {
	for _, c := range candidates {
		if strings.EqualFold(c.FileName, name) {
			return c, true
		}
	}
	return Candidate{}, false
}

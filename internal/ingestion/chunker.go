package ingestion

import "strings"

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

// chunkSeparators are tried in order: heading boundaries first, then
// paragraph breaks, then line breaks. A chunk is cut at the last separator
// occurrence inside the window so splits land on structural boundaries
// whenever the text offers one.
var chunkSeparators = []string{"\n\n#", "\n\n", "\n"}

// Chunker splits document text into overlapping windows for embedding.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker returns a Chunker with the given window size and overlap.
// Non-positive values fall back to the defaults.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = defaultChunkOverlap
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split breaks text into chunks of at most the configured size, preferring
// to cut at structural separators and overlapping consecutive chunks so
// content near a boundary appears in both neighbors.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= c.size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + c.size
		if end >= len(text) {
			chunks = append(chunks, strings.TrimSpace(text[start:]))
			break
		}

		cut := c.findCut(text[start:end])
		chunk := strings.TrimSpace(text[start : start+cut])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := start + cut - c.overlap
		if next <= start {
			next = start + cut
		}
		start = next
	}
	return chunks
}

// findCut returns the cut position inside window, preferring the last
// occurrence of the highest-priority separator. Falls back to the full
// window when no separator is present.
func (c *Chunker) findCut(window string) int {
	// Ignore separators in the first half of the window so a heading right
	// at the start does not produce a degenerate cut.
	minCut := len(window) / 2
	for _, sep := range chunkSeparators {
		if idx := strings.LastIndex(window, sep); idx > minCut {
			return idx
		}
	}
	return len(window)
}

package ingest

import (
	"strings"
	"unicode"

	"github.com/docpal/docpal/internal/model/doc"
)

// Chunker splits extracted text into overlapping chunks of bounded size.
// The overlap exists so that answer-relevant context is not severed at a
// chunk boundary.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker returns a chunker with the given size and overlap in runes.
// Non-positive or inconsistent values fall back to 1000/150.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = 150
		if overlap >= size {
			overlap = size / 4
		}
	}
	return &Chunker{size: size, overlap: overlap}
}

// Chunk joins the text blocks and cuts them into chunks, snapping each cut
// back to the last whitespace inside the window so words stay intact, with
// a hard cut when a window holds a single unbroken token.
func (c *Chunker) Chunk(blocks []string) []doc.Chunk {
	text := strings.TrimSpace(strings.Join(blocks, "\n\n"))
	if text == "" {
		return nil
	}

	runes := []rune(text)
	var chunks []doc.Chunk
	add := func(piece []rune) {
		trimmed := strings.TrimSpace(string(piece))
		if trimmed != "" {
			chunks = append(chunks, doc.Chunk{Index: len(chunks), Text: trimmed})
		}
	}

	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			add(runes[start:])
			break
		}

		cut := end
		for cut > start && !unicode.IsSpace(runes[cut-1]) {
			cut--
		}
		if cut <= start {
			cut = end
		}
		add(runes[start:cut])

		next := cut - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

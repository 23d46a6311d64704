package rag

import (
	"strings"
)

// Chunker splits raw document text into overlapping, size-bounded segments.
// Chunking is deterministic and pure; the same text always yields the same
// chunks.
type Chunker struct {
	maxSize int
	overlap int
}

func NewChunker(maxSize, overlap int) (*Chunker, error) {
	if maxSize <= 0 {
		return nil, &ConfigurationError{Reason: "chunk size must be positive"}
	}
	if overlap < 0 {
		return nil, &ConfigurationError{Reason: "chunk overlap must not be negative"}
	}
	if overlap >= maxSize {
		return nil, &ConfigurationError{Reason: "chunk overlap must be smaller than chunk size"}
	}
	return &Chunker{maxSize: maxSize, overlap: overlap}, nil
}

// Chunk splits text into sentence-packed chunks of at most maxSize
// characters. Each chunk after the first is seeded with the trailing
// overlap characters of its predecessor; the seed shrinks when the next
// sentence would not fit beside it. Empty or whitespace-only input yields
// no chunks.
func (c *Chunker) Chunk(text string) []string {
	sentences := splitSentences(normalizeWhitespace(text))
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var buf string

	for _, sentence := range sentences {
		if len(sentence) > c.maxSize {
			// A single sentence that cannot fit gets word-level packing,
			// with no overlap inside the fallback.
			if buf != "" {
				chunks = append(chunks, buf)
			}
			pieces := c.packWords(sentence)
			chunks = append(chunks, pieces[:len(pieces)-1]...)
			buf = pieces[len(pieces)-1]
			continue
		}

		if cand := join(buf, sentence); len(cand) <= c.maxSize {
			buf = cand
			continue
		}

		chunks = append(chunks, buf)
		buf = join(c.overlapSeed(buf, sentence), sentence)
	}

	if buf != "" {
		chunks = append(chunks, buf)
	}
	return chunks
}

// overlapSeed returns the trailing overlap characters of the previous
// chunk, shrunk so that seed + sentence still fits within maxSize.
func (c *Chunker) overlapSeed(prev, sentence string) string {
	n := c.overlap
	if room := c.maxSize - len(sentence) - 1; n > room {
		n = room
	}
	if n <= 0 {
		return ""
	}
	return prev[len(prev)-n:]
}

func (c *Chunker) packWords(sentence string) []string {
	var pieces []string
	var buf string
	for _, word := range strings.Fields(sentence) {
		if cand := join(buf, word); len(cand) <= c.maxSize || buf == "" {
			buf = cand
			continue
		}
		pieces = append(pieces, buf)
		buf = word
	}
	if buf != "" {
		pieces = append(pieces, buf)
	}
	return pieces
}

func normalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func splitSentences(text string) []string {
	var sentences []string
	var sb strings.Builder
	for _, r := range text {
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(sb.String()); s != "" {
				sentences = append(sentences, s)
			}
			sb.Reset()
			continue
		}
		sb.WriteRune(r)
	}
	if s := strings.TrimSpace(sb.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func join(buf, next string) string {
	if buf == "" {
		return next
	}
	return buf + " " + next
}

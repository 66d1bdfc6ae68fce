// Package chunk splits source text into overlapping, line-aligned chunks sized for embedding.
package chunk

import (
	"math"
	"strings"
)

// Default chunking parameters, in characters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultMinChunkSize = 50
)

// Chunk is a contiguous line range of a file. Lines are 1-based and inclusive.
type Chunk struct {
	Text      string `json:"text"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// Options controls chunk sizing.
type Options struct {
	ChunkSize    int // target characters per chunk
	ChunkOverlap int // approximate characters repeated at the start of the next chunk
	MinChunkSize int // trailing remainders smaller than this are dropped
}

// DefaultOptions returns 1000/200/50.
func DefaultOptions() Options {
	return Options{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		MinChunkSize: DefaultMinChunkSize,
	}
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ChunkOverlap < 0 {
		o.ChunkOverlap = 0
	}
	if o.MinChunkSize < 0 {
		o.MinChunkSize = 0
	}
	return o
}

// Split walks text line by line and closes a chunk whenever the accumulated size
// reaches ChunkSize. The next chunk is seeded with enough trailing lines of the
// closed one to approximate ChunkOverlap characters. Overlap is line-granular, so
// it is approximate.
//
// A trailing remainder below MinChunkSize is dropped, unless it is the only chunk
// of the file. Empty or whitespace-only text yields no chunks.
func Split(text string, opts Options) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	opts = opts.withDefaults()
	lines := splitLines(text)

	var (
		chunks []Chunk
		cur    []string
		size   int
		start  = 1
		fresh  int // lines added since the last close
	)

	for i, line := range lines {
		cur = append(cur, line)
		size += len(line) + 1
		fresh++
		if size < opts.ChunkSize {
			continue
		}

		end := i + 1
		chunks = append(chunks, Chunk{
			Text:      strings.Join(cur, "\n"),
			StartLine: start,
			EndLine:   end,
		})

		keep := overlapLines(size, len(cur), opts.ChunkOverlap)
		cur = append([]string(nil), cur[len(cur)-keep:]...)
		size = textSize(cur)
		start = end - keep + 1
		fresh = 0
	}

	// A remainder made only of overlap lines is already covered.
	if fresh > 0 && (len(chunks) == 0 || size >= opts.MinChunkSize) {
		chunks = append(chunks, Chunk{
			Text:      strings.Join(cur, "\n"),
			StartLine: start,
			EndLine:   len(lines),
		})
	}
	return chunks
}

// overlapLines converts a character overlap into a line count using the average
// line length of the closed chunk, capped so a chunk never fully repeats.
func overlapLines(size, n, overlap int) int {
	if overlap <= 0 || n <= 1 || size <= 0 {
		return 0
	}
	avg := float64(size) / float64(n)
	k := int(math.Ceil(float64(overlap) / avg))
	if k > n-1 {
		k = n - 1
	}
	return k
}

func textSize(lines []string) int {
	n := 0
	for _, l := range lines {
		n += len(l) + 1
	}
	return n
}

// splitLines splits on '\n'. A single trailing newline terminates the last line
// rather than starting an empty one.
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Package segment splits Markdown documents into ordered, size-bounded chunks.
//
// Chunks follow heading boundaries (levels 1 to 3). A chunk that is still
// larger than the size bound is cut at blank-line paragraph boundaries.
// Every chunk remembers the separator it was cut at, so Join restores the
// original document byte for byte.
package segment

import (
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

// DefaultMaxChunkSize is the size bound used when none is configured.
const DefaultMaxChunkSize = 8192

// paragraphSeparator delimits paragraphs inside a chunk.
const paragraphSeparator = "\n\n"

// headingPattern matches ATX headings of depth 1 to 3.
var headingPattern = regexp.MustCompile(`^(#{1,3})\s+(.+)$`)

// Chunk is a contiguous unit of a document.
type Chunk struct {
	// Level is the heading depth (1-3) that opened the chunk, 0 if un-headed.
	Level int
	// Text is the chunk content without its trailing blank lines.
	Text string
	// Position is the 0-based line index at which the chunk starts.
	Position int

	part      int    // sub-split index within Position
	separator string // trailing text trimmed from Text
}

// Part returns the sub-split index of the chunk within its position.
// It is 0 for chunks that were not sub-split.
func (c Chunk) Part() int {
	return c.part
}

// Separator returns the text that followed Text in the original document,
// up to the next chunk (exclusive of the joining newline).
func (c Chunk) Separator() string {
	return c.separator
}

// Len returns the length of Text in characters.
func (c Chunk) Len() int {
	return utf8.RuneCountInString(c.Text)
}

// IsBlank reports whether the chunk holds only whitespace.
func (c Chunk) IsBlank() bool {
	return strings.TrimSpace(c.Text) == ""
}

// WithText returns a copy of c carrying text instead of its own content.
// Level, position, part and separator are preserved.
func (c Chunk) WithText(text string) Chunk {
	c.Text = text
	return c
}

// Segment splits document into chunks at headings, then sub-splits chunks
// longer than maxChunkSize characters at paragraph boundaries.
// maxChunkSize <= 0 disables the size bound.
// An empty document yields no chunks.
func Segment(document string, maxChunkSize int) []Chunk {
	if document == "" {
		return nil
	}

	var chunks []Chunk
	for _, c := range splitHeadings(document) {
		if maxChunkSize > 0 && c.Len() > maxChunkSize {
			chunks = append(chunks, splitLarge(c, maxChunkSize)...)
			continue
		}
		chunks = append(chunks, c)
	}
	return chunks
}

// splitHeadings cuts the document into one chunk per heading section.
func splitHeadings(document string) []Chunk {
	lines := strings.Split(document, "\n")

	var chunks []Chunk
	var current []string
	level, start := 0, 0
	fence := "" // opening marker of the current code block

	for i, line := range lines {
		if m := fenceMarker(line); m != "" {
			switch {
			case fence == "":
				fence = m
			case closesFence(line, m, fence):
				fence = ""
			}
			current = append(current, line)
			continue
		}
		if m := headingPattern.FindStringSubmatch(line); m != nil && fence == "" {
			if len(current) > 0 {
				chunks = append(chunks, newChunk(level, start, current))
			}
			level = len(m[1])
			start = i
			current = []string{line}
			continue
		}
		current = append(current, line)
	}

	if len(current) > 0 {
		chunks = append(chunks, newChunk(level, start, current))
	}
	return chunks
}

// fenceMarker returns the run of backticks or tildes (three or more) that
// starts line, or "" if line is not a fence line.
func fenceMarker(line string) string {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < 3 || (trimmed[0] != '`' && trimmed[0] != '~') {
		return ""
	}
	n := 0
	for n < len(trimmed) && trimmed[n] == trimmed[0] {
		n++
	}
	if n < 3 {
		return ""
	}
	return trimmed[:n]
}

// closesFence reports whether a fence line with marker m closes the block
// opened by open: same character, at least as long, nothing after it.
// Lines starting with '#' inside a fence are code, not headings.
func closesFence(line, m, open string) bool {
	if m[0] != open[0] || len(m) < len(open) {
		return false
	}
	return strings.TrimSpace(line) == m
}

// newChunk builds a chunk from its lines, moving trailing blank lines into
// the separator. A chunk made only of blank lines keeps them as text.
func newChunk(level, position int, lines []string) Chunk {
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	if end == 0 {
		return Chunk{Level: level, Position: position, Text: strings.Join(lines, "\n")}
	}

	c := Chunk{
		Level:    level,
		Position: position,
		Text:     strings.Join(lines[:end], "\n"),
	}
	if end < len(lines) {
		c.separator = "\n" + strings.Join(lines[end:], "\n")
	}
	return c
}

// splitLarge cuts an oversized chunk into paragraph-packed sub-chunks.
// Non-final sub-chunks carry the "\n" that, together with the joining
// newline, restores the paragraph separator they were cut at.
func splitLarge(c Chunk, maxChunkSize int) []Chunk {
	parts := Paragraphs(c.Text, maxChunkSize)
	if len(parts) <= 1 {
		return []Chunk{c}
	}

	out := make([]Chunk, len(parts))
	for i, text := range parts {
		out[i] = Chunk{
			Level:     c.Level,
			Text:      text,
			Position:  c.Position,
			part:      i,
			separator: "\n",
		}
	}
	out[len(out)-1].separator = c.separator
	return out
}

// Paragraphs greedily packs the blank-line separated paragraphs of text into
// groups of at most maxSize characters, separators included. A paragraph that
// alone exceeds maxSize forms its own group; nothing is dropped or truncated.
func Paragraphs(text string, maxSize int) []string {
	if text == "" {
		return nil
	}
	paragraphs := strings.Split(text, paragraphSeparator)
	if maxSize <= 0 {
		return []string{text}
	}

	sepLen := utf8.RuneCountInString(paragraphSeparator)

	var groups []string
	var current strings.Builder
	count, currentSize := 0, 0

	for _, para := range paragraphs {
		paraSize := utf8.RuneCountInString(para)

		if count > 0 && currentSize+sepLen+paraSize > maxSize {
			groups = append(groups, current.String())
			current.Reset()
			count, currentSize = 0, 0
		}

		if count > 0 {
			current.WriteString(paragraphSeparator)
			currentSize += sepLen
		}
		current.WriteString(para)
		currentSize += paraSize
		count++
	}

	if count > 0 {
		groups = append(groups, current.String())
	}
	return groups
}

// Sort orders chunks by position, then by sub-split index.
// The sort is stable: chunks with equal keys keep their relative order.
func Sort(chunks []Chunk) {
	slices.SortStableFunc(chunks, compare)
}

func compare(a, b Chunk) int {
	if a.Position != b.Position {
		return a.Position - b.Position
	}
	return a.part - b.part
}

// Join reassembles chunks in position order. Each chunk contributes its
// text and separator; pieces are joined with a single newline.
// Join does not modify the given slice.
func Join(chunks []Chunk) string {
	sorted := slices.Clone(chunks)
	Sort(sorted)

	pieces := make([]string, len(sorted))
	for i, c := range sorted {
		pieces[i] = c.Text + c.separator
	}
	return strings.Join(pieces, "\n")
}

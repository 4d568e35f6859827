// Package transcript parses SRT subtitle files and groups their entries into
// time windows of plain prose.
package transcript

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformed indicates the input is not a valid SRT transcript.
var ErrMalformed = errors.New("malformed transcript")

// Defaults for windowing.
const (
	DefaultWindow       = 60 * time.Minute
	DefaultParagraphGap = 2 * time.Second
)

const timingArrow = "-->"

// Entry is one subtitle cue.
type Entry struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// Window is a time-bounded group of entries.
type Window struct {
	Index   int // 0-based
	Start   time.Duration
	End     time.Duration
	Entries []Entry
}

// Text merges the window's entries into plain paragraphs: index and timing
// lines are gone, cue lines are joined with spaces, and a pause of at least
// gap between two cues starts a new paragraph. gap <= 0 yields one paragraph.
func (w Window) Text(gap time.Duration) string {
	return PlainText(w.Entries, gap)
}

// ParseTimestamp parses an SRT timestamp "HH:MM:SS,mmm".
// A '.' millisecond separator is accepted as well.
func ParseTimestamp(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	clock, millis, ok := strings.Cut(strings.Replace(s, ".", ",", 1), ",")
	if !ok {
		return 0, fmt.Errorf("timestamp %q: missing milliseconds: %w", s, ErrMalformed)
	}

	fields := strings.Split(clock, ":")
	if len(fields) != 3 {
		return 0, fmt.Errorf("timestamp %q: want HH:MM:SS,mmm: %w", s, ErrMalformed)
	}

	var parts [4]int
	for i, f := range append(fields, millis) {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("timestamp %q: invalid field %q: %w", s, f, ErrMalformed)
		}
		parts[i] = n
	}
	if parts[1] > 59 || parts[2] > 59 || parts[3] > 999 {
		return 0, fmt.Errorf("timestamp %q: field out of range: %w", s, ErrMalformed)
	}

	return time.Duration(parts[0])*time.Hour +
		time.Duration(parts[1])*time.Minute +
		time.Duration(parts[2])*time.Second +
		time.Duration(parts[3])*time.Millisecond, nil
}

// FormatTimestamp renders d as an SRT timestamp.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	ms := (d % time.Second) / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// Parse reads an SRT document. Blocks are separated by blank lines; each
// block holds an index line, a timing line and one or more text lines.
// Returns ErrMalformed if no block can be parsed or a block is broken.
func Parse(input string) ([]Entry, error) {
	input = strings.ReplaceAll(input, "\r\n", "\n")
	input = strings.TrimPrefix(input, "\ufeff")

	var entries []Entry
	for n, block := range splitBlocks(input) {
		e, err := parseBlock(block)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", n+1, err)
		}
		entries = append(entries, e)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("no subtitle entries: %w", ErrMalformed)
	}
	return entries, nil
}

// splitBlocks groups non-blank lines into blocks.
func splitBlocks(input string) [][]string {
	var blocks [][]string
	var current []string
	for _, line := range strings.Split(input, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				blocks = append(blocks, current)
				current = nil
			}
			continue
		}
		current = append(current, strings.TrimRight(line, " \t"))
	}
	if len(current) > 0 {
		blocks = append(blocks, current)
	}
	return blocks
}

func parseBlock(lines []string) (Entry, error) {
	if len(lines) < 2 {
		return Entry{}, fmt.Errorf("want index and timing lines: %w", ErrMalformed)
	}

	index, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return Entry{}, fmt.Errorf("invalid index %q: %w", lines[0], ErrMalformed)
	}

	startStr, endStr, ok := strings.Cut(lines[1], timingArrow)
	if !ok {
		return Entry{}, fmt.Errorf("invalid timing line %q: %w", lines[1], ErrMalformed)
	}
	// Position hints may follow the end timestamp ("00:00:02,000 X1:...").
	endFields := strings.Fields(endStr)
	if len(endFields) == 0 {
		return Entry{}, fmt.Errorf("missing end timestamp in %q: %w", lines[1], ErrMalformed)
	}

	start, err := ParseTimestamp(startStr)
	if err != nil {
		return Entry{}, err
	}
	end, err := ParseTimestamp(endFields[0])
	if err != nil {
		return Entry{}, err
	}
	if end < start {
		return Entry{}, fmt.Errorf("cue %d ends before it starts: %w", index, ErrMalformed)
	}

	text := make([]string, 0, len(lines)-2)
	for _, l := range lines[2:] {
		text = append(text, strings.TrimSpace(l))
	}

	return Entry{
		Index: index,
		Start: start,
		End:   end,
		Text:  strings.Join(text, " "),
	}, nil
}

// Windows groups entries into consecutive windows of the given duration.
// An entry belongs to window k (0-based) when k*window < End <= (k+1)*window;
// windows without entries are skipped. window <= 0 yields a single window.
func Windows(entries []Entry, window time.Duration) []Window {
	if len(entries) == 0 {
		return nil
	}

	var windows []Window
	last := -1
	for _, e := range entries {
		slot := 0
		if window > 0 && e.End > 0 {
			slot = int((e.End - 1) / window)
		}
		if len(windows) == 0 || slot != last {
			windows = append(windows, Window{Index: len(windows), Start: e.Start})
			last = slot
		}
		w := &windows[len(windows)-1]
		w.Entries = append(w.Entries, e)
		w.End = e.End
	}
	return windows
}

// PlainText strips numbering and timing from entries and merges their text
// into paragraphs separated by blank lines. A pause of at least gap between
// two cues starts a new paragraph; gap <= 0 never breaks.
func PlainText(entries []Entry, gap time.Duration) string {
	var paragraphs []string
	var current []string

	for i, e := range entries {
		if i > 0 && gap > 0 && e.Start-entries[i-1].End >= gap && len(current) > 0 {
			paragraphs = append(paragraphs, strings.Join(current, " "))
			current = nil
		}
		if e.Text != "" {
			current = append(current, e.Text)
		}
	}
	if len(current) > 0 {
		paragraphs = append(paragraphs, strings.Join(current, " "))
	}
	return strings.Join(paragraphs, "\n\n")
}

// Duration returns the end time of the last entry.
func Duration(entries []Entry) time.Duration {
	if len(entries) == 0 {
		return 0
	}
	return entries[len(entries)-1].End
}

package pipeline

import (
	"fmt"

	"github.com/amanullahtanweer/chapter-transcriber/internal/media"
)

// Segment is a titled range of the source audio, in seconds. A segment whose
// end truncates to zero milliseconds stands for the whole file.
type Segment struct {
	Start float64
	End   float64
	Title string
}

// WholeFile reports whether s is the no-slice sentinel.
func (s Segment) WholeFile() bool {
	return s.EndMs() <= 0
}

// StartMs is the start offset truncated to milliseconds.
func (s Segment) StartMs() int64 { return int64(s.Start * 1000) }

// EndMs is the end offset truncated to milliseconds.
func (s Segment) EndMs() int64 { return int64(s.End * 1000) }

// Plan returns the chapters as segments in their given order, or a single
// whole-file segment when there are none.
func Plan(chapters []media.Chapter) []Segment {
	if len(chapters) == 0 {
		return []Segment{{}}
	}
	segments := make([]Segment, len(chapters))
	for i, ch := range chapters {
		segments[i] = Segment{Start: ch.Start, End: ch.End, Title: ch.Title}
	}
	return segments
}

// FormatChapter renders one transcribed segment as a markdown section. Timing
// is shown for sliced segments only.
func FormatChapter(seg Segment, text string) string {
	out := "## " + seg.Title + "\n"
	if !seg.WholeFile() {
		out += clock(seg.Start) + " - " + clock(seg.End) + "\n"
	}
	return out + text + "\n"
}

// clock renders whole seconds as HH:MM:SS; hours are not wrapped at 24.
func clock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int64(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

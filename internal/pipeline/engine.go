package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/amanullahtanweer/chapter-transcriber/internal/events"
	"github.com/amanullahtanweer/chapter-transcriber/internal/metrics"
	"github.com/amanullahtanweer/chapter-transcriber/internal/transcriber"
)

// FailurePolicy decides what a failed segment does to the rest of the job.
type FailurePolicy string

const (
	// PolicyAbort stops at the first failed segment and fails the job.
	PolicyAbort FailurePolicy = "abort"
	// PolicySkip leaves failed segments out of the document and carries on.
	// The job still fails when no segment succeeds.
	PolicySkip FailurePolicy = "skip"
)

// Slicer cuts [startMs, endMs) out of src into a new file under dir.
type Slicer interface {
	Extract(ctx context.Context, src string, startMs, endMs int64, dir string) (string, error)
}

// Engine transcribes segments one by one and publishes each result as soon
// as it is ready.
type Engine struct {
	recognizer transcriber.Recognizer
	slicer     Slicer
	policy     FailurePolicy
	language   string
	logger     hclog.Logger
}

// NewEngine returns an Engine. An empty policy means PolicyAbort.
func NewEngine(recognizer transcriber.Recognizer, slicer Slicer, policy FailurePolicy, language string, logger hclog.Logger) *Engine {
	if policy == "" {
		policy = PolicyAbort
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Engine{
		recognizer: recognizer,
		slicer:     slicer,
		policy:     policy,
		language:   language,
		logger:     logger.Named("engine"),
	}
}

// RunInput is everything one transcription run needs.
type RunInput struct {
	AudioPath  string
	ScratchDir string
	Model      string
	Precision  string
	Segments   []Segment
	Metrics    *metrics.JobMetrics
}

// ChapterResult is one transcribed segment.
type ChapterResult struct {
	Index   int // 1-based position in the plan
	Segment Segment
	Text    string
	Section string
	Took    time.Duration
}

// Transcript is the outcome of a run.
type Transcript struct {
	Chapters []ChapterResult
	Failed   []int
	Elapsed  time.Duration
}

// Body concatenates the formatted sections in plan order.
func (t Transcript) Body() string {
	var b strings.Builder
	for _, ch := range t.Chapters {
		b.WriteString(ch.Section)
	}
	return b.String()
}

// Run transcribes in.Segments in order. After each segment it publishes a
// chapter event; a publish error ends the run and is returned unchanged.
func (e *Engine) Run(ctx context.Context, in RunInput, publish func(events.Event) error) (Transcript, error) {
	var out Transcript
	for i, seg := range in.Segments {
		index := i + 1
		started := time.Now()
		text, err := e.transcribeSegment(ctx, in, seg)
		took := time.Since(started)
		out.Elapsed += took

		if err != nil {
			if ctx.Err() != nil {
				return out, context.Cause(ctx)
			}
			if in.Metrics != nil {
				in.Metrics.AddFailure(took)
			}
			failure := stageError(KindTranscription, "transcribe", err, "chapter %d %q failed", index, seg.Title)
			if e.policy == PolicySkip {
				e.logger.Warn("skipping failed chapter", "index", index, "title", seg.Title, "error", err)
				out.Failed = append(out.Failed, index)
				continue
			}
			return out, failure
		}

		if in.Metrics != nil {
			in.Metrics.AddSegment(text, took)
		}
		result := ChapterResult{
			Index:   index,
			Segment: seg,
			Text:    text,
			Section: FormatChapter(seg, text),
			Took:    took,
		}
		out.Chapters = append(out.Chapters, result)
		e.logger.Debug("chapter transcribed", "index", index, "title", seg.Title, "took", took, "chars", len(text))

		if err := publish(events.Chapter(index, seg.Title, result.Section)); err != nil {
			return out, err
		}
	}

	if len(out.Chapters) == 0 && len(out.Failed) > 0 {
		return out, stageError(KindTranscription, "transcribe", nil, "all %d chapters failed", len(out.Failed))
	}
	return out, nil
}

func (e *Engine) transcribeSegment(ctx context.Context, in RunInput, seg Segment) (string, error) {
	path := in.AudioPath
	if !seg.WholeFile() && seg.EndMs() <= seg.StartMs() {
		// A zero-length chapter, such as a marker, has nothing to recognize.
		e.logger.Debug("empty chapter range", "title", seg.Title, "start_ms", seg.StartMs(), "end_ms", seg.EndMs())
		return "", nil
	}
	if !seg.WholeFile() {
		sliced, err := e.slicer.Extract(ctx, in.AudioPath, seg.StartMs(), seg.EndMs(), in.ScratchDir)
		if err != nil {
			return "", fmt.Errorf("failed to slice audio: %w", err)
		}
		defer os.Remove(sliced)
		path = sliced
	}
	return e.recognize(ctx, transcriber.Request{
		AudioPath: path,
		Model:     in.Model,
		Precision: in.Precision,
		Language:  e.language,
	})
}

// recognize runs the blocking backend call on its own goroutine so the
// caller can stop waiting as soon as ctx ends.
func (e *Engine) recognize(ctx context.Context, req transcriber.Request) (string, error) {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := e.recognizer.Recognize(ctx, req)
		done <- result{text: strings.TrimSpace(text), err: err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", context.Cause(ctx)
	}
}

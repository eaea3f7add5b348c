package pipeline

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/amanullahtanweer/chapter-transcriber/internal/events"
	"github.com/amanullahtanweer/chapter-transcriber/internal/media"
	"github.com/amanullahtanweer/chapter-transcriber/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanWithoutChaptersYieldsSentinel(t *testing.T) {
	for _, chapters := range [][]media.Chapter{nil, {}} {
		segments := Plan(chapters)
		require.Len(t, segments, 1)
		assert.Equal(t, Segment{}, segments[0])
		assert.True(t, segments[0].WholeFile())
	}
}

func TestPlanKeepsChaptersVerbatim(t *testing.T) {
	chapters := []media.Chapter{
		{Start: 0, End: 61.5, Title: "Intro"},
		{Start: 61.5, End: 130, Title: "Body"},
	}
	segments := Plan(chapters)
	assert.Equal(t, []Segment{
		{Start: 0, End: 61.5, Title: "Intro"},
		{Start: 61.5, End: 130, Title: "Body"},
	}, segments)
	assert.False(t, segments[0].WholeFile())
}

func TestSegmentMillisecondsTruncate(t *testing.T) {
	seg := Segment{Start: 1.2349, End: 2.9999}
	assert.Equal(t, int64(1234), seg.StartMs())
	assert.Equal(t, int64(2999), seg.EndMs())
	assert.True(t, Segment{End: 0.0004}.WholeFile())
}

func TestFormatChapter(t *testing.T) {
	timed := FormatChapter(Segment{Start: 59.9, End: 3725.2, Title: "Part 1"}, "hello world")
	assert.Equal(t, "## Part 1\n00:00:59 - 01:02:05\nhello world\n", timed)

	whole := FormatChapter(Segment{}, "all of it")
	assert.Equal(t, "## \nall of it\n", whole)

	long := FormatChapter(Segment{Start: 90000, End: 90061, Title: "late"}, "x")
	assert.Equal(t, "## late\n25:00:00 - 25:01:01\nx\n", long)
}

func TestAssembleFrontMatter(t *testing.T) {
	doc, err := Assemble(DocumentInput{
		SourceURL: "https://video/x",
		Filename:  "My_Talk",
		Metadata: media.Metadata{
			Tags:        []string{"machine learning", "go"},
			Description: "line one\r\nline two\nline three",
			Duration:    3725.4,
			ChannelName: "Chan",
		},
		Quality:              "small",
		Compute:              "float16",
		TranscriptionSeconds: 12.345,
		Body:                 "## A\ntext\n",
	})
	require.NoError(t, err)

	assert.Contains(t, doc, "---\nsource url: https://video/x\n")
	assert.Contains(t, doc, "filename: My_Talk\n")
	assert.Contains(t, doc, "#machine-learning #go")
	assert.Contains(t, doc, "description: line one line two line three\n")
	assert.Contains(t, doc, "duration: 1h 2m 5s\n")
	assert.Contains(t, doc, "audio quality: small\n")
	assert.Contains(t, doc, "compute type: float16\n")
	assert.Contains(t, doc, "transcription time: 12.3\n")
	assert.Contains(t, doc, "channel name: Chan\n")
	assert.Contains(t, doc, "upload date: \"\"\n")
	assert.Contains(t, doc, "---\n## A\ntext\n")
}

func TestAssembleSubstitutesUnserializableFields(t *testing.T) {
	doc, err := Assemble(DocumentInput{
		Filename:             "clip",
		Quality:              "default",
		TranscriptionSeconds: math.NaN(),
		Body:                 "body\n",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSerialization)
	assert.Equal(t, KindSerialization, KindOf(err))
	assert.Contains(t, doc, "transcription time: 0.0\n")
	assert.Contains(t, doc, "source url: \"\"\n")
	assert.Contains(t, doc, "filename: clip\n")
	assert.Contains(t, doc, "---\nbody\n")
}

func TestEngineAbortsOnFirstFailure(t *testing.T) {
	rec := &fakeRecognizer{failOn: 2}
	slicer := &fakeSlicer{}
	engine := NewEngine(rec, slicer, PolicyAbort, "en", nil)
	jm := metrics.NewJobMetrics("fake", "job")

	var got []events.Event
	transcript, err := engine.Run(context.Background(), RunInput{
		AudioPath:  "/audio.mp3",
		ScratchDir: t.TempDir(),
		Model:      "small",
		Segments:   Plan(threeChapters()),
		Metrics:    jm,
	}, collect(&got))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTranscription)
	assert.Contains(t, err.Error(), "chapter 2")
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Index)
	assert.Len(t, transcript.Chapters, 1)
	assert.Equal(t, 2, rec.callCount())
	assert.Equal(t, 1, jm.FailedSegments)

	reqs := rec.requests()
	assert.Equal(t, "en", reqs[0].Language)
	assert.Equal(t, "small", reqs[0].Model)
	assert.NotEqual(t, "/audio.mp3", reqs[0].AudioPath)
	assert.Equal(t, [][2]int64{{0, 10000}, {10000, 20500}}, slicer.ranges())
	assert.Empty(t, slicer.remaining(), "slices are removed after use")
}

func TestEngineSkipPolicyContinues(t *testing.T) {
	rec := &fakeRecognizer{failOn: 2}
	engine := NewEngine(rec, &fakeSlicer{}, PolicySkip, "", nil)

	var got []events.Event
	transcript, err := engine.Run(context.Background(), RunInput{
		AudioPath:  "/audio.mp3",
		ScratchDir: t.TempDir(),
		Segments:   Plan(threeChapters()),
	}, collect(&got))

	require.NoError(t, err)
	assert.Equal(t, []int{2}, transcript.Failed)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Index)
	assert.Equal(t, 3, got[1].Index)
	assert.NotContains(t, transcript.Body(), "## Two")
}

func TestEngineSkipPolicyFailsWhenNothingSucceeds(t *testing.T) {
	rec := &fakeRecognizer{failAll: true}
	engine := NewEngine(rec, &fakeSlicer{}, PolicySkip, "", nil)

	_, err := engine.Run(context.Background(), RunInput{AudioPath: "/a.wav", Segments: Plan(nil)}, collect(new([]events.Event)))
	assert.ErrorIs(t, err, ErrTranscription)
}

func TestEngineWholeFileSkipsSlicing(t *testing.T) {
	rec := &fakeRecognizer{}
	slicer := &fakeSlicer{}
	engine := NewEngine(rec, slicer, PolicyAbort, "", nil)

	var got []events.Event
	transcript, err := engine.Run(context.Background(), RunInput{AudioPath: "/a.wav", Segments: Plan(nil)}, collect(&got))
	require.NoError(t, err)
	assert.Empty(t, slicer.ranges())
	assert.Equal(t, "/a.wav", rec.requests()[0].AudioPath)
	require.Len(t, got, 1)
	assert.Equal(t, "## \ntext 1\n", got[0].Text)
	assert.Equal(t, "## \ntext 1\n", transcript.Body())
}

func TestEngineStopsWhenCancelled(t *testing.T) {
	rec := &fakeRecognizer{block: true, started: make(chan struct{}, 1)}
	engine := NewEngine(rec, &fakeSlicer{}, PolicyAbort, "", nil)
	ctx, cancel := context.WithCancelCause(context.Background())

	go func() {
		<-rec.started
		cancel(ErrSuperseded)
	}()
	_, err := engine.Run(ctx, RunInput{AudioPath: "/a.wav", Segments: Plan(nil)}, collect(new([]events.Event)))
	assert.ErrorIs(t, err, ErrSuperseded)
}

func TestEngineReturnsPublishError(t *testing.T) {
	gone := errors.New("gone")
	rec := &fakeRecognizer{}
	engine := NewEngine(rec, &fakeSlicer{}, PolicyAbort, "", nil)

	_, err := engine.Run(context.Background(), RunInput{
		AudioPath: "/a.wav", ScratchDir: t.TempDir(), Segments: Plan(threeChapters()),
	}, func(events.Event) error { return gone })
	assert.ErrorIs(t, err, gone)
	assert.Equal(t, 1, rec.callCount())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindInvalidInput, KindOf(media.ErrInvalidInput))
	assert.Equal(t, KindSuperseded, KindOf(ErrSuperseded))
	assert.Equal(t, KindCancelled, KindOf(context.Canceled))
	assert.Equal(t, KindAcquisition, KindOf(stageError(KindAcquisition, "acquire", errors.New("x"), "boom")))
	assert.Equal(t, KindSuperseded, KindOf(stageError(KindTranscription, "transcribe", ErrSuperseded, "chapter 1")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestStageErrorMessage(t *testing.T) {
	err := stageError(KindAcquisition, "acquire", errors.New("http 403"), "could not acquire %s", "https://video/x")
	assert.Equal(t, "acquire: could not acquire https://video/x: http 403", err.Error())
	assert.ErrorIs(t, err, ErrAcquisition)

	bare := &StageError{Kind: KindTranscription, Stage: "transcribe"}
	assert.Equal(t, "transcribe: transcription failed", bare.Error())
}

func TestExportWritesMarkdown(t *testing.T) {
	dir := t.TempDir()
	s := &Service{opts: Options{OutputDir: filepath.Join(dir, "out")}}
	path, err := s.export("My_Talk", "doc")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "My_Talk.md"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "doc", string(data))
}

func TestEngineZeroLengthChapterYieldsEmptySection(t *testing.T) {
	rec := &fakeRecognizer{}
	slicer := &fakeSlicer{}
	engine := NewEngine(rec, slicer, PolicyAbort, "", nil)
	segments := Plan([]media.Chapter{
		{Start: 0, End: 10, Title: "Intro"},
		{Start: 10, End: 10, Title: "Marker"},
		{Start: 10, End: 20, Title: "Talk"},
	})

	var got []events.Event
	transcript, err := engine.Run(context.Background(), RunInput{
		AudioPath: "/a.wav", ScratchDir: t.TempDir(), Segments: segments,
	}, collect(&got))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 2, got[1].Index)
	assert.Equal(t, "## Marker\n00:00:10 - 00:00:10\n\n", got[1].Text)
	assert.Equal(t, [][2]int64{{0, 10000}, {10000, 20000}}, slicer.ranges())
	assert.Equal(t, 2, rec.callCount())
	assert.Len(t, transcript.Chapters, 3)
	assert.Empty(t, transcript.Failed)
}

func TestSubSecondChapterIsStillSliced(t *testing.T) {
	seg := Plan([]media.Chapter{{Start: 0, End: 0.5, Title: "Blip"}})[0]
	assert.False(t, seg.WholeFile())
	assert.Equal(t, int64(500), seg.EndMs())

	seg = Plan([]media.Chapter{{Start: 0, End: 0.0004, Title: "Tick"}})[0]
	assert.True(t, seg.WholeFile())
}

func TestKindOfPrefersFixedOrder(t *testing.T) {
	both := errors.Join(ErrTranscription, ErrAcquisition)
	for i := 0; i < 20; i++ {
		assert.Equal(t, KindAcquisition, KindOf(both))
	}
	assert.Equal(t, KindInvalidInput, KindOf(errors.Join(ErrSerialization, ErrInvalidInput)))
}

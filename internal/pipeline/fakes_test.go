package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/amanullahtanweer/chapter-transcriber/internal/acquire"
	"github.com/amanullahtanweer/chapter-transcriber/internal/events"
	"github.com/amanullahtanweer/chapter-transcriber/internal/media"
	"github.com/amanullahtanweer/chapter-transcriber/internal/session"
	"github.com/amanullahtanweer/chapter-transcriber/internal/transcriber"
)

func threeChapters() []media.Chapter {
	return []media.Chapter{
		{Start: 0, End: 10, Title: "One"},
		{Start: 10, End: 20.5, Title: "Two"},
		{Start: 20.5, End: 30, Title: "Three"},
	}
}

func collect(out *[]events.Event) func(events.Event) error {
	return func(e events.Event) error {
		*out = append(*out, e)
		return nil
	}
}

type fakeRecognizer struct {
	mu      sync.Mutex
	calls   []transcriber.Request
	failOn  int
	failAll bool
	block   bool
	started chan struct{}
}

func (r *fakeRecognizer) Name() string { return "fake" }

func (r *fakeRecognizer) Recognize(ctx context.Context, req transcriber.Request) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, req)
	n := len(r.calls)
	r.mu.Unlock()

	if r.block {
		if r.started != nil {
			select {
			case r.started <- struct{}{}:
			default:
			}
		}
		<-ctx.Done()
		return "", ctx.Err()
	}
	if r.failAll || n == r.failOn {
		return "", errors.New("backend exploded")
	}
	return fmt.Sprintf("text %d", n), nil
}

func (r *fakeRecognizer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *fakeRecognizer) requests() []transcriber.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transcriber.Request(nil), r.calls...)
}

type fakeSlicer struct {
	mu    sync.Mutex
	cuts  [][2]int64
	files []string
}

func (s *fakeSlicer) Extract(ctx context.Context, src string, startMs, endMs int64, dir string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("segment-%d-%d.wav", startMs, endMs))
	if err := os.WriteFile(path, []byte("slice"), 0o644); err != nil {
		return "", err
	}
	s.cuts = append(s.cuts, [2]int64{startMs, endMs})
	s.files = append(s.files, path)
	return path, nil
}

func (s *fakeSlicer) ranges() [][2]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][2]int64(nil), s.cuts...)
}

// remaining lists slice files still on disk.
func (s *fakeSlicer) remaining() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, f := range s.files {
		if _, err := os.Stat(f); err == nil {
			out = append(out, f)
		}
	}
	return out
}

type fakeBackend struct {
	meta     media.Metadata
	metaErr  error
	progress []float64
}

func (b *fakeBackend) FetchMetadata(ctx context.Context, url string) (media.Metadata, error) {
	return b.meta.Clone(), b.metaErr
}

func (b *fakeBackend) Download(ctx context.Context, url, destDir, stem string, onProgress func(float64)) (string, error) {
	for _, p := range b.progress {
		onProgress(p)
	}
	path := filepath.Join(destDir, stem+".mp3")
	return path, os.WriteFile(path, []byte("audio"), 0o644)
}

type fakeProber struct{ seconds float64 }

func (p fakeProber) Duration(ctx context.Context, path string) (float64, error) {
	return p.seconds, nil
}

type harness struct {
	svc     *Service
	state   *session.State
	rec     *fakeRecognizer
	slicer  *fakeSlicer
	workDir string
}

func newHarness(t *testing.T, backend *fakeBackend, rec *fakeRecognizer, opts Options) *harness {
	t.Helper()
	if opts.WorkDir == "" {
		opts.WorkDir = t.TempDir()
	}
	if opts.StreamBuffer == 0 {
		opts.StreamBuffer = 8
	}
	state := session.New()
	slicer := &fakeSlicer{}
	acq := acquire.New(backend, fakeProber{seconds: 62.4}, nil)
	engine := NewEngine(rec, slicer, PolicyAbort, "", nil)
	return &harness{
		svc:     NewService(state, acq, engine, nil, opts, nil),
		state:   state,
		rec:     rec,
		slicer:  slicer,
		workDir: opts.WorkDir,
	}
}

// drain reads ch until it is closed.
func drain(t *testing.T, ch <-chan events.Event) []events.Event {
	t.Helper()
	var got []events.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, e)
		case <-timeout:
			t.Fatalf("stream did not finish; got %v", got)
			return got
		}
	}
}

func ofType(evs []events.Event, typ events.Type) []events.Event {
	var out []events.Event
	for _, e := range evs {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/amanullahtanweer/chapter-transcriber/internal/acquire"
	"github.com/amanullahtanweer/chapter-transcriber/internal/config"
	"github.com/amanullahtanweer/chapter-transcriber/internal/events"
	"github.com/amanullahtanweer/chapter-transcriber/internal/joblog"
	"github.com/amanullahtanweer/chapter-transcriber/internal/media"
	"github.com/amanullahtanweer/chapter-transcriber/internal/metrics"
	"github.com/amanullahtanweer/chapter-transcriber/internal/session"
	"github.com/amanullahtanweer/chapter-transcriber/internal/statestore"
)

// finalEventGrace bounds delivery of the terminal event once a run was cancelled.
const finalEventGrace = 500 * time.Millisecond

// Acquirer materializes job audio on local disk.
type Acquirer interface {
	Remote(ctx context.Context, url, workDir string, publish func(events.Event) error) (acquire.Result, error)
	Local(ctx context.Context, upload media.Upload, workDir string) (acquire.Result, error)
}

// Options configures a Service.
type Options struct {
	WorkDir         string
	OutputDir       string
	SaveTranscripts bool
	SaveEventLog    bool
	Profiles        config.Profiles
	Provider        string
	StreamBuffer    int
}

// SubmitRequest is one submission. Exactly one of RemoteURL and Upload must be set.
type SubmitRequest struct {
	RemoteURL string
	Upload    *media.Upload
	Quality   string
	Compute   string
}

// Ack acknowledges an accepted submission.
type Ack struct {
	JobID   string `json:"job_id"`
	Source  string `json:"source"`
	Quality string `json:"audio_quality"`
	Compute string `json:"compute_type"`
}

// Service owns the single live job. Submit replaces it; Stream drives it
// and reports its events.
type Service struct {
	state    *session.State
	acquirer Acquirer
	engine   *Engine
	store    statestore.Store
	opts     Options
	logger   hclog.Logger

	// mu serializes submissions and driver registration.
	mu      sync.Mutex
	cancel  context.CancelCauseFunc
	running chan struct{}
}

// NewService returns a Service. A nil store disables the job mirror.
func NewService(state *session.State, acquirer Acquirer, engine *Engine, store statestore.Store, opts Options, logger hclog.Logger) *Service {
	if store == nil {
		store = statestore.Nop{}
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if opts.WorkDir == "" {
		opts.WorkDir = filepath.Join(os.TempDir(), "chapter-transcriber")
	}
	if opts.StreamBuffer < 0 {
		opts.StreamBuffer = 0
	}
	if opts.Profiles.Quality == nil {
		opts.Profiles.Quality = config.DefaultQualityProfiles()
	}
	if opts.Profiles.Compute == nil {
		opts.Profiles.Compute = config.DefaultComputeProfiles()
	}
	if opts.Profiles.DefaultCompute == "" {
		opts.Profiles.DefaultCompute = config.DefaultComputeProfile
	}
	return &Service{
		state:    state,
		acquirer: acquirer,
		engine:   engine,
		store:    store,
		opts:     opts,
		logger:   logger.Named("pipeline"),
	}
}

// Status returns the current job and its readiness flags.
func (s *Service) Status() session.Status {
	return s.state.Status()
}

func (s *Service) jobDir(jobID string) string {
	return filepath.Join(s.opts.WorkDir, jobID)
}

// Submit validates req and installs it as the current job, replacing any
// previous one. Invalid submissions return an error matching ErrInvalidInput
// and leave the current job untouched. Uploaded files are stored before
// Submit returns, so their media is ready immediately.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (Ack, error) {
	ref, err := media.Resolve(req.RemoteURL, req.Upload)
	if err != nil {
		return Ack{}, err
	}
	quality := strings.TrimSpace(req.Quality)
	if quality == "" {
		quality = session.DefaultQuality
	}
	if _, ok := s.opts.Profiles.QualityModel(quality); !ok {
		return Ack{}, fmt.Errorf("%w: unknown audio quality %q", ErrInvalidInput, quality)
	}
	compute := strings.TrimSpace(req.Compute)
	if compute == "" {
		compute = s.opts.Profiles.DefaultCompute
	}
	if _, ok := s.opts.Profiles.ComputePrecision(compute); !ok {
		return Ack{}, fmt.Errorf("%w: unknown compute type %q", ErrInvalidInput, compute)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.supersede()
	s.state.Reset()

	jobID := uuid.NewString()
	uploadBytes := 0
	if ref.Kind == media.KindLocal {
		uploadBytes = len(req.Upload.Data)
	}
	s.state.Update(func(j *session.Job) {
		j.ID = jobID
		j.Source = ref
		j.Quality = quality
		j.Compute = compute
		j.UploadBytes = uploadBytes
		j.SubmittedAt = time.Now()
	})
	logger := s.logger.With("job_id", jobID)
	logger.Info("job submitted", "source", ref.Kind.String(), "locator", ref.Locator, "quality", quality, "compute", compute)

	if ref.Kind == media.KindLocal {
		res, err := s.acquirer.Local(ctx, *req.Upload, s.jobDir(jobID))
		if err != nil {
			failure := stageError(KindAcquisition, "acquire", err, "could not store upload %q", ref.Locator)
			s.state.Fail(jobID, failure)
			_ = os.RemoveAll(s.jobDir(jobID))
			logger.Error("upload rejected", "error", err)
			return Ack{}, failure
		}
		s.state.Update(func(j *session.Job) {
			j.AudioPath = res.Path
			j.Filename = res.Filename
			j.Metadata = res.Metadata
		})
		s.state.Gates().MediaReady.Set()
	}
	s.saveJob(ctx)

	return Ack{JobID: jobID, Source: ref.Kind.String(), Quality: quality, Compute: compute}, nil
}

// supersede ends the previous job. A running driver is cancelled and awaited;
// a job nobody streamed yet is failed directly. Must hold s.mu.
func (s *Service) supersede() {
	prev := s.state.Snapshot()
	if prev.ID == "" {
		return
	}
	if s.cancel != nil {
		s.cancel(ErrSuperseded)
		<-s.running
		s.cancel, s.running = nil, nil
	}
	s.state.Fail(prev.ID, ErrSuperseded)
	if err := os.RemoveAll(s.jobDir(prev.ID)); err != nil {
		s.logger.Warn("failed to remove work dir", "job_id", prev.ID, "error", err)
	}
	s.logger.Info("job superseded", "job_id", prev.ID)
}

// Close cancels the running driver, if any, and waits for it to exit.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel(ErrCancelled)
		<-s.running
		s.cancel, s.running = nil, nil
	}
	return s.store.Close()
}

// Stream returns the events of the current job. The first stream of a job
// drives it; streams opened while it runs, or after it ended, wait for the
// outcome and receive only the terminal event. The channel is closed after
// the terminal event or once ctx ends; callers must keep receiving until
// then or cancel ctx.
func (s *Service) Stream(ctx context.Context) <-chan events.Event {
	out := make(chan events.Event, s.opts.StreamBuffer)

	s.mu.Lock()
	jobID, gates, claimed := s.state.ClaimDriver()
	var runCtx context.Context
	var cancel context.CancelCauseFunc
	var done chan struct{}
	if claimed {
		runCtx, cancel = context.WithCancelCause(ctx)
		done = make(chan struct{})
		s.cancel, s.running = cancel, done
	}
	s.mu.Unlock()

	go func() {
		defer close(out)
		switch {
		case jobID == "":
			_ = events.NewPublisher(ctx, jobID, out).Publish(events.Error(string(KindNoJob), ErrNoJob.Error()))
		case claimed:
			defer close(done)
			defer cancel(nil)
			s.drive(ctx, runCtx, jobID, gates, events.NewPublisher(runCtx, jobID, out))
		default:
			s.follow(ctx, jobID, gates, events.NewPublisher(ctx, jobID, out))
		}
	}()
	return out
}

func (s *Service) follow(ctx context.Context, jobID string, gates session.Gates, pub *events.Publisher) {
	select {
	case <-gates.TranscriptReady.Done():
	case <-gates.Finished.Done():
	case <-ctx.Done():
		return
	}
	job := s.state.Snapshot()
	if job.ID != jobID {
		_ = pub.Publish(events.Error(string(KindSuperseded), ErrSuperseded.Error()))
		return
	}
	if gates.TranscriptReady.IsSet() {
		_ = pub.Publish(events.Done(job.Document, job.Filename))
		return
	}
	failure := job.Failure
	if failure == nil {
		failure = ErrCancelled
	}
	_ = pub.Publish(events.Error(string(KindOf(failure)), errorEventMessage(failure)))
}

// drive runs the job to completion. runCtx ends with the client, when the
// job is superseded or when the service closes; pub delivers until runCtx ends.
func (s *Service) drive(clientCtx, runCtx context.Context, jobID string, gates session.Gates, pub *events.Publisher) {
	logger := s.logger.With("job_id", jobID)
	job := s.state.Snapshot()
	started := time.Now()
	jm := metrics.NewJobMetrics(s.opts.Provider, jobID)

	pub.AddSink(s.store.Sink(jobID))
	var jl *joblog.Logger
	if s.opts.SaveEventLog {
		var err error
		if jl, err = joblog.New(s.opts.OutputDir, jobID, started); err != nil {
			logger.Warn("event log disabled", "error", err)
		} else {
			pub.AddSink(jl)
			jl.LogJobStart(jobID, job.Source.Locator, job.Quality, job.Compute, started)
		}
	}

	logger.Info("job started", "source", job.Source.Kind.String())
	err := s.run(runCtx, logger, jobID, gates, jm, pub.Publish)
	outcome := "done"
	if err != nil && gates.TranscriptReady.IsSet() {
		// The document is stored; only its delivery to this client failed.
		logger.Warn("done event not delivered", "error", err)
		err = nil
	}
	if err != nil {
		if runCtx.Err() != nil {
			err = s.cancelCause(clientCtx, runCtx, err)
		}
		outcome = string(KindOf(err))
		s.state.Fail(jobID, err)
		if errors.Is(err, ErrCancelled) || errors.Is(err, ErrSuperseded) {
			logger.Info("job stopped", "reason", outcome)
		} else {
			logger.Error("job failed", "kind", outcome, "error", err)
		}
		s.publishFinal(clientCtx, runCtx, pub, events.Error(outcome, errorEventMessage(err)))
	}

	jm.Finalize()
	logger.Info("job finished", append([]interface{}{"outcome", outcome, "took", time.Since(started).Round(time.Millisecond)}, jm.Fields()...)...)
	if jl != nil {
		jl.LogJobEnd(jobID, time.Now(), outcome)
		_ = jl.Close()
	}
	s.state.Finish(jobID)
	s.saveJob(context.WithoutCancel(clientCtx))
	if err := os.RemoveAll(s.jobDir(jobID)); err != nil {
		logger.Warn("failed to remove work dir", "error", err)
	}
}

// publishFinal delivers the terminal event of a failed run. Delivery waits on
// the client for as long as the run is live; once runCtx is over it gets
// finalEventGrace more, so a stalled consumer cannot hold up a superseding Submit.
func (s *Service) publishFinal(clientCtx, runCtx context.Context, pub *events.Publisher, e events.Event) {
	ctx, cancel := context.WithCancel(clientCtx)
	defer cancel()
	stop := context.AfterFunc(runCtx, func() {
		select {
		case <-time.After(finalEventGrace):
			cancel()
		case <-ctx.Done():
		}
	})
	defer stop()

	if err := pub.PublishContext(ctx, e); err != nil {
		s.logger.Debug("terminal event not delivered", "job_id", pub.JobID(), "type", string(e.Type), "error", err)
	}
}

// cancelCause turns a cancelled run into ErrSuperseded or ErrCancelled.
func (s *Service) cancelCause(clientCtx, runCtx context.Context, err error) error {
	cause := context.Cause(runCtx)
	switch {
	case errors.Is(cause, ErrSuperseded), errors.Is(cause, ErrCancelled):
		return cause
	case clientCtx.Err() != nil:
		return fmt.Errorf("%w: client disconnected", ErrCancelled)
	default:
		return err
	}
}

func (s *Service) run(ctx context.Context, logger hclog.Logger, jobID string, gates session.Gates, jm *metrics.JobMetrics, publish func(events.Event) error) error {
	job := s.state.Snapshot()
	workDir := s.jobDir(jobID)

	if job.Source.Kind == media.KindRemote && !gates.MediaReady.IsSet() {
		res, err := s.acquirer.Remote(ctx, job.Source.Locator, workDir, publish)
		if err != nil {
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}
			return stageError(KindAcquisition, "acquire", err, "could not acquire %s", job.Source.Locator)
		}
		s.state.Update(func(j *session.Job) {
			j.AudioPath = res.Path
			j.Filename = res.Filename
			j.Metadata = res.Metadata
		})
		gates.MediaReady.Set()
		s.saveJob(ctx)
	}
	if err := gates.MediaReady.Wait(ctx); err != nil {
		return err
	}

	job = s.state.Snapshot()
	model, _ := s.opts.Profiles.QualityModel(job.Quality)
	precision, _ := s.opts.Profiles.ComputePrecision(job.Compute)
	segments := Plan(job.Metadata.Chapters)
	jm.SetAudioSeconds(job.Metadata.Duration)
	logger.Debug("segments planned", "count", len(segments), "model", model, "precision", precision)

	transcript, err := s.engine.Run(ctx, RunInput{
		AudioPath:  job.AudioPath,
		ScratchDir: workDir,
		Model:      model,
		Precision:  precision,
		Segments:   segments,
		Metrics:    jm,
	}, func(e events.Event) error {
		s.state.Update(func(j *session.Job) { j.ChaptersDone++ })
		return publish(e)
	})
	if err != nil {
		return err
	}

	sourceURL := ""
	if job.Source.Kind == media.KindRemote {
		sourceURL = job.Source.Locator
	}
	seconds := transcript.Elapsed.Seconds()
	doc, serr := Assemble(DocumentInput{
		SourceURL:            sourceURL,
		Filename:             job.Filename,
		Metadata:             job.Metadata,
		Quality:              job.Quality,
		Compute:              job.Compute,
		TranscriptionSeconds: seconds,
		Body:                 transcript.Body(),
	})
	if serr != nil {
		logger.Warn("front matter substituted", "error", serr)
	}
	s.state.Update(func(j *session.Job) { j.TranscriptionSeconds = seconds })

	if s.opts.SaveTranscripts {
		if path, err := s.export(job.Filename, doc); err != nil {
			logger.Warn("failed to save transcript", "error", err)
		} else {
			logger.Info("transcript saved", "path", path)
		}
	}

	s.state.Complete(jobID, doc)
	return publish(events.Done(doc, job.Filename))
}

func (s *Service) export(filename, doc string) (string, error) {
	if err := os.MkdirAll(s.opts.OutputDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.opts.OutputDir, media.StemOrDefault(filename)+".md")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Service) saveJob(ctx context.Context) {
	if err := s.store.SaveJob(ctx, s.state.Status()); err != nil {
		s.logger.Warn("failed to mirror job state", "error", err)
	}
}

package session

import (
	"sync"
	"time"

	"github.com/amanullahtanweer/chapter-transcriber/internal/media"
)

// Defaults restored by Reset.
const (
	DefaultQuality = "default"
	DefaultCompute = "default"
)

// Job is the record of the current (or last) job.
type Job struct {
	ID          string
	Source      media.Reference
	AudioPath   string
	Quality     string
	Compute     string
	Metadata    media.Metadata
	Filename    string
	UploadBytes int

	Document             string
	TranscriptionSeconds float64
	ChaptersDone         int

	SubmittedAt time.Time
	FinishedAt  time.Time
	Failure     error
}

// Status is a read-only view of a job and its gates.
type Status struct {
	Job
	Driving         bool
	MediaReady      bool
	TranscriptReady bool
	Finished        bool
}

// Gates are the readiness signals of one job.
type Gates struct {
	MediaReady      *Gate
	TranscriptReady *Gate
	// Finished fires when the job ends for any reason.
	Finished *Gate
}

// State holds the single live job. It is created once and reset for every
// submission; it is never replaced.
type State struct {
	mu      sync.Mutex
	job     Job
	gates   Gates
	driving bool
}

// New returns a State already reset to defaults.
func New() *State {
	s := &State{}
	s.Reset()
	return s
}

// Reset restores every field to its default and installs fresh gates so a
// previous job's signals cannot release waiters of the next one.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job = Job{
		Quality: DefaultQuality,
		Compute: DefaultCompute,
	}
	s.gates = Gates{
		MediaReady:      NewGate(),
		TranscriptReady: NewGate(),
		Finished:        NewGate(),
	}
	s.driving = false
}

// Snapshot returns a copy of the job record.
func (s *State) Snapshot() Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.job
	job.Metadata = s.job.Metadata.Clone()
	return job
}

// Status returns the job record together with gate states.
func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.job
	job.Metadata = s.job.Metadata.Clone()
	return Status{
		Job:             job,
		Driving:         s.driving,
		MediaReady:      s.gates.MediaReady.IsSet(),
		TranscriptReady: s.gates.TranscriptReady.IsSet(),
		Finished:        s.gates.Finished.IsSet(),
	}
}

// Update mutates the job record under the state lock.
func (s *State) Update(fn func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.job)
}

// Gates returns the gates of the current job.
func (s *State) Gates() Gates {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gates
}

// ClaimDriver marks the job as driven and reports whether the caller won.
// It fails when no job was submitted, when a driver already claimed it, or
// when the job already finished.
func (s *State) ClaimDriver() (string, Gates, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job.ID == "" || s.driving || s.gates.Finished.IsSet() {
		return s.job.ID, s.gates, false
	}
	s.driving = true
	return s.job.ID, s.gates, true
}

// Fail records err as the job's failure, unless one was already recorded or
// the job belongs to another id, and fires the finished gate.
func (s *State) Fail(jobID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job.ID != jobID {
		return
	}
	if s.job.Failure == nil && !s.gates.TranscriptReady.IsSet() {
		s.job.Failure = err
	}
	s.finishLocked()
}

// Complete stores the final document and fires transcript-ready and finished.
func (s *State) Complete(jobID, document string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job.ID != jobID {
		return
	}
	s.job.Document = document
	s.gates.TranscriptReady.Set()
	s.finishLocked()
}

// Finish fires the finished gate without recording anything.
func (s *State) Finish(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job.ID == jobID {
		s.finishLocked()
	}
}

func (s *State) finishLocked() {
	if !s.gates.Finished.IsSet() {
		s.job.FinishedAt = time.Now()
	}
	s.driving = false
	s.gates.Finished.Set()
}

package metrics

import (
	"fmt"
	"sync"
	"time"
)

// JobMetrics accumulates timing statistics for one transcription job.
type JobMetrics struct {
	Provider         string
	JobID            string
	StartTime        time.Time
	EndTime          time.Time
	AudioSeconds     float64
	TranscriptLength int
	SegmentCount     int
	FailedSegments   int
	FirstResultTime  *time.Time
	Recognition      time.Duration
	Slowest          time.Duration
	mu               sync.Mutex
	now              func() time.Time
}

// NewJobMetrics starts collecting for one job.
func NewJobMetrics(provider, jobID string) *JobMetrics {
	m := &JobMetrics{
		Provider: provider,
		JobID:    jobID,
		now:      time.Now,
	}
	m.StartTime = m.now()
	return m
}

// SetAudioSeconds records the length of the source audio.
func (m *JobMetrics) SetAudioSeconds(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AudioSeconds = seconds
}

// AddSegment records one successfully transcribed segment and the wall time
// its recognition call took.
func (m *JobMetrics) AddSegment(text string, took time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FirstResultTime == nil {
		now := m.now()
		m.FirstResultTime = &now
	}

	m.TranscriptLength += len(text)
	m.SegmentCount++
	m.Recognition += took
	if took > m.Slowest {
		m.Slowest = took
	}
}

// AddFailure records a segment whose recognition failed after took.
func (m *JobMetrics) AddFailure(took time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailedSegments++
	m.Recognition += took
}

// TranscriptionSeconds is the accumulated recognition wall time.
func (m *JobMetrics) TranscriptionSeconds() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Recognition.Seconds()
}

// RealTimeFactor is recognition time divided by audio length, or 0 when the
// audio length is unknown.
func (m *JobMetrics) RealTimeFactor() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.realTimeFactorLocked()
}

func (m *JobMetrics) realTimeFactorLocked() float64 {
	if m.AudioSeconds <= 0 {
		return 0
	}
	return m.Recognition.Seconds() / m.AudioSeconds
}

func (m *JobMetrics) Finalize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EndTime = m.now()
}

func (m *JobMetrics) Summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	end := m.EndTime
	if end.IsZero() {
		end = m.now()
	}
	duration := end.Sub(m.StartTime)
	var latency time.Duration
	if m.FirstResultTime != nil {
		latency = m.FirstResultTime.Sub(m.StartTime)
	}

	return fmt.Sprintf(
		"Provider: %s\n"+
			"Job: %s\n"+
			"Duration: %v\n"+
			"Audio Duration: %.2f seconds\n"+
			"Segments: %d\n"+
			"Failed Segments: %d\n"+
			"Transcript Length: %d chars\n"+
			"First Result Latency: %v\n"+
			"Recognition Time: %v\n"+
			"Slowest Segment: %v\n"+
			"Real-time Factor: %.2fx\n",
		m.Provider,
		m.JobID,
		duration,
		m.AudioSeconds,
		m.SegmentCount,
		m.FailedSegments,
		m.TranscriptLength,
		latency,
		m.Recognition,
		m.Slowest,
		m.realTimeFactorLocked(),
	)
}

// Fields returns the statistics as alternating key/value pairs for structured logging.
func (m *JobMetrics) Fields() []interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return []interface{}{
		"provider", m.Provider,
		"segments", m.SegmentCount,
		"failed_segments", m.FailedSegments,
		"transcript_chars", m.TranscriptLength,
		"recognition", m.Recognition.Round(time.Millisecond).String(),
		"rtf", fmt.Sprintf("%.2f", m.realTimeFactorLocked()),
	}
}

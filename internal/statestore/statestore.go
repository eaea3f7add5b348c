package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"
	redis "github.com/redis/go-redis/v9"

	"github.com/amanullahtanweer/chapter-transcriber/internal/events"
	"github.com/amanullahtanweer/chapter-transcriber/internal/session"
)

// Store mirrors job state outside the process.
type Store interface {
	SaveJob(ctx context.Context, st session.Status) error
	// Sink returns an event observer for one job.
	Sink(jobID string) events.Sink
	Close() error
}

// Options configures the redis mirror.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// RedisStore writes each job as a hash under <prefix>job:<id> and publishes
// every event on <prefix>events:<id>.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	timeout time.Duration
	logger  hclog.Logger
}

// NewRedis connects to redis and verifies the connection.
func NewRedis(ctx context.Context, opts Options, logger hclog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return newRedisStore(client, opts, logger), nil
}

func newRedisStore(client *redis.Client, opts Options, logger hclog.Logger) *RedisStore {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &RedisStore{
		client:  client,
		prefix:  opts.Prefix,
		ttl:     opts.TTL,
		timeout: 800 * time.Millisecond,
		logger:  logger.Named("statestore"),
	}
}

// JobKey returns the hash key of a job.
func (s *RedisStore) JobKey(jobID string) string { return s.prefix + "job:" + jobID }

// EventsChannel returns the pub/sub channel of a job.
func (s *RedisStore) EventsChannel(jobID string) string { return s.prefix + "events:" + jobID }

// SaveJob writes the job snapshot and refreshes its TTL.
func (s *RedisStore) SaveJob(ctx context.Context, st session.Status) error {
	if st.ID == "" {
		return nil
	}
	key := s.JobKey(st.ID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, JobFields(st))
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis HSET %s: %w", key, err)
	}
	return nil
}

// Sink publishes each event of jobID. Failures are logged, never returned,
// so an unavailable redis cannot stall a job.
func (s *RedisStore) Sink(jobID string) events.Sink {
	channel := s.EventsChannel(jobID)
	key := s.JobKey(jobID)
	return events.SinkFunc(func(e events.Event) {
		payload, err := json.Marshal(e)
		if err != nil {
			s.logger.Warn("encode event", "job_id", jobID, "error", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.client.Publish(ctx, channel, payload).Err(); err != nil {
			s.logger.Warn("publish event", "channel", channel, "error", err)
			return
		}
		if e.Type == events.TypeChapter {
			_ = s.client.HSet(ctx, key, "chapters_done", e.Index).Err()
		}
	})
}

func (s *RedisStore) Close() error { return s.client.Close() }

// JobFields flattens a job status into hash fields.
func JobFields(st session.Status) map[string]interface{} {
	failure := ""
	if st.Failure != nil {
		failure = st.Failure.Error()
	}
	fields := map[string]interface{}{
		"id":               st.ID,
		"source_kind":      st.Source.Kind.String(),
		"locator":          st.Source.Locator,
		"quality":          st.Quality,
		"compute":          st.Compute,
		"title":            st.Metadata.Title,
		"filename":         st.Filename,
		"duration":         strconv.FormatFloat(st.Metadata.Duration, 'f', 2, 64),
		"chapters":         len(st.Metadata.Chapters),
		"chapters_done":    st.ChaptersDone,
		"transcription_s":  strconv.FormatFloat(st.TranscriptionSeconds, 'f', 1, 64),
		"media_ready":      strconv.FormatBool(st.MediaReady),
		"transcript_ready": strconv.FormatBool(st.TranscriptReady),
		"finished":         strconv.FormatBool(st.Finished),
		"failure":          failure,
	}
	if !st.SubmittedAt.IsZero() {
		fields["submitted_at"] = st.SubmittedAt.UTC().Format(time.RFC3339)
	}
	if !st.FinishedAt.IsZero() {
		fields["finished_at"] = st.FinishedAt.UTC().Format(time.RFC3339)
	}
	return fields
}

// Nop discards everything. It is used when no redis address is configured.
type Nop struct{}

func (Nop) SaveJob(context.Context, session.Status) error { return nil }
func (Nop) Sink(string) events.Sink                        { return events.SinkFunc(func(events.Event) {}) }
func (Nop) Close() error                                   { return nil }

package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalOnlyTypeFields(t *testing.T) {
	cases := []struct {
		event Event
		want  string
	}{
		{Status("Downloading..."), `{"type":"status","seq":0,"message":"Downloading..."}`},
		{Progress(0), `{"type":"progress","seq":0,"percent":0}`},
		{Chapter(2, "Intro", "hello"), `{"type":"chapter","seq":0,"index":2,"title":"Intro","text":"hello"}`},
		{Error("transcription", "boom"), `{"type":"error","seq":0,"kind":"transcription","message":"boom"}`},
		{Done("doc", "talk"), `{"type":"done","seq":0,"document":"doc","filename":"talk"}`},
	}
	for _, tc := range cases {
		data, err := json.Marshal(tc.event)
		require.NoError(t, err)
		assert.JSONEq(t, tc.want, string(data))
	}
}

func TestUnmarshalRoundTripsChapter(t *testing.T) {
	in := Chapter(3, "Wrap up", "bye")
	in.JobID = "job-1"
	in.Seq = 7
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Event
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, TypeChapter, out.Type)
	assert.Equal(t, "job-1", out.JobID)
	assert.Equal(t, 7, out.Seq)
	assert.Equal(t, 3, out.Index)
	assert.Equal(t, "bye", out.Text)
}

func TestUnmarshalRejectsUnknownType(t *testing.T) {
	var e Event
	assert.Error(t, json.Unmarshal([]byte(`{"type":"mystery"}`), &e))
	_, err := json.Marshal(Event{Type: "mystery"})
	assert.Error(t, err)
}

func TestTerminal(t *testing.T) {
	assert.True(t, Done("", "").Terminal())
	assert.True(t, Error("x", "y").Terminal())
	assert.False(t, Status("s").Terminal())
	assert.False(t, Chapter(1, "", "").Terminal())
}

func TestPublisherStampsAndPreservesOrder(t *testing.T) {
	out := make(chan Event, 10)
	var seen []int
	p := NewPublisher(context.Background(), "job-9", out, SinkFunc(func(e Event) { seen = append(seen, e.Seq) }))

	require.NoError(t, p.Publish(Status("a")))
	require.NoError(t, p.Publish(Progress(50)))
	require.NoError(t, p.Publish(Done("doc", "f")))
	close(out)

	var got []Event
	for e := range out {
		got = append(got, e)
	}
	require.Len(t, got, 3)
	for i, e := range got {
		assert.Equal(t, i+1, e.Seq)
		assert.Equal(t, "job-9", e.JobID)
		assert.False(t, e.Time.IsZero())
	}
	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Equal(t, 3, p.Count())
}

func TestPublisherStopsWhenConsumerLeaves(t *testing.T) {
	cause := errors.New("client disconnected")
	ctx, cancel := context.WithCancelCause(context.Background())
	out := make(chan Event)

	p := NewPublisher(ctx, "job-1", out)
	result := make(chan error, 1)
	go func() { result <- p.Publish(Status("blocked")) }()

	cancel(cause)
	select {
	case err := <-result:
		assert.ErrorIs(t, err, cause)
	case <-time.After(time.Second):
		t.Fatal("publish did not return after cancellation")
	}

	assert.ErrorIs(t, p.Publish(Status("after")), cause)
}

func TestPublishContextOutlivesPublisherContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Event, 1)
	p := NewPublisher(ctx, "job-2", out)
	require.NoError(t, p.Publish(Status("first")))
	<-out

	cancel()
	assert.Error(t, p.Publish(Status("dropped")))
	require.NoError(t, p.PublishContext(context.Background(), Error("superseded", "replaced")))

	e := <-out
	assert.Equal(t, TypeError, e.Type)
	assert.Equal(t, 2, e.Seq)
	assert.Equal(t, "job-2", e.JobID)
	assert.Equal(t, "job-2", p.JobID())
}

func TestPublishContextGivesUpOnStalledConsumer(t *testing.T) {
	p := NewPublisher(context.Background(), "job-3", make(chan Event))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.PublishContext(ctx, Status("nobody reads")), context.DeadlineExceeded)
}

package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/amanullahtanweer/chapter-transcriber/internal/media"
)

// Kind classifies the failure that ended a job. It is sent to clients as the
// error event's kind.
type Kind string

const (
	KindInvalidInput  Kind = "invalid_input"
	KindAcquisition   Kind = "acquisition"
	KindTranscription Kind = "transcription"
	KindSerialization Kind = "serialization"
	KindCancelled     Kind = "cancelled"
	KindSuperseded    Kind = "superseded"
	KindNoJob         Kind = "no_job"
)

var (
	ErrInvalidInput  = media.ErrInvalidInput
	ErrAcquisition   = errors.New("acquisition failed")
	ErrTranscription = errors.New("transcription failed")
	ErrSerialization = errors.New("front matter could not be serialized")
	ErrCancelled     = errors.New("job cancelled")
	ErrSuperseded    = errors.New("job superseded by a newer submission")
	ErrNoJob         = errors.New("no job has been submitted")
)

var kindErrors = map[Kind]error{
	KindInvalidInput:  ErrInvalidInput,
	KindAcquisition:   ErrAcquisition,
	KindTranscription: ErrTranscription,
	KindSerialization: ErrSerialization,
	KindCancelled:     ErrCancelled,
	KindSuperseded:    ErrSuperseded,
	KindNoJob:         ErrNoJob,
}

// kindOrder is the precedence KindOf applies to errors wrapping several sentinels.
var kindOrder = []Kind{
	KindSuperseded,
	KindCancelled,
	KindInvalidInput,
	KindAcquisition,
	KindSerialization,
	KindTranscription,
	KindNoJob,
}

// StageError is a failure inside one pipeline stage. It matches both the
// sentinel of its Kind and the underlying error with errors.Is.
type StageError struct {
	Kind    Kind
	Stage   string
	Message string
	Err     error
}

func (e *StageError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = kindErrors[e.Kind].Error()
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, msg, e.Err)
}

func (e *StageError) Unwrap() []error {
	out := make([]error, 0, 2)
	if sentinel, ok := kindErrors[e.Kind]; ok {
		out = append(out, sentinel)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func stageError(kind Kind, stage string, err error, format string, args ...interface{}) *StageError {
	return &StageError{Kind: kind, Stage: stage, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf maps err to the kind reported to clients. Cancellation causes win
// over the stage that happened to be running.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSuperseded):
		return KindSuperseded
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	for _, kind := range kindOrder {
		if errors.Is(err, kindErrors[kind]) {
			return kind
		}
	}
	return KindTranscription
}

// errorEventMessage is the human-readable message sent with an error event.
func errorEventMessage(err error) string {
	var se *StageError
	if errors.As(err, &se) && se.Kind != KindCancelled && se.Kind != KindSuperseded {
		return se.Error()
	}
	return err.Error()
}

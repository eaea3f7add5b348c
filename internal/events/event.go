package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type tags a pipeline event.
type Type string

const (
	TypeStatus   Type = "status"
	TypeProgress Type = "progress"
	TypeChapter  Type = "chapter"
	TypeError    Type = "error"
	TypeDone     Type = "done"
)

// Event is one step of a job, delivered to the client as one message.
// Only the fields belonging to Type are meaningful.
type Event struct {
	Type  Type
	JobID string
	Seq   int
	Time  time.Time

	Message string  // status, error
	Percent float64 // progress

	Index int // chapter, 1-based
	Title string
	Text  string

	ErrorKind string // error

	Document string // done
	Filename string
}

// Status reports a phase change.
func Status(message string) Event {
	return Event{Type: TypeStatus, Message: message}
}

// Progress reports download progress in percent.
func Progress(percent float64) Event {
	return Event{Type: TypeProgress, Percent: percent}
}

// Chapter carries one transcribed segment.
func Chapter(index int, title, text string) Event {
	return Event{Type: TypeChapter, Index: index, Title: title, Text: text}
}

// Error reports the failure that ended the job.
func Error(kind, message string) Event {
	return Event{Type: TypeError, ErrorKind: kind, Message: message}
}

// Done carries the finished document.
func Done(document, filename string) Event {
	return Event{Type: TypeDone, Document: document, Filename: filename}
}

// Terminal reports whether no event follows e in its stream.
func (e Event) Terminal() bool {
	return e.Type == TypeDone || e.Type == TypeError
}

func (e Event) String() string {
	switch e.Type {
	case TypeStatus:
		return fmt.Sprintf("status(%s)", e.Message)
	case TypeProgress:
		return fmt.Sprintf("progress(%.1f)", e.Percent)
	case TypeChapter:
		return fmt.Sprintf("chapter(%d, %s)", e.Index, e.Title)
	case TypeError:
		return fmt.Sprintf("error(%s: %s)", e.ErrorKind, e.Message)
	case TypeDone:
		return fmt.Sprintf("done(%s)", e.Filename)
	default:
		return string(e.Type)
	}
}

type header struct {
	Type  Type   `json:"type"`
	JobID string `json:"job_id,omitempty"`
	Seq   int    `json:"seq"`
}

// MarshalJSON encodes only the fields that belong to the event's type.
func (e Event) MarshalJSON() ([]byte, error) {
	h := header{Type: e.Type, JobID: e.JobID, Seq: e.Seq}
	switch e.Type {
	case TypeStatus:
		return json.Marshal(struct {
			header
			Message string `json:"message"`
		}{h, e.Message})
	case TypeProgress:
		return json.Marshal(struct {
			header
			Percent float64 `json:"percent"`
		}{h, e.Percent})
	case TypeChapter:
		return json.Marshal(struct {
			header
			Index int    `json:"index"`
			Title string `json:"title"`
			Text  string `json:"text"`
		}{h, e.Index, e.Title, e.Text})
	case TypeError:
		return json.Marshal(struct {
			header
			Kind    string `json:"kind"`
			Message string `json:"message"`
		}{h, e.ErrorKind, e.Message})
	case TypeDone:
		return json.Marshal(struct {
			header
			Document string `json:"document"`
			Filename string `json:"filename"`
		}{h, e.Document, e.Filename})
	default:
		return nil, fmt.Errorf("events: unknown event type %q", e.Type)
	}
}

// UnmarshalJSON decodes any event produced by MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w struct {
		Type     Type    `json:"type"`
		JobID    string  `json:"job_id"`
		Seq      int     `json:"seq"`
		Message  string  `json:"message"`
		Percent  float64 `json:"percent"`
		Index    int     `json:"index"`
		Title    string  `json:"title"`
		Text     string  `json:"text"`
		Kind     string  `json:"kind"`
		Document string  `json:"document"`
		Filename string  `json:"filename"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case TypeStatus, TypeProgress, TypeChapter, TypeError, TypeDone:
	default:
		return fmt.Errorf("events: unknown event type %q", w.Type)
	}
	*e = Event{
		Type: w.Type, JobID: w.JobID, Seq: w.Seq,
		Message: w.Message, Percent: w.Percent,
		Index: w.Index, Title: w.Title, Text: w.Text,
		ErrorKind: w.Kind,
		Document:  w.Document, Filename: w.Filename,
	}
	return nil
}

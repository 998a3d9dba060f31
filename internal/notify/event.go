// Package notify carries job outcome events from the workers to live
// clients, either in process or through a broker.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Kind is the outcome an event reports.
type Kind string

const (
	KindImportCompleted Kind = "importCompleted"
	KindImportFailed    Kind = "importFailed"
	KindFilterFileReady Kind = "filterFileReady"
	KindFilterFailed    Kind = "filterFailed"
)

// Event names as seen by websocket clients.
const (
	WireJobCompleted = "jobCompleted"
	WireJobFailed    = "jobFailed"
	WireFileReady    = "fileReady"
)

// WireName maps a kind onto the client event name.
func (k Kind) WireName() string {
	switch k {
	case KindImportCompleted:
		return WireJobCompleted
	case KindImportFailed, KindFilterFailed:
		return WireJobFailed
	case KindFilterFileReady:
		return WireFileReady
	}
	return ""
}

// Event is a terminal job outcome. It is never stored.
type Event struct {
	Kind     Kind      `json:"kind"`
	JobID    string    `json:"jobId,omitempty"`
	Message  string    `json:"message,omitempty"`
	FilePath string    `json:"filePath,omitempty"`
	At       time.Time `json:"at"`
}

// Validate checks that the event carries what its kind needs.
func (e Event) Validate() error {
	switch e.Kind {
	case KindFilterFileReady:
		if e.FilePath == "" {
			return fmt.Errorf("%s event without file path", e.Kind)
		}
	case KindImportCompleted, KindImportFailed, KindFilterFailed:
		if e.Message == "" {
			return fmt.Errorf("%s event without message", e.Kind)
		}
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}

// Envelope is the frame written to websocket clients:
//
//	{"event":"jobCompleted","data":{"message":"Imported 3 students"}}
type Envelope struct {
	Event string       `json:"event"`
	Data  EnvelopeData `json:"data"`
}

// EnvelopeData is the event body.
type EnvelopeData struct {
	Message  string `json:"message,omitempty"`
	FilePath string `json:"filePath,omitempty"`
	JobID    string `json:"jobId,omitempty"`
}

// Envelope converts the event into its client frame.
func (e Event) Envelope() Envelope {
	return Envelope{
		Event: e.Kind.WireName(),
		Data:  EnvelopeData{Message: e.Message, FilePath: e.FilePath, JobID: e.JobID},
	}
}

// Publisher hands an event to whoever delivers it to clients. Delivery is
// best effort.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber delivers events from a broker to fn until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, fn func(Event)) error
}

func encode(e Event) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	return json.Marshal(e)
}

func decode(raw []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return e, e.Validate()
}

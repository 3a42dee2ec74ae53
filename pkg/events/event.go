package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/offlinefirst/workflow-recorder/pkg/uia"
)

// RawEvent is one notification from a capture backend. Sequence is stamped
// by the dispatcher when the event is accepted.
type RawEvent struct {
	Sequence  uint64
	Timestamp time.Time
	Element   uia.Ref
	Payload   Payload
}

// Kind returns the payload kind, or "" when the payload is missing.
func (e RawEvent) Kind() Kind {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Kind()
}

// Metadata accompanies every event in the output stream. Sequence strictly
// increases across the whole output of a recording.
type Metadata struct {
	Sequence   uint64    `json:"sequence"`
	Timestamp  time.Time `json:"timestamp"`
	ElementRef uia.Ref   `json:"element_ref,omitempty"`
	Element    *uia.Info `json:"element,omitempty"`
}

// WorkflowEvent is an entry of the recorded workflow.
type WorkflowEvent struct {
	Metadata Metadata
	Payload  Payload
}

// Kind returns the payload kind, or "" when the payload is missing.
func (e WorkflowEvent) Kind() Kind {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Kind()
}

type workflowEnvelope struct {
	Kind     Kind            `json:"kind"`
	Metadata Metadata        `json:"metadata"`
	Data     json.RawMessage `json:"data"`
}

// MarshalJSON encodes the event as {"kind", "metadata", "data"}.
func (e WorkflowEvent) MarshalJSON() ([]byte, error) {
	if e.Payload == nil {
		return nil, errors.New("workflow event has no payload")
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", e.Payload.Kind(), err)
	}
	return json.Marshal(workflowEnvelope{Kind: e.Payload.Kind(), Metadata: e.Metadata, Data: data})
}

// UnmarshalJSON decodes the envelope written by MarshalJSON.
func (e *WorkflowEvent) UnmarshalJSON(b []byte) error {
	var env workflowEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	payload, err := decodePayload(env.Kind, env.Data)
	if err != nil {
		return err
	}
	e.Metadata = env.Metadata
	e.Payload = payload
	return nil
}

type rawEnvelope struct {
	Kind      Kind            `json:"kind"`
	Sequence  uint64          `json:"sequence,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Element   uia.Ref         `json:"element,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// MarshalJSON encodes the raw event as one self-describing record.
func (e RawEvent) MarshalJSON() ([]byte, error) {
	if e.Payload == nil {
		return nil, errors.New("raw event has no payload")
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", e.Payload.Kind(), err)
	}
	return json.Marshal(rawEnvelope{
		Kind:      e.Payload.Kind(),
		Sequence:  e.Sequence,
		Timestamp: e.Timestamp,
		Element:   e.Element,
		Data:      data,
	})
}

// UnmarshalJSON decodes a record written by MarshalJSON. Semantic kinds are
// rejected; they are never valid input.
func (e *RawEvent) UnmarshalJSON(b []byte) error {
	var env rawEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	if env.Kind.IsSemantic() {
		return fmt.Errorf("kind %q is not a raw event", env.Kind)
	}
	payload, err := decodePayload(env.Kind, env.Data)
	if err != nil {
		return err
	}
	*e = RawEvent{Sequence: env.Sequence, Timestamp: env.Timestamp, Element: env.Element, Payload: payload}
	return nil
}

func decodePayload(kind Kind, data json.RawMessage) (Payload, error) {
	payload, err := NewPayload(kind)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, payload); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
	}
	return payload, nil
}

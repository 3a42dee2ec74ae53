package events

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/offlinefirst/workflow-recorder/pkg/uia"
)

func TestEveryKindHasPayload(t *testing.T) {
	for _, kind := range AllKinds() {
		payload, err := NewPayload(kind)
		if err != nil {
			t.Fatalf("kind %q has no payload: %v", kind, err)
		}
		if payload.Kind() != kind {
			t.Fatalf("payload for %q reports kind %q", kind, payload.Kind())
		}
	}
	if _, err := NewPayload("teleport"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestKindPartitions(t *testing.T) {
	for _, k := range RawKinds() {
		if k.IsSemantic() {
			t.Fatalf("raw kind %q reported as semantic", k)
		}
	}
	for _, k := range SemanticKinds() {
		if !k.IsSemantic() || !k.Valid() {
			t.Fatalf("semantic kind %q misclassified", k)
		}
	}
	if Kind("nope").Valid() {
		t.Fatalf("unexpected valid kind")
	}
}

func TestWorkflowEventEnvelope(t *testing.T) {
	dwell := int64(1500)
	ts := time.Date(2024, 3, 14, 9, 26, 0, 0, time.UTC)
	in := WorkflowEvent{
		Metadata: Metadata{
			Sequence:   7,
			Timestamp:  ts,
			ElementRef: "win:42",
			Element:    &uia.Info{Role: "window", Name: "Inbox", ApplicationName: "outlook"},
		},
		Payload: &ApplicationSwitchEvent{
			FromApplication: "chrome",
			ToApplication:   "outlook",
			SwitchMethod:    SwitchAltTab,
			DwellTimeMs:     &dwell,
			SwitchCount:     2,
		},
	}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatalf("decode generic: %v", err)
	}
	for _, key := range []string{"kind", "metadata", "data"} {
		if _, ok := generic[key]; !ok {
			t.Fatalf("envelope missing %q: %s", key, data)
		}
	}

	var out WorkflowEvent
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n in=%+v\nout=%+v", in, out)
	}
}

func TestWorkflowEventRejectsUnknownKind(t *testing.T) {
	var ev WorkflowEvent
	if err := json.Unmarshal([]byte(`{"kind":"bogus","metadata":{},"data":{}}`), &ev); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestRawEventRejectsSemanticKind(t *testing.T) {
	var raw RawEvent
	err := json.Unmarshal([]byte(`{"kind":"hotkey","timestamp":"2024-03-14T09:26:00Z","data":{}}`), &raw)
	if err == nil {
		t.Fatalf("expected semantic kind to be rejected as raw input")
	}
}

func TestRawEventRoundTrip(t *testing.T) {
	in := RawEvent{
		Timestamp: time.Date(2024, 3, 14, 9, 26, 0, 0, time.UTC),
		Element:   "edit:1",
		Payload:   &KeyboardEvent{KeyCode: VKLetter('a'), Character: "a", IsKeyDown: true},
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out RawEvent
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch: %+v vs %+v", in, out)
	}
}

func TestCombination(t *testing.T) {
	got := Combination(Modifiers{Ctrl: true, Shift: true}, VKLetter('t'))
	if got != "Ctrl+Shift+T" {
		t.Fatalf("unexpected combination %q", got)
	}
	if got := Combination(Modifiers{Alt: true}, VKFunction(4)); got != "Alt+F4" {
		t.Fatalf("unexpected combination %q", got)
	}
	if got := KeyName(VKReturn); got != "Enter" {
		t.Fatalf("unexpected key name %q", got)
	}
	if !IsModifierKey(VKLControl) || IsModifierKey(VKLetter('x')) {
		t.Fatalf("modifier classification wrong")
	}
}

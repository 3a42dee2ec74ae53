package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/offlinefirst/workflow-recorder/pkg/events"
)

// Replay returns a Source that reads raw events from a JSONL file written by
// WriteJSONL. Sequence numbers in the file are ignored; the dispatcher
// assigns fresh ones.
func Replay(path string, opts ReplayOptions) Source {
	return replaySource{path: path, opts: opts}
}

type replaySource struct {
	path string
	opts ReplayOptions
}

func (r replaySource) Open(ctx context.Context) (Stream, error) {
	file, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	evs, err := ReadJSONL(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	return &replayStream{file: file, events: evs, opts: r.opts}, nil
}

type replayStream struct {
	file   *os.File
	events []events.RawEvent
	opts   ReplayOptions
}

func (s *replayStream) Run(ctx context.Context, emit func(events.RawEvent)) error {
	return play(ctx, s.events, s.opts, emit)
}

func (s *replayStream) Close() error {
	return s.file.Close()
}

// ReadJSONL decodes one raw event per line.
func ReadJSONL(r io.Reader) ([]events.RawEvent, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var out []events.RawEvent
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var ev events.RawEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("replay line %d: %w", line, err)
		}
		out = append(out, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read replay file: %w", err)
	}
	return out, nil
}

// WriteJSONL encodes raw events one per line.
func WriteJSONL(w io.Writer, evs []events.RawEvent) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	for _, ev := range evs {
		if err := encoder.Encode(ev); err != nil {
			return fmt.Errorf("write raw event: %w", err)
		}
	}
	return nil
}

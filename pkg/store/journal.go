// Package store keeps an append-only SQLite journal of recorded workflows so
// a crash mid-recording still leaves every merged event on disk.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/offlinefirst/workflow-recorder/pkg/events"
	"github.com/offlinefirst/workflow-recorder/pkg/workflow"
)

// ErrClosed is returned by operations on a closed journal.
var ErrClosed = errors.New("journal closed")

// ErrNotFound is returned when a workflow id is not in the journal.
var ErrNotFound = errors.New("workflow not found")

const schema = `
CREATE TABLE IF NOT EXISTS workflows (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	schema_version INTEGER NOT NULL,
	start_time TEXT NOT NULL,
	end_time TEXT,
	event_count INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS events (
	workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	sequence INTEGER NOT NULL,
	timestamp TEXT NOT NULL,
	kind TEXT NOT NULL,
	payload TEXT NOT NULL,
	PRIMARY KEY (workflow_id, sequence)
);
CREATE INDEX IF NOT EXISTS idx_events_kind ON events(workflow_id, kind);
`

var pragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
}

const (
	queueSize = 1024
	batchSize = 64
	flushTick = time.Second
)

type entry struct {
	workflowID string
	sequence   uint64
	timestamp  string
	kind       string
	payload    []byte

	// flushed is set on marker entries only.
	flushed chan struct{}
}

// Stats reports journal writer counters.
type Stats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

// Journal persists workflow events asynchronously. Append never blocks the
// caller; a full queue drops the event and counts it.
type Journal struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	ch     chan entry
	done   chan struct{}

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// Open creates or opens the journal at path.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// One connection keeps the per-connection pragmas in force for every statement.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	j := &Journal{
		db:     db,
		path:   path,
		logger: logger.With("component", "journal"),
		ch:     make(chan entry, queueSize),
		done:   make(chan struct{}),
	}
	go j.flushLoop()
	return j, nil
}

// Path returns the database file location.
func (j *Journal) Path() string { return j.path }

// Begin records the workflow header. It is written synchronously so that
// events appended afterwards always have a parent row.
func (j *Journal) Begin(w *workflow.Workflow) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrClosed
	}
	_, err := j.db.Exec(
		`INSERT INTO workflows (id, name, schema_version, start_time) VALUES (?, ?, ?, ?)`,
		w.ID, w.Name, w.SchemaVersion, formatTime(w.StartTime),
	)
	if err != nil {
		return fmt.Errorf("journal begin %s: %w", w.ID, err)
	}
	return nil
}

// Append queues ev for persistence under workflowID.
func (j *Journal) Append(workflowID string, ev events.WorkflowEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		j.failed.Add(1)
		j.logger.Warn("encode journal event", "sequence", ev.Metadata.Sequence, "error", err)
		return
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.dropped.Add(1)
		return
	}
	select {
	case j.ch <- entry{
		workflowID: workflowID,
		sequence:   ev.Metadata.Sequence,
		timestamp:  formatTime(ev.Metadata.Timestamp),
		kind:       string(ev.Kind()),
		payload:    payload,
	}:
	default:
		if n := j.dropped.Add(1); n == 1 || n%100 == 0 {
			j.logger.Warn("journal queue full, dropping events", "dropped", n)
		}
	}
}

// Flush blocks until every event appended before the call is committed.
func (j *Journal) Flush() error {
	marker := entry{flushed: make(chan struct{})}
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return ErrClosed
	}
	j.ch <- marker
	j.mu.RUnlock()
	<-marker.flushed
	return nil
}

// Finish flushes pending events and stamps the workflow end time.
func (j *Journal) Finish(workflowID string, end time.Time) error {
	if err := j.Flush(); err != nil {
		return err
	}
	_, err := j.db.Exec(
		`UPDATE workflows SET end_time = ?, event_count = (SELECT COUNT(*) FROM events WHERE workflow_id = ?) WHERE id = ?`,
		formatTime(end), workflowID, workflowID,
	)
	if err != nil {
		return fmt.Errorf("journal finish %s: %w", workflowID, err)
	}
	return nil
}

// Stats returns a snapshot of the writer counters.
func (j *Journal) Stats() Stats {
	return Stats{Written: j.written.Load(), Dropped: j.dropped.Load(), Failed: j.failed.Load()}
}

// Close drains the queue, stops the writer and closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.ch)
	j.mu.Unlock()

	<-j.done
	return j.db.Close()
}

func (j *Journal) flushLoop() {
	defer close(j.done)

	batch := make([]entry, 0, batchSize)
	ticker := time.NewTicker(flushTick)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-j.ch:
			if !ok {
				j.writeBatch(batch)
				return
			}
			if e.flushed != nil {
				j.writeBatch(batch)
				batch = batch[:0]
				close(e.flushed)
				continue
			}
			batch = append(batch, e)
			if len(batch) >= batchSize {
				j.writeBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				j.writeBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (j *Journal) writeBatch(batch []entry) {
	if len(batch) == 0 {
		return
	}
	fail := func(stage string, err error) {
		j.failed.Add(uint64(len(batch)))
		j.logger.Error("journal write failed", "stage", stage, "events", len(batch), "error", err)
	}

	tx, err := j.db.Begin()
	if err != nil {
		fail("begin", err)
		return
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO events (workflow_id, sequence, timestamp, kind, payload) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		fail("prepare", err)
		return
	}
	defer stmt.Close()

	for _, e := range batch {
		if _, err := stmt.Exec(e.workflowID, int64(e.sequence), e.timestamp, e.kind, string(e.payload)); err != nil {
			tx.Rollback()
			fail("insert", err)
			return
		}
	}
	if err := tx.Commit(); err != nil {
		fail("commit", err)
		return
	}
	j.written.Add(uint64(len(batch)))
}

// Summary describes one journaled workflow.
type Summary struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	EventCount int        `json:"event_count"`
}

// Workflows lists journaled workflows, newest first. Event counts of
// unfinished workflows are computed from the events table.
func (j *Journal) Workflows(ctx context.Context) ([]Summary, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT w.id, w.name, w.start_time, w.end_time,
			(SELECT COUNT(*) FROM events e WHERE e.workflow_id = w.id)
		FROM workflows w ORDER BY w.start_time DESC, w.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			s     Summary
			start string
			end   sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Name, &start, &end, &s.EventCount); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		if s.StartTime, err = parseTime(start); err != nil {
			return nil, err
		}
		if end.Valid {
			t, err := parseTime(end.String)
			if err != nil {
				return nil, err
			}
			s.EndTime = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Load rebuilds a workflow from the journal. Unfinished workflows load with
// a nil end time.
func (j *Journal) Load(ctx context.Context, id string) (*workflow.Workflow, error) {
	var (
		w     workflow.Workflow
		start string
		end   sql.NullString
	)
	err := j.db.QueryRowContext(ctx,
		`SELECT id, name, schema_version, start_time, end_time FROM workflows WHERE id = ?`, id,
	).Scan(&w.ID, &w.Name, &w.SchemaVersion, &start, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", id, err)
	}
	if w.StartTime, err = parseTime(start); err != nil {
		return nil, err
	}
	if end.Valid {
		t, err := parseTime(end.String)
		if err != nil {
			return nil, err
		}
		w.EndTime = &t
	}

	w.Events, err = j.Events(ctx, id)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Events returns the journaled events of a workflow in sequence order.
func (j *Journal) Events(ctx context.Context, workflowID string) ([]events.WorkflowEvent, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT payload FROM events WHERE workflow_id = ? ORDER BY sequence`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := []events.WorkflowEvent{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var ev events.WorkflowEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse journal time %q: %w", s, err)
	}
	return t, nil
}

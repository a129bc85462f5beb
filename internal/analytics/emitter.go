// Package analytics provides asynchronous NDJSON analytics event logging.
package analytics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event is one analytics record. Fields beyond Name and Timestamp are
// event-specific.
type Event struct {
	Name       string    `json:"event"`
	Timestamp  time.Time `json:"timestamp"`
	SessionID  int64     `json:"session_id,omitempty"`
	Intent     string    `json:"intent,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Route      string    `json:"route,omitempty"`
	AgentID    int64     `json:"agent_id,omitempty"`
}

// Emitter writes events to an NDJSON file from a background goroutine.
// Emit never blocks the caller: when the queue is full the event is dropped
// and counted.
type Emitter struct {
	queue   chan Event
	file    *os.File
	enabled bool

	closeOnce sync.Once
	done      chan struct{}

	mu      sync.Mutex
	dropped int64
}

// Config controls the emitter.
type Config struct {
	Enabled   bool
	Path      string
	QueueSize int
}

// NewEmitter creates an emitter and starts its writer goroutine. A disabled
// emitter is valid and discards everything.
func NewEmitter(cfg Config) (*Emitter, error) {
	if !cfg.Enabled {
		return &Emitter{enabled: false, done: make(chan struct{})}, nil
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("create analytics directory: %w", err)
	}
	file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open analytics file: %w", err)
	}

	e := &Emitter{
		queue:   make(chan Event, cfg.QueueSize),
		file:    file,
		enabled: true,
		done:    make(chan struct{}),
	}
	go e.run()
	return e, nil
}

// Emit enqueues an event without blocking. Sets the timestamp if unset.
func (e *Emitter) Emit(event Event) {
	if !e.enabled {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case e.queue <- event:
	default:
		e.mu.Lock()
		e.dropped++
		dropped := e.dropped
		e.mu.Unlock()
		if dropped%100 == 1 {
			slog.Warn("Analytics queue full, dropping events", "dropped_total", dropped)
		}
	}
}

// Dropped returns the number of events dropped due to a full queue.
func (e *Emitter) Dropped() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

func (e *Emitter) run() {
	defer close(e.done)
	enc := json.NewEncoder(e.file)
	for event := range e.queue {
		if err := enc.Encode(event); err != nil {
			slog.Warn("Analytics write failed", "event", event.Name, "error", err)
		}
	}
}

// Close drains the queue and closes the file.
func (e *Emitter) Close() error {
	if !e.enabled {
		return nil
	}
	var err error
	e.closeOnce.Do(func() {
		close(e.queue)
		<-e.done
		err = e.file.Close()
	})
	return err
}

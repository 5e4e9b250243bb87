package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/claudeway/claudeway/internal/anthropic"
	"github.com/claudeway/claudeway/internal/errs"
)

// sseWriter serializes Anthropic events onto one HTTP response. All writes
// go through a mutex so keep-alive pings never interleave mid-frame.
type sseWriter struct {
	mu        sync.Mutex
	w         http.ResponseWriter
	flusher   http.Flusher
	lastWrite time.Time
	failed    bool
}

// newSSEWriter commits the SSE response headers and returns the writer.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errs.New(errs.KindTranslator, "response writer does not support streaming")
	}
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher, lastWrite: time.Now()}, nil
}

// Send writes one event frame: "event: <type>\ndata: <json>\n\n".
func (s *sseWriter) Send(ev anthropic.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errs.Newf(errs.KindTranslator, "encode %s event: %v", ev.EventType(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return errs.New(errs.KindTranslator, "client connection lost")
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.EventType(), payload); err != nil {
		s.failed = true
		return errs.Newf(errs.KindTranslator, "write event: %v", err)
	}
	s.flusher.Flush()
	s.lastWrite = time.Now()
	return nil
}

// PingIfIdle emits a ping when nothing has been written within the
// interval. Called from the dispatcher's keep-alive ticker.
func (s *sseWriter) PingIfIdle(interval time.Duration) {
	s.mu.Lock()
	idle := time.Since(s.lastWrite) >= interval && !s.failed
	s.mu.Unlock()
	if idle {
		_ = s.Send(anthropic.NewPing())
	}
}

// WriteDone emits the terminal [DONE] marker.
func (s *sseWriter) WriteDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return
	}
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		s.failed = true
		return
	}
	s.flusher.Flush()
}

// Failed reports whether a write to the client has failed.
func (s *sseWriter) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

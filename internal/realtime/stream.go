// Package realtime implements the push connection subsystem: the connection
// registry, the event broadcaster, the heartbeat and reaper loops, and the
// best-effort cache mirror that gives other instances cross-process
// visibility into which subscribers are currently reachable.
package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"rollcall/internal/types"
)

// retryHintMillis is the reconnect delay hint included in every frame.
// Clients that lose the stream wait this long before reconnecting.
const retryHintMillis = 3000

// EventStream is the write side of one push connection. Implementations must
// be safe for concurrent Send calls: the broadcaster and the heartbeat loop
// both write to live streams.
type EventStream interface {
	// Send frames and writes one event. A returned error means the stream
	// is dead; callers route the connection to eviction.
	Send(event types.Event) error

	// Close releases the stream. It must be idempotent.
	Close() error
}

// EncodeEvent frames an event in the text-based push-event wire format:
//
//	id: <id>\nevent: <type>\ndata: <json>\nretry: 3000\n\n
//
// This exact framing is a compatibility contract for connected clients; any
// change here is a breaking protocol change.
func EncodeEvent(ev types.Event) ([]byte, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, fmt.Errorf("realtime: marshaling event data: %w", err)
	}
	frame := fmt.Sprintf("id: %s\nevent: %s\ndata: %s\nretry: %d\n\n",
		ev.ID, ev.Type, data, retryHintMillis)
	return []byte(frame), nil
}

// Compile-time assertion that HTTPStream implements EventStream.
var _ EventStream = (*HTTPStream)(nil)

// HTTPStream adapts a streaming HTTP response into an EventStream. Each Send
// writes one framed event and flushes, with a write deadline so a single
// slow client cannot stall a broadcast to its siblings.
type HTTPStream struct {
	w            http.ResponseWriter
	rc           *http.ResponseController
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewHTTPStream wraps a ResponseWriter for event streaming. Returns an error
// if the underlying writer does not support flushing, since unflushed events
// would sit in a buffer until the connection closes.
func NewHTTPStream(w http.ResponseWriter, writeTimeout time.Duration) (*HTTPStream, error) {
	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		return nil, fmt.Errorf("realtime: response writer does not support streaming: %w", err)
	}
	return &HTTPStream{
		w:            w,
		rc:           rc,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}, nil
}

// Send frames the event, writes it under the configured deadline, and
// flushes.
func (s *HTTPStream) Send(ev types.Event) error {
	frame, err := EncodeEvent(ev)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("realtime: stream closed")
	}

	if s.writeTimeout > 0 {
		// Best-effort: not all transports support deadlines.
		_ = s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if _, err := s.w.Write(frame); err != nil {
		return fmt.Errorf("realtime: writing frame: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("realtime: flushing frame: %w", err)
	}
	return nil
}

// Close marks the stream closed and releases the handler blocked in Done.
// Safe to call more than once.
func (s *HTTPStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	return nil
}

// Done is closed when the stream has been closed (eviction or explicit
// close). The subscribe handler selects on this to end its long-lived
// response.
func (s *HTTPStream) Done() <-chan struct{} {
	return s.done
}

package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Subscriber serialises writes to one participant connection and tracks the
// last command sequence acknowledged on it.
type Subscriber struct {
	conn      Conn
	writeWait time.Duration
	mu        sync.Mutex
	lastSeq   atomic.Uint64
}

func newSubscriber(conn Conn, writeWait time.Duration) *Subscriber {
	return &Subscriber{conn: conn, writeWait: writeWait}
}

// WriteMessage writes one frame under the subscriber lock.
func (s *Subscriber) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeMessageLocked(messageType, data)
}

// Write sends a text frame.
func (s *Subscriber) Write(data []byte) error {
	return s.WriteMessage(websocket.TextMessage, data)
}

func (s *Subscriber) writeLocked(data []byte) error {
	return s.writeMessageLocked(websocket.TextMessage, data)
}

func (s *Subscriber) writeMessageLocked(messageType int, data []byte) error {
	if s.writeWait > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeWait)); err != nil {
			return err
		}
	}
	return s.conn.WriteMessage(messageType, data)
}

// LastCommandSeq returns the highest command sequence acknowledged so far.
func (s *Subscriber) LastCommandSeq() uint64 {
	return s.lastSeq.Load()
}

// StoreLastCommandSeq records an acknowledged command sequence.
func (s *Subscriber) StoreLastCommandSeq(seq uint64) {
	for {
		current := s.lastSeq.Load()
		if seq <= current || s.lastSeq.CompareAndSwap(current, seq) {
			return
		}
	}
}

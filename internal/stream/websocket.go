package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"eyedrive/internal/fault"
)

// frame is the object form of a websocket message. Bare arrays are accepted
// too: one sample (`[1,2]`) or a batch (`[[1,2],[3,4]]`).
type frame struct {
	Samples [][]float64 `json:"samples"`
}

// WebSocketSource receives samples pushed by a headset bridge over a
// websocket. A reader goroutine owns the connection and feeds a buffered
// channel, so Pull timeouts never touch the connection's read deadline.
type WebSocketSource struct {
	desc    Descriptor
	conn    *websocket.Conn
	samples chan []float64
	done    chan struct{}

	mu      sync.Mutex
	readErr error
	skipped int
	once    sync.Once
}

// DialWebSocket connects to d.Address (ws:// or wss://).
func DialWebSocket(ctx context.Context, d Descriptor) (*WebSocketSource, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.Address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", d.Address, err)
	}
	s := &WebSocketSource{
		desc:    d,
		conn:    conn,
		samples: make(chan []float64, 4096),
		done:    make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

func (s *WebSocketSource) readLoop() {
	defer close(s.samples)
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			return
		}
		batch, err := ParseFrame(msg)
		if err != nil {
			s.skip()
			continue
		}
		for _, sample := range batch {
			if s.desc.ChannelCount > 0 && len(sample) != s.desc.ChannelCount {
				s.skip()
				continue
			}
			select {
			case s.samples <- sample:
			case <-s.done:
				return
			}
		}
	}
}

func (s *WebSocketSource) skip() {
	s.mu.Lock()
	s.skipped++
	s.mu.Unlock()
}

// Skipped returns the number of undecodable frames and wrong-width samples
// dropped so far.
func (s *WebSocketSource) Skipped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

// ParseFrame decodes one websocket message into samples.
func ParseFrame(msg []byte) ([][]float64, error) {
	var batch [][]float64
	if err := json.Unmarshal(msg, &batch); err == nil {
		if len(batch) == 0 {
			return nil, fmt.Errorf("frame without samples")
		}
		return batch, nil
	}
	var single []float64
	if err := json.Unmarshal(msg, &single); err == nil {
		if len(single) == 0 {
			return nil, fmt.Errorf("empty sample")
		}
		return [][]float64{single}, nil
	}
	var f frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	if len(f.Samples) == 0 {
		return nil, fmt.Errorf("frame without samples")
	}
	return f.Samples, nil
}

func (s *WebSocketSource) Info() Descriptor {
	return s.desc
}

func (s *WebSocketSource) Pull(ctx context.Context, timeout time.Duration) ([]float64, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case sample, ok := <-s.samples:
		if !ok {
			return nil, s.closedErr()
		}
		return sample, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-expired:
		return nil, fault.ErrAcquisitionTimeout
	}
}

func (s *WebSocketSource) closedErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr == nil || websocket.IsCloseError(s.readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return io.EOF
	}
	return fmt.Errorf("websocket read from %s: %w", s.desc.Address, s.readErr)
}

func (s *WebSocketSource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}

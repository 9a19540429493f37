package broadcast

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/moonwatch/internal/adapter/metrics"
)

const (
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 16
)

var (
	// ErrSubscriberClosed means the peer closed the connection.
	ErrSubscriberClosed = errors.New("subscriber closed")
	// ErrSubscriberSend means a write failed or missed its deadline.
	ErrSubscriberSend = errors.New("subscriber send failed")
)

// SubscriberState is the lifecycle of a registered subscriber. The connecting
// phase is the HTTP upgrade and never reaches the registry, so a subscriber
// starts Active. Closed is terminal.
type SubscriberState int32

const (
	StateActive SubscriberState = iota + 1
	StateClosed
)

func (s SubscriberState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("SubscriberState(%d)", int32(s))
	}
}

type subscriber struct {
	id          uuid.UUID
	connection  *websocket.Conn
	clock       clockwork.Clock
	metrics     *metrics.BroadcasterMetrics
	sendTimeout time.Duration
	sendChannel chan []byte
	doneChannel chan struct{}
	onFailure   func(*subscriber, error)
	state       atomic.Int32
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func newSubscriber(id uuid.UUID, connection *websocket.Conn, clock clockwork.Clock, m *metrics.BroadcasterMetrics, sendTimeout time.Duration, onFailure func(*subscriber, error)) *subscriber {
	s := &subscriber{
		id:          id,
		connection:  connection,
		clock:       clock,
		metrics:     m,
		sendTimeout: sendTimeout,
		sendChannel: make(chan []byte, messageBufferSize),
		doneChannel: make(chan struct{}),
		onFailure:   onFailure,
	}
	s.state.Store(int32(StateActive))
	s.configurePongHandler()
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *subscriber) State() SubscriberState {
	return SubscriberState(s.state.Load())
}

// enqueue hands a frame to the writer without blocking. It returns false when
// the buffer is full.
func (s *subscriber) enqueue(data []byte) bool {
	select {
	case s.sendChannel <- data:
		return true
	default:
		return false
	}
}

func (s *subscriber) run() {
	ticker := s.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.wg.Done()

	for {
		select {
		case msg := <-s.sendChannel:
			start := s.clock.Now()
			if err := s.send(websocket.TextMessage, msg); err != nil {
				s.fail(err)
				return
			}
			s.metrics.MessagesSent.Inc()
			s.metrics.MessageSendDuration.Observe(s.clock.Since(start).Seconds())
		case <-ticker.Chan():
			if err := s.send(websocket.PingMessage, nil); err != nil {
				s.fail(err)
				return
			}
		case <-s.doneChannel:
			return
		}
	}
}

// send writes one frame and classifies the failure, if any.
func (s *subscriber) send(messageType int, data []byte) error {
	// Deadlines are wall-clock: they are enforced by the network stack, not our clock.
	_ = s.connection.SetWriteDeadline(time.Now().Add(s.sendTimeout))

	err := s.connection.WriteMessage(messageType, data)
	if err == nil {
		return nil
	}
	if isClosedError(err) {
		return fmt.Errorf("%w: %w", ErrSubscriberClosed, err)
	}
	return fmt.Errorf("%w: %w", ErrSubscriberSend, err)
}

// fail ends the subscriber from its own writer goroutine.
func (s *subscriber) fail(err error) {
	s.state.Store(int32(StateClosed))
	_ = s.connection.Close()
	if s.onFailure != nil {
		s.onFailure(s, err)
	}
}

func (s *subscriber) stop() {
	s.stopOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.doneChannel)
		_ = s.connection.Close()
	})
	s.wg.Wait()
}

// stopGraceful sends a close frame with reason before closing.
func (s *subscriber) stopGraceful(reason string) {
	s.stopOnce.Do(func() {
		s.state.Store(int32(StateClosed))

		// The writer must exit before we write the close frame; gorilla
		// connections allow only one concurrent writer.
		close(s.doneChannel)
		s.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = s.connection.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(s.sendTimeout))
		_ = s.connection.Close()
	})
	s.wg.Wait()
}

func (s *subscriber) configurePongHandler() {
	s.updateReadDeadline()
	s.connection.SetPongHandler(func(string) error {
		s.updateReadDeadline()
		return nil
	})
}

func (s *subscriber) updateReadDeadline() {
	_ = s.connection.SetReadDeadline(time.Now().Add(pongDeadline))
}

func isClosedError(err error) bool {
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr) ||
		errors.Is(err, websocket.ErrCloseSent) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}

package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/moonwatch/internal/adapter/metrics"
	"github.com/pscheid92/moonwatch/internal/domain"
	"github.com/pscheid92/moonwatch/internal/ephemeris"
	"github.com/pscheid92/moonwatch/internal/platform/correlation"
)

const (
	commandTimeout    = 5 * time.Second
	stopTimeout       = 10 * time.Second
	commandBufferSize = 256
)

// ErrStopped is returned by operations on a broadcaster whose loop has exited.
var ErrStopped = errors.New("broadcaster stopped")

// Options tune the broadcast loop.
type Options struct {
	Interval       time.Duration
	SendTimeout    time.Duration
	MaxSubscribers int
	SendOnConnect  bool
}

// DefaultOptions returns the production cadence: one frame every 10 seconds.
func DefaultOptions() Options {
	return Options{
		Interval:       10 * time.Second,
		SendTimeout:    5 * time.Second,
		MaxSubscribers: 10000,
	}
}

// broadcasterCmd is the command interface for the Broadcaster actor.
type broadcasterCmd interface{ isBroadcasterCmd() }

type baseBroadcasterCmd struct{}

func (baseBroadcasterCmd) isBroadcasterCmd() {}

type registerResult struct {
	id  uuid.UUID
	err error
}

type registerCmd struct {
	baseBroadcasterCmd
	connection   *websocket.Conn
	replyChannel chan registerResult
}

type unregisterCmd struct {
	baseBroadcasterCmd
	id     uuid.UUID
	reason string
}

type countCmd struct {
	baseBroadcasterCmd
	replyChannel chan int
}

type stopCmd struct {
	baseBroadcasterCmd
}

// Broadcaster owns the subscriber registry and drives the periodic
// compute-and-broadcast cycle.
type Broadcaster struct {
	cmdCh       chan broadcasterCmd
	clock       clockwork.Clock
	source      domain.PositionSource
	metrics     *metrics.BroadcasterMetrics
	subscribers map[uuid.UUID]*subscriber
	opts        Options
	done        chan struct{}
	stopOnce    sync.Once
	stopTimeout time.Duration
}

// NewBroadcaster creates a broadcaster and starts its loop.
// source is queried once per tick with the clock's current time.
func NewBroadcaster(source domain.PositionSource, clock clockwork.Clock, m *metrics.BroadcasterMetrics, opts Options) *Broadcaster {
	defaults := DefaultOptions()
	if opts.Interval <= 0 {
		opts.Interval = defaults.Interval
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaults.SendTimeout
	}
	if opts.MaxSubscribers <= 0 {
		opts.MaxSubscribers = defaults.MaxSubscribers
	}

	b := &Broadcaster{
		cmdCh:       make(chan broadcasterCmd, commandBufferSize),
		clock:       clock,
		source:      source,
		metrics:     m,
		subscribers: make(map[uuid.UUID]*subscriber),
		opts:        opts,
		done:        make(chan struct{}),
		stopTimeout: stopTimeout,
	}
	go b.run()
	return b
}

// Register adds an upgraded connection as a new subscriber and returns its id.
// On error the caller still owns conn and is responsible for closing it.
func (b *Broadcaster) Register(conn *websocket.Conn) (uuid.UUID, error) {
	replyCh := make(chan registerResult, 1)
	if err := b.send(registerCmd{connection: conn, replyChannel: replyCh}); err != nil {
		return uuid.Nil, err
	}

	// Use timeout to prevent blocking forever if broadcaster is stuck
	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case res := <-replyCh:
		return res.id, res.err
	case <-b.done:
		return uuid.Nil, ErrStopped
	case <-timer.Chan():
		return uuid.Nil, fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes a subscriber whose peer went away. Unknown ids are ignored.
func (b *Broadcaster) Unregister(id uuid.UUID) {
	_ = b.send(unregisterCmd{id: id, reason: metrics.RemovalClosed})
}

// Count returns the number of registered subscribers, or -1 if the command times out.
func (b *Broadcaster) Count() int {
	replyCh := make(chan int, 1)
	if err := b.send(countCmd{replyChannel: replyCh}); err != nil {
		return 0
	}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-b.done:
		return 0
	case <-timer.Chan():
		slog.Warn("Count timed out", "timeout", commandTimeout)
		return -1
	}
}

// Running reports ErrStopped once the broadcast loop has exited.
func (b *Broadcaster) Running() error {
	select {
	case <-b.done:
		return ErrStopped
	default:
		return nil
	}
}

// Stop closes every subscriber with a normal-closure frame and stops the loop.
// Blocks until the loop has exited or the stop timeout is reached. Safe to call twice.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		if err := b.send(stopCmd{}); err != nil {
			return
		}

		timeout := b.clock.NewTimer(b.stopTimeout)
		defer timeout.Stop()

		select {
		case <-b.done:
			slog.Info("Broadcaster stopped gracefully")
		case <-timeout.Chan():
			slog.Warn("Broadcaster stop timeout exceeded", "timeout", b.stopTimeout)
			b.metrics.StopTimeoutsExceeded.Inc()
		}
	})
}

func (b *Broadcaster) send(cmd broadcasterCmd) error {
	select {
	case b.cmdCh <- cmd:
		return nil
	case <-b.done:
		return ErrStopped
	}
}

func (b *Broadcaster) run() {
	defer close(b.done)

	// Panic recovery wrapper
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Broadcaster panic recovered", "panic", r)
			b.metrics.BroadcasterPanics.Inc()
			b.closeAll(metrics.RemovalShutdown, "broadcaster panic")
		}
	}()

	ticker := b.clock.NewTicker(b.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-b.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				b.handleRegister(c)
			case unregisterCmd:
				b.handleUnregister(c)
			case countCmd:
				c.replyChannel <- len(b.subscribers)
			case stopCmd:
				b.handleStop()
				return
			default:
				slog.Warn("Broadcaster received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		case <-ticker.Chan():
			b.handleTick()
		}
	}
}

func (b *Broadcaster) handleRegister(c registerCmd) {
	if len(b.subscribers) >= b.opts.MaxSubscribers {
		slog.Warn("Rejecting subscriber: registry full", "max_subscribers", b.opts.MaxSubscribers)
		b.metrics.SubscribersRejected.Inc()
		c.replyChannel <- registerResult{err: fmt.Errorf("%w: limit is %d", domain.ErrTooManySubscribers, b.opts.MaxSubscribers)}
		return
	}

	s := newSubscriber(uuid.New(), c.connection, b.clock, b.metrics, b.opts.SendTimeout, b.reportFailure)
	b.subscribers[s.id] = s

	b.metrics.SubscribersAdded.Inc()
	b.metrics.ActiveSubscribers.Set(float64(len(b.subscribers)))

	if b.opts.SendOnConnect {
		b.greet(s)
	}

	slog.Debug("Subscriber registered", "subscriber_id", s.id.String(), "total_subscribers", len(b.subscribers))
	c.replyChannel <- registerResult{id: s.id}
}

func (b *Broadcaster) handleUnregister(c unregisterCmd) {
	s, exists := b.subscribers[c.id]
	if !exists {
		return
	}

	s.stop()
	delete(b.subscribers, c.id)

	b.metrics.SubscribersRemoved.WithLabelValues(c.reason).Inc()
	b.metrics.ActiveSubscribers.Set(float64(len(b.subscribers)))

	slog.Debug("Subscriber removed", "subscriber_id", c.id.String(), "reason", c.reason, "remaining_subscribers", len(b.subscribers))
}

func (b *Broadcaster) handleTick() {
	tickStart := b.clock.Now()
	ctx := correlation.NewContext(context.Background())

	b.metrics.TicksTotal.Inc()
	b.metrics.CommandChannelDepth.Set(float64(len(b.cmdCh)))
	defer func() {
		b.metrics.TickDuration.Observe(b.clock.Since(tickStart).Seconds())
	}()

	message, err := b.compute(tickStart)
	if err != nil {
		b.metrics.TickFailures.Inc()
		slog.ErrorContext(ctx, "Position computation failed, nothing broadcast this tick", "error", err)
		return
	}

	slog.InfoContext(ctx, "Broadcasting position", "message", message, "subscribers", len(b.subscribers))

	data := []byte(message)
	var slow []uuid.UUID
	for id, s := range b.subscribers {
		if !s.enqueue(data) {
			slow = append(slow, id)
		}
	}

	// Removals are applied after the pass, never while iterating.
	for _, id := range slow {
		slog.WarnContext(ctx, "Disconnecting slow subscriber", "subscriber_id", id.String())
		b.handleUnregister(unregisterCmd{id: id, reason: metrics.RemovalSlow})
	}
}

func (b *Broadcaster) compute(at time.Time) (string, error) {
	pos, err := b.source.Position(at.UTC())
	if err != nil {
		return "", fmt.Errorf("compute position: %w", err)
	}
	return ephemeris.FormatMessage(pos), nil
}

// greet queues the current position for a freshly registered subscriber.
func (b *Broadcaster) greet(s *subscriber) {
	message, err := b.compute(b.clock.Now())
	if err != nil {
		slog.Error("Position computation failed for new subscriber", "subscriber_id", s.id.String(), "error", err)
		return
	}
	s.enqueue([]byte(message))
}

// reportFailure runs on the subscriber's writer goroutine. It gives up as soon
// as the subscriber is being stopped so it can never block the actor.
func (b *Broadcaster) reportFailure(s *subscriber, err error) {
	reason := metrics.RemovalSendFailed
	if errors.Is(err, ErrSubscriberClosed) {
		reason = metrics.RemovalClosed
	}
	slog.Debug("Subscriber delivery ended", "subscriber_id", s.id.String(), "reason", reason, "error", err)

	select {
	case b.cmdCh <- unregisterCmd{id: s.id, reason: reason}:
	case <-s.doneChannel:
	case <-b.done:
	}
}

func (b *Broadcaster) handleStop() {
	total := len(b.subscribers)
	slog.Info("Broadcaster shutting down", "subscribers", total)

	b.closeAll(metrics.RemovalShutdown, "Server shutting down")

	slog.Info("Broadcaster shutdown complete", "disconnected_subscribers", total)
}

// closeAll closes every subscriber concurrently with the given close reason.
// Used during panic recovery and graceful shutdown.
func (b *Broadcaster) closeAll(reason, closeText string) {
	var wg sync.WaitGroup
	for id, s := range b.subscribers {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.stopGraceful(closeText)
		}()
		delete(b.subscribers, id)
		b.metrics.SubscribersRemoved.WithLabelValues(reason).Inc()
	}
	wg.Wait()
	b.metrics.ActiveSubscribers.Set(0)
}

package broadcast

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/moonwatch/internal/adapter/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSubscriber(t *testing.T, onFailure func(*subscriber, error)) (*subscriber, *websocket.Conn, *metrics.BroadcasterMetrics) {
	t.Helper()
	server, client := newTestConnPair(t)
	m := metrics.NewBroadcasterMetrics(prometheus.NewRegistry())
	s := newSubscriber(uuid.New(), server, clockwork.NewRealClock(), m, time.Second, onFailure)
	t.Cleanup(s.stop)
	return s, client, m
}

func TestSubscriber_WritesQueuedFrames(t *testing.T) {
	s, client, m := newTestSubscriber(t, nil)

	require.True(t, s.enqueue([]byte("first")))
	require.True(t, s.enqueue([]byte("second")))

	assert.Equal(t, "first", readFrame(t, client))
	assert.Equal(t, "second", readFrame(t, client))
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.MessagesSent) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestSubscriber_EnqueueReportsFullBuffer(t *testing.T) {
	s := &subscriber{sendChannel: make(chan []byte, 1)}

	assert.True(t, s.enqueue([]byte("a")))
	assert.False(t, s.enqueue([]byte("b")))
}

func TestSubscriber_FailureIsReportedAndClosesState(t *testing.T) {
	reported := make(chan error, 1)
	s, _, _ := newTestSubscriber(t, func(_ *subscriber, err error) { reported <- err })
	assert.Equal(t, StateActive, s.State())

	require.NoError(t, s.connection.UnderlyingConn().Close())
	require.True(t, s.enqueue([]byte("lost")))

	select {
	case err := <-reported:
		assert.True(t, errors.Is(err, ErrSubscriberClosed) || errors.Is(err, ErrSubscriberSend))
	case <-time.After(2 * time.Second):
		t.Fatal("failure was not reported")
	}
	assert.Equal(t, StateClosed, s.State())
}

func TestSubscriber_StopIsIdempotent(t *testing.T) {
	s, _, _ := newTestSubscriber(t, nil)

	s.stop()
	s.stop()
	s.stopGraceful("again")

	assert.Equal(t, StateClosed, s.State())
}

func TestSubscriber_StopGracefulSendsCloseFrame(t *testing.T) {
	s, client, _ := newTestSubscriber(t, nil)

	s.stopGraceful("bye")

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, "bye", closeErr.Text)
}

func TestSubscriberState_String(t *testing.T) {
	assert.Equal(t, "SubscriberState(0)", SubscriberState(0).String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "SubscriberState(7)", SubscriberState(7).String())
}

func TestIsClosedError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"close frame", &websocket.CloseError{Code: websocket.CloseGoingAway}, true},
		{"close sent", websocket.ErrCloseSent, true},
		{"closed network conn", &net.OpError{Op: "write", Err: net.ErrClosed}, true},
		{"broken pipe", fmt.Errorf("write: %w", syscall.EPIPE), true},
		{"reset by peer", fmt.Errorf("write: %w", syscall.ECONNRESET), true},
		{"timeout", &net.OpError{Op: "write", Err: errors.New("i/o timeout")}, false},
		{"other", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isClosedError(tt.err))
		})
	}
}

package fanout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teamflow/notification-service/internal/model"
	"go.uber.org/zap/zaptest"
)

type fakeConn struct {
	mu       sync.Mutex
	events   []model.ChangeEvent
	failNext bool
	done     chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{done: make(chan struct{})}
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext {
		return errors.New("broken pipe")
	}
	c.events = append(c.events, v.(model.ChangeEvent))
	return nil
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.done
	return 0, nil, errors.New("closed")
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) received() []model.ChangeEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.ChangeEvent(nil), c.events...)
}

func event(kind model.EventKind, recipient, notification uuid.UUID, version int64) model.ChangeEvent {
	return model.ChangeEvent{
		Kind:           kind,
		RecipientID:    recipient,
		NotificationID: notification,
		Version:        version,
		At:             time.Now(),
	}
}

func TestHub_DeliversToEverySessionOfRecipient(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), 4, 16)
	defer hub.Close()

	user, other := uuid.New(), uuid.New()
	tab1, tab2, stranger := newFakeConn(), newFakeConn(), newFakeConn()
	hub.Register(user, tab1)
	hub.Register(user, tab2)
	hub.Register(other, stranger)
	assert.Equal(t, 2, hub.SessionCount(user))

	hub.Publish(event(model.EventRead, user, uuid.New(), 2))

	assert.Eventually(t, func() bool {
		return len(tab1.received()) == 1 && len(tab2.received()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Empty(t, stranger.received())
}

func TestHub_PreservesOrderPerNotification(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), 8, 256)
	defer hub.Close()

	user := uuid.New()
	conn := newFakeConn()
	hub.Register(user, conn)

	notification := uuid.New()
	const n = 100
	hub.Publish(event(model.EventCreated, user, notification, 1))
	for v := int64(2); v <= n; v++ {
		hub.Publish(event(model.EventRead, user, notification, v))
	}

	require.Eventually(t, func() bool { return len(conn.received()) == n }, time.Second, 10*time.Millisecond)
	got := conn.received()
	assert.Equal(t, model.EventCreated, got[0].Kind)
	for i := 1; i < n; i++ {
		assert.Equal(t, got[i-1].Version+1, got[i].Version)
	}
}

func TestHub_FailedWriteDropsSession(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), 1, 16)
	defer hub.Close()

	user := uuid.New()
	conn := newFakeConn()
	conn.failNext = true
	hub.Register(user, conn)

	hub.Publish(event(model.EventRead, user, uuid.New(), 2))

	assert.Eventually(t, func() bool { return hub.SessionCount(user) == 0 }, time.Second, 10*time.Millisecond)
}

func TestHub_PeerDisconnectUnregisters(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), 1, 16)
	defer hub.Close()

	user := uuid.New()
	conn := newFakeConn()
	hub.Register(user, conn)
	conn.Close()

	assert.Eventually(t, func() bool { return hub.SessionCount(user) == 0 }, time.Second, 10*time.Millisecond)
}

func TestHub_PublishAfterCloseIsIgnored(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), 1, 1)
	hub.Close()

	assert.NotPanics(t, func() {
		hub.Publish(event(model.EventRead, uuid.New(), uuid.New(), 1))
	})
}

func TestBridge_RelaysBetweenInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { rdb.Close() })
		return rdb
	}
	logger := zaptest.NewLogger(t)

	hubA := NewHub(logger, 2, 16)
	hubB := NewHub(logger, 2, 16)
	defer hubA.Close()
	defer hubB.Close()

	bridgeA := NewBridge(hubA, newClient(), logger)
	bridgeB := NewBridge(hubB, newClient(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bridgeA.Run(ctx)
	go bridgeB.Run(ctx)
	<-bridgeA.Ready()
	<-bridgeB.Ready()

	user := uuid.New()
	onA, onB := newFakeConn(), newFakeConn()
	hubA.Register(user, onA)
	hubB.Register(user, onB)

	bridgeA.Publish(event(model.EventCreated, user, uuid.New(), 1))

	assert.Eventually(t, func() bool { return len(onB.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return len(onA.received()) == 1 }, 2*time.Second, 10*time.Millisecond)

	// the origin instance must not deliver its own relayed copy again
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, onA.received(), 1)
}

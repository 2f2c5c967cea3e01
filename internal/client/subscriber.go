package client

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teamflow/notification-service/internal/model"
	"go.uber.org/zap"
)

const defaultReconnectDelay = 2 * time.Second

// Subscriber feeds the service's realtime stream into a SyncController. After
// every (re)connect it refreshes the controller, since events sent while it
// was disconnected are lost.
type Subscriber struct {
	url            string
	header         http.Header
	dialer         *websocket.Dialer
	controller     *SyncController
	logger         *zap.Logger
	reconnectDelay time.Duration
}

func NewSubscriber(wsURL, token string, controller *SyncController, logger *zap.Logger) *Subscriber {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return &Subscriber{
		url:            wsURL,
		header:         header,
		dialer:         websocket.DefaultDialer,
		controller:     controller,
		logger:         logger,
		reconnectDelay: defaultReconnectDelay,
	}
}

// Run keeps the subscription alive until ctx is done.
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		if err := s.session(ctx); err != nil && ctx.Err() == nil {
			s.logger.Sugar().Warnf("notification stream interrupted, reconnecting in %s: %s", s.reconnectDelay, err.Error())
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *Subscriber) session(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := s.controller.Refresh(ctx); err != nil {
		s.logger.Sugar().Warnf("failed to refresh notifications after connecting: %s", err.Error())
	}

	for {
		var event model.ChangeEvent
		if err := conn.ReadJSON(&event); err != nil {
			return err
		}
		s.controller.ApplyEvent(event)
	}
}

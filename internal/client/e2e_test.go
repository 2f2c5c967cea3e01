package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teamflow/notification-service/internal/dto"
	"github.com/teamflow/notification-service/internal/fanout"
	"github.com/teamflow/notification-service/internal/handler"
	"github.com/teamflow/notification-service/internal/model"
	"github.com/teamflow/notification-service/internal/repository/memory"
	"github.com/teamflow/notification-service/internal/service"
	"go.uber.org/zap/zaptest"
)

const e2eSecret = "e2e-secret"

type e2eServer struct {
	url      string
	services    *service.Service
	hub         *fanout.Hub
	memberships *memory.MembershipStore
}

func startServer(t *testing.T) *e2eServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	repo, memberships := memory.New()
	hub := fanout.NewHub(logger, 2, 64)
	services := service.New(logger, repo, nil, nil, hub, service.Options{})
	h := handler.New(logger, services, hub, handler.Options{JWTSecret: []byte(e2eSecret)})

	server := httptest.NewServer(h.SetupRoutes())
	t.Cleanup(func() {
		server.Close()
		hub.Close()
	})
	return &e2eServer{url: server.URL, services: services, hub: hub, memberships: memberships}
}

func tokenFor(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  userID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(e2eSecret))
	require.NoError(t, err)
	return token
}

func TestEndToEnd_AcceptInvitationFromTwoTabs(t *testing.T) {
	srv := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	user := uuid.New()
	token := tokenFor(t, user)
	wsURL := "ws" + strings.TrimPrefix(srv.url, "http") + "/api/v1/notifications/ws"

	tab1 := NewSyncController(NewHTTPAPI(srv.url, token))
	tab2 := NewSyncController(NewHTTPAPI(srv.url, token))
	logger := zaptest.NewLogger(t)
	go NewSubscriber(wsURL, token, tab1, logger).Run(ctx)
	go NewSubscriber(wsURL, token, tab2, logger).Run(ctx)
	require.Eventually(t, func() bool {
		return srv.hub.SessionCount(user) == 2
	}, 2*time.Second, 10*time.Millisecond)

	team := uuid.New()
	srv.memberships.AddTeam(team)
	created, err := srv.services.Notification.Create(ctx, dto.CreateNotification{
		RecipientID:    user,
		Type:           string(model.TypeProjectInvitation),
		Title:          "Project invitation",
		RelatedProject: &dto.ProjectRef{ID: uuid.New(), Name: "Apollo"},
		Invitation:     &dto.InvitationRef{TeamID: team, InvitedByUserID: uuid.New()},
	})
	require.NoError(t, err)

	for _, tab := range []*SyncController{tab1, tab2} {
		tab := tab
		require.Eventually(t, func() bool {
			_, ok := tab.Get(created.ID)
			return ok
		}, 2*time.Second, 10*time.Millisecond)
	}

	first, err := tab1.AcceptInvitation(ctx, created.ID)
	require.NoError(t, err)
	second, err := tab2.AcceptInvitation(ctx, created.ID)
	require.NoError(t, err)

	outcomes := []model.AcceptOutcome{first.Outcome, second.Outcome}
	assert.ElementsMatch(t, []model.AcceptOutcome{model.Accepted, model.AlreadyAccepted}, outcomes)

	for _, tab := range []*SyncController{tab1, tab2} {
		item, ok := tab.Get(created.ID)
		require.True(t, ok)
		assert.True(t, item.View.IsRead)
		assert.True(t, item.View.Invitation.Accepted)
	}
}

func TestEndToEnd_ErrorsMapToSentinels(t *testing.T) {
	srv := startServer(t)
	ctx := context.Background()
	owner := uuid.New()

	created, err := srv.services.Notification.Create(ctx, dto.CreateNotification{RecipientID: owner, Type: "mention", Title: "hi"})
	require.NoError(t, err)

	stranger := NewHTTPAPI(srv.url, tokenFor(t, uuid.New()))
	_, err = stranger.MarkRead(ctx, created.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	api := NewHTTPAPI(srv.url, tokenFor(t, owner))
	_, err = api.AcceptInvitation(ctx, created.ID)
	assert.ErrorIs(t, err, ErrInvalidType)

	_, err = NewHTTPAPI(srv.url, "garbage").List(ctx)
	assert.ErrorIs(t, err, ErrUnauthorized)

	count, err := api.MarkAllRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/teamflow/notification-service/internal/fanout"
	"github.com/teamflow/notification-service/internal/service"
	"go.uber.org/zap"
)

type Resp map[string]interface{}

// AuthFunc resolves the calling user from a request.
type AuthFunc func(r *http.Request) (uuid.UUID, error)

type Options struct {
	JWTSecret []byte
	// ServiceToken is the credential producers send in X-Service-Token. The
	// internal create route is only mounted when it is set.
	ServiceToken string
	// HideForbidden renders ownership failures as 404 so ids of other users'
	// notifications cannot be discovered.
	HideForbidden bool
}

type Handler struct {
	logger        *zap.Logger
	services      *service.Service
	hub           *fanout.Hub
	upgrader      websocket.Upgrader
	authenticate  AuthFunc
	serviceToken  []byte
	hideForbidden bool
}

func New(logger *zap.Logger, services *service.Service, hub *fanout.Hub, opts Options) *Handler {
	h := &Handler{
		logger:        logger,
		services:      services,
		hub:           hub,
		serviceToken:  []byte(opts.ServiceToken),
		hideForbidden: opts.HideForbidden,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	h.authenticate = jwtAuthenticator(opts.JWTSecret)
	return h
}

// WithAuthenticator replaces the bearer token check.
func (h *Handler) WithAuthenticator(fn AuthFunc) *Handler {
	h.authenticate = fn
	return h
}

func (h *Handler) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	// GET
	mux.HandleFunc("GET /api/v1/notifications", h.authMiddleware(h.notificationsList))
	mux.HandleFunc("GET /api/v1/notifications/unread-count", h.authMiddleware(h.notificationsUnreadCount))
	mux.HandleFunc("GET /api/v1/notifications/ws", h.authMiddleware(h.notificationsSubscribe))

	// POST
	mux.HandleFunc("POST /api/v1/notifications/{id}/read", h.authMiddleware(h.notificationsMarkRead))
	mux.HandleFunc("POST /api/v1/notifications/read-all", h.authMiddleware(h.notificationsMarkAllRead))
	mux.HandleFunc("POST /api/v1/notifications/{id}/accept-invitation", h.authMiddleware(h.notificationsAcceptInvitation))

	// internal, for producers that cannot use the queue
	if len(h.serviceToken) > 0 {
		mux.HandleFunc("POST /api/v1/internal/notifications", h.serviceMiddleware(h.notificationsCreate))
	}

	// ops
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		h.Respond(w, Resp{"status": "ok"}, http.StatusOK)
	})

	return mux
}

func (h *Handler) Respond(w http.ResponseWriter, resp any, statusCode int) {
	respJSON, err := json.Marshal(resp)
	if err != nil {
		h.logger.Sugar().Errorf("failed to encode response: %s", err.Error())
		statusCode = http.StatusInternalServerError
		respJSON = []byte(`{"error":"internal server error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(respJSON)
}

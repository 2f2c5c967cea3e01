package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/teamflow/notification-service/internal/dto"
)

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, errInvalidID
	}
	return id, nil
}

func (h *Handler) notificationsList(userID uuid.UUID, w http.ResponseWriter, r *http.Request) {
	notifications, err := h.services.Notification.List(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.Respond(w, notifications, http.StatusOK)
}

func (h *Handler) notificationsUnreadCount(userID uuid.UUID, w http.ResponseWriter, r *http.Request) {
	count, err := h.services.Notification.UnreadCount(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.Respond(w, Resp{"count": count}, http.StatusOK)
}

func (h *Handler) notificationsMarkRead(userID uuid.UUID, w http.ResponseWriter, r *http.Request) {
	notificationID, err := pathID(r)
	if err != nil {
		h.Respond(w, Resp{"error": err.Error()}, http.StatusBadRequest)
		return
	}

	outcome, notification, err := h.services.Notification.MarkRead(r.Context(), userID, notificationID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.Respond(w, Resp{"outcome": outcome, "notification": notification}, http.StatusOK)
}

func (h *Handler) notificationsMarkAllRead(userID uuid.UUID, w http.ResponseWriter, r *http.Request) {
	count, err := h.services.Notification.MarkAllRead(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.Respond(w, Resp{"count": count}, http.StatusOK)
}

func (h *Handler) notificationsAcceptInvitation(userID uuid.UUID, w http.ResponseWriter, r *http.Request) {
	notificationID, err := pathID(r)
	if err != nil {
		h.Respond(w, Resp{"error": err.Error()}, http.StatusBadRequest)
		return
	}

	result, err := h.services.Notification.AcceptInvitation(r.Context(), userID, notificationID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.Respond(w, result, http.StatusOK)
}

func (h *Handler) notificationsCreate(w http.ResponseWriter, r *http.Request) {
	var input dto.CreateNotification
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.Respond(w, Resp{"error": errInvalidBody.Error()}, http.StatusBadRequest)
		return
	}

	notification, err := h.services.Notification.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.Respond(w, notification.View(), http.StatusCreated)
}

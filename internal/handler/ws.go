package handler

import (
	"net/http"

	"github.com/google/uuid"
)

// notificationsSubscribe upgrades to a websocket that receives the user's
// change events until either side closes it.
func (h *Handler) notificationsSubscribe(userID uuid.UUID, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Sugar().Warnf("failed to upgrade user(%s)'s connection: %s", userID.String(), err.Error())
		return
	}

	session := h.hub.Register(userID, conn)
	h.logger.Sugar().Infof("user(%s) subscribed with session(%s)", userID.String(), session.ID.String())
}

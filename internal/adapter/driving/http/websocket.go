package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Wyydra/yasignal/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/yasignal/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ServeWS upgrades GET /ws?id=<client id> and relays the client's frames
// until it disconnects.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseClientID(r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeMalformedEnvelope, "missing id query parameter")
		return
	}
	if h.Auth != nil {
		if err := h.Auth.Authorize(r, id); err != nil {
			log.Warn().Err(err).Str("client_id", id.String()).Msg("Rejected connection")
			writeError(w, http.StatusUnauthorized, domain.CodeUnauthorized, err.Error())
			return
		}
	}
	if _, err := h.Router.Registry().Lookup(id); err == nil {
		writeError(w, http.StatusConflict, domain.CodeDuplicateID, fmt.Sprintf("client id %q already connected", id))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	client := ws.NewClient(id, conn, ws.Options{
		SendBuffer:   h.cfg.SendBufferSize,
		WriteWait:    h.cfg.WriteWait,
		PingInterval: h.cfg.PingInterval,
	})
	l := log.With().Str("client_id", id.String()).Str("conn_id", client.ConnID().String()).Logger()

	// Another connection may have claimed the id since the check above.
	if err := h.Router.Connect(client); err != nil {
		l.Warn().Err(err).Msg("Registration failed after upgrade")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, domain.Code(err)),
			time.Now().Add(h.cfg.WriteWait))
		conn.Close()
		return
	}
	if !h.Hub.Add(client) {
		h.Router.Disconnect(client)
		return
	}
	client.Start()
	l.Info().Msg("New client connected")

	defer func() {
		h.Router.Disconnect(client)
		h.Hub.Remove(client)
		client.Close()
		l.Info().Msg("Client disconnected")
	}()

	conn.SetReadLimit(h.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))
	})

	var limiter *rate.Limiter
	if n := h.cfg.MaxMessagesPerSecond; n > 0 {
		limiter = rate.NewLimiter(rate.Limit(n), n)
	}

	// listening for browser
	for {
		kind, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))

		if limiter != nil && !limiter.Allow() {
			_ = h.Router.RejectFrame(client, fmt.Errorf("%w: more than %d messages per second", domain.ErrRateLimited, h.cfg.MaxMessagesPerSecond))
			continue
		}
		if kind != websocket.TextMessage {
			_ = h.Router.RejectFrame(client, fmt.Errorf("%w: binary frames are not accepted", domain.ErrMalformedEnvelope))
			continue
		}

		if err := h.Router.HandleFrame(r.Context(), client, raw); err != nil {
			if r.Context().Err() != nil {
				return
			}
			l.Debug().Err(err).Msg("Frame rejected")
		}
	}
}

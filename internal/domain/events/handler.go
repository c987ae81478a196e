package events

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/framegrid/gallery-api/internal/domain/gallery"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Auth happens via the bearer-token middleware before the upgrade.
		return true
	},
}

// Handler exposes the websocket subscription endpoint
type Handler struct {
	hub *Hub
}

// NewHandler creates events handler
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// Subscribe handles GET /events/ws
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	client := h.hub.Register(conn)

	// Reader loop only detects disconnects; clients do not send messages.
	go func() {
		defer h.hub.Unregister(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Routes returns the events router
func (h *Handler) Routes(authMiddleware, adminMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(adminMiddleware)
	r.Get("/ws", h.Subscribe)
	return r
}

// AuditPublisher adapts the hub to the gallery service's publisher seam
type AuditPublisher struct {
	hub *Hub
}

// NewAuditPublisher creates the adapter
func NewAuditPublisher(hub *Hub) *AuditPublisher {
	return &AuditPublisher{hub: hub}
}

// PublishAudit pushes an audit record to all subscribers
func (p *AuditPublisher) PublishAudit(audit *gallery.AuditEntry) {
	p.hub.Publish("gallery:audit", gallery.AuditResponseFromEntity(audit))
}

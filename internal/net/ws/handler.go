package ws

import (
	nethttp "net/http"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ddm94/SlimyKitchenOnline/internal/hub"
	"github.com/ddm94/SlimyKitchenOnline/internal/telemetry"
)

const tracerName = "github.com/ddm94/SlimyKitchenOnline/internal/net/ws"

type HandlerConfig struct {
	Logger telemetry.Logger
	Tracer trace.Tracer
}

// Handler upgrades /ws requests and runs one session per connection.
type Handler struct {
	hub      *hub.Hub
	logger   telemetry.Logger
	tracer   trace.Tracer
	upgrader websocket.Upgrader
}

func NewHandler(h *hub.Hub, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Discard
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		hub:      h,
		logger:   logger,
		tracer:   tracer,
		upgrader: upgrader,
	}
}

func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	playerID := r.URL.Query().Get("id")
	if playerID == "" {
		nethttp.Error(w, "missing id", nethttp.StatusBadRequest)
		return
	}
	if !h.hub.HasParticipant(playerID) {
		nethttp.Error(w, "unknown player", nethttp.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for %s: %v", playerID, err)
		return
	}

	h.Serve(playerID, conn)
}

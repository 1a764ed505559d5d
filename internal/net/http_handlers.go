package net

import (
	"context"
	"errors"
	"io"
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"

	"github.com/ddm94/SlimyKitchenOnline/internal/catalog"
	"github.com/ddm94/SlimyKitchenOnline/internal/hub"
	"github.com/ddm94/SlimyKitchenOnline/internal/net/proto"
	"github.com/ddm94/SlimyKitchenOnline/internal/net/ws"
	"github.com/ddm94/SlimyKitchenOnline/internal/store"
	"github.com/ddm94/SlimyKitchenOnline/internal/telemetry"
)

const defaultMatchLimit = 20

// MatchLister lists persisted match results.
type MatchLister interface {
	RecentMatches(ctx context.Context, limit int) ([]store.MatchRecord, error)
}

type HTTPHandlerConfig struct {
	ClientDir string
	Logger    telemetry.Logger
	Matches   MatchLister
}

type joinRequest struct {
	CatalogFingerprint string `json:"catalogFingerprint"`
}

func NewHTTPHandler(h *hub.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Discard
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status     string          `json:"status"`
			ServerTime int64           `json:"serverTime"`
			TickRate   int             `json:"tickRate"`
			Heartbeat  int64           `json:"heartbeatMillis"`
			Session    hub.Diagnostics `json:"session"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			TickRate:   h.TickRate(),
			Heartbeat:  h.HeartbeatInterval().Milliseconds(),
			Session:    h.DiagnosticsSnapshot(),
		}
		writeJSON(w, logger, nethttp.StatusOK, payload)
	})

	mux.HandleFunc("/catalog", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		cat := h.Catalog()
		payload := struct {
			Fingerprint string           `json:"fingerprint"`
			Catalog     catalog.Document `json:"catalog"`
		}{
			Fingerprint: cat.Fingerprint(),
			Catalog:     cat.Document(),
		}
		writeJSON(w, logger, nethttp.StatusOK, payload)
	})

	mux.HandleFunc("/join", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}

		var req joinRequest
		if r.Body != nil {
			defer r.Body.Close()
			body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
			if err != nil {
				httpError(w, "invalid payload", nethttp.StatusBadRequest)
				return
			}
			if len(body) > 0 {
				if err := sonic.ConfigStd.Unmarshal(body, &req); err != nil {
					httpError(w, "invalid payload", nethttp.StatusBadRequest)
					return
				}
			}
		}

		join, err := h.Join(req.CatalogFingerprint)
		switch {
		case errors.Is(err, catalog.ErrFingerprintMismatch):
			httpError(w, err.Error(), nethttp.StatusConflict)
			return
		case errors.Is(err, hub.ErrClosed):
			httpError(w, "session closed", nethttp.StatusServiceUnavailable)
			return
		case err != nil:
			logger.Printf("join failed: %v", err)
			httpError(w, "join failed", nethttp.StatusInternalServerError)
			return
		}

		data, err := proto.EncodeJoinResponse(join)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.HandleFunc("/matches", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		if cfg.Matches == nil {
			httpError(w, "match history disabled", nethttp.StatusNotFound)
			return
		}
		limit := defaultMatchLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				httpError(w, "invalid limit", nethttp.StatusBadRequest)
				return
			}
			limit = parsed
		}
		records, err := cfg.Matches.RecentMatches(r.Context(), limit)
		if err != nil {
			logger.Printf("list matches failed: %v", err)
			httpError(w, "list failed", nethttp.StatusInternalServerError)
			return
		}
		payload := struct {
			Matches []store.MatchRecord `json:"matches"`
		}{Matches: records}
		writeJSON(w, logger, nethttp.StatusOK, payload)
	})

	wsHandler := ws.NewHandler(h, ws.HandlerConfig{Logger: logger})
	mux.HandleFunc("/ws", wsHandler.Handle)

	if cfg.ClientDir != "" {
		fs := nethttp.FileServer(nethttp.Dir(cfg.ClientDir))
		mux.Handle("/", fs)
	}

	return mux
}

func writeJSON(w nethttp.ResponseWriter, logger telemetry.Logger, status int, payload any) {
	data, err := sonic.ConfigStd.Marshal(payload)
	if err != nil {
		logger.Printf("failed to encode response: %v", err)
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/agenthub/internal/hub"
	"github.com/nextlevelbuilder/agenthub/internal/inbound"
	"github.com/nextlevelbuilder/agenthub/internal/model"
	"github.com/nextlevelbuilder/agenthub/internal/outbound"
	"github.com/nextlevelbuilder/agenthub/internal/store"
)

// Server exposes the hub over HTTP: inbound webhooks, the send API, health,
// and the websocket fanout endpoint.
type Server struct {
	host string
	port int

	processor *hub.Processor
	sender    *outbound.MessageSender
	registry  *Registry

	upgrader    websocket.Upgrader
	rateLimiter *WebhookRateLimiter

	httpServer *http.Server
	mux        *http.ServeMux
}

func NewServer(host string, port int, processor *hub.Processor, sender *outbound.MessageSender, registry *Registry) *Server {
	s := &Server{
		host:      host,
		port:      port,
		processor: processor,
		sender:    sender,
		registry:  registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		rateLimiter: NewWebhookRateLimiter(),
	}
	return s
}

// BuildMux creates and caches the route table.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /ws/stats", s.handleWSStats)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /webhooks/inbound/{platform}/{channel_id}", s.handleInboundWebhook)
	mux.HandleFunc("POST /channels/{channel_id}/chats/{chat_id}/messages", s.handleSendMessage)

	s.mux = mux
	return mux
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	slog.Info("gateway starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWSStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active_connections": s.registry.Count(),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(conn)
	s.registry.add(client)
	defer func() {
		s.registry.remove(client)
		client.close()
	}()

	client.run()
}

// handleInboundWebhook is the single entry point for all platform callbacks.
// The body may be JSON or a URL-encoded form depending on the provider.
// A panicking adapter must not kill the connection, so the handler recovers
// and answers with the generic 500 instead.
func (s *Server) handleInboundWebhook(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("inbound webhook panicked", "path", r.URL.Path, "panic", rec)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
	}()

	platformTag := r.PathValue("platform")
	channelID, err := uuid.Parse(r.PathValue("channel_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid channel id")
		return
	}

	if !s.rateLimiter.Allow(channelID.String()) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	payload, err := readPayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	result, err := s.processor.ProcessInbound(r.Context(), platformTag, channelID, payload)
	if err != nil {
		s.writeInboundError(w, r, err)
		return
	}

	resp := map[string]any{"status": "ok"}
	switch {
	case result.Skipped:
		resp["status"] = "skipped"
	case result.Warning != "":
		resp["status"] = "warning"
		resp["warning"] = result.Warning
	case result.Message != nil:
		resp["message_id"] = result.Message.ID.String()
		if result.Chat != nil {
			resp["chat_id"] = result.Chat.ID.String()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeInboundError maps pipeline errors onto the webhook status contract:
// 404 unknown channel, 400 bad platform or payload, 501 missing adapter,
// 500 anything unexpected.
func (s *Server) writeInboundError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, hub.ErrChannelNotFound):
		writeError(w, http.StatusNotFound, "channel not found")
	case errors.Is(err, hub.ErrUnknownPlatform), errors.Is(err, hub.ErrPlatformMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, inbound.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, inbound.ErrNotImplemented):
		writeError(w, http.StatusNotImplemented, err.Error())
	default:
		slog.Error("inbound webhook failed",
			"path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type sendMessageRequest struct {
	Content    string `json:"content"`
	SenderType string `json:"sender_type"`
}

// handleSendMessage is the outbound send API. Platform failures do not fail
// the request; the persisted message carries the outcome in its metadata.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	channelID, err := uuid.Parse(r.PathValue("channel_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid channel id")
		return
	}
	chatID, err := uuid.Parse(r.PathValue("chat_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	senderType := model.SenderUser
	switch req.SenderType {
	case "", string(model.SenderUser):
	case string(model.SenderAgent):
		senderType = model.SenderAgent
	default:
		writeError(w, http.StatusBadRequest, "sender_type must be USER or AGENT")
		return
	}

	msg, err := s.sender.Send(r.Context(), channelID, chatID, req.Content, senderType)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		slog.Error("send message failed", "channel_id", channelID, "chat_id", chatID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// readPayload decodes the request body per content type: forms become
// url.Values, everything else is kept as raw JSON bytes.
func readPayload(r *http.Request) (inbound.Payload, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return inbound.Payload{}, err
		}
		return inbound.Payload{Form: r.PostForm}, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return inbound.Payload{}, err
	}
	return inbound.Payload{JSON: body}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

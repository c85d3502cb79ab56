package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/chatrelay/internal/config"
	"github.com/ent0n29/chatrelay/internal/delivery"
	"github.com/ent0n29/chatrelay/internal/logging"
	"github.com/ent0n29/chatrelay/internal/message"
	"github.com/ent0n29/chatrelay/internal/observability"
	"github.com/ent0n29/chatrelay/internal/protocol"
	"github.com/ent0n29/chatrelay/internal/relay"
	"github.com/ent0n29/chatrelay/internal/statusfeed"
)

type Server struct {
	cfg       config.Config
	relay     *relay.Relay
	metrics   *observability.Metrics
	logger    *slog.Logger
	storeMode string
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, r *relay.Relay, metrics *observability.Metrics, logger *slog.Logger, storeMode string) *Server {
	return &Server{
		cfg:       cfg,
		relay:     r,
		metrics:   metrics,
		logger:    logging.OrDefault(logger),
		storeMode: storeMode,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})

	r.Get("/v1/ws", s.handleWS)
	r.Post("/v1/messages", s.handleMessageCreated)
	r.Post("/v1/messages/read", s.handleMarkRead)
	r.Post("/v1/messages/{id}/deleted", s.handleMessageDeleted)
	r.Get("/v1/users/{id}/status", s.handleUserStatus)
	r.Post("/v1/statuses/{id}/created", s.handleStatusCreated)
	r.Post("/v1/statuses/{id}/viewed", s.handleStatusViewed)
	r.Post("/v1/statuses/{id}/deleted", s.handleStatusDeleted)
	r.Get("/v1/calls/{id}", s.handleGetCall)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"store_mode": s.storeMode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ready",
		"store_mode":   s.storeMode,
		"online_users": s.relay.Registry.Count(),
		"active_calls": s.relay.Calls.Active(),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := newWSConn(conn, s.cfg.WSSendBuffer, s.metrics)
	peer := s.relay.NewPeer(c)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(ctx)
	}()

	if userID != "" {
		peer.Attach(userID)
	}

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.metrics.ObserveWSMessage("inbound", "invalid")
			c.Send(protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   relay.CodeInvalidMessage,
				Detail: err.Error(),
			})
			continue
		}
		s.metrics.ObserveWSMessage("inbound", string(parsed.Kind()))
		peer.Dispatch(ctx, parsed)
	}

	peer.Detach()
	c.Close()
	<-writerDone
}

type markReadRequest struct {
	MessageIDs []string `json:"messageIds" validate:"required,min=1,dive,required"`
	ReaderID   string   `json:"readerId" validate:"required"`
}

type messageDeletedRequest struct {
	ReceiverID string `json:"receiverId" validate:"required"`
}

type statusCreatedRequest struct {
	OwnerID string          `json:"ownerId" validate:"required"`
	Status  json.RawMessage `json:"status" validate:"required"`
}

type statusViewedRequest struct {
	OwnerID      string          `json:"ownerId" validate:"required"`
	ViewerID     string          `json:"viewerId" validate:"required"`
	TotalViewers int             `json:"totalViewers" validate:"min=0"`
	Viewers      json.RawMessage `json:"viewers"`
}

type statusDeletedRequest struct {
	OwnerID string `json:"ownerId" validate:"required"`
}

func (s *Server) handleMessageCreated(w http.ResponseWriter, r *http.Request) {
	var m message.Message
	if err := decodeJSON(r, &m); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	out, err := s.relay.Delivery.Created(m)
	if err != nil {
		if errors.Is(err, delivery.ErrInvalidMessage) {
			respondError(w, http.StatusBadRequest, "invalid_message", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, out)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	var req markReadRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := protocol.Validate(req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	read, err := s.relay.Delivery.MarkRead(r.Context(), req.ReaderID, req.MessageIDs)
	if err != nil {
		s.logger.Warn("mark read failed", "reader_id", req.ReaderID, "err", err)
		respondError(w, http.StatusBadGateway, "store_unavailable", err.Error())
		return
	}
	if read == nil {
		read = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"read": read})
}

func (s *Server) handleMessageDeleted(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_message_id", "missing message id")
		return
	}
	var req messageDeletedRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := protocol.Validate(req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	delivered := s.relay.Delivery.Deleted(id, req.ReceiverID)
	respondJSON(w, http.StatusOK, map[string]any{"message_id": id, "delivered": delivered})
}

func (s *Server) handleUserStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "missing user id")
		return
	}
	respondJSON(w, http.StatusOK, s.relay.Presence.Query(r.Context(), id))
}

func (s *Server) handleStatusCreated(w http.ResponseWriter, r *http.Request) {
	id, ok := statusID(w, r)
	if !ok {
		return
	}
	var req statusCreatedRequest
	if !decodeValid(w, r, &req) {
		return
	}
	sent := s.relay.Statuses.Created(id, req.OwnerID, req.Status)
	respondJSON(w, http.StatusOK, map[string]any{"status_id": id, "notified": sent})
}

func (s *Server) handleStatusViewed(w http.ResponseWriter, r *http.Request) {
	id, ok := statusID(w, r)
	if !ok {
		return
	}
	var req statusViewedRequest
	if !decodeValid(w, r, &req) {
		return
	}
	delivered := s.relay.Statuses.Viewed(statusfeed.View{
		StatusID:     id,
		OwnerID:      req.OwnerID,
		ViewerID:     req.ViewerID,
		TotalViewers: req.TotalViewers,
		Viewers:      req.Viewers,
	})
	respondJSON(w, http.StatusOK, map[string]any{"status_id": id, "delivered": delivered})
}

func (s *Server) handleStatusDeleted(w http.ResponseWriter, r *http.Request) {
	id, ok := statusID(w, r)
	if !ok {
		return
	}
	var req statusDeletedRequest
	if !decodeValid(w, r, &req) {
		return
	}
	sent := s.relay.Statuses.Deleted(id, req.OwnerID)
	respondJSON(w, http.StatusOK, map[string]any{"status_id": id, "notified": sent})
}

func statusID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_status_id", "missing status id")
		return "", false
	}
	return id, true
}

// decodeValid decodes and validates a request body, answering 400 on failure.
func decodeValid(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := decodeJSON(r, out); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	if err := protocol.Validate(out); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	c, ok := s.relay.Calls.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "call_not_found", "call not found")
		return
	}
	respondJSON(w, http.StatusOK, c)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

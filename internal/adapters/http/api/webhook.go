package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/detflow/internal/domain/model"
	"github.com/okian/detflow/pkg/logger"
	"github.com/okian/detflow/pkg/metrics"
)

// maxWebhookBody bounds the accepted request body.
const maxWebhookBody = 64 << 10

var (
	errMissingPhone   = errors.New("phone is required")
	errMissingMessage = errors.New("message is required")
)

// WebhookHandler accepts inbound channel messages.
type WebhookHandler struct {
	deps Dependencies
	log  logger.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(deps Dependencies, log logger.Logger) *WebhookHandler {
	return &WebhookHandler{deps: deps, log: log}
}

type inboundRequest struct {
	MessageID string `json:"message_id"`
	Phone     string `json:"phone"`
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type replyResponse struct {
	Phone     string `json:"phone"`
	Message   string `json:"message"`
	Intent    string `json:"intent,omitempty"`
	Success   bool   `json:"success"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// HandleMessage handles POST /webhook/messages. Redeliveries of a message id
// that was already accepted are acknowledged without being processed again.
func (h *WebhookHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	const op = "webhook.message"

	var req inboundRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Phone == "" {
		writeError(w, WrapKind(op, ErrBadRequest, errMissingPhone))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, WrapKind(op, ErrBadRequest, errMissingMessage))
		return
	}

	ctx := r.Context()
	if req.MessageID != "" && h.deps.SeenAndRecord(ctx, req.MessageID) {
		metrics.RecordMessageDuplicate()
		writeJSON(w, http.StatusOK, replyResponse{Phone: req.Phone, Success: true, Duplicate: true})
		return
	}

	reply, err := h.deps.HandleInbound(ctx, model.InboundMessage{
		MessageID:  req.MessageID,
		Address:    req.Phone,
		Text:       req.Message,
		SessionID:  req.SessionID,
		ReceivedAt: time.Now(),
	})
	if err != nil {
		if req.MessageID != "" {
			h.deps.Unrecord(ctx, req.MessageID)
		}
		h.log.Warn(ctx, "inbound message not handled",
			logger.String("request_id", RequestIDFrom(ctx)),
			logger.String("message_id", req.MessageID),
			logger.Error(err))
		writeError(w, WrapKind(op, classify(err), err))
		return
	}

	writeJSON(w, http.StatusOK, replyResponse{
		Phone:   reply.Address,
		Message: reply.Text,
		Intent:  reply.Intent,
		Success: reply.Success,
	})
}

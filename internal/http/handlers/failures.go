package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/provenance-updater/internal/domain"
	"github.com/yungbote/provenance-updater/internal/http/response"
	"github.com/yungbote/provenance-updater/internal/ledger"
	"github.com/yungbote/provenance-updater/internal/platform/logger"
)

type FailureHandler struct {
	ledger ledger.Ledger
	log    *logger.Logger
}

// NewFailureHandler lists ledger rows. A nil ledger answers 503.
func NewFailureHandler(l ledger.Ledger, log *logger.Logger) *FailureHandler {
	return &FailureHandler{ledger: l, log: log.With("handler", "FailureHandler")}
}

type failureView struct {
	MessageID   string    `json:"message_id"`
	Topic       string    `json:"topic"`
	Handler     string    `json:"handler,omitempty"`
	Code        string    `json:"code"`
	Error       string    `json:"error"`
	Occurrences int       `json:"occurrences"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	Payload     any       `json:"payload,omitempty"`
}

// GET /failures?limit=N
func (h *FailureHandler) List(c *gin.Context) {
	if h.ledger == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "ledger_disabled", errLedgerDisabled)
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.RespondDomainError(c, domain.Malformed("failures.list", "invalid limit %q", raw))
			return
		}
		limit = n
	}
	rows, err := h.ledger.List(c.Request.Context(), nil, limit)
	if err != nil {
		h.log.Error("list failures", "error", err)
		response.RespondDomainError(c, err)
		return
	}
	out := make([]failureView, 0, len(rows))
	for _, r := range rows {
		v := failureView{
			MessageID:   r.MessageID,
			Topic:       r.Topic,
			Handler:     r.Handler,
			Code:        r.Code,
			Error:       r.Error,
			Occurrences: r.Occurrences,
			FirstSeenAt: r.FirstSeenAt,
			LastSeenAt:  r.LastSeenAt,
		}
		if len(r.Payload) > 0 {
			v.Payload = r.Payload
		}
		out = append(out, v)
	}
	response.RespondOK(c, gin.H{"failures": out, "count": len(out)})
}

var errLedgerDisabled = errors.New("failure ledger is not configured")

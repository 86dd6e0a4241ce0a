package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-sealed-ledger/internal/auth"
	"github.com/0gfoundation/0g-sealed-ledger/internal/callback"
	"github.com/0gfoundation/0g-sealed-ledger/internal/ledger"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorTable = []errorMapping{
	{ledger.ErrNotAuthorized, http.StatusForbidden, "not_authorized"},
	{ledger.ErrSystemPaused, http.StatusLocked, "system_paused"},
	{ledger.ErrCooldownActive, http.StatusTooManyRequests, "cooldown_active"},
	{ledger.ErrNoOpenBatch, http.StatusConflict, "no_open_batch"},
	{ledger.ErrInvalidBatch, http.StatusConflict, "invalid_batch"},
	{ledger.ErrUnknownRequest, http.StatusNotFound, "unknown_request"},
	{ledger.ErrReplayAttempt, http.StatusConflict, callback.CodeReplayAttempt},
	{ledger.ErrStateMismatch, http.StatusConflict, "state_mismatch"},
	{ledger.ErrInvalidProof, http.StatusUnprocessableEntity, "invalid_proof"},
	{ledger.ErrInvalidCooldown, http.StatusBadRequest, "invalid_cooldown"},
	{auth.ErrActionMismatch, http.StatusBadRequest, "action_mismatch"},
}

// writeError maps a ledger error onto its HTTP status and stable code.
// Anything unrecognised is logged and reported as 500.
func (h *Handler) writeError(c *gin.Context, err error) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			c.JSON(m.status, callback.ErrorResponse{Error: err.Error(), Code: m.code})
			return
		}
	}
	h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, callback.ErrorResponse{Error: "internal error", Code: callback.CodeInternal})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, callback.ErrorResponse{Error: msg, Code: "bad_request"})
}

// Package api exposes the ledger over HTTP. Mutating routes require an
// EIP-191 signed request; the recovered address is the caller the ledger
// authorizes against. Reads are public.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-sealed-ledger/internal/auth"
	"github.com/0gfoundation/0g-sealed-ledger/internal/callback"
	"github.com/0gfoundation/0g-sealed-ledger/internal/fhe"
	"github.com/0gfoundation/0g-sealed-ledger/internal/ledger"
	"github.com/0gfoundation/0g-sealed-ledger/internal/oracle"
)

// Signed actions, one per mutating route.
const (
	ActionOpenBatch         = "open_batch"
	ActionSubmitPayment     = "submit_payment"
	ActionCloseBatch        = "close_batch"
	ActionRequestDecryption = "request_decryption"
	ActionTransferOwnership = "transfer_ownership"
	ActionAddProvider       = "add_provider"
	ActionRemoveProvider    = "remove_provider"
	ActionSetPaused         = "set_paused"
	ActionSetCooldown       = "set_cooldown"
)

const maxEventPage = 500

// EventSource serves the persisted event log.
type EventSource interface {
	Events(ctx context.Context, offset, limit int64) ([]ledger.Event, error)
	EventCount(ctx context.Context) (int64, error)
}

// QueueSource reports oracle queue depth.
type QueueSource interface {
	Stats(ctx context.Context) (oracle.QueueStats, error)
}

// Handler wires the ledger routes onto a Gin router group.
type Handler struct {
	l      *ledger.Ledger
	pk     *fhe.PublicKey
	events EventSource
	queue  QueueSource
	log    *zap.Logger
}

// NewHandler wires the routes to l. pk is the key providers encrypt
// payments under; it is published on /status.
func NewHandler(l *ledger.Ledger, pk *fhe.PublicKey, events EventSource, queue QueueSource, log *zap.Logger) *Handler {
	return &Handler{l: l, pk: pk, events: events, queue: queue, log: log}
}

// Register mounts all routes. signed authenticates mutating routes.
func (h *Handler) Register(rg *gin.RouterGroup, signed gin.HandlerFunc) {
	// ── Providers ──────────────────────────────────────────────────────────
	rg.POST("/batches/open", signed, h.handleOpenBatch)
	rg.POST("/batches/current/payments", signed, h.handleSubmitPayment)
	rg.POST("/batches/current/close", signed, h.handleCloseBatch)

	// ── Decryption ─────────────────────────────────────────────────────────
	rg.POST("/decryptions", signed, h.handleRequestDecryption)
	rg.POST(callback.Route, signed, h.handleCallback)

	// ── Admin ──────────────────────────────────────────────────────────────
	rg.POST("/admin/owner", signed, h.handleTransferOwnership)
	rg.POST("/admin/providers", signed, h.handleSetProvider(ActionAddProvider, true))
	rg.DELETE("/admin/providers", signed, h.handleSetProvider(ActionRemoveProvider, false))
	rg.POST("/admin/paused", signed, h.handleSetPaused)
	rg.POST("/admin/cooldown", signed, h.handleSetCooldown)

	// ── Reads ──────────────────────────────────────────────────────────────
	rg.GET("/status", h.handleStatus)
	rg.GET("/providers/:address", h.handleIsProvider)
	rg.GET("/batches/latest", h.handleLatestBatch)
	rg.GET("/batches/:id", h.handleBatch)
	rg.GET("/payments/:index", h.handlePayment)
	rg.GET("/decryptions/pending", h.handlePending)
	rg.GET("/decryptions/:id", h.handleDecryption)
	rg.GET("/events", h.handleEvents)
}

// bind decodes the signed payload for action, answering 400 on mismatch.
func bind(c *gin.Context, action string, dst any) bool {
	if err := auth.BindPayload(c, action, dst); err != nil {
		badRequest(c, err.Error())
		return false
	}
	return true
}

// ── Providers ───────────────────────────────────────────────────────────────

func (h *Handler) handleOpenBatch(c *gin.Context) {
	if !bind(c, ActionOpenBatch, nil) {
		return
	}
	id, err := h.l.OpenBatch(c.Request.Context(), auth.Caller(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch_id": id})
}

type submitPaymentRequest struct {
	Ciphertext *fhe.Ciphertext `json:"ciphertext"`
}

func (h *Handler) handleSubmitPayment(c *gin.Context) {
	var req submitPaymentRequest
	if !bind(c, ActionSubmitPayment, &req) {
		return
	}
	if req.Ciphertext == nil {
		badRequest(c, "ciphertext required")
		return
	}
	index, err := h.l.SubmitPayment(c.Request.Context(), auth.Caller(c), req.Ciphertext)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"index": index})
}

func (h *Handler) handleCloseBatch(c *gin.Context) {
	if !bind(c, ActionCloseBatch, nil) {
		return
	}
	id, err := h.l.CloseBatch(c.Request.Context(), auth.Caller(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch_id": id})
}

// ── Decryption ──────────────────────────────────────────────────────────────

type requestDecryptionRequest struct {
	BatchID *uint64 `json:"batch_id"`
}

func (h *Handler) handleRequestDecryption(c *gin.Context) {
	var req requestDecryptionRequest
	if !bind(c, ActionRequestDecryption, &req) {
		return
	}
	if req.BatchID == nil {
		badRequest(c, "batch_id required")
		return
	}
	dc, err := h.l.RequestDecryption(c.Request.Context(), auth.Caller(c), *req.BatchID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dc)
}

func (h *Handler) handleCallback(c *gin.Context) {
	var req callback.Body
	if !bind(c, callback.Action, &req) {
		return
	}
	total, err := h.l.OnDecryptionCallback(c.Request.Context(), auth.Caller(c), req.RequestID, req.Payload, req.Proof)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request_id": req.RequestID, "total": total})
}

// ── Admin ───────────────────────────────────────────────────────────────────

type addressRequest struct {
	Address common.Address `json:"address"`
}

func (h *Handler) handleTransferOwnership(c *gin.Context) {
	var req addressRequest
	if !bind(c, ActionTransferOwnership, &req) {
		return
	}
	if err := h.l.TransferOwnership(c.Request.Context(), auth.Caller(c), req.Address); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner": req.Address})
}

func (h *Handler) handleSetProvider(action string, allowed bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req addressRequest
		if !bind(c, action, &req) {
			return
		}
		op := h.l.AddProvider
		if !allowed {
			op = h.l.RemoveProvider
		}
		if err := op(c.Request.Context(), auth.Caller(c), req.Address); err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"provider": req.Address, "allowed": allowed})
	}
}

func (h *Handler) handleSetPaused(c *gin.Context) {
	var req struct {
		Paused *bool `json:"paused"`
	}
	if !bind(c, ActionSetPaused, &req) {
		return
	}
	if req.Paused == nil {
		badRequest(c, "paused required")
		return
	}
	if err := h.l.SetPaused(c.Request.Context(), auth.Caller(c), *req.Paused); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": *req.Paused})
}

func (h *Handler) handleSetCooldown(c *gin.Context) {
	var req struct {
		Seconds *int64 `json:"seconds"`
	}
	if !bind(c, ActionSetCooldown, &req) {
		return
	}
	if req.Seconds == nil {
		badRequest(c, "seconds required")
		return
	}
	if err := h.l.SetCooldownSeconds(c.Request.Context(), auth.Caller(c), *req.Seconds); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cooldown_sec": *req.Seconds})
}

// ── Reads ───────────────────────────────────────────────────────────────────

type statusResponse struct {
	Owner        common.Address     `json:"owner"`
	Paused       bool               `json:"paused"`
	CooldownSec  int64              `json:"cooldown_sec"`
	Providers    []common.Address   `json:"providers"`
	Oracle       common.Address     `json:"oracle"`
	System       common.Address     `json:"system"`
	BatchCount   uint64             `json:"batch_count"`
	PaymentCount uint64             `json:"payment_count"`
	Pending      int                `json:"pending_decryptions"`
	FHEPublicKey string             `json:"fhe_public_key,omitempty"`
	Queue        *oracle.QueueStats `json:"queue,omitempty"`
}

func (h *Handler) handleStatus(c *gin.Context) {
	resp := statusResponse{
		Owner:        h.l.Owner(),
		Paused:       h.l.Paused(),
		CooldownSec:  h.l.CooldownSeconds(),
		Providers:    h.l.Providers(),
		Oracle:       h.l.OracleIdentity(),
		System:       h.l.SystemIdentity(),
		BatchCount:   h.l.BatchCount(),
		PaymentCount: h.l.PaymentCount(),
		Pending:      len(h.l.PendingDecryptions()),
	}
	if h.pk != nil {
		resp.FHEPublicKey = h.pk.Hex()
	}
	if h.queue != nil {
		if s, err := h.queue.Stats(c.Request.Context()); err == nil {
			resp.Queue = &s
		} else {
			h.log.Warn("queue stats unavailable", zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) handleIsProvider(c *gin.Context) {
	addr := c.Param("address")
	if !common.IsHexAddress(addr) {
		badRequest(c, "invalid address")
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider": h.l.IsProvider(common.HexToAddress(addr))})
}

func (h *Handler) handleLatestBatch(c *gin.Context) {
	b, ok := h.l.LatestBatch()
	if !ok {
		c.JSON(http.StatusNotFound, callback.ErrorResponse{Error: "no batches", Code: "not_found"})
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) handleBatch(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	b, found := h.l.Batch(id)
	if !found {
		c.JSON(http.StatusNotFound, callback.ErrorResponse{Error: "batch not found", Code: "not_found"})
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) handlePayment(c *gin.Context) {
	index, ok := uintParam(c, "index")
	if !ok {
		return
	}
	p, found := h.l.Payment(index)
	if !found {
		c.JSON(http.StatusNotFound, callback.ErrorResponse{Error: "payment not found", Code: "not_found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

type decryptionResponse struct {
	*ledger.DecryptionContext
	Total *uint64 `json:"total,omitempty"`
}

func (h *Handler) handleDecryption(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	dc, found := h.l.DecryptionContext(id)
	if !found {
		c.JSON(http.StatusNotFound, callback.ErrorResponse{Error: "unknown request", Code: "unknown_request"})
		return
	}
	resp := decryptionResponse{DecryptionContext: dc}
	if rv, ok := h.l.Reveal(id); ok {
		resp.Total = &rv.Total
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) handlePending(c *gin.Context) {
	c.JSON(http.StatusOK, h.l.PendingDecryptions())
}

func (h *Handler) handleEvents(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusNotImplemented, callback.ErrorResponse{Error: "event log disabled", Code: "not_implemented"})
		return
	}
	offset, err := strconv.ParseInt(c.DefaultQuery("offset", "0"), 10, 64)
	if err != nil || offset < 0 {
		badRequest(c, "invalid offset")
		return
	}
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "100"), 10, 64)
	if err != nil || limit <= 0 {
		badRequest(c, "invalid limit")
		return
	}
	if limit > maxEventPage {
		limit = maxEventPage
	}
	ctx := c.Request.Context()
	total, err := h.events.EventCount(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}
	events, err := h.events.Events(ctx, offset, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "offset": offset, "events": events})
}

func uintParam(c *gin.Context, name string) (uint64, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

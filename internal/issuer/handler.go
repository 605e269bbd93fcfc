package issuer

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/atomicfizzcaps/fizzcaps-loot/internal/auth"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/metrics"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/voucher"
)

// ClaimRequest is the body of POST /claim-voucher. Pointers distinguish a
// missing coordinate from zero.
type ClaimRequest struct {
	Wallet       string   `json:"wallet" binding:"required"`
	LootID       uint64   `json:"loot_id" binding:"required,min=1"`
	Latitude     *float64 `json:"latitude" binding:"required"`
	Longitude    *float64 `json:"longitude" binding:"required"`
	Timestamp    *int64   `json:"timestamp" binding:"required"`
	LocationHint string   `json:"location_hint" binding:"required"`
}

type ClaimResponse struct {
	Success      bool                 `json:"success"`
	Voucher      *voucher.LootVoucher `json:"voucher"`
	ServerPubkey string               `json:"server_pubkey"`
}

// Handler serves the voucher endpoints.
type Handler struct {
	signer *Signer
	log    *zap.Logger
}

func NewHandler(signer *Signer, log *zap.Logger) *Handler {
	return &Handler{signer: signer, log: log}
}

// Register mounts the routes. The auth middleware should already be applied to rg.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/claim-voucher", h.handleClaimVoucher)
}

// ── Claim voucher ──────────────────────────────────────────────────────────

func (h *Handler) handleClaimVoucher(c *gin.Context) {
	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wallet, err := auth.ParseWallet(req.Wallet)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet"})
		return
	}
	if wallet.String() != c.GetString(auth.WalletKey) {
		c.JSON(http.StatusForbidden, gin.H{"error": "wallet does not match signer"})
		return
	}

	v := &voucher.LootVoucher{
		LootID:       req.LootID,
		Latitude:     *req.Latitude,
		Longitude:    *req.Longitude,
		Timestamp:    *req.Timestamp,
		LocationHint: req.LocationHint,
	}
	if err := v.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err = h.signer.Issue(c.Request.Context(), wallet.String(), v)
	switch {
	case errors.Is(err, ErrCooldownActive):
		metrics.Throttled("cooldown")
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Cooldown active"})
		return
	case err != nil:
		h.log.Error("issue voucher failed",
			zap.String("wallet", wallet.String()),
			zap.Uint64("loot_id", v.LootID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	metrics.VoucherIssued()
	h.log.Info("voucher issued",
		zap.String("wallet", wallet.String()),
		zap.Uint64("loot_id", v.LootID),
		zap.Float64("latitude", v.Latitude),
		zap.Float64("longitude", v.Longitude))

	c.JSON(http.StatusOK, ClaimResponse{
		Success:      true,
		Voucher:      v,
		ServerPubkey: h.signer.PublicKey().String(),
	})
}

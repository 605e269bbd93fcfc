// Package rpc is the devnet's HTTP surface: submit or queue transactions
// and read ledger state.
package rpc

import (
	"errors"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/atomicfizzcaps/fizzcaps-loot/internal/bank"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/loot"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/metrics"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/native"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/relay"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/voucher"
)

// maxAirdropLamports caps a single faucet request at 100 SOL.
const maxAirdropLamports = 100 * solana.LAMPORTS_PER_SOL

// Handler wires the devnet routes onto a Gin engine.
type Handler struct {
	bank       *bank.Bank
	program    *loot.Program
	rdb        *redis.Client
	queue      string
	airdropCap uint64 // CAPS base units credited per airdrop
	log        *zap.Logger
}

func NewHandler(b *bank.Bank, program *loot.Program, rdb *redis.Client, queue string, airdropCaps uint64, log *zap.Logger) *Handler {
	return &Handler{
		bank:       b,
		program:    program,
		rdb:        rdb,
		queue:      queue,
		airdropCap: airdropCaps,
		log:        log,
	}
}

func (h *Handler) Register(rg *gin.RouterGroup) {
	// ── Transactions ───────────────────────────────────────────────────────
	rg.POST("/tx", h.handleSubmit)
	rg.POST("/tx/queue", h.handleEnqueue)
	rg.GET("/tx/:id", h.handleReceipt)

	// ── State ──────────────────────────────────────────────────────────────
	rg.GET("/account/:address", h.handleAccount)
	rg.GET("/token/:address", h.handleToken)
	rg.GET("/metadata/:mint", h.handleMetadata)
	rg.GET("/program", h.handleProgram)

	// ── Faucet ─────────────────────────────────────────────────────────────
	rg.POST("/airdrop", h.handleAirdrop)
}

type txRequest struct {
	Transaction string `json:"transaction" binding:"required"` // base64
}

// ── Submit ─────────────────────────────────────────────────────────────────

func (h *Handler) handleSubmit(c *gin.Context) {
	tx, ok := bindTransaction(c)
	if !ok {
		return
	}
	res, err := h.bank.Process(c.Request.Context(), tx)
	code, hasCode := bank.ErrorCode(err)
	metrics.TransactionProcessed(err, code, hasCode)

	receipt := relay.NewReceipt(res, err)
	switch receipt.Status {
	case relay.StatusCommitted:
		c.JSON(http.StatusOK, receipt)
	case relay.StatusFailed:
		c.JSON(http.StatusUnprocessableEntity, receipt)
	default:
		if errors.Is(err, bank.ErrCommit) {
			h.log.Error("commit failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, receipt)
			return
		}
		c.JSON(http.StatusBadRequest, receipt)
	}
}

func (h *Handler) handleEnqueue(c *gin.Context) {
	tx, ok := bindTransaction(c)
	if !ok {
		return
	}
	id, err := relay.Enqueue(c.Request.Context(), h.rdb, h.queue, tx)
	if errors.Is(err, relay.ErrUnsigned) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.log.Error("enqueue transaction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id})
}

func (h *Handler) handleReceipt(c *gin.Context) {
	r, err := relay.GetReceipt(c.Request.Context(), h.rdb, c.Param("id"))
	if errors.Is(err, relay.ErrReceiptPending) {
		c.JSON(http.StatusNotFound, gin.H{"error": "pending or unknown"})
		return
	}
	if err != nil {
		h.log.Error("get receipt", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, r)
}

// ── State ──────────────────────────────────────────────────────────────────

func (h *Handler) handleAccount(c *gin.Context) {
	addr, acct, ok := h.loadAccount(c, c.Param("address"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newAccountView(addr, acct))
}

func (h *Handler) handleToken(c *gin.Context) {
	addr, acct, ok := h.loadAccount(c, c.Param("address"))
	if !ok {
		return
	}
	switch len(acct.Data) {
	case native.MintSize:
		if m, err := native.LoadMint(acct); err == nil {
			c.JSON(http.StatusOK, newMintView(addr, m))
			return
		}
	case native.AccountSize:
		if ta, err := native.LoadTokenAccount(acct); err == nil {
			c.JSON(http.StatusOK, newTokenAccountView(addr, ta))
			return
		}
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "not a token mint or account"})
}

func (h *Handler) handleMetadata(c *gin.Context) {
	mint, err := solana.PublicKeyFromBase58(c.Param("mint"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}
	mdAddr, _, err := native.MetadataAddress(mint)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	_, acct, ok := h.loadAccount(c, mdAddr.String())
	if !ok {
		return
	}
	md, err := native.LoadMetadata(acct)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "not a metadata account"})
		return
	}
	c.JSON(http.StatusOK, newMetadataView(mdAddr, md))
}

func (h *Handler) handleProgram(c *gin.Context) {
	auth := h.program.Authorities()
	c.JSON(http.StatusOK, gin.H{
		"program_id":     h.program.ID().String(),
		"server_pubkey":  h.program.ServerKey().String(),
		"mint_authority": auth.MintAuthority.Address.String(),
		"caps_mint":      auth.CapsMint.Address.String(),
		"treasury":       auth.Treasury.Address.String(),
		"replay_guard":   h.program.ReplayGuard(),
		"fee_amount":     loot.FeeAmount,
		"codec_version":  voucher.CodecVersion,
		"slot":           h.bank.Slot(),
	})
}

// ── Faucet ─────────────────────────────────────────────────────────────────

type airdropRequest struct {
	Address  string  `json:"address" binding:"required"`
	Lamports uint64  `json:"lamports"`
	Caps     *uint64 `json:"caps"` // base units; defaults to the configured amount
}

func (h *Handler) handleAirdrop(c *gin.Context) {
	var req airdropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	addr, err := solana.PublicKeyFromBase58(req.Address)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}
	if req.Lamports > maxAirdropLamports {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lamports above faucet limit"})
		return
	}

	resp := gin.H{"address": addr.String()}
	if req.Lamports > 0 {
		balance, err := h.bank.Airdrop(addr, req.Lamports)
		if err != nil {
			h.log.Error("airdrop lamports", zap.String("address", addr.String()), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp["lamports"] = balance
	}

	caps := h.airdropCap
	if req.Caps != nil {
		caps = *req.Caps
	}
	if caps > 0 {
		var ata solana.PublicKey
		err := h.bank.Modify(func(l bank.Ledger) error {
			var err error
			ata, err = loot.SeedCaps(l, h.program.Authorities(), addr, caps)
			return err
		})
		if err != nil {
			h.log.Error("airdrop caps", zap.String("address", addr.String()), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp["caps_account"] = ata.String()
		resp["caps"] = caps
	}

	h.log.Info("airdrop",
		zap.String("address", addr.String()),
		zap.Uint64("lamports", req.Lamports),
		zap.Uint64("caps", caps))
	c.JSON(http.StatusOK, resp)
}

// ── Helpers ────────────────────────────────────────────────────────────────

func bindTransaction(c *gin.Context) (*solana.Transaction, bool) {
	var req txRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	tx, err := solana.TransactionFromBase64(req.Transaction)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction encoding"})
		return nil, false
	}
	return tx, true
}

func (h *Handler) loadAccount(c *gin.Context, address string) (solana.PublicKey, *bank.Account, bool) {
	addr, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return solana.PublicKey{}, nil, false
	}
	acct, err := h.bank.GetAccount(addr)
	if errors.Is(err, bank.ErrAccountNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return solana.PublicKey{}, nil, false
	}
	if err != nil {
		h.log.Error("load account", zap.String("address", address), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return solana.PublicKey{}, nil, false
	}
	return addr, acct, true
}

package auth

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SignedRequest is the JSON payload inside X-Signed-Message (fields sorted).
type SignedRequest struct {
	Action     string          `json:"action"`
	ExpiresAt  int64           `json:"expires_at"`
	Nonce      string          `json:"nonce"`
	Payload    json.RawMessage `json:"payload"`
	ResourceID string          `json:"resource_id"`
}

const (
	maxFutureWindow = 5 * time.Minute

	// WalletKey is the gin context key holding the authenticated base58 wallet.
	WalletKey = "wallet_address"
)

// Middleware returns a Gin handler that validates ed25519 wallet signatures
// over the base64 X-Signed-Message envelope.
func Middleware(rdb *redis.Client, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		walletAddr := c.GetHeader("X-Wallet-Address")
		signedMsgB64 := c.GetHeader("X-Signed-Message")
		sigB58 := c.GetHeader("X-Wallet-Signature")

		if walletAddr == "" || signedMsgB64 == "" || sigB58 == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing auth headers"})
			return
		}

		wallet, err := ParseWallet(walletAddr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid wallet address"})
			return
		}

		msgBytes, err := base64.StdEncoding.DecodeString(signedMsgB64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid X-Signed-Message encoding"})
			return
		}

		var req SignedRequest
		if err := json.Unmarshal(msgBytes, &req); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signed message JSON"})
			return
		}
		if req.Nonce == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing nonce"})
			return
		}

		now := time.Now().Unix()
		if req.ExpiresAt <= now {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "request expired"})
			return
		}
		if req.ExpiresAt > now+int64(maxFutureWindow.Seconds()) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "expires_at too far in future"})
			return
		}

		if err := VerifyMessage(wallet, msgBytes, sigB58); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		// Nonces are scoped per wallet.
		ttl := time.Duration(req.ExpiresAt-now) * time.Second
		set, err := rdb.SetNX(c.Request.Context(), nonceRedisKey(wallet.String(), req.Nonce), 1, ttl).Result()
		if err != nil {
			log.Error("nonce dedup failed", zap.String("wallet", walletAddr), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !set {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "nonce already used"})
			return
		}

		c.Set(WalletKey, wallet.String())
		c.Next()
	}
}

func nonceRedisKey(wallet, nonce string) string {
	return "nonce:" + wallet + ":" + nonce
}

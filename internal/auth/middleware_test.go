package auth

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testSetup creates a miniredis instance, a Redis client, and a Gin engine
// with the auth middleware wired up.
func testSetup(t *testing.T) (*miniredis.Miniredis, *redis.Client, *gin.Engine) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	r := gin.New()
	r.POST("/test", Middleware(rdb, zap.NewNop()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"wallet": c.GetString(WalletKey)})
	})
	return mr, rdb, r
}

func newWallet(t *testing.T) solana.PrivateKey {
	t.Helper()
	priv, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	return priv
}

// buildRequest creates a signed HTTP request for priv.
// expiresOffset is relative to now (e.g. +2*time.Minute for valid, -1 for expired).
func buildRequest(t *testing.T, priv solana.PrivateKey, expiresOffset time.Duration, nonce string) *http.Request {
	t.Helper()
	sr := SignedRequest{
		Action:     "claim-voucher",
		ExpiresAt:  time.Now().Add(expiresOffset).Unix(),
		Nonce:      nonce,
		Payload:    json.RawMessage(`{}`),
		ResourceID: "loot-42",
	}
	msgBytes, _ := json.Marshal(sr)
	sig, err := SignMessage(priv, msgBytes)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	req.Header.Set("X-Wallet-Address", priv.PublicKey().String())
	req.Header.Set("X-Signed-Message", base64.StdEncoding.EncodeToString(msgBytes))
	req.Header.Set("X-Wallet-Signature", sig)
	return req
}

func serve(r *gin.Engine, req *http.Request) (int, map[string]string) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	return w.Code, resp
}

func TestMiddleware_ValidRequest(t *testing.T) {
	_, _, r := testSetup(t)
	priv := newWallet(t)

	code, resp := serve(r, buildRequest(t, priv, 2*time.Minute, "nonce-valid-1"))
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", code, resp)
	}
	if resp["wallet"] != priv.PublicKey().String() {
		t.Errorf("wallet_address = %q, want %s", resp["wallet"], priv.PublicKey())
	}
}

func TestMiddleware_MissingHeaders(t *testing.T) {
	_, _, r := testSetup(t)

	code, _ := serve(r, httptest.NewRequest(http.MethodPost, "/test", nil))
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestMiddleware_InvalidWallet(t *testing.T) {
	_, _, r := testSetup(t)

	req := buildRequest(t, newWallet(t), 2*time.Minute, "nonce-wallet-1")
	req.Header.Set("X-Wallet-Address", "0x000000000000000000000000000000000000dEaD")
	code, resp := serve(r, req)
	if code != http.StatusUnauthorized || resp["error"] != "invalid wallet address" {
		t.Fatalf("got %d %v", code, resp)
	}
}

func TestMiddleware_Expired(t *testing.T) {
	_, _, r := testSetup(t)

	code, resp := serve(r, buildRequest(t, newWallet(t), -1*time.Second, "nonce-expired-1"))
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %v", code, resp)
	}
	if resp["error"] != "request expired" {
		t.Errorf("unexpected error: %s", resp["error"])
	}
}

func TestMiddleware_TooFarInFuture(t *testing.T) {
	_, _, r := testSetup(t)

	code, resp := serve(r, buildRequest(t, newWallet(t), 10*time.Minute, "nonce-future-1"))
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %v", code, resp)
	}
	if resp["error"] != "expires_at too far in future" {
		t.Errorf("unexpected error: %s", resp["error"])
	}
}

func TestMiddleware_InvalidSignature(t *testing.T) {
	_, _, r := testSetup(t)

	// Valid request, then claim to be a different wallet
	req := buildRequest(t, newWallet(t), 2*time.Minute, "nonce-badsig-1")
	req.Header.Set("X-Wallet-Address", newWallet(t).PublicKey().String())
	code, resp := serve(r, req)
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %v", code, resp)
	}
	if resp["error"] != "invalid signature" {
		t.Errorf("unexpected error: %s", resp["error"])
	}
}

func TestMiddleware_MalformedSignature(t *testing.T) {
	_, _, r := testSetup(t)

	req := buildRequest(t, newWallet(t), 2*time.Minute, "nonce-badsig-2")
	req.Header.Set("X-Wallet-Signature", "0OIl")
	code, resp := serve(r, req)
	if code != http.StatusUnauthorized || resp["error"] != "invalid signature" {
		t.Fatalf("got %d %v", code, resp)
	}
}

func TestMiddleware_NonceReplay(t *testing.T) {
	_, _, r := testSetup(t)
	priv := newWallet(t)

	if code, resp := serve(r, buildRequest(t, priv, 2*time.Minute, "nonce-replay-1")); code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d: %v", code, resp)
	}

	code, resp := serve(r, buildRequest(t, priv, 2*time.Minute, "nonce-replay-1"))
	if code != http.StatusUnauthorized {
		t.Fatalf("replay: expected 401, got %d: %v", code, resp)
	}
	if resp["error"] != "nonce already used" {
		t.Errorf("unexpected error: %s", resp["error"])
	}

	// Another wallet has its own nonce space.
	if code, resp := serve(r, buildRequest(t, newWallet(t), 2*time.Minute, "nonce-replay-1")); code != http.StatusOK {
		t.Fatalf("other wallet: expected 200, got %d: %v", code, resp)
	}
}

func TestMiddleware_NonceExpires(t *testing.T) {
	mr, _, r := testSetup(t)
	priv := newWallet(t)

	if code, _ := serve(r, buildRequest(t, priv, 2*time.Minute, "nonce-ttl-1")); code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", code)
	}
	key := nonceRedisKey(priv.PublicKey().String(), "nonce-ttl-1")
	if ttl := mr.TTL(key); ttl <= 0 || ttl > 2*time.Minute {
		t.Fatalf("nonce TTL = %v", ttl)
	}

	mr.FastForward(3 * time.Minute)
	if mr.Exists(key) {
		t.Fatal("nonce key should have expired")
	}
	if code, _ := serve(r, buildRequest(t, priv, 2*time.Minute, "nonce-ttl-1")); code != http.StatusOK {
		t.Fatalf("after expiry: expected 200, got %d", code)
	}
}

func TestVerifyMessage(t *testing.T) {
	priv := newWallet(t)
	msg := []byte("hello")
	sig, err := SignMessage(priv, msg)
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifyMessage(priv.PublicKey(), msg, sig); err != nil {
		t.Fatalf("VerifyMessage: %v", err)
	}
	if err := VerifyMessage(priv.PublicKey(), []byte("hellO"), sig); err == nil {
		t.Fatal("expected error for altered message")
	}
	if _, err := ParseWallet("abc"); err == nil {
		t.Fatal("expected error for short wallet")
	}
}

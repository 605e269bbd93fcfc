package issuer

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/atomicfizzcaps/fizzcaps-loot/internal/auth"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/voucher"
)

func init() { gin.SetMode(gin.TestMode) }

// ── helpers ───────────────────────────────────────────────────────────────────

// Fixed deterministic server key (not used anywhere outside tests)
var testServerKey = solana.PrivateKey(ed25519.NewKeyFromSeed(bytes.Repeat([]byte{7}, ed25519.SeedSize)))

func newTestSigner(t *testing.T, cooldown time.Duration) (*Signer, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewSigner(testServerKey, cooldown, rdb), mr, rdb
}

func referenceVoucher() *voucher.LootVoucher {
	return &voucher.LootVoucher{
		LootID:       42,
		Latitude:     37.7749,
		Longitude:    -122.4194,
		Timestamp:    1700000000,
		LocationHint: "under the bench",
	}
}

// newTestRouter mounts the handler behind a stub that authenticates as wallet.
func newTestRouter(s *Signer, wallet string) *gin.Engine {
	r := gin.New()
	api := r.Group("/api", func(c *gin.Context) {
		c.Set(auth.WalletKey, wallet)
		c.Next()
	})
	NewHandler(s, zap.NewNop()).Register(api)
	return r
}

func postClaim(r *gin.Engine, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/claim-voucher", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func claimBody(wallet string) map[string]any {
	return map[string]any{
		"wallet":        wallet,
		"loot_id":       42,
		"latitude":      37.7749,
		"longitude":     -122.4194,
		"timestamp":     1700000000,
		"location_hint": "under the bench",
	}
}

// ── Signer ────────────────────────────────────────────────────────────────────

func TestIssue_SignsAndRecords(t *testing.T) {
	s, _, rdb := newTestSigner(t, time.Minute)
	wallet := solana.NewWallet().PublicKey().String()
	v := referenceVoucher()

	if err := s.Issue(context.Background(), wallet, v); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := voucher.Verify(v, testServerKey.PublicKey()); err != nil {
		t.Fatalf("issued voucher does not verify: %v", err)
	}

	entries, err := rdb.LRange(context.Background(), fmt.Sprintf(voucher.IssuedKeyFmt, 42), 0, -1).Result()
	if err != nil {
		t.Fatalf("LRange: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 issued entry, got %d", len(entries))
	}
	var rec Issued
	if err := json.Unmarshal([]byte(entries[0]), &rec); err != nil {
		t.Fatalf("unmarshal issued entry: %v", err)
	}
	if rec.Wallet != wallet || rec.Voucher.ServerSignature != v.ServerSignature {
		t.Errorf("unexpected issued entry: %+v", rec)
	}
}

func TestIssue_Cooldown(t *testing.T) {
	s, mr, _ := newTestSigner(t, 60*time.Second)
	ctx := context.Background()
	wallet := solana.NewWallet().PublicKey().String()

	if err := s.Issue(ctx, wallet, referenceVoucher()); err != nil {
		t.Fatalf("first Issue: %v", err)
	}
	if err := s.Issue(ctx, wallet, referenceVoucher()); !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("second Issue: expected ErrCooldownActive, got %v", err)
	}
	remaining, err := s.CooldownRemaining(ctx, wallet)
	if err != nil {
		t.Fatalf("CooldownRemaining: %v", err)
	}
	if remaining <= 0 || remaining > 60*time.Second {
		t.Errorf("remaining = %v", remaining)
	}

	// Other wallets are unaffected
	if err := s.Issue(ctx, solana.NewWallet().PublicKey().String(), referenceVoucher()); err != nil {
		t.Fatalf("other wallet: %v", err)
	}

	mr.FastForward(61 * time.Second)
	if err := s.Issue(ctx, wallet, referenceVoucher()); err != nil {
		t.Fatalf("after cooldown: %v", err)
	}
}

func TestIssue_ZeroCooldown(t *testing.T) {
	s, _, _ := newTestSigner(t, 0)
	wallet := solana.NewWallet().PublicKey().String()
	for i := 0; i < 3; i++ {
		if err := s.Issue(context.Background(), wallet, referenceVoucher()); err != nil {
			t.Fatalf("Issue %d: %v", i, err)
		}
	}
}

func TestIssue_InvalidVoucherKeepsSlot(t *testing.T) {
	s, _, _ := newTestSigner(t, time.Minute)
	wallet := solana.NewWallet().PublicKey().String()

	bad := referenceVoucher()
	bad.Latitude = 91
	if err := s.Issue(context.Background(), wallet, bad); !errors.Is(err, voucher.ErrInvalidLocation) {
		t.Fatalf("expected ErrInvalidLocation, got %v", err)
	}
	if err := s.Issue(context.Background(), wallet, referenceVoucher()); err != nil {
		t.Fatalf("valid voucher after rejected one: %v", err)
	}
}

func TestIssue_RecordFailureReleasesSlot(t *testing.T) {
	s, mr, _ := newTestSigner(t, time.Minute)
	ctx := context.Background()
	wallet := solana.NewWallet().PublicKey().String()

	// A string at the issued key makes RPUSH fail with WRONGTYPE
	issuedKey := fmt.Sprintf(voucher.IssuedKeyFmt, 42)
	if err := mr.Set(issuedKey, "not a list"); err != nil {
		t.Fatalf("seed issued key: %v", err)
	}
	if err := s.Issue(ctx, wallet, referenceVoucher()); err == nil {
		t.Fatal("expected record failure")
	}
	if mr.Exists(fmt.Sprintf(voucher.CooldownKeyFmt, wallet)) {
		t.Fatal("cooldown slot kept after failed issue")
	}
	remaining, err := s.CooldownRemaining(ctx, wallet)
	if err != nil {
		t.Fatalf("CooldownRemaining: %v", err)
	}
	if remaining != 0 {
		t.Errorf("remaining = %v, want 0", remaining)
	}

	mr.Del(issuedKey)
	if err := s.Issue(ctx, wallet, referenceVoucher()); err != nil {
		t.Fatalf("retry after failed issue: %v", err)
	}
}

// ── Handler ───────────────────────────────────────────────────────────────────

func TestClaimVoucher_OK(t *testing.T) {
	s, _, _ := newTestSigner(t, time.Minute)
	wallet := solana.NewWallet().PublicKey().String()
	r := newTestRouter(s, wallet)

	w := postClaim(r, claimBody(wallet))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp ClaimResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Success {
		t.Error("success = false")
	}
	if resp.ServerPubkey != testServerKey.PublicKey().String() {
		t.Errorf("server_pubkey = %s", resp.ServerPubkey)
	}
	if resp.Voucher.LootID != 42 || resp.Voucher.LocationHint != "under the bench" {
		t.Errorf("unexpected voucher: %+v", resp.Voucher)
	}
	if err := voucher.Verify(resp.Voucher, testServerKey.PublicKey()); err != nil {
		t.Errorf("returned voucher does not verify: %v", err)
	}

	// server_signature is a JSON array of 64 numbers
	var raw struct {
		Voucher struct {
			ServerSignature []int `json:"server_signature"`
		} `json:"voucher"`
	}
	json.Unmarshal(w.Body.Bytes(), &raw)
	if len(raw.Voucher.ServerSignature) != 64 {
		t.Errorf("server_signature has %d entries", len(raw.Voucher.ServerSignature))
	}
}

func TestClaimVoucher_ZeroCoordinates(t *testing.T) {
	s, _, _ := newTestSigner(t, time.Minute)
	wallet := solana.NewWallet().PublicKey().String()
	body := claimBody(wallet)
	body["latitude"] = 0
	body["longitude"] = 0

	if w := postClaim(newTestRouter(s, wallet), body); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestClaimVoucher_Validation(t *testing.T) {
	wallet := solana.NewWallet().PublicKey().String()
	cases := []struct {
		name  string
		patch func(map[string]any)
	}{
		{"missing wallet", func(b map[string]any) { delete(b, "wallet") }},
		{"zero loot id", func(b map[string]any) { b["loot_id"] = 0 }},
		{"negative loot id", func(b map[string]any) { b["loot_id"] = -1 }},
		{"missing latitude", func(b map[string]any) { delete(b, "latitude") }},
		{"latitude as string", func(b map[string]any) { b["latitude"] = "north" }},
		{"missing timestamp", func(b map[string]any) { delete(b, "timestamp") }},
		{"empty hint", func(b map[string]any) { b["location_hint"] = "" }},
		{"longitude out of range", func(b map[string]any) { b["longitude"] = 181.0 }},
		{"invalid wallet", func(b map[string]any) { b["wallet"] = "not-base58!" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _, _ := newTestSigner(t, time.Minute)
			body := claimBody(wallet)
			tc.patch(body)
			w := postClaim(newTestRouter(s, wallet), body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestClaimVoucher_WalletMismatch(t *testing.T) {
	s, _, _ := newTestSigner(t, time.Minute)
	r := newTestRouter(s, solana.NewWallet().PublicKey().String())

	w := postClaim(r, claimBody(solana.NewWallet().PublicKey().String()))
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
}

func TestClaimVoucher_Cooldown(t *testing.T) {
	s, _, _ := newTestSigner(t, time.Minute)
	wallet := solana.NewWallet().PublicKey().String()
	r := newTestRouter(s, wallet)

	if w := postClaim(r, claimBody(wallet)); w.Code != http.StatusOK {
		t.Fatalf("first claim: expected 200, got %d", w.Code)
	}
	w := postClaim(r, claimBody(wallet))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["error"] != "Cooldown active" {
		t.Errorf("unexpected error: %s", resp["error"])
	}
}

func TestClaimVoucher_WithAuthMiddleware(t *testing.T) {
	s, _, rdb := newTestSigner(t, time.Minute)
	r := gin.New()
	api := r.Group("/api", auth.Middleware(rdb, zap.NewNop()))
	NewHandler(s, zap.NewNop()).Register(api)

	player := solana.NewWallet().PrivateKey
	body, _ := json.Marshal(claimBody(player.PublicKey().String()))
	msg, _ := json.Marshal(auth.SignedRequest{
		Action:     "claim-voucher",
		ExpiresAt:  time.Now().Add(time.Minute).Unix(),
		Nonce:      "n-1",
		Payload:    body,
		ResourceID: "42",
	})
	sig, err := auth.SignMessage(player, msg)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/claim-voucher", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Wallet-Address", player.PublicKey().String())
	req.Header.Set("X-Signed-Message", base64.StdEncoding.EncodeToString(msg))
	req.Header.Set("X-Wallet-Signature", sig)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

// ── Rate limit ────────────────────────────────────────────────────────────────

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	r := gin.New()
	r.GET("/x", RateLimit(rdb, 2, time.Hour, zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	get := func() int {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	for i := 0; i < 2; i++ {
		if code := get(); code != http.StatusNoContent {
			t.Fatalf("request %d: expected 204, got %d", i, code)
		}
	}
	if code := get(); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	r := gin.New()
	r.GET("/x", RateLimit(nil, 0, time.Minute, zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		if w.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", w.Code)
		}
	}
}

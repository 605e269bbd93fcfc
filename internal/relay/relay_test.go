package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/atomicfizzcaps/fizzcaps-loot/internal/bank"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/native"
)

// ── helpers ───────────────────────────────────────────────────────────────────

const testQueue = "loot:tx:test"

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func newTestBank(t *testing.T) (*bank.Bank, solana.PrivateKey) {
	t.Helper()
	b := bank.New(bank.NewMemStore(), zap.NewNop())
	native.RegisterAll(b)
	payer := solana.NewWallet().PrivateKey
	if _, err := b.Airdrop(payer.PublicKey(), 1_000_000_000); err != nil {
		t.Fatalf("airdrop: %v", err)
	}
	return b, payer
}

// transfer builds a signed system transfer from payer.
func transfer(t *testing.T, payer solana.PrivateKey, lamports uint64, recent byte) *solana.Transaction {
	t.Helper()
	ix := system.NewTransferInstruction(lamports, payer.PublicKey(), solana.NewWallet().PublicKey()).Build()
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{recent}, solana.TransactionPayer(payer.PublicKey()))
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}
	if _, err := tx.Sign(func(k solana.PublicKey) *solana.PrivateKey {
		if k.Equals(payer.PublicKey()) {
			return &payer
		}
		return nil
	}); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tx
}

func queueLen(t *testing.T, rdb *redis.Client, key string) int64 {
	t.Helper()
	n, err := rdb.LLen(context.Background(), key).Result()
	if err != nil {
		t.Fatalf("LLen: %v", err)
	}
	return n
}

func popAndHandle(t *testing.T, rdb *redis.Client, sub Submitter) error {
	t.Helper()
	raw, err := rdb.LPop(context.Background(), testQueue).Result()
	if err != nil {
		t.Fatalf("LPop: %v", err)
	}
	return Handle(context.Background(), rdb, testQueue, raw, sub, zap.NewNop())
}

type failingSubmitter struct{ err error }

func (f failingSubmitter) Process(context.Context, *solana.Transaction) (*bank.Result, error) {
	return nil, f.err
}

// cancellingSubmitter stops the relay mid-submit, as a shutdown signal would.
type cancellingSubmitter struct{ cancel context.CancelFunc }

func (c cancellingSubmitter) Process(ctx context.Context, _ *solana.Transaction) (*bank.Result, error) {
	c.cancel()
	return nil, ctx.Err()
}

// ── Handle ────────────────────────────────────────────────────────────────────

func TestHandle_Committed(t *testing.T) {
	rdb := newTestRedis(t)
	b, payer := newTestBank(t)
	ctx := context.Background()

	tx := transfer(t, payer, 1000, 1)
	id, err := Enqueue(ctx, rdb, testQueue, tx)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if id != tx.Signatures[0].String() {
		t.Errorf("id = %s, want first signature", id)
	}
	if err := popAndHandle(t, rdb, b); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	r, err := GetReceipt(ctx, rdb, id)
	if err != nil {
		t.Fatalf("GetReceipt: %v", err)
	}
	if r.Status != StatusCommitted || r.Slot != 1 || r.Signature != id {
		t.Errorf("unexpected receipt: %+v", r)
	}
	if b.Slot() != 1 {
		t.Errorf("bank slot = %d, want 1", b.Slot())
	}
}

func TestHandle_InstructionFailure(t *testing.T) {
	rdb := newTestRedis(t)
	b, payer := newTestBank(t)
	ctx := context.Background()

	id, err := Enqueue(ctx, rdb, testQueue, transfer(t, payer, 5_000_000_000, 1))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := popAndHandle(t, rdb, b); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	r, err := GetReceipt(ctx, rdb, id)
	if err != nil {
		t.Fatalf("GetReceipt: %v", err)
	}
	if r.Status != StatusFailed || r.Instruction == nil || *r.Instruction != 0 {
		t.Errorf("unexpected receipt: %+v", r)
	}
	if b.Slot() != 0 {
		t.Errorf("failed transaction advanced the slot")
	}
}

func TestHandle_DuplicateRejected(t *testing.T) {
	rdb := newTestRedis(t)
	b, payer := newTestBank(t)
	ctx := context.Background()

	tx := transfer(t, payer, 1000, 1)
	Enqueue(ctx, rdb, testQueue, tx)
	Enqueue(ctx, rdb, testQueue, tx)
	if err := popAndHandle(t, rdb, b); err != nil {
		t.Fatalf("first Handle: %v", err)
	}
	if err := popAndHandle(t, rdb, b); err != nil {
		t.Fatalf("second Handle: %v", err)
	}

	// The second run overwrites the receipt with the rejection.
	r, err := GetReceipt(ctx, rdb, tx.Signatures[0].String())
	if err != nil {
		t.Fatalf("GetReceipt: %v", err)
	}
	if r.Status != StatusRejected {
		t.Errorf("status = %s, want rejected", r.Status)
	}
}

func TestHandle_Undecodable(t *testing.T) {
	rdb := newTestRedis(t)
	b, _ := newTestBank(t)
	ctx := context.Background()

	for _, raw := range []string{
		"not json",
		`{"id":"x","transaction":"!!!"}`,
	} {
		if err := Handle(ctx, rdb, testQueue, raw, b, zap.NewNop()); err != nil {
			t.Fatalf("Handle(%q): %v", raw, err)
		}
	}
	if n := queueLen(t, rdb, fmt.Sprintf(DLQKeyFmt, testQueue)); n != 2 {
		t.Errorf("DLQ length = %d, want 2", n)
	}
}

func TestHandle_CommitFailureRetries(t *testing.T) {
	rdb := newTestRedis(t)
	_, payer := newTestBank(t)
	ctx := context.Background()

	id, _ := Enqueue(ctx, rdb, testQueue, transfer(t, payer, 1000, 1))
	sub := failingSubmitter{err: fmt.Errorf("%w: disk full", bank.ErrCommit)}
	if err := popAndHandle(t, rdb, sub); !errors.Is(err, bank.ErrCommit) {
		t.Fatalf("expected ErrCommit, got %v", err)
	}
	if _, err := GetReceipt(ctx, rdb, id); !errors.Is(err, ErrReceiptPending) {
		t.Errorf("expected no receipt, got %v", err)
	}
}

func TestEnqueue_Unsigned(t *testing.T) {
	rdb := newTestRedis(t)
	if _, err := Enqueue(context.Background(), rdb, testQueue, &solana.Transaction{}); !errors.Is(err, ErrUnsigned) {
		t.Fatalf("expected ErrUnsigned, got %v", err)
	}
}

// ── Run ───────────────────────────────────────────────────────────────────────

func TestRun_DrainsQueue(t *testing.T) {
	rdb := newTestRedis(t)
	b, payer := newTestBank(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ids []string
	for i := byte(1); i <= 3; i++ {
		id, err := Enqueue(ctx, rdb, testQueue, transfer(t, payer, 1000, i))
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		ids = append(ids, id)
	}

	done := make(chan struct{})
	go func() {
		Run(ctx, testQueue, rdb, b, zap.NewNop())
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for b.Slot() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if b.Slot() != 3 {
		t.Fatalf("slot = %d, want 3", b.Slot())
	}
	for _, id := range ids {
		r, err := GetReceipt(context.Background(), rdb, id)
		if err != nil {
			t.Fatalf("GetReceipt(%s): %v", id, err)
		}
		if r.Status != StatusCommitted {
			t.Errorf("%s: status = %s", id, r.Status)
		}
	}
}

func TestRun_ShutdownRequeues(t *testing.T) {
	rdb := newTestRedis(t)
	_, payer := newTestBank(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, err := Enqueue(ctx, rdb, testQueue, transfer(t, payer, 1000, 1))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	done := make(chan struct{})
	go func() {
		Run(ctx, testQueue, rdb, cancellingSubmitter{cancel: cancel}, zap.NewNop())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if n := queueLen(t, rdb, testQueue); n != 1 {
		t.Fatalf("queue length = %d, want 1", n)
	}
	if n := queueLen(t, rdb, fmt.Sprintf(DLQKeyFmt, testQueue)); n != 0 {
		t.Errorf("dlq length = %d, want 0", n)
	}
	if _, err := GetReceipt(context.Background(), rdb, id); !errors.Is(err, ErrReceiptPending) {
		t.Errorf("expected no receipt, got %v", err)
	}
}

func TestNewReceipt_Code(t *testing.T) {
	err := &bank.TransactionError{Instruction: 1, Err: codeErr(6004)}
	r := NewReceipt(nil, err)
	if r.Status != StatusFailed || r.Code == nil || *r.Code != 6004 {
		t.Fatalf("unexpected receipt: %+v", r)
	}
	raw, _ := json.Marshal(r)
	var m map[string]any
	json.Unmarshal(raw, &m)
	if m["code"].(float64) != 6004 || m["instruction"].(float64) != 1 {
		t.Errorf("unexpected JSON: %s", raw)
	}
}

type codeErr uint32

func (e codeErr) Error() string  { return fmt.Sprintf("custom program error: %d", uint32(e)) }
func (e codeErr) Code() uint32  { return uint32(e) }

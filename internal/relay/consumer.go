// Package relay drains a Redis queue of signed transactions into the
// ledger so clients can submit claims without holding a connection open.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/atomicfizzcaps/fizzcaps-loot/internal/bank"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/metrics"
)

const (
	blpopTimeout = 5 * time.Second
	receiptTTL   = 24 * time.Hour
	retryDelay   = time.Second
)

var (
	ErrUnsigned       = errors.New("relay: transaction has no signatures")
	ErrReceiptPending = errors.New("relay: receipt not available")
)

// Enqueue pushes tx onto queue. The message id is the transaction's first
// signature, which is also the key its receipt is stored under.
func Enqueue(ctx context.Context, rdb *redis.Client, queue string, tx *solana.Transaction) (string, error) {
	if len(tx.Signatures) == 0 {
		return "", ErrUnsigned
	}
	b64, err := tx.ToBase64()
	if err != nil {
		return "", fmt.Errorf("encode transaction: %w", err)
	}
	msg := Message{
		ID:          tx.Signatures[0].String(),
		Transaction: b64,
		EnqueuedAt:  time.Now().Unix(),
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	if err := rdb.RPush(ctx, queue, string(raw)).Err(); err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	return msg.ID, nil
}

// GetReceipt returns the stored outcome of message id.
func GetReceipt(ctx context.Context, rdb *redis.Client, id string) (*Receipt, error) {
	raw, err := rdb.Get(ctx, fmt.Sprintf(ReceiptKeyFmt, id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrReceiptPending
	}
	if err != nil {
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	var r Receipt
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("unmarshal receipt: %w", err)
	}
	return &r, nil
}

// Run is the relay loop: BLPOP → submit → store receipt.
func Run(ctx context.Context, queue string, rdb *redis.Client, sub Submitter, log *zap.Logger) {
	log.Info("relay started", zap.String("queue", queue))

	for {
		if ctx.Err() != nil {
			log.Info("relay stopped")
			return
		}

		results, err := rdb.BLPop(ctx, blpopTimeout, queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			log.Error("relay: BLPOP error", zap.Error(err))
			time.Sleep(retryDelay)
			continue
		}

		// results[0] = key, results[1] = value
		if err := Handle(ctx, rdb, queue, results[1], sub, log); err != nil {
			log.Error("relay: submit failed, requeueing", zap.Error(err))
			// ctx may already be cancelled on shutdown; the item must still go back.
			if err := rdb.LPush(context.WithoutCancel(ctx), queue, results[1]).Err(); err != nil {
				log.Error("relay: requeue failed", zap.Error(err), zap.String("item", results[1]))
			}
			if ctx.Err() == nil {
				time.Sleep(retryDelay)
			}
		}
	}
}

// Handle processes one raw queue item. It returns an error only when the
// item should be retried; every other outcome is final and recorded.
func Handle(ctx context.Context, rdb *redis.Client, queue, raw string, sub Submitter, log *zap.Logger) error {
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil || msg.ID == "" {
		deadLetter(ctx, rdb, queue, raw, log)
		return nil
	}
	tx, err := solana.TransactionFromBase64(msg.Transaction)
	if err != nil {
		deadLetter(ctx, rdb, queue, raw, log)
		return nil
	}

	res, err := sub.Process(ctx, tx)
	if err != nil && (errors.Is(err, bank.ErrCommit) || errors.Is(err, context.Canceled)) {
		metrics.Relayed("retry")
		return err
	}

	receipt := NewReceipt(res, err)
	switch receipt.Status {
	case StatusCommitted:
		metrics.Relayed("submitted")
		log.Info("relayed transaction committed",
			zap.String("id", msg.ID),
			zap.Uint64("slot", receipt.Slot))
	default:
		metrics.Relayed("failed")
		log.Warn("relayed transaction failed",
			zap.String("id", msg.ID),
			zap.String("status", receipt.Status),
			zap.Error(err))
	}

	out, _ := json.Marshal(receipt)
	if err := rdb.Set(context.WithoutCancel(ctx), fmt.Sprintf(ReceiptKeyFmt, msg.ID), out, receiptTTL).Err(); err != nil {
		log.Error("relay: store receipt", zap.String("id", msg.ID), zap.Error(err))
	}
	return nil
}

func deadLetter(ctx context.Context, rdb *redis.Client, queue, raw string, log *zap.Logger) {
	metrics.Relayed("dead_letter")
	if err := rdb.RPush(context.WithoutCancel(ctx), fmt.Sprintf(DLQKeyFmt, queue), raw).Err(); err != nil {
		log.Error("relay: DLQ push failed", zap.Error(err), zap.String("raw", raw))
		return
	}
	log.Error("relay: undecodable message moved to DLQ", zap.String("raw", raw))
}

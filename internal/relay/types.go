package relay

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"

	"github.com/atomicfizzcaps/fizzcaps-loot/internal/bank"
)

// Redis key templates
const (
	DLQKeyFmt     = "%s:dlq"           // %s = queue key
	ReceiptKeyFmt = "relay:receipt:%s" // %s = message id
)

// Message is one queued transaction.
type Message struct {
	ID          string `json:"id"`
	Transaction string `json:"transaction"` // base64 wire transaction
	EnqueuedAt  int64  `json:"enqueued_at"`
}

// Submitter executes a transaction against the ledger.
type Submitter interface {
	Process(ctx context.Context, tx *solana.Transaction) (*bank.Result, error)
}

// Receipt is the outcome of one transaction, as returned by POST /tx and
// stored for queued messages.
type Receipt struct {
	Status      string   `json:"status"` // "committed" | "failed" | "rejected"
	Signature   string   `json:"signature,omitempty"`
	Slot        uint64   `json:"slot,omitempty"`
	Error       string   `json:"error,omitempty"`
	Code        *uint32  `json:"code,omitempty"`
	Instruction *int     `json:"instruction,omitempty"`
	Logs        []string `json:"logs"`
}

const (
	StatusCommitted = "committed"
	StatusFailed    = "failed"   // an instruction aborted the transaction
	StatusRejected  = "rejected" // never executed: bad encoding, signature or duplicate
)

// NewReceipt summarizes the result of Submitter.Process.
func NewReceipt(res *bank.Result, err error) Receipt {
	if err == nil {
		r := Receipt{
			Status:    StatusCommitted,
			Signature: res.Signature.String(),
			Slot:      res.Slot,
			Logs:      res.Logs,
		}
		if r.Logs == nil {
			r.Logs = []string{}
		}
		return r
	}
	r := Receipt{Status: StatusRejected, Error: err.Error(), Logs: []string{}}
	var txErr *bank.TransactionError
	if errors.As(err, &txErr) {
		r.Status = StatusFailed
		ix := txErr.Instruction
		r.Instruction = &ix
		if txErr.Logs != nil {
			r.Logs = txErr.Logs
		}
	}
	if code, ok := bank.ErrorCode(err); ok {
		r.Code = &code
	}
	return r
}

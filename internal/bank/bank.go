// Package bank is a single-node ledger runtime. It verifies and executes
// transactions against a Store, running every instruction of a transaction
// inside one copy-on-write working set that is committed only when all
// instructions succeed.
package bank

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/atomicfizzcaps/fizzcaps-loot/internal/sysvar"
)

// MaxInvokeDepth bounds the instruction stack, top level included.
const MaxInvokeDepth = 4

var ErrAccountNotFound = errors.New("bank: account not found")

// Program is an on-ledger program. It reads and mutates accounts through
// ctx; the runtime checks every mutation once Process returns.
type Program interface {
	Process(ctx *InvokeContext, data []byte) error
}

// ProgramFunc adapts a function to Program.
type ProgramFunc func(ctx *InvokeContext, data []byte) error

func (f ProgramFunc) Process(ctx *InvokeContext, data []byte) error { return f(ctx, data) }

// Precompile checks its own instruction data without touching accounts.
// It receives the data of every instruction in the transaction so offsets
// may point into siblings.
type Precompile interface {
	Verify(data []byte, instructionData [][]byte) error
}

// Result of a committed transaction.
type Result struct {
	Signature solana.Signature
	Slot      uint64
	Logs      []string
}

type Bank struct {
	mu          sync.Mutex
	store       Store
	programs    map[solana.PublicKey]Program
	precompiles map[solana.PublicKey]Precompile
	processed   map[solana.Signature]struct{}
	slot        uint64
	log         *zap.Logger
}

func New(store Store, log *zap.Logger) *Bank {
	return &Bank{
		store:       store,
		programs:    make(map[solana.PublicKey]Program),
		precompiles: make(map[solana.PublicKey]Precompile),
		processed:   make(map[solana.Signature]struct{}),
		log:         log,
	}
}

// Register installs p at id, replacing any previous program.
func (b *Bank) Register(id solana.PublicKey, p Program) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.programs[id] = p
}

func (b *Bank) RegisterPrecompile(id solana.PublicKey, p Precompile) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.precompiles[id] = p
}

// Slot is the number of transactions committed so far.
func (b *Bank) Slot() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.slot
}

// GetAccount returns the committed state at key.
func (b *Bank) GetAccount(key solana.PublicKey) (*Account, error) {
	a, err := b.store.Get(key)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrAccountNotFound
	}
	return a, nil
}

// SetAccount writes an account outside any transaction. Genesis only.
func (b *Bank) SetAccount(key solana.PublicKey, a *Account) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.Commit(map[solana.PublicKey]*Account{key: a.Clone()})
}

// Ledger is direct account access outside any transaction. Bank satisfies
// it, as does the view handed to Modify.
type Ledger interface {
	GetAccount(key solana.PublicKey) (*Account, error)
	SetAccount(key solana.PublicKey, a *Account) error
}

type modifyView struct {
	store  Store
	writes map[solana.PublicKey]*Account
}

func (v *modifyView) GetAccount(key solana.PublicKey) (*Account, error) {
	if a, ok := v.writes[key]; ok {
		return a.Clone(), nil
	}
	a, err := v.store.Get(key)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrAccountNotFound
	}
	return a, nil
}

func (v *modifyView) SetAccount(key solana.PublicKey, a *Account) error {
	v.writes[key] = a.Clone()
	return nil
}

// Modify runs fn with transactions held off. Writes made through the view
// are committed together when fn returns nil. Genesis and faucet only.
func (b *Bank) Modify(fn func(Ledger) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	view := &modifyView{store: b.store, writes: make(map[solana.PublicKey]*Account)}
	if err := fn(view); err != nil {
		return err
	}
	if len(view.writes) == 0 {
		return nil
	}
	return b.store.Commit(view.writes)
}

// Airdrop credits lamports to key, creating a system account if needed.
func (b *Bank) Airdrop(key solana.PublicKey, lamports uint64) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	a, err := b.store.Get(key)
	if err != nil {
		return 0, err
	}
	if a == nil {
		a = emptyAccount()
	}
	if a.Lamports > math.MaxUint64-lamports {
		return 0, fmt.Errorf("airdrop %s: balance overflow", key)
	}
	a.Lamports += lamports
	if err := b.store.Commit(map[solana.PublicKey]*Account{key: a}); err != nil {
		return 0, err
	}
	return a.Lamports, nil
}

func (b *Bank) Close() error {
	return b.store.Close()
}

// Process verifies and executes tx. Either every instruction succeeds and
// all writes are committed, or nothing is.
func (b *Bank) Process(ctx context.Context, tx *solana.Transaction) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(tx.Signatures) == 0 {
		return nil, ErrMissingSignature
	}
	if err := tx.VerifySignatures(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureVerification, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sig := tx.Signatures[0]
	if _, dup := b.processed[sig]; dup {
		return nil, ErrAlreadyProcessed
	}

	metas, err := tx.Message.AccountMetaList()
	if err != nil {
		return nil, fmt.Errorf("resolve accounts: %w", err)
	}
	ixs, err := compile(&tx.Message, metas)
	if err != nil {
		return nil, err
	}
	sysvarData, err := sysvar.Serialize(ixs)
	if err != nil {
		return nil, fmt.Errorf("build instructions sysvar: %w", err)
	}

	env := &txEnv{
		bank:     b,
		slot:     b.slot + 1,
		accounts: make(map[solana.PublicKey]*Account),
		sysvar:   &Account{Owner: SysvarOwnerID, Data: sysvarData},
	}
	datas := make([][]byte, len(ixs))
	for i := range ixs {
		datas[i] = ixs[i].Data
	}

	for i := range ixs {
		if err := sysvar.StoreCurrentIndex(sysvarData, uint16(i)); err != nil {
			return nil, err
		}
		if err := env.execute(&ixs[i], datas); err != nil {
			b.log.Debug("transaction failed",
				zap.Stringer("signature", sig),
				zap.Int("instruction", i),
				zap.Error(err))
			return nil, &TransactionError{Instruction: i, Err: err, Logs: env.logs}
		}
	}

	writes := make(map[solana.PublicKey]*Account)
	for _, m := range metas {
		if !m.IsWritable || env.isVirtual(m.PublicKey) {
			continue
		}
		if a, ok := env.accounts[m.PublicKey]; ok {
			writes[m.PublicKey] = a
		}
	}
	if err := b.store.Commit(writes); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCommit, err)
	}
	b.slot = env.slot
	b.processed[sig] = struct{}{}

	b.log.Info("transaction committed",
		zap.Stringer("signature", sig),
		zap.Uint64("slot", env.slot),
		zap.Int("instructions", len(ixs)),
		zap.Int("writes", len(writes)))
	return &Result{Signature: sig, Slot: env.slot, Logs: env.logs}, nil
}

func compile(msg *solana.Message, metas solana.AccountMetaSlice) ([]sysvar.Instruction, error) {
	out := make([]sysvar.Instruction, len(msg.Instructions))
	for i, ci := range msg.Instructions {
		pid, err := msg.Program(ci.ProgramIDIndex)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		accts := make([]solana.AccountMeta, len(ci.Accounts))
		for j, idx := range ci.Accounts {
			if int(idx) >= len(metas) {
				return nil, fmt.Errorf("instruction %d: account index %d: %w", i, idx, ErrNotEnoughAccountKeys)
			}
			accts[j] = *metas[idx]
		}
		out[i] = sysvar.Instruction{ProgramID: pid, Accounts: accts, Data: []byte(ci.Data)}
	}
	return out, nil
}

// txEnv is the working set of one transaction.
type txEnv struct {
	bank     *Bank
	slot     uint64
	accounts map[solana.PublicKey]*Account
	sysvar   *Account
	logs     []string
}

func (env *txEnv) isVirtual(key solana.PublicKey) bool {
	if key.Equals(solana.SysVarInstructionsPubkey) {
		return true
	}
	_, prog := env.bank.programs[key]
	_, pre := env.bank.precompiles[key]
	return prog || pre
}

// load returns the working copy of key, reading through to the store on
// first access.
func (env *txEnv) load(key solana.PublicKey) (*Account, error) {
	if a, ok := env.accounts[key]; ok {
		return a, nil
	}
	var a *Account
	switch {
	case key.Equals(solana.SysVarInstructionsPubkey):
		a = env.sysvar
	case env.isVirtual(key):
		a = &Account{Lamports: 1, Owner: NativeLoaderID, Executable: true}
	default:
		stored, err := env.bank.store.Get(key)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", key, err)
		}
		if stored == nil {
			stored = emptyAccount()
		}
		a = stored
	}
	env.accounts[key] = a
	return a, nil
}

func (env *txEnv) logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	env.logs = append(env.logs, line)
	env.bank.log.Debug(line)
}

func (env *txEnv) execute(ix *sysvar.Instruction, datas [][]byte) error {
	if pc, ok := env.bank.precompiles[ix.ProgramID]; ok {
		if err := pc.Verify(ix.Data, datas); err != nil {
			return fmt.Errorf("precompile %s: %w", ix.ProgramID, err)
		}
		return nil
	}
	frame := &InvokeContext{
		env:       env,
		programID: ix.ProgramID,
		metas:     ix.Accounts,
		depth:     1,
	}
	return frame.run(ix.Data)
}

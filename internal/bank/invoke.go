package bank

import (
	"bytes"
	"fmt"
	"math/bits"

	"github.com/gagliardetto/solana-go"
)

// InvokeContext is one frame of the instruction stack: a program, the
// accounts it was handed and their privileges.
type InvokeContext struct {
	env       *txEnv
	parent    *InvokeContext
	programID solana.PublicKey
	metas     []solana.AccountMeta
	depth     int
	pre       map[solana.PublicKey]*Account
}

func (c *InvokeContext) ProgramID() solana.PublicKey { return c.programID }

func (c *InvokeContext) NumAccounts() int { return len(c.metas) }

// Depth is 1 for a top-level instruction.
func (c *InvokeContext) Depth() int { return c.depth }

// Slot is the slot the transaction will commit at.
func (c *InvokeContext) Slot() uint64 { return c.env.slot }

func (c *InvokeContext) Meta(i int) (solana.AccountMeta, error) {
	if i < 0 || i >= len(c.metas) {
		return solana.AccountMeta{}, fmt.Errorf("%w: index %d of %d", ErrNotEnoughAccountKeys, i, len(c.metas))
	}
	return c.metas[i], nil
}

func (c *InvokeContext) Key(i int) (solana.PublicKey, error) {
	m, err := c.Meta(i)
	return m.PublicKey, err
}

// Account returns the live working copy of the i-th account. Duplicate
// keys share one copy.
func (c *InvokeContext) Account(i int) (*Account, error) {
	m, err := c.Meta(i)
	if err != nil {
		return nil, err
	}
	return c.env.load(m.PublicKey)
}

// Logf appends a program log line.
func (c *InvokeContext) Logf(format string, args ...any) {
	c.env.logf("Program log: "+format, args...)
}

// privileges merges every meta for key.
func (c *InvokeContext) privileges(key solana.PublicKey) (solana.AccountMeta, bool) {
	out := solana.AccountMeta{PublicKey: key}
	found := false
	for _, m := range c.metas {
		if m.PublicKey.Equals(key) {
			found = true
			out.IsSigner = out.IsSigner || m.IsSigner
			out.IsWritable = out.IsWritable || m.IsWritable
		}
	}
	return out, found
}

// Invoke calls another program with a subset of this frame's accounts.
// Each entry of signerSeeds must derive, under the calling program, an
// address that is then treated as a signer.
func (c *InvokeContext) Invoke(ix solana.Instruction, signerSeeds ...[][]byte) error {
	if c.depth >= MaxInvokeDepth {
		return ErrCallDepth
	}
	pid := ix.ProgramID()
	if !c.programID.Equals(pid) {
		for f := c.parent; f != nil; f = f.parent {
			if f.programID.Equals(pid) {
				return fmt.Errorf("%w: %s", ErrReentrancy, pid)
			}
		}
	}
	if _, ok := c.privileges(pid); !ok {
		return fmt.Errorf("%w: program %s", ErrMissingAccount, pid)
	}
	data, err := ix.Data()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInstructionData, err)
	}

	pdaSigners := make(map[solana.PublicKey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		addr, err := solana.CreateProgramAddress(seeds, c.programID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSeeds, err)
		}
		pdaSigners[addr] = true
	}

	metas := make([]solana.AccountMeta, 0, len(ix.Accounts()))
	for _, m := range ix.Accounts() {
		caller, ok := c.privileges(m.PublicKey)
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingAccount, m.PublicKey)
		}
		if m.IsWritable && !caller.IsWritable {
			return fmt.Errorf("%w: %s is not writable", ErrPrivilegeEscalation, m.PublicKey)
		}
		if m.IsSigner && !caller.IsSigner && !pdaSigners[m.PublicKey] {
			return fmt.Errorf("%w: %s did not sign", ErrPrivilegeEscalation, m.PublicKey)
		}
		metas = append(metas, *m)
	}

	// Settle the caller's own writes before the callee sees them.
	if err := c.verify(); err != nil {
		return err
	}
	callee := &InvokeContext{
		env:       c.env,
		parent:    c,
		programID: pid,
		metas:     metas,
		depth:     c.depth + 1,
	}
	if err := callee.run(data); err != nil {
		return err
	}
	return c.snapshot()
}

func (c *InvokeContext) run(data []byte) error {
	prog, ok := c.env.bank.programs[c.programID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProgram, c.programID)
	}
	c.env.logf("Program %s invoke [%d]", c.programID, c.depth)
	if err := c.snapshot(); err != nil {
		return err
	}
	err := prog.Process(c, data)
	if err == nil {
		err = c.verify()
	}
	if err != nil {
		c.env.logf("Program %s failed: %v", c.programID, err)
		return err
	}
	c.env.logf("Program %s success", c.programID)
	return nil
}

func (c *InvokeContext) snapshot() error {
	c.pre = make(map[solana.PublicKey]*Account, len(c.metas))
	for _, m := range c.metas {
		if _, ok := c.pre[m.PublicKey]; ok {
			continue
		}
		a, err := c.env.load(m.PublicKey)
		if err != nil {
			return err
		}
		c.pre[m.PublicKey] = a.Clone()
	}
	return nil
}

// verify checks every change made since the last snapshot against the
// frame's privileges.
func (c *InvokeContext) verify() error {
	var preHi, preLo, postHi, postLo uint64
	for key, pre := range c.pre {
		post := c.env.accounts[key]
		meta, _ := c.privileges(key)
		if err := verifyAccount(c.programID, pre, post, meta.IsWritable); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		var carry uint64
		preLo, carry = bits.Add64(preLo, pre.Lamports, 0)
		preHi += carry
		postLo, carry = bits.Add64(postLo, post.Lamports, 0)
		postHi += carry
	}
	if preHi != postHi || preLo != postLo {
		return ErrUnbalancedInstruction
	}
	return nil
}

func verifyAccount(programID solana.PublicKey, pre, post *Account, writable bool) error {
	owned := pre.Owner.Equals(programID)
	if pre.Executable != post.Executable {
		return ErrExecutableModified
	}
	if !pre.Owner.Equals(post.Owner) {
		if !writable || !owned || !zeroed(post.Data) {
			return ErrModifiedProgramID
		}
	}
	if post.Lamports < pre.Lamports {
		if !writable {
			return ErrReadonlyLamportChange
		}
		if !owned {
			return ErrExternalAccountLamportSpend
		}
	}
	if post.Lamports > pre.Lamports && !writable {
		return ErrReadonlyLamportChange
	}
	if !bytes.Equal(pre.Data, post.Data) {
		if !writable {
			return ErrReadonlyDataModified
		}
		if !owned {
			return ErrExternalAccountDataModified
		}
	}
	return nil
}

func zeroed(b []byte) bool {
	for _, x := range b {
		if x != 0 {
			return false
		}
	}
	return true
}

package native

import (
	"github.com/gagliardetto/solana-go"

	"github.com/atomicfizzcaps/fizzcaps-loot/internal/bank"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/sigverify"
)

// RegisterAll installs every built-in program at its canonical address.
func RegisterAll(b *bank.Bank) {
	b.Register(solana.SystemProgramID, SystemProgram{})
	b.Register(solana.TokenProgramID, TokenProgram{})
	b.Register(solana.SPLAssociatedTokenAccountProgramID, AssociatedTokenProgram{})
	b.Register(MetadataProgramID, MetadataProgram{})
	b.RegisterPrecompile(sigverify.Ed25519ProgramID, Ed25519Program{})
}

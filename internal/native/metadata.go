package native

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/atomicfizzcaps/fizzcaps-loot/internal/bank"
)

var MetadataProgramID = solana.TokenMetadataProgramID

const (
	MaxNameLength   = 128
	MaxSymbolLength = 10
	MaxURILength    = 200
	MaxCreators     = 5

	metadataKeyV1       = 4
	createDiscriminator = 42
	createV1            = 0
)

type TokenStandard uint8

const (
	NonFungible TokenStandard = iota
	FungibleAsset
	Fungible
	NonFungibleEdition
	ProgrammableNonFungible
)

type Creator struct {
	Address  solana.PublicKey
	Verified bool
	Share    uint8
}

type Collection struct {
	Verified bool
	Key      solana.PublicKey
}

// AssetData is the argument block of CreateV1. A nil Creators encodes as
// None, an empty non-nil slice as Some([]).
type AssetData struct {
	Name                 string
	Symbol               string
	URI                  string
	SellerFeeBasisPoints uint16
	Creators             []Creator
	PrimarySaleHappened  bool
	IsMutable            bool
	TokenStandard        TokenStandard
	Collection           *Collection
}

// Metadata is the record stored at a mint's metadata address.
type Metadata struct {
	UpdateAuthority      solana.PublicKey
	Mint                 solana.PublicKey
	Name                 string
	Symbol               string
	URI                  string
	SellerFeeBasisPoints uint16
	Creators             []Creator
	PrimarySaleHappened  bool
	IsMutable            bool
	EditionNonce         *uint8
	TokenStandard        *TokenStandard
	Collection           *Collection
}

// MetadataAddress derives the metadata account for mint.
func MetadataAddress(mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindTokenMetadataAddress(mint)
}

func writeCreators(enc *bin.Encoder, creators []Creator) error {
	if err := enc.WriteOption(creators != nil); err != nil || creators == nil {
		return err
	}
	if err := enc.WriteLength(len(creators)); err != nil {
		return err
	}
	for _, c := range creators {
		if err := enc.WriteBytes(c.Address[:], false); err != nil {
			return err
		}
		if err := enc.WriteBool(c.Verified); err != nil {
			return err
		}
		if err := enc.WriteUint8(c.Share); err != nil {
			return err
		}
	}
	return nil
}

func readCreators(dec *bin.Decoder) ([]Creator, error) {
	some, err := dec.ReadOption()
	if err != nil || !some {
		return nil, err
	}
	n, err := dec.ReadLength()
	if err != nil {
		return nil, err
	}
	if n > MaxCreators {
		return nil, fmt.Errorf("%d creators", n)
	}
	out := make([]Creator, n)
	for i := range out {
		key, err := dec.ReadNBytes(solana.PublicKeyLength)
		if err != nil {
			return nil, err
		}
		out[i].Address = solana.PublicKeyFromBytes(key)
		if out[i].Verified, err = dec.ReadBool(); err != nil {
			return nil, err
		}
		if out[i].Share, err = dec.ReadUint8(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func writeCollection(enc *bin.Encoder, c *Collection) error {
	if err := enc.WriteOption(c != nil); err != nil || c == nil {
		return err
	}
	if err := enc.WriteBool(c.Verified); err != nil {
		return err
	}
	return enc.WriteBytes(c.Key[:], false)
}

func readCollection(dec *bin.Decoder) (*Collection, error) {
	some, err := dec.ReadOption()
	if err != nil || !some {
		return nil, err
	}
	var c Collection
	if c.Verified, err = dec.ReadBool(); err != nil {
		return nil, err
	}
	key, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return nil, err
	}
	c.Key = solana.PublicKeyFromBytes(key)
	return &c, nil
}

func (a AssetData) MarshalWithEncoder(enc *bin.Encoder) error {
	for _, s := range []string{a.Name, a.Symbol, a.URI} {
		if err := enc.WriteString(s); err != nil {
			return err
		}
	}
	if err := enc.WriteUint16(a.SellerFeeBasisPoints, bin.LE); err != nil {
		return err
	}
	if err := writeCreators(enc, a.Creators); err != nil {
		return err
	}
	if err := enc.WriteBool(a.PrimarySaleHappened); err != nil {
		return err
	}
	if err := enc.WriteBool(a.IsMutable); err != nil {
		return err
	}
	if err := enc.WriteUint8(uint8(a.TokenStandard)); err != nil {
		return err
	}
	if err := writeCollection(enc, a.Collection); err != nil {
		return err
	}
	// uses, collection_details, rule_set
	for i := 0; i < 3; i++ {
		if err := enc.WriteOption(false); err != nil {
			return err
		}
	}
	return nil
}

func (a *AssetData) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	for _, s := range []*string{&a.Name, &a.Symbol, &a.URI} {
		if *s, err = dec.ReadString(); err != nil {
			return err
		}
	}
	if a.SellerFeeBasisPoints, err = dec.ReadUint16(bin.LE); err != nil {
		return err
	}
	if a.Creators, err = readCreators(dec); err != nil {
		return err
	}
	if a.PrimarySaleHappened, err = dec.ReadBool(); err != nil {
		return err
	}
	if a.IsMutable, err = dec.ReadBool(); err != nil {
		return err
	}
	ts, err := dec.ReadUint8()
	if err != nil {
		return err
	}
	a.TokenStandard = TokenStandard(ts)
	if a.Collection, err = readCollection(dec); err != nil {
		return err
	}
	for _, name := range []string{"uses", "collection_details", "rule_set"} {
		some, err := dec.ReadOption()
		if err != nil {
			return err
		}
		if some {
			return fmt.Errorf("%s is not supported", name)
		}
	}
	return nil
}

func (m Metadata) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint8(metadataKeyV1); err != nil {
		return err
	}
	if err := enc.WriteBytes(m.UpdateAuthority[:], false); err != nil {
		return err
	}
	if err := enc.WriteBytes(m.Mint[:], false); err != nil {
		return err
	}
	for _, s := range []string{m.Name, m.Symbol, m.URI} {
		if err := enc.WriteString(s); err != nil {
			return err
		}
	}
	if err := enc.WriteUint16(m.SellerFeeBasisPoints, bin.LE); err != nil {
		return err
	}
	if err := writeCreators(enc, m.Creators); err != nil {
		return err
	}
	if err := enc.WriteBool(m.PrimarySaleHappened); err != nil {
		return err
	}
	if err := enc.WriteBool(m.IsMutable); err != nil {
		return err
	}
	if err := enc.WriteOption(m.EditionNonce != nil); err != nil {
		return err
	}
	if m.EditionNonce != nil {
		if err := enc.WriteUint8(*m.EditionNonce); err != nil {
			return err
		}
	}
	if err := enc.WriteOption(m.TokenStandard != nil); err != nil {
		return err
	}
	if m.TokenStandard != nil {
		if err := enc.WriteUint8(uint8(*m.TokenStandard)); err != nil {
			return err
		}
	}
	if err := writeCollection(enc, m.Collection); err != nil {
		return err
	}
	// uses, collection_details, programmable_config
	for i := 0; i < 3; i++ {
		if err := enc.WriteOption(false); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metadata) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	key, err := dec.ReadUint8()
	if err != nil {
		return err
	}
	if key != metadataKeyV1 {
		return fmt.Errorf("account key %d is not metadata", key)
	}
	for _, pk := range []*solana.PublicKey{&m.UpdateAuthority, &m.Mint} {
		b, err := dec.ReadNBytes(solana.PublicKeyLength)
		if err != nil {
			return err
		}
		*pk = solana.PublicKeyFromBytes(b)
	}
	for _, s := range []*string{&m.Name, &m.Symbol, &m.URI} {
		if *s, err = dec.ReadString(); err != nil {
			return err
		}
	}
	if m.SellerFeeBasisPoints, err = dec.ReadUint16(bin.LE); err != nil {
		return err
	}
	if m.Creators, err = readCreators(dec); err != nil {
		return err
	}
	if m.PrimarySaleHappened, err = dec.ReadBool(); err != nil {
		return err
	}
	if m.IsMutable, err = dec.ReadBool(); err != nil {
		return err
	}
	if some, err := dec.ReadOption(); err != nil {
		return err
	} else if some {
		n, err := dec.ReadUint8()
		if err != nil {
			return err
		}
		m.EditionNonce = &n
	}
	if some, err := dec.ReadOption(); err != nil {
		return err
	} else if some {
		v, err := dec.ReadUint8()
		if err != nil {
			return err
		}
		ts := TokenStandard(v)
		m.TokenStandard = &ts
	}
	m.Collection, err = readCollection(dec)
	return err
}

// LoadMetadata decodes a metadata account owned by the metadata program.
func LoadMetadata(acct *bank.Account) (*Metadata, error) {
	if !acct.Owner.Equals(MetadataProgramID) {
		return nil, fmt.Errorf("%w: metadata owned by %s", bank.ErrIncorrectProgramID, acct.Owner)
	}
	var m Metadata
	if err := m.UnmarshalWithDecoder(bin.NewBorshDecoder(acct.Data)); err != nil {
		return nil, fmt.Errorf("%w: %v", bank.ErrInvalidAccountData, err)
	}
	return &m, nil
}

// CreateV1Accounts lists the accounts of CreateV1. Zero MasterEdition and
// SplTokenProgram keys are passed as the metadata program placeholder.
type CreateV1Accounts struct {
	Metadata              solana.PublicKey
	MasterEdition         solana.PublicKey
	Mint                  solana.PublicKey
	MintSigner            bool
	Authority             solana.PublicKey
	Payer                 solana.PublicKey
	UpdateAuthority       solana.PublicKey
	UpdateAuthoritySigner bool
	SplTokenProgram       solana.PublicKey
}

func orPlaceholder(k solana.PublicKey) solana.PublicKey {
	if k.IsZero() {
		return MetadataProgramID
	}
	return k
}

// NewCreateV1Instruction builds a metadata CreateV1 with no decimals and
// no print supply.
func NewCreateV1Instruction(accts CreateV1Accounts, data AssetData) (*solana.GenericInstruction, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteUint8(createDiscriminator); err != nil {
		return nil, err
	}
	if err := enc.WriteUint8(createV1); err != nil {
		return nil, err
	}
	if err := data.MarshalWithEncoder(enc); err != nil {
		return nil, err
	}
	// decimals, print_supply
	if err := enc.WriteOption(false); err != nil {
		return nil, err
	}
	if err := enc.WriteOption(false); err != nil {
		return nil, err
	}

	edition := orPlaceholder(accts.MasterEdition)
	metas := solana.AccountMetaSlice{
		solana.Meta(accts.Metadata).WRITE(),
		{PublicKey: edition, IsWritable: !edition.Equals(MetadataProgramID)},
		{PublicKey: accts.Mint, IsWritable: true, IsSigner: accts.MintSigner},
		solana.Meta(accts.Authority).SIGNER(),
		solana.Meta(accts.Payer).WRITE().SIGNER(),
		{PublicKey: accts.UpdateAuthority, IsSigner: accts.UpdateAuthoritySigner},
		solana.Meta(solana.SystemProgramID),
		solana.Meta(solana.SysVarInstructionsPubkey),
		solana.Meta(orPlaceholder(accts.SplTokenProgram)),
	}
	return solana.NewInstruction(MetadataProgramID, metas, buf.Bytes()), nil
}

// MetadataProgram implements CreateV1 for non-fungible assets without a
// master edition.
type MetadataProgram struct{}

func (MetadataProgram) Process(ctx *bank.InvokeContext, data []byte) error {
	if len(data) < 2 || data[0] != createDiscriminator || data[1] != createV1 {
		return MetadataInstructionUnpackError
	}
	dec := bin.NewBorshDecoder(data[2:])
	var args AssetData
	if err := args.UnmarshalWithDecoder(dec); err != nil {
		return fmt.Errorf("%w: %v", MetadataInstructionUnpackError, err)
	}
	if decimals, err := dec.ReadOption(); err != nil || decimals {
		return MetadataInstructionUnpackError
	}
	if supply, err := dec.ReadOption(); err != nil || supply {
		return MetadataInstructionUnpackError
	}
	if err := validateAssetData(args); err != nil {
		return err
	}

	metaKey, err := ctx.Key(0)
	if err != nil {
		return err
	}
	mintKey, err := ctx.Key(2)
	if err != nil {
		return err
	}
	authority, err := ctx.Meta(3)
	if err != nil {
		return err
	}
	payer, err := requireSigner(ctx, 4)
	if err != nil {
		return err
	}
	updateAuthority, err := ctx.Key(5)
	if err != nil {
		return err
	}

	programID := ctx.ProgramID()
	want, bump, err := solana.FindProgramAddress([][]byte{[]byte("metadata"), programID[:], mintKey[:]}, programID)
	if err != nil {
		return err
	}
	if !want.Equals(metaKey) {
		return MetadataDerivedKeyInvalid
	}
	metaAcct, err := ctx.Account(0)
	if err != nil {
		return err
	}
	if !metaAcct.Owner.Equals(solana.SystemProgramID) || len(metaAcct.Data) > 0 {
		return MetadataAlreadyInitialized
	}

	mintAcct, err := ctx.Account(2)
	if err != nil {
		return err
	}
	mint, err := LoadMint(mintAcct)
	if err != nil {
		return err
	}
	if mint.MintAuthority == nil || !mint.MintAuthority.Equals(authority.PublicKey) {
		return MetadataInvalidMintAuthority
	}
	if !authority.IsSigner {
		return fmt.Errorf("%w: %s", bank.ErrMissingRequiredSignature, authority.PublicKey)
	}
	if args.TokenStandard != NonFungible || mint.Decimals != 0 {
		return MetadataInvalidTokenStandard
	}

	ts := args.TokenStandard
	record := Metadata{
		UpdateAuthority:      updateAuthority,
		Mint:                 mintKey,
		Name:                 args.Name,
		Symbol:               args.Symbol,
		URI:                  args.URI,
		SellerFeeBasisPoints: args.SellerFeeBasisPoints,
		Creators:             args.Creators,
		PrimarySaleHappened:  args.PrimarySaleHappened,
		IsMutable:            args.IsMutable,
		TokenStandard:        &ts,
		Collection:           args.Collection,
	}
	buf := new(bytes.Buffer)
	if err := record.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return err
	}

	seeds := [][]byte{[]byte("metadata"), programID[:], mintKey[:], {bump}}
	if err := createPDA(ctx, payer, metaKey, metaAcct, uint64(buf.Len()), programID, seeds); err != nil {
		return err
	}
	copy(metaAcct.Data, buf.Bytes())
	ctx.Logf("IX: Create")
	return nil
}

func validateAssetData(a AssetData) error {
	switch {
	case len(a.Name) > MaxNameLength:
		return MetadataNameTooLong
	case len(a.Symbol) > MaxSymbolLength:
		return MetadataSymbolTooLong
	case len(a.URI) > MaxURILength:
		return MetadataURITooLong
	case a.SellerFeeBasisPoints > 10000:
		return MetadataInvalidFeeBasisPoints
	case len(a.Creators) > MaxCreators:
		return MetadataInstructionUnpackError
	}
	return nil
}

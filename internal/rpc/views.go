package rpc

import (
	"encoding/base64"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/atomicfizzcaps/fizzcaps-loot/internal/bank"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/native"
)

type accountView struct {
	Address    string `json:"address"`
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Executable bool   `json:"executable"`
	Data       string `json:"data"` // base64
}

func newAccountView(addr solana.PublicKey, a *bank.Account) accountView {
	return accountView{
		Address:    addr.String(),
		Lamports:   a.Lamports,
		Owner:      a.Owner.String(),
		Executable: a.Executable,
		Data:       base64.StdEncoding.EncodeToString(a.Data),
	}
}

type mintView struct {
	Type            string  `json:"type"`
	Address         string  `json:"address"`
	MintAuthority   *string `json:"mint_authority"`
	Supply          uint64  `json:"supply"`
	Decimals        uint8   `json:"decimals"`
	FreezeAuthority *string `json:"freeze_authority"`
}

func newMintView(addr solana.PublicKey, m *token.Mint) mintView {
	return mintView{
		Type:            "mint",
		Address:         addr.String(),
		MintAuthority:   optKey(m.MintAuthority),
		Supply:          m.Supply,
		Decimals:        m.Decimals,
		FreezeAuthority: optKey(m.FreezeAuthority),
	}
}

type tokenAccountView struct {
	Type    string `json:"type"`
	Address string `json:"address"`
	Mint    string `json:"mint"`
	Owner   string `json:"owner"`
	Amount  uint64 `json:"amount"`
	State   string `json:"state"`
}

func newTokenAccountView(addr solana.PublicKey, ta *token.Account) tokenAccountView {
	state := "initialized"
	if ta.State == token.Frozen {
		state = "frozen"
	}
	return tokenAccountView{
		Type:    "account",
		Address: addr.String(),
		Mint:    ta.Mint.String(),
		Owner:   ta.Owner.String(),
		Amount:  ta.Amount,
		State:   state,
	}
}

type creatorView struct {
	Address  string `json:"address"`
	Verified bool   `json:"verified"`
	Share    uint8  `json:"share"`
}

type collectionView struct {
	Verified bool   `json:"verified"`
	Key      string `json:"key"`
}

type metadataView struct {
	Address              string          `json:"address"`
	UpdateAuthority      string          `json:"update_authority"`
	Mint                 string          `json:"mint"`
	Name                 string          `json:"name"`
	Symbol               string          `json:"symbol"`
	URI                  string          `json:"uri"`
	SellerFeeBasisPoints uint16          `json:"seller_fee_basis_points"`
	Creators             []creatorView   `json:"creators"`
	PrimarySaleHappened  bool            `json:"primary_sale_happened"`
	IsMutable            bool            `json:"is_mutable"`
	TokenStandard        *string         `json:"token_standard"`
	Collection           *collectionView `json:"collection"`
}

var tokenStandardNames = map[native.TokenStandard]string{
	native.NonFungible:             "NonFungible",
	native.FungibleAsset:           "FungibleAsset",
	native.Fungible:                "Fungible",
	native.NonFungibleEdition:      "NonFungibleEdition",
	native.ProgrammableNonFungible: "ProgrammableNonFungible",
}

func newMetadataView(addr solana.PublicKey, md *native.Metadata) metadataView {
	v := metadataView{
		Address:              addr.String(),
		UpdateAuthority:      md.UpdateAuthority.String(),
		Mint:                 md.Mint.String(),
		Name:                 md.Name,
		Symbol:               md.Symbol,
		URI:                  md.URI,
		SellerFeeBasisPoints: md.SellerFeeBasisPoints,
		Creators:             []creatorView{},
		PrimarySaleHappened:  md.PrimarySaleHappened,
		IsMutable:            md.IsMutable,
	}
	for _, c := range md.Creators {
		v.Creators = append(v.Creators, creatorView{Address: c.Address.String(), Verified: c.Verified, Share: c.Share})
	}
	if md.TokenStandard != nil {
		name := tokenStandardNames[*md.TokenStandard]
		v.TokenStandard = &name
	}
	if md.Collection != nil {
		v.Collection = &collectionView{Verified: md.Collection.Verified, Key: md.Collection.Key.String()}
	}
	return v
}

func optKey(k *solana.PublicKey) *string {
	if k == nil {
		return nil
	}
	s := k.String()
	return &s
}

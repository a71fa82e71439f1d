// Package wallet derives per-auction keypairs deterministically from a user's
// master seed and an auction's item ID, and encrypts the resulting private
// keys at rest. Derivation is pure: the same (seed, itemID) always yields the
// same wallet, so auction wallets are recoverable from the master seed alone
// without any persisted key material.
package wallet

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SeedLength is the required master seed size in bytes.
const SeedLength = 32

// AuctionWallet is a derived per-auction keypair.
type AuctionWallet struct {
	Address     string `json:"address"`
	PublicKey   string `json:"public_key"`
	PrivateKey  string `json:"private_key"` // hex; encrypt before persisting
	WalletIndex uint32 `json:"wallet_index"`
}

// WalletIndex derives the deterministic child index for an item: the first
// four bytes of SHA-256(itemID), big endian.
func WalletIndex(itemID string) uint32 {
	sum := sha256.Sum256([]byte(itemID))
	return binary.BigEndian.Uint32(sum[:4])
}

// Deriver derives auction wallets from 32-byte master seeds.
type Deriver struct{}

// NewDeriver creates a Deriver.
func NewDeriver() *Deriver {
	return &Deriver{}
}

// DeriveAuctionWallet derives the auction wallet for (masterSeed, itemID).
// It returns an explicit error when masterSeed is not exactly 32 bytes; it
// never substitutes a random seed.
func (d *Deriver) DeriveAuctionWallet(masterSeed []byte, itemID string) (AuctionWallet, error) {
	if len(masterSeed) != SeedLength {
		return AuctionWallet{}, fmt.Errorf("wallet: master seed must be %d bytes, got %d",
			SeedLength, len(masterSeed))
	}
	if itemID == "" {
		return AuctionWallet{}, fmt.Errorf("wallet: item id must not be empty")
	}

	index := WalletIndex(itemID)

	// Child secret: SHA-256(seed || uint32be(index)). On the negligible chance
	// the candidate falls outside the secp256k1 scalar range, hash again until
	// it does not. The loop is deterministic, so derivation stays reproducible.
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], index)
	candidate := sha256.Sum256(append(append([]byte{}, masterSeed...), idx[:]...))

	priv, err := ethcrypto.ToECDSA(candidate[:])
	for err != nil {
		candidate = sha256.Sum256(candidate[:])
		priv, err = ethcrypto.ToECDSA(candidate[:])
	}

	pub := ethcrypto.CompressPubkey(&priv.PublicKey)
	addr := ethcrypto.PubkeyToAddress(priv.PublicKey)

	return AuctionWallet{
		Address:     addr.Hex(),
		PublicKey:   hexutil.Encode(pub),
		PrivateKey:  hex.EncodeToString(ethcrypto.FromECDSA(priv)),
		WalletIndex: index,
	}, nil
}

// ParseSeed decodes a hex-encoded master seed and enforces the 32-byte length.
func ParseSeed(seedHex string) ([]byte, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("wallet: master seed is not valid hex: %w", err)
	}
	if len(seed) != SeedLength {
		return nil, fmt.Errorf("wallet: master seed must be %d bytes, got %d", SeedLength, len(seed))
	}
	return seed, nil
}

// Package signer abstracts the external signing provider used by the
// submission pipeline. A provider owns exactly one signing key; which
// permission that key satisfies is decided elsewhere and is deliberately not
// trusted to match the provider's own default.
package signer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"tronforge/core/types"
	"tronforge/crypto"
)

// Terminal signing outcomes. Both are surfaced to the caller unmodified and
// never conflated with an on-chain signature mismatch.
var (
	ErrRejected = errors.New("signer: signature request rejected by user")
	ErrTimeout  = errors.New("signer: signature request timed out")
)

// Provider signs a sealed transaction envelope under a specific permission.
type Provider interface {
	// Sign attaches a signature authorising the transaction. The permission
	// id is informational for interactive providers; it must already be
	// stamped on the envelope itself.
	Sign(ctx context.Context, tx *types.Transaction, permissionID int32) (*types.Transaction, error)
	// Address reports the account the provider signs as.
	Address() crypto.Address
}

// Local is a Provider backed by an in-process secp256k1 key.
type Local struct {
	key *crypto.PrivateKey
}

// NewLocal wraps a loaded private key.
func NewLocal(key *crypto.PrivateKey) (*Local, error) {
	if key == nil || key.PrivateKey == nil {
		return nil, errors.New("signer: nil private key")
	}
	return &Local{key: key}, nil
}

// LocalFromKeystore loads the signing key from a v3 keystore file.
func LocalFromKeystore(path, passphrase string) (*Local, error) {
	key, err := crypto.LoadFromKeystore(path, passphrase)
	if err != nil {
		return nil, fmt.Errorf("signer: load keystore: %w", err)
	}
	return NewLocal(key)
}

// Address implements Provider.
func (s *Local) Address() crypto.Address {
	return s.key.PubKey().Address()
}

// Sign seals the envelope if needed and appends a recoverable signature over
// its digest.
func (s *Local) Sign(ctx context.Context, tx *types.Transaction, _ int32) (*types.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if tx == nil {
		return nil, errors.New("signer: nil transaction")
	}
	if tx.TxID == "" {
		if err := tx.Seal(); err != nil {
			return nil, fmt.Errorf("signer: seal transaction: %w", err)
		}
	}
	digest, err := tx.Digest()
	if err != nil {
		return nil, fmt.Errorf("signer: digest: %w", err)
	}
	sig, err := s.key.Sign(digest)
	if err != nil {
		return nil, fmt.Errorf("signer: sign digest: %w", err)
	}
	tx.Signature = append(tx.Signature, hex.EncodeToString(sig))
	return tx, nil
}

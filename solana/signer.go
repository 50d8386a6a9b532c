package solana

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// WalletSigner is the connected wallet. It authorizes a whole transaction and
// may inspect or augment it before signing.
type WalletSigner interface {
	PublicKey() solana.PublicKey
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)
}

// CoSigner is locally held key material, such as a freshly generated mint
// key, that adds its signature after the wallet has signed.
type CoSigner interface {
	PublicKey() solana.PublicKey
	SignMessage(message []byte) (solana.Signature, error)
}

// Keypair is a generated key used as a co-signer.
type Keypair struct {
	key solana.PrivateKey
}

func NewKeypair() (*Keypair, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, err
	}
	return &Keypair{key: key}, nil
}

func (k *Keypair) PublicKey() solana.PublicKey {
	return k.key.PublicKey()
}

func (k *Keypair) SignMessage(message []byte) (solana.Signature, error) {
	return k.key.Sign(message)
}

// KeypairWallet is a WalletSigner backed by a local private key.
type KeypairWallet struct {
	key solana.PrivateKey
}

func NewKeypairWallet(key solana.PrivateKey) *KeypairWallet {
	return &KeypairWallet{key: key}
}

func (w *KeypairWallet) PublicKey() solana.PublicKey {
	return w.key.PublicKey()
}

func (w *KeypairWallet) SignTransaction(_ context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, err
	}
	sig, err := w.key.Sign(message)
	if err != nil {
		return nil, err
	}
	if err = setSignature(tx, w.PublicKey(), sig); err != nil {
		return nil, err
	}
	return tx, nil
}

// Sign collects every required signature and returns the wire encoding of
// the transaction. The wallet signs first; co-signers sign the message the
// wallet handed back.
func Sign(ctx context.Context, pending *PendingTransaction, wallet WalletSigner, coSigners ...CoSigner) ([]byte, error) {
	if wallet == nil {
		return nil, fmt.Errorf("%w: no wallet connected", ErrMissingSigner)
	}

	bySigner := make(map[solana.PublicKey]CoSigner, len(coSigners))
	for _, s := range coSigners {
		bySigner[s.PublicKey()] = s
	}
	for _, key := range pending.Signers {
		if key.Equals(wallet.PublicKey()) {
			continue
		}
		if _, ok := bySigner[key]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingSigner, key)
		}
	}

	tx, err := wallet.SignTransaction(ctx, pending.Tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningRejected, err)
	}
	if tx == nil {
		return nil, fmt.Errorf("%w: wallet returned no transaction", ErrSigningRejected)
	}

	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, err
	}
	for _, key := range pending.Signers {
		s, ok := bySigner[key]
		if !ok || key.Equals(wallet.PublicKey()) {
			continue
		}
		sig, err := s.SignMessage(message)
		if err != nil {
			return nil, fmt.Errorf("co-signer %s: %w", key, err)
		}
		if err = setSignature(tx, key, sig); err != nil {
			return nil, err
		}
	}

	if err = tx.VerifySignatures(); err != nil {
		return nil, fmt.Errorf("verify signatures: %w", err)
	}
	pending.Tx = tx

	return tx.MarshalBinary()
}

func setSignature(tx *solana.Transaction, key solana.PublicKey, sig solana.Signature) error {
	n := int(tx.Message.Header.NumRequiredSignatures)
	for len(tx.Signatures) < n {
		tx.Signatures = append(tx.Signatures, solana.Signature{})
	}
	for i := 0; i < n && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(key) {
			tx.Signatures[i] = sig
			return nil
		}
	}
	return fmt.Errorf("%s is not a required signer", key)
}

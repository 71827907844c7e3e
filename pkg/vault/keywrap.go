package vault

import (
	"errors"
	"fmt"

	"github.com/JackyZhang8/locknote/pkg/crypto"
)

// WrapKind tags which secret a WrappedKey is bound to.
type WrapKind string

const (
	WrapPassword WrapKind = "password"
	WrapDataKey  WrapKind = "datakey"
)

// WrappedKey is the master key sealed under a key-encryption key. Salt and
// KDF are what is needed to re-derive that KEK from the matching secret.
type WrappedKey struct {
	Kind WrapKind         `json:"kind"`
	Salt []byte           `json:"salt"`
	KDF  crypto.KDFParams `json:"kdf"`
	Blob []byte           `json:"blob"`
}

// KeyWrap wraps and unwraps the master key with one secret.
type KeyWrap interface {
	Kind() WrapKind
	// Wrap seals masterKey under a KEK derived with a fresh salt.
	Wrap(masterKey []byte) (*WrappedKey, error)
	// Unwrap recovers the master key. A secret that does not authenticate
	// returns ErrWrongSecret.
	Unwrap(w *WrappedKey) ([]byte, error)
	// Wipe zeroes the secret held by the wrapper.
	Wipe()
}

// kek is the derivation shared by both wrap variants.
type kek struct {
	kind   WrapKind
	secret []byte
	params crypto.KDFParams
}

func (k *kek) aad() []byte { return []byte("locknote/wrap/" + string(k.kind)) }

func (k *kek) Kind() WrapKind { return k.kind }

func (k *kek) Wipe() { crypto.SecureWipe(k.secret) }

func (k *kek) Wrap(masterKey []byte) (*WrappedKey, error) {
	if len(masterKey) != crypto.KeyLength {
		return nil, crypto.ErrInvalidKeyLength
	}
	salt, err := crypto.GenerateSalt()
	if err != nil {
		return nil, err
	}

	key := crypto.DeriveKey(k.secret, salt, k.params)
	defer crypto.SecureWipe(key)

	blob, err := crypto.Seal(key, masterKey, k.aad())
	if err != nil {
		return nil, fmt.Errorf("vault: failed to wrap master key: %w", err)
	}
	return &WrappedKey{Kind: k.kind, Salt: salt, KDF: k.params, Blob: blob}, nil
}

func (k *kek) Unwrap(w *WrappedKey) ([]byte, error) {
	if w == nil || w.Kind != k.kind {
		return nil, fmt.Errorf("vault: expected %s wrap", k.kind)
	}
	if err := w.KDF.Validate(); err != nil {
		return nil, err
	}

	key := crypto.DeriveKey(k.secret, w.Salt, w.KDF)
	defer crypto.SecureWipe(key)

	masterKey, err := crypto.Open(key, w.Blob, k.aad())
	if err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) || errors.Is(err, crypto.ErrCiphertextTooShort) {
			return nil, ErrWrongSecret
		}
		return nil, err
	}
	return masterKey, nil
}

type passwordWrap struct{ kek }

// PasswordWrap returns the KeyWrap for the vault password. New wraps use params.
func PasswordWrap(password string, params crypto.KDFParams) KeyWrap {
	return &passwordWrap{kek{kind: WrapPassword, secret: []byte(password), params: params}}
}

type dataKeyWrap struct{ kek }

// DataKeyWrap returns the KeyWrap for a recovery data key. The key is
// normalized first; malformed input returns ErrInvalidDataKey.
func DataKeyWrap(dataKey string, params crypto.KDFParams) (KeyWrap, error) {
	normalized, err := crypto.NormalizeDataKey(dataKey)
	if err != nil {
		return nil, ErrInvalidDataKey
	}
	return &dataKeyWrap{kek{kind: WrapDataKey, secret: []byte(normalized), params: params}}, nil
}

package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JackyZhang8/locknote/pkg/crypto"
)

func TestKeyWrap_BothPathsUnwrapSameKey(t *testing.T) {
	masterKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	dataKey, err := crypto.GenerateDataKey()
	require.NoError(t, err)

	pw := PasswordWrap("correct horse", testKDF)
	dk, err := DataKeyWrap(dataKey, testKDF)
	require.NoError(t, err)

	tests := []struct {
		name string
		wrap KeyWrap
		kind WrapKind
	}{
		{"password", pw, WrapPassword},
		{"data key", dk, WrapDataKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.wrap.Kind())
			w, err := tt.wrap.Wrap(masterKey)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, w.Kind)
			assert.Len(t, w.Salt, crypto.SaltLength)
			assert.NotContains(t, string(w.Blob), string(masterKey))

			got, err := tt.wrap.Unwrap(w)
			require.NoError(t, err)
			assert.Equal(t, masterKey, got)
		})
	}
}

func TestKeyWrap_FreshSaltPerWrap(t *testing.T) {
	masterKey, _ := crypto.GenerateKey()
	pw := PasswordWrap("correct horse", testKDF)

	a, err := pw.Wrap(masterKey)
	require.NoError(t, err)
	b, err := pw.Wrap(masterKey)
	require.NoError(t, err)
	assert.NotEqual(t, a.Salt, b.Salt)
	assert.NotEqual(t, a.Blob, b.Blob)
}

func TestKeyWrap_WrongSecret(t *testing.T) {
	masterKey, _ := crypto.GenerateKey()
	w, err := PasswordWrap("correct horse", testKDF).Wrap(masterKey)
	require.NoError(t, err)

	_, err = PasswordWrap("wrong horse", testKDF).Unwrap(w)
	assert.ErrorIs(t, err, ErrWrongSecret)

	w.Blob[len(w.Blob)-1] ^= 0x01
	_, err = PasswordWrap("correct horse", testKDF).Unwrap(w)
	assert.ErrorIs(t, err, ErrWrongSecret, "tampering is indistinguishable from a wrong password")
}

func TestKeyWrap_KindMismatch(t *testing.T) {
	masterKey, _ := crypto.GenerateKey()
	w, err := PasswordWrap("ABCD-EFGH-JKLM-NPQR", testKDF).Wrap(masterKey)
	require.NoError(t, err)

	dk, err := DataKeyWrap("ABCD-EFGH-JKLM-NPQR", testKDF)
	require.NoError(t, err)
	_, err = dk.Unwrap(w)
	assert.Error(t, err)
}

func TestKeyWrap_StoredParamsWin(t *testing.T) {
	masterKey, _ := crypto.GenerateKey()
	heavier := crypto.KDFParams{Memory: 16 * 1024, Iterations: 2, Parallelism: 1}
	w, err := PasswordWrap("correct horse", heavier).Wrap(masterKey)
	require.NoError(t, err)
	assert.Equal(t, heavier, w.KDF)

	got, err := PasswordWrap("correct horse", testKDF).Unwrap(w)
	require.NoError(t, err)
	assert.Equal(t, masterKey, got)
}

func TestDataKeyWrap_Malformed(t *testing.T) {
	for _, in := range []string{"", "ABCD", "ABCD-EFGH-JKLM-NPQ!", "ABCD-EFGH-JKLM-NPQR-STUV"} {
		_, err := DataKeyWrap(in, testKDF)
		assert.ErrorIs(t, err, ErrInvalidDataKey, "input %q", in)
	}
}

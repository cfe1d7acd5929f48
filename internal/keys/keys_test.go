package keys

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/ledger"
)

func TestPrivateKeyRoundTripAllEncodings(t *testing.T) {
	for _, kt := range []ledger.KeyType{ledger.KeyTypeED25519, ledger.KeyTypeECDSA} {
		priv, err := ledger.GeneratePrivateKey(kt)
		require.NoError(t, err)

		encodings := []string{priv.StringDER(), priv.StringRaw()}
		if kt == ledger.KeyTypeECDSA {
			encodings = append(encodings, "0x"+priv.StringRaw())
		}
		for _, s := range encodings {
			parsed, err := ParsePrivateKey(s)
			require.NoError(t, err, s)
			if kt == ledger.KeyTypeECDSA && s == priv.StringRaw() {
				// a bare 64 hex secret is read as ED25519 first
				assert.Equal(t, ledger.KeyTypeED25519, parsed.Type())
				continue
			}
			assert.Equal(t, kt, parsed.Type(), s)
			assert.True(t, parsed.PublicKey().Equal(priv.PublicKey()), s)
		}
	}
}

func TestPublicKeyRoundTrip(t *testing.T) {
	for _, kt := range []ledger.KeyType{ledger.KeyTypeED25519, ledger.KeyTypeECDSA} {
		priv, err := ledger.GeneratePrivateKey(kt)
		require.NoError(t, err)
		pub := priv.PublicKey()
		for _, s := range []string{pub.StringDER(), pub.StringRaw()} {
			parsed, err := ParsePublicKey(s)
			require.NoError(t, err, s)
			assert.True(t, parsed.Equal(pub), s)
		}
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := ParsePrivateKey("not-a-key")
	assert.True(t, xerrors.HasCode(err, xerrors.CodeInvalidKeyFormat))
	_, err = ParsePublicKey("abcd")
	assert.True(t, xerrors.HasCode(err, xerrors.CodeInvalidKeyFormat))
	_, err = ParsePublicKey("")
	assert.True(t, xerrors.HasCode(err, xerrors.CodeInvalidKeyFormat))
}

type stubLookup struct {
	key   ledger.Key
	err   error
	calls int
}

func (s *stubLookup) AccountKey(context.Context, ledger.AccountID) (ledger.Key, error) {
	s.calls++
	return s.key, s.err
}

func newSigner(t *testing.T) *ledger.LocalSigner {
	t.Helper()
	priv, err := ledger.GeneratePrivateKey(ledger.KeyTypeED25519)
	require.NoError(t, err)
	return ledger.NewLocalSigner(ledger.MustParseEntityID("0.0.2"), priv, nil)
}

func TestResolveCurrentSigner(t *testing.T) {
	signer := newSigner(t)
	onChain, err := ledger.GeneratePrivateKey(ledger.KeyTypeECDSA)
	require.NoError(t, err)

	lookup := &stubLookup{key: onChain.PublicKey()}
	got, err := NewResolver(signer, lookup).ResolvePublicKey(context.Background(), CurrentSigner)
	require.NoError(t, err)
	assert.True(t, got.Equal(onChain.PublicKey()))
	assert.Equal(t, 1, lookup.calls)

	failing := &stubLookup{err: errors.New("mirror down")}
	got, err = NewResolver(signer, failing).ResolvePublicKey(context.Background(), CurrentSigner)
	require.NoError(t, err)
	assert.True(t, got.Equal(signer.PublicKey()))

	listed := &stubLookup{key: ledger.NewThresholdKey(1, onChain.PublicKey())}
	got, err = NewResolver(signer, listed).ResolvePublicKey(context.Background(), CurrentSigner)
	require.NoError(t, err)
	assert.True(t, got.Equal(signer.PublicKey()))
}

func TestResolveDerivesFromPrivateKeys(t *testing.T) {
	priv, err := ledger.GeneratePrivateKey(ledger.KeyTypeECDSA)
	require.NoError(t, err)
	got, err := NewResolver(nil, nil).ResolvePublicKey(context.Background(), priv.StringDER())
	require.NoError(t, err)
	assert.True(t, got.Equal(priv.PublicKey()))

	empty, err := NewResolver(nil, nil).ResolveOptional(context.Background(), "  ")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestParseAmountIsIdempotentOnItsOutput(t *testing.T) {
	inputs := []any{
		"0", "42", "-17", "+8",
		"123456789012345678901234567890",
		json.Number("9007199254740993"),
		int64(-5), uint64(18446744073709551615), 12,
	}
	for _, in := range inputs {
		first, err := ParseAmount(in)
		require.NoError(t, err, in)
		second, err := ParseAmount(first.String())
		require.NoError(t, err, in)
		assert.Zero(t, first.Cmp(second), "%v", in)
	}
}

func TestParseAmountStringsAreExact(t *testing.T) {
	n, err := ParseAmount("9007199254740993")
	require.NoError(t, err)
	assert.Equal(t, "9007199254740993", n.String())

	// the float path cannot represent 2^53+1
	f, err := ParseAmount(float64(9007199254740993))
	require.NoError(t, err)
	assert.Equal(t, "9007199254740992", f.String())

	trunc, err := ParseAmount(12.9)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(12), trunc)

	for _, bad := range []any{"1.5", "abc", "", nil, struct{}{}} {
		_, err := ParseAmount(bad)
		assert.Error(t, err, "%v", bad)
	}
}

func TestToBaseUnits(t *testing.T) {
	n, err := ToBaseUnits("12.5", 2)
	require.NoError(t, err)
	assert.Equal(t, "1250", n.String())

	_, err = ToBaseUnits("0.001", 2)
	assert.True(t, xerrors.HasCode(err, xerrors.CodeInvalidArgument))

	tiny, err := HbarToTinybars("1.5")
	require.NoError(t, err)
	assert.Equal(t, int64(150_000_000), tiny)
}

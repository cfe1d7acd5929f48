package mirror

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/ledger"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialDelay: 20 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithRetryPolicy(fastPolicy())}, opts...)
	client, err := New(Config{BaseURL: srv.URL + "/api/v1"}, opts...)
	require.NoError(t, err)
	return client
}

func TestFetchRetriesServerErrorsWithBackoff(t *testing.T) {
	var hits int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"account":"0.0.5","balance":{"balance":42}}`)
	})

	started := time.Now()
	acct, err := client.Account(context.Background(), ledger.MustParseEntityID("0.0.5"))
	elapsed := time.Since(started)

	require.NoError(t, err)
	assert.Equal(t, int64(42), acct.Balance.Balance)
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))
	// initialDelay + initialDelay*backoffFactor
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
	assert.Less(t, elapsed, 600*time.Millisecond)
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, `{"_status":{"messages":[{"message":"Not found"}]}}`, http.StatusNotFound)
	})

	_, err := client.Account(context.Background(), ledger.MustParseEntityID("0.0.404"))
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
	assert.True(t, xerrors.HasCode(err, xerrors.CodeQueryFailure))
	assert.True(t, IsNotFound(err))
	assert.False(t, xerrors.RetryableError(err))
}

func TestFetchRetriesTooManyRequestsUntilExhausted(t *testing.T) {
	var hits int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}, WithRetryPolicy(RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2}))

	_, err := client.TokenInfo(context.Background(), ledger.MustParseEntityID("0.0.7"))
	require.Error(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))
	assert.True(t, xerrors.HasCode(err, xerrors.CodeQueryFailure))
}

func TestFetchStopsWhenContextCancelled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, WithRetryPolicy(RetryPolicy{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: time.Second, BackoffFactor: 1}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	started := time.Now()
	_, err := client.Account(ctx, ledger.MustParseEntityID("0.0.5"))
	require.Error(t, err)
	assert.True(t, xerrors.HasCode(err, xerrors.CodeTimeout))
	assert.Less(t, time.Since(started), 500*time.Millisecond)
}

func TestRetryPolicyBackoffIsCapped(t *testing.T) {
	p := RetryPolicy{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: 3 * time.Second, BackoffFactor: 2}
	d := p.InitialDelay
	var seen []time.Duration
	for i := 0; i < 4; i++ {
		seen = append(seen, d)
		d = p.nextDelay(d)
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}, seen)
}

func TestDefaultRetryPolicyIsProcessWide(t *testing.T) {
	original := DefaultRetryPolicy()
	t.Cleanup(func() { SetDefaultRetryPolicy(original) })

	assert.Equal(t, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 10 * time.Second, BackoffFactor: 2}, original)

	SetDefaultRetryPolicy(RetryPolicy{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1})
	client, err := New(Config{Network: Testnet})
	require.NoError(t, err)
	assert.Equal(t, 1, client.RetryPolicy().MaxRetries)

	override, err := New(Config{Network: Testnet}, WithRetryPolicy(RetryPolicy{MaxRetries: 7, BackoffFactor: 2}))
	require.NoError(t, err)
	assert.Equal(t, 7, override.RetryPolicy().MaxRetries)
}

func nftPages(w http.ResponseWriter, r *http.Request) {
	page := r.URL.Query().Get("page")
	switch page {
	case "":
		fmt.Fprint(w, `{"nfts":[{"serial_number":1},{"serial_number":2}],"links":{"next":"/api/v1/accounts/0.0.5/nfts?page=2"}}`)
	case "2":
		fmt.Fprint(w, `{"nfts":[{"serial_number":3},{"serial_number":4}],"links":{"next":"/api/v1/accounts/0.0.5/nfts?page=3"}}`)
	default:
		fmt.Fprint(w, `{"nfts":[{"serial_number":5},{"serial_number":6}],"links":{"next":null}}`)
	}
}

func TestPaginationConcatenatesPagesInOrder(t *testing.T) {
	client := newTestClient(t, nftPages)

	nfts, err := client.AccountNFTs(context.Background(), ledger.MustParseEntityID("0.0.5"), nil, 0)
	require.NoError(t, err)
	require.Len(t, nfts, 6)
	for i, nft := range nfts {
		assert.Equal(t, int64(i+1), nft.SerialNumber)
	}
}

func TestPaginationHonoursLimit(t *testing.T) {
	var requests int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		nftPages(w, r)
	})

	nfts, err := client.AccountNFTs(context.Background(), ledger.MustParseEntityID("0.0.5"), nil, 3)
	require.NoError(t, err)
	require.Len(t, nfts, 3)
	assert.Equal(t, int64(3), nfts[2].SerialNumber)
	assert.EqualValues(t, 2, atomic.LoadInt32(&requests))
}

func TestPaginationStopsAtPageCap(t *testing.T) {
	var requests int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		fmt.Fprintf(w, `{"balances":[{"account":"0.0.%d","balance":1}],"links":{"next":"/api/v1/tokens/0.0.9/balances?page=%d"}}`, n, n+1)
	})

	holders, err := client.TokenBalances(context.Background(), ledger.MustParseEntityID("0.0.9"), nil, 0)
	require.NoError(t, err)
	assert.Len(t, holders, maxSafePages)
	assert.EqualValues(t, maxSafePages, atomic.LoadInt32(&requests))
}

func TestTopicMessagesDecodesAndSkipsMalformed(t *testing.T) {
	jsonMsg := base64.StdEncoding.EncodeToString([]byte(`{"event":"mint","amount":5}`))
	textMsg := base64.StdEncoding.EncodeToString([]byte("hello ledger"))
	binaryMsg := base64.StdEncoding.EncodeToString([]byte{0xff, 0xfe, 0x01, 'h', 'i'})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/topics/0.0.77/messages", r.URL.Path)
		fmt.Fprintf(w, `{"messages":[
			{"sequence_number":1,"message":%q},
			{"sequence_number":2,"message":"%%%%not-base64"},
			{"sequence_number":3,"message":%q},
			{"sequence_number":4,"message":%q}
		],"links":{"next":null}}`, jsonMsg, textMsg, binaryMsg)
	})

	msgs, err := client.TopicMessages(context.Background(), ledger.MustParseEntityID("0.0.77"), TopicMessagesFilter{})
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	assert.True(t, msgs[0].IsJSON)
	assert.Equal(t, map[string]any{"event": "mint", "amount": float64(5)}, msgs[0].Content)
	assert.False(t, msgs[1].IsJSON)
	assert.Equal(t, "hello ledger", msgs[1].Content)
	assert.Equal(t, uint64(3), msgs[1].SequenceNumber)

	assert.Equal(t, uint64(4), msgs[2].SequenceNumber)
	assert.False(t, msgs[2].IsJSON)
	binary, ok := msgs[2].Content.(string)
	require.True(t, ok)
	assert.True(t, utf8.ValidString(binary))
	assert.True(t, strings.HasPrefix(binary, "\uFFFD"), binary)
	assert.True(t, strings.HasSuffix(binary, "\x01hi"), binary)
}

func TestSoftEndpointsSwallowFailures(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, WithRetryPolicy(RetryPolicy{MaxRetries: 0}))

	ctx := context.Background()
	id := ledger.MustParseEntityID("0.0.5")
	assert.Nil(t, client.AccountBalance(ctx, id))
	assert.Empty(t, client.AccountTokens(ctx, id, 0))
	assert.Nil(t, client.ExchangeRate(ctx))

	_, err := client.AccountKey(ctx, id)
	assert.Error(t, err)
}

func TestAccountKeyDecodesProtobufEncodedKeys(t *testing.T) {
	priv, err := ledger.GeneratePrivateKey(ledger.KeyTypeED25519)
	require.NoError(t, err)
	encoded := hex.EncodeToString(ledger.EncodeKey(ledger.NewThresholdKey(1, priv.PublicKey())))

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"account":"0.0.5","key":{"_type":"ProtobufEncoded","key":%q}}`, encoded)
	})
	key, err := client.AccountKey(context.Background(), ledger.MustParseEntityID("0.0.5"))
	require.NoError(t, err)
	list, ok := key.(*ledger.KeyList)
	require.True(t, ok)
	assert.True(t, KeyContains(list, priv.PublicKey()))
}

func TestIsKeyAuthorizedWalksNestedLists(t *testing.T) {
	target, err := ledger.GeneratePrivateKey(ledger.KeyTypeECDSA)
	require.NoError(t, err)
	other, err := ledger.GeneratePrivateKey(ledger.KeyTypeED25519)
	require.NoError(t, err)

	nested := ledger.NewThresholdKey(2,
		other.PublicKey(),
		&ledger.KeyList{Keys: []ledger.Key{
			ledger.NewThresholdKey(1, target.PublicKey()),
		}},
	)
	ok, err := IsKeyAuthorized(Key{Type: KeyTypeProtobufEncoded, Key: hex.EncodeToString(ledger.EncodeKey(nested))}, target.PublicKey())
	require.NoError(t, err)
	assert.True(t, ok)

	unrelated := ledger.NewThresholdKey(1, other.PublicKey())
	ok, err = IsKeyAuthorized(Key{Type: KeyTypeProtobufEncoded, Key: hex.EncodeToString(ledger.EncodeKey(unrelated))}, target.PublicKey())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = IsKeyAuthorized(Key{Type: KeyTypeED25519, Key: other.PublicKey().StringRaw()}, other.PublicKey())
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = IsKeyAuthorized(Key{Type: "RSA_3072", Key: "00"}, other.PublicKey())
	assert.True(t, xerrors.HasCode(err, xerrors.CodeInvalidKeyFormat))
}

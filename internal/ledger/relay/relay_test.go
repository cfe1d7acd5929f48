package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/ledger"
)

func TestSubmitPostsBytesAndDecodesReceipt(t *testing.T) {
	var got submitRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transactions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"SUCCESS","topic_id":"0.0.5005"}`))
	}))
	defer srv.Close()

	s, err := New(Config{URL: srv.URL + "/v1/", APIKey: "k", Nodes: []ledger.AccountID{{Num: 3}}})
	require.NoError(t, err)
	receipt, err := s.Submit(context.Background(), []byte{1, 2, 3})
	require.NoError(t, err)

	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), got.Bytes)
	assert.Equal(t, "Bearer k", auth)
	assert.Equal(t, ledger.StatusSuccess, receipt.Status)
	require.NotNil(t, receipt.TopicID)
	assert.Equal(t, "0.0.5005", receipt.TopicID.String())
	assert.Equal(t, []ledger.AccountID{{Num: 3}}, s.Nodes())
}

func TestSubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"node unreachable"}`))
	}))
	defer srv.Close()

	s, err := New(Config{URL: srv.URL})
	require.NoError(t, err)
	_, err = s.Submit(context.Background(), []byte{1})
	require.Error(t, err)
	assert.True(t, xerrors.HasCode(err, xerrors.CodeSubmissionFailure))
	assert.Contains(t, err.Error(), "node unreachable")
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New(Config{})
	assert.True(t, xerrors.HasCode(err, xerrors.CodeInvalidArgument))
}

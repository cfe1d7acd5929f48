package engine

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/keys"
	"LedgerAgent-Kit/internal/ledger"
	"LedgerAgent-Kit/internal/ledger/simulated"
	"LedgerAgent-Kit/internal/notes"
	"LedgerAgent-Kit/internal/session"
	"LedgerAgent-Kit/internal/txbuilder"
)

var (
	agentAccount = ledger.AccountID{Num: 2}
	userAccount  = ledger.AccountID{Num: 100}
)

type keyLookup map[ledger.AccountID]ledger.Key

func (k keyLookup) AccountKey(_ context.Context, id ledger.AccountID) (ledger.Key, error) {
	if key, ok := k[id]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("account %s not found", id)
}

type fixture struct {
	net      *simulated.Network
	agentKey ledger.PrivateKey
	signer   *ledger.LocalSigner
	engine   *Engine
}

func newFixture(t *testing.T, lookup keyLookup, opts ...session.Option) *fixture {
	t.Helper()
	net := simulated.New()
	priv, err := ledger.GeneratePrivateKey(ledger.KeyTypeED25519)
	require.NoError(t, err)
	net.RegisterAccount(agentAccount, priv.PublicKey())
	signer := ledger.NewLocalSigner(agentAccount, priv, net)
	sess, err := session.New(signer, opts...)
	require.NoError(t, err)
	var l keys.KeyLookup
	if lookup != nil {
		l = lookup
	}
	return &fixture{net: net, agentKey: priv, signer: signer, engine: New(sess, l)}
}

func topicPending(t *testing.T, n ...string) *txbuilder.Pending {
	t.Helper()
	return txbuilder.NewPending(txbuilder.OpCreateTopic, ledger.NewTransaction(&ledger.TopicCreate{Memo: "t"}), notes.Notes(n))
}

func TestExecuteWithoutTransaction(t *testing.T) {
	f := newFixture(t, nil)
	assert.NotPanics(t, func() {
		res := f.engine.Execute(context.Background(), nil, Options{})
		assert.False(t, res.Success)
	})
	res := f.engine.Execute(context.Background(), txbuilder.NewPending("noop", nil, notes.Notes{"kept"}), Options{Schedule: true})
	assert.False(t, res.Success)
	assert.Equal(t, []string{"kept"}, res.Notes)
	assert.Empty(t, f.net.Submitted())
}

func TestExecuteDirect(t *testing.T) {
	f := newFixture(t, nil)
	res := f.engine.Execute(context.Background(), topicPending(t, "default applied"), Options{})
	require.True(t, res.Success, res.Error)
	require.NotNil(t, res.Receipt)
	require.NotNil(t, res.Receipt.TopicID)
	assert.True(t, strings.HasPrefix(res.TransactionID, "0.0.2@"), res.TransactionID)
	assert.Empty(t, res.ScheduleID)
	assert.Equal(t, []string{"default applied"}, res.Notes)
	require.Len(t, f.net.Submitted(), 1)
}

func TestExecuteScheduleWithUser(t *testing.T) {
	userKey, err := ledger.GeneratePrivateKey(ledger.KeyTypeECDSA)
	require.NoError(t, err)
	f := newFixture(t, keyLookup{userAccount: userKey.PublicKey()}, session.WithUserAccount(userAccount))

	res := f.engine.Execute(context.Background(), topicPending(t), Options{Schedule: true, ScheduleMemo: "pay later"})
	require.True(t, res.Success, res.Error)
	assert.NotEmpty(t, res.ScheduleID)
	assert.Equal(t, "0.0.100", res.SchedulePayerAccountID)
	assert.Empty(t, res.Notes)

	submitted := f.net.Submitted()
	require.Len(t, submitted, 1)
	wrapper := submitted[0]
	assert.Equal(t, agentAccount, wrapper.TransactionID().AccountID)
	body, ok := wrapper.Body().(*ledger.ScheduleCreate)
	require.True(t, ok)
	assert.Equal(t, "pay later", body.Memo)
	require.NotNil(t, body.PayerAccountID)
	assert.Equal(t, userAccount, *body.PayerAccountID)
	require.NotNil(t, body.ScheduledTransactionID)
	assert.Equal(t, userAccount, body.ScheduledTransactionID.AccountID)

	list, ok := body.AdminKey.Key.(*ledger.KeyList)
	require.True(t, ok)
	assert.Equal(t, 1, list.Threshold)
	require.Len(t, list.Keys, 2)
	assert.True(t, list.Keys[0].(ledger.PublicKey).Equal(f.agentKey.PublicKey()))
	assert.True(t, list.Keys[1].(ledger.PublicKey).Equal(userKey.PublicKey()))

	require.NotNil(t, res.Receipt.ScheduledTransactionID)
	assert.Equal(t, userAccount, res.Receipt.ScheduledTransactionID.AccountID)
}

func TestExecuteScheduleAgentPaysWithoutUser(t *testing.T) {
	f := newFixture(t, nil)
	res := f.engine.Execute(context.Background(), topicPending(t, "builder note"), Options{Schedule: true})
	require.True(t, res.Success, res.Error)
	require.Len(t, res.Notes, 2)
	assert.Equal(t, "builder note", res.Notes[0])
	assert.Contains(t, res.Notes[1], "0.0.2")

	body := f.net.Submitted()[0].Body().(*ledger.ScheduleCreate)
	assert.Equal(t, agentAccount, *body.PayerAccountID)
	list := body.AdminKey.Key.(*ledger.KeyList)
	assert.Len(t, list.Keys, 1)
	assert.Nil(t, body.ScheduledTransactionID)
}

func TestExecuteScheduleExplicitPayer(t *testing.T) {
	f := newFixture(t, nil)
	res := f.engine.Execute(context.Background(), topicPending(t), Options{Schedule: true, SchedulePayerAccountID: "0.0.77"})
	require.True(t, res.Success, res.Error)
	assert.Empty(t, res.Notes)
	body := f.net.Submitted()[0].Body().(*ledger.ScheduleCreate)
	assert.Equal(t, ledger.AccountID{Num: 77}, *body.PayerAccountID)

	res = f.engine.Execute(context.Background(), topicPending(t), Options{Schedule: true, SchedulePayerAccountID: "bogus"})
	assert.False(t, res.Success)
	assert.True(t, xerrors.HasCode(res.Err, xerrors.CodeInvalidArgument))
}

func TestExecuteScheduleUserKeyLookupFails(t *testing.T) {
	f := newFixture(t, keyLookup{}, session.WithUserAccount(userAccount))
	res := f.engine.Execute(context.Background(), topicPending(t), Options{Schedule: true})
	require.True(t, res.Success, res.Error)
	require.Len(t, res.Notes, 1)
	assert.Contains(t, res.Notes[0], "0.0.100")
	body := f.net.Submitted()[0].Body().(*ledger.ScheduleCreate)
	assert.Len(t, body.AdminKey.Key.(*ledger.KeyList).Keys, 1)
}

func TestExecuteScheduleExplicitAdminKey(t *testing.T) {
	other, err := ledger.GeneratePrivateKey(ledger.KeyTypeED25519)
	require.NoError(t, err)
	f := newFixture(t, nil)
	res := f.engine.Execute(context.Background(), topicPending(t), Options{Schedule: true, ScheduleAdminKey: other.PublicKey().StringDER()})
	require.True(t, res.Success, res.Error)
	body := f.net.Submitted()[0].Body().(*ledger.ScheduleCreate)
	key, ok := body.AdminKey.Key.(ledger.PublicKey)
	require.True(t, ok)
	assert.True(t, key.Equal(other.PublicKey()))
	assert.Len(t, res.Notes, 2)
}

func TestExecuteScheduleFailureLeavesPendingUntouched(t *testing.T) {
	f := newFixture(t, keyLookup{}, session.WithUserAccount(userAccount), session.WithMode(session.ModeReturnBytes))
	p := topicPending(t)

	res := f.engine.Execute(context.Background(), p, Options{Schedule: true, ScheduleAdminKey: "zz-not-a-key"})
	require.False(t, res.Success)
	assert.True(t, p.Transaction().TransactionID().IsZero(), p.Transaction().TransactionID().String())
	assert.Empty(t, f.net.Submitted())

	res = f.engine.Execute(context.Background(), p, Options{})
	require.True(t, res.Success, res.Error)
	assert.True(t, strings.HasPrefix(res.TransactionID, "0.0.2@"), res.TransactionID)
}

func TestExecuteSubmissionFailureKeepsTransactionID(t *testing.T) {
	f := newFixture(t, nil)
	f.net.FailNext(errors.New("connection reset"))
	res := f.engine.Execute(context.Background(), topicPending(t, "note survives"), Options{})
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.TransactionID)
	assert.Contains(t, res.Error, "connection reset")
	assert.True(t, xerrors.HasCode(res.Err, xerrors.CodeSubmissionFailure))
	assert.Equal(t, []string{"note survives"}, res.Notes)
}

func TestExecuteReceiptFailure(t *testing.T) {
	f := newFixture(t, nil)
	stranger, err := ledger.GeneratePrivateKey(ledger.KeyTypeED25519)
	require.NoError(t, err)
	f.net.RegisterAccount(agentAccount, stranger.PublicKey())

	res := f.engine.Execute(context.Background(), topicPending(t), Options{})
	assert.False(t, res.Success)
	require.NotNil(t, res.Receipt)
	assert.Equal(t, ledger.StatusInvalidSignature, res.Receipt.Status)
	var statusErr *ledger.ReceiptStatusError
	assert.True(t, errors.As(res.Err, &statusErr))
}

func TestTransactionBytesDoesNotSubmit(t *testing.T) {
	f := newFixture(t, nil, session.WithMode(session.ModeReturnBytes), session.WithUserAccount(userAccount))
	out, err := f.engine.TransactionBytes(context.Background(), topicPending(t), Options{})
	require.NoError(t, err)
	assert.Empty(t, f.net.Submitted())
	assert.False(t, out.Scheduled)

	raw, err := base64.StdEncoding.DecodeString(out.Bytes)
	require.NoError(t, err)
	tx, err := ledger.TransactionFromBytes(raw)
	require.NoError(t, err)
	assert.True(t, tx.IsFrozen())
	assert.Empty(t, tx.Signatures())
	assert.Equal(t, userAccount, tx.TransactionID().AccountID)
	assert.Equal(t, out.TransactionID, tx.TransactionID().String())
	assert.NotEmpty(t, tx.NodeAccountIDs())
}

func TestTransactionBytesScheduled(t *testing.T) {
	f := newFixture(t, keyLookup{}, session.WithMode(session.ModeReturnBytes), session.WithUserAccount(userAccount))
	out, err := f.engine.TransactionBytes(context.Background(), topicPending(t), Options{Schedule: true})
	require.NoError(t, err)
	assert.True(t, out.Scheduled)
	raw, err := base64.StdEncoding.DecodeString(out.Bytes)
	require.NoError(t, err)
	tx, err := ledger.TransactionFromBytes(raw)
	require.NoError(t, err)
	_, ok := tx.Body().(*ledger.ScheduleCreate)
	assert.True(t, ok)
	assert.Empty(t, f.net.Submitted())

	_, err = f.engine.TransactionBytes(context.Background(), nil, Options{})
	assert.True(t, xerrors.HasCode(err, xerrors.CodeIllegalState))
}

func TestExecuteWithSigner(t *testing.T) {
	f := newFixture(t, nil)
	otherKey, err := ledger.GeneratePrivateKey(ledger.KeyTypeECDSA)
	require.NoError(t, err)
	other := ledger.NewLocalSigner(ledger.AccountID{Num: 9}, otherKey, f.net)

	res, err := f.engine.ExecuteWithSigner(context.Background(), topicPending(t), other, Options{})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.True(t, strings.HasPrefix(res.TransactionID, "0.0.9@"))

	frozen := topicPending(t)
	require.NoError(t, frozen.GenerateTransactionID(agentAccount, time.Now()))
	require.NoError(t, frozen.SetNodeAccountIDs([]ledger.AccountID{{Num: 3}}))
	require.NoError(t, frozen.Transaction().Freeze())
	_, err = f.engine.ExecuteWithSigner(context.Background(), frozen, other, Options{})
	assert.True(t, xerrors.HasCode(err, xerrors.CodeIllegalState))
}

package dispatch

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/engine"
	"LedgerAgent-Kit/internal/ledger"
	"LedgerAgent-Kit/internal/ledger/simulated"
	"LedgerAgent-Kit/internal/session"
	"LedgerAgent-Kit/internal/txbuilder"
)

func boolPtr(v bool) *bool { return &v }

func TestDecideTable(t *testing.T) {
	overrides := map[string]*bool{"unset": nil, "true": boolPtr(true), "false": boolPtr(false)}

	// autonomous always executes, whatever the other inputs are.
	for _, never := range []bool{false, true} {
		for _, multi := range []bool{false, true} {
			for name, override := range overrides {
				for _, auto := range []bool{false, true} {
					got, err := Decide(Inputs{Mode: session.ModeAutonomous, NeverSchedule: never, MultiTransaction: multi, Override: override, AutoSchedule: auto})
					require.NoError(t, err)
					assert.Equal(t, OutcomeExecute, got, "never=%v multi=%v override=%s auto=%v", never, multi, name, auto)
				}
			}
		}
	}

	// never-schedule operations return bytes in returnBytes mode regardless of override or auto flag.
	for name, override := range overrides {
		for _, auto := range []bool{false, true} {
			got, err := Decide(Inputs{Mode: session.ModeReturnBytes, NeverSchedule: true, Override: override, AutoSchedule: auto})
			require.NoError(t, err)
			assert.Equal(t, OutcomeReturnBytes, got, "override=%s auto=%v", name, auto)
		}
	}

	cases := []struct {
		name     string
		override *bool
		auto     bool
		want     Outcome
	}{
		{"override true, auto off", boolPtr(true), false, OutcomeSchedule},
		{"override true, auto on", boolPtr(true), true, OutcomeSchedule},
		{"override false, auto off", boolPtr(false), false, OutcomeReturnBytes},
		{"override false, auto on", boolPtr(false), true, OutcomeReturnBytes},
		{"unset, auto on", nil, true, OutcomeSchedule},
		{"unset, auto off", nil, false, OutcomeReturnBytes},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decide(Inputs{Mode: session.ModeReturnBytes, Override: tc.override, AutoSchedule: tc.auto})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecideMultiTransactionRejectsReturnBytes(t *testing.T) {
	for name, override := range map[string]*bool{"unset": nil, "true": boolPtr(true), "false": boolPtr(false)} {
		for _, never := range []bool{false, true} {
			for _, auto := range []bool{false, true} {
				_, err := Decide(Inputs{Mode: session.ModeReturnBytes, MultiTransaction: true, NeverSchedule: never, Override: override, AutoSchedule: auto})
				require.Error(t, err, "override=%s", name)
				assert.ErrorIs(t, err, ErrMultiTransactionBytes)
				assert.Contains(t, err.Error(), "autonomous")
			}
		}
	}
}

func TestDecideUnknownMode(t *testing.T) {
	_, err := Decide(Inputs{Mode: "manual"})
	assert.True(t, xerrors.HasCode(err, xerrors.CodeInvalidArgument))
	assert.NotErrorIs(t, err, ErrMultiTransactionBytes)
}

func TestMultiTransactionErrorHasOwnCode(t *testing.T) {
	assert.NotErrorIs(t, xerrors.New(xerrors.CodeInvalidArgument, "bad json"), ErrMultiTransactionBytes)
	assert.Equal(t, CodeMultiTransactionUnsupported, xerrors.CodeOf(ErrMultiTransactionBytes))
	assert.False(t, xerrors.RetryableError(ErrMultiTransactionBytes))
	assert.Equal(t, xerrors.SeverityInfo, xerrors.SeverityOf(ErrMultiTransactionBytes))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "rent", Describe("transfer_hbar", "rent"))
	assert.Equal(t, "Scheduled transfer_hbar transaction", Describe("transfer_hbar", ""))
}

type harness struct {
	net        *simulated.Network
	dispatcher *Dispatcher
}

func newHarness(t *testing.T, opts ...session.Option) *harness {
	t.Helper()
	net := simulated.New()
	priv, err := ledger.GeneratePrivateKey(ledger.KeyTypeED25519)
	require.NoError(t, err)
	signer := ledger.NewLocalSigner(ledger.AccountID{Num: 2}, priv, net)
	sess, err := session.New(signer, opts...)
	require.NoError(t, err)
	return &harness{net: net, dispatcher: New(sess, engine.New(sess, nil))}
}

func messagePending(msg string) *txbuilder.Pending {
	tx := ledger.NewTransaction(&ledger.TopicMessageSubmit{TopicID: ledger.TopicID{Num: 9}, Message: []byte(msg)})
	return txbuilder.NewPending(txbuilder.OpSubmitTopicMessage, tx, nil)
}

func TestDispatchAutonomousExecutes(t *testing.T) {
	h := newHarness(t)
	resp, err := h.dispatcher.Dispatch(context.Background(), txbuilder.OpSubmitTopicMessage, Flags{},
		[]*txbuilder.Pending{messagePending("a"), messagePending("b")}, Call{Schedule: boolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, OutcomeExecute, resp.Outcome)
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Success())
	assert.Len(t, h.net.Submitted(), 2)
	require.Len(t, resp.Results[0].Notes, 1)
	assert.Empty(t, resp.Results[1].Notes)
}

func TestDispatchReturnBytes(t *testing.T) {
	h := newHarness(t, session.WithMode(session.ModeReturnBytes), session.WithUserAccount(ledger.AccountID{Num: 100}))
	resp, err := h.dispatcher.Dispatch(context.Background(), txbuilder.OpSubmitTopicMessage, Flags{},
		[]*txbuilder.Pending{messagePending("a")}, Call{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeReturnBytes, resp.Outcome)
	require.NotNil(t, resp.Bytes)
	_, err = base64.StdEncoding.DecodeString(resp.Bytes.Bytes)
	assert.NoError(t, err)
	assert.Empty(t, h.net.Submitted())
}

func TestDispatchCreatesSchedule(t *testing.T) {
	h := newHarness(t, session.WithMode(session.ModeReturnBytes), session.WithAutoScheduleInBytesMode(true))
	resp, err := h.dispatcher.Dispatch(context.Background(), txbuilder.OpSubmitTopicMessage, Flags{},
		[]*txbuilder.Pending{messagePending("a")}, Call{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSchedule, resp.Outcome)
	require.NotNil(t, resp.Schedule)
	s := resp.Schedule
	assert.True(t, s.Success, s.Error)
	assert.Equal(t, ScheduleOperation, s.Operation)
	assert.NotEmpty(t, s.ScheduleID)
	assert.Equal(t, "Scheduled submit_topic_message transaction", s.Description)
	assert.Equal(t, "0.0.2", s.PayerAccountID)
	require.NotEmpty(t, s.Notes)
	assert.Contains(t, s.Notes[0], "0.0.2")
	require.Len(t, h.net.Submitted(), 1)
	_, isSchedule := h.net.Submitted()[0].Body().(*ledger.ScheduleCreate)
	assert.True(t, isSchedule)
}

func TestDispatchNeverScheduleReturnsBytes(t *testing.T) {
	h := newHarness(t, session.WithMode(session.ModeReturnBytes), session.WithAutoScheduleInBytesMode(true))
	tx := ledger.NewTransaction(&ledger.ScheduleSign{ScheduleID: ledger.ScheduleID{Num: 5}})
	resp, err := h.dispatcher.Dispatch(context.Background(), txbuilder.OpSignSchedule, Flags{NeverSchedule: true},
		[]*txbuilder.Pending{txbuilder.NewPending(txbuilder.OpSignSchedule, tx, nil)}, Call{Schedule: boolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, OutcomeReturnBytes, resp.Outcome)
	assert.Empty(t, h.net.Submitted())
}

func TestDispatchMultiTransactionInReturnBytes(t *testing.T) {
	h := newHarness(t, session.WithMode(session.ModeReturnBytes))
	_, err := h.dispatcher.Dispatch(context.Background(), txbuilder.OpBatchTransferHbar, Flags{MultiTransaction: true},
		[]*txbuilder.Pending{messagePending("a"), messagePending("b")}, Call{})
	assert.ErrorIs(t, err, ErrMultiTransactionBytes)
	assert.Empty(t, h.net.Submitted())
}

func TestDispatchStopsAtFirstFailure(t *testing.T) {
	h := newHarness(t)
	h.net.FailNext(assert.AnError)
	resp, err := h.dispatcher.Dispatch(context.Background(), txbuilder.OpBatchTransferHbar, Flags{MultiTransaction: true},
		[]*txbuilder.Pending{messagePending("a"), messagePending("b")}, Call{})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.False(t, resp.Success())
}

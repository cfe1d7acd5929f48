package ledger

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind names the transaction type carried by a body.
type Kind string

const (
	KindCryptoCreate           Kind = "CryptoCreate"
	KindCryptoTransfer         Kind = "CryptoTransfer"
	KindCryptoUpdate           Kind = "CryptoUpdate"
	KindCryptoDelete           Kind = "CryptoDelete"
	KindCryptoApproveAllowance Kind = "CryptoApproveAllowance"
	KindTokenCreate            Kind = "TokenCreate"
	KindTokenMint              Kind = "TokenMint"
	KindTokenAssociate         Kind = "TokenAssociate"
	KindTokenDissociate        Kind = "TokenDissociate"
	KindTokenAirdrop           Kind = "TokenAirdrop"
	KindTopicCreate            Kind = "ConsensusCreateTopic"
	KindTopicMessageSubmit     Kind = "ConsensusSubmitMessage"
	KindTopicDelete            Kind = "ConsensusDeleteTopic"
	KindContractCreate         Kind = "ContractCreate"
	KindContractExecute        Kind = "ContractCall"
	KindScheduleCreate         Kind = "ScheduleCreate"
	KindScheduleSign           Kind = "ScheduleSign"
	KindScheduleDelete         Kind = "ScheduleDelete"
)

// Body is the operation-specific part of a transaction.
type Body interface {
	Kind() Kind
}

var bodyFactories = map[Kind]func() Body{
	KindCryptoCreate:           func() Body { return &CryptoCreate{} },
	KindCryptoTransfer:         func() Body { return &CryptoTransfer{} },
	KindCryptoUpdate:           func() Body { return &CryptoUpdate{} },
	KindCryptoDelete:           func() Body { return &CryptoDelete{} },
	KindCryptoApproveAllowance: func() Body { return &CryptoApproveAllowance{} },
	KindTokenCreate:            func() Body { return &TokenCreate{} },
	KindTokenMint:              func() Body { return &TokenMint{} },
	KindTokenAssociate:         func() Body { return &TokenAssociate{} },
	KindTokenDissociate:        func() Body { return &TokenDissociate{} },
	KindTokenAirdrop:           func() Body { return &TokenAirdrop{} },
	KindTopicCreate:            func() Body { return &TopicCreate{} },
	KindTopicMessageSubmit:     func() Body { return &TopicMessageSubmit{} },
	KindTopicDelete:            func() Body { return &TopicDelete{} },
	KindContractCreate:         func() Body { return &ContractCreate{} },
	KindContractExecute:        func() Body { return &ContractExecute{} },
	KindScheduleCreate:         func() Body { return &ScheduleCreate{} },
	KindScheduleSign:           func() Body { return &ScheduleSign{} },
	KindScheduleDelete:         func() Body { return &ScheduleDelete{} },
}

// DecodeBody rebuilds a body from its kind and JSON form.
func DecodeBody(kind Kind, data []byte) (Body, error) {
	factory, ok := bodyFactories[kind]
	if !ok {
		return nil, fmt.Errorf("unknown transaction kind %q", kind)
	}
	body := factory()
	if err := json.Unmarshal(data, body); err != nil {
		return nil, fmt.Errorf("decode %s body: %w", kind, err)
	}
	return body, nil
}

// CryptoCreate creates an account.
type CryptoCreate struct {
	Key                           KeyValue `json:"key"`
	InitialBalance                int64    `json:"initial_balance"`
	Memo                          string   `json:"memo,omitempty"`
	MaxAutomaticTokenAssociations int32    `json:"max_automatic_token_associations,omitempty"`
	ReceiverSigRequired           bool     `json:"receiver_sig_required,omitempty"`
}

func (*CryptoCreate) Kind() Kind { return KindCryptoCreate }

// HbarTransfer moves tinybars; amounts of one transfer list sum to zero.
type HbarTransfer struct {
	AccountID  AccountID `json:"account_id"`
	Amount     int64     `json:"amount"`
	IsApproval bool      `json:"is_approval,omitempty"`
}

// TokenTransfer moves base units of a fungible token.
type TokenTransfer struct {
	TokenID   TokenID   `json:"token_id"`
	AccountID AccountID `json:"account_id"`
	Amount    int64     `json:"amount"`
	Decimals  *uint32   `json:"decimals,omitempty"`
}

// CryptoTransfer moves hbar and fungible tokens.
type CryptoTransfer struct {
	Transfers      []HbarTransfer  `json:"transfers,omitempty"`
	TokenTransfers []TokenTransfer `json:"token_transfers,omitempty"`
}

func (*CryptoTransfer) Kind() Kind { return KindCryptoTransfer }

// CryptoUpdate changes mutable account properties.
type CryptoUpdate struct {
	AccountID                     AccountID `json:"account_id"`
	Key                           KeyValue  `json:"key"`
	Memo                          *string   `json:"memo,omitempty"`
	MaxAutomaticTokenAssociations *int32    `json:"max_automatic_token_associations,omitempty"`
	DeclineStakingReward          *bool     `json:"decline_staking_reward,omitempty"`
}

func (*CryptoUpdate) Kind() Kind { return KindCryptoUpdate }

// CryptoDelete removes an account and sweeps its balance.
type CryptoDelete struct {
	AccountID         AccountID `json:"account_id"`
	TransferAccountID AccountID `json:"transfer_account_id"`
}

func (*CryptoDelete) Kind() Kind { return KindCryptoDelete }

// HbarAllowance lets spender move up to Amount tinybars from owner.
type HbarAllowance struct {
	OwnerAccountID   AccountID `json:"owner_account_id"`
	SpenderAccountID AccountID `json:"spender_account_id"`
	Amount           int64     `json:"amount"`
}

// CryptoApproveAllowance grants allowances.
type CryptoApproveAllowance struct {
	HbarAllowances []HbarAllowance `json:"hbar_allowances"`
}

func (*CryptoApproveAllowance) Kind() Kind { return KindCryptoApproveAllowance }

// Token type and supply type values.
const (
	TokenTypeFungible    = "FUNGIBLE_COMMON"
	TokenTypeNonFungible = "NON_FUNGIBLE_UNIQUE"
	SupplyTypeInfinite   = "INFINITE"
	SupplyTypeFinite     = "FINITE"
)

// FixedFee charges a flat amount in hbar or in DenominatingTokenID.
type FixedFee struct {
	Amount              int64    `json:"amount"`
	DenominatingTokenID *TokenID `json:"denominating_token_id,omitempty"`
}

// FractionalFee charges a fraction of each transferred amount.
type FractionalFee struct {
	Numerator   int64 `json:"numerator"`
	Denominator int64 `json:"denominator"`
	Minimum     int64 `json:"minimum,omitempty"`
	Maximum     int64 `json:"maximum,omitempty"`
}

// CustomFee is one entry of a token's fee schedule.
type CustomFee struct {
	FeeCollectorAccountID  AccountID      `json:"fee_collector_account_id"`
	Fixed                  *FixedFee      `json:"fixed,omitempty"`
	Fractional             *FractionalFee `json:"fractional,omitempty"`
	AllCollectorsAreExempt bool           `json:"all_collectors_are_exempt,omitempty"`
}

// TokenCreate creates a fungible or non-fungible token.
type TokenCreate struct {
	Name               string      `json:"name"`
	Symbol             string      `json:"symbol"`
	Decimals           uint32      `json:"decimals"`
	InitialSupply      int64       `json:"initial_supply"`
	TokenType          string      `json:"token_type"`
	SupplyType         string      `json:"supply_type"`
	MaxSupply          int64       `json:"max_supply,omitempty"`
	TreasuryAccountID  AccountID   `json:"treasury_account_id"`
	AdminKey           KeyValue    `json:"admin_key"`
	SupplyKey          KeyValue    `json:"supply_key"`
	KycKey             KeyValue    `json:"kyc_key"`
	FreezeKey          KeyValue    `json:"freeze_key"`
	WipeKey            KeyValue    `json:"wipe_key"`
	PauseKey           KeyValue    `json:"pause_key"`
	FeeScheduleKey     KeyValue    `json:"fee_schedule_key"`
	MetadataKey        KeyValue    `json:"metadata_key"`
	FreezeDefault      bool        `json:"freeze_default,omitempty"`
	AutoRenewAccountID *AccountID  `json:"auto_renew_account_id,omitempty"`
	AutoRenewPeriod    int64       `json:"auto_renew_period,omitempty"`
	Memo               string      `json:"memo,omitempty"`
	Metadata           []byte      `json:"metadata,omitempty"`
	CustomFees         []CustomFee `json:"custom_fees,omitempty"`
}

func (*TokenCreate) Kind() Kind { return KindTokenCreate }

// TokenMint mints fungible amount or NFT serials (one per metadata entry).
type TokenMint struct {
	TokenID  TokenID  `json:"token_id"`
	Amount   int64    `json:"amount,omitempty"`
	Metadata [][]byte `json:"metadata,omitempty"`
}

func (*TokenMint) Kind() Kind { return KindTokenMint }

// TokenAssociate associates tokens with an account.
type TokenAssociate struct {
	AccountID AccountID `json:"account_id"`
	TokenIDs  []TokenID `json:"token_ids"`
}

func (*TokenAssociate) Kind() Kind { return KindTokenAssociate }

// TokenDissociate removes token associations.
type TokenDissociate struct {
	AccountID AccountID `json:"account_id"`
	TokenIDs  []TokenID `json:"token_ids"`
}

func (*TokenDissociate) Kind() Kind { return KindTokenDissociate }

// TokenAirdrop sends fungible tokens to possibly unassociated accounts.
type TokenAirdrop struct {
	TokenTransfers []TokenTransfer `json:"token_transfers"`
}

func (*TokenAirdrop) Kind() Kind { return KindTokenAirdrop }

// TopicCreate creates a consensus topic.
type TopicCreate struct {
	Memo               string     `json:"memo,omitempty"`
	AdminKey           KeyValue   `json:"admin_key"`
	SubmitKey          KeyValue   `json:"submit_key"`
	AutoRenewAccountID *AccountID `json:"auto_renew_account_id,omitempty"`
	AutoRenewPeriod    int64      `json:"auto_renew_period,omitempty"`
}

func (*TopicCreate) Kind() Kind { return KindTopicCreate }

// TopicMessageSubmit posts one message to a topic.
type TopicMessageSubmit struct {
	TopicID TopicID `json:"topic_id"`
	Message []byte  `json:"message"`
}

func (*TopicMessageSubmit) Kind() Kind { return KindTopicMessageSubmit }

// TopicDelete deletes a topic.
type TopicDelete struct {
	TopicID TopicID `json:"topic_id"`
}

func (*TopicDelete) Kind() Kind { return KindTopicDelete }

// ContractCreate deploys init code.
type ContractCreate struct {
	Bytecode           []byte     `json:"bytecode"`
	ConstructorParams  []byte     `json:"constructor_params,omitempty"`
	Gas                int64      `json:"gas"`
	InitialBalance     int64      `json:"initial_balance,omitempty"`
	AdminKey           KeyValue   `json:"admin_key"`
	Memo               string     `json:"memo,omitempty"`
	AutoRenewAccountID *AccountID `json:"auto_renew_account_id,omitempty"`
	AutoRenewPeriod    int64      `json:"auto_renew_period,omitempty"`
}

func (*ContractCreate) Kind() Kind { return KindContractCreate }

// ContractExecute calls a contract function.
type ContractExecute struct {
	ContractID         ContractID `json:"contract_id"`
	Gas                int64      `json:"gas"`
	Amount             int64      `json:"amount,omitempty"`
	FunctionParameters []byte     `json:"function_parameters"`
}

func (*ContractExecute) Kind() Kind { return KindContractExecute }

// ScheduleCreate wraps another transaction body to be executed once its
// required signatures are collected. ScheduledTransactionID carries the inner
// transaction's id when it had one.
type ScheduleCreate struct {
	ScheduledKind          Kind            `json:"scheduled_kind"`
	ScheduledBody          json.RawMessage `json:"scheduled_body"`
	ScheduledMemo          string          `json:"scheduled_memo,omitempty"`
	ScheduledTransactionID *TransactionID  `json:"scheduled_transaction_id,omitempty"`
	Memo                   string          `json:"memo,omitempty"`
	PayerAccountID         *AccountID      `json:"payer_account_id,omitempty"`
	AdminKey               KeyValue        `json:"admin_key"`
	ExpirationTime         *time.Time      `json:"expiration_time,omitempty"`
	WaitForExpiry          bool            `json:"wait_for_expiry,omitempty"`
}

func (*ScheduleCreate) Kind() Kind { return KindScheduleCreate }

// NewScheduleCreate captures inner's body and memo.
func NewScheduleCreate(inner Transaction) (*ScheduleCreate, error) {
	if inner == nil || inner.Body() == nil {
		return nil, fmt.Errorf("nothing to schedule")
	}
	if inner.Kind() == KindScheduleCreate {
		return nil, fmt.Errorf("a schedule cannot wrap another schedule creation")
	}
	data, err := json.Marshal(inner.Body())
	if err != nil {
		return nil, fmt.Errorf("encode scheduled body: %w", err)
	}
	s := &ScheduleCreate{
		ScheduledKind: inner.Kind(),
		ScheduledBody: data,
		ScheduledMemo: inner.Memo(),
	}
	if id := inner.TransactionID(); !id.IsZero() {
		id.Scheduled = true
		s.ScheduledTransactionID = &id
	}
	return s, nil
}

// Scheduled decodes the wrapped body.
func (s *ScheduleCreate) Scheduled() (Body, error) {
	return DecodeBody(s.ScheduledKind, s.ScheduledBody)
}

// ScheduleSign adds the submitter's signature to a schedule.
type ScheduleSign struct {
	ScheduleID ScheduleID `json:"schedule_id"`
}

func (*ScheduleSign) Kind() Kind { return KindScheduleSign }

// ScheduleDelete deletes a schedule that has an admin key.
type ScheduleDelete struct {
	ScheduleID ScheduleID `json:"schedule_id"`
}

func (*ScheduleDelete) Kind() Kind { return KindScheduleDelete }

package mirror

import (
	"strconv"
	"strings"
	"time"
)

// Key is the mirror node's representation of a key: _type is ED25519,
// ECDSA_SECP256K1 or ProtobufEncoded, key is hex.
type Key struct {
	Type string `json:"_type"`
	Key  string `json:"key"`
}

// TokenBalance is a token amount held by an account.
type TokenBalance struct {
	TokenID string `json:"token_id"`
	Balance int64  `json:"balance"`
}

// Balance is the balance block of an account.
type Balance struct {
	Balance   int64          `json:"balance"`
	Timestamp string         `json:"timestamp"`
	Tokens    []TokenBalance `json:"tokens"`
}

// Account is /accounts/{id}.
type Account struct {
	Account                       string  `json:"account"`
	Alias                         string  `json:"alias"`
	EVMAddress                    string  `json:"evm_address"`
	Balance                       Balance `json:"balance"`
	Key                           *Key    `json:"key"`
	Memo                          string  `json:"memo"`
	Deleted                       bool    `json:"deleted"`
	AutoRenewPeriod               int64   `json:"auto_renew_period"`
	MaxAutomaticTokenAssociations int32   `json:"max_automatic_token_associations"`
	ReceiverSigRequired           bool    `json:"receiver_sig_required"`
	StakedNodeID                  *int64  `json:"staked_node_id"`
	CreatedTimestamp              string  `json:"created_timestamp"`
	ExpiryTimestamp               string  `json:"expiry_timestamp"`
	PendingReward                 int64   `json:"pending_reward"`
	DeclineReward                 bool    `json:"decline_reward"`
	EthereumNonce                 int64   `json:"ethereum_nonce"`
	StakedAccountID               *string `json:"staked_account_id"`
}

// AccountBalance is one entry of /balances.
type AccountBalance struct {
	Account string         `json:"account"`
	Balance int64          `json:"balance"`
	Tokens  []TokenBalance `json:"tokens"`
}

// TokenRelationship is one entry of /accounts/{id}/tokens.
type TokenRelationship struct {
	TokenID              string `json:"token_id"`
	Balance              int64  `json:"balance"`
	Decimals             int    `json:"decimals"`
	AutomaticAssociation bool   `json:"automatic_association"`
	FreezeStatus         string `json:"freeze_status"`
	KycStatus            string `json:"kyc_status"`
	CreatedTimestamp     string `json:"created_timestamp"`
}

// NFT is one entry of /accounts/{id}/nfts.
type NFT struct {
	TokenID          string `json:"token_id"`
	SerialNumber     int64  `json:"serial_number"`
	AccountID        string `json:"account_id"`
	Metadata         string `json:"metadata"`
	Deleted          bool   `json:"deleted"`
	CreatedTimestamp string `json:"created_timestamp"`
	SpenderID        string `json:"spender"`
}

// CustomFees is the fee schedule block of a token.
type CustomFees struct {
	CreatedTimestamp string           `json:"created_timestamp"`
	FixedFees        []map[string]any `json:"fixed_fees"`
	FractionalFees   []map[string]any `json:"fractional_fees"`
	RoyaltyFees      []map[string]any `json:"royalty_fees"`
}

// TokenInfo is /tokens/{id}. Numeric supply fields are strings on the wire.
type TokenInfo struct {
	TokenID           string      `json:"token_id"`
	Name              string      `json:"name"`
	Symbol            string      `json:"symbol"`
	Decimals          string      `json:"decimals"`
	TotalSupply       string      `json:"total_supply"`
	InitialSupply     string      `json:"initial_supply"`
	MaxSupply         string      `json:"max_supply"`
	Type              string      `json:"type"`
	SupplyType        string      `json:"supply_type"`
	TreasuryAccountID string      `json:"treasury_account_id"`
	AdminKey          *Key        `json:"admin_key"`
	SupplyKey         *Key        `json:"supply_key"`
	KycKey            *Key        `json:"kyc_key"`
	FreezeKey         *Key        `json:"freeze_key"`
	WipeKey           *Key        `json:"wipe_key"`
	PauseKey          *Key        `json:"pause_key"`
	FeeScheduleKey    *Key        `json:"fee_schedule_key"`
	MetadataKey       *Key        `json:"metadata_key"`
	FreezeDefault     bool        `json:"freeze_default"`
	PauseStatus       string      `json:"pause_status"`
	Memo              string      `json:"memo"`
	Deleted           bool        `json:"deleted"`
	AutoRenewAccount  string      `json:"auto_renew_account"`
	AutoRenewPeriod   int64       `json:"auto_renew_period"`
	CreatedTimestamp  string      `json:"created_timestamp"`
	CustomFees        *CustomFees `json:"custom_fees"`
}

// DecimalsInt returns Decimals as a number, 0 when unparsable.
func (t TokenInfo) DecimalsInt() int {
	n, _ := strconv.Atoi(strings.TrimSpace(t.Decimals))
	return n
}

// TokenHolder is one entry of /tokens/{id}/balances.
type TokenHolder struct {
	Account  string `json:"account"`
	Balance  int64  `json:"balance"`
	Decimals int    `json:"decimals"`
}

// TopicInfo is /topics/{id}.
type TopicInfo struct {
	TopicID          string `json:"topic_id"`
	Memo             string `json:"memo"`
	AdminKey         *Key   `json:"admin_key"`
	SubmitKey        *Key   `json:"submit_key"`
	AutoRenewAccount string `json:"auto_renew_account"`
	AutoRenewPeriod  int64  `json:"auto_renew_period"`
	CreatedTimestamp string `json:"created_timestamp"`
	Deleted          bool   `json:"deleted"`
}

// ChunkInfo describes a chunked topic message.
type ChunkInfo struct {
	Number int `json:"number"`
	Total  int `json:"total"`
}

// TopicMessage is a decoded topic message. Content holds the parsed JSON
// value when the payload is JSON, otherwise the UTF-8 string.
type TopicMessage struct {
	ConsensusTimestamp string     `json:"consensus_timestamp"`
	TopicID            string     `json:"topic_id"`
	SequenceNumber     uint64     `json:"sequence_number"`
	PayerAccountID     string     `json:"payer_account_id"`
	RunningHash        string     `json:"running_hash"`
	ChunkInfo          *ChunkInfo `json:"chunk_info,omitempty"`
	Message            string     `json:"message"`
	Content            any        `json:"content"`
	IsJSON             bool       `json:"is_json"`
}

// Transfer is an hbar movement inside a transaction.
type Transfer struct {
	Account    string `json:"account"`
	Amount     int64  `json:"amount"`
	IsApproval bool   `json:"is_approval"`
}

// TokenTransfer is a token movement inside a transaction.
type TokenTransfer struct {
	TokenID    string `json:"token_id"`
	Account    string `json:"account"`
	Amount     int64  `json:"amount"`
	IsApproval bool   `json:"is_approval"`
}

// Txn is one transaction record.
type Txn struct {
	TransactionID      string          `json:"transaction_id"`
	ConsensusTimestamp string          `json:"consensus_timestamp"`
	Name               string          `json:"name"`
	Result             string          `json:"result"`
	ChargedTxFee       int64           `json:"charged_tx_fee"`
	MemoBase64         string          `json:"memo_base64"`
	EntityID           string          `json:"entity_id"`
	Scheduled          bool            `json:"scheduled"`
	Nonce              int             `json:"nonce"`
	Transfers          []Transfer      `json:"transfers"`
	TokenTransfers     []TokenTransfer `json:"token_transfers"`
}

// ScheduleSignature is a signature collected by a schedule.
type ScheduleSignature struct {
	ConsensusTimestamp string `json:"consensus_timestamp"`
	PublicKeyPrefix    string `json:"public_key_prefix"`
	Signature          string `json:"signature"`
	Type               string `json:"type"`
}

// ScheduleInfo is /schedules/{id}.
type ScheduleInfo struct {
	ScheduleID        string              `json:"schedule_id"`
	AdminKey          *Key                `json:"admin_key"`
	CreatorAccountID  string              `json:"creator_account_id"`
	PayerAccountID    string              `json:"payer_account_id"`
	Memo              string              `json:"memo"`
	Deleted           bool                `json:"deleted"`
	ConsensusTime     string              `json:"consensus_timestamp"`
	ExecutedTimestamp *string             `json:"executed_timestamp"`
	ExpirationTime    *string             `json:"expiration_time"`
	TransactionBody   string              `json:"transaction_body"`
	WaitForExpiry     bool                `json:"wait_for_expiry"`
	Signatures        []ScheduleSignature `json:"signatures"`
}

// ContractInfo is /contracts/{id}.
type ContractInfo struct {
	ContractID       string `json:"contract_id"`
	EVMAddress       string `json:"evm_address"`
	AdminKey         *Key   `json:"admin_key"`
	AutoRenewAccount string `json:"auto_renew_account"`
	AutoRenewPeriod  int64  `json:"auto_renew_period"`
	Memo             string `json:"memo"`
	Bytecode         string `json:"bytecode"`
	RuntimeBytecode  string `json:"runtime_bytecode"`
	CreatedTimestamp string `json:"created_timestamp"`
	Deleted          bool   `json:"deleted"`
	FileID           string `json:"file_id"`
}

// Rate is one exchange rate entry.
type Rate struct {
	CentEquivalent int64 `json:"cent_equivalent"`
	HbarEquivalent int64 `json:"hbar_equivalent"`
	ExpirationTime int64 `json:"expiration_time"`
}

// ExchangeRate is /network/exchangerate.
type ExchangeRate struct {
	CurrentRate Rate   `json:"current_rate"`
	NextRate    Rate   `json:"next_rate"`
	Timestamp   string `json:"timestamp"`
}

// TimestampFilter renders a mirror timestamp filter such as gte:1700000000.000000000.
func TimestampFilter(op string, t time.Time) string {
	return op + ":" + strconv.FormatInt(t.Unix(), 10) + "." + padNanos(t.Nanosecond())
}

func padNanos(n int) string {
	s := strconv.Itoa(n)
	for len(s) < 9 {
		s = "0" + s
	}
	return s
}

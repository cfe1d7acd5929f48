package txbuilder

// 操作名，同时作为调度描述与异步任务中的操作标识。
const (
	OpCreateAccount          = "create_account"
	OpTransferHbar           = "transfer_hbar"
	OpBatchTransferHbar      = "batch_transfer_hbar"
	OpUpdateAccount          = "update_account"
	OpDeleteAccount          = "delete_account"
	OpApproveHbarAllowance   = "approve_hbar_allowance"
	OpCreateFungibleToken    = "create_fungible_token"
	OpCreateNonFungibleToken = "create_non_fungible_token"
	OpMintFungibleToken      = "mint_fungible_token"
	OpMintNonFungibleToken   = "mint_non_fungible_token"
	OpAssociateToken         = "associate_token"
	OpDissociateToken        = "dissociate_token"
	OpAirdropFungibleToken   = "airdrop_fungible_token"
	OpCreateTopic            = "create_topic"
	OpSubmitTopicMessage     = "submit_topic_message"
	OpDeleteTopic            = "delete_topic"
	OpCreateContract         = "create_contract"
	OpExecuteContract        = "execute_contract"
	OpSignSchedule           = "sign_schedule"
	OpDeleteSchedule         = "delete_schedule"
)

// MaxTransfersPerTransaction 是单笔转账交易允许的最多转账条目（含付款方）。
const MaxTransfersPerTransaction = 10

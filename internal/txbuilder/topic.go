package txbuilder

import (
	"context"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/keys"
	"LedgerAgent-Kit/internal/ledger"
)

// maxTopicMessageBytes 是单条主题消息的字节上限。
const maxTopicMessageBytes = 1024

// CreateTopicParams 创建主题的参数。
type CreateTopicParams struct {
	TopicMemo          string `json:"topicMemo,omitempty"`
	AdminKey           string `json:"adminKey,omitempty"`
	SubmitKey          string `json:"submitKey,omitempty"`
	IsSubmitKey        bool   `json:"isSubmitKey,omitempty"`
	AutoRenewAccountID string `json:"autoRenewAccountId,omitempty"`
	AutoRenewPeriod    *int64 `json:"autoRenewPeriod,omitempty"`
	TransactionMemo    string `json:"transactionMemo,omitempty"`
}

// CreateTopic 构建创建主题交易。
func (b *Builder) CreateTopic(ctx context.Context, p CreateTopicParams) (*Pending, error) {
	n, err := applyDefaults(ctx, b.logger, []fieldDefault{
		{
			field: "submitKey",
			note:  "isSubmitKey 为真，提交密钥使用当前签名者的公钥",
			apply: func(context.Context) (any, bool, error) {
				if !p.IsSubmitKey || p.SubmitKey != "" {
					return nil, false, nil
				}
				p.SubmitKey = keys.CurrentSigner
				return p.SubmitKey, true, nil
			},
		},
		autoRenewDefault(&p.AutoRenewAccountID, &p.AutoRenewPeriod),
	})
	if err != nil {
		return nil, err
	}
	body := &ledger.TopicCreate{Memo: p.TopicMemo}
	if body.AdminKey, err = b.resolveKey(ctx, "adminKey", p.AdminKey); err != nil {
		return nil, err
	}
	if body.SubmitKey, err = b.resolveKey(ctx, "submitKey", p.SubmitKey); err != nil {
		return nil, err
	}
	if body.AutoRenewAccountID, body.AutoRenewPeriod, err = autoRenew(p.AutoRenewAccountID, p.AutoRenewPeriod); err != nil {
		return nil, err
	}
	return b.build(OpCreateTopic, body, p.TransactionMemo, n)
}

// SubmitTopicMessageParams 提交主题消息的参数。
type SubmitTopicMessageParams struct {
	TopicID         string `json:"topicId"`
	Message         string `json:"message"`
	TransactionMemo string `json:"transactionMemo,omitempty"`
}

// SubmitTopicMessage 构建提交主题消息交易。
func (b *Builder) SubmitTopicMessage(_ context.Context, p SubmitTopicMessageParams) (*Pending, error) {
	topic, err := parseEntity("topicId", p.TopicID)
	if err != nil {
		return nil, err
	}
	if p.Message == "" {
		return nil, missing("message")
	}
	if len(p.Message) > maxTopicMessageBytes {
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "消息长度 %d 超过上限 %d 字节", len(p.Message), maxTopicMessageBytes)
	}
	return b.build(OpSubmitTopicMessage, &ledger.TopicMessageSubmit{TopicID: topic, Message: []byte(p.Message)}, p.TransactionMemo, nil)
}

// DeleteTopicParams 删除主题的参数。
type DeleteTopicParams struct {
	TopicID         string `json:"topicId"`
	TransactionMemo string `json:"transactionMemo,omitempty"`
}

// DeleteTopic 构建删除主题交易。
func (b *Builder) DeleteTopic(_ context.Context, p DeleteTopicParams) (*Pending, error) {
	topic, err := parseEntity("topicId", p.TopicID)
	if err != nil {
		return nil, err
	}
	return b.build(OpDeleteTopic, &ledger.TopicDelete{TopicID: topic}, p.TransactionMemo, nil)
}

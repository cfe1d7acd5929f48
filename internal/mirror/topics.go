package mirror

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"LedgerAgent-Kit/internal/ledger"
)

// TopicInfo returns topic details.
func (c *Client) TopicInfo(ctx context.Context, id ledger.TopicID) (*TopicInfo, error) {
	var out TopicInfo
	if err := c.getJSON(ctx, "/topics/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TopicMessagesFilter narrows a topic message query.
type TopicMessagesFilter struct {
	Limit int
	// Order is asc or desc; empty leaves the mirror default.
	Order string
	From  time.Time
	To    time.Time
}

// TopicMessages returns decoded messages of a topic. At most ten pages are
// read. A message whose payload cannot be decoded is skipped and logged.
func (c *Client) TopicMessages(ctx context.Context, id ledger.TopicID, filter TopicMessagesFilter) ([]TopicMessage, error) {
	query := url.Values{}
	if filter.Order != "" {
		query.Set("order", filter.Order)
	}
	if !filter.From.IsZero() {
		query.Add("timestamp", TimestampFilter("gte", filter.From))
	}
	if !filter.To.IsZero() {
		query.Add("timestamp", TimestampFilter("lte", filter.To))
	}
	raw, err := paginate[TopicMessage](ctx, c, "/topics/"+id.String()+"/messages", query, "messages",
		pageOptions{Limit: filter.Limit, MaxPages: maxSafePages})
	if err != nil {
		return nil, err
	}
	out := make([]TopicMessage, 0, len(raw))
	for _, msg := range raw {
		content, isJSON, err := DecodeMessage(msg.Message)
		if err != nil {
			c.logger.Warn("跳过无法解码的主题消息",
				slog.String("topic", id.String()),
				slog.String("sequence", strconv.FormatUint(msg.SequenceNumber, 10)),
				slog.String("error", err.Error()))
			continue
		}
		msg.Content = content
		msg.IsJSON = isJSON
		out = append(out, msg)
	}
	return out, nil
}

// DecodeMessage decodes a base64 payload as UTF-8 and parses it as JSON,
// falling back to the raw string when it is not JSON. Invalid UTF-8
// sequences become U+FFFD; only a bad base64 payload is an error.
func DecodeMessage(payload string) (content any, isJSON bool, err error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, false, err
	}
	text := strings.ToValidUTF8(string(data), "\uFFFD")
	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err == nil {
		return parsed, true, nil
	}
	return text, false, nil
}

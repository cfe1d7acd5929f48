package mirror

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strconv"
)

// maxSafePages bounds endpoints whose result sets can be unbounded.
const maxSafePages = 10

// Links is the pagination block of list responses.
type Links struct {
	Next string `json:"next"`
}

type pageOptions struct {
	// Limit caps the number of returned items; 0 means no cap.
	Limit int
	// MaxPages caps the number of pages fetched; 0 means no cap.
	MaxPages int
}

// paginate follows links.next from path, decoding the array under field into
// T. Pages are fetched strictly in order. Items that fail to decode are
// skipped and logged.
func paginate[T any](ctx context.Context, c *Client, path string, query url.Values, field string, opts pageOptions) ([]T, error) {
	if query == nil {
		query = url.Values{}
	}
	if opts.Limit > 0 && opts.Limit < 100 && query.Get("limit") == "" {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}

	var out []T
	target := c.endpoint.url(path, query)
	for page := 1; target != ""; page++ {
		var raw map[string]json.RawMessage
		if err := c.fetchJSON(ctx, target, &raw); err != nil {
			return nil, err
		}

		var items []json.RawMessage
		if data, ok := raw[field]; ok && len(data) > 0 && string(data) != "null" {
			if err := json.Unmarshal(data, &items); err != nil {
				c.logger.Warn("镜像节点分页字段格式错误", slog.String("field", field), slog.String("error", err.Error()))
			}
		}
		for i, item := range items {
			var v T
			if err := json.Unmarshal(item, &v); err != nil {
				c.logger.Warn("跳过无法解析的条目",
					slog.String("field", field),
					slog.Int("page", page),
					slog.Int("index", i),
					slog.String("error", err.Error()))
				continue
			}
			out = append(out, v)
			if opts.Limit > 0 && len(out) >= opts.Limit {
				return out, nil
			}
		}

		var links Links
		if data, ok := raw["links"]; ok {
			_ = json.Unmarshal(data, &links)
		}
		if links.Next == "" {
			break
		}
		if opts.MaxPages > 0 && page >= opts.MaxPages {
			c.logger.Warn("达到分页上限，停止翻页", slog.String("path", path), slog.Int("pages", page))
			break
		}
		target = c.endpoint.next(links.Next)
	}
	return out, nil
}

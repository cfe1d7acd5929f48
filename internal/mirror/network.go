package mirror

import (
	"net/url"
	"strings"

	xerrors "LedgerAgent-Kit/internal/errors"
)

// Network names understood by Resolve.
const (
	Mainnet    = "mainnet"
	Testnet    = "testnet"
	Previewnet = "previewnet"
)

// APIKeyPlaceholder is replaced with the configured API key in custom URLs.
const APIKeyPlaceholder = "{API_KEY}"

var networkURLs = map[string]string{
	Mainnet:    "https://mainnet-public.mirrornode.hedera.com/api/v1",
	Testnet:    "https://testnet.mirrornode.hedera.com/api/v1",
	Previewnet: "https://previewnet.mirrornode.hedera.com/api/v1",
}

// defaultBasePath is the version prefix mirror nodes use in links.next.
const defaultBasePath = "/api/v1"

// endpoint is a parsed base URL.
type endpoint struct {
	origin   string
	basePath string
	query    url.Values
}

// Resolve returns the REST base URL for a network, or the custom URL with the
// API key substituted when one is given.
func Resolve(network, customURL, apiKey string) (string, error) {
	if custom := strings.TrimSpace(customURL); custom != "" {
		return strings.ReplaceAll(custom, APIKeyPlaceholder, url.QueryEscape(apiKey)), nil
	}
	base, ok := networkURLs[strings.ToLower(strings.TrimSpace(network))]
	if !ok {
		return "", xerrors.Newf(xerrors.CodeUnsupportedNetwork, "不支持的网络 %q", network)
	}
	return base, nil
}

func parseEndpoint(raw string) (endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return endpoint{}, xerrors.Newf(xerrors.CodeInvalidArgument, "无效的镜像节点地址 %q", raw)
	}
	return endpoint{
		origin:   u.Scheme + "://" + u.Host,
		basePath: strings.TrimSuffix(u.Path, "/"),
		query:    u.Query(),
	}, nil
}

// url joins path and query onto the base.
func (e endpoint) url(path string, query url.Values) string {
	merged := url.Values{}
	for k, v := range e.query {
		merged[k] = append([]string(nil), v...)
	}
	for k, v := range query {
		merged[k] = append([]string(nil), v...)
	}
	full := e.origin + e.basePath + "/" + strings.TrimPrefix(path, "/")
	if encoded := merged.Encode(); encoded != "" {
		full += "?" + encoded
	}
	return full
}

// next resolves a links.next value. Links already under the base path are
// used as-is; otherwise the default version prefix is swapped for the base
// path so custom deployments behind a path prefix keep working.
func (e endpoint) next(link string) string {
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	path := link
	if e.basePath != "" && !strings.HasPrefix(path, e.basePath) {
		path = strings.Replace(path, defaultBasePath, e.basePath, 1)
	}
	if len(e.query) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		path += sep + e.query.Encode()
	}
	return e.origin + path
}

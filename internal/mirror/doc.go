// Package mirror is a resilient read client for the ledger's mirror node REST
// API. Every read goes through one retrying fetcher: 429, 5xx and transport
// errors back off exponentially, other 4xx responses fail immediately. List
// endpoints follow links.next cursors sequentially; a context threads through
// both the retry and the pagination loops.
package mirror

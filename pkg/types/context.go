package types

// ContextKey is the type used for values stored in a request context.
type ContextKey string

const (
	// ContextKeyRequestID carries the per-request identifier assigned by the server.
	ContextKeyRequestID ContextKey = "request_id"
	// ContextKeyRequestSource identifies where a request originated (server, cli, batch).
	ContextKeyRequestSource ContextKey = "request_source"
	// ContextKeyQueryID carries the query identifier for search requests.
	ContextKeyQueryID ContextKey = "query_id"
)

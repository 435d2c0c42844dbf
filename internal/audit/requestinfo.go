package audit

import "context"

// ClientInfo carries the ambient request attributes the pipeline resolves when
// a caller does not supply them explicitly. The HTTP middleware puts it on the
// request context.
type ClientInfo struct {
	IP        string
	UserAgent string
}

type clientInfoKey struct{}

// WithClientInfo returns a context carrying the client's IP and User-Agent.
func WithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, info)
}

// ClientInfoFromContext returns the client info set by WithClientInfo, if any.
func ClientInfoFromContext(ctx context.Context) (ClientInfo, bool) {
	info, ok := ctx.Value(clientInfoKey{}).(ClientInfo)
	return info, ok
}

package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/tabload/internal/core"
	mw "github.com/JonMunkholm/tabload/internal/web/middleware"
)

// WithRequestMetadata adds the client IP and User-Agent to ctx for ingest
// logging.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithIPAddress(ctx, mw.ClientIP(r)) // already rewritten by TrustedRealIP
	ctx = core.ContextWithUserAgent(ctx, r.Header.Get("User-Agent"))
	return ctx
}

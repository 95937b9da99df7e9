package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/sheetclean/internal/core"
	"github.com/JonMunkholm/sheetclean/internal/web/middleware"
)

// withRequestMetadata attaches the client address and User-Agent that the
// service stores with each run.
func withRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithClientIP(ctx, middleware.ClientIP(r))
	return core.ContextWithUserAgent(ctx, r.UserAgent())
}

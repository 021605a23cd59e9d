package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// RegisterRoutes registers the rate limited routes. Operations without
// ratelimit metadata are subject to the process-wide policy.
func RegisterRoutes(api huma.API, limited *LimitedHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "get-limited",
		Method:      http.MethodGet,
		Path:        "/limited",
		Summary:     "Rate limited endpoint",
		Description: "Returns a fixed message when the caller is within its rate limit.",
		Tags:        []string{"Limited"},
		Errors:      []int{http.StatusTooManyRequests, http.StatusServiceUnavailable},
	}, limited.Get)
}

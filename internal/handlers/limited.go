package handlers

import (
	"context"

	"go.uber.org/zap"
)

const msgAllowed = "Request allowed"

// LimitedHandler serves the rate limited demo endpoint. Admission is decided
// entirely by the rate limit middleware; reaching the handler means the
// request was allowed.
type LimitedHandler struct {
	logger *zap.Logger
}

// NewLimitedHandler creates a new limited handler.
func NewLimitedHandler(logger *zap.Logger) *LimitedHandler {
	return &LimitedHandler{logger: logger}
}

// Get acknowledges an admitted request.
func (h *LimitedHandler) Get(_ context.Context, _ *struct{}) (*LimitedResponse, error) {
	h.logger.Debug("request allowed")

	resp := &LimitedResponse{}
	resp.Body.Message = msgAllowed

	return resp, nil
}

package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hazyhaar/debatehub/pkg/kit"
)

// Middleware records every call through the endpoint: caller identity from
// the context, JSON parameters, result or error, and duration. Errors for
// which rejected returns true are stored with StatusRejected. rejected may
// be nil.
func Middleware(logger Logger, action string, rejected Classifier) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, request any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, request)

			e := &Entry{
				Action:     action,
				Transport:  kit.GetTransport(ctx),
				UserID:     kit.GetUserID(ctx),
				RequestID:  kit.GetRequestID(ctx),
				DurationMs: time.Since(start).Milliseconds(),
				Status:     StatusSuccess,
			}
			if b, merr := json.Marshal(request); merr == nil {
				e.Parameters = string(b)
			}
			switch {
			case err == nil:
				if b, merr := json.Marshal(resp); merr == nil {
					e.Result = string(b)
				}
			case rejected != nil && rejected(err):
				e.Error = err.Error()
				e.Status = StatusRejected
			default:
				e.Error = err.Error()
				e.Status = StatusError
			}

			logger.LogAsync(e)
			return resp, err
		}
	}
}

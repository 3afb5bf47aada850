package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/settleup/pkg/api"
)

// LoggingInterceptor returns a Connect interceptor that logs every RPC call
// with its procedure, actor and duration. Failures also carry the Connect
// code and the error reason detail when the handler attached one.
func LoggingInterceptor(logger *slog.Logger) connect.UnaryInterceptorFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			attrs := []any{
				"procedure", req.Spec().Procedure,
				"actor", GetActor(ctx),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if err == nil {
				logger.InfoContext(ctx, "RPC ok", attrs...)
				return resp, nil
			}

			var connectErr *connect.Error
			if !errors.As(err, &connectErr) {
				logger.ErrorContext(ctx, "RPC error", append(attrs, "error", err)...)
				return resp, err
			}
			attrs = append(attrs,
				"code", connectErr.Code(),
				"reason", api.ErrorReason(connectErr),
				"error", connectErr.Message(),
			)
			// Client errors log at warn.
			switch connectErr.Code() {
			case connect.CodeInternal, connect.CodeUnknown, connect.CodeDataLoss:
				logger.ErrorContext(ctx, "RPC error", attrs...)
			default:
				logger.WarnContext(ctx, "RPC error", attrs...)
			}
			return resp, err
		}
	}
}

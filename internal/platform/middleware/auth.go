package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"passport/internal/chain"
	dErrors "passport/pkg/domain-errors"
	"passport/pkg/platform/httputil"
)

// HeaderCallValue carries the native value attached to a call, as a decimal
// or 0x-prefixed hex integer.
const HeaderCallValue = "X-Call-Value"

// CallerValidator validates a bearer token.
type CallerValidator interface {
	ValidateToken(tokenString string) (*CallerClaims, error)
}

// CallerClaims are the claims the middleware needs from a validated token.
type CallerClaims struct {
	Caller common.Address
	JTI    string
}

// RequireCaller authenticates the bearer token and installs the caller and the
// attached call value on the request context.
func RequireCaller(validator CallerValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", GetRequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"))
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token"))
				return
			}

			msg := chain.Msg{Caller: claims.Caller}
			if raw := strings.TrimSpace(r.Header.Get(HeaderCallValue)); raw != "" {
				v, ok := math.ParseBig256(raw)
				if !ok || v.Sign() < 0 {
					httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid "+HeaderCallValue+" header"))
					return
				}
				msg.Value = v
			}
			next.ServeHTTP(w, r.WithContext(chain.WithMsg(ctx, msg)))
		})
	}
}

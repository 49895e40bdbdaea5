package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ServiceClaims are carried by tokens the complaint backend signs when it
// posts activity events.
type ServiceClaims struct {
	jwt.RegisteredClaims
}

// ServiceTokenVerifier returns a verifier for HS256 service tokens signed
// with key. Tokens must carry a subject and an expiry.
func ServiceTokenVerifier(key []byte) TokenVerifier {
	return func(_ context.Context, token string) (string, error) {
		if len(key) == 0 {
			return "", errors.New("service signing key not configured")
		}
		claims := &ServiceClaims{}
		_, err := jwt.ParseWithClaims(token, claims,
			func(*jwt.Token) (any, error) { return key, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		)
		if err != nil {
			return "", err
		}
		return claims.Subject, nil
	}
}

// ServiceAuthMiddleware admits requests carrying a valid service token and
// records the calling service in the context.
func ServiceAuthMiddleware(verify TokenVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(w, r)
			if !ok {
				return
			}
			subject, err := verify(r.Context(), token)
			if err != nil || subject == "" {
				logger.Warn("Rejected service token", zap.Error(err))
				respondWithError(w, http.StatusUnauthorized, "Invalid service token")
				return
			}
			ctx := context.WithValue(r.Context(), ServiceSubjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetServiceSubject(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(ServiceSubjectKey).(string)
	return s, ok
}

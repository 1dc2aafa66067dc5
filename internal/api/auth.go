package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/BTreeMap/VisitDesk/internal/models"
)

// MinJWTSecretLength is the shortest accepted HMAC secret for operator tokens.
const MinJWTSecretLength = 32

type contextKey string

const ownerIDKey contextKey = "owner_id"

// IssueOperatorToken signs an HS256 token whose subject is ownerID. A
// non-positive ttl issues a token without expiry.
func IssueOperatorToken(secret string, ownerID int64, now time.Time, ttl time.Duration) (string, error) {
	if len(secret) < MinJWTSecretLength {
		return "", errors.Errorf("jwt secret must be at least %d bytes", MinJWTSecretLength)
	}
	if ownerID <= 0 {
		return "", errors.Errorf("owner ID must be positive, got %d", ownerID)
	}
	claims := jwt.RegisteredClaims{
		Subject:  strconv.FormatInt(ownerID, 10),
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "sign operator token")
	}
	return token, nil
}

// requireOperator admits a request only with a valid bearer token whose
// subject is the {ownerID} in the path. The parsed owner ID is stored in the
// request context.
func (s *Server) requireOperator(secret []byte) func(http.Handler) http.Handler {
	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
				s.unauthorized(w, "missing or malformed authorization header")
				return
			}

			claims := &jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, keyFunc)
			if err != nil || !token.Valid {
				s.logger.Debug("Server requireOperator rejected token", zap.Error(err))
				s.unauthorized(w, "invalid token")
				return
			}

			owner, err := strconv.ParseInt(chi.URLParam(r, "ownerID"), 10, 64)
			if err != nil || owner <= 0 {
				writeJSONResponse(s.logger, w, http.StatusBadRequest, models.Error("ownerID must be a positive integer"))
				return
			}
			if claims.Subject != strconv.FormatInt(owner, 10) {
				s.logger.Warn("Server requireOperator owner mismatch",
					zap.String("subject", claims.Subject), zap.Int64("owner_id", owner))
				writeJSONResponse(s.logger, w, http.StatusForbidden, models.Error("token does not grant access to this owner"))
				return
			}

			ctx := context.WithValue(r.Context(), ownerIDKey, owner)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (s *Server) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="visitdesk"`)
	writeJSONResponse(s.logger, w, http.StatusUnauthorized, models.Error(message))
}

// ownerFromContext returns the owner ID set by requireOperator.
func ownerFromContext(ctx context.Context) int64 {
	if v, ok := ctx.Value(ownerIDKey).(int64); ok {
		return v
	}
	return 0
}

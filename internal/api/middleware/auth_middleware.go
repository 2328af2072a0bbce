package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/RoyceAzure/lab/storefront/internal/api/response"
	"github.com/RoyceAzure/lab/storefront/internal/auth"
	"github.com/RoyceAzure/lab/storefront/internal/constants"
	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/pkg/apperr"
	"github.com/RoyceAzure/lab/storefront/internal/util"
)

type holderKey struct{}

// identityHolder 讓外層的 logger 拿到內層認證後的使用者
type identityHolder struct {
	id string
}

func (h *identityHolder) userID() string {
	if h.id == "" {
		return "anonymous"
	}
	return h.id
}

func withIdentityHolder(ctx context.Context, h *identityHolder) context.Context {
	return context.WithValue(ctx, holderKey{}, h)
}

func setIdentity(r *http.Request, identity model.Identity) *http.Request {
	if h, ok := r.Context().Value(holderKey{}).(*identityHolder); ok {
		h.id = identity.UserID
	}
	return r.WithContext(util.WithIdentity(r.Context(), identity))
}

/*
解析 Authorization header
格式 => Bearer => tokenMaker 驗證
*/
func bearerIdentity(r *http.Request, maker auth.Maker) (model.Identity, bool, error) {
	header := r.Header.Get(constants.AuthorizationHeaderKey)
	if header == "" {
		return model.Identity{}, false, nil
	}
	fields := strings.Fields(header)
	if len(fields) != 2 || strings.ToLower(fields[0]) != constants.AuthorizationTypeBearer {
		return model.Identity{}, true, apperr.New(apperr.UnauthenticatedCode, "Invalid authorization header format")
	}
	claims, err := maker.VerifyToken(fields[1])
	if err != nil {
		return model.Identity{}, true, apperr.Wrap(apperr.UnauthenticatedCode, "Invalid or expired token", err)
	}
	return claims.Identity(), true, nil
}

func Authenticate(maker auth.Maker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, present, err := bearerIdentity(r, maker)
			if err != nil {
				response.ErrorJSON(w, err)
				return
			}
			if !present {
				response.ErrorJSON(w, apperr.New(apperr.UnauthenticatedCode, "Authentication required"))
				return
			}
			next.ServeHTTP(w, setIdentity(r, identity))
		})
	}
}

// OptionalAuth token 無效或沒帶都當作匿名
func OptionalAuth(maker auth.Maker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, present, err := bearerIdentity(r, maker)
			if err == nil && present {
				r = setIdentity(r, identity)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin 必須放在 Authenticate 之後
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := util.GetIdentityFromContext(r.Context())
		if !ok {
			response.ErrorJSON(w, apperr.New(apperr.UnauthenticatedCode, "Authentication required"))
			return
		}
		if !identity.IsAdmin() {
			response.ErrorJSON(w, apperr.New(apperr.UnauthorizedCode, "Unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

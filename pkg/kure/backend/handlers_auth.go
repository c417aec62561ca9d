package backend

import (
	"crypto/subtle"
	"net"
	"net/http"

	"github.com/kure-project/kure-monitor/internal/httpserver"
	"github.com/kure-project/kure-monitor/pkg/kure"
)

type loginRequest struct {
	APIKey string `json:"api_key" validate:"required"`
}

// HandleLogin implements the implied POST /auth/login named in §4.2's rate
// limit text. A source address gets 5 failed attempts per 30 s window
// before RateLimited; a successful login clears the window.
func (b *Backend) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	ip := sourceIP(r)

	if b.RateLimiter != nil {
		result, err := b.RateLimiter.Check(r.Context(), ip)
		if err != nil {
			httpserver.RespondDomainError(w, r, b.Logger, kure.Wrap(kure.KindInternal, "checking rate limit", err))
			return
		}
		if !result.Allowed {
			httpserver.RespondDomainError(w, r, b.Logger, kure.NewError(kure.KindRateLimited, "too many failed login attempts"))
			return
		}
	}

	if b.APIKey == "" || subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(b.APIKey)) != 1 {
		if b.RateLimiter != nil {
			if err := b.RateLimiter.Record(r.Context(), ip); err != nil {
				b.Logger.Error("recording failed login attempt", "error", err)
			}
		}
		httpserver.RespondDomainError(w, r, b.Logger, kure.NewError(kure.KindUnauthorized, "invalid credentials"))
		return
	}

	if b.RateLimiter != nil {
		if err := b.RateLimiter.Reset(r.Context(), ip); err != nil {
			b.Logger.Error("resetting rate limit", "error", err)
		}
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"token": b.APIKey})
}

func sourceIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

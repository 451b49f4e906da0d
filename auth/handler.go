package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

const maxBodyBytes = 1 << 20

type ctxKey int

const claimsKey ctxKey = iota

func RegisterAccountHandler(svc Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		req, err := decodeRegisterAccountRequest(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			encodeError(ErrValidation, w)
			return
		}

		grant, err := svc.Register(r.Context(), req)
		if err != nil {
			encodeError(err, w)
			return
		}

		encodeResponse(w, http.StatusOK, grant)
	})
}

func LoginHandler(svc Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		req, err := decodeLoginRequest(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			encodeError(ErrValidation, w)
			return
		}

		grant, err := svc.Login(r.Context(), req)
		if err != nil {
			encodeError(err, w)
			return
		}

		encodeResponse(w, http.StatusOK, grant)
	})
}

// AccountHandler returns the profile of the account the request's token
// belongs to. It must run behind RequireAuth.
func AccountHandler(svc Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			encodeError(ErrInvalidCredentials, w)
			return
		}

		profile, err := svc.Account(r.Context(), claims.ID)
		if err != nil {
			encodeError(err, w)
			return
		}

		encodeResponse(w, http.StatusOK, profile)
	})
}

// RequireAuth rejects requests without a valid bearer token and stores the
// token's claims in the request context.
func RequireAuth(svc Service, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := svc.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			encodeError(err, w)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok && c != nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// publicError reduces err to the service error whose message clients may see.
func publicError(err error) error {
	for _, e := range []error{ErrValidation, ErrAccountExists, ErrInvalidCredentials, ErrNotFound} {
		if errors.Is(err, e) {
			return e
		}
	}
	return ErrInternal
}

func statusFor(err error) int {
	switch publicError(err) {
	case ErrValidation:
		return http.StatusBadRequest
	case ErrAccountExists:
		return http.StatusConflict
	case ErrInvalidCredentials:
		return http.StatusUnauthorized
	case ErrNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func encodeError(err error, w http.ResponseWriter) {
	encodeResponse(w, statusFor(err), map[string]interface{}{
		"error": publicError(err).Error(),
	})
}

func encodeResponse(w http.ResponseWriter, code int, v interface{}) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeRegisterAccountRequest(body io.ReadCloser) (RegisterRequest, error) {
	req := RegisterRequest{}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return RegisterRequest{}, err
	}
	return req, nil
}

func decodeLoginRequest(body io.ReadCloser) (LoginRequest, error) {
	req := LoginRequest{}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return LoginRequest{}, err
	}
	return req, nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package web

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cabfleet/authgate/internal/auth"
	"github.com/cabfleet/authgate/pkg/errutil"
)

type loginRequest struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type createAccountRequest struct {
	Handle      string `json:"handle"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type accountResponse struct {
	ID          string    `json:"id"`
	Handle      string    `json:"handle"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

const maxBodyBytes = 64 << 10

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pair, err := s.flow.Login(r.Context(), req.Handle, req.Password, clientKey(r))
	if err != nil {
		s.countLogin("failure", err)
		s.writeError(w, err)
		return
	}

	s.countLogin("success", nil)
	writeJSON(w, http.StatusOK, newTokenResponse(pair))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pair, err := s.flow.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newTokenResponse(pair))
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := s.flow.CreateAccount(r.Context(), req.Handle, req.Password, req.DisplayName, bearerToken(r), clientKey(r))
	if err != nil {
		s.countCreation("failure", err)
		s.writeError(w, err)
		return
	}

	s.countCreation("success", nil)
	w.Header().Set("Location", "/v1/users/"+account.ID.String())
	writeJSON(w, http.StatusCreated, accountResponse{
		ID:          account.ID.String(),
		Handle:      account.Handle,
		DisplayName: account.DisplayName,
		CreatedAt:   account.CreatedAt,
	})
}

func newTokenResponse(pair *auth.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}

// writeError maps the core's failure classes onto HTTP status codes. All
// 401 responses share one body so credential failures stay uniform.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var admission *auth.AdmissionError
	if errors.As(err, &admission) {
		seconds := int64(admission.RetryAfter / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
		if s.metrics != nil {
			s.metrics.RateLimited.WithLabelValues(admission.Flow).Inc()
		}
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many attempts"})
		return
	}

	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request"})
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenKind),
		errors.Is(err, auth.ErrTokenSignature),
		errors.Is(err, auth.ErrTokenMalformed):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
	case errors.Is(err, auth.ErrMasterKeyRejected):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
	case errors.Is(err, auth.ErrDuplicateHandle):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "handle already exists"})
	case errors.Is(err, auth.ErrStoreUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "service unavailable"})
	default:
		errutil.LogError(s.logger, "unhandled request error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (s *Server) countLogin(outcome string, err error) {
	if s.metrics == nil {
		return
	}
	if err != nil && errors.Is(err, auth.ErrStoreUnavailable) {
		outcome = "error"
	}
	s.metrics.LoginAttempts.WithLabelValues(outcome).Inc()
}

func (s *Server) countCreation(outcome string, err error) {
	if s.metrics == nil {
		return
	}
	if err != nil && errors.Is(err, auth.ErrStoreUnavailable) {
		outcome = "error"
	}
	s.metrics.AccountCreations.WithLabelValues(outcome).Inc()
}

// decodeJSON decodes the request body into v, writing a 400 on failure.
// Returns false if the request has already been answered.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // response write error is acceptable, client may disconnect
	json.NewEncoder(w).Encode(v)
}

// bearerToken extracts the credential from an "Authorization: Bearer ..."
// header, or returns "" if the header is absent or malformed.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return header[len(prefix):]
}

// clientKey identifies the caller for admission control: the first
// X-Forwarded-For hop, then X-Real-IP, then the connection's remote
// address.
func clientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, ok := strings.Cut(xff, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(xff)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/service"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/token"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/util"
)

const maxBodyBytes = 64 << 10

// CredentialAuthenticator is satisfied by service.CredentialService.
type CredentialAuthenticator interface {
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
	ChangePassword(ctx context.Context, accountID, current, next string) error
}

// ChallengeAuthenticator is satisfied by service.ChallengeService.
type ChallengeAuthenticator interface {
	RequestCode(ctx context.Context, documentID string) (*service.CodeDispatch, error)
	ValidateCode(ctx context.Context, documentID, code string) (*service.LoginResult, error)
}

// AuthHandler handles staff and client authentication over HTTP
type AuthHandler struct {
	credentials CredentialAuthenticator
	challenge   ChallengeAuthenticator
	tokens      TokenVerifier
	logger      *zap.Logger
}

func NewAuthHandler(credentials CredentialAuthenticator, challenge ChallengeAuthenticator, tokens TokenVerifier, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		credentials: credentials,
		challenge:   challenge,
		tokens:      tokens,
		logger:      logger,
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type RequestCodeRequest struct {
	Document string `json:"document"`
}

type ValidateCodeRequest struct {
	Document string `json:"document"`
	Code     string `json:"code"`
}

// SessionInfo is the verified view of a bearer token.
type SessionInfo struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func sessionInfo(c *token.Claims) SessionInfo {
	return SessionInfo{
		ID:        c.Subject,
		Email:     c.Email,
		Name:      c.Name,
		Role:      c.Role,
		IssuedAt:  time.UnixMilli(c.IssuedAt).UTC(),
		ExpiresAt: time.UnixMilli(c.ExpiresAt).UTC(),
	}
}

// RegisterRoutes registers all auth routes
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(h.tokens, h.logger))
			r.Get("/session", h.Session)
			r.Post("/password", h.ChangePassword)
		})
	})

	router.Route("/client", func(r chi.Router) {
		r.Post("/code", h.RequestCode)
		r.Post("/verify", h.ValidateCode)
	})

	router.Post("/dispatch", h.Dispatch)
}

// Login handles staff email/password login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondWithError(h.logger, w, err, "Invalid request body")
		return
	}

	res, err := h.credentials.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondWithError(h.logger, w, err, "Login failed")
		return
	}
	respondWithJSON(h.logger, w, http.StatusOK, successResponse(res, "Login successful"))
}

// Session returns the claims of the presented token
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	respondWithJSON(h.logger, w, http.StatusOK, successResponse(sessionInfo(claims), "Session is valid"))
}

// ChangePassword replaces the password of the authenticated staff account
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	var req ChangePasswordRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondWithError(h.logger, w, err, "Invalid request body")
		return
	}

	if err := h.changePassword(r.Context(), claims, req); err != nil {
		respondWithError(h.logger, w, err, "Password change failed")
		return
	}
	respondWithJSON(h.logger, w, http.StatusOK, successResponse(nil, "Password changed"))
}

// RequestCode sends a one-time access code to a client
func (h *AuthHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req RequestCodeRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondWithError(h.logger, w, err, "Invalid request body")
		return
	}

	res, err := h.challenge.RequestCode(r.Context(), req.Document)
	if err != nil {
		respondWithError(h.logger, w, err, "Could not send access code")
		return
	}
	respondWithJSON(h.logger, w, http.StatusOK, successResponse(res, "Access code sent"))
}

// ValidateCode exchanges a client access code for a token
func (h *AuthHandler) ValidateCode(w http.ResponseWriter, r *http.Request) {
	var req ValidateCodeRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondWithError(h.logger, w, err, "Invalid request body")
		return
	}

	res, err := h.challenge.ValidateCode(r.Context(), req.Document, req.Code)
	if err != nil {
		respondWithError(h.logger, w, err, "Access code rejected")
		return
	}
	respondWithJSON(h.logger, w, http.StatusOK, successResponse(res, "Login successful"))
}

func (h *AuthHandler) changePassword(ctx context.Context, claims *token.Claims, req ChangePasswordRequest) error {
	if claims == nil {
		return token.ErrMalformedToken
	}
	if claims.Role == token.RoleClient {
		return fmt.Errorf("%w: clients sign in with access codes", service.ErrInvalidInput)
	}
	if err := h.credentials.ChangePassword(ctx, claims.Subject, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	h.logger.Info("Password changed", util.String("account_id", claims.Subject))
	return nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
	}
	return nil
}

package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/service"
)

// Action names a dispatch variant. Each variant decodes its own payload type
// before any service is called.
type Action string

const (
	ActionLogin              Action = "login"
	ActionVerifySession      Action = "verifySession"
	ActionRequestClientCode  Action = "requestClientCode"
	ActionValidateClientCode Action = "validateClientCode"
	ActionChangePassword     Action = "changePassword"
)

// DispatchRequest is the single-endpoint envelope used by the web client.
// Token may be given here or as a bearer header.
type DispatchRequest struct {
	Action  Action          `json:"action"`
	Token   string          `json:"token,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Dispatch routes an action-tagged request to the matching operation
func (h *AuthHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req DispatchRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondWithError(h.logger, w, err, "Invalid request body")
		return
	}
	if req.Token == "" {
		req.Token = bearerToken(r)
	}

	data, message, err := h.dispatch(r.Context(), req)
	if err != nil {
		respondWithError(h.logger, w, err, fmt.Sprintf("Action %s failed", req.Action))
		return
	}
	respondWithJSON(h.logger, w, http.StatusOK, successResponse(data, message))
}

func (h *AuthHandler) dispatch(ctx context.Context, req DispatchRequest) (interface{}, string, error) {
	switch req.Action {
	case ActionLogin:
		var p LoginRequest
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, "", err
		}
		res, err := h.credentials.Login(ctx, p.Email, p.Password)
		return res, "Login successful", err

	case ActionVerifySession:
		claims, err := h.tokens.Verify(ctx, req.Token)
		if err != nil {
			return nil, "", err
		}
		return sessionInfo(claims), "Session is valid", nil

	case ActionRequestClientCode:
		var p RequestCodeRequest
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, "", err
		}
		res, err := h.challenge.RequestCode(ctx, p.Document)
		return res, "Access code sent", err

	case ActionValidateClientCode:
		var p ValidateCodeRequest
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, "", err
		}
		res, err := h.challenge.ValidateCode(ctx, p.Document, p.Code)
		return res, "Login successful", err

	case ActionChangePassword:
		var p ChangePasswordRequest
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, "", err
		}
		claims, err := h.tokens.Verify(ctx, req.Token)
		if err != nil {
			return nil, "", err
		}
		return nil, "Password changed", h.changePassword(ctx, claims, p)

	default:
		return nil, "", fmt.Errorf("%w: unknown action %q", service.ErrInvalidInput, req.Action)
	}
}

func decodePayload(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: payload is required", service.ErrInvalidInput)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
	}
	return nil
}

package user

import (
	"encoding/json"
	"errors"
	"net/http"

	"directchat/internal/respond"

	"go.uber.org/zap"
)

type Handler struct {
	Service *Service
	logger  *zap.SugaredLogger
}

func NewHandler(s *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{Service: s, logger: logger}
}

// Signup handles POST /auth/signup.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "Malformed JSON")
		return
	}

	u, err := h.Service.Signup(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrFieldTooLong):
			respond.Error(w, http.StatusBadRequest, "Username or email too long")
		case errors.Is(err, ErrValidation):
			respond.Error(w, http.StatusBadRequest, "Missing required fields")
		case errors.Is(err, ErrUsernameTaken):
			respond.Error(w, http.StatusConflict, "Username already exists")
		case errors.Is(err, ErrEmailTaken):
			respond.Error(w, http.StatusConflict, "Email already exists")
		case errors.Is(err, ErrConflict):
			respond.Error(w, http.StatusConflict, "Username or email already exists")
		default:
			h.internalError(w, r, err)
		}
		return
	}

	respond.JSON(w, http.StatusCreated, SignupResponse{
		Message: "User created successfully",
		User:    u.Public(),
	})
}

// Signin handles POST /auth/signin.
func (h *Handler) Signin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "Malformed JSON")
		return
	}

	tok, u, err := h.Service.Signin(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			respond.Error(w, http.StatusBadRequest, "Missing authentication details")
		case errors.Is(err, ErrNotFound):
			respond.Error(w, http.StatusNotFound, "User not found")
		case errors.Is(err, ErrUnauthorized):
			respond.Error(w, http.StatusUnauthorized, "Invalid password")
		default:
			h.internalError(w, r, err)
		}
		return
	}

	respond.JSON(w, http.StatusOK, SigninResponse{Token: tok, User: u.Public()})
}

// Profile handles GET /auth/user. It must run behind the auth middleware.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	u, ok := FromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	respond.JSON(w, http.StatusOK, ProfileResponse{User: u.Public()})
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	respond.Error(w, http.StatusInternalServerError, "Internal server error")
}

package user

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

type Handler struct {
	Service *Service
	logger  *slog.Logger
}

func NewHandler(s *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Service: s, logger: logger}
}

type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type usersResponse struct {
	Success bool     `json:"success"`
	Users   []string `json:"users"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Message: "invalid request body"})
		return
	}

	if _, err := h.Service.Signup(r.Context(), &req); err != nil {
		switch {
		case errors.Is(err, ErrMissingFields), errors.Is(err, ErrUsernameTaken):
			writeJSON(w, http.StatusBadRequest, statusResponse{Message: err.Error()})
		default:
			h.logger.Error("signup failed", slog.Any("error", err))
			writeJSON(w, http.StatusInternalServerError, statusResponse{Message: "could not create user"})
		}
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: "Signup successful"})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Message: "invalid request body"})
		return
	}

	res, err := h.Service.Login(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingFields):
			writeJSON(w, http.StatusBadRequest, statusResponse{Message: err.Error()})
		case errors.Is(err, ErrInvalidCredentials):
			writeJSON(w, http.StatusUnauthorized, statusResponse{Message: err.Error()})
		default:
			h.logger.Error("login failed", slog.Any("error", err))
			writeJSON(w, http.StatusInternalServerError, statusResponse{Message: "could not log in"})
		}
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// ListUsers returns every signed-up username except ?exclude=.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	names, err := h.Service.ListUsernames(r.Context(), r.URL.Query().Get("exclude"))
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, statusResponse{Message: "could not list users"})
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, usersResponse{Success: true, Users: names})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

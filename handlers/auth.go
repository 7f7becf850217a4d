package handlers

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"seroest/app"
	"seroest/auth"
	"seroest/metrics"
	"seroest/models"
)

type AuthHandler struct {
	orch       *app.Orchestrator
	jwtManager *auth.JWTManager
	users      auth.UserSource
	log        logrus.FieldLogger
}

func NewAuthHandler(orch *app.Orchestrator, jwtManager *auth.JWTManager, users auth.UserSource, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{
		orch:       orch,
		jwtManager: jwtManager,
		users:      users,
		log:        log.WithField("handler", "auth"),
	}
}

type LoginRequest struct {
	Name     string `json:"nom"`
	Password string `json:"motDePasse"`
}

type LoginResponse struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	User         models.User `json:"user"`
}

func (h *AuthHandler) issue(w http.ResponseWriter, user models.User) {
	token, err := h.jwtManager.GenerateToken(user)
	if err != nil {
		h.log.WithError(err).WithField("user", user.ID).Error("failed to generate token")
		writeError(w, "Failed to generate authentication token", http.StatusInternalServerError)
		return
	}

	refreshToken, err := h.jwtManager.GenerateRefreshToken(user)
	if err != nil {
		h.log.WithError(err).WithField("user", user.ID).Error("failed to generate refresh token")
		writeError(w, "Failed to generate refresh token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:        token,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(h.jwtManager.TokenExpiration().Seconds()),
		User:         user.Public(),
	})
}

// Login handles user authentication
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Name == "" || req.Password == "" {
		writeError(w, "Name and password are required", http.StatusBadRequest)
		return
	}

	// Each login gets its own session so the audit entry carries this user.
	user, err := h.orch.WithSession(auth.NewSession(nil)).Login(r.Context(), req.Name, req.Password)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			metrics.Logins.WithLabelValues("rejected").Inc()
			writeError(w, "Nom d'utilisateur ou mot de passe incorrect", http.StatusUnauthorized)
			return
		}
		metrics.Logins.WithLabelValues("error").Inc()
		writeServiceError(w, h.log, "log in", err)
		return
	}
	metrics.Logins.WithLabelValues("accepted").Inc()

	h.log.WithFields(logrus.Fields{"user": user.ID, "role": user.Role}).Info("✅ user logged in")
	h.issue(w, user)
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshToken exchanges a valid refresh token for a new token pair.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	claims, err := h.jwtManager.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		writeError(w, "Invalid or expired refresh token", http.StatusUnauthorized)
		return
	}

	user, err := auth.Recheck(r.Context(), h.users, claims)
	if errors.Is(err, models.ErrNotAuthenticated) {
		writeError(w, "User not found or inactive", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.log.WithError(err).WithField("user", claims.UserID).Warn("user lookup failed, refreshing from token")
	}

	h.issue(w, user)
}

// Logout records the logout in the activity log. Tokens are stateless and
// simply discarded by the client.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	orch, user, ok := orchestratorFor(w, r, h.orch)
	if !ok {
		return
	}
	if err := orch.Logout(r.Context()); err != nil {
		writeServiceError(w, h.log, "log out", err)
		return
	}
	h.log.WithField("user", user.ID).Info("user logged out")
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	_, user, ok := orchestratorFor(w, r, h.orch)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":        user,
		"isMainAdmin": auth.IsMainAdmin(user),
	})
}

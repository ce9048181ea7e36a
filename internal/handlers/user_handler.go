package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/schoolhub/social-api/internal/apperrors"
	"github.com/schoolhub/social-api/internal/config"
	"github.com/schoolhub/social-api/internal/models"
	"github.com/schoolhub/social-api/internal/services"
	jwtutil "github.com/schoolhub/social-api/pkg/jwt"
	log "github.com/sirupsen/logrus"
)

// UserHandler handles registration and login, the stand-in for the external
// identity provider. Tokens it issues carry the user's external id as
// subject; every social endpoint resolves the caller from that.
type UserHandler struct {
	Service *services.UserService
	Config  *config.Config
}

func NewUserHandler(service *services.UserService, cfg *config.Config) *UserHandler {
	return &UserHandler{Service: service, Config: cfg}
}

// RegisterUserHandler creates an account in one of the role collections.
func (h *UserHandler) RegisterUserHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username  string `json:"username"`
		Email     string `json:"email"`
		Password  string `json:"password"`
		Role      string `json:"role"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		log.WithError(err).Warn("Failed to decode registration request")
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	user := &models.User{
		Username:  body.Username,
		Email:     body.Email,
		Role:      body.Role,
		FirstName: body.FirstName,
		LastName:  body.LastName,
	}

	created, err := h.Service.RegisterUser(r.Context(), user, body.Password)
	if err != nil {
		log.WithError(err).Warn("Failed to register user")
		http.Error(w, err.Error(), apperrors.HTTPStatus(err))
		return
	}

	log.WithField("userID", created.ID.Hex()).Info("User registered")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

// LoginUserHandler verifies credentials and issues a JWT.
func (h *UserHandler) LoginUserHandler(w http.ResponseWriter, r *http.Request) {
	var credentials struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	user, err := h.Service.AuthenticateUser(r.Context(), credentials.Username, credentials.Password)
	if err != nil {
		log.WithField("username", credentials.Username).Warn("Login failed")
		http.Error(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	token, err := jwtutil.GenerateToken(user.ExternalID, user.Username, user.Role, h.Config.JWTSecret, h.Config.TokenExpiry)
	if err != nil {
		log.WithError(err).Error("Failed to generate token")
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"token": token,
		"user":  user.Public(),
	})
}

// MeHandler returns the resolved caller, mostly useful for the UI shell.
func (h *UserHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(w, r)
	if claims == nil {
		return
	}

	user, err := h.Service.ResolveCaller(r.Context(), claims.ExternalID)
	if err != nil {
		http.Error(w, err.Error(), apperrors.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user.Public())
}

package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/google/uuid"

	"github.com/asura-ai/asura/internal/api/respond"
	"github.com/asura-ai/asura/internal/core"
	"github.com/asura-ai/asura/internal/models"
)

type AuthHandler struct {
	dbclient  core.DbClient
	jwtSecret string
}

func NewAuthHandler(dbclient core.DbClient, jwtSecret string) *AuthHandler {
	return &AuthHandler{dbclient: dbclient, jwtSecret: jwtSecret}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeInvalidBody, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		respond.Error(w, http.StatusBadRequest, respond.CodeInvalidBody, "email and password are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "failed to hash password")
		return
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.dbclient.CreateUser(r.Context(), user); err != nil {
		respond.Error(w, http.StatusConflict, respond.CodeUserExists, "a user with this email already exists")
		return
	}

	respond.Success(w, http.StatusCreated, map[string]string{"token": h.generateJWT(user.ID)})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeInvalidBody, "invalid request body")
		return
	}

	user, err := h.dbclient.GetUserByEmail(r.Context(), req.Email)
	if err != nil || user == nil ||
		bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		respond.Error(w, http.StatusUnauthorized, respond.CodeInvalidCredentials, "invalid credentials")
		return
	}

	respond.Success(w, http.StatusOK, map[string]string{"token": h.generateJWT(user.ID)})
}

// generateJWT creates a signed token with a user_id claim.
func (h *AuthHandler) generateJWT(userID string) string {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(24 * time.Hour).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token, _ := tok.SignedString([]byte(h.jwtSecret))
	return token
}

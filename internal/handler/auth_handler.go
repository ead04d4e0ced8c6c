package handler

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"device-hub-server/internal/domain"
	"device-hub-server/internal/middleware"
	"device-hub-server/internal/service"
	"device-hub-server/pkg/response"
)

type AuthHandler struct {
	authService  *service.AuthService
	log          logrus.FieldLogger
	secureCookie bool
}

func NewAuthHandler(authService *service.AuthService, log logrus.FieldLogger, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		log:          log,
		secureCookie: secureCookie,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	user, err := h.authService.Register(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Created(w, response.Fields{
		"message": "User registered successfully. Please login.",
		"user":    user,
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	loginResp, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	h.setTokenCookie(w, loginResp.AccessToken, time.Duration(loginResp.ExpiresIn)*time.Second)

	response.Success(w, response.Fields{
		"user":          loginResp.User,
		"access_token":  loginResp.AccessToken,
		"refresh_token": loginResp.RefreshToken,
		"expires_in":    loginResp.ExpiresIn,
	})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req domain.RefreshTokenRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	tokenResp, err := h.authService.RefreshToken(&req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	h.setTokenCookie(w, tokenResp.AccessToken, time.Duration(tokenResp.ExpiresIn)*time.Second)

	response.Success(w, response.Fields{
		"access_token": tokenResp.AccessToken,
		"expires_in":   tokenResp.ExpiresIn,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})

	response.Success(w, response.Fields{"message": "Logged out successfully"})
}

func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

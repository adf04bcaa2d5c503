package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/taskhive/taskhive/internal/config"
	"github.com/taskhive/taskhive/internal/http/middleware"
	"github.com/taskhive/taskhive/internal/model"
	"github.com/taskhive/taskhive/internal/repository"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// EventPublisher is what the delete-account handler needs from the broker
// side: fire-and-forget, called exactly once after the local commit.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any)
}

// NewIdentityServer wires the identity service HTTP surface.
func NewIdentityServer(cfg config.Config, users repository.UsersRepository, pub EventPublisher, log *zap.Logger) *Server {
	e := newEcho("identity-service")

	e.POST("/auth/register", registerHandler(users, log))
	e.POST("/auth/login", loginHandler(cfg.JWT, users, log))

	authMW := middleware.JWTMiddleware(cfg.JWT.Secret)
	e.DELETE("/auth/account", deleteAccountHandler(users, pub, log), authMW)

	return &Server{e: e}
}

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func registerHandler(users repository.UsersRepository, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req credentialsReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		req.Email = strings.TrimSpace(strings.ToLower(req.Email))
		if req.Email == "" || req.Password == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "email and password are required"})
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return dependencyError(c, log, err)
		}

		u, err := users.Create(c.Request().Context(), req.Email, string(hash))
		if err != nil {
			if err == repository.ErrDuplicateEmail {
				return c.JSON(http.StatusConflict, map[string]string{"error": "email already registered"})
			}
			return dependencyError(c, log, err)
		}

		return c.JSON(http.StatusCreated, map[string]any{
			"message": "user registered successfully",
			"user": map[string]any{
				"id":         u.ID,
				"email":      u.Email,
				"created_at": u.CreatedAt,
			},
		})
	}
}

func loginHandler(jwtCfg config.JWTConfig, users repository.UsersRepository, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req credentialsReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		req.Email = strings.TrimSpace(strings.ToLower(req.Email))
		if req.Email == "" || req.Password == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "email and password are required"})
		}

		u, err := users.GetByEmail(c.Request().Context(), req.Email)
		if err != nil {
			return dependencyError(c, log, err)
		}
		if u == nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		}
		if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)) != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		}

		token, err := middleware.SignToken(jwtCfg.Secret, u.ID, u.Email, jwtCfg.TTL)
		if err != nil {
			return dependencyError(c, log, err)
		}

		return c.JSON(http.StatusOK, map[string]string{
			"message": "login successful",
			"token":   token,
		})
	}
}

// deleteAccountHandler removes the local user row, then emits user.deleted.
// Once the local delete commits the call always succeeds: dependent cleanup
// is "accepted for eventual processing", never awaited.
func deleteAccountHandler(users repository.UsersRepository, pub EventPublisher, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok || userID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		deleted, err := users.DeleteByID(c.Request().Context(), userID)
		if err != nil {
			return dependencyError(c, log, err)
		}
		if !deleted {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "user not found"})
		}

		pub.Publish(c.Request().Context(), model.UserDeletedKey, model.DeletionEvent{UserID: userID})

		return c.JSON(http.StatusOK, map[string]string{"message": "account deleted successfully"})
	}
}

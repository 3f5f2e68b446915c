package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-management/internal/config"
	"github.com/iliyamo/library-management/internal/middleware"
	"github.com/iliyamo/library-management/internal/model"
	"github.com/iliyamo/library-management/internal/repository"
	"github.com/iliyamo/library-management/internal/utils"
)

// UserStore is implemented by *repository.UserRepo.
type UserStore interface {
	Create(ctx context.Context, name, email, password, role string, cost int, borrowerID *uint64) (uint64, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uint64) (*model.User, error)
}

// BorrowerLookup resolves the borrower record a new account links to.
type BorrowerLookup interface {
	GetByEmail(ctx context.Context, email string) (*model.Borrower, error)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg       config.Config
	Users     UserStore
	Borrowers BorrowerLookup
}

func NewAuthHandler(cfg config.Config, u UserStore, b BorrowerLookup) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Borrowers: b}
}

// ----- DTOs -----

type registerReq struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}
type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID         uint64  `json:"id"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Role       string  `json:"role"`
	BorrowerID *uint64 `json:"borrower_id,omitempty"`
}
type authResp struct {
	User   userPart  `json:"user"`
	Access tokenPart `json:"access"`
}

func toUserPart(u *model.User) userPart {
	return userPart{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, BorrowerID: u.BorrowerID}
}

// Register creates a MEMBER account.  When a borrower with the same email
// exists the account is linked to it.  Admins are promoted out of band.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if done, err := bindAndValidate(c, &req); done {
		return err
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	ctx, cancel := requestCtx(c)
	defer cancel()

	var borrowerID *uint64
	b, err := h.Borrowers.GetByEmail(ctx, email)
	switch {
	case err == nil:
		borrowerID = &b.ID
	case !errors.Is(err, repository.ErrBorrowerNotFound):
		return writeError(c, err)
	}

	uid, err := h.Users.Create(ctx, req.Name, email, req.Password, model.RoleMember, h.Cfg.BcryptCost, borrowerID)
	if err != nil {
		return writeError(c, err)
	}
	u := &model.User{ID: uid, Name: strings.TrimSpace(req.Name), Email: email, Role: model.RoleMember, BorrowerID: borrowerID}
	return h.issue(c, http.StatusCreated, u)
}

// Login verifies the credentials and returns a fresh access token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if done, err := bindAndValidate(c, &req); done {
		return err
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return writeError(c, err)
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	return h.issue(c, http.StatusOK, u)
}

func (h *AuthHandler) issue(c echo.Context, status int, u *model.User) error {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, utils.Identity{
		UserID:     u.ID,
		Role:       u.Role,
		BorrowerID: u.BorrowerID,
	}, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	return c.JSON(status, authResp{
		User:   toUserPart(u),
		Access: tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Me returns the account behind the bearer token.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user": toUserPart(u)})
}

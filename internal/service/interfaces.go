package service

import (
	"context"

	"github.com/sandeepkv93/observation-service/internal/domain"
	"github.com/sandeepkv93/observation-service/internal/repository"
)

type AuthServiceInterface interface {
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Resume(ctx context.Context, continuityToken string) (*LoginResult, error)
	Session(ctx context.Context, userID uint) (*LoginResult, error)
	Me(ctx context.Context, userID uint) (*domain.User, error)
	Logout(ctx context.Context, continuityToken string) error
	ChangePassword(ctx context.Context, userID uint, newPassword string) error
}

type UserAdminServiceInterface interface {
	CreateUser(ctx context.Context, in CreateUserInput) (*CreatedUser, error)
	ResetPassword(ctx context.Context, userID uint) (string, error)
	ListUsers(ctx context.Context, req repository.PageRequest) (repository.PageResult[domain.User], error)
	SetAdmin(ctx context.Context, userID uint, admin bool) (*domain.User, error)
	SetActive(ctx context.Context, userID uint, active bool) (*domain.User, error)
}

var (
	_ AuthServiceInterface      = (*AuthService)(nil)
	_ UserAdminServiceInterface = (*AuthService)(nil)
)

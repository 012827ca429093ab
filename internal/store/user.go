package store

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/lexgraph/legal-assistant-api/internal/model"
)

// ErrInsufficientTokens is returned when a balance decrement would go negative.
var ErrInsufficientTokens = errors.New("insufficient token balance")

// ErrUserNotFound is returned when a user lookup resolves nothing.
var ErrUserNotFound = errors.New("user not found")

// UserRepo reads accounts and meters their token balance. Accounts are never
// created through this API.
type UserRepo interface {
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	VerifyPassword(user *model.User, password string) bool
	GetTokenBalance(ctx context.Context, userID string) (int, error)
	ConsumeTokens(ctx context.Context, userID string, n int) error
}

type userRepo struct {
	db *gorm.DB
}

// NewUserRepo creates a user repository backed by the relational store.
func NewUserRepo(db *gorm.DB) UserRepo {
	return &userRepo{db: db}
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) VerifyPassword(user *model.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

func (r *userRepo) GetTokenBalance(ctx context.Context, userID string) (int, error) {
	user, err := r.GetByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.AvailableTokens, nil
}

// ConsumeTokens decrements the balance by n with a guarded update so the
// counter never goes negative under concurrent requests.
func (r *userRepo) ConsumeTokens(ctx context.Context, userID string, n int) error {
	if n <= 0 {
		return fmt.Errorf("consume amount must be positive, got %d", n)
	}
	res := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND available_tokens >= ?", userID, n).
		UpdateColumn("available_tokens", gorm.Expr("available_tokens - ?", n))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientTokens
	}
	return nil
}

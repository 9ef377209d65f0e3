package store

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/youngmoe/obsync/pkg/store/models"
)

// CreateUser bcrypts the password and inserts the account.
// Returns models.ErrDuplicateUser when the email is already registered.
func (s *Store) CreateUser(ctx context.Context, email, password, name string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		Name:         name,
		License:      "",
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrDuplicateUser
		}
		return err
	}
	return nil
}

// GetUser fetches an account by email.
func (s *Store) GetUser(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, convertNotFoundError(err, models.ErrUserNotFound)
	}
	return &user, nil
}

// ValidateCredentials verifies email+password. Unknown email and wrong
// password both return models.ErrInvalidCredentials so callers cannot
// distinguish them.
func (s *Store) ValidateCredentials(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.GetUser(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, models.ErrInvalidCredentials
	}
	return user, nil
}

// DeleteUser removes the account row. Vaults and shares owned by the user
// are left in place; vault deletion is an explicit owner action.
func (s *Store) DeleteUser(ctx context.Context, email string) error {
	return s.db.WithContext(ctx).Where("email = ?", email).Delete(&models.User{}).Error
}

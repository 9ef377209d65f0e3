package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/youngmoe/obsync/pkg/keyhash"
	"github.com/youngmoe/obsync/pkg/store/models"
)

// NewVaultParams carries the inputs for CreateVault.
type NewVaultParams struct {
	Name     string
	Owner    string
	Password string
	Salt     string
	Keyhash  string
	Host     string
	Quota    int64
}

// CreateVault inserts a fresh vault. One of Password or Keyhash must be
// non-empty; when Keyhash is absent it is derived from (Password, Salt).
func (s *Store) CreateVault(ctx context.Context, p NewVaultParams) (*models.Vault, error) {
	if p.Keyhash == "" && p.Password == "" {
		return nil, models.ErrMissingVaultKeys
	}

	kh := p.Keyhash
	if kh == "" {
		derived, err := keyhash.Make(p.Password, p.Salt)
		if err != nil {
			return nil, err
		}
		kh = derived
	}

	vault := &models.Vault{
		ID:        uuid.New().String(),
		UserEmail: p.Owner,
		Created:   time.Now().UnixMilli(),
		Host:      p.Host,
		Name:      p.Name,
		Password:  p.Password,
		Salt:      p.Salt,
		Size:      p.Quota,
		Version:   0,
		Keyhash:   kh,
	}
	if err := s.db.WithContext(ctx).Create(vault).Error; err != nil {
		return nil, err
	}
	return vault, nil
}

// GetVault fetches a vault by id and gates it on the supplied keyhash.
// The comparison is constant time; mismatch returns models.ErrKeyhashMismatch.
func (s *Store) GetVault(ctx context.Context, id, kh string) (*models.Vault, error) {
	var vault models.Vault
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&vault).Error; err != nil {
		return nil, convertNotFoundError(err, models.ErrVaultNotFound)
	}
	if !keyhash.Equal(vault.Keyhash, kh) {
		return nil, models.ErrKeyhashMismatch
	}
	return &vault, nil
}

// SetVaultVersion writes the version counter unconditionally. The session
// engine guarantees monotonic usage.
func (s *Store) SetVaultVersion(ctx context.Context, id string, version int64) error {
	return s.db.WithContext(ctx).
		Model(&models.Vault{}).
		Where("id = ?", id).
		Update("version", version).Error
}

// HasVaultAccess reports whether email owns the vault or holds a share on it.
func (s *Store) HasVaultAccess(ctx context.Context, vaultID, email string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Vault{}).
		Where("id = ? AND user_email = ?", vaultID, email).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	err = s.db.WithContext(ctx).
		Model(&models.Share{}).
		Where("vault_id = ? AND email = ? AND accepted = ?", vaultID, email, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// IsVaultOwner reports whether email owns the vault.
func (s *Store) IsVaultOwner(ctx context.Context, vaultID, email string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Vault{}).
		Where("id = ? AND user_email = ?", vaultID, email).
		Count(&count).Error
	return count > 0, err
}

// DeleteVault removes the vault only when owner matches; otherwise a no-op.
func (s *Store) DeleteVault(ctx context.Context, vaultID, owner string) error {
	return s.db.WithContext(ctx).
		Where("id = ? AND user_email = ?", vaultID, owner).
		Delete(&models.Vault{}).Error
}

// GetVaults lists vaults owned by email.
func (s *Store) GetVaults(ctx context.Context, email string) ([]models.Vault, error) {
	var vaults []models.Vault
	err := s.db.WithContext(ctx).
		Where("user_email = ?", email).
		Find(&vaults).Error
	return vaults, err
}

// GetSharedVaults lists vaults shared with email.
func (s *Store) GetSharedVaults(ctx context.Context, email string) ([]models.Vault, error) {
	var vaults []models.Vault
	err := s.db.WithContext(ctx).
		Joins("JOIN shares ON shares.vault_id = vaults.id").
		Where("shares.email = ?", email).
		Find(&vaults).Error
	return vaults, err
}

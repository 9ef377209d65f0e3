package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/youngmoe/obsync/pkg/store/models"
)

// ShareInvite grants email read access to the vault.
func (s *Store) ShareInvite(ctx context.Context, email, name, vaultID string) (*models.Share, error) {
	share := &models.Share{
		UID:      uuid.New().String(),
		Email:    email,
		Name:     name,
		VaultID:  vaultID,
		Accepted: true,
	}
	if err := s.db.WithContext(ctx).Create(share).Error; err != nil {
		return nil, err
	}
	return share, nil
}

// ShareRevoke removes a share either by its uid or by (vault_id, email).
func (s *Store) ShareRevoke(ctx context.Context, shareUID, vaultID, email string) error {
	q := s.db.WithContext(ctx)
	if shareUID != "" {
		return q.Where("uid = ?", shareUID).Delete(&models.Share{}).Error
	}
	return q.Where("vault_id = ? AND email = ?", vaultID, email).Delete(&models.Share{}).Error
}

// GetVaultShares lists the shares granted on a vault.
func (s *Store) GetVaultShares(ctx context.Context, vaultID string) ([]models.Share, error) {
	var shares []models.Share
	err := s.db.WithContext(ctx).Where("vault_id = ?", vaultID).Find(&shares).Error
	return shares, err
}

package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/youngmoe/obsync/pkg/store/models"
)

// InsertMetadata records a new version of a file. The previous newest row for
// the same (vault, path) is demoted inside the same transaction, so observers
// never see two newest rows for one path. Zero Created/Modified stamps are
// filled with the current time in milliseconds. Returns the new row's uid.
func (s *Store) InsertMetadata(ctx context.Context, file *models.File) (int64, error) {
	now := time.Now().UnixMilli()
	if file.Created == 0 {
		file.Created = now
	}
	if file.Modified == 0 {
		file.Modified = now
	}
	file.Newest = true
	file.IsSnapshot = false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.File{}).
			Where("vault_id = ? AND path = ? AND newest = ?", file.VaultID, file.Path, true).
			Update("newest", false).Error; err != nil {
			return err
		}
		return tx.Create(file).Error
	})
	if err != nil {
		return 0, err
	}
	return file.UID, nil
}

// InsertData fills the payload column of an existing row once every upload
// piece has arrived. Rows whose payload never lands are pruned by Snapshot.
func (s *Store) InsertData(ctx context.Context, uid int64, data []byte) error {
	return s.db.WithContext(ctx).
		Model(&models.File{}).
		Where("uid = ?", uid).
		Update("data", data).Error
}

// DeleteVaultFile tombstones every version of the path in the vault. The
// is_snapshot promotion protects the tombstones through future compaction.
func (s *Store) DeleteVaultFile(ctx context.Context, vaultID, path string) error {
	return s.db.WithContext(ctx).
		Model(&models.File{}).
		Where("vault_id = ? AND path = ?", vaultID, path).
		Updates(map[string]any{"deleted": true, "is_snapshot": true}).Error
}

// RestoreFile revives the version identified by uid: the row becomes the
// newest live version of its path and every other non-deleted row for the
// path is demoted, all in one transaction. Returns the restored metadata
// (no payload) for broadcasting.
func (s *Store) RestoreFile(ctx context.Context, uid int64) (*models.File, error) {
	var restored models.File
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Select("uid", "vault_id", "hash", "path", "extension", "size", "created", "modified", "folder", "deleted").
			Where("uid = ?", uid).
			First(&restored).Error; err != nil {
			return convertNotFoundError(err, models.ErrFileNotFound)
		}

		if err := tx.Model(&models.File{}).
			Where("uid = ?", uid).
			Updates(map[string]any{"deleted": false, "newest": true}).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.File{}).
			Where("vault_id = ? AND path = ? AND deleted = ? AND uid <> ?",
				restored.VaultID, restored.Path, false, uid).
			Update("newest", false).Error; err != nil {
			return err
		}

		restored.Deleted = false
		restored.Newest = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &restored, nil
}

// GetFile reads a row's content columns for serving a pull.
func (s *Store) GetFile(ctx context.Context, uid int64) (*models.File, error) {
	var file models.File
	err := s.db.WithContext(ctx).
		Select("uid", "hash", "size", "data").
		Where("uid = ?", uid).
		First(&file).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrFileNotFound)
	}
	return &file, nil
}

// GetVaultFiles returns the current live set: newest, non-deleted rows.
// This is the catch-up working set; payloads are not loaded.
func (s *Store) GetVaultFiles(ctx context.Context, vaultID string) ([]models.File, error) {
	var files []models.File
	err := s.db.WithContext(ctx).
		Select("uid", "vault_id", "hash", "path", "extension", "size", "created", "modified", "folder", "deleted").
		Where("vault_id = ? AND deleted = ? AND newest = ?", vaultID, false, true).
		Find(&files).Error
	return files, err
}

// GetFileHistory returns every version of the path, newest-modified first,
// tombstones included.
func (s *Store) GetFileHistory(ctx context.Context, vaultID, path string) ([]models.File, error) {
	var files []models.File
	err := s.db.WithContext(ctx).
		Select("uid", "path", "size", "modified", "folder", "deleted").
		Where("vault_id = ? AND path = ?", vaultID, path).
		Order("modified DESC").
		Find(&files).Error
	return files, err
}

// GetDeletedFiles returns the vault's trash view: tombstoned newest rows.
func (s *Store) GetDeletedFiles(ctx context.Context, vaultID string) ([]models.File, error) {
	var files []models.File
	err := s.db.WithContext(ctx).
		Select("uid", "path", "size", "modified", "folder", "deleted").
		Where("vault_id = ? AND deleted = ? AND newest = ?", vaultID, true, true).
		Find(&files).Error
	return files, err
}

// GetVaultSize sums size across every row of the vault, history included.
func (s *Store) GetVaultSize(ctx context.Context, vaultID string) (int64, error) {
	var size int64
	err := s.db.WithContext(ctx).
		Model(&models.File{}).
		Where("vault_id = ?", vaultID).
		Select("COALESCE(SUM(size), 0)").
		Scan(&size).Error
	return size, err
}

// Snapshot compacts the vault's history in one transaction:
//  1. promote every newest row to is_snapshot
//  2. drop rows not protected by is_snapshot (historical versions)
//  3. drop rows whose payload never arrived (size > 0, data IS NULL)
//
// Afterwards only the live set and protected tombstones remain.
func (s *Store) Snapshot(ctx context.Context, vaultID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.File{}).
			Where("vault_id = ? AND newest = ?", vaultID, true).
			Update("is_snapshot", true).Error; err != nil {
			return err
		}

		if err := tx.
			Where("vault_id = ? AND is_snapshot = ?", vaultID, false).
			Delete(&models.File{}).Error; err != nil {
			return err
		}

		return tx.
			Where("vault_id = ? AND size <> 0 AND data IS NULL", vaultID).
			Delete(&models.File{}).Error
	})
}

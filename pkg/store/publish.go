package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/youngmoe/obsync/pkg/store/models"
)

// CreateSite inserts a fresh site for owner. The generated UUID serves as
// both id and initial slug until the owner configures a custom one.
func (s *Store) CreateSite(ctx context.Context, owner, host string) (*models.Site, error) {
	site := &models.Site{
		ID:      uuid.New().String(),
		Host:    host,
		Created: time.Now().UnixMilli(),
		Owner:   owner,
		Slug:    uuid.New().String(),
	}
	if err := s.db.WithContext(ctx).Create(site).Error; err != nil {
		return nil, err
	}
	return site, nil
}

// DeleteSite removes the site row. Ownership is checked at the route layer.
func (s *Store) DeleteSite(ctx context.Context, siteID string) error {
	return s.db.WithContext(ctx).Where("id = ?", siteID).Delete(&models.Site{}).Error
}

// SetSlug updates the public handle of a site. Slugs are globally unique.
func (s *Store) SetSlug(ctx context.Context, slug, siteID string) error {
	err := s.db.WithContext(ctx).
		Model(&models.Site{}).
		Where("id = ?", siteID).
		Update("slug", slug).Error
	if isUniqueConstraintError(err) {
		return models.ErrDuplicateSlug
	}
	return err
}

// GetSlug resolves a public slug to its site. Returns models.ErrSiteNotFound
// for unknown slugs.
func (s *Store) GetSlug(ctx context.Context, slug string) (*models.Site, error) {
	var site models.Site
	if err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&site).Error; err != nil {
		return nil, convertNotFoundError(err, models.ErrSiteNotFound)
	}
	return &site, nil
}

// GetSites lists the sites owned by email.
func (s *Store) GetSites(ctx context.Context, email string) ([]models.Site, error) {
	var sites []models.Site
	err := s.db.WithContext(ctx).Where("owner = ?", email).Find(&sites).Error
	return sites, err
}

// GetSiteOwner returns the owner email of a site.
func (s *Store) GetSiteOwner(ctx context.Context, siteID string) (string, error) {
	var site models.Site
	if err := s.db.WithContext(ctx).Select("owner").Where("id = ?", siteID).First(&site).Error; err != nil {
		return "", convertNotFoundError(err, models.ErrSiteNotFound)
	}
	return site.Owner, nil
}

// GetSiteSlug returns the slug of a site.
func (s *Store) GetSiteSlug(ctx context.Context, siteID string) (string, error) {
	var site models.Site
	if err := s.db.WithContext(ctx).Select("slug").Where("id = ?", siteID).First(&site).Error; err != nil {
		return "", convertNotFoundError(err, models.ErrSiteNotFound)
	}
	return site.Slug, nil
}

// NewPublishFile upserts a published file by (slug, path), stamping both
// times with the current time in milliseconds.
func (s *Store) NewPublishFile(ctx context.Context, file *models.PublishFile) error {
	now := time.Now().UnixMilli()
	file.CTime = now
	file.MTime = now

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slug"}, {Name: "path"}},
			UpdateAll: true,
		}).
		Create(file).Error
}

// RemovePublishFile hard-deletes a published file by (slug, path).
func (s *Store) RemovePublishFile(ctx context.Context, slug, path string) error {
	return s.db.WithContext(ctx).
		Where("slug = ? AND path = ?", slug, path).
		Delete(&models.PublishFile{}).Error
}

// GetPublishFiles lists every file published under a slug.
func (s *Store) GetPublishFiles(ctx context.Context, slug string) ([]models.PublishFile, error) {
	var files []models.PublishFile
	err := s.db.WithContext(ctx).Where("slug = ?", slug).Find(&files).Error
	return files, err
}

// GetPublishFile reads a single published file by (slug, path).
func (s *Store) GetPublishFile(ctx context.Context, slug, path string) (*models.PublishFile, error) {
	var file models.PublishFile
	if err := s.db.WithContext(ctx).Where("slug = ? AND path = ?", slug, path).First(&file).Error; err != nil {
		return nil, convertNotFoundError(err, models.ErrPublishFileNotFound)
	}
	return &file, nil
}

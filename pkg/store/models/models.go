// Package models defines the persisted entities of the sync backend and the
// sentinel errors the store layer reports.
package models

// User is an account. Email is the natural key; tokens and vault ownership
// reference it directly.
type User struct {
	Email        string `gorm:"column:email;primaryKey"`
	PasswordHash string `gorm:"column:password_hash;not null"`
	Name         string `gorm:"column:name"`
	License      string `gorm:"column:license"`
}

// TableName overrides the default table name.
func (User) TableName() string { return "users" }

// Vault is one synchronized vault. Version is a monotonic counter bumped by
// mutation sessions; clients compare it against their last-seen value to
// decide whether they need a catch-up.
type Vault struct {
	ID        string `gorm:"column:id;primaryKey"`
	UserEmail string `gorm:"column:user_email;index;not null"`
	Created   int64  `gorm:"column:created"`
	Host      string `gorm:"column:host"`
	Name      string `gorm:"column:name"`
	Password  string `gorm:"column:password"`
	Salt      string `gorm:"column:salt"`
	Size      int64  `gorm:"column:size"`
	Version   int64  `gorm:"column:version"`
	Keyhash   string `gorm:"column:keyhash"`
}

func (Vault) TableName() string { return "vaults" }

// Share grants a non-owner account access to a vault.
type Share struct {
	UID      string `gorm:"column:uid;primaryKey"`
	Email    string `gorm:"column:email;index"`
	Name     string `gorm:"column:name"`
	VaultID  string `gorm:"column:vault_id;index"`
	Accepted bool   `gorm:"column:accepted"`
}

func (Share) TableName() string { return "shares" }

// File is one version of one path in a vault. Exactly one row per
// (vault_id, path) carries newest=true; older rows form the history.
// Data stays NULL until the upload's binary pieces complete, so a row with
// size != 0 and NULL data marks an aborted upload.
type File struct {
	UID        int64  `gorm:"column:uid;primaryKey;autoIncrement"`
	VaultID    string `gorm:"column:vault_id;index"`
	Hash       string `gorm:"column:hash"`
	Path       string `gorm:"column:path;index"`
	Extension  string `gorm:"column:extension"`
	Size       int64  `gorm:"column:size"`
	Created    int64  `gorm:"column:created"`
	Modified   int64  `gorm:"column:modified"`
	Folder     bool   `gorm:"column:folder"`
	Deleted    bool   `gorm:"column:deleted"`
	Data       []byte `gorm:"column:data"`
	Newest     bool   `gorm:"column:newest;default:true"`
	IsSnapshot bool   `gorm:"column:is_snapshot;default:false"`
}

func (File) TableName() string { return "files" }

// Site is a published site owned by one account. Slug is the public handle.
type Site struct {
	ID      string `gorm:"column:id;primaryKey"`
	Host    string `gorm:"column:host"`
	Created int64  `gorm:"column:created"`
	Owner   string `gorm:"column:owner;index"`
	Slug    string `gorm:"column:slug;uniqueIndex"`
	Options string `gorm:"column:options"`
	Size    int64  `gorm:"column:size"`
}

func (Site) TableName() string { return "sites" }

// PublishFile is one published file. The slug column carries the site id,
// not the public slug; the public routes resolve slug to site first.
type PublishFile struct {
	Slug    string `gorm:"column:slug;primaryKey"`
	Path    string `gorm:"column:path;primaryKey"`
	CTime   int64  `gorm:"column:ctime"`
	MTime   int64  `gorm:"column:mtime"`
	Hash    string `gorm:"column:hash"`
	Size    int64  `gorm:"column:size"`
	Data    string `gorm:"column:data"`
	Deleted bool   `gorm:"column:deleted"`
}

func (PublishFile) TableName() string { return "publish_files" }

// AllModels returns every model for schema migration.
func AllModels() []any {
	return []any{
		&User{},
		&Vault{},
		&Share{},
		&File{},
		&Site{},
		&PublishFile{},
	}
}

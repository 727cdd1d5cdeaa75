package kgorm

import (
	"slices"
	"time"

	"github.com/srmgate/srmgate/core/login"
)

type gormRecord struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false"`
	Payload   []byte    `gorm:"not null"`
	CreatedAt time.Time `gorm:"index"`
}

func (gormRecord) TableName() string { return "identity_records" }

type gormAccount struct {
	Username  string `gorm:"primaryKey"`
	UID       int64  `gorm:"index"`
	GID       int64
	GIDs      []int64 `gorm:"serializer:json"`
	Root      string
	Home      string
	ReadOnly  bool
	Disabled  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (gormAccount) TableName() string { return "accounts" }

type gormAccountMapping struct {
	Kind     string `gorm:"primaryKey"`
	Name     string `gorm:"primaryKey"`
	Username string `gorm:"index;not null"`
}

func (gormAccountMapping) TableName() string { return "account_mappings" }

func fromLoginAccount(a *login.Account) *gormAccount {
	return &gormAccount{
		Username: a.Username,
		UID:      a.UID,
		GID:      a.GID,
		GIDs:     slices.Clone(a.GIDs),
		Root:     a.Root,
		Home:     a.Home,
		ReadOnly: a.ReadOnly,
		Disabled: a.Disabled,
	}
}

func toLoginAccount(a *gormAccount) *login.Account {
	return &login.Account{
		Username: a.Username,
		UID:      a.UID,
		GID:      a.GID,
		GIDs:     slices.Clone(a.GIDs),
		Root:     a.Root,
		Home:     a.Home,
		ReadOnly: a.ReadOnly,
		Disabled: a.Disabled,
	}
}

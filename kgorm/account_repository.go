package kgorm

import (
	"context"
	"errors"
	"fmt"

	"github.com/srmgate/srmgate/core/login"
	"github.com/srmgate/srmgate/core/principal"
	"gorm.io/gorm"
)

// AccountRepository handles account and principal mapping persistence. It
// is the login.AccountStore of database deployments.
type AccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// SaveAccount creates or replaces an account.
func (r *AccountRepository) SaveAccount(ctx context.Context, a *login.Account) error {
	if a.Username == "" {
		return errors.New("gorm: account needs a user name")
	}
	return r.db.WithContext(ctx).Save(fromLoginAccount(a)).Error
}

// MapPrincipal maps p to the account username.
func (r *AccountRepository) MapPrincipal(ctx context.Context, p principal.Principal, username string) error {
	if _, err := r.account(ctx, username); err != nil {
		return fmt.Errorf("gorm: map %s: %w", p, err)
	}
	m := &gormAccountMapping{Kind: string(p.Kind), Name: p.Name, Username: username}
	return r.db.WithContext(ctx).Save(m).Error
}

// UnmapPrincipal removes the mapping of p.
func (r *AccountRepository) UnmapPrincipal(ctx context.Context, p principal.Principal) error {
	return r.db.WithContext(ctx).
		Delete(&gormAccountMapping{}, "kind = ? AND name = ?", string(p.Kind), p.Name).Error
}

func (r *AccountRepository) FindAccount(ctx context.Context, p principal.Principal) (*login.Account, error) {
	username := p.Name
	if p.Kind != principal.KindUserName {
		var m gormAccountMapping
		res := r.db.WithContext(ctx).
			Where("kind = ? AND name = ?", string(p.Kind), p.Name).
			Limit(1).Find(&m)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, login.ErrAccountNotFound
		}
		username = m.Username
	}
	return r.account(ctx, username)
}

// ListAccounts returns all accounts ordered by user name.
func (r *AccountRepository) ListAccounts(ctx context.Context) ([]*login.Account, error) {
	var rows []gormAccount
	if err := r.db.WithContext(ctx).Order("username").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*login.Account, 0, len(rows))
	for i := range rows {
		out = append(out, toLoginAccount(&rows[i]))
	}
	return out, nil
}

func (r *AccountRepository) account(ctx context.Context, username string) (*login.Account, error) {
	var a gormAccount
	res := r.db.WithContext(ctx).Where("username = ?", username).Limit(1).Find(&a)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, login.ErrAccountNotFound
	}
	return toLoginAccount(&a), nil
}

package srmgate

import (
	"crypto/x509"

	"github.com/srmgate/srmgate/core/cas"
	"github.com/srmgate/srmgate/core/codec"
	"github.com/srmgate/srmgate/core/identity"
	"github.com/srmgate/srmgate/core/login"
	"github.com/srmgate/srmgate/kgorm"
	"gorm.io/gorm"
)

// Default types for convenience
type Identity = identity.Identity
type Account = login.Account

// NewDefaultStore creates a content-addressed store over the identity
// record table in db.
func NewDefaultStore(db *gorm.DB) *cas.Store {
	return kgorm.NewDefaultStore(db)
}

// NewDefaultManager creates a Manager using the principal codec, accounts
// from db and certificate logins against roots.
func NewDefaultManager(db *gorm.DB, roots *x509.CertPool, refs ...kgorm.Reference) *identity.Manager {
	return kgorm.NewDefaultManager(db, codec.PrincipalCodec{}, refs, login.WithRoots(roots))
}

// NewMemoryManager creates a Manager whose records live in process memory.
// Records do not survive a restart, so it only suits tests and tools.
func NewMemoryManager(accounts login.AccountStore, c codec.Codec, opts ...identity.Option) (*identity.Manager, *cas.Store) {
	store := cas.NewStore(cas.NewMemoryRecordStore())
	return identity.NewManager(store, login.NewStrategy(accounts), c, opts...), store
}

package kgorm

import (
	"github.com/srmgate/srmgate/core/cas"
	"github.com/srmgate/srmgate/core/codec"
	"github.com/srmgate/srmgate/core/identity"
	"github.com/srmgate/srmgate/core/login"
	"gorm.io/gorm"
)

// NewDefaultStore creates a content-addressed store backed by the identity
// record table.
func NewDefaultStore(db *gorm.DB, opts ...cas.Option) *cas.Store {
	return cas.NewStore(NewRecordRepository(db), opts...)
}

// NewDefaultManager creates an identity Manager whose records, accounts and
// reference index all live in db.
func NewDefaultManager(db *gorm.DB, c codec.Codec, refs []Reference, strategyOpts ...login.StrategyOption) *identity.Manager {
	strategy := login.NewStrategy(NewAccountRepository(db), strategyOpts...)
	return identity.NewManager(NewDefaultStore(db), strategy, c,
		identity.WithReferenceIndex(NewReferenceIndex(db, refs)))
}

// Package core provides the foundation for srmgate identity persistence.
//
// srmgate stores the identities of an SRM storage gateway by content: a
// logged-in identity is encoded into a byte record whose id is derived from
// a keyed hash of the bytes, so equal logins share a record and long-lived
// requests can reference their owner by a single integer column. When a
// request is picked up again the identity is restored from its record and
// logged in anew.
//
// # Subpackages
//
//   - cas: content-addressed record store with canonical handles and GC
//   - identity: Manager that authorizes, restores and collects identities
//   - codec: record encodings (certificate chain or principal set)
//   - login: certificate, session token and account based login
//   - principal: principals, login attributes and subjects
//   - domain: storage contracts and sentinel errors
//   - config, logger, telemetry: ambient service plumbing
//
// # Quick Start
//
//	repo, _ := kgorm.Open("sqlite", "srmgate.db", nil, false)
//	store := cas.NewStore(repo.Records())
//	strategy := login.NewStrategy(repo.Accounts(), login.WithRoots(roots))
//	manager := identity.NewManager(store, strategy, codec.PrincipalCodec{},
//	    identity.WithReferenceIndex(repo.References(refs)))
//
//	id, err := manager.Authorize(ctx, &principal.Subject{Chain: chain}, peerAddr)
//	recordID, _ := id.ID()
//	// ... later, maybe in another process
//	id, err = manager.Find(ctx, peerAddr, recordID)
package core

import (
	"github.com/srmgate/srmgate/core/identity"
	"github.com/srmgate/srmgate/core/principal"
)

// Identity is a live user identity.
type Identity = identity.Identity

// Subject is the material presented to a login.
type Subject = principal.Subject

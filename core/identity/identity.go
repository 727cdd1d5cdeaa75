// Package identity persists logged-in identities by content and restores
// them later.
//
// Manager.Authorize logs a subject in, encodes the result with the
// deployment's codec and stores it in the content-addressed store; the
// returned Identity holds the record handle, so the record stays alive for
// as long as the identity is reachable. Manager.Find restores an identity
// from a record id and re-runs the login; when that fails the identity is
// degraded instead of rejected.
package identity

import (
	"fmt"
	"slices"

	"github.com/srmgate/srmgate/core/cas"
	"github.com/srmgate/srmgate/core/principal"
)

// Identity is a live, in-memory user identity.
type Identity struct {
	handle      *cas.Handle
	principals  principal.Set
	attributes  principal.Attributes
	readOnly    bool
	root        string
	loggedIn    bool
	displayName string
}

// Handle returns the record handle, nil for anonymous identities.
func (i *Identity) Handle() *cas.Handle { return i.handle }

// ID returns the record id backing the identity.
func (i *Identity) ID() (int64, bool) {
	if i.handle == nil {
		return 0, false
	}
	return i.handle.ID(), true
}

func (i *Identity) Principals() principal.Set       { return slices.Clone(i.principals) }
func (i *Identity) Attributes() principal.Attributes { return slices.Clone(i.attributes) }
func (i *Identity) ReadOnly() bool                   { return i.readOnly }
func (i *Identity) Root() string                     { return i.root }
func (i *Identity) LoggedIn() bool                   { return i.loggedIn }
func (i *Identity) DisplayName() string              { return i.displayName }

// Home returns the home directory granted by the login, if any.
func (i *Identity) Home() string {
	home, _ := i.attributes.Get(principal.AttrHome)
	return home
}

func (i *Identity) String() string {
	state := "logged-in"
	if !i.loggedIn {
		state = "not-logged-in"
	}
	if i.handle == nil {
		return fmt.Sprintf("%s (%s)", i.displayName, state)
	}
	return fmt.Sprintf("%s (%s, %s)", i.displayName, state, i.handle)
}

func newLoggedIn(h *cas.Handle, principals principal.Set, attrs principal.Attributes) *Identity {
	return &Identity{
		handle:      h,
		principals:  principals,
		attributes:  attrs,
		readOnly:    attrs.ReadOnly(),
		root:        attrs.Root(),
		loggedIn:    true,
		displayName: principals.DisplayName(),
	}
}

const anonymousName = "anonymous"

func newAnonymous() *Identity {
	return &Identity{readOnly: true, root: "/", displayName: anonymousName}
}

func newDegraded(h *cas.Handle, display principal.Set, name string) *Identity {
	return &Identity{
		handle:      h,
		principals:  display,
		readOnly:    true,
		root:        "/",
		displayName: name,
	}
}

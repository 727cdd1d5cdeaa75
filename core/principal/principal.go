// Package principal provides the principal, login attribute and subject
// types exchanged between the login authority, the identity codecs and the
// identity manager.
//
// # Principals
//
// A Principal is a typed name: a certificate DN, a user name, a numeric uid
// or gid, a VOMS FQAN, or the network origin of a request. Principals are
// plain values so they can be compared, sorted and serialized without
// reflection.
//
// # Subjects
//
// A Subject is the material presented to a login: principals gathered so far
// plus an optional certificate chain and an optional session token.
package principal

import (
	"crypto/x509"
	"net/netip"
	"slices"
	"strconv"
	"strings"
)

// Kind identifies the type of a Principal.
type Kind string

const (
	KindDN       Kind = "dn"
	KindUserName Kind = "username"
	KindUID      Kind = "uid"
	KindGID      Kind = "gid"
	KindFQAN     Kind = "fqan"
	KindOrigin   Kind = "origin"
)

// Principal is a typed name attached to a subject.
type Principal struct {
	Kind    Kind   `cbor:"1,keyasint"`
	Name    string `cbor:"2,keyasint"`
	Primary bool   `cbor:"3,keyasint,omitempty"`
}

func DN(name string) Principal       { return Principal{Kind: KindDN, Name: name} }
func UserName(name string) Principal { return Principal{Kind: KindUserName, Name: name} }
func UID(uid int64) Principal        { return Principal{Kind: KindUID, Name: strconv.FormatInt(uid, 10)} }

func GID(gid int64, primary bool) Principal {
	return Principal{Kind: KindGID, Name: strconv.FormatInt(gid, 10), Primary: primary}
}

func FQAN(fqan string, primary bool) Principal {
	return Principal{Kind: KindFQAN, Name: fqan, Primary: primary}
}

func Origin(addr netip.Addr) Principal {
	return Principal{Kind: KindOrigin, Name: addr.String()}
}

// String returns the canonical text form, e.g. "gid:1000!" for a primary gid.
func (p Principal) String() string {
	s := string(p.Kind) + ":" + p.Name
	if p.Primary {
		s += "!"
	}
	return s
}

// Set is an ordered collection of principals without duplicates.
type Set []Principal

// Add appends p unless an equal principal is already present.
func (s Set) Add(p Principal) Set {
	if slices.Contains(s, p) {
		return s
	}
	return append(s, p)
}

// First returns the first principal of kind k.
func (s Set) First(k Kind) (Principal, bool) {
	for _, p := range s {
		if p.Kind == k {
			return p, true
		}
	}
	return Principal{}, false
}

// OfKind returns every principal of kind k.
func (s Set) OfKind(k Kind) Set {
	var out Set
	for _, p := range s {
		if p.Kind == k {
			out = append(out, p)
		}
	}
	return out
}

// Without returns a copy of s without principals of kind k.
func (s Set) Without(k Kind) Set {
	var out Set
	for _, p := range s {
		if p.Kind != k {
			out = append(out, p)
		}
	}
	return out
}

// Sorted returns a copy of s sorted by string form.
func (s Set) Sorted() Set {
	out := slices.Clone(s)
	slices.SortFunc(out, func(a, b Principal) int {
		return strings.Compare(a.String(), b.String())
	})
	return out
}

// DisplayName picks the most human-readable principal: the DN, then the
// user name, then whatever comes first.
func (s Set) DisplayName() string {
	if p, ok := s.First(KindDN); ok {
		return p.Name
	}
	if p, ok := s.First(KindUserName); ok {
		return p.Name
	}
	if len(s) > 0 {
		return s[0].String()
	}
	return ""
}

// Subject is the material presented to a login.
type Subject struct {
	Principals Set

	// Chain is the client certificate chain, leaf first.
	Chain []*x509.Certificate

	// Token is an established login session token.
	Token string

	// Restored marks material read back from a persisted record. Its
	// principals were authenticated when the record was written.
	Restored bool
}

// Clone returns a copy of s whose principal set can be extended without
// touching the original.
func (s *Subject) Clone() *Subject {
	if s == nil {
		return &Subject{}
	}
	return &Subject{
		Principals: slices.Clone(s.Principals),
		Chain:      slices.Clone(s.Chain),
		Token:      s.Token,
		Restored:   s.Restored,
	}
}

// Package codec holds the payload encodings used to persist identities.
//
// A deployment picks one codec at start-up and uses it for every record; the
// payload carries no codec tag. Both codecs round-trip the material needed to
// re-run a login:
//
//   - ChainCodec stores the client certificate chain as a PkiPath.
//   - PrincipalCodec stores the principals and login attributes produced by
//     the original login, which also covers logins without a certificate.
//
// Decoding failures always wrap domain.ErrCorruptRecord.
package codec

import (
	"crypto/x509"
	"fmt"

	"github.com/srmgate/srmgate/core/domain"
	"github.com/srmgate/srmgate/core/principal"
)

// Material is what a codec persists and restores.
type Material struct {
	// Chain is the client certificate chain, leaf first.
	Chain      []*x509.Certificate
	Principals principal.Set
	Attributes principal.Attributes
}

// Subject returns the login material to re-authenticate with.
func (m *Material) Subject() *principal.Subject {
	return &principal.Subject{Principals: m.Principals, Chain: m.Chain, Restored: true}
}

// DisplayName returns the best-effort human-readable principal.
func (m *Material) DisplayName() string {
	if name := m.Principals.DisplayName(); name != "" {
		return name
	}
	if dn, ok := principal.ChainDN(m.Chain); ok {
		return dn
	}
	return ""
}

// Codec converts Material to and from record payloads.
type Codec interface {
	Name() string
	Encode(m *Material) ([]byte, error)
	Decode(payload []byte) (*Material, error)
}

// New returns the codec registered under name: "chain" or "principal".
func New(name string) (Codec, error) {
	switch name {
	case "chain":
		return ChainCodec{}, nil
	case "principal", "":
		return PrincipalCodec{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("codec: %s: %w", fmt.Sprintf(format, args...), domain.ErrCorruptRecord)
}

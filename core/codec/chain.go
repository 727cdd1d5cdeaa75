package codec

import (
	"crypto/x509"
	"errors"
	"slices"

	"github.com/srmgate/srmgate/core/principal"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// ChainCodec encodes the certificate chain as a PkiPath: a DER SEQUENCE of
// certificates ordered from the trust anchor side down to the leaf.
type ChainCodec struct{}

func (ChainCodec) Name() string { return "chain" }

func (ChainCodec) Encode(m *Material) ([]byte, error) {
	if len(m.Chain) == 0 {
		return nil, errors.New("codec: chain codec needs a certificate chain")
	}
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		for i := len(m.Chain) - 1; i >= 0; i-- {
			b.AddBytes(m.Chain[i].Raw)
		}
	})
	return b.Bytes()
}

func (ChainCodec) Decode(payload []byte) (*Material, error) {
	in := cryptobyte.String(payload)
	var seq cryptobyte.String
	if !in.ReadASN1(&seq, asn1.SEQUENCE) {
		return nil, corrupt("malformed PkiPath")
	}
	if !in.Empty() {
		return nil, corrupt("%d trailing bytes after PkiPath", len(in))
	}

	var chain []*x509.Certificate
	for !seq.Empty() {
		var der cryptobyte.String
		if !seq.ReadASN1Element(&der, asn1.SEQUENCE) {
			return nil, corrupt("malformed certificate %d", len(chain))
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, corrupt("certificate %d: %v", len(chain), err)
		}
		chain = append(chain, cert)
	}
	if len(chain) == 0 {
		return nil, corrupt("empty PkiPath")
	}
	slices.Reverse(chain)

	m := &Material{Chain: chain}
	if dn, ok := principal.ChainDN(chain); ok {
		m.Principals = principal.Set{principal.DN(dn)}
	}
	return m, nil
}

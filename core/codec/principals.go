package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/srmgate/srmgate/core/principal"
	"golang.org/x/crypto/cryptobyte"
)

const (
	principalMagic   = "SRMP"
	principalVersion = 1
)

var knownKinds = map[principal.Kind]bool{
	principal.KindDN:       true,
	principal.KindUserName: true,
	principal.KindUID:      true,
	principal.KindGID:      true,
	principal.KindFQAN:     true,
	principal.KindOrigin:   true,
}

var knownAttributes = map[principal.AttributeKind]bool{
	principal.AttrReadOnly: true,
	principal.AttrRoot:     true,
	principal.AttrHome:     true,
}

// entry carries exactly one of its fields.
type entry struct {
	Principal *principal.Principal `cbor:"1,keyasint,omitempty"`
	Attribute *principal.Attribute `cbor:"2,keyasint,omitempty"`
}

var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}

// PrincipalCodec stores principals and login attributes.
//
// Layout: the magic "SRMP", a version byte, a signed 32-bit big-endian entry
// count and then count entries, each a 32-bit length prefix followed by a
// deterministic CBOR map. Principals come first sorted by string form, then
// attributes sorted the same way, so equal material always yields equal
// bytes.
type PrincipalCodec struct{}

func (PrincipalCodec) Name() string { return "principal" }

func (PrincipalCodec) Encode(m *Material) ([]byte, error) {
	var entries []entry
	for _, p := range m.Principals.Sorted() {
		entries = append(entries, entry{Principal: &p})
	}
	for _, a := range m.Attributes.Sorted() {
		entries = append(entries, entry{Attribute: &a})
	}

	var b cryptobyte.Builder
	b.AddBytes([]byte(principalMagic))
	b.AddUint8(principalVersion)
	b.AddUint32(uint32(len(entries)))
	for _, e := range entries {
		raw, err := encMode.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("codec: encode entry: %w", err)
		}
		b.AddUint32LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddBytes(raw)
		})
	}
	return b.Bytes()
}

func (PrincipalCodec) Decode(payload []byte) (*Material, error) {
	in := cryptobyte.String(payload)

	var magic []byte
	if !in.ReadBytes(&magic, len(principalMagic)) || string(magic) != principalMagic {
		return nil, corrupt("bad magic")
	}
	var version uint8
	if !in.ReadUint8(&version) {
		return nil, corrupt("truncated header")
	}
	if version != principalVersion {
		return nil, corrupt("unsupported version %d", version)
	}
	var rawCount uint32
	if !in.ReadUint32(&rawCount) {
		return nil, corrupt("truncated header")
	}
	count := int32(rawCount)
	if count < 0 {
		return nil, corrupt("negative entry count %d", count)
	}
	// Every entry needs at least its length prefix.
	if int64(count)*4 > int64(len(in)) {
		return nil, corrupt("entry count %d exceeds payload", count)
	}

	m := &Material{}
	for i := range int(count) {
		var (
			n   uint32
			raw []byte
		)
		if !in.ReadUint32(&n) || !in.ReadBytes(&raw, int(n)) {
			return nil, corrupt("entry %d truncated", i)
		}
		var e entry
		if err := decMode.Unmarshal(raw, &e); err != nil {
			return nil, corrupt("entry %d: %v", i, err)
		}
		switch {
		case e.Principal != nil && e.Attribute == nil:
			if !knownKinds[e.Principal.Kind] {
				return nil, corrupt("entry %d: unknown principal kind %q", i, e.Principal.Kind)
			}
			m.Principals = append(m.Principals, *e.Principal)
		case e.Attribute != nil && e.Principal == nil:
			if !knownAttributes[e.Attribute.Kind] {
				return nil, corrupt("entry %d: unknown attribute %q", i, e.Attribute.Kind)
			}
			m.Attributes = append(m.Attributes, *e.Attribute)
		default:
			return nil, corrupt("entry %d: expected one principal or attribute", i)
		}
	}
	if !in.Empty() {
		return nil, corrupt("%d trailing bytes", len(in))
	}
	return m, nil
}

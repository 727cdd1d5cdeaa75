package principal

import (
	"slices"
	"strconv"
	"strings"
)

// AttributeKind identifies a login attribute.
type AttributeKind string

const (
	AttrReadOnly AttributeKind = "read-only"
	AttrRoot     AttributeKind = "root"
	AttrHome     AttributeKind = "home"
)

// Attribute is a property a login grants on top of the principals.
type Attribute struct {
	Kind  AttributeKind `cbor:"1,keyasint"`
	Value string        `cbor:"2,keyasint"`
}

func ReadOnly(ro bool) Attribute      { return Attribute{Kind: AttrReadOnly, Value: strconv.FormatBool(ro)} }
func RootDirectory(p string) Attribute { return Attribute{Kind: AttrRoot, Value: p} }
func HomeDirectory(p string) Attribute { return Attribute{Kind: AttrHome, Value: p} }

func (a Attribute) String() string { return string(a.Kind) + "=" + a.Value }

// Attributes is a list of login attributes.
type Attributes []Attribute

// Get returns the value of the first attribute of kind k.
func (as Attributes) Get(k AttributeKind) (string, bool) {
	for _, a := range as {
		if a.Kind == k {
			return a.Value, true
		}
	}
	return "", false
}

// ReadOnly reports whether a read-only attribute is set to true.
func (as Attributes) ReadOnly() bool {
	v, ok := as.Get(AttrReadOnly)
	if !ok {
		return false
	}
	ro, err := strconv.ParseBool(v)
	return err == nil && ro
}

// Root returns the root directory, "/" when unset.
func (as Attributes) Root() string {
	if v, ok := as.Get(AttrRoot); ok && v != "" {
		return v
	}
	return "/"
}

// Sorted returns a copy sorted by string form.
func (as Attributes) Sorted() Attributes {
	out := slices.Clone(as)
	slices.SortFunc(out, func(a, b Attribute) int {
		return strings.Compare(a.String(), b.String())
	})
	return out
}

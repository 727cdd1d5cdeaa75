package principal

import (
	"net/netip"
	"testing"

	"github.com/srmgate/srmgate/internal/testpki"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAddDeduplicates(t *testing.T) {
	var s Set
	s = s.Add(UserName("alice"))
	s = s.Add(UID(1000))
	s = s.Add(UserName("alice"))

	assert.Len(t, s, 2)
}

func TestSetSortedIsDeterministic(t *testing.T) {
	a := Set{GID(100, true), UserName("alice"), DN("/C=DE/CN=Alice"), UID(1000)}
	b := Set{UID(1000), DN("/C=DE/CN=Alice"), GID(100, true), UserName("alice")}

	assert.Equal(t, a.Sorted(), b.Sorted())
	assert.Equal(t, "dn:/C=DE/CN=Alice", a.Sorted()[0].String())
	assert.Equal(t, GID(100, true), a[0], "Sorted must not reorder the receiver")
}

func TestPrincipalString(t *testing.T) {
	assert.Equal(t, "gid:100!", GID(100, true).String())
	assert.Equal(t, "gid:101", GID(101, false).String())
	assert.Equal(t, "origin:192.0.2.7", Origin(netip.MustParseAddr("192.0.2.7")).String())
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		set  Set
		want string
	}{
		{"dn wins", Set{UserName("alice"), DN("/CN=Alice")}, "/CN=Alice"},
		{"username next", Set{UID(1), UserName("alice")}, "alice"},
		{"fallback", Set{UID(1)}, "uid:1"},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.set.DisplayName())
		})
	}
}

func TestAttributes(t *testing.T) {
	attrs := Attributes{ReadOnly(true), RootDirectory("/pnfs/data")}
	assert.True(t, attrs.ReadOnly())
	assert.Equal(t, "/pnfs/data", attrs.Root())

	var none Attributes
	assert.False(t, none.ReadOnly())
	assert.Equal(t, "/", none.Root())
}

func TestChainDN(t *testing.T) {
	ca := testpki.NewCA(t, "GridKa")
	user := testpki.NewUser(t, ca, "Alice")
	proxy := testpki.NewProxy(t, user)

	assert.True(t, IsProxy(proxy.Cert))
	assert.False(t, IsProxy(user.Cert))

	dn, ok := ChainDN(testpki.Chain(proxy, user))
	require.True(t, ok)
	assert.Equal(t, "/C=DE/O=GridKa/CN=Alice", dn)

	_, ok = ChainDN(testpki.Chain(proxy))
	assert.False(t, ok)
}

func TestSubjectClone(t *testing.T) {
	orig := &Subject{Principals: Set{UserName("alice")}, Token: "t"}
	clone := orig.Clone()
	clone.Principals = clone.Principals.Add(UID(1))

	assert.Len(t, orig.Principals, 1)
	assert.Equal(t, "t", clone.Token)

	var nilSubject *Subject
	assert.NotNil(t, nilSubject.Clone())
}

package identity

import (
	"context"
	"errors"
	"net/netip"
	"runtime"
	"testing"
	"time"

	"github.com/srmgate/srmgate/core/cas"
	"github.com/srmgate/srmgate/core/codec"
	"github.com/srmgate/srmgate/core/domain"
	"github.com/srmgate/srmgate/core/login"
	"github.com/srmgate/srmgate/core/principal"
	"github.com/srmgate/srmgate/internal/testpki"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aliceDN = "/C=DE/O=GridKa/CN=Alice"

type env struct {
	records  *cas.MemoryRecordStore
	store    *cas.Store
	accounts *login.MemoryAccounts
	tokens   *login.SessionTokens
	ca       *testpki.Entity
	user     *testpki.Entity
	manager  *Manager
}

func newEnv(t *testing.T, c codec.Codec, opts ...Option) *env {
	t.Helper()
	ctx := context.Background()
	e := &env{
		records:  cas.NewMemoryRecordStore(),
		accounts: login.NewMemoryAccounts(),
		tokens:   login.NewSessionTokens("s3cret", time.Hour),
		ca:       testpki.NewCA(t, "GridKa"),
	}
	e.user = testpki.NewUser(t, e.ca, "Alice")
	e.store = cas.NewStore(e.records)

	require.NoError(t, e.accounts.SaveAccount(ctx, &login.Account{
		Username: "alice", UID: 1000, GID: 1000, Root: "/pnfs/gridka", Home: "/pnfs/gridka/home/alice",
	}))
	require.NoError(t, e.accounts.MapPrincipal(ctx, principal.DN(aliceDN), "alice"))

	strategy := login.NewStrategy(e.accounts, login.WithRoots(e.ca.Pool()), login.WithSessionTokens(e.tokens))
	e.manager = NewManager(e.store, strategy, c, append([]Option{WithResolver(nil)}, opts...)...)
	return e
}

// session returns a subject presenting a session token for username.
func (e *env) session(t *testing.T, username string) *principal.Subject {
	t.Helper()
	token, err := e.tokens.Issue(username)
	require.NoError(t, err)
	return &principal.Subject{Token: token}
}

func (e *env) disableAlice(t *testing.T) {
	t.Helper()
	require.NoError(t, e.accounts.SaveAccount(context.Background(), &login.Account{
		Username: "alice", UID: 1000, GID: 1000, Disabled: true,
	}))
}

func TestAuthorizeAndFind(t *testing.T) {
	for _, c := range []codec.Codec{codec.PrincipalCodec{}, codec.ChainCodec{}} {
		t.Run(c.Name(), func(t *testing.T) {
			ctx := context.Background()
			e := newEnv(t, c)

			id, err := e.manager.Authorize(ctx, &principal.Subject{Chain: testpki.Chain(e.user)}, "192.0.2.7:8443")
			require.NoError(t, err)
			assert.True(t, id.LoggedIn())
			assert.False(t, id.ReadOnly())
			assert.Equal(t, "/pnfs/gridka", id.Root())
			assert.Equal(t, "/pnfs/gridka/home/alice", id.Home())
			assert.Equal(t, aliceDN, id.DisplayName())
			assert.Contains(t, id.Principals(), principal.Origin(netip.MustParseAddr("192.0.2.7")))

			recordID, ok := id.ID()
			require.True(t, ok)

			restored, err := e.manager.Find(ctx, "", recordID)
			require.NoError(t, err)
			assert.True(t, restored.LoggedIn())
			assert.Same(t, id.Handle(), restored.Handle())
			assert.Contains(t, restored.Principals(), principal.UserName("alice"))
			assert.Equal(t, "/pnfs/gridka", restored.Root())
		})
	}
}

func TestAuthorizeSameLoginSharesRecord(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, codec.PrincipalCodec{})
	a, err := e.manager.Authorize(ctx, e.session(t, "alice"), "")
	require.NoError(t, err)
	b, err := e.manager.Authorize(ctx, e.session(t, "alice"), "")
	require.NoError(t, err)

	assert.Same(t, a.Handle(), b.Handle())
	assert.Equal(t, 1, e.records.Len())
}

func TestFindDegradesWhenLoginFails(t *testing.T) {
	for _, c := range []codec.Codec{codec.PrincipalCodec{}, codec.ChainCodec{}} {
		t.Run(c.Name(), func(t *testing.T) {
			ctx := context.Background()
			e := newEnv(t, c)

			id, err := e.manager.Authorize(ctx, &principal.Subject{Chain: testpki.Chain(e.user)}, "")
			require.NoError(t, err)
			recordID, _ := id.ID()

			e.disableAlice(t)

			restored, err := e.manager.Find(ctx, "", recordID)
			require.NoError(t, err)
			assert.False(t, restored.LoggedIn())
			assert.True(t, restored.ReadOnly())
			assert.Equal(t, "/", restored.Root())
			assert.Equal(t, aliceDN, restored.DisplayName())
			assert.Equal(t, principal.Set{principal.DN(aliceDN)}, restored.Principals())
			assert.Same(t, id.Handle(), restored.Handle())
		})
	}
}

func TestAuthorizeRejectsClaimedPrincipals(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, codec.PrincipalCodec{})

	tests := map[string]*principal.Subject{
		"dn":       {Principals: principal.Set{principal.DN(aliceDN)}},
		"username": {Principals: principal.Set{principal.UserName("alice")}},
		"restored": {Principals: principal.Set{principal.DN(aliceDN)}, Restored: true},
	}
	for name, subject := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := e.manager.Authorize(ctx, subject, "")
			assert.ErrorIs(t, err, domain.ErrPermissionDenied)
		})
	}
	assert.Equal(t, 0, e.records.Len())
}

func TestFindReplacesOriginWithHint(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, codec.PrincipalCodec{})

	id, err := e.manager.Authorize(ctx, &principal.Subject{Chain: testpki.Chain(e.user)}, "192.0.2.7")
	require.NoError(t, err)
	recordID, _ := id.ID()

	restored, err := e.manager.Find(ctx, "198.51.100.4:8443", recordID)
	require.NoError(t, err)
	assert.True(t, restored.LoggedIn())
	assert.Equal(t, principal.Set{principal.Origin(netip.MustParseAddr("198.51.100.4"))},
		restored.Principals().OfKind(principal.KindOrigin))

	restored, err = e.manager.Find(ctx, "", recordID)
	require.NoError(t, err)
	assert.Equal(t, principal.Set{principal.Origin(netip.MustParseAddr("192.0.2.7"))},
		restored.Principals().OfKind(principal.KindOrigin))
}

func TestFindDegradesOnAuthorityOutage(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, codec.PrincipalCodec{})

	id, err := e.manager.Authorize(ctx, e.session(t, "alice"), "")
	require.NoError(t, err)
	recordID, _ := id.ID()

	down := login.AuthorityFunc(func(context.Context, *principal.Subject) (*login.Result, error) {
		return nil, domain.ErrUnavailable
	})
	m := NewManager(e.store, down, codec.PrincipalCodec{})

	restored, err := m.Find(ctx, "", recordID)
	require.NoError(t, err)
	assert.False(t, restored.LoggedIn())
	assert.Equal(t, "alice", restored.DisplayName())
}

func TestFindMissingRecord(t *testing.T) {
	e := newEnv(t, codec.PrincipalCodec{})

	_, err := e.manager.Find(context.Background(), "", 12345)
	assert.ErrorIs(t, err, domain.ErrNoSuchIdentity)
}

func TestFindCorruptRecord(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, codec.PrincipalCodec{})
	require.NoError(t, e.records.Create(ctx, 77, []byte("SRMP\x01\xff\xff\xff\xff")))

	_, err := e.manager.Find(ctx, "", 77)
	assert.ErrorIs(t, err, domain.ErrCorruptRecord)
	assert.NotErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestAuthorizeRejected(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, codec.PrincipalCodec{})
	subject := e.session(t, "mallory")

	_, err := e.manager.Authorize(ctx, subject, "")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	ok, err := e.manager.IsAuthorized(ctx, subject, "")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, e.records.Len())
}

func TestIsAuthorized(t *testing.T) {
	e := newEnv(t, codec.PrincipalCodec{})

	ok, err := e.manager.IsAuthorized(context.Background(), e.session(t, "alice"), "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAuthorizeErrorKinds(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    error
		wantErr bool
	}{
		{"unavailable", domain.ErrUnavailable, domain.ErrUnavailable, true},
		{"denied", domain.ErrPermissionDenied, domain.ErrPermissionDenied, false},
		{"unexpected", errors.New("boom"), domain.ErrPermissionDenied, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authority := login.AuthorityFunc(func(context.Context, *principal.Subject) (*login.Result, error) {
				return nil, tt.err
			})
			m := NewManager(cas.NewStore(cas.NewMemoryRecordStore()), authority, codec.PrincipalCodec{})

			_, err := m.Authorize(context.Background(), &principal.Subject{}, "")
			assert.ErrorIs(t, err, tt.want)

			ok, err := m.IsAuthorized(context.Background(), &principal.Subject{}, "")
			assert.False(t, ok)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrUnavailable)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAuthorizeWithoutChainUnderChainCodec(t *testing.T) {
	e := newEnv(t, codec.ChainCodec{})

	_, err := e.manager.Authorize(context.Background(), e.session(t, "alice"), "")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestCreateAnonymous(t *testing.T) {
	e := newEnv(t, codec.PrincipalCodec{})

	anon := e.manager.CreateAnonymous()
	assert.False(t, anon.LoggedIn())
	assert.True(t, anon.ReadOnly())
	assert.Equal(t, "/", anon.Root())
	assert.Empty(t, anon.Principals())
	assert.Nil(t, anon.Handle())
	_, ok := anon.ID()
	assert.False(t, ok)
}

type stubResolver struct {
	addrs []netip.Addr
	err   error
}

func (r stubResolver) LookupNetIP(context.Context, string, string) ([]netip.Addr, error) {
	return r.addrs, r.err
}

func TestOriginResolution(t *testing.T) {
	addr := netip.MustParseAddr("198.51.100.4")

	tests := []struct {
		name     string
		resolver Resolver
		origin   string
		want     []principal.Principal
	}{
		{"ipv6 literal", nil, "[2001:db8::1]:8443", []principal.Principal{principal.Origin(netip.MustParseAddr("2001:db8::1"))}},
		{"host name", stubResolver{addrs: []netip.Addr{addr}}, "client.example.org", []principal.Principal{principal.Origin(addr)}},
		{"lookup fails", stubResolver{err: errors.New("no such host")}, "client.example.org", nil},
		{"no resolver", nil, "client.example.org", nil},
		{"empty", nil, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, codec.PrincipalCodec{}, WithResolver(tt.resolver))

			id, err := e.manager.Authorize(context.Background(), e.session(t, "alice"), tt.origin)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, id.Principals().OfKind(principal.KindOrigin))
		})
	}
}

//go:noinline
func authorizeAndDrop(t *testing.T, m *Manager, subject *principal.Subject) int64 {
	id, err := m.Authorize(context.Background(), subject, "")
	require.NoError(t, err)
	recordID, _ := id.ID()
	return recordID
}

func TestGC(t *testing.T) {
	ctx := context.Background()
	var candidates []int64
	e := newEnv(t, codec.PrincipalCodec{}, WithReferenceIndex(domain.ReferenceIndexFunc(func(context.Context) ([]int64, error) {
		return candidates, nil
	})))
	require.NoError(t, e.accounts.SaveAccount(ctx, &login.Account{Username: "bob", UID: 1001, GID: 1001}))

	kept, err := e.manager.Authorize(ctx, e.session(t, "alice"), "")
	require.NoError(t, err)
	keptID, _ := kept.ID()
	droppedID := authorizeAndDrop(t, e.manager, e.session(t, "bob"))
	candidates = []int64{keptID, droppedID}

	require.Eventually(t, func() bool {
		runtime.GC()
		return e.store.Stats().CanonicalHandles == 1
	}, 5*time.Second, 10*time.Millisecond)

	n, err := e.manager.GC(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, e.records.Len())

	_, err = e.manager.Find(ctx, "", droppedID)
	assert.ErrorIs(t, err, domain.ErrNoSuchIdentity)

	restored, err := e.manager.Find(ctx, "", keptID)
	require.NoError(t, err)
	assert.True(t, restored.LoggedIn())
	runtime.KeepAlive(kept)
}

func TestGCWithoutReferenceIndex(t *testing.T) {
	e := newEnv(t, codec.PrincipalCodec{})
	_, err := e.manager.GC(context.Background())
	assert.Error(t, err)
}

func TestGCReferenceIndexFailure(t *testing.T) {
	e := newEnv(t, codec.PrincipalCodec{}, WithReferenceIndex(domain.ReferenceIndexFunc(func(context.Context) ([]int64, error) {
		return nil, errors.New("database is locked")
	})))
	_, err := e.manager.GC(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

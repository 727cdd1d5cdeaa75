package login

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/srmgate/srmgate/core/domain"
	"github.com/srmgate/srmgate/core/principal"
	"github.com/srmgate/srmgate/internal/testpki"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aliceDN = "/C=DE/O=GridKa/CN=Alice"

type fixture struct {
	ca       *testpki.Entity
	user     *testpki.Entity
	accounts *MemoryAccounts
	tokens   *SessionTokens
	strategy *Strategy
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		ca:       testpki.NewCA(t, "GridKa"),
		accounts: NewMemoryAccounts(),
		tokens:   NewSessionTokens("s3cret", time.Hour),
	}
	f.user = testpki.NewUser(t, f.ca, "Alice")

	require.NoError(t, f.accounts.SaveAccount(ctx, &Account{
		Username: "alice",
		UID:      1000,
		GID:      1000,
		GIDs:     []int64{1000, 2000},
		Root:     "/pnfs/gridka",
		Home:     "/pnfs/gridka/home/alice",
	}))
	require.NoError(t, f.accounts.MapPrincipal(ctx, principal.DN(aliceDN), "alice"))

	f.strategy = NewStrategy(f.accounts, WithRoots(f.ca.Pool()), WithSessionTokens(f.tokens))
	return f
}

func TestLoginWithProxyChain(t *testing.T) {
	f := newFixture(t)
	proxy := testpki.NewProxy(t, f.user)
	origin := principal.Origin(netip.MustParseAddr("192.0.2.7"))

	res, err := f.strategy.Login(context.Background(), &principal.Subject{
		Principals: principal.Set{origin, principal.FQAN("/atlas", true)},
		Chain:      testpki.Chain(proxy, f.user),
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, principal.Set{
		principal.DN(aliceDN),
		principal.UserName("alice"),
		principal.UID(1000),
		principal.GID(1000, true),
		principal.GID(2000, false),
		principal.FQAN("/atlas", true),
		origin,
	}, res.Principals)
	assert.False(t, res.Attributes.ReadOnly())
	assert.Equal(t, "/pnfs/gridka", res.Attributes.Root())
	home, ok := res.Attributes.Get(principal.AttrHome)
	assert.True(t, ok)
	assert.Equal(t, "/pnfs/gridka/home/alice", home)
}

func TestLoginRejectsChain(t *testing.T) {
	f := newFixture(t)
	other := testpki.NewCA(t, "Elsewhere")
	mallory := testpki.NewUser(t, other, "Alice")
	expired := testpki.NewUserValidUntil(t, f.ca, "Alice", time.Now().Add(-time.Minute))
	orphan := testpki.NewProxy(t, f.user)
	malloryToken, err := f.tokens.Issue("mallory")
	require.NoError(t, err)

	tests := map[string]*principal.Subject{
		"untrusted ca":    {Chain: testpki.Chain(mallory)},
		"expired":         {Chain: testpki.Chain(expired)},
		"proxies only":    {Chain: testpki.Chain(orphan)},
		"wrong issuer":    {Chain: testpki.Chain(orphan, mallory)},
		"unmapped dn":     {Chain: testpki.Chain(testpki.NewUser(t, f.ca, "Bob"))},
		"nothing":         {},
		"forged token":    {Token: "not.a.token"},
		"origin only":     {Principals: principal.Set{principal.Origin(netip.MustParseAddr("192.0.2.7"))}},
		"unknown account": {Token: malloryToken},
		"claimed dn":      {Principals: principal.Set{principal.DN(aliceDN)}},
		"claimed user":    {Principals: principal.Set{principal.UserName("alice")}},
		"claim with bad token": {
			Principals: principal.Set{principal.DN(aliceDN)},
			Token:      "not.a.token",
		},
	}
	for name, subject := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.strategy.Login(context.Background(), subject)
			assert.ErrorIs(t, err, domain.ErrPermissionDenied)
		})
	}
}

func TestLoginWithoutRootsRejectsChains(t *testing.T) {
	f := newFixture(t)
	s := NewStrategy(f.accounts)

	_, err := s.Login(context.Background(), &principal.Subject{Chain: testpki.Chain(f.user)})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestLoginWithSessionToken(t *testing.T) {
	f := newFixture(t)
	token, err := f.tokens.Issue("alice")
	require.NoError(t, err)

	res, err := f.strategy.Login(context.Background(), &principal.Subject{Token: token})
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Principals.DisplayName())
}

func TestLoginRejectsExpiredToken(t *testing.T) {
	f := newFixture(t)
	token, err := NewSessionTokens("s3cret", -time.Minute).Issue("alice")
	require.NoError(t, err)

	_, err = f.strategy.Login(context.Background(), &principal.Subject{Token: token})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestLoginRejectsTokenFromOtherSecret(t *testing.T) {
	f := newFixture(t)
	token, err := NewSessionTokens("other", time.Hour).Issue("alice")
	require.NoError(t, err)

	_, err = f.strategy.Login(context.Background(), &principal.Subject{Token: token})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestLoginRestoresPersistedPrincipals(t *testing.T) {
	f := newFixture(t)
	subject := &principal.Subject{
		Principals: principal.Set{principal.DN(aliceDN), principal.UID(1000)},
		Restored:   true,
	}

	res, err := f.strategy.Login(context.Background(), subject)
	require.NoError(t, err)
	assert.Contains(t, res.Principals, principal.UserName("alice"))

	fresh := subject.Clone()
	fresh.Restored = false
	_, err = f.strategy.Login(context.Background(), fresh)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestLoginIgnoresClaimedPrincipalsBesideToken(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.accounts.SaveAccount(context.Background(), &Account{Username: "bob", UID: 1001, GID: 1001}))
	token, err := f.tokens.Issue("bob")
	require.NoError(t, err)

	res, err := f.strategy.Login(context.Background(), &principal.Subject{
		Principals: principal.Set{principal.DN(aliceDN), principal.UserName("alice")},
		Token:      token,
	})
	require.NoError(t, err)
	assert.Equal(t, "bob", res.Principals.DisplayName())
	assert.NotContains(t, res.Principals, principal.DN(aliceDN))
	assert.NotContains(t, res.Principals, principal.UID(1000))
}

func TestLoginRejectsDisabledAccount(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.accounts.SaveAccount(context.Background(), &Account{Username: "bob", UID: 1001, GID: 1001, Disabled: true}))

	token, err := f.tokens.Issue("bob")
	require.NoError(t, err)

	_, err = f.strategy.Login(context.Background(), &principal.Subject{Token: token})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestLoginReadOnlyAccount(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.accounts.SaveAccount(context.Background(), &Account{Username: "guest", UID: 99, GID: 99, ReadOnly: true}))

	token, err := f.tokens.Issue("guest")
	require.NoError(t, err)

	res, err := f.strategy.Login(context.Background(), &principal.Subject{Token: token})
	require.NoError(t, err)
	assert.True(t, res.Attributes.ReadOnly())
	assert.Equal(t, "/", res.Attributes.Root())
}

type brokenAccounts struct{}

func (brokenAccounts) FindAccount(context.Context, principal.Principal) (*Account, error) {
	return nil, errors.New("connection refused")
}

func TestLoginAccountStoreOutage(t *testing.T) {
	s := NewStrategy(brokenAccounts{})

	_, err := s.Login(context.Background(), &principal.Subject{
		Principals: principal.Set{principal.UserName("alice")},
		Restored:   true,
	})
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.NotErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestMapPrincipalRequiresAccount(t *testing.T) {
	accounts := NewMemoryAccounts()
	err := accounts.MapPrincipal(context.Background(), principal.DN("/CN=Nobody"), "nobody")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

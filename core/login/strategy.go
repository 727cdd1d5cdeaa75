package login

import (
	"bytes"
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/srmgate/srmgate/core/domain"
	"github.com/srmgate/srmgate/core/logger"
	"github.com/srmgate/srmgate/core/principal"
	"go.uber.org/zap"
)

// Strategy is the Authority used by the gateway.
//
// A subject is authenticated by its certificate chain or its session token.
// DN and user name principals carried by the subject are trusted only when
// the subject was restored from a persisted record. The DN and user name
// principals are then resolved to an account, whose
// uid, gids and directories become the login result. Group and origin
// principals of the subject are passed through.
type Strategy struct {
	roots    *x509.CertPool
	accounts AccountStore
	tokens   *SessionTokens
	now      func() time.Time
	log      *zap.Logger
}

type StrategyOption func(*Strategy)

// WithRoots sets the trust anchors for certificate chains. Without roots
// every chain is rejected.
func WithRoots(roots *x509.CertPool) StrategyOption {
	return func(s *Strategy) { s.roots = roots }
}

// WithSessionTokens enables session token logins.
func WithSessionTokens(t *SessionTokens) StrategyOption {
	return func(s *Strategy) { s.tokens = t }
}

func WithClock(now func() time.Time) StrategyOption {
	return func(s *Strategy) { s.now = now }
}

func WithLogger(l *zap.Logger) StrategyOption {
	return func(s *Strategy) { s.log = l }
}

func NewStrategy(accounts AccountStore, opts ...StrategyOption) *Strategy {
	s := &Strategy{
		accounts: accounts,
		now:      time.Now,
		log:      logger.Get(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Strategy) Login(ctx context.Context, subject *principal.Subject) (*Result, error) {
	if subject == nil {
		return nil, denied("empty subject")
	}
	principals := slices.Clip(subject.Principals)
	if !subject.Restored {
		// Only the chain or the token may name the account of a fresh login.
		if len(subject.Chain) == 0 && subject.Token == "" {
			return nil, denied("no credentials presented")
		}
		principals = principals.Without(principal.KindDN).Without(principal.KindUserName)
	}

	if len(subject.Chain) > 0 {
		dn, err := s.verifyChain(subject.Chain)
		if err != nil {
			return nil, denied("certificate chain: %v", err)
		}
		principals = principals.Add(principal.DN(dn))
	}
	if subject.Token != "" {
		if s.tokens == nil {
			return nil, denied("session tokens are not accepted")
		}
		username, err := s.tokens.Verify(subject.Token)
		if err != nil {
			return nil, denied("session token: %v", err)
		}
		principals = principals.Add(principal.UserName(username))
	}

	account, err := s.findAccount(ctx, principals)
	if err != nil {
		return nil, err
	}
	if account.Disabled {
		return nil, denied("account %s is disabled", account.Username)
	}

	s.log.Debug("login succeeded",
		zap.String("user", account.Username),
		zap.String("principal", principals.DisplayName()))
	return resultFor(account, principals), nil
}

// findAccount tries DN principals before user names.
func (s *Strategy) findAccount(ctx context.Context, principals principal.Set) (*Account, error) {
	candidates := append(principals.OfKind(principal.KindDN), principals.OfKind(principal.KindUserName)...)
	if len(candidates) == 0 {
		return nil, denied("no authenticated principal")
	}
	for _, p := range candidates {
		account, err := s.accounts.FindAccount(ctx, p)
		switch {
		case err == nil:
			return account, nil
		case errors.Is(err, ErrAccountNotFound):
			continue
		default:
			return nil, fmt.Errorf("login: find account for %s: %w: %w", p, domain.ErrUnavailable, err)
		}
	}
	return nil, denied("no account for %s", candidates.DisplayName())
}

func resultFor(a *Account, from principal.Set) *Result {
	var out principal.Set
	for _, p := range from.OfKind(principal.KindDN) {
		out = out.Add(p)
	}
	out = out.Add(principal.UserName(a.Username))
	out = out.Add(principal.UID(a.UID))
	out = out.Add(principal.GID(a.GID, true))
	for _, gid := range a.GIDs {
		if gid != a.GID {
			out = out.Add(principal.GID(gid, false))
		}
	}
	for _, kind := range []principal.Kind{principal.KindFQAN, principal.KindOrigin} {
		for _, p := range from.OfKind(kind) {
			out = out.Add(p)
		}
	}

	attrs := principal.Attributes{principal.ReadOnly(a.ReadOnly)}
	root := a.Root
	if root == "" {
		root = "/"
	}
	attrs = append(attrs, principal.RootDirectory(root))
	if a.Home != "" {
		attrs = append(attrs, principal.HomeDirectory(a.Home))
	}
	return &Result{Principals: out, Attributes: attrs}
}

// verifyChain checks a leaf-first chain and returns the DN of its end-entity
// certificate. Proxy certificates are checked by signature against their
// issuer; the end-entity certificate is verified against the roots.
func (s *Strategy) verifyChain(chain []*x509.Certificate) (string, error) {
	if s.roots == nil {
		return "", errors.New("no trust anchors configured")
	}
	ee := principal.EndEntity(chain)
	if ee < 0 {
		return "", errors.New("chain has no end-entity certificate")
	}

	now := s.now()
	for i := 0; i < ee; i++ {
		proxy, issuer := chain[i], chain[i+1]
		if now.Before(proxy.NotBefore) || now.After(proxy.NotAfter) {
			return "", fmt.Errorf("proxy %d is not valid at %s", i, now.Format(time.RFC3339))
		}
		if !bytes.Equal(proxy.RawIssuer, issuer.RawSubject) {
			return "", fmt.Errorf("proxy %d is not issued by the next certificate", i)
		}
		if err := issuer.CheckSignature(proxy.SignatureAlgorithm, proxy.RawTBSCertificate, proxy.Signature); err != nil {
			return "", fmt.Errorf("proxy %d: %w", i, err)
		}
	}

	intermediates := x509.NewCertPool()
	for _, c := range chain[ee+1:] {
		intermediates.AddCert(c)
	}
	_, err := chain[ee].Verify(x509.VerifyOptions{
		Roots:         s.roots,
		Intermediates: intermediates,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
	if err != nil {
		return "", err
	}
	return principal.GlobusDN(chain[ee].Subject), nil
}

package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/srmgate/srmgate/core/cas"
	"github.com/srmgate/srmgate/core/codec"
	"github.com/srmgate/srmgate/core/domain"
	"github.com/srmgate/srmgate/core/logger"
	"github.com/srmgate/srmgate/core/login"
	"github.com/srmgate/srmgate/core/principal"
	"github.com/srmgate/srmgate/core/telemetry"
	"go.uber.org/zap"
)

// Resolver looks up host names for origin principals. *net.Resolver
// satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Manager creates, restores and collects persisted identities.
type Manager struct {
	store     *cas.Store
	authority login.Authority
	codec     codec.Codec
	refs      domain.ReferenceIndex
	resolver  Resolver
	log       *zap.Logger
	telemetry *telemetry.Provider
}

type Option func(*Manager)

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = l }
}

func WithTelemetry(p *telemetry.Provider) Option {
	return func(m *Manager) { m.telemetry = p }
}

func WithResolver(r Resolver) Option {
	return func(m *Manager) { m.resolver = r }
}

// WithReferenceIndex sets the source of unreferenced record ids used by GC.
func WithReferenceIndex(refs domain.ReferenceIndex) Option {
	return func(m *Manager) { m.refs = refs }
}

func NewManager(store *cas.Store, authority login.Authority, c codec.Codec, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		authority: authority,
		codec:     c,
		resolver:  net.DefaultResolver,
		log:       logger.Get(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Codec returns the codec records are written with.
func (m *Manager) Codec() codec.Codec { return m.codec }

// Authorize logs subject in and persists the result. origin is the peer
// address of the request, as an IP literal, "host:port" or host name; it is
// added as a principal when it can be resolved.
//
// Errors wrap domain.ErrPermissionDenied or domain.ErrUnavailable.
func (m *Manager) Authorize(ctx context.Context, subject *principal.Subject, origin string) (_ *Identity, err error) {
	ctx, span := m.telemetry.SpanAuthorize(ctx, m.codec.Name(), origin)
	defer func() { telemetry.EndSpan(span, err) }()

	s := subject.Clone()
	s.Restored = false
	if p, ok := m.resolveOrigin(ctx, origin); ok {
		s.Principals = s.Principals.Add(p)
	}

	res, err := m.authority.Login(ctx, s)
	if err != nil {
		return nil, m.loginFailed(ctx, err)
	}

	payload, err := m.codec.Encode(&codec.Material{
		Chain:      s.Chain,
		Principals: res.Principals,
		Attributes: res.Attributes,
	})
	if err != nil {
		m.log.Error("cannot encode identity", zap.String("codec", m.codec.Name()), zap.Error(err))
		m.telemetry.RecordLogin(ctx, m.codec.Name(), "error")
		return nil, fmt.Errorf("identity: %w", domain.ErrPermissionDenied)
	}

	h, err := m.store.HandleForBytes(ctx, payload)
	if err != nil {
		m.telemetry.RecordLogin(ctx, m.codec.Name(), "error")
		if errors.Is(err, domain.ErrUnavailable) {
			return nil, fmt.Errorf("identity: store record: %w", err)
		}
		m.log.Error("cannot store identity", zap.Error(err))
		return nil, fmt.Errorf("identity: %w", domain.ErrPermissionDenied)
	}

	m.telemetry.RecordLogin(ctx, m.codec.Name(), "ok")
	return newLoggedIn(h, res.Principals, res.Attributes), nil
}

func (m *Manager) loginFailed(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrUnavailable):
		m.telemetry.RecordLogin(ctx, m.codec.Name(), "unavailable")
		return fmt.Errorf("identity: %w", err)
	case errors.Is(err, domain.ErrPermissionDenied):
		m.telemetry.RecordLogin(ctx, m.codec.Name(), "denied")
		return fmt.Errorf("identity: %w", err)
	default:
		m.log.Error("login failed unexpectedly", zap.Error(err))
		m.telemetry.RecordLogin(ctx, m.codec.Name(), "error")
		return fmt.Errorf("identity: %w", domain.ErrPermissionDenied)
	}
}

// IsAuthorized reports whether subject may log in. A rejection is not an
// error; only an unavailable backend is.
func (m *Manager) IsAuthorized(ctx context.Context, subject *principal.Subject, origin string) (bool, error) {
	_, err := m.Authorize(ctx, subject, origin)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrUnavailable):
		return false, err
	default:
		return false, nil
	}
}

// Find restores the identity stored under id and logs it in again. If the
// login now fails the identity is returned degraded: not logged in,
// read-only and carrying only a display principal. A missing record fails
// with domain.ErrNoSuchIdentity, an undecodable one with
// domain.ErrCorruptRecord.
func (m *Manager) Find(ctx context.Context, originHint string, id int64) (_ *Identity, err error) {
	ctx, span := m.telemetry.SpanFind(ctx, id)
	defer func() { telemetry.EndSpan(span, err) }()

	h, err := m.store.HandleForID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("identity: find %d: %w", id, err)
	}
	if h == nil {
		m.telemetry.RecordRestore(ctx, "not_found")
		return nil, fmt.Errorf("identity: find %d: %w", id, domain.ErrNoSuchIdentity)
	}

	payload, err := m.store.ReadBytes(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("identity: find %d: %w", id, err)
	}
	material, err := m.codec.Decode(payload)
	if err != nil {
		m.log.Error("corrupt identity record", zap.Int64("id", id), zap.String("codec", m.codec.Name()), zap.Error(err))
		m.telemetry.RecordRestore(ctx, "corrupt")
		return nil, fmt.Errorf("identity: find %d: %w", id, err)
	}

	subject := material.Subject()
	if p, ok := m.resolveOrigin(ctx, originHint); ok {
		subject.Principals = subject.Principals.Without(principal.KindOrigin).Add(p)
	}

	res, err := m.authority.Login(ctx, subject)
	if err != nil {
		display, name := displayOf(material, h)
		m.log.Warn("restored identity is no longer authorized",
			zap.Int64("id", id),
			zap.String("principal", name),
			zap.Error(err))
		m.telemetry.RecordRestore(ctx, "degraded")
		return newDegraded(h, display, name), nil
	}

	m.telemetry.RecordRestore(ctx, "reauthorized")
	return newLoggedIn(h, res.Principals, res.Attributes), nil
}

// displayOf picks the principal shown for a degraded identity.
func displayOf(material *codec.Material, h *cas.Handle) (principal.Set, string) {
	if p, ok := material.Principals.First(principal.KindDN); ok {
		return principal.Set{p}, p.Name
	}
	if dn, ok := principal.ChainDN(material.Chain); ok {
		return principal.Set{principal.DN(dn)}, dn
	}
	if p, ok := material.Principals.First(principal.KindUserName); ok {
		return principal.Set{p}, p.Name
	}
	if len(material.Principals) > 0 {
		p := material.Principals[0]
		return principal.Set{p}, p.String()
	}
	return nil, h.String()
}

// CreateAnonymous returns the least privileged identity: no record, not
// logged in, read-only and without principals.
func (m *Manager) CreateAnonymous() *Identity {
	return newAnonymous()
}

// GC deletes the records the reference index reports as unreferenced and
// that no live identity in this process holds. It returns the number of
// records deleted.
func (m *Manager) GC(ctx context.Context) (int, error) {
	if m.refs == nil {
		return 0, errors.New("identity: no reference index configured")
	}
	ids, err := m.refs.UnreferencedIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("identity: list unreferenced records: %w: %w", domain.ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := m.store.GC(ctx, ids)
	m.log.Info("identity gc finished", zap.Int("candidates", len(ids)), zap.Int("deleted", n), zap.Error(err))
	return n, err
}

func (m *Manager) resolveOrigin(ctx context.Context, origin string) (principal.Principal, bool) {
	if origin == "" {
		return principal.Principal{}, false
	}
	host := origin
	if h, _, err := net.SplitHostPort(origin); err == nil {
		host = h
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return principal.Origin(addr.Unmap()), true
	}
	if m.resolver == nil {
		return principal.Principal{}, false
	}

	addrs, err := m.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil || len(addrs) == 0 {
		m.log.Debug("cannot resolve origin", zap.String("origin", origin), zap.Error(err))
		return principal.Principal{}, false
	}
	return principal.Origin(addrs[0].Unmap()), true
}

// Package testpki issues throwaway certificate chains for tests.
package testpki

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

var serial atomic.Int64

// Entity is a certificate with its private key.
type Entity struct {
	Cert *x509.Certificate
	Key  *ecdsa.PrivateKey
}

// Pool returns a pool holding e as trust anchor.
func (e *Entity) Pool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(e.Cert)
	return pool
}

// NewCA creates a self-signed CA.
func NewCA(t testing.TB, org string) *Entity {
	t.Helper()
	tmpl := &x509.Certificate{
		Subject:               pkix.Name{Country: []string{"DE"}, Organization: []string{org}, CommonName: org + " CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	return issue(t, tmpl, nil)
}

// NewUser issues an end-entity certificate for cn signed by ca.
func NewUser(t testing.TB, ca *Entity, cn string) *Entity {
	t.Helper()
	return NewUserValidUntil(t, ca, cn, time.Now().Add(12*time.Hour))
}

// NewUserValidUntil issues an end-entity certificate expiring at notAfter.
func NewUserValidUntil(t testing.TB, ca *Entity, cn string, notAfter time.Time) *Entity {
	t.Helper()
	tmpl := &x509.Certificate{
		Subject:     pkix.Name{Country: []string{"DE"}, Organization: ca.Cert.Subject.Organization, CommonName: cn},
		NotBefore:   time.Now().Add(-time.Hour),
		NotAfter:    notAfter,
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	return issue(t, tmpl, ca)
}

var (
	oidProxyCertInfo = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 14}
	oidInheritAll    = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 21, 1}
)

type proxyPolicy struct {
	Language asn1.ObjectIdentifier
}

type proxyCertInfo struct {
	Policy proxyPolicy
}

// NewProxy issues an RFC 3820 proxy certificate signed by issuer.
func NewProxy(t testing.TB, issuer *Entity) *Entity {
	t.Helper()
	info, err := asn1.Marshal(proxyCertInfo{Policy: proxyPolicy{Language: oidInheritAll}})
	if err != nil {
		t.Fatalf("marshal proxy cert info: %v", err)
	}

	// A proxy subject is the issuer subject plus one more CN.
	var issuerName pkix.RDNSequence
	if _, err := asn1.Unmarshal(issuer.Cert.RawSubject, &issuerName); err != nil {
		t.Fatalf("unmarshal issuer subject: %v", err)
	}
	rawSubject, err := asn1.Marshal(append(issuerName, pkix.RelativeDistinguishedNameSET{
		{Type: asn1.ObjectIdentifier{2, 5, 4, 3}, Value: strconv.FormatInt(serial.Add(1), 10)},
	}))
	if err != nil {
		t.Fatalf("marshal proxy subject: %v", err)
	}

	tmpl := &x509.Certificate{
		RawSubject: rawSubject,
		NotBefore:  time.Now().Add(-time.Minute),
		NotAfter:   time.Now().Add(time.Hour),
		KeyUsage:   x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtraExtensions: []pkix.Extension{
			{Id: oidProxyCertInfo, Critical: true, Value: info},
		},
	}
	return issue(t, tmpl, issuer)
}

// Chain returns the leaf-first chain ending below the trust anchor.
func Chain(entities ...*Entity) []*x509.Certificate {
	chain := make([]*x509.Certificate, len(entities))
	for i, e := range entities {
		chain[i] = e.Cert
	}
	return chain
}

func issue(t testing.TB, tmpl *x509.Certificate, parent *Entity) *Entity {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl.SerialNumber = big.NewInt(serial.Add(1))

	parentCert, parentKey := tmpl, key
	if parent != nil {
		parentCert, parentKey = parent.Cert, parent.Key
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, parentCert, &key.PublicKey, parentKey)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return &Entity{Cert: cert, Key: key}
}

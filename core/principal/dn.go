package principal

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"strings"
)

var attributeNames = map[string]string{
	"2.5.4.3":                    "CN",
	"2.5.4.5":                    "serialNumber",
	"2.5.4.6":                    "C",
	"2.5.4.7":                    "L",
	"2.5.4.8":                    "ST",
	"2.5.4.10":                   "O",
	"2.5.4.11":                   "OU",
	"0.9.2342.19200300.100.1.1":  "UID",
	"0.9.2342.19200300.100.1.25": "DC",
	"1.2.840.113549.1.9.1":       "emailAddress",
}

// GlobusDN renders name in the OpenSSL/Globus slash form used by grid
// mapfiles, e.g. "/DC=org/DC=example/CN=Alice". Attributes keep their
// certificate order.
func GlobusDN(name pkix.Name) string {
	var b strings.Builder
	for _, atv := range name.Names {
		b.WriteByte('/')
		b.WriteString(attributeName(atv.Type))
		b.WriteByte('=')
		b.WriteString(fmt.Sprint(atv.Value))
	}
	return b.String()
}

func attributeName(oid asn1.ObjectIdentifier) string {
	if n, ok := attributeNames[oid.String()]; ok {
		return n
	}
	return oid.String()
}

var oidProxyCertInfo = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 14}

// IsProxy reports whether cert is an RFC 3820 proxy certificate.
func IsProxy(cert *x509.Certificate) bool {
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(oidProxyCertInfo) {
			return true
		}
	}
	return false
}

// EndEntity returns the index of the first non-proxy certificate in a
// leaf-first chain, or -1 if the chain holds only proxies.
func EndEntity(chain []*x509.Certificate) int {
	for i, cert := range chain {
		if !IsProxy(cert) {
			return i
		}
	}
	return -1
}

// ChainDN returns the Globus DN of the chain's end-entity certificate.
func ChainDN(chain []*x509.Certificate) (string, bool) {
	i := EndEntity(chain)
	if i < 0 {
		return "", false
	}
	return GlobusDN(chain[i].Subject), true
}

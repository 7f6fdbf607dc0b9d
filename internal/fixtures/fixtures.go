// Package fixtures builds throwaway credentials for tests.
package fixtures

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"software.sslmate.com/src/go-pkcs12"
)

// AllZeroASK is the all-zero application secret accepted by test key servers.
const AllZeroASK = "00000000000000000000000000000000"

// SelfSignedPFX returns a password protected PKCS#12 bundle holding a
// self-signed certificate with the given common name.
func SelfSignedPFX(tb testing.TB, commonName, password string) []byte {
	tb.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		tb.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		tb.Fatal(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		tb.Fatal(err)
	}
	pfx, err := pkcs12.Modern.Encode(priv, cert, nil, password)
	if err != nil {
		tb.Fatal(err)
	}
	return pfx
}

// SymmetricKey returns a random base64 encoded 64 byte verification key.
func SymmetricKey(tb testing.TB) string {
	tb.Helper()
	b := make([]byte, 64)
	if _, err := rand.Read(b); err != nil {
		tb.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(b)
}

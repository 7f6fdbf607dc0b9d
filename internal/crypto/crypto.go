package crypto

import (
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"

	"software.sslmate.com/src/go-pkcs12"
)

const (
	// ContentKeyLength is the size in bytes of every minted content key.
	ContentKeyLength = 16
	// IVLength is the size in bytes of the FairPlay content encryption IV.
	IVLength = 16
)

var (
	ErrHexKeyLength  = errors.New("hex key has wrong length")
	ErrHexKeyEncoded = errors.New("hex key is not valid hex")
	ErrCertificate   = errors.New("could not load certificate")
)

func GenerateKey(length int) ([]byte, error) {
	key := make([]byte, length)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

func GenerateIV() ([]byte, error) {
	iv := make([]byte, IVLength)
	_, err := rand.Read(iv)
	if err != nil {
		return nil, err
	}
	return iv, nil
}

// DecodeHexKey decodes a hex string that must encode exactly length bytes.
func DecodeHexKey(s string, length int) ([]byte, error) {
	if length <= 0 || len(s) != length*2 {
		return nil, fmt.Errorf("%w: want %d hex characters, got %d", ErrHexKeyLength, length*2, len(s))
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Join(ErrHexKeyEncoded, err)
	}
	return key, nil
}

// LoadPKCS12 opens a password protected .pfx bundle and returns its leaf
// certificate.
func LoadPKCS12(pfx []byte, password string) (*x509.Certificate, error) {
	if len(pfx) == 0 {
		return nil, fmt.Errorf("%w: empty pfx data", ErrCertificate)
	}
	_, cert, _, err := pkcs12.DecodeChain(pfx, password)
	if err != nil {
		return nil, errors.Join(ErrCertificate, err)
	}
	return cert, nil
}

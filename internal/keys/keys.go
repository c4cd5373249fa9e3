package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
)

const (
	Bits           = 2048
	PublicPEMBlock = "PUBLIC KEY"
)

var (
	ErrNotPublicKey = errors.New("not a pem encoded public key")
	ErrNotRSA       = errors.New("not an rsa public key")
)

// KeyPair never changes after Generate. The server makes one at startup and
// hands it to every session, so a leaked private half exposes all of them.
type KeyPair struct {
	private   *rsa.PrivateKey
	publicPEM []byte
}

func Generate() (*KeyPair, error) {
	return GenerateFrom(rand.Reader, Bits)
}

// GenerateFrom lets tests use smaller keys.
func GenerateFrom(random io.Reader, bits int) (*KeyPair, error) {
	private, err := rsa.GenerateKey(random, bits)
	if err != nil {
		return nil, fmt.Errorf("could not generate rsa key: %w", err)
	}

	publicPEM, err := EncodePublicPEM(&private.PublicKey)
	if err != nil {
		return nil, err
	}

	return &KeyPair{
		private:   private,
		publicPEM: publicPEM,
	}, nil
}

func (kp *KeyPair) Public() *rsa.PublicKey {
	return &kp.private.PublicKey
}

func (kp *KeyPair) Private() *rsa.PrivateKey {
	return kp.private
}

// PublicPEM returns a copy of the SubjectPublicKeyInfo PEM encoding.
func (kp *KeyPair) PublicPEM() []byte {
	return append([]byte(nil), kp.publicPEM...)
}

func EncodePublicPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("could not marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: PublicPEMBlock, Bytes: der}), nil
}

func ParsePublicPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != PublicPEMBlock {
		return nil, ErrNotPublicKey
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotPublicKey, err)
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w (got %T)", ErrNotRSA, pub)
	}
	return rsaPub, nil
}

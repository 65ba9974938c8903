package token

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// KeyPair represents a public/private key pair for signing tokens
type KeyPair struct {
	KeyID      string
	PrivateKey crypto.PrivateKey
	PublicKey  crypto.PublicKey
	Algorithm  string // RS256, RS384, RS512, ES256
}

// GenerateRSAKeyPair generates a new RSA key pair for RS256 signing
func GenerateRSAKeyPair(keyID string, bits int) (*KeyPair, error) {
	if bits < 2048 {
		bits = 2048
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate RSA key")
	}

	return &KeyPair{
		KeyID:      keyID,
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		Algorithm:  "RS256",
	}, nil
}

// GenerateECDSAKeyPair generates a new ECDSA key pair for ES256 signing
func GenerateECDSAKeyPair(keyID string) (*KeyPair, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate ECDSA key")
	}

	return &KeyPair{
		KeyID:      keyID,
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		Algorithm:  "ES256",
	}, nil
}

// GetSigningMethod returns the JWT signing method for this key pair
func (kp *KeyPair) GetSigningMethod() jwt.SigningMethod {
	switch kp.Algorithm {
	case "RS256":
		return jwt.SigningMethodRS256
	case "RS384":
		return jwt.SigningMethodRS384
	case "RS512":
		return jwt.SigningMethodRS512
	case "ES256":
		return jwt.SigningMethodES256
	default:
		return jwt.SigningMethodRS256
	}
}

// ExportPrivateKeyPEM exports the private key as PEM
func (kp *KeyPair) ExportPrivateKeyPEM() (string, error) {
	var privateKeyBytes []byte
	var err error
	var blockType string

	switch key := kp.PrivateKey.(type) {
	case *rsa.PrivateKey:
		privateKeyBytes = x509.MarshalPKCS1PrivateKey(key)
		blockType = "RSA PRIVATE KEY"
	case *ecdsa.PrivateKey:
		privateKeyBytes, err = x509.MarshalECPrivateKey(key)
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal ECDSA private key")
		}
		blockType = "EC PRIVATE KEY"
	default:
		return "", errors.New("unsupported private key type")
	}

	privateKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  blockType,
		Bytes: privateKeyBytes,
	})

	return string(privateKeyPEM), nil
}

// LoadKeyPairFromPEM reconstructs a key pair from a PEM-encoded private key
func LoadKeyPairFromPEM(keyID, privateKeyPEM, algorithm string) (*KeyPair, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse RSA private key")
		}
		return &KeyPair{
			KeyID:      keyID,
			PrivateKey: privateKey,
			PublicKey:  &privateKey.PublicKey,
			Algorithm:  algorithm,
		}, nil
	case "EC PRIVATE KEY":
		privateKey, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse ECDSA private key")
		}
		return &KeyPair{
			KeyID:      keyID,
			PrivateKey: privateKey,
			PublicKey:  &privateKey.PublicKey,
			Algorithm:  algorithm,
		}, nil
	default:
		return nil, errors.Errorf("unsupported PEM block type: %s", block.Type)
	}
}

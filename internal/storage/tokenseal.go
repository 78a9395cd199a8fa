package storage

import (
	"context"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// TokenSealer encrypts provider auth tokens before they are written into
// the user's own storage. If the user can read the sealed token back,
// they are the storage owner; that is the authentication model.
type TokenSealer struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

// NewTokenSealer builds a sealer from a 32-byte secret.
func NewTokenSealer(key []byte) (*TokenSealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w: sealing key must be %d bytes", ErrMisconfigured, chacha20poly1305.KeySize)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMisconfigured, err)
	}
	return &TokenSealer{aead: aead}, nil
}

// Seal encrypts plaintext; the random nonce is prefixed to the output.
func (s *TokenSealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a sealed token.
func (s *TokenSealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("sealed token too short")
	}
	nonce, ciphertext := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]
	return s.aead.Open(nil, nonce, ciphertext, nil)
}

// WriteAuthToken seals token and stores it at the well-known path in the
// user's provider.
func WriteAuthToken(ctx context.Context, p Provider, sealer *TokenSealer, token []byte) error {
	if err := EnsureAppFolder(ctx, p); err != nil {
		return err
	}
	sealed, err := sealer.Seal(token)
	if err != nil {
		return err
	}
	_, err = p.UploadFile(ctx, sealed, AppFolder, "auth_token.enc", "application/octet-stream")
	return err
}

// ReadAuthToken fetches and unseals the stored token; ErrNotFound when
// the user has never authenticated.
func ReadAuthToken(ctx context.Context, p Provider, sealer *TokenSealer) ([]byte, error) {
	sealed, err := p.DownloadFile(ctx, AuthTokenFile)
	if err != nil {
		return nil, err
	}
	return sealer.Open(sealed)
}

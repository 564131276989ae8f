// Package credentials implements the Credential Store collaborator (spec
// §6): reversible at-rest encryption of the session cookie/csrf pair the
// Media JSON API client attaches to outbound requests.
//
// Unlike a login-password hash, this value must be read back in full to
// authenticate outbound calls, so encryption (pbkdf2-derived AES-GCM) is
// used instead of the one-way hashing the teacher's internal/auth package
// uses for session tokens (internal/auth/token_hash.go,
// internal/storage/auth.go).
package credentials

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"reactioncut/internal/mediaclient"
)

const (
	pbkdf2Iterations = 200_000
	keyLength        = 32 // AES-256
	saltLength       = 16
)

// Repository is the narrow slice of internal/store.Repository the
// Credential Store needs.
type Repository interface {
	SaveCredential(ctx context.Context, key string, encrypted []byte) error
	LoadCredential(ctx context.Context, key string) ([]byte, error)
}

// Store persists AuthInfo values encrypted at rest, keyed by platform
// name, backed by internal/store.Repository.
type Store struct {
	repo   Repository
	secret []byte
}

// New constructs a Store. secret is the master passphrase the encryption
// key is derived from (e.g. an OS-keyring-backed value or an operator
// passphrase); it must stay stable across restarts or previously saved
// credentials become unreadable.
func New(repo Repository, secret []byte) (*Store, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("credentials: secret is required")
	}
	return &Store{repo: repo, secret: secret}, nil
}

// plaintextAuth mirrors mediaclient.AuthInfo for JSON (de)serialization
// without creating an import cycle back into mediaclient's package scope
// beyond the type itself.
type plaintextAuth struct {
	Cookie string `json:"cookie"`
	CSRF   string `json:"csrf"`
	UserID int64  `json:"userId"`
}

// Load decrypts the credential stored under key: load_auth_info(db).
// ForKey adapts it to mediaclient.CredentialProvider.
func (s *Store) Load(ctx context.Context, key string) (mediaclient.AuthInfo, error) {
	encrypted, err := s.repo.LoadCredential(ctx, key)
	if err != nil {
		return mediaclient.AuthInfo{}, err
	}
	plain, err := decrypt(s.secret, encrypted)
	if err != nil {
		return mediaclient.AuthInfo{}, fmt.Errorf("credentials: decrypt %s: %w", key, err)
	}
	var stored plaintextAuth
	if err := json.Unmarshal(plain, &stored); err != nil {
		return mediaclient.AuthInfo{}, fmt.Errorf("credentials: decode %s: %w", key, err)
	}
	return mediaclient.AuthInfo{Cookie: stored.Cookie, CSRF: stored.CSRF, UserID: stored.UserID}, nil
}

// Save encrypts and persists auth under key.
func (s *Store) Save(ctx context.Context, key string, auth mediaclient.AuthInfo) error {
	plain, err := json.Marshal(plaintextAuth{Cookie: auth.Cookie, CSRF: auth.CSRF, UserID: auth.UserID})
	if err != nil {
		return fmt.Errorf("credentials: encode %s: %w", key, err)
	}
	encrypted, err := encrypt(s.secret, plain)
	if err != nil {
		return fmt.Errorf("credentials: encrypt %s: %w", key, err)
	}
	return s.repo.SaveCredential(ctx, key, encrypted)
}

// ForKey returns a mediaclient.CredentialProvider bound to a single
// platform key, so callers like mediaclient.Client.RefreshCookie (which
// knows nothing about multi-platform keying) can use it directly.
func (s *Store) ForKey(key string) *KeyedProvider {
	return &KeyedProvider{store: s, key: key}
}

// KeyedProvider adapts Store to mediaclient.CredentialProvider for one key.
type KeyedProvider struct {
	store *Store
	key   string
}

func (p *KeyedProvider) Load(ctx context.Context) (mediaclient.AuthInfo, error) {
	return p.store.Load(ctx, p.key)
}

func (p *KeyedProvider) Save(ctx context.Context, auth mediaclient.AuthInfo) error {
	return p.store.Save(ctx, p.key, auth)
}

// encrypt derives a per-call key from secret and a fresh random salt via
// pbkdf2-sha256, then seals plaintext with AES-256-GCM. The output layout
// is salt || nonce || ciphertext, so decrypt needs nothing but secret.
func encrypt(secret, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	key := pbkdf2.Key(secret, salt, pbkdf2Iterations, keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, len(salt)+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, nil)
	return out, nil
}

func decrypt(secret, data []byte) ([]byte, error) {
	if len(data) < saltLength {
		return nil, fmt.Errorf("ciphertext too short")
	}
	salt, rest := data[:saltLength], data[saltLength:]
	key := pbkdf2.Key(secret, salt, pbkdf2Iterations, keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	if len(rest) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

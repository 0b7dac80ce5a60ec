package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/pbkdf2"

	herrors "pageharvest/pkg/errors"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000

	// PassphraseEnv overrides the keychain passphrase
	PassphraseEnv = "PAGEHARVEST_PASSPHRASE"

	keyringService = "pageharvest"
	keyringUser    = "session-passphrase"
)

// EncryptedFileStore keeps the session in an AES-GCM envelope keyed by a
// PBKDF2-derived key
type EncryptedFileStore struct {
	path       string
	passphrase string
}

// envelope is the on-disk layout
type envelope struct {
	Salt      string    `json:"salt"`
	Encrypted string    `json:"encrypted"`
	Version   int       `json:"version"`
	Modified  time.Time `json:"modified"`
}

// NewEncryptedFileStore resolves the passphrase from the environment or the
// system keychain, generating and storing one on first use
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	passphrase, err := resolvePassphrase()
	if err != nil {
		return nil, herrors.New(herrors.ErrorTypeInvalidSession, "failed to get session passphrase", err)
	}
	return NewEncryptedFileStoreWithPassphrase(path, passphrase), nil
}

// NewEncryptedFileStoreWithPassphrase uses a caller-supplied passphrase
func NewEncryptedFileStoreWithPassphrase(path, passphrase string) *EncryptedFileStore {
	return &EncryptedFileStore{path: path, passphrase: passphrase}
}

// Load reads and decrypts the session file
func (e *EncryptedFileStore) Load() (*AuthContext, error) {
	content, err := os.ReadFile(e.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, herrors.MissingSession(e.path, err)
		}
		return nil, herrors.New(herrors.ErrorTypeInvalidSession, "failed to read session", err)
	}

	var env envelope
	if err := json.Unmarshal(content, &env); err != nil {
		return nil, herrors.New(herrors.ErrorTypeInvalidSession, "failed to parse session envelope", err)
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, herrors.New(herrors.ErrorTypeInvalidSession, "failed to decode salt", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Encrypted)
	if err != nil {
		return nil, herrors.New(herrors.ErrorTypeInvalidSession, "failed to decode session", err)
	}

	key := pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)
	plain, err := decrypt(sealed, key)
	if err != nil {
		return nil, herrors.New(herrors.ErrorTypeInvalidSession, "failed to decrypt session", err)
	}

	return NewAuthContext(plain, e.path), nil
}

// Save encrypts with a fresh salt and writes atomically
func (e *EncryptedFileStore) Save(auth *AuthContext) error {
	if auth == nil || len(auth.raw) == 0 {
		return fmt.Errorf("refusing to save an empty session")
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	key := pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)
	sealed, err := encrypt(auth.raw, key)
	if err != nil {
		return fmt.Errorf("failed to encrypt session: %w", err)
	}

	content, err := json.MarshalIndent(envelope{
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Encrypted: base64.StdEncoding.EncodeToString(sealed),
		Version:   1,
		Modified:  time.Now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session envelope: %w", err)
	}

	return writeFileAtomic(e.path, content)
}

// Exists checks whether the session file is present
func (e *EncryptedFileStore) Exists() bool {
	_, err := os.Stat(e.path)
	return err == nil
}

func resolvePassphrase() (string, error) {
	if pass := os.Getenv(PassphraseEnv); pass != "" {
		return pass, nil
	}

	pass, err := keyring.Get(keyringService, keyringUser)
	if err == nil && pass != "" {
		return pass, nil
	}
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("keyring not available (set %s): %w", PassphraseEnv, err)
	}

	pass, err = generatePassphrase()
	if err != nil {
		return "", err
	}
	if err := keyring.Set(keyringService, keyringUser, pass); err != nil {
		return "", fmt.Errorf("failed to store passphrase in keyring: %w", err)
	}
	return pass, nil
}

func generatePassphrase() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// encrypt seals plaintext with AES-GCM, prefixing the nonce
func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

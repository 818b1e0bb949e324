package infra

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

const (
	keyFileName = "store.key"
	keySize     = 32 // raw SQLCipher key, hex on disk like the DSN
)

var (
	// ErrKeyNotFound is returned by GetKey when no key has been stored yet.
	ErrKeyNotFound = errors.New("store key not found")

	// ErrOrphanedStore means a store exists but its key is gone. A new key
	// would never open it, so none is generated.
	ErrOrphanedStore = errors.New("store exists without its key")
)

// FileKeyProvider keeps the usage store key in a 0600 file in the data dir.
type FileKeyProvider struct {
	keyPath string
}

// NewFileKeyProvider creates a FileKeyProvider for the given data directory.
func NewFileKeyProvider(dataDir string) *FileKeyProvider {
	return &FileKeyProvider{
		keyPath: filepath.Join(dataDir, keyFileName),
	}
}

// GetKey reads and validates the stored key.
func (p *FileKeyProvider) GetKey() ([]byte, error) {
	raw, err := os.ReadFile(p.keyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("corrupt key file %s: %w", p.keyPath, err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("corrupt key file %s: %d bytes, want %d", p.keyPath, len(key), keySize)
	}
	return key, nil
}

// StoreKey writes the key atomically so a crash never leaves half a key.
func (p *FileKeyProvider) StoreKey(key []byte) error {
	if len(key) != keySize {
		return fmt.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	if err := os.MkdirAll(filepath.Dir(p.keyPath), 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := writeFileAtomic(p.keyPath, []byte(hex.EncodeToString(key)+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// KeyExists checks if the key file exists.
func (p *FileKeyProvider) KeyExists() bool {
	_, err := os.Stat(p.keyPath)
	return err == nil
}

// GenerateKey creates a new random 256-bit key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	return key, nil
}

// EnsureKey returns the key for the store at storePath, generating one on
// first run. If the store already exists but the key does not, it returns
// ErrOrphanedStore instead of minting a key that cannot open it.
func EnsureKey(provider domain.KeyProvider, storePath string) ([]byte, error) {
	if provider.KeyExists() {
		return provider.GetKey()
	}
	if _, err := os.Stat(storePath); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrOrphanedStore, storePath)
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := provider.StoreKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Ensure FileKeyProvider implements domain.KeyProvider.
var _ domain.KeyProvider = (*FileKeyProvider)(nil)

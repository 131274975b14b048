// Package config loads console settings from the environment and keeps the
// operator's secrets (admin credential, remembered tenant) in the OS keychain.
package config

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/99designs/keyring"
)

const (
	serviceName = "consolectl"

	credentialPrefix = "credential:"
	tenantPrefix     = "tenant:"

	envKeyringBackend  = "CONSOLE_KEYRING_BACKEND"
	envKeyringPassword = "CONSOLE_KEYRING_PASSWORD"
	envCredentialsDir  = "CONSOLE_CREDENTIALS_DIR"

	keyringBackendAuto   = "auto"
	keyringBackendFile   = "file"
	keyringBackendSystem = "system"
)

// openKeyring is a package-level function for opening keyrings.
// It can be replaced in tests to use a mock keyring.
var openKeyring = func(cfg keyring.Config) (keyring.Keyring, error) {
	return keyring.Open(cfg)
}

var userConfigDir = os.UserConfigDir

var stdinHasTTY = func() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// SetOpenKeyring allows replacing the keyring opener for testing.
// Returns a cleanup function that restores the original.
func SetOpenKeyring(fn func(keyring.Config) (keyring.Keyring, error)) func() {
	original := openKeyring
	openKeyring = fn
	return func() { openKeyring = original }
}

// keyringConfig returns the keyring configuration
func keyringConfig() keyring.Config {
	cfg := keyring.Config{
		ServiceName: serviceName,
	}

	backend := keyringBackendMode()
	if backend == keyringBackendSystem {
		return cfg
	}

	// Configure the file backend so keyring.Open can fall through to
	// encrypted file storage when native backends are missing.
	cfg.FileDir = keyringFileDir()
	cfg.FilePasswordFunc = keyringFilePassword

	if shouldForceFileBackend(runtime.GOOS, backend, os.Getenv("DBUS_SESSION_BUS_ADDRESS")) {
		cfg.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
	}
	return cfg
}

func keyringBackendMode() string {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(envKeyringBackend))) {
	case keyringBackendFile:
		return keyringBackendFile
	case keyringBackendSystem, "os", "native":
		return keyringBackendSystem
	default:
		return keyringBackendAuto
	}
}

// shouldForceFileBackend: headless Linux has no secret service to talk to.
func shouldForceFileBackend(goos, backend, dbusAddr string) bool {
	if backend == keyringBackendFile {
		return true
	}
	if backend != keyringBackendAuto {
		return false
	}
	return goos == "linux" && strings.TrimSpace(dbusAddr) == ""
}

func keyringFileDir() string {
	base := strings.TrimSpace(os.Getenv(envCredentialsDir))
	if base == "" {
		if dir, err := userConfigDir(); err == nil && strings.TrimSpace(dir) != "" {
			base = filepath.Join(dir, serviceName)
		}
	}
	if base == "" {
		base = filepath.Join(os.TempDir(), serviceName)
	}
	return filepath.Join(base, "keyring")
}

func keyringFilePassword(prompt string) (string, error) {
	if password, ok := os.LookupEnv(envKeyringPassword); ok && strings.TrimSpace(password) != "" {
		return password, nil
	}
	if !stdinHasTTY() {
		return "", fmt.Errorf("set %s when using file keyring in non-interactive environments", envKeyringPassword)
	}
	return keyring.TerminalPrompt(prompt)
}

// scopeKey keeps secrets of different backends apart.
func scopeKey(prefix, baseURL string) string {
	hash := sha1.Sum([]byte(strings.TrimRight(baseURL, "/")))
	return prefix + hex.EncodeToString(hash[:8])
}

func loadSecret(key string) (string, error) {
	ring, err := openKeyring(keyringConfig())
	if err != nil {
		return "", fmt.Errorf("failed to open keyring: %w", err)
	}
	item, err := ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read keyring: %w", err)
	}
	return string(item.Data), nil
}

func saveSecret(key, label, value string) error {
	ring, err := openKeyring(keyringConfig())
	if err != nil {
		return fmt.Errorf("failed to open keyring: %w", err)
	}
	if err := ring.Set(keyring.Item{Key: key, Label: label, Data: []byte(value)}); err != nil {
		return fmt.Errorf("failed to save %s: %w", label, err)
	}
	return nil
}

func deleteSecret(key string) error {
	ring, err := openKeyring(keyringConfig())
	if err != nil {
		return fmt.Errorf("failed to open keyring: %w", err)
	}
	if err := ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("failed to remove secret: %w", err)
	}
	return nil
}

// LoadCredential returns the admin credential remembered for baseURL,
// "" when none is stored.
func LoadCredential(baseURL string) (string, error) {
	return loadSecret(scopeKey(credentialPrefix, baseURL))
}

// SaveCredential remembers the admin credential for baseURL. A blank token
// deletes it.
func SaveCredential(baseURL, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return DeleteCredential(baseURL)
	}
	return saveSecret(scopeKey(credentialPrefix, baseURL), "admin credential", token)
}

// DeleteCredential forgets the admin credential for baseURL.
func DeleteCredential(baseURL string) error {
	return deleteSecret(scopeKey(credentialPrefix, baseURL))
}

// LoadTenant returns the tenant remembered for baseURL, "" when none.
func LoadTenant(baseURL string) (string, error) {
	return loadSecret(scopeKey(tenantPrefix, baseURL))
}

// SaveTenant remembers the active tenant for baseURL. A blank id deletes it.
func SaveTenant(baseURL, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return DeleteTenant(baseURL)
	}
	return saveSecret(scopeKey(tenantPrefix, baseURL), "active tenant", id)
}

// DeleteTenant forgets the tenant for baseURL.
func DeleteTenant(baseURL string) error {
	return deleteSecret(scopeKey(tenantPrefix, baseURL))
}

package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps entries as JSON files so cached reads survive between CLI
// runs. Files are scoped per backend base URL. Disable with CONSOLE_NO_CACHE=1.
type FileStore struct {
	dir   string
	scope string
}

// NewFileStore creates a FileStore in dir scoped to baseURL.
func NewFileStore(dir, baseURL string) *FileStore {
	hash := sha1.Sum([]byte(baseURL))
	return &FileStore{
		dir:   dir,
		scope: hex.EncodeToString(hash[:6]),
	}
}

// DefaultDir returns the platform-appropriate cache directory,
// "$XDG_CACHE_HOME/consolectl" or equivalent.
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "consolectl"), nil
}

func (s *FileStore) path(key string) string {
	hash := sha1.Sum([]byte(key))
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.json", hex.EncodeToString(hash[:8]), s.scope))
}

// Get loads the entry for key. A missing, unreadable or foreign file is a miss.
func (s *FileStore) Get(_ context.Context, key string) (Entry, bool, error) {
	if disabled() {
		return Entry{}, false, nil
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil || e.Key != key {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Set writes the entry atomically (temp file then rename).
func (s *FileStore) Set(_ context.Context, entry Entry) error {
	if disabled() {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	target := s.path(entry.Key)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, target)
}

// Delete removes the file for key.
func (s *FileStore) Delete(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Clear removes every entry of this store's scope. Files of other scopes and
// files not matching the cache naming scheme are left alone.
func (s *FileStore) Clear(_ context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !isCacheFilename(e.Name(), s.scope) {
			continue
		}
		_ = os.Remove(filepath.Join(s.dir, e.Name()))
	}
	return nil
}

func disabled() bool {
	return os.Getenv("CONSOLE_NO_CACHE") != ""
}

// isCacheFilename matches "<16hex>_<scope>.json".
func isCacheFilename(name, scope string) bool {
	if filepath.Ext(name) != ".json" {
		return false
	}
	base := strings.TrimSuffix(name, ".json")
	key, got, ok := strings.Cut(base, "_")
	if !ok || got != scope {
		return false
	}
	return len(key) == 16 && isHex(key)
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}

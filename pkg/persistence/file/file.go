// Package file provides a file-based key-value store: one JSON document per key under
// root/<namespace>/<key>.json.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/dukex/warden/pkg/persistence"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// Persistence implements persistence.KV using the file system.
type Persistence struct {
	root string
	mu   sync.RWMutex
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	return &Persistence{root: strings.Replace(root, "file://", "", 1)}
}

func (fp *Persistence) path(namespace, key string) (string, error) {
	if !keyPattern.MatchString(namespace) || !keyPattern.MatchString(key) || strings.Contains(key, "..") {
		return "", persistence.ErrInvalidKey
	}

	return filepath.Join(fp.root, namespace, key+".json"), nil
}

// Load reads and decodes the document stored under namespace/key.
func (fp *Persistence) Load(_ context.Context, namespace, key string, out any) (bool, error) {
	filePath, err := fp.path(namespace, key)
	if err != nil {
		return false, persistence.NewKVError("Load", namespace, key, err)
	}

	fp.mu.RLock()
	defer fp.mu.RUnlock()

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, persistence.NewKVError("Load", namespace, key, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return false, persistence.NewKVError("Load", namespace, key, fmt.Errorf("failed to unmarshal: %w", err))
	}

	return true, nil
}

// Save writes value under namespace/key, replacing the previous document atomically.
func (fp *Persistence) Save(_ context.Context, namespace, key string, value any) error {
	filePath, err := fp.path(namespace, key)
	if err != nil {
		return persistence.NewKVError("Save", namespace, key, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return persistence.NewKVError("Save", namespace, key, fmt.Errorf("failed to marshal: %w", err))
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(filePath), 0750); err != nil {
		return persistence.NewKVError("Save", namespace, key, fmt.Errorf("failed to create directory: %w", err))
	}

	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return persistence.NewKVError("Save", namespace, key, err)
	}

	if err := os.Rename(tmp, filePath); err != nil {
		_ = os.Remove(tmp)

		return persistence.NewKVError("Save", namespace, key, err)
	}

	return nil
}

// Delete removes the document under namespace/key. Missing documents are not an error.
func (fp *Persistence) Delete(_ context.Context, namespace, key string) error {
	filePath, err := fp.path(namespace, key)
	if err != nil {
		return persistence.NewKVError("Delete", namespace, key, err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return persistence.NewKVError("Delete", namespace, key, err)
	}

	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

var _ persistence.KV = (*Persistence)(nil)

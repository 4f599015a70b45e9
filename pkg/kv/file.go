package kv

import (
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/coursepilot/coursepilot/pkg/utils"
	"github.com/pkg/errors"
)

// FileStore keeps one file per key under a data directory. Keys are
// sanitized for the filesystem; characters outside [a-zA-Z0-9._-] are
// hex-escaped so distinct keys never collide on disk.
//
// IO errors are contained: failed reads report absence, failed removes are
// ignored, failed writes are returned to the caller. ENOSPC maps to
// ErrQuotaExceeded so the session store's cleanup-and-retry path applies.
type FileStore struct {
	mu     sync.RWMutex
	dir    string
	logger *slog.Logger
}

// NewFileStore creates the data directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir, logger: utils.GetLogger()}, nil
}

func (s *FileStore) Read(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := os.ReadFile(s.path(key))
	if err != nil {
		return "", false
	}
	return string(b), true
}

func (s *FileStore) Write(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.path(key), []byte(value), 0o600); err != nil {
		return mapWriteError(err)
	}
	return nil
}

// mapWriteError converts an out-of-space failure into ErrQuotaExceeded so the
// session store's cleanup-and-retry path applies to full disks too.
func mapWriteError(err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return ErrQuotaExceeded
	}
	return err
}

func (s *FileStore) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Failed to remove key file", "key", key, "error", err)
	}
}

func (s *FileStore) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		key, ok := decodeFilename(e.Name())
		if !ok {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, encodeFilename(key))
}

// encodeFilename escapes key characters that are unsafe in filenames.
// '%' introduces a two-digit hex escape.
func encodeFilename(key string) string {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c == '%' || !isSafeFilenameChar(c) {
			b.WriteByte('%')
			b.WriteString(hex.EncodeToString([]byte{c}))
			continue
		}
		b.WriteByte(c)
	}
	return b.String() + ".json"
}

func decodeFilename(name string) (string, bool) {
	name, ok := strings.CutSuffix(name, ".json")
	if !ok {
		return "", false
	}
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		if name[i] != '%' {
			b.WriteByte(name[i])
			continue
		}
		if i+2 >= len(name) {
			return "", false
		}
		raw, err := hex.DecodeString(name[i+1 : i+3])
		if err != nil {
			return "", false
		}
		b.WriteByte(raw[0])
		i += 2
	}
	return b.String(), true
}

func isSafeFilenameChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.' || c == '_' || c == '-':
		return true
	}
	return false
}

package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// entry is the on-disk representation of one key.
type entry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileStore keeps one file per key under Dir. Keys are hashed, and the first
// two hex characters of the hash name a subdirectory.
type FileStore struct {
	Dir   string
	codec Codec

	subdirsMu   sync.Mutex
	subdirsMade map[string]bool
}

// NewFileStore creates dir if needed and checks that it is writable.
func NewFileStore(dir string, codec Codec) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("store directory cannot be empty")
	}
	if codec == nil {
		codec = plain{}
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	testFile := filepath.Join(dir, ".write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("store dir not writable: %w", err)
	}
	_ = os.Remove(testFile)

	return &FileStore{
		Dir:         dir,
		codec:       codec,
		subdirsMade: make(map[string]bool),
	}, nil
}

func (s *FileStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	h := hex.EncodeToString(sum[:])
	return filepath.Join(s.Dir, h[:2], h+s.codec.Extension())
}

// Get returns the value stored under key. A file that cannot be decoded is
// reported as an error rather than a miss.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}

	raw, err := s.codec.Decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("decompress %s: %w", key, err)
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", key, err)
	}
	if e.Key != key {
		return nil, false, fmt.Errorf("decode %s: file holds key %q", key, e.Key)
	}
	return e.Value, true, nil
}

// Set writes value under key via a temp file and rename, so readers observe
// either the old or the new value.
func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fn := s.path(key)
	if err := s.ensureDir(filepath.Dir(fn)); err != nil {
		return err
	}

	raw, err := json.Marshal(entry{Key: key, Value: value, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	data, err := s.codec.Encode(raw)
	if err != nil {
		return fmt.Errorf("compress %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fn), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, fn); err != nil {
		return errors.Join(fmt.Errorf("rename file: %w", err), os.Remove(tmpName))
	}
	return nil
}

func (s *FileStore) ensureDir(dir string) error {
	s.subdirsMu.Lock()
	defer s.subdirsMu.Unlock()
	if s.subdirsMade[dir] {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create subdirectory: %w", err)
	}
	s.subdirsMade[dir] = true
	return nil
}

// Len counts entries written with the current codec.
func (s *FileStore) Len(ctx context.Context) (int, error) {
	n := 0
	err := filepath.WalkDir(s.Dir, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !d.IsDir() && filepath.Ext(d.Name()) == s.codec.Extension() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk store dir: %w", err)
	}
	return n, nil
}

func (*FileStore) Close() error {
	return nil
}

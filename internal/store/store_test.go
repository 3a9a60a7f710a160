package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	for _, codecName := range []string{"none", "s2", "zstd"} {
		t.Run(codecName, func(t *testing.T) {
			codec, err := CodecByName(codecName)
			require.NoError(t, err)
			s, err := NewFileStore(t.TempDir(), codec)
			require.NoError(t, err)

			_, found, err := s.Get(ctx, "validators")
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, s.Set(ctx, "validators", []byte(`["a","b"]`)))
			v, found, err := s.Get(ctx, "validators")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, `["a","b"]`, string(v))

			require.NoError(t, s.Set(ctx, "validators", []byte(`["c"]`)))
			v, _, err = s.Get(ctx, "validators")
			require.NoError(t, err)
			assert.Equal(t, `["c"]`, string(v))

			n, err := s.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "total_stake", []byte(`"500"`)))
	require.NoError(t, s.Close())

	reopened, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	v, found, err := reopened.Get(ctx, "total_stake")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `"500"`, string(v))
}

func TestFileStoreCorruptFile(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "epoch", []byte("12")))

	require.NoError(t, os.WriteFile(s.path("epoch"), []byte("{not json"), 0o600))
	_, found, err := s.Get(ctx, "epoch")
	assert.Error(t, err)
	assert.False(t, found)
}

func TestFileStoreConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Set(ctx, "pgf", []byte(`{"v":1}`)))
		}()
	}
	wg.Wait()

	v, found, err := s.Get(ctx, "pgf")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"v":1}`, string(v))

	tmps, err := filepath.Glob(filepath.Join(s.Dir, "*", ".tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, tmps)
}

func TestNewFileStoreErrors(t *testing.T) {
	_, err := NewFileStore("", nil)
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	_, err = NewFileStore(filepath.Join(file, "sub"), nil)
	assert.Error(t, err)
}

func TestKeyValidation(t *testing.T) {
	ctx := context.Background()
	stores := map[string]Store{"memory": NewMemoryStore()}
	fs, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	stores["file"] = fs

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, s.Set(ctx, "", []byte("x")), ErrInvalidKey)
			_, _, err := s.Get(ctx, strings.Repeat("k", maxKeyLength+1))
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	value := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", value))
	value[0] = 'z'

	got, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "abc", string(got))

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCodecByName(t *testing.T) {
	_, err := CodecByName("lz4")
	assert.Error(t, err)

	for _, name := range []string{"", "none", "s2", "zstd"} {
		c, err := CodecByName(name)
		require.NoError(t, err)
		payload := []byte(strings.Repeat("namada", 100))
		enc, err := c.Encode(payload)
		require.NoError(t, err)
		dec, err := c.Decode(enc)
		require.NoError(t, err)
		assert.Equal(t, payload, dec)
	}
}

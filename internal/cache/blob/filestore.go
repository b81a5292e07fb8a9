package blob

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"

	"github.com/itmlab/anchorserve/pkg/errors"
)

// Blob file framing: magic, format version, payload length, payload CRC32,
// then the payload. A truncated or bit-flipped file fails the checks and is
// reported as corrupt rather than deserialized into wrong data.
const (
	fileMagic   uint32 = 0x41534243 // "ASBC"
	fileVersion uint32 = 1
	headerSize         = 16
)

// FileStore keeps one file per cache name under a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the cache directory if needed and returns a FileStore
// over it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Get reads and verifies the named entry.
func (s *FileStore) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(s.path(name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", errors.ErrCacheMiss, name)
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry %s: %w", name, err)
	}
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %s: truncated header", errors.ErrCacheCorrupt, name)
	}
	if binary.LittleEndian.Uint32(data[0:4]) != fileMagic {
		return nil, fmt.Errorf("%w: %s: bad magic", errors.ErrCacheCorrupt, name)
	}
	if binary.LittleEndian.Uint32(data[4:8]) != fileVersion {
		return nil, fmt.Errorf("%w: %s: unsupported version", errors.ErrCacheCorrupt, name)
	}
	size := binary.LittleEndian.Uint32(data[8:12])
	sum := binary.LittleEndian.Uint32(data[12:16])
	payload := data[headerSize:]
	if uint32(len(payload)) != size {
		return nil, fmt.Errorf("%w: %s: truncated payload", errors.ErrCacheCorrupt, name)
	}
	if crc32.ChecksumIEEE(payload) != sum {
		return nil, fmt.Errorf("%w: %s: checksum mismatch", errors.ErrCacheCorrupt, name)
	}
	return payload, nil
}

// Put writes the named entry atomically via a temp file and rename.
func (s *FileStore) Put(ctx context.Context, name string, payload []byte) error {
	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:4], fileMagic)
	binary.LittleEndian.PutUint32(header[4:8], fileVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[12:16], crc32.ChecksumIEEE(payload))

	final := s.path(name)
	tmp := final + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	if _, err := f.Write(header); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing cache header: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing cache payload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing temp cache file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming cache file: %w", err)
	}
	return nil
}

// Delete removes the named entry. Deleting a missing entry is not an error.
func (s *FileStore) Delete(ctx context.Context, name string) error {
	err := os.Remove(s.path(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting cache entry %s: %w", name, err)
	}
	return nil
}

// Ping verifies the cache directory is still writable.
func (s *FileStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("cache directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cache path %s is not a directory", s.dir)
	}
	return nil
}

func (s *FileStore) path(name string) string {
	// Names are fixed identifiers chosen at definition time, but keep the
	// file name safe regardless.
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
	return filepath.Join(s.dir, safe+".blob")
}

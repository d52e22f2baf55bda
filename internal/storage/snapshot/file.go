package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/yndnr/memkv/internal/storage/memory"
	"github.com/yndnr/memkv/pkg/crypto/adaptive"
)

var magicBytes = []byte("MEMKSNAP")

const (
	checksumSize = sha256.Size
	maxHeaderLen = 64 * 1024
)

// FileBackend stores the snapshot as one checksummed file.
type FileBackend struct {
	path   string
	cipher adaptive.Cipher
}

// NewFileBackend returns a backend writing to path. The parent directory
// is created if missing.
func NewFileBackend(path string, cipher adaptive.Cipher) (*FileBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}
	return &FileBackend{path: path, cipher: cipher}, nil
}

// Path returns the snapshot file path.
func (b *FileBackend) Path() string {
	return b.path
}

// Save writes st to a temp file next to the target and renames it over
// the previous snapshot.
func (b *FileBackend) Save(ctx context.Context, st *memory.State, aofOffset int64) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	hdr := header{
		Version:   headerVersion,
		CreatedAt: now.UnixMilli(),
		Keys:      len(st.Store),
		AOFOffset: aofOffset,
		Encrypted: b.cipher != nil,
	}
	hdrJSON, err := json.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal header: %w", err)
	}

	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal state: %w", err)
	}
	if b.cipher != nil {
		// The header is bound as additional data so it cannot be swapped.
		data, err = b.cipher.Encrypt(data, hdrJSON)
		if err != nil {
			return nil, fmt.Errorf("snapshot: encrypt: %w", err)
		}
	}
	if uint64(len(data)) > math.MaxUint32 {
		return nil, fmt.Errorf("snapshot: state too large (%d bytes)", len(data))
	}

	file, err := os.CreateTemp(filepath.Dir(b.path), filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("snapshot: create temp file: %w", err)
	}
	tempPath := file.Name()
	defer os.Remove(tempPath)

	hash := sha256.New()
	w := bufio.NewWriter(io.MultiWriter(file, hash))

	var lenBuf [4]byte
	_, _ = w.Write(magicBytes)
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(hdrJSON)))
	_, _ = w.Write(lenBuf[:])
	_, _ = w.Write(hdrJSON)
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	_, _ = w.Write(lenBuf[:])
	_, _ = w.Write(data)
	if err := w.Flush(); err != nil {
		file.Close()
		return nil, fmt.Errorf("snapshot: write: %w", err)
	}

	// Checksum trailer, not itself hashed.
	sum := hash.Sum(nil)
	if _, err := file.Write(sum); err != nil {
		file.Close()
		return nil, fmt.Errorf("snapshot: write checksum: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, fmt.Errorf("snapshot: sync: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("snapshot: stat: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("snapshot: close: %w", err)
	}
	if err := os.Rename(tempPath, b.path); err != nil {
		return nil, fmt.Errorf("snapshot: rename: %w", err)
	}

	return &Info{
		Backend:   BackendFile,
		Path:      b.path,
		Keys:      hdr.Keys,
		AOFOffset: aofOffset,
		CreatedAt: hdr.CreatedAt,
		Size:      stat.Size(),
		Checksum:  hex.EncodeToString(sum),
		Encrypted: hdr.Encrypted,
	}, nil
}

// Load verifies and decodes the snapshot file.
func (b *FileBackend) Load(ctx context.Context) (*memory.State, *Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	raw, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: read: %w", err)
	}
	if len(raw) < len(magicBytes)+8+checksumSize {
		return nil, nil, ErrChecksumMismatch
	}

	body, trailer := raw[:len(raw)-checksumSize], raw[len(raw)-checksumSize:]
	sum := sha256.Sum256(body)
	if !bytes.Equal(sum[:], trailer) {
		return nil, nil, ErrChecksumMismatch
	}
	if !bytes.Equal(body[:len(magicBytes)], magicBytes) {
		return nil, nil, ErrInvalidMagic
	}
	body = body[len(magicBytes):]

	hdrJSON, body, err := readBlock(body, maxHeaderLen)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: header: %w", err)
	}
	var hdr header
	if err := json.Unmarshal(hdrJSON, &hdr); err != nil {
		return nil, nil, fmt.Errorf("snapshot: unmarshal header: %w", err)
	}
	if hdr.Version != headerVersion {
		return nil, nil, fmt.Errorf("snapshot: unsupported version %d", hdr.Version)
	}

	data, rest, err := readBlock(body, math.MaxUint32)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: data: %w", err)
	}
	if len(rest) != 0 {
		return nil, nil, fmt.Errorf("snapshot: %d trailing bytes", len(rest))
	}

	if hdr.Encrypted {
		if b.cipher == nil {
			return nil, nil, ErrEncrypted
		}
		data, err = b.cipher.Decrypt(data, hdrJSON)
		if err != nil {
			return nil, nil, fmt.Errorf("snapshot: decrypt: %w", err)
		}
	}

	st := memory.NewState()
	if err := json.Unmarshal(data, st); err != nil {
		return nil, nil, fmt.Errorf("snapshot: unmarshal state: %w", err)
	}

	return st, &Info{
		Backend:   BackendFile,
		Path:      b.path,
		Keys:      hdr.Keys,
		AOFOffset: hdr.AOFOffset,
		CreatedAt: hdr.CreatedAt,
		Size:      int64(len(raw)),
		Checksum:  hex.EncodeToString(trailer),
		Encrypted: hdr.Encrypted,
	}, nil
}

// Close is a no-op; the file is only open during Save and Load.
func (b *FileBackend) Close() error {
	return nil
}

// readBlock splits a [len:4][bytes] block off the front of buf.
func readBlock(buf []byte, limit uint32) (block, rest []byte, err error) {
	if len(buf) < 4 {
		return nil, nil, io.ErrUnexpectedEOF
	}
	n := binary.BigEndian.Uint32(buf[:4])
	if n == 0 || n > limit {
		return nil, nil, fmt.Errorf("invalid length %d", n)
	}
	buf = buf[4:]
	if uint64(len(buf)) < uint64(n) {
		return nil, nil, io.ErrUnexpectedEOF
	}
	return buf[:n], buf[n:], nil
}

package store

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/graphd/graphd/pkg/gerrs"
	"github.com/klauspost/compress/zstd"
)

// BlobSink is the content-addressed store for property values above
// Config.BlobThresholdBytes (§4.1, §4.3): values are zstd-compressed and
// written under their SHA-256 content hash, so identical values (e.g. the
// same large JSON blob attached to many vertices) are stored once.
type BlobSink struct {
	dir      string
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
}

// NewBlobSink opens (creating if absent) the blob directory under dir.
func NewBlobSink(dir string) (*BlobSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, gerrs.Wrap(gerrs.Storage, err, "blob.New")
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, gerrs.Wrap(gerrs.Storage, err, "blob.New")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, gerrs.Wrap(gerrs.Storage, err, "blob.New")
	}
	return &BlobSink{dir: dir, encoder: enc, decoder: dec}, nil
}

// Close releases the shared encoder/decoder.
func (b *BlobSink) Close() error {
	b.encoder.Close()
	b.decoder.Close()
	return nil
}

// Put compresses and writes data under its content hash, returning that
// hash so the caller can store it in place of the value (§4.3's indirect
// blob reference).
func (b *BlobSink) Put(data []byte) ([32]byte, error) {
	hash := sha256.Sum256(data)
	path := b.path(hash)
	if _, err := os.Stat(path); err == nil {
		return hash, nil // already present, content-addressed dedup
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return hash, gerrs.Wrap(gerrs.Storage, err, "blob.Put")
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return hash, gerrs.Wrap(gerrs.Storage, err, "blob.Put")
	}
	compressed := b.encoder.EncodeAll(data, nil)
	if _, err := f.Write(compressed); err != nil {
		f.Close()
		return hash, gerrs.Wrap(gerrs.Storage, err, "blob.Put")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return hash, gerrs.Wrap(gerrs.Storage, err, "blob.Put")
	}
	if err := f.Close(); err != nil {
		return hash, gerrs.Wrap(gerrs.Storage, err, "blob.Put")
	}
	if err := os.Rename(tmp, path); err != nil {
		return hash, gerrs.Wrap(gerrs.Storage, err, "blob.Put")
	}
	return hash, nil
}

// Get reads and decompresses the blob identified by hash.
func (b *BlobSink) Get(hash [32]byte) ([]byte, error) {
	f, err := os.Open(b.path(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, gerrs.WithEntity(gerrs.New(gerrs.NotFound, "blob"), hex.EncodeToString(hash[:]))
		}
		return nil, gerrs.Wrap(gerrs.Storage, err, "blob.Get")
	}
	defer f.Close()
	compressed, err := io.ReadAll(f)
	if err != nil {
		return nil, gerrs.Wrap(gerrs.Storage, err, "blob.Get")
	}
	data, err := b.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, gerrs.Wrap(gerrs.Corruption, err, "blob.Get")
	}
	return data, nil
}

// path fans out blobs into 256 subdirectories keyed by the hash's first
// byte, the same sharding scheme content-addressed stores (dolt's chunk
// store, git's object store) use to keep any one directory small.
func (b *BlobSink) path(hash [32]byte) string {
	h := hex.EncodeToString(hash[:])
	return filepath.Join(b.dir, h[:2], h[2:])
}

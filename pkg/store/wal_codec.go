package store

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/graphd/graphd/pkg/gerrs"
)

// walDecoded is a WAL record's payload decoded back into a key/value/
// tombstone triple.
type walDecoded struct {
	key       []byte
	value     []byte
	tombstone bool
}

// encodeWALPayload packs a Put/Delete into the WAL's opaque payload:
// flag byte | keylen uint32 | key | value.
func encodeWALPayload(key, value []byte, tombstone bool) []byte {
	buf := make([]byte, 1+4+len(key)+len(value))
	if tombstone {
		buf[0] = 1
	}
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(key)))
	copy(buf[5:], key)
	copy(buf[5+len(key):], value)
	return buf
}

func decodeWALPayload(payload []byte) (walDecoded, error) {
	if len(payload) < 5 {
		return walDecoded{}, gerrs.New(gerrs.Corruption, "wal payload too short")
	}
	tombstone := payload[0] == 1
	keyLen := binary.BigEndian.Uint32(payload[1:5])
	if int(5+keyLen) > len(payload) {
		return walDecoded{}, gerrs.New(gerrs.Corruption, "wal payload key length out of range")
	}
	key := payload[5 : 5+keyLen]
	value := payload[5+keyLen:]
	return walDecoded{key: key, value: value, tombstone: tombstone}, nil
}

// sortedFileMeta is the (level, generation, path) triple parsed out of a
// sorted file's name on disk, used to rebuild the level list on recovery.
type sortedFileMeta struct {
	level int
	gen   int
	path  string
}

func scanSortedFiles(dir string) ([]sortedFileMeta, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, gerrs.Wrap(gerrs.Storage, err, "store.scanSortedFiles")
	}
	var metas []sortedFileMeta
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sst") {
			continue
		}
		var level, gen int
		if _, err := fmt.Sscanf(e.Name(), "L%d-%010d.sst", &level, &gen); err != nil {
			continue
		}
		metas = append(metas, sortedFileMeta{level: level, gen: gen, path: filepath.Join(dir, e.Name())})
	}
	return metas, nil
}

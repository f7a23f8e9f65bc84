package persistence

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	KindMemory = "memory"
	KindFile   = "file"
	KindSQLite = "sqlite"
)

// Open builds the backend named by kind. path is the JSON file or the SQLite
// database file; key selects the SQLite row.
func Open(kind string, path string, key string) (BlobStore, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindMemory:
		return NewMemoryBlobStore(), nil
	case KindFile:
		return NewFileBlobStore(path)
	case KindSQLite:
		dsn, err := SQLiteDSNForFile(path)
		if err != nil {
			return nil, err
		}
		return NewSQLiteBlobStore(dsn, key)
	default:
		return nil, errors.Errorf("unknown store kind %q (expected memory, file or sqlite)", kind)
	}
}

package infra

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

// OpenLevelDB opens (creating if necessary) the embedded LevelDB database
// that backs the default persistence store.
func OpenLevelDB(dir string) (*leveldb.DB, error) {
	if dir == "" {
		return nil, fmt.Errorf("data directory is required")
	}

	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", dir, err)
	}
	return db, nil
}

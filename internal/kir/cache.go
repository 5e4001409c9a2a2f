package kir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tavinathanson/imgtsero/internal/fsutil"
	"github.com/tavinathanson/imgtsero/internal/hlaerr"
)

// CachePath returns the cache file of a normalized version.
func CachePath(dataDir, version string) string {
	return filepath.Join(dataDir, fmt.Sprintf("kir_ligand_%s.json", version))
}

// LoadCache reads a cached ligand map. A missing file returns os.ErrNotExist
// (test with errors.Is); unreadable JSON is an ErrCacheCorrupt error.
func LoadCache(dataDir, version string) (LigandMap, error) {
	p := CachePath(dataDir, version)
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	var m LigandMap
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, hlaerr.Wrap(err, hlaerr.ErrCacheCorrupt, fmt.Sprintf("invalid KIR ligand cache %s", p))
	}
	if m == nil {
		return nil, hlaerr.Newf(hlaerr.ErrCacheCorrupt, "invalid KIR ligand cache %s: not a JSON object", p)
	}
	return m, nil
}

// SaveCache writes m as indented JSON, holding the data-directory lock while
// the file is replaced.
func SaveCache(dataDir, version string, m LigandMap, lockTimeout time.Duration) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	unlock, err := fsutil.AcquireLock(dataDir, lockTimeout)
	if err != nil {
		return err
	}
	defer unlock()
	if _, err := fsutil.WriteFileAtomic(CachePath(dataDir, version), bytes.NewReader(b), 0o644); err != nil {
		return fmt.Errorf("cannot write KIR ligand cache: %w", err)
	}
	return nil
}

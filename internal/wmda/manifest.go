package wmda

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/tavinathanson/imgtsero/internal/fsutil"
)

// Manifest records where a release's files came from and their digests, so
// doctor can tell a truncated or hand-edited file from a clean download.
type Manifest struct {
	Release   string       `json:"release"`
	Source    string       `json:"source"`
	FetchedAt string       `json:"fetched_at"`
	Files     []FileDigest `json:"files"`
}

// FileDigest is the BLAKE3 digest of one downloaded file.
type FileDigest struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	BLAKE3 string `json:"blake3"`
}

// ManifestPath returns the manifest location for release.
func ManifestPath(dataDir, release string) string {
	return filepath.Join(dataDir, fmt.Sprintf("manifest.%s.json", release))
}

// ReadManifest loads release's manifest from dataDir.
func ReadManifest(dataDir, release string) (*Manifest, error) {
	p := ManifestPath(dataDir, release)
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("cannot read manifest %s: %w", p, err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest JSON %s: %w", p, err)
	}
	return &m, nil
}

// WriteManifest stores m in dataDir.
func WriteManifest(dataDir string, m *Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if _, err := fsutil.WriteFileAtomic(ManifestPath(dataDir, m.Release), strings.NewReader(string(b)+"\n"), 0o644); err != nil {
		return fmt.Errorf("cannot write manifest: %w", err)
	}
	return nil
}

// Verify recomputes every file digest and returns the names of files that
// are missing or no longer match.
func (m *Manifest) Verify(dataDir string) ([]string, error) {
	var bad []string
	for _, f := range m.Files {
		sum, size, err := DigestFile(filepath.Join(dataDir, f.Name))
		if err != nil {
			if os.IsNotExist(err) {
				bad = append(bad, f.Name)
				continue
			}
			return nil, err
		}
		if size != f.Size || !strings.EqualFold(sum, f.BLAKE3) {
			bad = append(bad, f.Name)
		}
	}
	return bad, nil
}

// DigestFile returns the hex BLAKE3 digest and size of the file at path.
func DigestFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := blake3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

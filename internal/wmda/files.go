package wmda

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/tavinathanson/imgtsero/internal/hlaerr"
)

const (
	relDNASer = "rel_dna_ser"
	relSerSer = "rel_ser_ser"
)

var relDNASerRe = regexp.MustCompile(`^rel_dna_ser\.(\d+)\.txt$`)

// Files names the two relationship files of one release.
type Files struct {
	RelDNASer string `json:"rel_dna_ser_file"`
	RelSerSer string `json:"rel_ser_ser_file"`
}

// FilesFor returns the paths of release's files under dataDir.
func FilesFor(dataDir, release string) Files {
	return Files{
		RelDNASer: filepath.Join(dataDir, fmt.Sprintf("%s.%s.txt", relDNASer, release)),
		RelSerSer: filepath.Join(dataDir, fmt.Sprintf("%s.%s.txt", relSerSer, release)),
	}
}

// Releases lists the releases that have a rel_dna_ser file in dataDir,
// newest first.
func Releases(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot list data dir %s: %w", dataDir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if m := relDNASerRe.FindStringSubmatch(e.Name()); m != nil {
			out = append(out, m[1])
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.Atoi(out[i])
		b, _ := strconv.Atoi(out[j])
		return a > b
	})
	return out, nil
}

// LatestRelease returns the newest release with a rel_dna_ser file in dataDir.
func LatestRelease(dataDir string) (string, error) {
	rels, err := Releases(dataDir)
	if err != nil {
		return "", err
	}
	if len(rels) == 0 {
		return "", hlaerr.Newf(hlaerr.ErrDataNotFound, "no rel_dna_ser files found in %s", dataDir)
	}
	return rels[0], nil
}

// Load parses release's files from dataDir. A missing rel_dna_ser file is an
// ErrDataNotFound error; a missing rel_ser_ser file is tolerated.
func Load(dataDir, release string) (*Tables, error) {
	files := FilesFor(dataDir, release)

	dna, err := os.Open(files.RelDNASer)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, hlaerr.Wrap(err, hlaerr.ErrDataNotFound,
				fmt.Sprintf("rel_dna_ser file not found for release %s (run 'imgtsero download %s')", release, release))
		}
		return nil, fmt.Errorf("cannot open %s: %w", files.RelDNASer, err)
	}
	defer dna.Close()

	t := newTables(release)
	if err := t.readRelDNASer(dna); err != nil {
		return nil, fmt.Errorf("%s: %w", files.RelDNASer, err)
	}

	ser, err := os.Open(files.RelSerSer)
	switch {
	case os.IsNotExist(err):
		return t, nil
	case err != nil:
		return nil, fmt.Errorf("cannot open %s: %w", files.RelSerSer, err)
	}
	defer ser.Close()
	if err := t.readRelSerSer(ser); err != nil {
		return nil, fmt.Errorf("%s: %w", files.RelSerSer, err)
	}
	return t, nil
}

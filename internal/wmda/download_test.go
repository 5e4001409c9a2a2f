package wmda

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavinathanson/imgtsero/internal/hlaerr"
	"github.com/tavinathanson/imgtsero/internal/logging"
)

func newTestDownloader(t *testing.T, baseURL string) *Downloader {
	t.Helper()
	d := NewDownloader(t.TempDir())
	d.BaseURL = baseURL
	d.Logger = logging.Discard()
	d.LockTimeout = time.Second
	return d
}

func fixtureServer(t *testing.T, failSerSer bool) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("User-Agent") != "imgtsero" {
			http.Error(w, "missing user agent", http.StatusBadRequest)
			return
		}
		switch r.URL.Path {
		case "/3610/wmda/rel_dna_ser.txt":
			http.ServeFile(w, r, filepath.Join("testdata", "rel_dna_ser.3610.txt"))
		case "/3610/wmda/rel_ser_ser.txt":
			if failSerSer {
				http.Error(w, "upstream exploded", http.StatusInternalServerError)
				return
			}
			http.ServeFile(w, r, filepath.Join("testdata", "rel_ser_ser.3610.txt"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestDownloader_URLFor(t *testing.T) {
	d := NewDownloader("/data")
	assert.Equal(t,
		"https://raw.githubusercontent.com/ANHIG/IMGTHLA/3610/wmda/rel_dna_ser.txt",
		d.URLFor("3610", "rel_dna_ser"))

	d.BaseURL = "http://mirror.local/imgt/"
	assert.Equal(t, "http://mirror.local/imgt/3590/wmda/rel_ser_ser.txt", d.URLFor("3590", "rel_ser_ser"))
}

func TestDownloader_Download(t *testing.T) {
	srv, hits := fixtureServer(t, false)
	d := newTestDownloader(t, srv.URL)

	files, err := d.Download(context.Background(), "3610")
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
	assert.Equal(t, FilesFor(d.DataDir, "3610"), *files)

	want, err := os.ReadFile(filepath.Join("testdata", "rel_dna_ser.3610.txt"))
	require.NoError(t, err)
	got, err := os.ReadFile(files.RelDNASer)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	m, err := ReadManifest(d.DataDir, "3610")
	require.NoError(t, err)
	assert.Equal(t, srv.URL, m.Source)
	require.Len(t, m.Files, 2)
	assert.Equal(t, "rel_dna_ser.3610.txt", m.Files[0].Name)
	assert.EqualValues(t, len(want), m.Files[0].Size)
	bad, err := m.Verify(d.DataDir)
	require.NoError(t, err)
	assert.Empty(t, bad)

	tables, err := Load(d.DataDir, "3610")
	require.NoError(t, err)
	assert.Equal(t, []string{"C*03:02", "C*03:04"}, tables.MolecularFor("Cw10"))
}

func TestDownloader_FailureRemovesPartialRelease(t *testing.T) {
	srv, _ := fixtureServer(t, true)
	d := newTestDownloader(t, srv.URL)

	_, err := d.Download(context.Background(), "3610")
	require.Error(t, err)
	assert.True(t, hlaerr.Is(err, hlaerr.ErrDownloadFailed))
	assert.Contains(t, err.Error(), "failed to download rel_ser_ser.3610.txt")
	assert.Contains(t, err.Error(), "500")

	files := FilesFor(d.DataDir, "3610")
	assert.NoFileExists(t, files.RelDNASer)
	assert.NoFileExists(t, files.RelSerSer)
	assert.NoFileExists(t, ManifestPath(d.DataDir, "3610"))
	assertNoStagedFiles(t, d.DataDir)
}

func TestDownloader_FailedRefetchKeepsExistingRelease(t *testing.T) {
	good, _ := fixtureServer(t, false)
	d := newTestDownloader(t, good.URL)
	_, err := d.Download(context.Background(), "3610")
	require.NoError(t, err)
	before, err := ReadManifest(d.DataDir, "3610")
	require.NoError(t, err)

	bad, _ := fixtureServer(t, true)
	d.BaseURL = bad.URL
	_, err = d.Download(context.Background(), "3610")
	require.Error(t, err)
	assert.True(t, hlaerr.Is(err, hlaerr.ErrDownloadFailed))

	files := FilesFor(d.DataDir, "3610")
	assert.FileExists(t, files.RelDNASer)
	assert.FileExists(t, files.RelSerSer)
	assertNoStagedFiles(t, d.DataDir)

	after, err := ReadManifest(d.DataDir, "3610")
	require.NoError(t, err)
	assert.Equal(t, before.Source, after.Source)
	changed, err := after.Verify(d.DataDir)
	require.NoError(t, err)
	assert.Empty(t, changed)

	tables, err := Load(d.DataDir, "3610")
	require.NoError(t, err)
	assert.Equal(t, []string{"C*03:02", "C*03:04"}, tables.MolecularFor("Cw10"))
}

func assertNoStagedFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".partial") || strings.Contains(e.Name(), ".tmp-"), e.Name())
	}
}

func TestDownloader_UnknownRelease(t *testing.T) {
	srv, _ := fixtureServer(t, false)
	d := newTestDownloader(t, srv.URL)

	_, err := d.Download(context.Background(), "1")
	require.Error(t, err)
	assert.True(t, hlaerr.Is(err, hlaerr.ErrDownloadFailed))
	assert.Contains(t, err.Error(), "rel_dna_ser.1.txt")
	assert.True(t, strings.Contains(err.Error(), "404"))
}

func TestDownloader_EmptyRelease(t *testing.T) {
	d := newTestDownloader(t, "http://127.0.0.1:1")
	_, err := d.Download(context.Background(), "  ")
	assert.EqualError(t, err, "release is required")
}

func TestDownloader_CancelledContext(t *testing.T) {
	srv, _ := fixtureServer(t, false)
	d := newTestDownloader(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Download(ctx, "3610")
	require.Error(t, err)
	assert.True(t, hlaerr.Is(err, hlaerr.ErrDownloadFailed))
	assert.NoFileExists(t, FilesFor(d.DataDir, "3610").RelDNASer)
}

func TestDownloader_Progress(t *testing.T) {
	srv, _ := fixtureServer(t, false)
	d := newTestDownloader(t, srv.URL)
	last := map[string]int64{}
	d.Progress = func(url string, downloaded, _ int64) {
		assert.GreaterOrEqual(t, downloaded, last[url])
		last[url] = downloaded
	}

	_, err := d.Download(context.Background(), "3610")
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join("testdata", "rel_dna_ser.3610.txt"))
	require.NoError(t, err)
	assert.Equal(t, info.Size(), last[d.URLFor("3610", "rel_dna_ser")])
	assert.Len(t, last, 2)
}

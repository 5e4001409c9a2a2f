package wmda

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/tavinathanson/imgtsero/internal/fsutil"
	"github.com/tavinathanson/imgtsero/internal/hlaerr"
	"github.com/tavinathanson/imgtsero/internal/logging"
)

// DefaultBaseURL serves the IMGT/HLA GitHub repository by release tag.
const DefaultBaseURL = "https://raw.githubusercontent.com/ANHIG/IMGTHLA"

// Downloader fetches a release's relationship files into DataDir. Each fetch
// is a single attempt; failures surface immediately.
type Downloader struct {
	BaseURL     string
	DataDir     string
	Client      *http.Client
	Logger      *slog.Logger
	LockTimeout time.Duration

	// Progress, if set, is called as bytes of url arrive. total is -1 when
	// the server sends no Content-Length.
	Progress func(url string, downloaded, total int64)
}

// NewDownloader returns a Downloader with default base URL and client.
func NewDownloader(dataDir string) *Downloader {
	return &Downloader{
		BaseURL:     DefaultBaseURL,
		DataDir:     dataDir,
		Client:      &http.Client{},
		Logger:      logging.Default(),
		LockTimeout: 30 * time.Second,
	}
}

// URLFor returns the upstream URL of one relationship file.
func (d *Downloader) URLFor(release, name string) string {
	return fmt.Sprintf("%s/%s/wmda/%s.txt", strings.TrimRight(d.BaseURL, "/"), release, name)
}

// Download fetches rel_dna_ser and rel_ser_ser for release. Both files are
// staged next to their destinations and installed only once every fetch has
// succeeded, so a failure leaves any existing copy of the release untouched.
func (d *Downloader) Download(ctx context.Context, release string) (*Files, error) {
	release = strings.TrimSpace(release)
	if release == "" {
		return nil, fmt.Errorf("release is required")
	}
	unlock, err := fsutil.AcquireLock(d.DataDir, d.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer unlock()

	files := FilesFor(d.DataDir, release)
	targets := []struct {
		name string
		dest string
	}{
		{relDNASer, files.RelDNASer},
		{relSerSer, files.RelSerSer},
	}

	manifest := &Manifest{
		Release:   release,
		Source:    strings.TrimRight(d.BaseURL, "/"),
		FetchedAt: time.Now().UTC().Format(time.RFC3339),
	}

	var report func(url string, downloaded, total int64)
	if d.Progress != nil {
		var mu sync.Mutex
		report = func(url string, downloaded, total int64) {
			mu.Lock()
			defer mu.Unlock()
			d.Progress(url, downloaded, total)
		}
	}

	// Both files are fetched concurrently. A failure does not cancel the
	// other fetch, so errors are reported in target order.
	digests := make([]*FileDigest, len(targets))
	errs := make([]error, len(targets))
	var g errgroup.Group
	for i, tgt := range targets {
		i, tgt := i, tgt
		g.Go(func() error {
			digests[i], errs[i] = d.fetch(ctx, d.URLFor(release, tgt.name), tgt.dest, report)
			return errs[i]
		})
	}
	if g.Wait() != nil {
		for _, tgt := range targets {
			_ = fsutil.RemoveIfExists(stagedPath(tgt.dest))
		}
		for i, tgt := range targets {
			if errs[i] != nil {
				return nil, hlaerr.Wrap(errs[i], hlaerr.ErrDownloadFailed,
					fmt.Sprintf("failed to download %s.%s.txt", tgt.name, release))
			}
		}
	}
	for i, tgt := range targets {
		if err := os.Rename(stagedPath(tgt.dest), tgt.dest); err != nil {
			for _, rest := range targets[i:] {
				_ = fsutil.RemoveIfExists(stagedPath(rest.dest))
			}
			return nil, hlaerr.Wrap(err, hlaerr.ErrDownloadFailed,
				fmt.Sprintf("cannot install %s", filepath.Base(tgt.dest)))
		}
	}
	for _, digest := range digests {
		manifest.Files = append(manifest.Files, *digest)
	}

	if err := WriteManifest(d.DataDir, manifest); err != nil {
		d.logger().Warn("cannot record download manifest", "release", release, "err", err)
	}
	return &files, nil
}

func (d *Downloader) fetch(ctx context.Context, url, dest string, report func(string, int64, int64)) (*FileDigest, error) {
	client := d.Client
	if client == nil {
		client = &http.Client{}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "imgtsero")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, fmt.Errorf("download failed: %s\n%s", resp.Status, strings.TrimSpace(string(body)))
	}

	var body io.Reader = resp.Body
	if report != nil {
		body = &progressReader{r: resp.Body, url: url, total: resp.ContentLength, report: report}
	}
	h := blake3.New()
	n, err := fsutil.WriteFileAtomic(stagedPath(dest), io.TeeReader(body, h), 0o644)
	if err != nil {
		return nil, err
	}
	d.logger().Info("downloaded", "url", url, "path", dest, "size", humanize.Bytes(uint64(n)))
	return &FileDigest{
		Name:   filepath.Base(dest),
		Size:   n,
		BLAKE3: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// stagedPath is where fetch leaves dest until the whole release is in.
// The leading dot keeps it out of Releases.
func stagedPath(dest string) string {
	return filepath.Join(filepath.Dir(dest), "."+filepath.Base(dest)+".partial")
}

func (d *Downloader) logger() *slog.Logger {
	if d.Logger == nil {
		return logging.Default()
	}
	return d.Logger
}

type progressReader struct {
	r      io.Reader
	url    string
	read   int64
	total  int64
	report func(url string, downloaded, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.report(p.url, p.read, p.total)
	}
	return n, err
}

package kir

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tavinathanson/imgtsero/internal/hlaerr"
)

// DefaultIPDURL is the IPD-IMGT/HLA allele endpoint.
const DefaultIPDURL = "https://www.ebi.ac.uk/cgi-bin/ipd/api/allele"

const (
	ipdFields   = "name,locus,matching.kir_ligand,release_version"
	ipdPageSize = "100000"
	maxPages    = 100
)

// IPDClient queries the IPD-IMGT/HLA REST API for class I KIR ligand
// assignments.
//
// It issues:
//
//	GET {baseURL}?fields=...&query=and(or(eq(locus,"A*"),...),eq(release_version,"3.61.0"))&limit=100000&format=json
//
// and follows meta.next while the API reports further pages.
type IPDClient struct {
	baseURL string
	client  *http.Client
}

// NewIPDClient returns a client for baseURL, or DefaultIPDURL when empty.
// A zero timeout leaves requests bounded only by the context.
func NewIPDClient(baseURL string, timeout time.Duration) *IPDClient {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultIPDURL
	}
	return &IPDClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *IPDClient) ID() string {
	return "ipd:" + c.baseURL
}

// QueryURL returns the first-page URL for version.
func (c *IPDClient) QueryURL(version string) string {
	params := url.Values{}
	params.Set("fields", ipdFields)
	params.Set("query", fmt.Sprintf(`and(or(eq(locus,"A*"),eq(locus,"B*"),eq(locus,"C*")), eq(release_version,"%s"))`, version))
	params.Set("limit", ipdPageSize)
	params.Set("format", "json")
	return c.baseURL + "?" + params.Encode()
}

type ipdPage struct {
	Data []struct {
		Name      string  `json:"name"`
		KIRLigand *string `json:"matching.kir_ligand"`
	} `json:"data"`
	Meta struct {
		Next string `json:"next"`
	} `json:"meta"`
}

// Fetch downloads every A, B and C allele of version with its ligand.
func (c *IPDClient) Fetch(ctx context.Context, version string) (LigandMap, error) {
	out := make(LigandMap)
	next := c.QueryURL(version)
	for page := 0; next != "" && page < maxPages; page++ {
		p, err := c.fetchPage(ctx, next, version)
		if err != nil {
			return nil, err
		}
		for _, e := range p.Data {
			if e.Name != "" {
				out[e.Name] = e.KIRLigand
			}
		}
		next, err = c.resolveNext(next, p.Meta.Next)
		if err != nil {
			return nil, hlaerr.Wrap(err, hlaerr.ErrFetchFailed, "Error parsing API response")
		}
	}
	if next != "" {
		return nil, hlaerr.Newf(hlaerr.ErrFetchFailed,
			"Error fetching KIR ligand data: still paging after %d pages", maxPages)
	}
	if len(out) == 0 {
		return nil, hlaerr.Newf(hlaerr.ErrNoData, "No KIR ligand data found for version %s", version)
	}
	return out, nil
}

func (c *IPDClient) fetchPage(ctx context.Context, pageURL, version string) (*ipdPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "imgtsero")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, hlaerr.Wrap(err, hlaerr.ErrFetchFailed, "Error connecting to IPD-IMGT/HLA API")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, hlaerr.Newf(hlaerr.ErrVersionUnsupported, "KIR ligand data not available for version %s", version)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, hlaerr.Newf(hlaerr.ErrFetchFailed,
			"Error fetching KIR ligand data: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var p ipdPage
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, hlaerr.Wrap(err, hlaerr.ErrFetchFailed, "Error parsing API response")
	}
	return &p, nil
}

// resolveNext turns a meta.next value, which the API gives either as an
// absolute URL or as a query string, into the next page URL.
func (c *IPDClient) resolveNext(current, next string) (string, error) {
	next = strings.TrimSpace(next)
	if next == "" {
		return "", nil
	}
	base, err := url.Parse(current)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(next)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

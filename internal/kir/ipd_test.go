package kir

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavinathanson/imgtsero/internal/hlaerr"
)

func TestIPDClient_QueryURL(t *testing.T) {
	c := NewIPDClient("", 0)
	u, err := url.Parse(c.QueryURL("3.61.0"))
	require.NoError(t, err)
	assert.Equal(t, "www.ebi.ac.uk", u.Host)
	assert.Equal(t, "/cgi-bin/ipd/api/allele", u.Path)

	q := u.Query()
	assert.Equal(t, "name,locus,matching.kir_ligand,release_version", q.Get("fields"))
	assert.Equal(t, `and(or(eq(locus,"A*"),eq(locus,"B*"),eq(locus,"C*")), eq(release_version,"3.61.0"))`, q.Get("query"))
	assert.Equal(t, "100000", q.Get("limit"))
	assert.Equal(t, "json", q.Get("format"))
	assert.Equal(t, "ipd:"+DefaultIPDURL, c.ID())
}

func TestIPDClient_FetchFollowsPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `{"data":[{"name":"C*01:02:01","matching.kir_ligand":"C1"}],"meta":{}}`)
			return
		}
		assert.Contains(t, r.URL.Query().Get("query"), `eq(release_version,"3.61.0")`)
		fmt.Fprint(w, `{"data":[
			{"name":"B*27:05:02","locus":"B*","matching.kir_ligand":"Bw4 - 80T"},
			{"name":"B*07:02:01","matching.kir_ligand":null},
			{"name":"","matching.kir_ligand":"Bw6"}
		],"meta":{"next":"?page=2"}}`)
	}))
	defer srv.Close()

	m, err := NewIPDClient(srv.URL, 5*time.Second).Fetch(context.Background(), "3.61.0")
	require.NoError(t, err)
	assert.Len(t, m, 3)
	assert.Equal(t, "Bw4 - 80T", *m["B*27:05:02"])
	assert.Nil(t, m["B*07:02:01"])
	assert.Contains(t, m, "B*07:02:01")
	assert.Equal(t, "C1", *m["C*01:02:01"])
}

func TestIPDClient_EndlessPagingFails(t *testing.T) {
	var served atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := served.Add(1)
		fmt.Fprintf(w, `{"data":[{"name":"A*01:%02d","matching.kir_ligand":null}],"meta":{"next":"?page=%d"}}`, n, n+1)
	}))
	defer srv.Close()

	m, err := NewIPDClient(srv.URL, 5*time.Second).Fetch(context.Background(), "3.61.0")
	require.Error(t, err)
	assert.Nil(t, m)
	assert.True(t, hlaerr.Is(err, hlaerr.ErrFetchFailed))
	assert.EqualError(t, err, fmt.Sprintf("Error fetching KIR ligand data: still paging after %d pages", maxPages))
	assert.EqualValues(t, maxPages, served.Load())
}

func TestIPDClient_Errors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		code    hlaerr.Code
		message string
	}{
		{"not found", http.StatusNotFound, "", hlaerr.ErrVersionUnsupported, "KIR ligand data not available for version 9.99.0"},
		{"empty", http.StatusOK, `{"data":[]}`, hlaerr.ErrNoData, "No KIR ligand data found for version 9.99.0"},
		{"server error", http.StatusBadGateway, "bad gateway", hlaerr.ErrFetchFailed, "Error fetching KIR ligand data: HTTP 502: bad gateway"},
		{"bad json", http.StatusOK, `{"data":`, hlaerr.ErrFetchFailed, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()

			_, err := NewIPDClient(srv.URL, 0).Fetch(context.Background(), "9.99.0")
			require.Error(t, err)
			assert.True(t, hlaerr.Is(err, tc.code), "got %s", hlaerr.CodeOf(err))
			assert.Equal(t, hlaerr.KindData, hlaerr.KindOf(err))
			if tc.message != "" {
				assert.EqualError(t, err, tc.message)
			}
		})
	}
}

func TestIPDClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := NewIPDClient(base, time.Second).Fetch(context.Background(), "3.61.0")
	require.Error(t, err)
	assert.True(t, hlaerr.Is(err, hlaerr.ErrFetchFailed))
	assert.Contains(t, err.Error(), "Error connecting to IPD-IMGT/HLA API")
}

package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bioexplorer/internal/parser"
)

func TestExtractParagraphs(t *testing.T) {
	html := `<html><head><title>t</title></head><body>
		<nav>menu</nav>
		<p> Plants grown in  microgravity. </p>
		<div><p>Roots lose orientation.</p><p>   </p></div>
	</body></html>`

	got, err := ExtractParagraphs(strings.NewReader(html))
	require.NoError(t, err)
	assert.Equal(t, "Plants grown in  microgravity. Roots lose orientation.", got)
}

func writeCatalog(t *testing.T, dir string, urls ...string) *parser.Catalog {
	t.Helper()
	var b strings.Builder
	b.WriteString("Title,Link\n")
	for i, u := range urls {
		fmt.Fprintf(&b, "Paper %d,%s\n", i, u)
	}
	p := filepath.Join(dir, "index.csv")
	require.NoError(t, os.WriteFile(p, []byte(b.String()), 0o644))
	c, err := parser.LoadCatalog(p)
	require.NoError(t, err)
	return c
}

func TestFetchAll(t *testing.T) {
	var hits atomic.Int32
	var userAgent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		userAgent.Store(r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/ok":
			fmt.Fprint(w, "<p>Bone density declines.</p>")
		case "/empty":
			fmt.Fprint(w, "<div>no paragraphs</div>")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	out := filepath.Join(dir, "texts")
	catalog := writeCatalog(t, dir, srv.URL+"/ok", "", srv.URL+"/missing", srv.URL+"/empty", srv.URL+"/ok")

	// row 4 was fetched on an earlier run
	require.NoError(t, os.MkdirAll(out, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(out, "4.txt"), []byte("cached"), 0o644))

	var progress []int
	f := NewFetcher(FetcherConfig{
		OutDir:     out,
		RateLimit:  1000,
		UserAgent:  "bioexplorer-test",
		OnProgress: func(i int, _ string) { progress = append(progress, i) },
	})
	stats, err := f.FetchAll(context.Background(), catalog)
	require.NoError(t, err)

	assert.Equal(t, Stats{Fetched: 1, Skipped: 3, Failed: 1}, stats)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, progress)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, "bioexplorer-test", userAgent.Load())

	data, err := os.ReadFile(filepath.Join(out, "0.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Bone density declines.", string(data))

	data, err = os.ReadFile(filepath.Join(out, "4.txt"))
	require.NoError(t, err)
	assert.Equal(t, "cached", string(data))

	assert.NoFileExists(t, filepath.Join(out, "1.txt"))
	assert.NoFileExists(t, filepath.Join(out, "2.txt"))
	assert.NoFileExists(t, filepath.Join(out, "3.txt"))
}

func TestFetchAllStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	catalog := writeCatalog(t, dir, "http://127.0.0.1:1/a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFetcher(FetcherConfig{OutDir: filepath.Join(dir, "out")}).FetchAll(ctx, catalog)
	assert.ErrorIs(t, err, context.Canceled)
}

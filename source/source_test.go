package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/cyverse/go-imageloader/commons"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/img", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("image-bytes"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/img", http.StatusFound)
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestHTTPSourceFetch(t *testing.T) {
	server := newTestServer(t)

	source := NewHTTPSource(HTTPSourceConfig{
		Timeout:      5 * time.Second,
		MaxRedirects: 3,
		UserAgent:    "test-agent",
		Referer:      "http://example.com/",
	}, nil)

	response, err := source.Fetch(context.Background(), server.URL+"/img")
	require.NoError(t, err)
	response.Body.Close()
	assert.Equal(t, 200, response.StatusCode)
	assert.Equal(t, server.URL+"/img", response.Location)

	data, err := ReadAll(context.Background(), source, server.URL+"/img")
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))
}

func TestHTTPSourceHeaders(t *testing.T) {
	server := newTestServer(t)

	var seen *http.Request
	transport := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		seen = r
		return http.DefaultTransport.RoundTrip(r)
	})

	source := NewHTTPSource(HTTPSourceConfig{
		Timeout:   5 * time.Second,
		UserAgent: "test-agent",
		Referer:   "http://example.com/",
	}, transport)

	response, err := source.Fetch(context.Background(), server.URL+"/img")
	require.NoError(t, err)
	response.Body.Close()

	require.NotNil(t, seen)
	assert.Equal(t, "test-agent", seen.UserAgent())
	assert.Equal(t, "http://example.com/", seen.Referer())
}

type roundTripperFunc func(r *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestHTTPSourceRedirects(t *testing.T) {
	server := newTestServer(t)

	source := NewHTTPSource(HTTPSourceConfig{
		Timeout:      5 * time.Second,
		MaxRedirects: 2,
	}, nil)

	response, err := source.Fetch(context.Background(), server.URL+"/redirect")
	require.NoError(t, err)
	response.Body.Close()
	assert.Equal(t, server.URL+"/img", response.Location)

	// the redirect limit surfaces the next target instead of following it
	response, err = source.Fetch(context.Background(), server.URL+"/loop")
	require.NoError(t, err)
	response.Body.Close()
	assert.True(t, IsRedirect(response))
	assert.Equal(t, http.StatusFound, response.StatusCode)
	assert.Equal(t, server.URL+"/loop", response.Location)

	_, err = ReadAll(context.Background(), source, server.URL+"/loop")
	require.Error(t, err)
	assert.True(t, commons.IsIOError(err))

	noRedirectSource := NewHTTPSource(HTTPSourceConfig{
		Timeout:      5 * time.Second,
		MaxRedirects: 0,
	}, nil)

	response, err = noRedirectSource.Fetch(context.Background(), server.URL+"/redirect")
	require.NoError(t, err)
	response.Body.Close()
	assert.True(t, IsRedirect(response))
	assert.Equal(t, server.URL+"/img", response.Location)

	// re-resolving the surfaced location reaches the image
	data, err := ReadAll(context.Background(), noRedirectSource, response.Location)
	require.NoError(t, err)
	assert.Equal(t, []byte("image-bytes"), data)
}

func TestHTTPSourceErrors(t *testing.T) {
	server := newTestServer(t)

	source := NewHTTPSource(HTTPSourceConfig{
		Timeout: 5 * time.Second,
	}, nil)

	_, err := source.Fetch(context.Background(), server.URL+"/missing")
	require.Error(t, err)
	assert.True(t, commons.IsNotFoundError(err))
	assert.False(t, commons.IsIOError(err))

	_, err = source.Fetch(context.Background(), server.URL+"/gone")
	assert.True(t, commons.IsNotFoundError(err))

	_, err = source.Fetch(context.Background(), server.URL+"/broken")
	require.Error(t, err)
	assert.True(t, commons.IsIOError(err))
	assert.False(t, commons.IsNotFoundError(err))
}

func TestHTTPSourceCancelled(t *testing.T) {
	server := newTestServer(t)

	source := NewHTTPSource(HTTPSourceConfig{
		Timeout:           5 * time.Second,
		RequestsPerSecond: 100,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := source.Fetch(ctx, server.URL+"/img")
	require.Error(t, err)
	assert.True(t, commons.IsCancelledError(err))
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(p, []byte("file-bytes"), 0o644))

	source := NewFileSource()

	data, err := ReadAll(context.Background(), source, p)
	require.NoError(t, err)
	assert.Equal(t, "file-bytes", string(data))

	data, err = ReadAll(context.Background(), source, "file://"+filepath.ToSlash(p))
	require.NoError(t, err)
	assert.Equal(t, "file-bytes", string(data))

	_, err = source.Fetch(context.Background(), filepath.Join(dir, "none.bin"))
	assert.True(t, commons.IsNotFoundError(err))

	_, err = source.Fetch(context.Background(), dir)
	assert.True(t, commons.IsIOError(err))
}

func TestResourceSource(t *testing.T) {
	fsys := fstest.MapFS{
		"icons/star.png": &fstest.MapFile{Data: []byte("star")},
	}

	source := NewResourceSource(fsys)

	data, err := ReadAll(context.Background(), source, "res://icons/star.png")
	require.NoError(t, err)
	assert.Equal(t, "star", string(data))

	_, err = source.Fetch(context.Background(), "res://icons/moon.png")
	assert.True(t, commons.IsNotFoundError(err))

	_, err = source.Fetch(context.Background(), "res://icons")
	assert.True(t, commons.IsIOError(err))

	_, err = source.Fetch(context.Background(), "res://")
	assert.True(t, commons.IsIOError(err))

	p, err := GetResourcePath("res://icons/../icons/star.png")
	require.NoError(t, err)
	assert.Equal(t, "icons/star.png", p)
}

func TestSchemeSource(t *testing.T) {
	server := newTestServer(t)

	dir := t.TempDir()
	p := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(p, []byte("file-bytes"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "res"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "res", "b.bin"), []byte("res-bytes"), 0o644))

	config := commons.NewDefaultConfig()
	config.ResourceRootPath = filepath.Join(dir, "res")

	source := NewSchemeSourceFromConfig(config)

	data, err := ReadAll(context.Background(), source, p)
	require.NoError(t, err)
	assert.Equal(t, "file-bytes", string(data))

	data, err = ReadAll(context.Background(), source, "res://b.bin")
	require.NoError(t, err)
	assert.Equal(t, "res-bytes", string(data))

	data, err = ReadAll(context.Background(), source, server.URL+"/img")
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))

	_, err = source.Fetch(context.Background(), "ftp://example.com/a.png")
	assert.True(t, commons.IsIOError(err))
}

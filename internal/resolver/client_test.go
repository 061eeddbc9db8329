package resolver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/finchlyline/relsleuth/internal/model"
	"github.com/finchlyline/relsleuth/internal/resolver"
)

func TestNewClient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "plain", url: "http://engine.local"},
		{name: "trailing slash", url: "http://engine.local/"},
		{name: "https with port", url: "https://engine.local:8443"},
		{name: "path rejected", url: "http://engine.local/api", wantErr: true},
		{name: "no scheme", url: "engine.local", wantErr: true},
		{name: "empty", url: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := resolver.NewClient(tt.url, time.Minute)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCheckURL(t *testing.T) {
	t.Parallel()

	require.NoError(t, resolver.CheckURL("http://host/archive.zip"))
	require.NoError(t, resolver.CheckURL("https://host/archive.zip"))
	require.NoError(t, resolver.CheckURL("file:///tmp/archive.zip"))

	err := resolver.CheckURL("xxyy:/malformedUrl.zip")
	require.ErrorIs(t, err, resolver.ErrUnknownScheme)
	require.Contains(t, err.Error(), "xxyy")
	require.Contains(t, err.Error(), "malformedUrl.zip")
}

func TestResolve(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	seen := map[string]int{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, http.MethodPost, req.Method)
		require.Equal(t, "/api/v1/resolve", req.URL.Path)

		var body struct {
			URL string `json:"url"`
		}
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		mu.Lock()
		seen[body.URL]++
		mu.Unlock()

		matches := model.RawMatchSet{{
			Key: model.RawBuildKey{System: model.BuildSystemPNC, ID: 7},
			Build: model.RawBuild{
				PncID: "7",
				Archives: []model.RawArchive{{
					Filename:  body.URL,
					Filenames: []string{body.URL},
				}},
			},
		}}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(matches))
	}))
	defer srv.Close()

	c, err := resolver.NewClient(srv.URL, time.Minute)
	require.NoError(t, err)

	urls := []string{"http://host/a.zip", "http://host/b.zip", "http://host/c.zip"}
	out, err := c.Resolve(t.Context(), urls)
	require.NoError(t, err)
	require.Len(t, out, len(urls))

	// results line up with the input order regardless of which engine
	// call finished first
	for i, u := range urls {
		require.Len(t, out[i], 1)
		require.Equal(t, u, out[i][0].Build.Archives[0].Filename)
	}
	require.Len(t, seen, 3)
}

func TestResolveBadRequest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"unsupported archive format"}`))
	}))
	defer srv.Close()

	c, err := resolver.NewClient(srv.URL, time.Minute)
	require.NoError(t, err)

	_, err = c.Resolve(t.Context(), []string{"http://host/a.zip"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported archive format")
	require.Contains(t, err.Error(), "http://host/a.zip")
}

func TestResolveUnexpectedStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("engine restarting"))
	}))
	defer srv.Close()

	c, err := resolver.NewClient(srv.URL, time.Minute)
	require.NoError(t, err)

	_, err = c.Resolve(t.Context(), []string{"http://host/a.zip"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
	require.Contains(t, err.Error(), "engine restarting")
}

func TestResolveWrongContentType(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	c, err := resolver.NewClient(srv.URL, time.Minute)
	require.NoError(t, err)

	_, err = c.Resolve(t.Context(), []string{"http://host/a.zip"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "content type")
}

func TestResolveRejectsBadLocatorUpfront(t *testing.T) {
	t.Parallel()

	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	defer srv.Close()

	c, err := resolver.NewClient(srv.URL, time.Minute)
	require.NoError(t, err)

	_, err = c.Resolve(t.Context(), []string{"http://host/a.zip", "ftp://host/b.zip"})
	require.ErrorIs(t, err, resolver.ErrUnknownScheme)
	require.False(t, called, "engine must not be contacted for an invalid locator")
}

func TestResolveContextAbort(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		select {
		case <-release:
		case <-req.Context().Done():
		}
	}))
	defer srv.Close()
	// must run before srv.Close so the handler can return
	defer close(release)

	c, err := resolver.NewClient(srv.URL, time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	_, err = c.Resolve(ctx, []string{"http://host/a.zip"})
	require.Error(t, err)
}

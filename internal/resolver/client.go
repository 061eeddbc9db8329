package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/finchlyline/relsleuth/internal/model"
)

const (
	resolvePath = "api/v1/resolve"
	contentType = "application/json"

	// one engine call per deliverable URL, a few in flight at once
	resolveParallelism = 4
)

// Client resolves deliverables against an HTTP build-resolution
// engine.
type Client struct {
	requestURL *url.URL
	client     *http.Client
}

// NewClient validates the engine base URL, which must carry a scheme
// and no path, e.g. `http://engine.local`.
func NewClient(serverURL string, timeout time.Duration) (*Client, error) {
	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	parsedURL.Path = strings.TrimRight(parsedURL.Path, "/")

	if parsedURL.Scheme == "" || parsedURL.Host == "" || parsedURL.Path != "" {
		return nil, errors.New("please define the engine url with a scheme and without path, e.g. `http://some-url.com`")
	}

	parsedURL.Path = resolvePath

	return &Client{
		requestURL: parsedURL,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

type resolveRequest struct {
	URL string `json:"url"`
}

// Resolve fans the input URLs out to the engine and collects the raw
// match sets back in input order. The first failure aborts the
// remaining calls through the group context.
func (c *Client) Resolve(ctx context.Context, urls []string) ([]model.RawMatchSet, error) {
	for _, u := range urls {
		if err := CheckURL(u); err != nil {
			return nil, err
		}
	}

	out := make([]model.RawMatchSet, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveParallelism)
	for i, u := range urls {
		g.Go(func() error {
			m, err := c.resolveOne(gctx, u)
			if err != nil {
				return fmt.Errorf("resolving %q: %w", u, err)
			}
			out[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) resolveOne(ctx context.Context, deliverable string) (model.RawMatchSet, error) {
	body, err := json.Marshal(resolveRequest{URL: deliverable})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.requestURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	matches, err := c.decodeResolveResponse(resp)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "deliverable resolved",
		slog.String("url", deliverable),
		slog.Int("entries", len(matches)))
	return matches, nil
}

func (c *Client) decodeResolveResponse(resp *http.Response) (model.RawMatchSet, error) {
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse response content type header: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if mediaType != contentType {
			return nil, fmt.Errorf("expected `application/json` content type, got: %s", mediaType)
		}
		var matches model.RawMatchSet
		if err := json.NewDecoder(resp.Body).Decode(&matches); err != nil {
			return nil, fmt.Errorf("decoding json response failed: %w", err)
		}
		return matches, nil

	case http.StatusBadRequest:
		var problemDetail struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&problemDetail); err != nil {
			return nil, fmt.Errorf("decoding json response failed: %w", err)
		}
		return nil, fmt.Errorf("status code: %d, detail: %s", resp.StatusCode, problemDetail.Detail)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("unknown error, status: %d, body: %s", resp.StatusCode, string(respBody))
}

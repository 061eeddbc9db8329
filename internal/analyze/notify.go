package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/finchlyline/relsleuth/internal/model"
)

// Notifier performs the one-shot HTTP deliveries this service makes to
// caller endpoints: heartbeats while a job runs and the single terminal
// callback. Deliveries are fire and forget; a failed delivery is logged
// and never retried, and never alters the job's already decided state.
type Notifier struct {
	client *http.Client
}

func NewNotifier() *Notifier {
	return &Notifier{client: &http.Client{}}
}

// Deliver sends body (JSON, may be nil) to target. Method defaults to
// POST. A non-2xx response is an error; callers log it and move on.
func (n *Notifier) Deliver(ctx context.Context, target model.Target, body any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding delivery body: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	method := target.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, target.URI, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.WarnContext(ctx, "delivery endpoint returned non-2xx",
			slog.String("uri", target.URI),
			slog.Int("status", resp.StatusCode))
		return fmt.Errorf("delivery to %s: status %d", target.URI, resp.StatusCode)
	}
	return nil
}

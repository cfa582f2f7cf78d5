package notifications

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var httpCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// HTTPNotifier posts welcome notifications to an external provider endpoint.
type HTTPNotifier struct {
	url    string
	client *http.Client
}

func NewHTTPNotifier(url string) *HTTPNotifier {
	return &HTTPNotifier{
		url: url,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (n *HTTPNotifier) SendWelcome(ctx context.Context, in SendWelcomeInput) error {
	body, err := httpCodec.Marshal(map[string]string{
		"email":    in.Email,
		"fullName": in.FullName,
	})
	if err != nil {
		return fmt.Errorf("encode welcome payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build welcome request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)

	if err != nil {
		return fmt.Errorf("send welcome: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("send welcome: provider returned %d", resp.StatusCode)
	}

	return nil
}

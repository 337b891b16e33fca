package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Proxy implements the Extractor interface against a scan-proxy
// endpoint: a backend function that holds the model credential, accepts
// {"image": <base64>} and forwards the request upstream.
//
// The proxy reports failures in the response body, not the status code:
// every answer is HTTP 200 and an "error" key marks a failed scan. That
// contract is load-bearing for existing deployments, so this client
// inspects the body rather than the status.
type Proxy struct {
	url    string
	client *http.Client
}

// NewProxy creates a new Proxy Extractor instance
func NewProxy(url string) (*Proxy, error) {
	if url == "" {
		return nil, fmt.Errorf("scan proxy url is required")
	}

	return &Proxy{
		url: url,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

// proxyRequest is the body posted to the scan proxy.
type proxyRequest struct {
	Image string `json:"image"`
}

// proxyFailure is the error shape the proxy embeds in an HTTP 200 body.
type proxyFailure struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// Extract posts the image payload to the proxy and returns the body text
// of a successful scan, which is the extracted-fields JSON.
func (p *Proxy) Extract(ctx context.Context, payload string, mimeType string) (string, error) {
	reqBody, err := json.Marshal(proxyRequest{Image: payload})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.url, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &NetworkError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &ProtocolError{Reason: fmt.Sprintf("unexpected status %d from scan proxy", resp.StatusCode)}
	}

	if !json.Valid(body) {
		return "", &ProtocolError{Reason: "scan proxy response is not JSON"}
	}

	var failure proxyFailure
	if err := json.Unmarshal(body, &failure); err == nil && failure.Error != "" {
		return "", &UpstreamError{
			Message: failure.Error,
			Details: failure.Details,
		}
	}

	return string(body), nil
}

// Close closes the Proxy extractor (no-op for HTTP client)
func (p *Proxy) Close() error {
	return nil
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/google/uuid"
)

// APIError is a non-2xx answer from the admin API.
type APIError struct {
	Code      int
	Status    string
	RequestID string
	Body      string
}

func (e *APIError) Error() string {
	msg := e.Status
	if msg == "" {
		msg = e.Body
	}
	if e.RequestID != "" {
		return fmt.Sprintf("HTTP %d: %s (request %s)", e.Code, msg, e.RequestID)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, msg)
}

// CLI talks to the admin API of a running srmgate.
type CLI struct {
	BaseURL string
	Token   string
	Client  *http.Client
	Out     io.Writer
}

// ---- HTTP Helpers ----

func (c *CLI) get(ctx context.Context, path string) ([]byte, error) {
	return c.request(ctx, http.MethodGet, path, nil)
}

func (c *CLI) post(ctx context.Context, path string, body any) ([]byte, error) {
	return c.request(ctx, http.MethodPost, path, body)
}

// request sends a JSON request tagged with a fresh request id, which the
// server echoes back in error responses.
func (c *CLI) request(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
		var payload struct {
			Status    string `json:"status"`
			RequestID string `json:"request_id"`
		}
		if json.Unmarshal(data, &payload) == nil {
			apiErr.Status = payload.Status
			apiErr.RequestID = payload.RequestID
		}
		return nil, apiErr
	}
	return data, nil
}

func (c *CLI) prettyPrint(data []byte) error {
	var obj any
	if err := json.Unmarshal(data, &obj); err != nil {
		fmt.Fprintln(c.Out, string(data))
		return nil
	}
	out, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.Out, string(out))
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

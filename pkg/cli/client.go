package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Environment variables read for the global flags
const (
	EnvServer = "SHOPFRONT_SERVER"
	EnvToken  = "SHOPFRONT_TOKEN"
)

const defaultServer = "http://localhost:8080"

// APIError is a non-2xx answer from the administration API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.StatusCode)
}

// envelope mirrors the server's response body
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Total   *int            `json:"total"`
}

// Client calls the administration API
type Client struct {
	server     string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the server at the given base URL
func NewClient(server, token string) *Client {
	return &Client{
		server:     strings.TrimRight(server, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Get decodes the data of a GET response into dest and returns the envelope message
func (c *Client) Get(ctx context.Context, path string, dest interface{}) (string, error) {
	return c.do(ctx, http.MethodGet, path, nil, dest)
}

// Post sends body as JSON, decodes the data of the response into dest and returns the envelope message
func (c *Client) Post(ctx context.Context, path string, body, dest interface{}) (string, error) {
	return c.do(ctx, http.MethodPost, path, body, dest)
}

func (c *Client) do(ctx context.Context, method, path string, body, dest interface{}) (string, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.server+path, reader)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("failed to decode response: %w", decodeErr)
	}

	if dest != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, dest); err != nil {
			return "", fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return env.Message, nil
}

// addGlobalFlags registers -server and -token on a command's flag set
func addGlobalFlags(fs *flag.FlagSet) {
	server := os.Getenv(EnvServer)
	if server == "" {
		server = defaultServer
	}
	fs.String("server", server, "Shopfront server URL (env "+EnvServer+")")
	fs.String("token", os.Getenv(EnvToken), "Bearer token of an account allowed to manage routes (env "+EnvToken+")")
}

func clientFromFlags(fs *flag.FlagSet) *Client {
	return NewClient(fs.Lookup("server").Value.String(), fs.Lookup("token").Value.String())
}

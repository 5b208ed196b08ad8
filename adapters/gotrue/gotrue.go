// Package gotrue talks to a GoTrue-compatible auth server (Supabase Auth)
// through its admin API using the service-role key.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lborres/opgate"
)

const defaultPerPage = 200

type Config struct {
	// URL is the auth base, e.g. https://project.supabase.co/auth/v1.
	URL            string
	ServiceRoleKey string
	// PerPage bounds each page of the admin user listing.
	PerPage int
	Client  *http.Client
}

type Client struct {
	baseURL string
	key     string
	perPage int
	http    *http.Client
}

var _ opgate.IdentityProvider = (*Client)(nil)

func New(cfg Config) *Client {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	perPage := cfg.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		key:     cfg.ServiceRoleKey,
		perPage: perPage,
		http:    client,
	}
}

// errorBody covers the shapes GoTrue has used for errors across versions.
type errorBody struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (b errorBody) code() string {
	if b.ErrorCode != "" {
		return b.ErrorCode
	}
	if s, ok := b.Code.(string); ok {
		return s
	}
	return b.Error
}

func (b errorBody) message() string {
	for _, m := range []string{b.Msg, b.Message, b.ErrorDescription, b.Error} {
		if m != "" {
			return m
		}
	}
	return ""
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gotrue: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("gotrue: build request: %w", err)
	}
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gotrue: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gotrue: decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		body.Message = strings.TrimSpace(string(raw))
	}
	msg := body.message()
	if msg == "" {
		msg = resp.Status
	}
	return &opgate.ProviderError{
		Status:  resp.StatusCode,
		Code:    body.code(),
		Message: msg,
	}
}

// classify maps provider errors onto the sentinels callers branch on.
func classify(err error) error {
	var pe *opgate.ProviderError
	if !errors.As(err, &pe) {
		return err
	}
	switch {
	case pe.Code == "email_exists" || pe.Code == "user_already_exists":
		return fmt.Errorf("%w: %s", opgate.ErrIdentityExists, pe.Message)
	case pe.Code == "user_not_found" || pe.Status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", opgate.ErrIdentityNotFound, pe.Message)
	case pe.Code == "invalid_grant" || pe.Code == "invalid_credentials":
		return fmt.Errorf("%w: %s", opgate.ErrIdentityInvalidCredentials, pe.Message)
	}
	return err
}

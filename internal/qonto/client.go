package qonto

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/verone/backoffice/internal/config"
	"github.com/verone/backoffice/internal/logger"
	"golang.org/x/oauth2"
)

const requestTimeout = 20 * time.Second

var (
	ErrNotConfigured = errors.New("qonto client is not configured")
	ErrUnauthorized  = errors.New("qonto rejected the credentials")
)

// APIError is returned for any non-2xx answer from Qonto.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("qonto api error (%d): %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL       string
	bankAccountID string
	authHeader    string
	httpClient    *http.Client
}

// NewClient builds a client for the configured auth mode. In api_key mode each
// request carries "slug:secret" in the Authorization header; in oauth mode an
// access token is minted from the refresh token and renewed as it expires.
func NewClient(ctx context.Context, cfg *config.AppConfig) (*Client, error) {
	c := &Client{
		baseURL:       cfg.QontoBaseURL,
		bankAccountID: cfg.QontoBankAccountID,
	}

	switch cfg.QontoAuthMode {
	case config.QontoAuthOAuth:
		if cfg.QontoOAuthClientID == "" || cfg.QontoOAuthRefreshToken == "" {
			return nil, fmt.Errorf("%w: oauth client id and refresh token are required", ErrNotConfigured)
		}
		oauthConfig := &oauth2.Config{
			ClientID:     cfg.QontoOAuthClientID,
			ClientSecret: cfg.QontoOAuthClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.QontoOAuthTokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}
		tokenSource := oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.QontoOAuthRefreshToken})
		c.httpClient = oauth2.NewClient(ctx, tokenSource)
		c.httpClient.Timeout = requestTimeout
	default:
		switch {
		case cfg.QontoAPIKey != "":
			c.authHeader = cfg.QontoAPIKey
		case cfg.QontoOrganizationSlug != "" && cfg.QontoSecretKey != "":
			c.authHeader = cfg.QontoOrganizationSlug + ":" + cfg.QontoSecretKey
		default:
			return nil, fmt.Errorf("%w: api key or organization slug and secret key are required", ErrNotConfigured)
		}
		c.httpClient = &http.Client{Timeout: requestTimeout}
	}
	return c, nil
}

func (c *Client) BankAccountID() string {
	return c.bankAccountID
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode qonto request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qonto request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	logger.L.Debug("qonto request", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start).String())

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode qonto response: %w", err)
	}
	return nil
}

// readErrorMessage extracts the first message of a Qonto error body, falling
// back to the raw text.
func readErrorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Message string `json:"message"`
		Errors  []struct {
			Code   string `json:"code"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if len(body.Errors) > 0 {
			if body.Errors[0].Detail != "" {
				return body.Errors[0].Detail
			}
			return body.Errors[0].Code
		}
	}
	return string(bytes.TrimSpace(raw))
}

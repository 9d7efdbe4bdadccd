package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/brightpath-io/activity-sync/pkg/errors"

	"github.com/brightpath-io/activity-sync/pkg/db/models"
	"github.com/brightpath-io/activity-sync/pkg/logger"
)

const (
	headerCorrelationID = "X-Correlation-ID"

	authPath       = "/auth"
	activitiesPath = "/activities"
)

// Client talks to the remote system of record. It is stateless apart from
// the shared token cache; the integration configuration is passed per call
// so an admin swap of the default config takes effect on the next run.
type Client struct {
	http   *http.Client
	cache  *TokenCache
	logger *logger.Logger
}

// ClientParams collects the dependencies for the remote client.
type ClientParams struct {
	Cache      *TokenCache
	Logger     *logger.Logger
	HTTPClient *http.Client
}

// NewClient builds the remote client, validating required dependencies.
func NewClient(params ClientParams) (*Client, error) {
	if params.Cache == nil {
		return nil, fmt.Errorf("token cache required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	httpClient := params.HTTPClient
	if httpClient == nil {
		// Per-call timeouts come from the integration config via context.
		httpClient = &http.Client{}
	}
	return &Client{http: httpClient, cache: params.Cache, logger: params.Logger}, nil
}

// Create submits a new record to the remote system.
func (c *Client) Create(ctx context.Context, cfg *models.IntegrationConfig, item SubmitItem, correlationID string) (*Result, error) {
	return c.submit(ctx, cfg, http.MethodPost, item, correlationID)
}

// Update pushes a changed record to the remote system.
func (c *Client) Update(ctx context.Context, cfg *models.IntegrationConfig, item SubmitItem, correlationID string) (*Result, error) {
	return c.submit(ctx, cfg, http.MethodPut, item, correlationID)
}

// Delete asks the remote system to remove the record.
func (c *Client) Delete(ctx context.Context, cfg *models.IntegrationConfig, item SubmitItem, correlationID string) (*Result, error) {
	return c.submit(ctx, cfg, http.MethodDelete, item, correlationID)
}

// Authenticate logs into the remote system and returns a fresh token. Most
// callers go through the token cache instead; this is the refresh path.
func (c *Client) Authenticate(ctx context.Context, cfg *models.IntegrationConfig) (Token, error) {
	body, err := json.Marshal(authRequest{Login: cfg.Login, Password: cfg.Password})
	if err != nil {
		return Token{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode auth request")
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, cfg.BaseURL+authPath, bytes.NewReader(body))
	if err != nil {
		return Token{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build auth request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Token{}, mapTransportError(err, "remote authentication")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Token{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read auth response")
	}
	if resp.StatusCode != http.StatusOK {
		return Token{}, pkgerrors.New(pkgerrors.CodeUnauthorized,
			fmt.Sprintf("remote authentication returned %d", resp.StatusCode))
	}

	var parsed authResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Token{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode auth response")
	}
	if !parsed.Success || parsed.AccessToken == "" {
		message := parsed.Message
		if message == "" {
			message = "remote authentication rejected"
		}
		return Token{}, pkgerrors.New(pkgerrors.CodeUnauthorized, message)
	}

	token := Token{AccessToken: parsed.AccessToken}
	if parsed.ExpiresAt != "" {
		if expiry, err := time.Parse(time.RFC3339, parsed.ExpiresAt); err == nil {
			token.ExpiresAt = expiry
		}
	}
	return token, nil
}

func (c *Client) submit(ctx context.Context, cfg *models.IntegrationConfig, method string, item SubmitItem, correlationID string) (*Result, error) {
	if cfg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "integration config required")
	}
	if item.IdempotencyHash == "" {
		item.IdempotencyHash = item.Fingerprint()
	}

	scope := tokenScope(cfg)
	token, err := c.cache.GetOrRefresh(ctx, scope, func(ctx context.Context) (Token, error) {
		return c.Authenticate(ctx, cfg)
	})
	if err != nil {
		return nil, err
	}

	// The wire contract is array-shaped even for a single item.
	body, err := json.Marshal([]SubmitItem{item})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode submission")
	}

	endpoint := cfg.BaseURL + activitiesPath
	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build submission request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set(headerCorrelationID, correlationID)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, mapTransportError(err, "remote submission")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read submission response")
	}

	result := &Result{
		HTTPStatus: resp.StatusCode,
		Endpoint:   endpoint,
		Body:       string(raw),
		Duration:   time.Since(started),
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		// The cached token was refused; drop it so the next attempt logs in.
		c.cache.Invalidate(ctx, scope)
		return result, pkgerrors.New(pkgerrors.CodeUnauthorized, "remote rejected credentials")
	case resp.StatusCode >= http.StatusInternalServerError:
		return result, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("remote returned %d", resp.StatusCode))
	}

	entries, err := normalizeSubmitBody(raw)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode submission response")
	}

	for _, entry := range entries {
		result.Errors = append(result.Errors, entry.Errors...)
		for _, ok := range entry.Success {
			if ok.Key.NaturalKey != "" && result.ExternalID == "" {
				result.ExternalID = ok.Key.NaturalKey
			}
		}
	}

	if len(result.Errors) > 0 || resp.StatusCode >= http.StatusBadRequest {
		message := "remote rejected the submission"
		if len(result.Errors) > 0 {
			message = strings.Join(result.Errors, "; ")
		}
		return result, pkgerrors.New(pkgerrors.CodeRemoteRejected, message).WithDetails(result.Errors)
	}
	if result.ExternalID == "" {
		return result, pkgerrors.New(pkgerrors.CodeDependency, "remote response missing acknowledgement")
	}
	return result, nil
}

func tokenScope(cfg *models.IntegrationConfig) string {
	return fmt.Sprintf("config:%d", cfg.ID)
}

func mapTransportError(err error, op string) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, op+" timed out")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op+" failed")
}

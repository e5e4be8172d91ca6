package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tippslottet/internal/types"
)

// resendAPIBase is the default Resend API base URL.
// Overridable in tests via ResendClientConfig.BaseURL.
const resendAPIBase = "https://api.resend.com"

// ResendClientConfig holds the configuration for creating a ResendClient.
type ResendClientConfig struct {
	APIKey  string
	BaseURL string // Override for testing; defaults to resendAPIBase
	Logger  *slog.Logger
}

// ResendClient implements types.EmailProvider by calling the Resend
// /emails endpoint through BaseClient, inheriting circuit breaking, retries,
// and error mapping. The mailer's rate limiter paces calls into Send; this
// client treats each call as one logical operation.
type ResendClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewResendClient creates a ResendClient with the platform's standard
// resilience settings. The httpClient timeout should be around 10 seconds.
func NewResendClient(httpClient *http.Client, cfg ResendClientConfig) *ResendClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = resendAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"resend",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"TippSlottet/1.0",
	)

	return &ResendClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// NewResendClientWithBase creates a ResendClient with a pre-configured
// BaseClient. Useful in tests to control retry and breaker behavior.
func NewResendClientWithBase(base *BaseClient, cfg ResendClientConfig) *ResendClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = resendAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ResendClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// resendSendPayload is the JSON request body for POST /emails.
type resendSendPayload struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	ReplyTo string            `json:"reply_to,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// resendSendResponse is the JSON success body: {"id": "..."}.
type resendSendResponse struct {
	ID string `json:"id"`
}

// resendErrorResponse is the JSON error body returned by Resend.
type resendErrorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Send transmits an email via Resend and returns the provider message id.
//
// Error mapping:
//   - 403 / suppressed recipient -> types.ErrCodeEmailBlocked
//   - 429 -> handled by BaseClient (retry, then ErrCodeUpstreamRateLimited)
//   - 5xx -> handled by BaseClient (retry, then ErrCodeUpstreamUnavailable)
//   - other 4xx -> types.ErrCodeUpstreamEmailProvider
func (c *ResendClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	payload := resendSendPayload{
		From:    formatFrom(input.From),
		To:      input.To,
		Subject: input.Subject,
		HTML:    input.HTML,
		ReplyTo: input.ReplyTo,
	}
	if input.ReferenceID != "" {
		payload.Headers = map[string]string{"X-Entity-Ref-ID": input.ReferenceID}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal Resend send payload",
			err,
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create Resend send request",
			err,
		)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.base.Do(req)
	if err != nil {
		// BaseClient already mapped breaker/retry failures to AppErrors.
		if _, ok := err.(*types.AppError); ok {
			return "", err
		}
		return "", types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("Resend request failed: %v", err),
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var out resendSendResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&out); decodeErr != nil {
			return "", types.NewAppError(
				types.ErrCodeUpstreamEmailProvider,
				"Resend returned 200 with an unreadable body",
				decodeErr,
			)
		}
		return out.ID, nil
	}

	return "", c.handleErrorResponse(resp)
}

// handleErrorResponse maps a non-200 Resend response to a types.AppError.
func (c *ResendClient) handleErrorResponse(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("Resend returned status %d and response body was unreadable", resp.StatusCode),
			readErr,
		)
	}

	var apiErr resendErrorResponse
	message := string(body)
	if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && apiErr.Message != "" {
		message = apiErr.Message
	}

	switch {
	case resp.StatusCode == http.StatusForbidden:
		// Recipient suppressed or domain blocked.
		return types.NewAppError(
			types.ErrCodeEmailBlocked,
			fmt.Sprintf("Resend blocked delivery: %s", message),
			nil,
		)
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			"Resend rate limit exceeded",
			nil,
		)
	case resp.StatusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("Resend server error: %s", message),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("Resend error (%d): %s", resp.StatusCode, message),
			nil,
		)
	}
}

// formatFrom renders a sender as "Name <address>" or the bare address when
// no display name is configured.
func formatFrom(from types.EmailAddress) string {
	if from.Name == "" {
		return from.Address
	}
	return fmt.Sprintf("%s <%s>", from.Name, from.Address)
}

// IsBlocklistError reports whether err represents a provider-side recipient
// block, which is terminal and must not be retried.
func IsBlocklistError(err error) bool {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == types.ErrCodeEmailBlocked
}

// Compile-time assertion that ResendClient satisfies types.EmailProvider.
var _ types.EmailProvider = (*ResendClient)(nil)

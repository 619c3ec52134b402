package paystack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phillip/membership-portal-go/apperrors"
)

const maxResponseBytes = 1 << 20

// Client talks to the Paystack REST API. It is safe for concurrent use and never retries.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type verifyResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    Transaction `json:"data"`
}

// VerifyTransaction asks the gateway for the authoritative state of reference.
// The returned transaction may still be unsuccessful; callers must check Successful.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, fmt.Errorf("%w: reference is required", apperrors.ErrValidation)
	}
	if c.secretKey == "" {
		return nil, fmt.Errorf("%w: paystack secret key not configured", apperrors.ErrGatewayUnavailable)
	}

	endpoint := c.baseURL + "/transaction/verify/" + url.PathEscape(reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", apperrors.ErrGatewayUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %w: %v", apperrors.ErrGatewayUnavailable, apperrors.ErrGatewayTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %w: %v", apperrors.ErrGatewayUnavailable, apperrors.ErrGatewayTimeout, err)
		}
		return nil, fmt.Errorf("%w: read response: %v", apperrors.ErrGatewayUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: paystack returned %s", apperrors.ErrGatewayUnavailable, resp.Status)
	}

	var out verifyResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode >= http.StatusBadRequest {
		msg := resp.Status
		if decodeErr == nil && out.Message != "" {
			msg = out.Message
		}
		return nil, fmt.Errorf("%w: %s", apperrors.ErrGatewayRejected, msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: decode response: %v", apperrors.ErrGatewayUnavailable, decodeErr)
	}
	if !out.Status {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrGatewayRejected, out.Message)
	}
	if out.Data.Reference == "" {
		out.Data.Reference = reference
	}

	return &out.Data, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

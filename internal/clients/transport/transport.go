// Package transport is the JSON over HTTP plumbing shared by the payment, fulfillment and
// notification clients.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Bessima/gift-fulfillment/internal/customerror"
	"github.com/Bessima/gift-fulfillment/internal/middlewares/logger"
	"github.com/Bessima/gift-fulfillment/internal/retry"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 10 * time.Second
	maxRetryAfter  = 30 * time.Second
)

type Client struct {
	Service     string
	Address     string
	HTTPClient  *http.Client
	RetryConfig retry.Config
}

func NewClient(service, address string) *Client {
	return &Client{
		Service:     service,
		Address:     strings.TrimRight(address, "/"),
		HTTPClient:  &http.Client{Timeout: defaultTimeout},
		RetryConfig: retry.ExternalRetryConfig,
	}
}

// Request describes one call. Out may be nil when the response body is not needed.
type Request struct {
	Method         string
	Path           string
	IdempotencyKey string
	Body           any
	Out            any
}

// Do performs the request within the client's retry budget. Failures are reported as
// *customerror.ExternalServiceError; 5xx, 429 and network errors are transient.
func (client *Client) Do(ctx context.Context, req Request) error {
	var payload []byte
	if req.Body != nil {
		var err error
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", client.Service, err)
		}
	}

	return retry.DoRetry(ctx, func() error {
		return client.once(ctx, req, payload)
	}, client.RetryConfig)
}

func (client *Client) once(ctx context.Context, req Request, payload []byte) error {
	url := client.Address + req.Path

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpRequest, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return customerror.NewExternalServiceError(client.Service, 0, false, err)
	}
	httpRequest.Header.Set("Accept", "application/json")
	if payload != nil {
		httpRequest.Header.Set("Content-Type", "application/json")
	}
	if req.IdempotencyKey != "" {
		httpRequest.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	response, err := client.HTTPClient.Do(httpRequest)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = fmt.Errorf("failed to call %s %s: %w", req.Method, url, err)
		return customerror.NewExternalServiceError(client.Service, 0, true, err)
	}
	defer func() {
		if err := response.Body.Close(); err != nil {
			logger.Log.Warn("error closing response body", zap.String("service", client.Service), zap.Error(err))
		}
	}()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return customerror.NewExternalServiceError(client.Service, response.StatusCode, true, err)
	}

	if response.StatusCode == http.StatusTooManyRequests {
		wait := retryAfter(response.Header.Get("Retry-After"))
		logger.Log.Warn("too many requests, backing off",
			zap.String("service", client.Service), zap.Duration("wait", wait))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		return customerror.NewExternalServiceError(client.Service, response.StatusCode, true, errors.New("too many requests"))
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		err = fmt.Errorf("%s %s: %s", req.Method, url, strings.TrimSpace(string(responseBody)))
		transient := response.StatusCode >= http.StatusInternalServerError || response.StatusCode == http.StatusRequestTimeout
		return customerror.NewExternalServiceError(client.Service, response.StatusCode, transient, err)
	}

	if req.Out == nil || len(responseBody) == 0 {
		return nil
	}
	if err = json.Unmarshal(responseBody, req.Out); err != nil {
		logger.Log.Error("Error unmarshalling JSON", zap.String("service", client.Service), zap.Error(err))
		return customerror.NewExternalServiceError(client.Service, response.StatusCode, false, err)
	}
	return nil
}

func retryAfter(header string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds <= 0 {
		return time.Second
	}
	wait := time.Duration(seconds) * time.Second
	if wait > maxRetryAfter {
		return maxRetryAfter
	}
	return wait
}

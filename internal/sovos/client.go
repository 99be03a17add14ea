package sovos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/atlanteavila/sovos-tax-plugin/internal/domain"
)

const (
	calcTaxDocEndpoint        = "/Twe/api/rest/calcTax/doc"
	transactionDetailEndpoint = "/Twe/api/rest/calcTax/result/byDocID"
)

// ClientConfig configures the HTTP client for the remote tax service.
type ClientConfig struct {
	BaseURL     string
	Credentials Credentials

	// Timeout bounds the whole outbound call including body read.
	// Defaults to 30s.
	Timeout time.Duration
}

// HTTPClient performs signed calls against the Sovos REST API.
type HTTPClient struct {
	http    *http.Client
	baseURL string
	creds   Credentials
	logger  *slog.Logger
	now     func() time.Time
}

// NewHTTPClient validates the configuration and builds a client. Missing
// credentials are a configuration error: the service must not start
// without complete signing material.
func NewHTTPClient(cfg ClientConfig, logger *slog.Logger) (*HTTPClient, error) {
	if cfg.BaseURL == "" || cfg.Credentials.Username == "" || cfg.Credentials.Password == "" || cfg.Credentials.HMACKey == "" {
		return nil, domain.Errorf(domain.ECONFIGURATION, "sovos.client",
			"missing credentials: please ensure that all remote credentials are properly configured")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPClient{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		creds:   cfg.Credentials,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// CalcTax implements Client.
func (c *HTTPClient) CalcTax(ctx context.Context, req *Request) (*Response, error) {
	return c.post(ctx, calcTaxDocEndpoint, req)
}

// TransactionDetail implements Client.
func (c *HTTPClient) TransactionDetail(ctx context.Context, docID string) (*Response, error) {
	body := map[string]string{"txwTrnDocId": docID}
	return c.post(ctx, transactionDetailEndpoint, body)
}

func (c *HTTPClient) post(ctx context.Context, endpoint string, body any) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, domain.Internal(err, "sovos.post", "failed to encode request body")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, domain.Internal(err, "sovos.post", "failed to build request")
	}

	date, authorization := signedHeaders(endpoint, c.now(), c.creds)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Date", date)
	httpReq.Header.Set("Authorization", authorization)

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, domain.WrapError(err, domain.ETRANSPORT, "sovos.post", "tax service unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.WrapError(err, domain.ETRANSPORT, "sovos.post", "failed to read tax service response")
	}

	if c.logger != nil {
		c.logger.Debug("sovos call completed",
			slog.String("endpoint", endpoint),
			slog.Int("status", resp.StatusCode),
			slog.Duration("elapsed", time.Since(started)),
		)
	}

	// Upstream returns error details in the body; surface them verbatim.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.Errorf(domain.EUPSTREAM, "sovos.post",
			"tax service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded Response
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, domain.WrapError(err, domain.EUPSTREAM, "sovos.post",
			fmt.Sprintf("malformed tax service response: %s", strings.TrimSpace(string(raw))))
	}

	return &decoded, nil
}

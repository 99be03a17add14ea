package sovos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atlanteavila/sovos-tax-plugin/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string) *HTTPClient {
	t.Helper()
	c, err := NewHTTPClient(ClientConfig{
		BaseURL:     url,
		Credentials: Credentials{Username: "u", Password: "p", HMACKey: "k"},
	}, nil)
	require.NoError(t, err)
	return c
}

func TestNewHTTPClient_RequiresCredentials(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
	}{
		{"missing base url", ClientConfig{Credentials: Credentials{Username: "u", Password: "p", HMACKey: "k"}}},
		{"missing username", ClientConfig{BaseURL: "https://api", Credentials: Credentials{Password: "p", HMACKey: "k"}}},
		{"missing password", ClientConfig{BaseURL: "https://api", Credentials: Credentials{Username: "u", HMACKey: "k"}}},
		{"missing hmac key", ClientConfig{BaseURL: "https://api", Credentials: Credentials{Username: "u", Password: "p"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHTTPClient(tt.cfg, nil)
			assert.True(t, domain.IsCode(err, domain.ECONFIGURATION))
		})
	}
}

func TestHTTPClient_CalcTax(t *testing.T) {
	var gotHeaders http.Header
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotPath = r.URL.Path

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "USD", req.Currency)

		json.NewEncoder(w).Encode(Response{
			TxAmt:       "8.50",
			TxwTrnDocID: "9001",
			LnRslts: []LineResult{
				{LnNm: 1, TxAmt: "8.50", GrossAmt: "100.00"},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	resp, err := c.CalcTax(context.Background(), &Request{Currency: "USD"})
	require.NoError(t, err)

	assert.Equal(t, "/Twe/api/rest/calcTax/doc", gotPath)
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.NotEmpty(t, gotHeaders.Get("Date"))
	assert.Contains(t, gotHeaders.Get("Authorization"), "TAX u:")

	assert.True(t, resp.TotalTax().Equal(decimal.RequireFromString("8.50")))
	assert.Equal(t, "9001", resp.TxwTrnDocID)
	require.Len(t, resp.LnRslts, 1)
}

func TestHTTPClient_ToleratesMissingTotalTax(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"lnRslts":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	resp, err := c.CalcTax(context.Background(), &Request{})
	require.NoError(t, err)
	assert.True(t, resp.TotalTax().IsZero(), "absent txAmt must default to zero")
}

func TestHTTPClient_UpstreamErrorSurfacesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errorCode":"E42","errorMessage":"unsupported org code"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.CalcTax(context.Background(), &Request{})

	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.EUPSTREAM))
	assert.Contains(t, err.Error(), "unsupported org code", "raw response body must be surfaced")
}

func TestHTTPClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := newTestClient(t, srv.URL)
	_, err := c.CalcTax(context.Background(), &Request{})

	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.ETRANSPORT))
}

func TestHTTPClient_TransactionDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Twe/api/rest/calcTax/result/byDocID", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "9001", body["txwTrnDocId"])

		w.Write([]byte(`{"txAmt":1.25,"txwTrnDocId":"9001"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	resp, err := c.TransactionDetail(context.Background(), "9001")
	require.NoError(t, err)
	assert.True(t, resp.TotalTax().Equal(decimal.RequireFromString("1.25")))
}

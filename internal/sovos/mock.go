package sovos

import (
	"context"
	"sync/atomic"
)

// MockClient is a test implementation of Client.
type MockClient struct {
	CalcTaxFunc           func(ctx context.Context, req *Request) (*Response, error)
	TransactionDetailFunc func(ctx context.Context, docID string) (*Response, error)

	calcTaxCalls atomic.Int64
}

// NewMockClient creates a mock client returning an empty zero-tax
// response unless the corresponding func is set.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// CalcTaxCalls reports how many outbound calls were made. Safe for use
// from concurrency tests asserting that exactly one call happened.
func (m *MockClient) CalcTaxCalls() int {
	return int(m.calcTaxCalls.Load())
}

// CalcTax delegates to the configured function or returns a zero response.
func (m *MockClient) CalcTax(ctx context.Context, req *Request) (*Response, error) {
	m.calcTaxCalls.Add(1)
	if m.CalcTaxFunc != nil {
		return m.CalcTaxFunc(ctx, req)
	}
	return &Response{TxAmt: "0"}, nil
}

// TransactionDetail delegates to the configured function or returns a
// zero response.
func (m *MockClient) TransactionDetail(ctx context.Context, docID string) (*Response, error) {
	if m.TransactionDetailFunc != nil {
		return m.TransactionDetailFunc(ctx, docID)
	}
	return &Response{TxAmt: "0"}, nil
}

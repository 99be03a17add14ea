package tax

import (
	"context"

	"github.com/atlanteavila/sovos-tax-plugin/internal/sovos"
	"github.com/shopspring/decimal"
)

// MockCalculator is a test implementation of Calculator.
type MockCalculator struct {
	QuoteFunc             func(ctx context.Context, p Params) (*Result, error)
	CalculateFunc         func(ctx context.Context, p Params) (*Result, error)
	RefundFunc            func(ctx context.Context, p Params) (*Result, error)
	TransactionDetailFunc func(ctx context.Context, docID string) (*sovos.Response, error)
}

func (m *MockCalculator) Quote(ctx context.Context, p Params) (*Result, error) {
	if m.QuoteFunc != nil {
		return m.QuoteFunc(ctx, p)
	}
	return &Result{}, nil
}

func (m *MockCalculator) Calculate(ctx context.Context, p Params) (*Result, error) {
	if m.CalculateFunc != nil {
		return m.CalculateFunc(ctx, p)
	}
	return &Result{}, nil
}

func (m *MockCalculator) Refund(ctx context.Context, p Params) (*Result, error) {
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, p)
	}
	return &Result{}, nil
}

func (m *MockCalculator) TransactionDetail(ctx context.Context, docID string) (*sovos.Response, error) {
	if m.TransactionDetailFunc != nil {
		return m.TransactionDetailFunc(ctx, docID)
	}
	return &sovos.Response{TxAmt: "0"}, nil
}

// MockCatalog is a test implementation of ProductCatalog. The zero value
// resolves every product to tax code 1, not exempt.
type MockCatalog struct {
	TaxCodeForProductFunc func(ctx context.Context, productID int64) (int, error)
	ProductTaxExemptFunc  func(ctx context.Context, productID int64) (bool, error)
}

func (m *MockCatalog) TaxCodeForProduct(ctx context.Context, productID int64) (int, error) {
	if m.TaxCodeForProductFunc != nil {
		return m.TaxCodeForProductFunc(ctx, productID)
	}
	return 1, nil
}

func (m *MockCatalog) ProductTaxExempt(ctx context.Context, productID int64) (bool, error) {
	if m.ProductTaxExemptFunc != nil {
		return m.ProductTaxExemptFunc(ctx, productID)
	}
	return false, nil
}

// MockStateLookup is a test implementation of StateLookup. The zero
// value echoes the input state back as canonical.
type MockStateLookup struct {
	ResolveStateFunc func(ctx context.Context, state string) (string, error)
}

func (m *MockStateLookup) ResolveState(ctx context.Context, state string) (string, error) {
	if m.ResolveStateFunc != nil {
		return m.ResolveStateFunc(ctx, state)
	}
	return state, nil
}

// MockFeeStore is a test implementation of FeeStore.
type MockFeeStore struct {
	StateFeeFunc func(ctx context.Context, state string) (*StateFee, bool, error)
}

func (m *MockFeeStore) StateFee(ctx context.Context, state string) (*StateFee, bool, error) {
	if m.StateFeeFunc != nil {
		return m.StateFeeFunc(ctx, state)
	}
	return nil, false, nil
}

// MockTenderPolicy is a test implementation of TenderPolicy.
type MockTenderPolicy struct {
	HighPremiumFunc func(ctx context.Context, productID int64, state string, unitPrice decimal.Decimal) (bool, error)
}

func (m *MockTenderPolicy) HighPremium(ctx context.Context, productID int64, state string, unitPrice decimal.Decimal) (bool, error) {
	if m.HighPremiumFunc != nil {
		return m.HighPremiumFunc(ctx, productID, state, unitPrice)
	}
	return false, nil
}

// MockOrderDirectory is a test implementation of OrderDirectory.
type MockOrderDirectory struct {
	CustomerForOrderFunc func(ctx context.Context, orderID string) (int64, error)
}

func (m *MockOrderDirectory) CustomerForOrder(ctx context.Context, orderID string) (int64, error) {
	if m.CustomerForOrderFunc != nil {
		return m.CustomerForOrderFunc(ctx, orderID)
	}
	return 0, nil
}

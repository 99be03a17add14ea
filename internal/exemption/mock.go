package exemption

import (
	"context"
	"time"
)

// MockCertificateStore is a test implementation of CertificateStore.
type MockCertificateStore struct {
	HasValidCertificateFunc func(ctx context.Context, customerID int64, state string, asOf time.Time) (bool, error)
}

func (m *MockCertificateStore) HasValidCertificate(ctx context.Context, customerID int64, state string, asOf time.Time) (bool, error) {
	if m.HasValidCertificateFunc != nil {
		return m.HasValidCertificateFunc(ctx, customerID, state, asOf)
	}
	return false, nil
}

// MockRoleStore is a test implementation of RoleStore.
type MockRoleStore struct {
	IsWholesaleFunc func(ctx context.Context, customerID int64) (bool, error)
}

func (m *MockRoleStore) IsWholesale(ctx context.Context, customerID int64) (bool, error) {
	if m.IsWholesaleFunc != nil {
		return m.IsWholesaleFunc(ctx, customerID)
	}
	return false, nil
}

// Package mocks provides test doubles for the invoice parser.
package mocks

import (
	"context"

	model "github.com/sells-group/farm-ledger/internal/model"
	mock "github.com/stretchr/testify/mock"
)

// MockParser is a mock type for the Parser interface.
type MockParser struct {
	mock.Mock
}

// Parse provides a mock function with given fields: ctx, text
func (_m *MockParser) Parse(ctx context.Context, text string) (*model.InvoicePayload, error) {
	ret := _m.Called(ctx, text)

	if len(ret) == 0 {
		panic("no return value specified for Parse")
	}

	var r0 *model.InvoicePayload
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (*model.InvoicePayload, error)); ok {
		return rf(ctx, text)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string) *model.InvoicePayload); ok {
		r0 = rf(ctx, text)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*model.InvoicePayload)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, text)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockParser creates a new instance of MockParser. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockParser(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockParser {
	mock := &MockParser{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}

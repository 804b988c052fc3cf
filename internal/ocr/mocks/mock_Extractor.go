// Package mocks provides test doubles for OCR extractors.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"
)

// MockExtractor is a mock type for the Extractor interface.
type MockExtractor struct {
	mock.Mock
}

// ExtractText provides a mock function with given fields: ctx, pdfPath, maxPages
func (_m *MockExtractor) ExtractText(ctx context.Context, pdfPath string, maxPages int) (string, error) {
	ret := _m.Called(ctx, pdfPath, maxPages)

	if len(ret) == 0 {
		panic("no return value specified for ExtractText")
	}

	var r0 string
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, int) (string, error)); ok {
		return rf(ctx, pdfPath, maxPages)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, int) string); ok {
		r0 = rf(ctx, pdfPath, maxPages)
	} else {
		r0 = ret.Get(0).(string)
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, int) error); ok {
		r1 = rf(ctx, pdfPath, maxPages)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockExtractor creates a new instance of MockExtractor. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockExtractor(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockExtractor {
	mock := &MockExtractor{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}

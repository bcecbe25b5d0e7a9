// SPDX-License-Identifier: Apache-2.0
package llm

import (
	"context"
	"fmt"
)

// MockConsultant is a testing implementation of Consultant.
type MockConsultant struct {
	Response    string
	Err         error
	ConsultFunc func(ctx context.Context, query string, memories []string) (string, error)
}

// Consult implements Consultant.
func (m *MockConsultant) Consult(ctx context.Context, query string, memories []string) (string, error) {
	if m.ConsultFunc != nil {
		return m.ConsultFunc(ctx, query, memories)
	}
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

// FailingMockConsultant always fails.
type FailingMockConsultant struct {
	Err error
}

// Consult implements Consultant.
func (f *FailingMockConsultant) Consult(ctx context.Context, query string, memories []string) (string, error) {
	if f.Err == nil {
		return "", fmt.Errorf("mock error")
	}
	return "", f.Err
}

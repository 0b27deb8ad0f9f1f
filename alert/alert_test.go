package alert

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Alert(ctx context.Context, a Alert) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func TestMultiDeliversToEverySink(t *testing.T) {
	ctx := context.Background()
	a := Alert{Kind: InvalidApproval, Reason: "amount mismatch"}

	failing := &mockSink{}
	failing.On("Alert", ctx, a).Return(errors.New("broker down"))
	rec := NewRecorder(4)

	err := Multi{failing, rec, LogSink{}}.Alert(ctx, a)
	assert.ErrorContains(t, err, "broker down")
	failing.AssertExpectations(t)
	assert.Equal(t, []Alert{a}, rec.Drain())
}

func TestRaiseStampsTime(t *testing.T) {
	rec := NewRecorder(1)
	Raise(context.Background(), rec, Alert{Kind: CancelSubmitted})
	got := rec.Drain()
	if assert.Len(t, got, 1) {
		assert.False(t, got[0].Time.IsZero())
	}
	Raise(context.Background(), nil, Alert{Kind: CancelSubmitted})
}

package order

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/salon-pos/internal/domain/line"
)

type mockBridge struct {
	receipt     *Receipt
	err         error
	lastPayload Payload
	lastStatus  Status
	calls       int

	entered chan struct{}
	release chan struct{}
}

func (m *mockBridge) SubmitOrder(_ context.Context, p Payload, status Status) (*Receipt, error) {
	m.calls++
	m.lastPayload = p
	m.lastStatus = status
	if m.entered != nil {
		close(m.entered)
		<-m.release
	}
	return m.receipt, m.err
}

func TestSubmit_Success(t *testing.T) {
	o := newTestOrder(nil)
	require.NoError(t, o.AddItem(facial))
	require.NoError(t, o.SetOrderType("walk_in"))
	require.NoError(t, o.SetEmployee(&line.Employee{ID: "e1", Name: "Sam"}))
	require.NoError(t, o.SetServiceCharge(d("1.2345")))

	bridge := &mockBridge{receipt: &Receipt{Success: true, Message: "saved", ID: "sale-1"}}
	receipt, err := o.Submit(context.Background(), bridge, StatusRunning)
	require.NoError(t, err)
	assert.Equal(t, "sale-1", receipt.ID)

	assert.Equal(t, StatusRunning, bridge.lastStatus)
	p := bridge.lastPayload
	require.Len(t, p.Lines, 1)
	assert.Equal(t, "walk_in", p.Type)
	assert.Equal(t, "e1", p.Employee.ID)
	assert.Equal(t, testNow, p.Date)
	assert.Equal(t, "1.235", p.Summary.ServiceCharge.String())
	assert.Equal(t, "46.235", p.Summary.GrandTotal.String())

	assert.Empty(t, o.Lines())
	assert.True(t, o.State().IsEmpty())
	assert.False(t, o.CanUndo())
	assert.False(t, o.Busy())
}

func TestSubmit_EmptyOrder(t *testing.T) {
	o := newTestOrder(nil)
	bridge := &mockBridge{receipt: &Receipt{Success: true}}

	_, err := o.Submit(context.Background(), bridge, StatusDraft)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.ErrorIs(t, err, ErrEmptyOrder)
	assert.Zero(t, bridge.calls)
}

func TestSubmit_InvalidStatus(t *testing.T) {
	o := newTestOrder(nil)
	require.NoError(t, o.AddItem(facial))

	_, err := o.Submit(context.Background(), &mockBridge{}, "paid")
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestSubmit_FailurePreservesOrder(t *testing.T) {
	tests := []struct {
		name    string
		bridge  *mockBridge
		wantMsg string
	}{
		{
			name:   "bridge error",
			bridge: &mockBridge{err: errors.New("connection reset")},
		},
		{
			name:    "rejected receipt",
			bridge:  &mockBridge{receipt: &Receipt{Success: false, Message: "branch closed"}},
			wantMsg: "branch closed",
		},
		{
			name:   "nil receipt",
			bridge: &mockBridge{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOrder(nil)
			require.NoError(t, o.AddItem(facial))
			require.NoError(t, o.AddItem(haircut))
			before := o.State()

			_, err := o.Submit(context.Background(), tt.bridge, StatusDraft)
			var serr *SubmissionError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, tt.wantMsg, serr.Message)
			if tt.bridge.err != nil {
				require.ErrorIs(t, err, tt.bridge.err)
			}

			assert.Equal(t, before, o.State())
			assert.True(t, o.CanUndo())
			assert.False(t, o.Busy())
		})
	}
}

func TestSubmit_BusyRejectsMutations(t *testing.T) {
	o := newTestOrder(nil)
	require.NoError(t, o.AddItem(facial))

	bridge := &mockBridge{
		receipt: &Receipt{Success: true, ID: "sale-2"},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}

	done := make(chan error, 1)
	go func() {
		_, err := o.Submit(context.Background(), bridge, StatusRunning)
		done <- err
	}()
	<-bridge.entered

	assert.True(t, o.Busy())
	require.ErrorIs(t, o.AddItem(haircut), ErrBusy)
	require.ErrorIs(t, o.Increment(0), ErrBusy)
	require.ErrorIs(t, o.Clear(), ErrBusy)
	require.ErrorIs(t, o.SetPromotions(nil), ErrBusy)
	_, err := o.Undo()
	require.ErrorIs(t, err, ErrBusy)
	_, err = o.Submit(context.Background(), bridge, StatusRunning)
	require.ErrorIs(t, err, ErrBusy)

	// Reads still work.
	assert.Len(t, o.Lines(), 1)
	assert.Equal(t, 1, o.Summary().ItemCount)

	close(bridge.release)
	require.NoError(t, <-done)
	assert.False(t, o.Busy())
	require.NoError(t, o.AddItem(haircut))
}

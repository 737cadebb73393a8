package interaction

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromCallback(t *testing.T) {
	tests := []struct {
		name        string
		interactRef string
		result      string
		want        Outcome
	}{
		{"accepted", "ref-123", "", OutcomeAccepted},
		{"rejected", "", "grant_rejected", OutcomeRejected},
		{"rejected wins over ref", "ref-123", "grant_rejected", OutcomeRejected},
		{"missing ref", "", "", OutcomeMissingRef},
		{"unknown result with ref is accepted", "ref-123", "something_else", OutcomeAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromCallback(tt.interactRef, tt.result, "h")
			assert.Equal(t, tt.want, got.Outcome)
			assert.Equal(t, tt.interactRef, got.InteractRef)
			assert.Equal(t, "h", got.Hash)
		})
	}
}

func TestRelay_DeliverExactlyOnce(t *testing.T) {
	r := NewRelay(slog.Default())
	ch, release := r.Register("pay_1")
	defer release()

	ok := r.Deliver("pay_1", Result{InteractRef: "ref-a", Outcome: OutcomeAccepted})
	require.True(t, ok)

	// Duplicate callback for the same payment id is dropped
	ok = r.Deliver("pay_1", Result{InteractRef: "ref-b", Outcome: OutcomeAccepted})
	assert.False(t, ok)

	res := <-ch
	assert.Equal(t, "ref-a", res.InteractRef)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected second delivery: %+v", extra)
	default:
	}
}

func TestRelay_NoWaiterDropped(t *testing.T) {
	r := NewRelay(slog.Default())
	assert.False(t, r.Deliver("pay_unknown", Result{Outcome: OutcomeAccepted}))
}

func TestRelay_LateCallbackAfterRelease(t *testing.T) {
	r := NewRelay(slog.Default())
	_, release := r.Register("pay_1")
	release()

	assert.False(t, r.Deliver("pay_1", Result{Outcome: OutcomeAccepted}))
	assert.False(t, r.Waiting("pay_1"))
}

func TestRelay_ReleaseAfterDeliveryIsSafe(t *testing.T) {
	r := NewRelay(slog.Default())
	ch, release := r.Register("pay_1")

	require.True(t, r.Deliver("pay_1", Result{InteractRef: "ref", Outcome: OutcomeAccepted}))
	release()

	// A fresh waiter under the same id must not be clobbered by the
	// old release func
	ch2, release2 := r.Register("pay_1")
	defer release2()
	release()
	assert.True(t, r.Waiting("pay_1"))

	<-ch
	require.True(t, r.Deliver("pay_1", Result{InteractRef: "ref-2", Outcome: OutcomeAccepted}))
	res := <-ch2
	assert.Equal(t, "ref-2", res.InteractRef)
}

func TestRelay_IndependentPayments(t *testing.T) {
	r := NewRelay(slog.Default())
	ch1, rel1 := r.Register("pay_1")
	ch2, rel2 := r.Register("pay_2")
	defer rel1()
	defer rel2()

	require.True(t, r.Deliver("pay_2", Result{InteractRef: "ref-2", Outcome: OutcomeAccepted}))
	require.True(t, r.Deliver("pay_1", Result{InteractRef: "ref-1", Outcome: OutcomeAccepted}))

	assert.Equal(t, "ref-1", (<-ch1).InteractRef)
	assert.Equal(t, "ref-2", (<-ch2).InteractRef)
}

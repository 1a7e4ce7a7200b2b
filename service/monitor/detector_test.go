package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/txpulse/txpulse/service/ledger"
)

func newTestDetector(t *testing.T) (*Detector, *Store) {
	t.Helper()
	store := NewStore()
	store.GetOrCreate(testAddress, "Main Treasury")
	return NewDetector(store, nil, nil), store
}

func TestDetector_BootstrapEmitsNothing(t *testing.T) {
	d, store := newTestDetector(t)
	now := time.Now()

	// Newest first, as the ledger client returns them
	recs := []*ledger.TransactionRecord{
		rec("sig2", ledger.StatusConfirmed, now.Add(-time.Hour)),
		rec("sig1", ledger.StatusConfirmed, now.Add(-2*time.Hour)),
	}

	events := d.ProcessRecords(context.Background(), testAddress, recs)
	assert.Empty(t, events, "pre-existing transactions must not notify")

	assert.True(t, store.Bootstrapped(testAddress))
	assert.Equal(t, "sig2", store.Marker(testAddress))

	_, seen := store.StatusOf(testAddress, "sig1")
	assert.True(t, seen)
}

func TestDetector_NewTransactionExactlyOnce(t *testing.T) {
	d, _ := newTestDetector(t)
	now := time.Now()

	d.ProcessRecords(context.Background(), testAddress, nil) // bootstrap

	newTx := rec("sig1", ledger.StatusConfirmed, now)
	events := d.ProcessRecords(context.Background(), testAddress, []*ledger.TransactionRecord{newTx})
	require.Len(t, events, 1)
	assert.Equal(t, KindNewTransaction, events[0].Kind)
	assert.Equal(t, "sig1", events[0].Record.ID)
	assert.Equal(t, "Main Treasury", events[0].AddressNickname)

	// Same record on the next cycle: no duplicate event
	events = d.ProcessRecords(context.Background(), testAddress, []*ledger.TransactionRecord{newTx})
	assert.Empty(t, events)
}

func TestDetector_PendingToConfirmedTransition(t *testing.T) {
	d, _ := newTestDetector(t)
	now := time.Now()

	d.ProcessRecords(context.Background(), testAddress, nil) // bootstrap

	pending := rec("sig1", ledger.StatusPending, time.Time{})
	events := d.ProcessRecords(context.Background(), testAddress, []*ledger.TransactionRecord{pending})
	require.Len(t, events, 1)
	assert.Equal(t, KindNewTransaction, events[0].Kind)

	confirmed := rec("sig1", ledger.StatusConfirmed, now)
	events = d.ProcessRecords(context.Background(), testAddress, []*ledger.TransactionRecord{confirmed})
	require.Len(t, events, 1)
	assert.Equal(t, KindStatusTransition, events[0].Kind)

	// Confirmed is terminal: nothing more for this transaction
	events = d.ProcessRecords(context.Background(), testAddress, []*ledger.TransactionRecord{confirmed})
	assert.Empty(t, events)
}

func TestDetector_ConfirmedNeverReverts(t *testing.T) {
	d, store := newTestDetector(t)
	now := time.Now()

	d.ProcessRecords(context.Background(), testAddress, nil) // bootstrap

	confirmed := rec("sig1", ledger.StatusConfirmed, now)
	d.ProcessRecords(context.Background(), testAddress, []*ledger.TransactionRecord{confirmed})

	// An out-of-order Pending sighting is ignored
	stale := rec("sig1", ledger.StatusPending, now)
	events := d.ProcessRecords(context.Background(), testAddress, []*ledger.TransactionRecord{stale})
	assert.Empty(t, events)

	status, _ := store.StatusOf(testAddress, "sig1")
	assert.Equal(t, ledger.StatusConfirmed, status)
}

func TestDetector_MarkerSkipsPendingRecords(t *testing.T) {
	d, store := newTestDetector(t)
	now := time.Now()

	d.ProcessRecords(context.Background(), testAddress, nil) // bootstrap

	// Newest first: the pending head must not become the marker, or its
	// confirmation would never be re-fetched
	recs := []*ledger.TransactionRecord{
		rec("pending-head", ledger.StatusPending, time.Time{}),
		rec("sig1", ledger.StatusConfirmed, now.Add(-time.Minute)),
	}
	d.ProcessRecords(context.Background(), testAddress, recs)
	assert.Equal(t, "sig1", store.Marker(testAddress))

	// All-pending cycle leaves the marker untouched
	d.ProcessRecords(context.Background(), testAddress, []*ledger.TransactionRecord{
		rec("pending-2", ledger.StatusPending, time.Time{}),
	})
	assert.Equal(t, "sig1", store.Marker(testAddress))
}

func TestDetector_EventsOrderedOldestFirst(t *testing.T) {
	d, _ := newTestDetector(t)
	now := time.Now()

	d.ProcessRecords(context.Background(), testAddress, nil) // bootstrap

	recs := []*ledger.TransactionRecord{
		rec("sig3", ledger.StatusConfirmed, now),
		rec("sig2", ledger.StatusConfirmed, now.Add(-time.Hour)),
		rec("sig1", ledger.StatusConfirmed, now.Add(-2*time.Hour)),
	}
	events := d.ProcessRecords(context.Background(), testAddress, recs)
	require.Len(t, events, 3)
	assert.Equal(t, "sig1", events[0].Record.ID)
	assert.Equal(t, "sig3", events[2].Record.ID)
}

func TestDetector_MirrorsToWatchedCounterparty(t *testing.T) {
	store := NewStore()
	store.GetOrCreate(testAddress, "Main Treasury")
	store.GetOrCreate("other-address", "Ops Wallet")
	d := NewDetector(store, nil, nil)
	now := time.Now()

	d.ProcessRecords(context.Background(), testAddress, nil)     // bootstrap
	d.ProcessRecords(context.Background(), "other-address", nil) // bootstrap

	// A transfer between two watched wallets announces on both sides
	tx := rec("sig1", ledger.StatusConfirmed, now)
	tx.Counterparty = "other-address"
	events := d.ProcessRecords(context.Background(), testAddress, []*ledger.TransactionRecord{tx})
	require.Len(t, events, 2)

	origin, mirror := events[0], events[1]
	assert.Equal(t, KindNewTransaction, origin.Kind)
	assert.Equal(t, "Main Treasury", origin.AddressNickname)

	assert.Equal(t, KindNewTransaction, mirror.Kind)
	assert.Equal(t, "Ops Wallet", mirror.AddressNickname)
	assert.Equal(t, "other-address", mirror.Record.Address)
	assert.Equal(t, testAddress, mirror.Record.Counterparty)
	assert.Equal(t, ledger.DirectionOutgoing, mirror.Record.Direction)
	assert.True(t, mirror.Record.Amount.Equal(decimal.RequireFromString("-1.5")),
		"amount was %s", mirror.Record.Amount)
	assert.True(t, mirror.Record.Fee.IsZero())

	// The counterparty's own poll must not announce the id again
	events = d.ProcessRecords(context.Background(), "other-address", []*ledger.TransactionRecord{
		rec("sig1", ledger.StatusConfirmed, now),
	})
	assert.Empty(t, events)
}

func TestDetector_NoMirrorForUnwatchedCounterparty(t *testing.T) {
	d, _ := newTestDetector(t)
	now := time.Now()

	d.ProcessRecords(context.Background(), testAddress, nil) // bootstrap

	tx := rec("sig1", ledger.StatusConfirmed, now)
	tx.Counterparty = "stranger-address"
	events := d.ProcessRecords(context.Background(), testAddress, []*ledger.TransactionRecord{tx})
	require.Len(t, events, 1)
	assert.Equal(t, "Main Treasury", events[0].AddressNickname)
}

func TestDetector_AddressesAreIsolated(t *testing.T) {
	store := NewStore()
	store.GetOrCreate(testAddress, "Main Treasury")
	store.GetOrCreate("other-address", "Ops Wallet")
	d := NewDetector(store, nil, nil)
	now := time.Now()

	d.ProcessRecords(context.Background(), testAddress, nil)     // bootstrap
	d.ProcessRecords(context.Background(), "other-address", nil) // bootstrap

	events := d.ProcessRecords(context.Background(), testAddress, []*ledger.TransactionRecord{
		rec("sig1", ledger.StatusConfirmed, now),
	})
	require.Len(t, events, 1)

	// The other address saw nothing and its state is untouched
	assert.Equal(t, "", store.Marker("other-address"))
	_, seen := store.StatusOf("other-address", "sig1")
	assert.False(t, seen)
}

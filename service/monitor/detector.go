package monitor

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/txpulse/txpulse/service/ledger"
	"github.com/txpulse/txpulse/service/metrics"
)

// EventKind classifies a change event.
type EventKind string

const (
	KindNewTransaction   EventKind = "new_transaction"
	KindStatusTransition EventKind = "status_transition"
)

// ChangeEvent is emitted by the detector when a watched address gains a new
// transaction or a tracked transaction confirms. It carries everything the
// notification formatter needs to render a message without further lookups.
type ChangeEvent struct {
	Kind            EventKind                 `json:"kind"`
	Record          *ledger.TransactionRecord `json:"record"`
	AddressNickname string                    `json:"address_nickname"`
}

// Detector diffs fetched transactions against the address state store and
// produces the minimal set of change events: exactly one NewTransaction per
// transaction id over the process lifetime, and one StatusTransition when a
// pending transaction finalizes.
type Detector struct {
	store   *Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewDetector creates a detector writing through the given store.
// If m is nil, no metrics are recorded.
func NewDetector(store *Store, m *metrics.Metrics, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		store:   store,
		metrics: m,
		logger:  logger,
	}
}

// ProcessRecords runs one detection cycle for a single address against the
// records returned by a successful ledger fetch (newest first, as the ledger
// client returns them). It classifies each record, updates the store, and
// advances the sync marker. Events are returned oldest first.
//
// Callers must not invoke this on a failed fetch: the marker only advances
// here, so a failed cycle naturally retries from the same position.
func (d *Detector) ProcessRecords(ctx context.Context, address string, recs []*ledger.TransactionRecord) []ChangeEvent {
	nickname := d.store.Nickname(address)

	outcome := "detect"
	if d.metrics != nil {
		defer metrics.Timer(time.Now(), func(seconds float64) {
			d.metrics.RecordDetectionCycle(nickname, outcome, seconds)
		})()
	}

	// First successful cycle: everything the ledger returns predates the
	// start of watching. Record it all as seen, emit nothing.
	if !d.store.Bootstrapped(address) {
		outcome = "bootstrap"
		for _, rec := range recs {
			d.store.RecordSeen(address, rec)
		}
		d.advanceMarker(address, recs)
		d.store.MarkBootstrapped(address)
		d.logger.InfoContext(ctx, "address bootstrapped",
			"address", address,
			"nickname", nickname,
			"preexisting_transactions", len(recs),
		)
		return nil
	}

	var events []ChangeEvent
	for _, rec := range recs {
		prev, seen := d.store.StatusOf(address, rec.ID)
		switch {
		case !seen:
			events = append(events, ChangeEvent{
				Kind:            KindNewTransaction,
				Record:          rec,
				AddressNickname: nickname,
			})
			d.store.RecordSeen(address, rec)

		case prev == ledger.StatusPending && rec.Status == ledger.StatusConfirmed:
			events = append(events, ChangeEvent{
				Kind:            KindStatusTransition,
				Record:          rec,
				AddressNickname: nickname,
			})
			d.store.RecordSeen(address, rec)

		default:
			// Unchanged, or an out-of-order Pending sighting of an already
			// Confirmed transaction; the status transition is monotonic.
		}
	}

	events = append(events, d.mirrorEvents(events)...)
	d.advanceMarker(address, recs)

	// Oldest first so notifications arrive in chain order.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Record.Timestamp.Before(events[j].Record.Timestamp)
	})

	if d.metrics != nil {
		for _, ev := range events {
			d.metrics.RecordChangeEvent(ev.AddressNickname, string(ev.Kind))
		}
	}
	if len(events) > 0 {
		d.logger.InfoContext(ctx, "detected transaction changes",
			"address", address,
			"nickname", nickname,
			"events", len(events),
		)
	}

	return events
}

// mirrorEvents notifies other watched addresses that appear as the
// counterparty of a newly detected transaction, so a transfer between two
// watched wallets announces on both sides in the same cycle. The mirrored
// record is re-expressed from the counterparty's perspective and recorded as
// seen there, so the counterparty's own poll does not announce the id again.
func (d *Detector) mirrorEvents(events []ChangeEvent) []ChangeEvent {
	var mirrored []ChangeEvent
	for _, ev := range events {
		if ev.Kind != KindNewTransaction {
			continue
		}
		other := ev.Record.Counterparty
		if other == "" || other == ev.Record.Address || !d.store.Watches(other) {
			continue
		}
		if _, seen := d.store.StatusOf(other, ev.Record.ID); seen {
			continue
		}
		rec := mirrorRecord(ev.Record, other)
		d.store.RecordSeen(other, rec)
		mirrored = append(mirrored, ChangeEvent{
			Kind:            KindNewTransaction,
			Record:          rec,
			AddressNickname: d.store.Nickname(other),
		})
	}
	return mirrored
}

// mirrorRecord flips a record to the counterparty's perspective. The
// counterparty's fee share is not observable from this side, so Fee is zero;
// its own poll later refines nothing because the id is already seen.
func mirrorRecord(rec *ledger.TransactionRecord, other string) *ledger.TransactionRecord {
	m := *rec
	m.Address = other
	m.Counterparty = rec.Address
	m.Amount = rec.Amount.Neg()
	m.Fee = decimal.Zero
	if rec.Direction == ledger.DirectionIncoming {
		m.Direction = ledger.DirectionOutgoing
	} else {
		m.Direction = ledger.DirectionIncoming
	}
	if len(rec.TokenTransfers) > 0 {
		m.TokenTransfers = make([]ledger.TokenTransfer, len(rec.TokenTransfers))
		for i, tt := range rec.TokenTransfers {
			tt.Amount = tt.Amount.Neg()
			m.TokenTransfers[i] = tt
		}
	}
	return &m
}

// advanceMarker moves the sync marker to the newest finalized record of the
// cycle. Pending records stay above the marker so the next fetch sees them
// again and their confirmation is not missed.
func (d *Detector) advanceMarker(address string, recs []*ledger.TransactionRecord) {
	for _, rec := range recs { // newest first
		if rec.Confirmed() {
			d.store.AdvanceMarker(address, rec.ID)
			return
		}
	}
}

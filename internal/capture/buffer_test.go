package capture

import (
	"fmt"
	"testing"
)

func newExceptionBuffer() *Buffer[ExceptionEntry] {
	return NewDedupBuffer(
		func(e ExceptionEntry) string { return e.DedupKey() },
		func(existing *ExceptionEntry, incoming ExceptionEntry) {
			existing.Frequency++
			existing.LastOccurrenceMS = incoming.LastOccurrenceMS
		},
	)
}

func TestBufferCapacity(t *testing.T) {
	t.Run("record_before_activate_is_dropped", func(t *testing.T) {
		b := NewBuffer[LogEntry]()
		if b.Record(LogEntry{Message: "early"}) {
			t.Fatalf("Record() = true on inactive buffer; want false")
		}
		if got := b.Len(); got != 0 {
			t.Fatalf("Len() = %d; want 0", got)
		}
	})

	t.Run("evicts_oldest_first", func(t *testing.T) {
		b := NewBuffer[LogEntry]()
		b.Activate(2)
		b.Record(LogEntry{Message: "A", TimestampMS: 1})
		b.Record(LogEntry{Message: "B", TimestampMS: 2})
		b.Record(LogEntry{Message: "C", TimestampMS: 3})

		snap := b.Snapshot()
		if len(snap) != 2 {
			t.Fatalf("Snapshot() len = %d; want 2", len(snap))
		}
		if snap[0].Message != "B" || snap[1].Message != "C" {
			t.Fatalf("Snapshot() = [%s %s]; want [B C]", snap[0].Message, snap[1].Message)
		}
		if got := b.Evicted(); got != 1 {
			t.Fatalf("Evicted() = %d; want 1", got)
		}
	})

	t.Run("size_never_exceeds_capacity", func(t *testing.T) {
		b := NewBuffer[LogEntry]()
		b.Activate(5)
		for i := 0; i < 50; i++ {
			b.Record(LogEntry{Message: fmt.Sprintf("m%d", i), TimestampMS: int64(i)})
			if b.Len() > 5 {
				t.Fatalf("Len() = %d after %d records; want <= 5", b.Len(), i+1)
			}
		}
		snap := b.Snapshot()
		if snap[0].Message != "m45" || snap[4].Message != "m49" {
			t.Fatalf("Snapshot() = [%s .. %s]; want [m45 .. m49]", snap[0].Message, snap[4].Message)
		}
	})

	t.Run("snapshot_is_independent_copy", func(t *testing.T) {
		b := NewBuffer[LogEntry]()
		b.Activate(3)
		b.Record(LogEntry{Message: "kept"})
		snap := b.Snapshot()
		b.Clear()
		if len(snap) != 1 || snap[0].Message != "kept" {
			t.Fatalf("snapshot mutated by Clear; got %v", snap)
		}
	})
}

func TestBufferActivation(t *testing.T) {
	t.Run("reactivation_same_capacity_preserves_entries", func(t *testing.T) {
		b := NewBuffer[LogEntry]()
		b.Activate(4)
		b.Record(LogEntry{Message: "A"})
		b.Record(LogEntry{Message: "B"})
		b.Activate(4)
		if got := b.Len(); got != 2 {
			t.Fatalf("Len() after reactivation = %d; want 2", got)
		}
	})

	t.Run("shrinking_capacity_drops_oldest", func(t *testing.T) {
		b := NewBuffer[LogEntry]()
		b.Activate(4)
		for _, m := range []string{"A", "B", "C", "D"} {
			b.Record(LogEntry{Message: m})
		}
		b.Activate(2)
		snap := b.Snapshot()
		if len(snap) != 2 || snap[0].Message != "C" || snap[1].Message != "D" {
			t.Fatalf("Snapshot() after shrink = %v; want [C D]", snap)
		}
	})

	t.Run("deactivate_destroys_state", func(t *testing.T) {
		b := NewBuffer[LogEntry]()
		b.Activate(4)
		b.Record(LogEntry{Message: "A"})
		b.Deactivate()
		if b.Active() {
			t.Fatalf("Active() = true after Deactivate")
		}
		if got := b.Len(); got != 0 {
			t.Fatalf("Len() after Deactivate = %d; want 0", got)
		}
	})
}

func TestBufferDedup(t *testing.T) {
	t.Run("repeat_occurrences_merge_in_place", func(t *testing.T) {
		b := newExceptionBuffer()
		b.Activate(10)
		for i := 1; i <= 3; i++ {
			b.Record(ExceptionEntry{
				ErrorType:         ErrorTypeUncaught,
				Message:           "TypeError: x",
				FirstOccurrenceMS: int64(100 * i),
				LastOccurrenceMS:  int64(100 * i),
				Frequency:         1,
			})
		}

		snap := b.Snapshot()
		if len(snap) != 1 {
			t.Fatalf("Snapshot() len = %d; want 1", len(snap))
		}
		e := snap[0]
		if e.Frequency != 3 {
			t.Fatalf("Frequency = %d; want 3", e.Frequency)
		}
		if e.FirstOccurrenceMS != 100 {
			t.Fatalf("FirstOccurrenceMS = %d; want 100", e.FirstOccurrenceMS)
		}
		if e.LastOccurrenceMS != 300 {
			t.Fatalf("LastOccurrenceMS = %d; want 300", e.LastOccurrenceMS)
		}
	})

	t.Run("merge_does_not_consume_capacity", func(t *testing.T) {
		b := newExceptionBuffer()
		b.Activate(2)
		b.Record(ExceptionEntry{ErrorType: ErrorTypeUncaught, Message: "first", Frequency: 1})
		for i := 0; i < 10; i++ {
			b.Record(ExceptionEntry{ErrorType: ErrorTypeUncaught, Message: "repeat", Frequency: 1})
		}
		if got := b.Len(); got != 2 {
			t.Fatalf("Len() = %d; want 2", got)
		}
		if got := b.Evicted(); got != 0 {
			t.Fatalf("Evicted() = %d; want 0", got)
		}
	})

	t.Run("distinct_keys_still_evict_fifo", func(t *testing.T) {
		b := newExceptionBuffer()
		b.Activate(2)
		b.Record(ExceptionEntry{ErrorType: ErrorTypeUncaught, Message: "A", Frequency: 1})
		b.Record(ExceptionEntry{ErrorType: ErrorTypeUncaught, Message: "B", Frequency: 1})
		b.Record(ExceptionEntry{ErrorType: ErrorTypeUnhandledRejection, Message: "A", Frequency: 1})

		snap := b.Snapshot()
		if len(snap) != 2 {
			t.Fatalf("Snapshot() len = %d; want 2", len(snap))
		}
		if snap[0].Message != "B" {
			t.Fatalf("oldest surviving entry = %q; want %q", snap[0].Message, "B")
		}
		// The merged index must survive eviction: recording B again merges.
		b.Record(ExceptionEntry{ErrorType: ErrorTypeUncaught, Message: "B", Frequency: 1})
		snap = b.Snapshot()
		if len(snap) != 2 {
			t.Fatalf("Snapshot() len after re-record = %d; want 2", len(snap))
		}
		for _, e := range snap {
			if e.Message == "B" && e.Frequency != 2 {
				t.Fatalf("B frequency = %d; want 2", e.Frequency)
			}
		}
	})
}

func TestBufferUpdate(t *testing.T) {
	networkBuffer := func() *Buffer[NetworkRequest] {
		return NewDedupBuffer(
			func(r NetworkRequest) string { return r.ID },
			func(existing *NetworkRequest, incoming NetworkRequest) { *existing = incoming },
		)
	}

	t.Run("completes_in_flight_request_in_place", func(t *testing.T) {
		b := networkBuffer()
		b.Activate(10)
		b.Record(NetworkRequest{ID: "r1", URL: "https://api/a", StartTimeMS: 10})

		ok := b.Update("r1", func(r *NetworkRequest) {
			r.StatusCode = 200
			r.EndTimeMS = 25
			r.DurationMS = 15
		})
		if !ok {
			t.Fatalf("Update() = false; want true")
		}
		snap := b.Snapshot()
		if snap[0].StatusCode != 200 || snap[0].DurationMS != 15 {
			t.Fatalf("entry not updated in place: %+v", snap[0])
		}
	})

	t.Run("unknown_id_is_no_op", func(t *testing.T) {
		b := networkBuffer()
		b.Activate(10)
		if b.Update("missing", func(r *NetworkRequest) { r.StatusCode = 500 }) {
			t.Fatalf("Update() = true for unknown id; want false")
		}
	})
}

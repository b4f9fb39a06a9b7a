package store

import (
	"fmt"

	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/models"
	"github.com/karthiknish/aroosi-sub016/pkg/telemetry"
)

// SequenceConflict is returned by AppendMessage when the offered sequence is
// not LastSequence+1.
func SequenceConflict(convID string, last, offered uint64) error {
	return &apperr.Error{
		Kind:   apperr.KindSequencingConflict,
		Reason: apperr.ErrSequencingConflict.Reason,
		Cause:  fmt.Errorf("conversation %s: last %d, offered %d", convID, last, offered),
	}
}

// Unavailable wraps a backend failure as a transient error.
func Unavailable(op string, err error) error {
	telemetry.StoreErrors.WithLabelValues(op).Inc()
	return apperr.Unavailable(apperr.ErrStoreUnavailable.Reason, fmt.Errorf("%s: %w", op, err))
}

// ClampLimit applies def when limit is non-positive and caps it at max.
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		limit = def
	}
	if max > 0 && limit > max {
		limit = max
	}
	return limit
}

// MergeCursor takes the max of each mark so cursors never move backwards.
// Read implies delivered.
func MergeCursor(cur, next models.Cursor) models.Cursor {
	if next.Delivered > cur.Delivered {
		cur.Delivered = next.Delivered
	}
	if next.Read > cur.Read {
		cur.Read = next.Read
	}
	if cur.Read > cur.Delivered {
		cur.Delivered = cur.Read
	}
	return cur
}

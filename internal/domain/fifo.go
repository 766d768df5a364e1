package domain

import "time"

// CompareFIFO orders batches for consumption: dated batches first by
// ascending expiry, undated batches last, ties by ascending id.
func CompareFIFO(a Batch, b Batch) int {
	if a.ExpiryDate == nil && b.ExpiryDate != nil {
		return 1
	}
	if a.ExpiryDate != nil && b.ExpiryDate == nil {
		return -1
	}
	if a.ExpiryDate != nil && b.ExpiryDate != nil {
		if a.ExpiryDate.Before(*b.ExpiryDate) {
			return -1
		}
		if a.ExpiryDate.After(*b.ExpiryDate) {
			return 1
		}
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// BatchStock is a batch paired with its stock derived from the ledger.
type BatchStock struct {
	Batch Batch
	Stock int64
}

// DateUTC truncates t to its calendar day in UTC.
func DateUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

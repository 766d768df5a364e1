// Package sequence formats identifiers issued from named store counters.
package sequence

import (
	"context"
	"fmt"
	"time"

	"magazin/backend/internal/barcode"
	"magazin/backend/internal/domain"
	"magazin/backend/internal/store"
)

// Counter is satisfied by a store transaction. NextSequence must increment
// and read in one step so concurrent callers never share a value.
type Counter interface {
	NextSequence(ctx context.Context, name string) (int64, error)
}

const dayLayout = "20060102"

// LotName is the counter behind lot codes generated for one session and day.
func LotName(sessionID int64, day time.Time) string {
	return fmt.Sprintf("lot:S%d:%s", sessionID, day.UTC().Format(dayLayout))
}

// LotCode renders S<session>-<YYYYMMDD>-<NNNN>.
func LotCode(sessionID int64, day time.Time, n int64) string {
	return fmt.Sprintf("S%d-%s-%04d", sessionID, day.UTC().Format(dayLayout), n)
}

func NextLotCode(ctx context.Context, c Counter, sessionID int64, day time.Time) (string, error) {
	n, err := c.NextSequence(ctx, LotName(sessionID, day))
	if err != nil {
		return "", err
	}
	return LotCode(sessionID, day, n), nil
}

// NextInternalEAN issues the next internal EAN-13 under prefix. A prefix
// that leaves no room for the number fails with store.ErrInvalidInput.
func NextInternalEAN(ctx context.Context, c Counter, prefix string) (string, error) {
	n, err := c.NextSequence(ctx, domain.SequenceInternalEAN)
	if err != nil {
		return "", err
	}
	code, err := barcode.InternalEAN13(prefix, n)
	if err != nil {
		return "", fmt.Errorf("%w: %s", store.ErrInvalidInput, err.Error())
	}
	return code, nil
}

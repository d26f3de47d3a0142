// Package inventory is the unit-of-work layer between the HTTP handlers and
// the store. Every mutation runs in a single transaction together with its
// capacity ledger update and its audit entries.
package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/why-xn/infradesk/internal/audit"
	"github.com/why-xn/infradesk/internal/capacity"
	"github.com/why-xn/infradesk/internal/store"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrHasDependents = errors.New("record has dependents")
	ErrInvalid       = errors.New("invalid input")
)

// PasswordRotationMonths is how long a VM or GP account password stays valid.
const PasswordRotationMonths = 3

type Service struct {
	store    store.Store
	ledger   *capacity.Ledger
	recorder *audit.Recorder
	now      func() time.Time
}

func NewService(s store.Store, ledger *capacity.Ledger, recorder *audit.Recorder) *Service {
	if ledger == nil {
		ledger = capacity.NewLedger(false, nil)
	}
	if recorder == nil {
		recorder = audit.NewRecorder()
	}
	return &Service{
		store:    s,
		ledger:   ledger,
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Store exposes the underlying store for read-only callers such as reporting.
func (s *Service) Store() store.Store {
	return s.store
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

// applyPatch decodes a JSON object onto dst and returns the keys it carried.
func applyPatch(patch []byte, dst any) (map[string]json.RawMessage, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(patch, &keys); err != nil {
		return nil, invalid("request body must be a JSON object: %v", err)
	}
	if err := json.Unmarshal(patch, dst); err != nil {
		return nil, invalid("%v", err)
	}
	return keys, nil
}

// rotationDue returns from plus the password rotation period, or zero when
// from is zero.
func rotationDue(from time.Time) time.Time {
	if from.IsZero() {
		return time.Time{}
	}
	return from.AddDate(0, PasswordRotationMonths, 0)
}

func checkDateRange(start, end time.Time) error {
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return invalid("service end date %s is before start date %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	return nil
}

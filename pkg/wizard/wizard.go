// Package wizard implements the two guided operations of the circulation
// desk: borrowing exemplaries for a user and returning them.
//
// Each wizard starts in a selection state pre-filled from the records the
// caller is looking at (ActiveContext) and commits in a single transaction.
// A rejected commit leaves the wizard in its selection state and the
// database untouched.
package wizard

import (
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

type State string

const (
	StateSelectBook      State = "select_book"
	StateBorrowBook      State = "borrow_book"
	StateOpenBorrowings  State = "open_borrowings"
	StateSelectBorrowing State = "select_borrowing"
	StateReturnBook      State = "return_book"
	StateEnd             State = "end"
)

// Models a wizard can be launched from.
const (
	ModelUser      = "user"
	ModelBook      = "book"
	ModelBorrowing = "borrowing"
)

// ActiveContext describes the record(s) selected when a wizard is launched.
type ActiveContext struct {
	Model string `json:"activeModel"`
	ID    uint   `json:"activeId"`
	IDs   []uint `json:"activeIds"`
}

var (
	ErrUnavailable     = errors.New("exemplary is not available")
	ErrMultipleUsers   = errors.New("cannot return books from different users at once")
	ErrAlreadyReturned = errors.New("cannot return an available exemplary")
	ErrIncomplete      = errors.New("selection is incomplete")
	ErrUnknownRecord   = errors.New("record does not exist")
	ErrInvalidState    = errors.New("invalid wizard state")
)

// ValidationError rejects a wizard step. The caller is expected to fix the
// selection and retry.
type ValidationError struct {
	Code string
	Err  error
	IDs  []uint
}

func (e *ValidationError) Error() string {
	if len(e.IDs) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Err, e.IDs)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func newValidationError(code string, err error, ids ...uint) *ValidationError {
	return &ValidationError{Code: code, Err: err, IDs: ids}
}

// Action tells the presentation layer which records to open next. Domain is
// a JSON encoded list of [field, operator, value] filters.
type Action struct {
	Model  string `json:"model"`
	Domain string `json:"domain"`
}

func openRecordsAction(model string, ids []uint) (*Action, error) {
	domain, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(
		[]interface{}{[]interface{}{"id", "in", ids}},
	)
	if err != nil {
		return nil, fmt.Errorf("encode domain: %w", err)
	}
	return &Action{Model: model, Domain: domain}, nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	result := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == 0 {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

func dateOrToday(d, today time.Time) time.Time {
	if d.IsZero() {
		return today
	}
	return d
}

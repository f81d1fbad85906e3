package wizard

import (
	"context"
	"fmt"
	"log"
	"time"

	"library_borrow/pkg/models"
	"library_borrow/pkg/repository"

	"gorm.io/gorm"
)

type ReturnSelection struct {
	UserID       uint      `json:"userId"`
	BorrowingIDs []uint    `json:"borrowingIds"`
	ReturnDate   time.Time `json:"returnDate"`
}

// ReturnBook closes open borrowings of one user:
// select_borrowing -> return_book.
type ReturnBook struct {
	db        *gorm.DB
	State     State
	Selection ReturnSelection
}

func NewReturnBook(db *gorm.DB) *ReturnBook {
	return &ReturnBook{db: db, State: StateSelectBorrowing}
}

// Start computes the default selection. From a user every open borrowing is
// selected. From borrowings, the selection must belong to a single user and
// contain no returned borrowing.
func (w *ReturnBook) Start(ctx context.Context, active ActiveContext) (ReturnSelection, error) {
	repo := repository.New(w.db)
	selection := ReturnSelection{
		BorrowingIDs: []uint{},
		ReturnDate:   models.Today(ctx),
	}

	switch active.Model {
	case ModelUser:
		borrowings, err := repo.OpenBorrowings(ctx, active.ID)
		if err != nil {
			return selection, err
		}
		selection.UserID = active.ID
		for _, b := range borrowings {
			selection.BorrowingIDs = append(selection.BorrowingIDs, b.ID)
		}
	case ModelBorrowing:
		ids := uniqueIDs(active.IDs)
		borrowings, err := repo.BorrowingsByIDs(ctx, ids)
		if err != nil {
			return selection, err
		}
		if err := checkReturnable(borrowings, ids, 0); err != nil {
			return selection, err
		}
		selection.UserID = borrowings[0].UserID
		for _, b := range borrowings {
			selection.BorrowingIDs = append(selection.BorrowingIDs, b.ID)
		}
	}

	w.State = StateSelectBorrowing
	w.Selection = selection
	return selection, nil
}

// checkReturnable requires every id to be found, all borrowings to share one
// user (userID when non zero) and none to be returned already.
func checkReturnable(borrowings []models.Borrowing, ids []uint, userID uint) error {
	if len(borrowings) != len(ids) {
		found := make(map[uint]bool, len(borrowings))
		for _, b := range borrowings {
			found[b.ID] = true
		}
		var missing []uint
		for _, id := range ids {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		return newValidationError("unknown", ErrUnknownRecord, missing...)
	}

	users := make(map[uint]struct{})
	for _, b := range borrowings {
		users[b.UserID] = struct{}{}
	}
	if len(users) != 1 {
		return newValidationError("multiple_users", ErrMultipleUsers)
	}
	if _, ok := users[userID]; userID != 0 && !ok {
		return newValidationError("multiple_users", ErrMultipleUsers)
	}

	var returned []uint
	for _, b := range borrowings {
		if !b.IsOpen() {
			returned = append(returned, b.ID)
		}
	}
	if len(returned) > 0 {
		return newValidationError("available", ErrAlreadyReturned, returned...)
	}
	return nil
}

// Return sets the return date on every selected borrowing with one update.
// The date must lie between each borrowing date and today.
func (w *ReturnBook) Return(ctx context.Context, selection ReturnSelection) error {
	if w.State != StateSelectBorrowing {
		return fmt.Errorf("%w: return from %s", ErrInvalidState, w.State)
	}
	w.Selection = selection

	ids := uniqueIDs(selection.BorrowingIDs)
	if selection.UserID == 0 || len(ids) == 0 {
		return newValidationError("required", ErrIncomplete)
	}
	today := models.Today(ctx)
	returnDate := models.Day(dateOrToday(selection.ReturnDate, today))

	w.State = StateReturnBook
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var borrowings []models.Borrowing
		if err := tx.Where("id IN ?", ids).Order("id").Find(&borrowings).Error; err != nil {
			return err
		}
		if err := checkReturnable(borrowings, ids, selection.UserID); err != nil {
			return err
		}
		for _, b := range borrowings {
			b.ReturnDate = &returnDate
			if err := b.Validate(today); err != nil {
				return err
			}
		}
		return tx.Session(&gorm.Session{SkipHooks: true}).
			Model(&models.Borrowing{}).
			Where("id IN ?", ids).
			Update("return_date", returnDate).Error
	})
	if err != nil {
		w.State = StateSelectBorrowing
		return err
	}

	log.Printf("User %d returned %d exemplaries on %s", selection.UserID, len(ids), returnDate.Format(models.DateLayout))
	w.State = StateEnd
	return nil
}

func (w *ReturnBook) Cancel() {
	w.State = StateEnd
}

package wizard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"library_borrow/pkg/models"
	"library_borrow/pkg/repository"

	"gorm.io/gorm"
)

type BorrowSelection struct {
	UserID        uint      `json:"userId"`
	ExemplaryIDs  []uint    `json:"exemplaryIds"`
	BorrowingDate time.Time `json:"borrowingDate"`
}

// BorrowBook lends exemplaries to a user:
// select_book -> borrow_book -> open_borrowings.
type BorrowBook struct {
	db         *gorm.DB
	State      State
	Selection  BorrowSelection
	Borrowings []uint
}

func NewBorrowBook(db *gorm.DB) *BorrowBook {
	return &BorrowBook{db: db, State: StateSelectBook}
}

// Start computes the default selection. From a user the user is pre-filled;
// from books, the first available exemplary of each available book is
// selected and unavailable books are skipped.
func (w *BorrowBook) Start(ctx context.Context, active ActiveContext) (BorrowSelection, error) {
	selection := BorrowSelection{
		ExemplaryIDs:  []uint{},
		BorrowingDate: models.Today(ctx),
	}

	switch active.Model {
	case ModelUser:
		selection.UserID = active.ID
	case ModelBook:
		bookIDs := uniqueIDs(active.IDs)
		first, err := repository.New(w.db).FirstAvailableExemplaries(ctx, bookIDs)
		if err != nil {
			return selection, err
		}
		for _, bookID := range bookIDs {
			if exemplaryID, ok := first[bookID]; ok {
				selection.ExemplaryIDs = append(selection.ExemplaryIDs, exemplaryID)
			}
		}
	}

	w.State = StateSelectBook
	w.Selection = selection
	return selection, nil
}

// Borrow re-checks availability of every selected exemplary and creates one
// borrowing per exemplary, all in one transaction. If any exemplary is out
// nothing is created.
func (w *BorrowBook) Borrow(ctx context.Context, selection BorrowSelection) (*Action, error) {
	if w.State != StateSelectBook {
		return nil, fmt.Errorf("%w: borrow from %s", ErrInvalidState, w.State)
	}
	w.Selection = selection

	ids := uniqueIDs(selection.ExemplaryIDs)
	if selection.UserID == 0 || len(ids) == 0 {
		return nil, newValidationError("required", ErrIncomplete)
	}
	borrowingDate := models.Day(dateOrToday(selection.BorrowingDate, models.Today(ctx)))

	w.State = StateBorrowBook
	var created []uint
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkExists(tx, &models.User{}, []uint{selection.UserID}); err != nil {
			return err
		}
		if err := checkExists(tx, &models.Exemplary{}, ids); err != nil {
			return err
		}

		availability, err := repository.New(tx).ExemplaryAvailability(ctx, ids)
		if err != nil {
			return err
		}
		var unavailable []uint
		for _, id := range ids {
			if !availability[id] {
				unavailable = append(unavailable, id)
			}
		}
		if len(unavailable) > 0 {
			return newValidationError("unavailable", ErrUnavailable, unavailable...)
		}

		borrowings := make([]models.Borrowing, len(ids))
		for i, id := range ids {
			borrowings[i] = models.Borrowing{
				UserID:        selection.UserID,
				ExemplaryID:   id,
				BorrowingDate: borrowingDate,
			}
		}
		if err := tx.Create(&borrowings).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return newValidationError("unavailable", ErrUnavailable, ids...)
			}
			return err
		}
		for _, b := range borrowings {
			created = append(created, b.ID)
		}
		return nil
	})
	if err != nil {
		w.State = StateSelectBook
		return nil, err
	}

	log.Printf("User %d borrowed %d exemplaries on %s", selection.UserID, len(created), borrowingDate.Format(models.DateLayout))
	w.Borrowings = created
	w.State = StateOpenBorrowings
	return openRecordsAction(ModelBorrowing, created)
}

func (w *BorrowBook) Cancel() {
	w.State = StateEnd
}

// checkExists rejects ids with no matching row of model.
func checkExists(tx *gorm.DB, model interface{}, ids []uint) error {
	var found []uint
	if err := tx.Model(model).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return err
	}
	if len(found) == len(ids) {
		return nil
	}
	present := make(map[uint]bool, len(found))
	for _, id := range found {
		present[id] = true
	}
	var missing []uint
	for _, id := range ids {
		if !present[id] {
			missing = append(missing, id)
		}
	}
	return newValidationError("unknown", ErrUnknownRecord, missing...)
}

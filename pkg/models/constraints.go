package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConstraintViolation is returned by the save hooks when a record breaks a
// required-field or date rule.
type ConstraintViolation struct {
	Model  string
	Field  string
	Reason string
}

func (e *ConstraintViolation) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Model, e.Field, e.Reason)
}

func violation(model, field, reason string) error {
	return &ConstraintViolation{Model: model, Field: field, Reason: reason}
}

func required(model, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return violation(model, field, "is required")
	}
	return nil
}

func notInFuture(model, field string, value *time.Time, today time.Time) error {
	if value != nil && Day(*value).After(today) {
		return violation(model, field, "must not be in the future")
	}
	return nil
}

func (g *Genre) Validate() error {
	return required("genre", "name", g.Name)
}

func (e *Editor) Validate(today time.Time) error {
	if err := required("editor", "name", e.Name); err != nil {
		return err
	}
	return notInFuture("editor", "creation_date", e.CreationDate, today)
}

func (a *Author) Validate() error {
	if err := required("author", "name", a.Name); err != nil {
		return err
	}
	if a.Gender != "" && a.Gender != GenderMan && a.Gender != GenderWoman {
		return violation("author", "gender", "must be man or woman")
	}
	if a.BirthDate != nil && a.DeathDate != nil && Day(*a.DeathDate).Before(Day(*a.BirthDate)) {
		return violation("author", "death_date", "must not precede birth_date")
	}
	return nil
}

func (b *Book) Validate() error {
	if err := required("book", "title", b.Title); err != nil {
		return err
	}
	if b.AuthorID == 0 && b.Author == nil {
		return violation("book", "author", "is required")
	}
	if b.EditorID == 0 && b.Editor == nil {
		return violation("book", "editor", "is required")
	}
	if b.PageCount < 0 {
		return violation("book", "page_count", "must not be negative")
	}
	return nil
}

func (e *Exemplary) Validate() error {
	if err := required("exemplary", "identifier", e.Identifier); err != nil {
		return err
	}
	if e.BookID == 0 && e.Book == nil {
		return violation("exemplary", "book", "is required")
	}
	return nil
}

func (u *User) Validate(today time.Time) error {
	return notInFuture("user", "creation_date", u.CreationDate, today)
}

func (b *Borrowing) Validate(today time.Time) error {
	if b.UserID == 0 && b.User == nil {
		return violation("borrowing", "user", "is required")
	}
	if b.ExemplaryID == 0 && b.Exemplary == nil {
		return violation("borrowing", "exemplary", "is required")
	}
	if b.BorrowingDate.IsZero() {
		return violation("borrowing", "borrowing_date", "is required")
	}
	if err := notInFuture("borrowing", "borrowing_date", &b.BorrowingDate, today); err != nil {
		return err
	}
	if b.ReturnDate != nil {
		if Day(*b.ReturnDate).Before(Day(b.BorrowingDate)) {
			return violation("borrowing", "return_date", "must not precede borrowing_date")
		}
		if err := notInFuture("borrowing", "return_date", b.ReturnDate, today); err != nil {
			return err
		}
	}
	return nil
}

func (g *Genre) BeforeSave(tx *gorm.DB) error { return g.Validate() }

func (e *Editor) BeforeSave(tx *gorm.DB) error {
	return e.Validate(Today(tx.Statement.Context))
}

func (a *Author) BeforeSave(tx *gorm.DB) error { return a.Validate() }

func (b *Book) BeforeSave(tx *gorm.DB) error { return b.Validate() }

func (e *Exemplary) BeforeSave(tx *gorm.DB) error { return e.Validate() }

func (u *User) BeforeSave(tx *gorm.DB) error {
	return u.Validate(Today(tx.Statement.Context))
}

func (b *Borrowing) BeforeSave(tx *gorm.DB) error {
	if !b.BorrowingDate.IsZero() {
		b.BorrowingDate = Day(b.BorrowingDate)
	}
	if b.ReturnDate != nil {
		returned := Day(*b.ReturnDate)
		b.ReturnDate = &returned
	}
	return b.Validate(Today(tx.Statement.Context))
}

func (b *Borrowing) BeforeCreate(tx *gorm.DB) error {
	if b.BorrowingUid == "" {
		b.BorrowingUid = uuid.New().String()
	}
	return nil
}

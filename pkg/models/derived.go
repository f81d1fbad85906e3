package models

import (
	"time"
)

// Age returns the author's age in whole years at the death date, or at today
// for living authors. The second result is false without a birth date.
func (a Author) Age(today time.Time) (int, bool) {
	if a.BirthDate == nil {
		return 0, false
	}
	end := Day(today)
	if a.DeathDate != nil {
		end = Day(*a.DeathDate)
	}
	birth := Day(*a.BirthDate)
	age := end.Year() - birth.Year()
	if end.Month() < birth.Month() || (end.Month() == birth.Month() && end.Day() < birth.Day()) {
		age--
	}
	return age, true
}

func (b Borrowing) IsOpen() bool {
	return b.ReturnDate == nil
}

func (b Borrowing) ExpectedReturnDate() time.Time {
	return LoanDeadline(b.BorrowingDate)
}

// IsLate reports an open borrowing kept past its loan period.
func (b Borrowing) IsLate(today time.Time) bool {
	return b.IsOpen() && Day(b.BorrowingDate).Before(Day(today).AddDate(0, 0, -LoanPeriodDays))
}

// Label is the display name of an exemplary. The book must be loaded.
func (e Exemplary) Label() string {
	if e.Book == nil {
		return e.Identifier
	}
	return e.Book.Title + ": " + e.Identifier
}

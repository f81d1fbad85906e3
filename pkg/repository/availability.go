package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"library_borrow/pkg/models"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// openBorrowingJoin is the outer join condition matching only loans that are
// still out.
func openBorrowingJoin(exemplaryID string) exp.JoinCondition {
	return goqu.On(
		goqu.I("b.exemplary_id").Eq(goqu.I(exemplaryID)),
		goqu.I("b.return_date").IsNull(),
	)
}

func availableExemplaries() *goqu.SelectDataset {
	return goqu.From(goqu.T(tableExemplaries).As("e")).
		LeftJoin(goqu.T(tableBorrowings).As("b"), openBorrowingJoin("e.id")).
		Where(goqu.I("b.id").IsNull())
}

func availableBooks() *goqu.SelectDataset {
	return goqu.From(goqu.T(tableBooks).As("bk")).
		Join(goqu.T(tableExemplaries).As("e"), goqu.On(goqu.I("e.book_id").Eq(goqu.I("bk.id")))).
		LeftJoin(goqu.T(tableBorrowings).As("b"), openBorrowingJoin("e.id")).
		Where(goqu.I("b.id").IsNull()).
		Select(goqu.I("bk.id"))
}

func subquery(ds *goqu.SelectDataset) (clause.Expr, error) {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return clause.Expr{}, fmt.Errorf("build subquery: %w", err)
	}
	return gorm.Expr(query, args...), nil
}

// AvailableExemplariesQuery selects the ids of exemplaries without an open
// borrowing, for use as "id IN (?)".
func AvailableExemplariesQuery() (clause.Expr, error) {
	return subquery(availableExemplaries().Select(goqu.I("e.id")))
}

// AvailableBooksQuery selects the ids of books owning at least one available
// exemplary.
func AvailableBooksQuery() (clause.Expr, error) {
	return subquery(availableBooks())
}

// ExemplaryAvailability reports, per exemplary id, whether no open borrowing
// references it.
func (r *Repository) ExemplaryAvailability(ctx context.Context, exemplaryIDs []uint) (map[uint]bool, error) {
	result := make(map[uint]bool, len(exemplaryIDs))
	for _, id := range exemplaryIDs {
		result[id] = true
	}
	if len(exemplaryIDs) == 0 {
		return result, nil
	}

	ds := goqu.From(tableBorrowings).
		Select(goqu.C("exemplary_id")).
		Where(goqu.C("return_date").IsNull(), goqu.C("exemplary_id").In(exemplaryIDs))

	var borrowed []uint
	if err := r.raw(ctx, ds, &borrowed); err != nil {
		return nil, fmt.Errorf("exemplary availability: %w", err)
	}
	for _, id := range borrowed {
		result[id] = false
	}
	return result, nil
}

func (r *Repository) BookAvailability(ctx context.Context, bookIDs []uint) (map[uint]bool, error) {
	result := make(map[uint]bool, len(bookIDs))
	for _, id := range bookIDs {
		result[id] = false
	}
	if len(bookIDs) == 0 {
		return result, nil
	}

	var available []uint
	if err := r.raw(ctx, availableBooks().Where(goqu.I("bk.id").In(bookIDs)), &available); err != nil {
		return nil, fmt.Errorf("book availability: %w", err)
	}
	for _, id := range available {
		result[id] = true
	}
	return result, nil
}

type firstExemplary struct {
	BookID      uint
	ExemplaryID uint
}

// FirstAvailableExemplaries maps each given book to its available exemplary
// with the lowest id. Books with nothing available are absent.
func (r *Repository) FirstAvailableExemplaries(ctx context.Context, bookIDs []uint) (map[uint]uint, error) {
	result := make(map[uint]uint, len(bookIDs))
	if len(bookIDs) == 0 {
		return result, nil
	}

	ds := availableExemplaries().
		Select(goqu.I("e.book_id").As("book_id"), goqu.MIN(goqu.I("e.id")).As("exemplary_id")).
		Where(goqu.I("e.book_id").In(bookIDs)).
		GroupBy(goqu.I("e.book_id"))

	var rows []firstExemplary
	if err := r.raw(ctx, ds, &rows); err != nil {
		return nil, fmt.Errorf("first available exemplaries: %w", err)
	}
	for _, row := range rows {
		result[row.BookID] = row.ExemplaryID
	}
	return result, nil
}

type UserSummary struct {
	NumberBorrowed     int64      `json:"numberBorrowed"`
	NumberLate         int64      `json:"numberLate"`
	ExpectedReturnDate *time.Time `json:"expectedReturnDate,omitempty"`
}

// UserSummaries computes the loan counters of each user at the given date.
// A loan is late once its borrowing date lies more than the loan period in
// the past.
func (r *Repository) UserSummaries(ctx context.Context, userIDs []uint, today time.Time) (map[uint]UserSummary, error) {
	result := make(map[uint]UserSummary, len(userIDs))
	for _, id := range userIDs {
		result[id] = UserSummary{}
	}
	if len(userIDs) == 0 {
		return result, nil
	}

	open := goqu.C("return_date").IsNull()
	borrowed, err := r.countBy(ctx, tableBorrowings, "user_id", userIDs, open)
	if err != nil {
		return nil, err
	}
	lateBefore := models.Day(today).AddDate(0, 0, -models.LoanPeriodDays)
	late, err := r.countBy(ctx, tableBorrowings, "user_id", userIDs, open, goqu.C("borrowing_date").Lt(lateBefore))
	if err != nil {
		return nil, err
	}

	oldest, err := r.oldestOpenBorrowing(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	for _, id := range userIDs {
		summary := UserSummary{NumberBorrowed: borrowed[id], NumberLate: late[id]}
		if borrowedOn, ok := oldest[id]; ok {
			expected := models.LoanDeadline(borrowedOn)
			summary.ExpectedReturnDate = &expected
		}
		result[id] = summary
	}
	return result, nil
}

type groupMinDate struct {
	OwnerID uint
	Oldest  sql.NullString
}

// oldestOpenBorrowing returns MIN(borrowing_date) over the open borrowings of
// each user. Users without an open borrowing are absent.
func (r *Repository) oldestOpenBorrowing(ctx context.Context, userIDs []uint) (map[uint]time.Time, error) {
	ds := goqu.From(tableBorrowings).
		Select(goqu.C("user_id").As("owner_id"), goqu.MIN(goqu.C("borrowing_date")).As("oldest")).
		Where(goqu.C("user_id").In(userIDs), goqu.C("return_date").IsNull()).
		GroupBy(goqu.C("user_id"))

	var rows []groupMinDate
	if err := r.raw(ctx, ds, &rows); err != nil {
		return nil, fmt.Errorf("oldest open borrowings: %w", err)
	}
	result := make(map[uint]time.Time, len(rows))
	for _, row := range rows {
		if !row.Oldest.Valid {
			continue
		}
		day, err := parseAggregateDate(row.Oldest.String)
		if err != nil {
			return nil, fmt.Errorf("oldest open borrowing of user %d: %w", row.OwnerID, err)
		}
		result[row.OwnerID] = day
	}
	return result, nil
}

// parseAggregateDate reads a date produced by an aggregate. Postgres hands
// back a time (scanned as RFC 3339), sqlite the stored text; both start with
// the calendar date.
func parseAggregateDate(s string) (time.Time, error) {
	if len(s) < len(models.DateLayout) {
		return time.Time{}, fmt.Errorf("unexpected date %q", s)
	}
	return models.ParseDate(s[:len(models.DateLayout)])
}

func (r *Repository) OpenBorrowings(ctx context.Context, userID uint) ([]models.Borrowing, error) {
	var borrowings []models.Borrowing
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND return_date IS NULL", userID).
		Order("borrowing_date, id").
		Find(&borrowings).Error
	return borrowings, err
}

func (r *Repository) BorrowingsByIDs(ctx context.Context, ids []uint) ([]models.Borrowing, error) {
	var borrowings []models.Borrowing
	if len(ids) == 0 {
		return borrowings, nil
	}
	err := r.db.WithContext(ctx).
		Preload("Exemplary.Book").
		Where("id IN ?", ids).
		Order("id").
		Find(&borrowings).Error
	return borrowings, err
}

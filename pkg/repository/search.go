package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"library_borrow/pkg/models"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
)

var (
	ErrUnknownOperator = errors.New("unknown search operator")
	ErrMissingOperand  = errors.New("search operator needs a value")
)

type Operator string

const (
	OpEq    Operator = "="
	OpNeq   Operator = "!="
	OpLt    Operator = "<"
	OpLte   Operator = "<="
	OpGt    Operator = ">"
	OpGte   Operator = ">="
	OpIn    Operator = "in"
	OpNotIn Operator = "not in"
)

func ParseOperator(s string) (Operator, error) {
	op := Operator(strings.ToLower(strings.TrimSpace(s)))
	switch op {
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte, OpIn, OpNotIn:
		return op, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperator, s)
}

type operand interface {
	exp.Comparable
	exp.Inable
}

func compare(lhs operand, op Operator, values []interface{}) (exp.Expression, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingOperand, op)
	}
	switch op {
	case OpEq:
		return lhs.Eq(values[0]), nil
	case OpNeq:
		return lhs.Neq(values[0]), nil
	case OpLt:
		return lhs.Lt(values[0]), nil
	case OpLte:
		return lhs.Lte(values[0]), nil
	case OpGt:
		return lhs.Gt(values[0]), nil
	case OpGte:
		return lhs.Gte(values[0]), nil
	case OpIn:
		return lhs.In(values...), nil
	case OpNotIn:
		return lhs.NotIn(values...), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOperator, op)
}

// borrowingDates translates expected return dates into the borrowing dates
// that produce them.
func borrowingDates(expected []time.Time) []interface{} {
	values := make([]interface{}, len(expected))
	for i, d := range expected {
		values[i] = models.Day(d).AddDate(0, 0, -models.LoanPeriodDays)
	}
	return values
}

// SearchBorrowingsByExpectedReturn finds borrowings whose expected return date
// compares to the given dates with op.
func (r *Repository) SearchBorrowingsByExpectedReturn(ctx context.Context, op Operator, expected ...time.Time) ([]models.Borrowing, error) {
	cond, err := compare(goqu.C("borrowing_date"), op, borrowingDates(expected))
	if err != nil {
		return nil, err
	}
	sub, err := subquery(goqu.From(tableBorrowings).Select(goqu.C("id")).Where(cond))
	if err != nil {
		return nil, err
	}

	var borrowings []models.Borrowing
	err = r.db.WithContext(ctx).Where("id IN (?)", sub).Order("id").Find(&borrowings).Error
	return borrowings, err
}

// SearchUsersByExpectedReturn finds users whose earliest expected return date
// over open borrowings compares to the given dates with op.
func (r *Repository) SearchUsersByExpectedReturn(ctx context.Context, op Operator, expected ...time.Time) ([]models.User, error) {
	having, err := compare(goqu.MIN(goqu.I("b.borrowing_date")), op, borrowingDates(expected))
	if err != nil {
		return nil, err
	}
	ds := goqu.From(goqu.T(tableUsers).As("u")).
		LeftJoin(goqu.T(tableBorrowings).As("b"), goqu.On(goqu.I("b.user_id").Eq(goqu.I("u.id")))).
		Select(goqu.I("u.id")).
		Where(goqu.Or(goqu.I("b.return_date").IsNull(), goqu.I("b.id").IsNull())).
		GroupBy(goqu.I("u.id")).
		Having(having)
	sub, err := subquery(ds)
	if err != nil {
		return nil, err
	}

	var users []models.User
	err = r.db.WithContext(ctx).Where("id IN (?)", sub).Order("id").Find(&users).Error
	return users, err
}

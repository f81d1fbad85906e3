package repository

import (
	"context"
	"testing"
	"time"

	"library_borrow/pkg/database"
	"library_borrow/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var today = time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) (*gorm.DB, context.Context) {
	db, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), database.GormConfig())
	if err != nil {
		panic("failed to connect test database")
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db, models.WithToday(context.Background(), today)
}

func daysAgo(n int) time.Time {
	return today.AddDate(0, 0, -n)
}

func ptr(t time.Time) *time.Time {
	return &t
}

type catalog struct {
	genre  models.Genre
	editor models.Editor
	author models.Author
}

func seedCatalog(t *testing.T, ctx context.Context, db *gorm.DB) catalog {
	c := catalog{
		genre:  models.Genre{Name: "Science Fiction"},
		editor: models.Editor{Name: "Ace Books"},
		author: models.Author{Name: "Frank Herbert", Gender: models.GenderMan},
	}
	require.NoError(t, db.WithContext(ctx).Create(&c.genre).Error)
	require.NoError(t, db.WithContext(ctx).Create(&c.editor).Error)
	require.NoError(t, db.WithContext(ctx).Create(&c.author).Error)
	return c
}

func createBook(t *testing.T, ctx context.Context, db *gorm.DB, c catalog, title string, published *time.Time) models.Book {
	book := models.Book{
		Title:         title,
		AuthorID:      c.author.ID,
		EditorID:      c.editor.ID,
		GenreID:       &c.genre.ID,
		DatePublished: published,
	}
	require.NoError(t, db.WithContext(ctx).Create(&book).Error)
	return book
}

func createExemplary(t *testing.T, ctx context.Context, db *gorm.DB, book models.Book, identifier string, acquired *time.Time) models.Exemplary {
	exemplary := models.Exemplary{Identifier: identifier, BookID: book.ID, AcquisitionDate: acquired}
	require.NoError(t, db.WithContext(ctx).Create(&exemplary).Error)
	return exemplary
}

func createUser(t *testing.T, ctx context.Context, db *gorm.DB, identifier int) models.User {
	user := models.User{Identifier: identifier, Name: "Reader"}
	require.NoError(t, db.WithContext(ctx).Create(&user).Error)
	return user
}

func createBorrowing(t *testing.T, ctx context.Context, db *gorm.DB, user models.User, e models.Exemplary, borrowed time.Time, returned *time.Time) models.Borrowing {
	b := models.Borrowing{UserID: user.ID, ExemplaryID: e.ID, BorrowingDate: borrowed, ReturnDate: returned}
	require.NoError(t, db.WithContext(ctx).Create(&b).Error)
	return b
}

func TestCountsDefaultToZero(t *testing.T) {
	db, ctx := setupTestDB(t)
	repo := New(db)
	c := seedCatalog(t, ctx, db)
	book := createBook(t, ctx, db, c, "Dune", nil)
	createBook(t, ctx, db, c, "Dune Messiah", nil)
	createExemplary(t, ctx, db, book, "D-1", nil)

	byAuthor, err := repo.CountBooksByAuthor(ctx, []uint{c.author.ID, 999})
	require.NoError(t, err)
	assert.Equal(t, int64(2), byAuthor[c.author.ID])
	assert.Equal(t, int64(0), byAuthor[999])

	byEditor, err := repo.CountBooksByEditor(ctx, []uint{c.editor.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), byEditor[c.editor.ID])

	byBook, err := repo.CountExemplariesByBook(ctx, []uint{book.ID, book.ID + 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), byBook[book.ID])
	assert.Equal(t, int64(0), byBook[book.ID+1])

	empty, err := repo.CountBooksByAuthor(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestExemplaryAvailability(t *testing.T) {
	db, ctx := setupTestDB(t)
	repo := New(db)
	c := seedCatalog(t, ctx, db)
	book := createBook(t, ctx, db, c, "Dune", nil)
	never := createExemplary(t, ctx, db, book, "D-1", nil)
	returned := createExemplary(t, ctx, db, book, "D-2", nil)
	out := createExemplary(t, ctx, db, book, "D-3", nil)
	user := createUser(t, ctx, db, 1)
	createBorrowing(t, ctx, db, user, returned, daysAgo(10), ptr(daysAgo(2)))
	createBorrowing(t, ctx, db, user, out, daysAgo(3), nil)

	availability, err := repo.ExemplaryAvailability(ctx, []uint{never.ID, returned.ID, out.ID})
	require.NoError(t, err)
	assert.True(t, availability[never.ID])
	assert.True(t, availability[returned.ID])
	assert.False(t, availability[out.ID])

	available := true
	list, err := repo.ListExemplaries(ctx, ExemplaryFilter{Available: &available})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	unavailable := false
	list, err = repo.ListExemplaries(ctx, ExemplaryFilter{Available: &unavailable})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, out.ID, list[0].ID)
}

func TestBookAvailability(t *testing.T) {
	db, ctx := setupTestDB(t)
	repo := New(db)
	c := seedCatalog(t, ctx, db)
	lent := createBook(t, ctx, db, c, "Dune", nil)
	mixed := createBook(t, ctx, db, c, "Children of Dune", nil)
	empty := createBook(t, ctx, db, c, "Heretics of Dune", nil)

	lentCopy := createExemplary(t, ctx, db, lent, "A-1", nil)
	mixedOut := createExemplary(t, ctx, db, mixed, "B-1", nil)
	createExemplary(t, ctx, db, mixed, "B-2", nil)

	user := createUser(t, ctx, db, 1)
	createBorrowing(t, ctx, db, user, lentCopy, daysAgo(30), ptr(daysAgo(15)))
	createBorrowing(t, ctx, db, user, lentCopy, daysAgo(5), nil)
	createBorrowing(t, ctx, db, user, mixedOut, daysAgo(5), nil)

	availability, err := repo.BookAvailability(ctx, []uint{lent.ID, mixed.ID, empty.ID})
	require.NoError(t, err)
	assert.False(t, availability[lent.ID])
	assert.True(t, availability[mixed.ID])
	assert.False(t, availability[empty.ID])

	available := true
	books, err := repo.ListBooks(ctx, BookFilter{Available: &available})
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, mixed.ID, books[0].ID)

	first, err := repo.FirstAvailableExemplaries(ctx, []uint{lent.ID, mixed.ID})
	require.NoError(t, err)
	assert.NotContains(t, first, lent.ID)
	assert.NotEqual(t, mixedOut.ID, first[mixed.ID])
}

func TestUserSummaries(t *testing.T) {
	db, ctx := setupTestDB(t)
	repo := New(db)
	c := seedCatalog(t, ctx, db)
	book := createBook(t, ctx, db, c, "Dune", nil)
	e1 := createExemplary(t, ctx, db, book, "D-1", nil)
	e2 := createExemplary(t, ctx, db, book, "D-2", nil)
	e3 := createExemplary(t, ctx, db, book, "D-3", nil)
	user := createUser(t, ctx, db, 1)
	idle := createUser(t, ctx, db, 2)

	createBorrowing(t, ctx, db, user, e1, daysAgo(25), nil)
	createBorrowing(t, ctx, db, user, e2, daysAgo(5), nil)
	createBorrowing(t, ctx, db, user, e3, daysAgo(40), ptr(daysAgo(30)))

	summaries, err := repo.UserSummaries(ctx, []uint{user.ID, idle.ID}, today)
	require.NoError(t, err)

	summary := summaries[user.ID]
	assert.Equal(t, int64(2), summary.NumberBorrowed)
	assert.Equal(t, int64(1), summary.NumberLate)
	require.NotNil(t, summary.ExpectedReturnDate)
	assert.Equal(t, daysAgo(5).Format(models.DateLayout), summary.ExpectedReturnDate.Format(models.DateLayout))

	assert.Equal(t, UserSummary{}, summaries[idle.ID])
}

func TestUserSummariesOldestLoanPerUser(t *testing.T) {
	db, ctx := setupTestDB(t)
	repo := New(db)
	c := seedCatalog(t, ctx, db)
	book := createBook(t, ctx, db, c, "Dune", nil)
	e1 := createExemplary(t, ctx, db, book, "D-1", nil)
	e2 := createExemplary(t, ctx, db, book, "D-2", nil)
	e3 := createExemplary(t, ctx, db, book, "D-3", nil)
	first := createUser(t, ctx, db, 1)
	second := createUser(t, ctx, db, 2)

	createBorrowing(t, ctx, db, first, e1, daysAgo(3), nil)
	createBorrowing(t, ctx, db, first, e2, daysAgo(12), nil)
	createBorrowing(t, ctx, db, second, e3, daysAgo(7), nil)

	summaries, err := repo.UserSummaries(ctx, []uint{first.ID, second.ID}, today)
	require.NoError(t, err)
	require.NotNil(t, summaries[first.ID].ExpectedReturnDate)
	require.NotNil(t, summaries[second.ID].ExpectedReturnDate)
	assert.Equal(t, "2024-06-07", summaries[first.ID].ExpectedReturnDate.Format(models.DateLayout))
	assert.Equal(t, "2024-06-12", summaries[second.ID].ExpectedReturnDate.Format(models.DateLayout))
}

func TestParseAggregateDate(t *testing.T) {
	for _, raw := range []string{"2024-05-18T00:00:00Z", "2024-05-18 00:00:00+00:00", "2024-05-18"} {
		d, err := parseAggregateDate(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, time.Date(2024, 5, 18, 0, 0, 0, 0, time.UTC), d)
	}

	_, err := parseAggregateDate("2024")
	assert.Error(t, err)
}

func TestSearchUsersByExpectedReturn(t *testing.T) {
	db, ctx := setupTestDB(t)
	repo := New(db)
	c := seedCatalog(t, ctx, db)
	book := createBook(t, ctx, db, c, "Dune", nil)
	e1 := createExemplary(t, ctx, db, book, "D-1", nil)
	e2 := createExemplary(t, ctx, db, book, "D-2", nil)
	overdue := createUser(t, ctx, db, 1)
	onTime := createUser(t, ctx, db, 2)
	createUser(t, ctx, db, 3)

	createBorrowing(t, ctx, db, overdue, e1, daysAgo(25), nil)
	createBorrowing(t, ctx, db, onTime, e2, daysAgo(5), nil)

	users, err := repo.SearchUsersByExpectedReturn(ctx, OpLt, today)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, overdue.ID, users[0].ID)

	users, err = repo.SearchUsersByExpectedReturn(ctx, OpEq, daysAgo(5).AddDate(0, 0, models.LoanPeriodDays))
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, onTime.ID, users[0].ID)

	users, err = repo.SearchUsersByExpectedReturn(ctx, OpIn, daysAgo(25).AddDate(0, 0, models.LoanPeriodDays), daysAgo(5).AddDate(0, 0, models.LoanPeriodDays))
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestSearchBorrowingsByExpectedReturn(t *testing.T) {
	db, ctx := setupTestDB(t)
	repo := New(db)
	c := seedCatalog(t, ctx, db)
	book := createBook(t, ctx, db, c, "Dune", nil)
	e1 := createExemplary(t, ctx, db, book, "D-1", nil)
	e2 := createExemplary(t, ctx, db, book, "D-2", nil)
	user := createUser(t, ctx, db, 1)
	late := createBorrowing(t, ctx, db, user, e1, daysAgo(25), nil)
	createBorrowing(t, ctx, db, user, e2, daysAgo(5), nil)

	borrowings, err := repo.SearchBorrowingsByExpectedReturn(ctx, OpLte, today)
	require.NoError(t, err)
	require.Len(t, borrowings, 1)
	assert.Equal(t, late.ID, borrowings[0].ID)

	_, err = repo.SearchBorrowingsByExpectedReturn(ctx, Operator("like"), today)
	assert.ErrorIs(t, err, ErrUnknownOperator)
}

func TestParseOperator(t *testing.T) {
	op, err := ParseOperator(" NOT IN ")
	require.NoError(t, err)
	assert.Equal(t, OpNotIn, op)

	_, err = ParseOperator("~")
	assert.ErrorIs(t, err, ErrUnknownOperator)
}

func TestSearchWithoutValue(t *testing.T) {
	db, ctx := setupTestDB(t)
	repo := New(db)

	_, err := repo.SearchUsersByExpectedReturn(ctx, OpIn)
	assert.ErrorIs(t, err, ErrMissingOperand)

	_, err = repo.SearchBorrowingsByExpectedReturn(ctx, OpLt)
	assert.ErrorIs(t, err, ErrMissingOperand)
}

func TestListExemplariesOrderedByLabel(t *testing.T) {
	db, ctx := setupTestDB(t)
	repo := New(db)
	c := seedCatalog(t, ctx, db)
	zebra := createBook(t, ctx, db, c, "Zebra", nil)
	apple := createBook(t, ctx, db, c, "Apple", nil)
	createExemplary(t, ctx, db, zebra, "A-1", nil)
	createExemplary(t, ctx, db, apple, "Z-2", nil)
	createExemplary(t, ctx, db, apple, "Z-1", nil)

	list, err := repo.ListExemplaries(ctx, ExemplaryFilter{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "Apple: Z-1", list[0].Label())
	assert.Equal(t, "Apple: Z-2", list[1].Label())
	assert.Equal(t, "Zebra: A-1", list[2].Label())

	list, err = repo.ListExemplaries(ctx, ExemplaryFilter{Search: "zeb"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "A-1", list[0].Identifier)

	list, err = repo.ListExemplaries(ctx, ExemplaryFilter{Search: "z-"})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestMostRecentBookAndLatestExemplary(t *testing.T) {
	db, ctx := setupTestDB(t)
	repo := New(db)
	c := seedCatalog(t, ctx, db)

	none, err := repo.MostRecentBook(ctx, c.author.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	createBook(t, ctx, db, c, "Undated", nil)
	createBook(t, ctx, db, c, "Old", ptr(daysAgo(1000)))
	first := createBook(t, ctx, db, c, "New A", ptr(daysAgo(10)))
	createBook(t, ctx, db, c, "New B", ptr(daysAgo(10)))

	recent, err := repo.MostRecentBook(ctx, c.author.ID)
	require.NoError(t, err)
	require.NotNil(t, recent)
	assert.Equal(t, first.ID, recent.ID)

	latest, err := repo.LatestExemplary(ctx, first.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	createExemplary(t, ctx, db, first, "E-1", ptr(daysAgo(30)))
	newest := createExemplary(t, ctx, db, first, "E-2", ptr(daysAgo(3)))
	createExemplary(t, ctx, db, first, "E-3", nil)

	latest, err = repo.LatestExemplary(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, newest.ID, latest.ID)
}

func TestAuthorGenresAreDistinct(t *testing.T) {
	db, ctx := setupTestDB(t)
	repo := New(db)
	c := seedCatalog(t, ctx, db)
	createBook(t, ctx, db, c, "Dune", nil)
	createBook(t, ctx, db, c, "Dune Messiah", nil)

	fantasy := models.Genre{Name: "Fantasy"}
	require.NoError(t, db.Create(&fantasy).Error)
	book := models.Book{Title: "Other", AuthorID: c.author.ID, EditorID: c.editor.ID, GenreID: &fantasy.ID}
	require.NoError(t, db.Create(&book).Error)

	genres, err := repo.AuthorGenres(ctx, c.author.ID)
	require.NoError(t, err)
	require.Len(t, genres, 2)
	assert.Equal(t, "Fantasy", genres[0].Name)
	assert.Equal(t, "Science Fiction", genres[1].Name)
}

func TestCascadeAndRestrictDeletes(t *testing.T) {
	db, ctx := setupTestDB(t)
	c := seedCatalog(t, ctx, db)
	book := createBook(t, ctx, db, c, "Dune", nil)
	e := createExemplary(t, ctx, db, book, "D-1", nil)
	user := createUser(t, ctx, db, 1)
	createBorrowing(t, ctx, db, user, e, daysAgo(3), nil)

	assert.Error(t, db.Delete(&models.Genre{}, c.genre.ID).Error)

	require.NoError(t, db.Delete(&models.User{}, user.ID).Error)
	var count int64
	db.Model(&models.Borrowing{}).Count(&count)
	assert.Equal(t, int64(0), count)

	require.NoError(t, db.Delete(&models.Author{}, c.author.ID).Error)
	db.Model(&models.Exemplary{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestOneOpenBorrowingPerExemplary(t *testing.T) {
	db, ctx := setupTestDB(t)
	c := seedCatalog(t, ctx, db)
	book := createBook(t, ctx, db, c, "Dune", nil)
	e := createExemplary(t, ctx, db, book, "D-1", nil)
	user := createUser(t, ctx, db, 1)
	createBorrowing(t, ctx, db, user, e, daysAgo(3), nil)

	second := models.Borrowing{UserID: user.ID, ExemplaryID: e.ID, BorrowingDate: daysAgo(1)}
	err := db.WithContext(ctx).Create(&second).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestBorrowingDateConstraints(t *testing.T) {
	db, ctx := setupTestDB(t)
	c := seedCatalog(t, ctx, db)
	book := createBook(t, ctx, db, c, "Dune", nil)
	e := createExemplary(t, ctx, db, book, "D-1", nil)
	user := createUser(t, ctx, db, 1)

	future := models.Borrowing{UserID: user.ID, ExemplaryID: e.ID, BorrowingDate: today.AddDate(0, 0, 1)}
	var cv *models.ConstraintViolation
	assert.ErrorAs(t, db.WithContext(ctx).Create(&future).Error, &cv)

	backwards := models.Borrowing{UserID: user.ID, ExemplaryID: e.ID, BorrowingDate: daysAgo(3), ReturnDate: ptr(daysAgo(4))}
	assert.ErrorAs(t, db.WithContext(ctx).Create(&backwards).Error, &cv)
}

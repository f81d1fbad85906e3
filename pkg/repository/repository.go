// Package repository is the storage-access layer of the library service.
// Derived fields that depend on other tables (counts, availability, loan
// summaries) are computed here as grouped aggregates; every map-returning
// method has an entry for each requested id, defaulting to zero.
package repository

import (
	"context"
	"fmt"

	"library_borrow/pkg/models"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"gorm.io/gorm"
)

const (
	tableBooks       = "books"
	tableExemplaries = "exemplaries"
	tableBorrowings  = "borrowings"
	tableUsers       = "users"
)

type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the handle the repository runs on, so callers can open a
// transaction and build a transactional repository with New(tx).
func (r *Repository) DB() *gorm.DB {
	return r.db
}

type groupCount struct {
	OwnerID uint
	Total   int64
}

func (r *Repository) raw(ctx context.Context, ds *goqu.SelectDataset, dest interface{}) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return r.db.WithContext(ctx).Raw(query, args...).Scan(dest).Error
}

// countBy counts rows of table grouped by the foreign key column fk.
func (r *Repository) countBy(ctx context.Context, table, fk string, ids []uint, where ...exp.Expression) (map[uint]int64, error) {
	result := make(map[uint]int64, len(ids))
	for _, id := range ids {
		result[id] = 0
	}
	if len(ids) == 0 {
		return result, nil
	}

	conditions := append([]exp.Expression{goqu.C(fk).In(ids)}, where...)
	ds := goqu.From(table).
		Select(goqu.C(fk).As("owner_id"), goqu.COUNT(goqu.Star()).As("total")).
		Where(conditions...).
		GroupBy(goqu.C(fk))

	var rows []groupCount
	if err := r.raw(ctx, ds, &rows); err != nil {
		return nil, fmt.Errorf("count %s by %s: %w", table, fk, err)
	}
	for _, row := range rows {
		result[row.OwnerID] = row.Total
	}
	return result, nil
}

func (r *Repository) CountBooksByEditor(ctx context.Context, editorIDs []uint) (map[uint]int64, error) {
	return r.countBy(ctx, tableBooks, "editor_id", editorIDs)
}

func (r *Repository) CountBooksByAuthor(ctx context.Context, authorIDs []uint) (map[uint]int64, error) {
	return r.countBy(ctx, tableBooks, "author_id", authorIDs)
}

func (r *Repository) CountExemplariesByBook(ctx context.Context, bookIDs []uint) (map[uint]int64, error) {
	return r.countBy(ctx, tableExemplaries, "book_id", bookIDs)
}

// AuthorGenres returns the distinct genres of an author's books.
func (r *Repository) AuthorGenres(ctx context.Context, authorID uint) ([]models.Genre, error) {
	var genres []models.Genre
	err := r.db.WithContext(ctx).
		Model(&models.Genre{}).
		Distinct("genres.id", "genres.name").
		Joins("JOIN books ON books.genre_id = genres.id").
		Where("books.author_id = ?", authorID).
		Order("genres.name, genres.id").
		Find(&genres).Error
	return genres, err
}

// MostRecentBook picks the author's book with the latest publish date. Books
// without a date are ignored and ties go to the lowest id. Returns nil when
// there is no dated book.
func (r *Repository) MostRecentBook(ctx context.Context, authorID uint) (*models.Book, error) {
	var books []models.Book
	err := r.db.WithContext(ctx).
		Where("author_id = ? AND date_published IS NOT NULL", authorID).
		Order("date_published DESC, id ASC").
		Limit(1).
		Find(&books).Error
	if err != nil || len(books) == 0 {
		return nil, err
	}
	return &books[0], nil
}

// LatestExemplary picks the most recently acquired exemplary of a book, lowest
// id on ties. Returns nil when no exemplary has an acquisition date.
func (r *Repository) LatestExemplary(ctx context.Context, bookID uint) (*models.Exemplary, error) {
	var exemplaries []models.Exemplary
	err := r.db.WithContext(ctx).
		Where("book_id = ? AND acquisition_date IS NOT NULL", bookID).
		Order("acquisition_date DESC, id ASC").
		Limit(1).
		Find(&exemplaries).Error
	if err != nil || len(exemplaries) == 0 {
		return nil, err
	}
	return &exemplaries[0], nil
}

type BookFilter struct {
	AuthorID  uint
	EditorID  uint
	Available *bool
}

func (r *Repository) ListBooks(ctx context.Context, f BookFilter) ([]models.Book, error) {
	query := r.db.WithContext(ctx).Model(&models.Book{})
	if f.AuthorID != 0 {
		query = query.Where("author_id = ?", f.AuthorID)
	}
	if f.EditorID != 0 {
		query = query.Where("editor_id = ?", f.EditorID)
	}
	if f.Available != nil {
		sub, err := AvailableBooksQuery()
		if err != nil {
			return nil, err
		}
		if *f.Available {
			query = query.Where("books.id IN (?)", sub)
		} else {
			query = query.Where("books.id NOT IN (?)", sub)
		}
	}
	var books []models.Book
	err := query.Order("books.title, books.id").Find(&books).Error
	return books, err
}

type ExemplaryFilter struct {
	BookID    uint
	Search    string
	Available *bool
}

// ListExemplaries orders exemplaries by their display label, book title then
// identifier. Search matches either the identifier or the book title.
func (r *Repository) ListExemplaries(ctx context.Context, f ExemplaryFilter) ([]models.Exemplary, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Exemplary{}).
		Select("exemplaries.*").
		Joins("JOIN books ON books.id = exemplaries.book_id").
		Preload("Book")
	if f.BookID != 0 {
		query = query.Where("exemplaries.book_id = ?", f.BookID)
	}
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		query = query.Where("LOWER(exemplaries.identifier) LIKE LOWER(?) OR LOWER(books.title) LIKE LOWER(?)", pattern, pattern)
	}
	if f.Available != nil {
		sub, err := AvailableExemplariesQuery()
		if err != nil {
			return nil, err
		}
		if *f.Available {
			query = query.Where("exemplaries.id IN (?)", sub)
		} else {
			query = query.Where("exemplaries.id NOT IN (?)", sub)
		}
	}
	var exemplaries []models.Exemplary
	err := query.Order("books.title || exemplaries.identifier").Order("exemplaries.id").Find(&exemplaries).Error
	return exemplaries, err
}

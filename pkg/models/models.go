package models

import (
	"time"
)

type Gender string

const (
	GenderMan   Gender = "man"
	GenderWoman Gender = "woman"
)

type Genre struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:120;not null" json:"name"`
}

type Editor struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Name         string     `gorm:"size:120;not null" json:"name"`
	CreationDate *time.Time `gorm:"type:date" json:"creationDate,omitempty"`
	Genres       []Genre    `gorm:"many2many:editor_genres;constraint:OnDelete:CASCADE" json:"genres,omitempty"`
}

type Author struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Name      string     `gorm:"size:120;not null" json:"name"`
	BirthDate *time.Time `gorm:"type:date" json:"birthDate,omitempty"`
	DeathDate *time.Time `gorm:"type:date" json:"deathDate,omitempty"`
	Gender    Gender     `gorm:"size:10" json:"gender,omitempty"`
}

type Book struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Title          string     `gorm:"size:255;not null;index" json:"title"`
	ISBN           string     `gorm:"size:20" json:"isbn,omitempty"`
	AuthorID       uint       `gorm:"not null;index" json:"authorId"`
	Author         *Author    `gorm:"constraint:OnDelete:CASCADE" json:"author,omitempty"`
	EditorID       uint       `gorm:"not null;index" json:"editorId"`
	Editor         *Editor    `gorm:"constraint:OnDelete:RESTRICT" json:"editor,omitempty"`
	GenreID        *uint      `gorm:"index" json:"genreId,omitempty"`
	Genre          *Genre     `gorm:"constraint:OnDelete:RESTRICT" json:"genre,omitempty"`
	DatePublished  *time.Time `gorm:"type:date" json:"datePublished,omitempty"`
	Description    string     `json:"description,omitempty"`
	Summary        string     `json:"summary,omitempty"`
	Cover          []byte     `json:"-"`
	PageCount      int        `json:"pageCount,omitempty"`
	EditionStopped bool       `gorm:"not null;default:false" json:"editionStopped"`
}

type Exemplary struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Identifier       string     `gorm:"size:80;not null" json:"identifier"`
	BookID           uint       `gorm:"not null;index" json:"bookId"`
	Book             *Book      `gorm:"constraint:OnDelete:CASCADE" json:"book,omitempty"`
	AcquisitionDate  *time.Time `gorm:"type:date" json:"acquisitionDate,omitempty"`
	AcquisitionPrice float64    `gorm:"type:numeric(16,2)" json:"acquisitionPrice,omitempty"`
}

// User is a library patron.
type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Identifier   int        `gorm:"not null" json:"identifier"`
	Name         string     `gorm:"size:120" json:"name,omitempty"`
	CreationDate *time.Time `gorm:"type:date" json:"creationDate,omitempty"`
}

type Borrowing struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	BorrowingUid  string     `gorm:"size:36;uniqueIndex;not null" json:"borrowingUid"`
	UserID        uint       `gorm:"not null;index" json:"userId"`
	User          *User      `gorm:"constraint:OnDelete:CASCADE" json:"user,omitempty"`
	ExemplaryID   uint       `gorm:"not null;index;uniqueIndex:idx_borrowings_open_exemplary,where:return_date IS NULL" json:"exemplaryId"`
	Exemplary     *Exemplary `gorm:"constraint:OnDelete:CASCADE" json:"exemplary,omitempty"`
	BorrowingDate time.Time  `gorm:"type:date;not null;index" json:"borrowingDate"`
	ReturnDate    *time.Time `gorm:"type:date;check:chk_borrowings_return_date,return_date IS NULL OR return_date >= borrowing_date" json:"returnDate,omitempty"`
}

func (Genre) TableName() string     { return "genres" }
func (Editor) TableName() string    { return "editors" }
func (Author) TableName() string    { return "authors" }
func (Book) TableName() string      { return "books" }
func (Exemplary) TableName() string { return "exemplaries" }
func (User) TableName() string      { return "users" }
func (Borrowing) TableName() string { return "borrowings" }

// All lists every model in foreign key order, ready for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Genre{}, &Editor{}, &Author{}, &Book{}, &Exemplary{}, &User{}, &Borrowing{},
	}
}

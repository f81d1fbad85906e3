package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"library_borrow/pkg/database"
	"library_borrow/pkg/models"
	"library_borrow/pkg/repository"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var (
	db    *gorm.DB
	clock = time.Now
)

func main() {
	log.Println("Starting library service...")

	cfg := database.LoadConfig()
	var err error
	db, err = database.InitLibraryDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialise database: %v", err)
	}

	if envOr("SEED_DATA", "true") == "true" {
		seedTestData()
	}

	addr := envOr("HTTP_ADDR", ":8060")
	log.Printf("Library service starting on %s", addr)
	if err := setupRouter().Run(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func setupRouter() *gin.Engine {
	server := gin.Default()

	api := server.Group("/api/v1")
	api.GET("/genres", getGenres)
	api.POST("/genres", createGenre)
	api.DELETE("/genres/:id", deleteRecord(&models.Genre{}))

	api.GET("/editors", getEditors)
	api.GET("/editors/:id", getEditor)
	api.POST("/editors", createEditor)
	api.DELETE("/editors/:id", deleteRecord(&models.Editor{}))

	api.GET("/authors", getAuthors)
	api.GET("/authors/:id", getAuthor)
	api.POST("/authors", createAuthor)
	api.DELETE("/authors/:id", deleteRecord(&models.Author{}))

	api.GET("/books", getBooks)
	api.GET("/books/:id", getBook)
	api.POST("/books", createBook)
	api.DELETE("/books/:id", deleteRecord(&models.Book{}))

	api.GET("/exemplaries", getExemplaries)
	api.POST("/exemplaries", createExemplary)
	api.DELETE("/exemplaries/:id", deleteRecord(&models.Exemplary{}))

	api.GET("/users", getUsers)
	api.GET("/users/:id", getUser)
	api.POST("/users", createUser)
	api.DELETE("/users/:id", deleteRecord(&models.User{}))

	api.GET("/borrowings", getBorrowings)
	api.GET("/borrowings/:id", getBorrowing)

	api.POST("/wizards/borrow/start", startBorrow)
	api.POST("/wizards/borrow", borrowBooks)
	api.POST("/wizards/return/start", startReturn)
	api.POST("/wizards/return", returnBooks)

	server.GET("/manage/health", healthCheck)
	return server
}

func seedTestData() {
	tx := db.WithContext(models.WithToday(context.Background(), clock()))

	var count int64
	tx.Model(&models.Book{}).Count(&count)
	if count > 0 {
		log.Println("Library data already present, skipping seed")
		return
	}

	genre := models.Genre{Name: "Science Fiction"}
	editor := models.Editor{Name: "Chilton Books"}
	birth := time.Date(1920, 10, 8, 0, 0, 0, 0, time.UTC)
	death := time.Date(1986, 2, 11, 0, 0, 0, 0, time.UTC)
	author := models.Author{Name: "Frank Herbert", BirthDate: &birth, DeathDate: &death, Gender: models.GenderMan}
	published := time.Date(1965, 8, 1, 0, 0, 0, 0, time.UTC)

	err := tx.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&genre).Error; err != nil {
			return err
		}
		editor.Genres = []models.Genre{genre}
		if err := tx.Create(&editor).Error; err != nil {
			return err
		}
		if err := tx.Create(&author).Error; err != nil {
			return err
		}
		book := models.Book{
			Title:         "Dune",
			ISBN:          "978-0441013593",
			AuthorID:      author.ID,
			EditorID:      editor.ID,
			GenreID:       &genre.ID,
			DatePublished: &published,
			PageCount:     412,
		}
		if err := tx.Create(&book).Error; err != nil {
			return err
		}
		for _, identifier := range []string{"DUNE-001", "DUNE-002"} {
			exemplary := models.Exemplary{Identifier: identifier, BookID: book.ID}
			if err := tx.Create(&exemplary).Error; err != nil {
				return err
			}
		}
		return tx.Create(&models.User{Identifier: 1, Name: "Test Reader"}).Error
	})
	if err != nil {
		log.Printf("Failed to seed library data: %v", err)
		return
	}
	log.Println("Library test data seeded")
}

// healthCheck reports DOWN when the library database cannot be reached.
func healthCheck(c *gin.Context) {
	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		log.Printf("Health check failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "DOWN",
			"database": "unreachable",
			"error":    err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP", "database": "reachable"})
}

func repo() *repository.Repository {
	return repository.New(db)
}

// envOr returns the value of key, or fallback when it is unset or blank.
func envOr(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

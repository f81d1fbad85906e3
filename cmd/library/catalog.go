package main

import (
	"net/http"
	"strconv"

	"library_borrow/pkg/models"
	"library_borrow/pkg/repository"

	"github.com/gin-gonic/gin"
)

func getGenres(c *gin.Context) {
	var genres []models.Genre
	if err := db.WithContext(c.Request.Context()).Order("name, id").Find(&genres).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, genres)
}

func createGenre(c *gin.Context) {
	var request struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		bindError(c, err)
		return
	}
	genre := models.Genre{Name: request.Name}
	if err := db.WithContext(requestContext(c)).Create(&genre).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, genre)
}

func editorView(editor models.Editor, bookCount int64) gin.H {
	return gin.H{
		"id":           editor.ID,
		"name":         editor.Name,
		"creationDate": formatDate(editor.CreationDate),
		"genres":       editor.Genres,
		"bookCount":    bookCount,
	}
}

func getEditors(c *gin.Context) {
	ctx := c.Request.Context()
	var editors []models.Editor
	if err := db.WithContext(ctx).Preload("Genres").Order("name, id").Find(&editors).Error; err != nil {
		respondError(c, err)
		return
	}
	ids := make([]uint, len(editors))
	for i, e := range editors {
		ids[i] = e.ID
	}
	counts, err := repo().CountBooksByEditor(ctx, ids)
	if err != nil {
		respondError(c, err)
		return
	}
	items := make([]gin.H, len(editors))
	for i, e := range editors {
		items[i] = editorView(e, counts[e.ID])
	}
	c.JSON(http.StatusOK, items)
}

func getEditor(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	var editor models.Editor
	if err := db.WithContext(ctx).Preload("Genres").First(&editor, id).Error; err != nil {
		respondError(c, err)
		return
	}
	counts, err := repo().CountBooksByEditor(ctx, []uint{id})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, editorView(editor, counts[id]))
}

func createEditor(c *gin.Context) {
	var request struct {
		Name         string `json:"name" binding:"required"`
		CreationDate string `json:"creationDate" binding:"omitempty,datetime=2006-01-02,notfuture"`
		GenreIDs     []uint `json:"genreIds"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		bindError(c, err)
		return
	}
	ctx := requestContext(c)
	creation, _ := optionalDate(request.CreationDate)
	editor := models.Editor{Name: request.Name, CreationDate: creation}
	if len(request.GenreIDs) > 0 {
		if err := db.WithContext(ctx).Find(&editor.Genres, request.GenreIDs).Error; err != nil {
			respondError(c, err)
			return
		}
	}
	if err := db.WithContext(ctx).Create(&editor).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, editorView(editor, 0))
}

func authorSummary(author models.Author, bookCount int64) gin.H {
	view := gin.H{
		"id":        author.ID,
		"name":      author.Name,
		"birthDate": formatDate(author.BirthDate),
		"deathDate": formatDate(author.DeathDate),
		"gender":    author.Gender,
		"bookCount": bookCount,
	}
	if age, ok := author.Age(clock()); ok {
		view["age"] = age
	}
	return view
}

// authorDetail extends the summary with the author's genres and latest book.
func authorDetail(c *gin.Context, author models.Author, bookCount int64) (gin.H, error) {
	ctx := c.Request.Context()
	genres, err := repo().AuthorGenres(ctx, author.ID)
	if err != nil {
		return nil, err
	}
	latest, err := repo().MostRecentBook(ctx, author.ID)
	if err != nil {
		return nil, err
	}
	view := authorSummary(author, bookCount)
	view["genres"] = genres
	view["latestBook"] = latest
	return view, nil
}

func getAuthors(c *gin.Context) {
	ctx := c.Request.Context()
	var authors []models.Author
	if err := db.WithContext(ctx).Order("name, id").Find(&authors).Error; err != nil {
		respondError(c, err)
		return
	}
	ids := make([]uint, len(authors))
	for i, a := range authors {
		ids[i] = a.ID
	}
	counts, err := repo().CountBooksByAuthor(ctx, ids)
	if err != nil {
		respondError(c, err)
		return
	}
	items := make([]gin.H, len(authors))
	for i, a := range authors {
		items[i] = authorSummary(a, counts[a.ID])
	}
	c.JSON(http.StatusOK, items)
}

func getAuthor(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	var author models.Author
	if err := db.WithContext(ctx).First(&author, id).Error; err != nil {
		respondError(c, err)
		return
	}
	counts, err := repo().CountBooksByAuthor(ctx, []uint{id})
	if err != nil {
		respondError(c, err)
		return
	}
	view, err := authorDetail(c, author, counts[id])
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func createAuthor(c *gin.Context) {
	var request struct {
		Name      string `json:"name" binding:"required"`
		BirthDate string `json:"birthDate" binding:"omitempty,datetime=2006-01-02"`
		DeathDate string `json:"deathDate" binding:"omitempty,datetime=2006-01-02"`
		Gender    string `json:"gender" binding:"omitempty,oneof=man woman"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		bindError(c, err)
		return
	}
	birth, _ := optionalDate(request.BirthDate)
	death, _ := optionalDate(request.DeathDate)
	author := models.Author{Name: request.Name, BirthDate: birth, DeathDate: death, Gender: models.Gender(request.Gender)}
	if err := db.WithContext(requestContext(c)).Create(&author).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, authorSummary(author, 0))
}

func optionalBool(c *gin.Context, key string) *bool {
	value, ok := c.GetQuery(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return nil
	}
	return &b
}

func optionalUint(c *gin.Context, key string) uint {
	value, err := strconv.ParseUint(c.Query(key), 10, 64)
	if err != nil {
		return 0
	}
	return uint(value)
}

func bookViews(c *gin.Context, books []models.Book) ([]gin.H, error) {
	ctx := c.Request.Context()
	ids := make([]uint, len(books))
	for i, b := range books {
		ids[i] = b.ID
	}
	counts, err := repo().CountExemplariesByBook(ctx, ids)
	if err != nil {
		return nil, err
	}
	availability, err := repo().BookAvailability(ctx, ids)
	if err != nil {
		return nil, err
	}
	items := make([]gin.H, len(books))
	for i, b := range books {
		items[i] = gin.H{
			"id":             b.ID,
			"title":          b.Title,
			"isbn":           b.ISBN,
			"authorId":       b.AuthorID,
			"editorId":       b.EditorID,
			"genreId":        b.GenreID,
			"datePublished":  formatDate(b.DatePublished),
			"description":    b.Description,
			"summary":        b.Summary,
			"pageCount":      b.PageCount,
			"editionStopped": b.EditionStopped,
			"exemplaryCount": counts[b.ID],
			"isAvailable":    availability[b.ID],
		}
	}
	return items, nil
}

func getBooks(c *gin.Context) {
	books, err := repo().ListBooks(c.Request.Context(), repository.BookFilter{
		AuthorID:  optionalUint(c, "authorId"),
		EditorID:  optionalUint(c, "editorId"),
		Available: optionalBool(c, "available"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	items, err := bookViews(c, books)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func getBook(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	var book models.Book
	if err := db.WithContext(ctx).First(&book, id).Error; err != nil {
		respondError(c, err)
		return
	}
	items, err := bookViews(c, []models.Book{book})
	if err != nil {
		respondError(c, err)
		return
	}
	latest, err := repo().LatestExemplary(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	view := items[0]
	view["latestExemplary"] = latest
	c.JSON(http.StatusOK, view)
}

func createBook(c *gin.Context) {
	var request struct {
		Title          string `json:"title" binding:"required"`
		ISBN           string `json:"isbn"`
		AuthorID       uint   `json:"authorId" binding:"required"`
		EditorID       uint   `json:"editorId" binding:"required"`
		GenreID        *uint  `json:"genreId"`
		DatePublished  string `json:"datePublished" binding:"omitempty,datetime=2006-01-02"`
		Description    string `json:"description"`
		Summary        string `json:"summary"`
		Cover          []byte `json:"cover"`
		PageCount      int    `json:"pageCount" binding:"gte=0"`
		EditionStopped bool   `json:"editionStopped"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		bindError(c, err)
		return
	}
	published, _ := optionalDate(request.DatePublished)
	book := models.Book{
		Title:          request.Title,
		ISBN:           request.ISBN,
		AuthorID:       request.AuthorID,
		EditorID:       request.EditorID,
		GenreID:        request.GenreID,
		DatePublished:  published,
		Description:    request.Description,
		Summary:        request.Summary,
		Cover:          request.Cover,
		PageCount:      request.PageCount,
		EditionStopped: request.EditionStopped,
	}
	if err := db.WithContext(requestContext(c)).Create(&book).Error; err != nil {
		respondError(c, err)
		return
	}
	items, err := bookViews(c, []models.Book{book})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, items[0])
}

func getExemplaries(c *gin.Context) {
	ctx := c.Request.Context()
	exemplaries, err := repo().ListExemplaries(ctx, repository.ExemplaryFilter{
		BookID:    optionalUint(c, "bookId"),
		Search:    c.Query("q"),
		Available: optionalBool(c, "available"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	ids := make([]uint, len(exemplaries))
	for i, e := range exemplaries {
		ids[i] = e.ID
	}
	availability, err := repo().ExemplaryAvailability(ctx, ids)
	if err != nil {
		respondError(c, err)
		return
	}
	items := make([]gin.H, len(exemplaries))
	for i, e := range exemplaries {
		items[i] = gin.H{
			"id":               e.ID,
			"identifier":       e.Identifier,
			"label":            e.Label(),
			"bookId":           e.BookID,
			"acquisitionDate":  formatDate(e.AcquisitionDate),
			"acquisitionPrice": e.AcquisitionPrice,
			"isAvailable":      availability[e.ID],
		}
	}
	c.JSON(http.StatusOK, items)
}

func createExemplary(c *gin.Context) {
	var request struct {
		Identifier       string  `json:"identifier" binding:"required"`
		BookID           uint    `json:"bookId" binding:"required"`
		AcquisitionDate  string  `json:"acquisitionDate" binding:"omitempty,datetime=2006-01-02"`
		AcquisitionPrice float64 `json:"acquisitionPrice" binding:"gte=0"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		bindError(c, err)
		return
	}
	acquired, _ := optionalDate(request.AcquisitionDate)
	exemplary := models.Exemplary{
		Identifier:       request.Identifier,
		BookID:           request.BookID,
		AcquisitionDate:  acquired,
		AcquisitionPrice: request.AcquisitionPrice,
	}
	if err := db.WithContext(requestContext(c)).Create(&exemplary).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":               exemplary.ID,
		"identifier":       exemplary.Identifier,
		"bookId":           exemplary.BookID,
		"acquisitionDate":  formatDate(exemplary.AcquisitionDate),
		"acquisitionPrice": exemplary.AcquisitionPrice,
		"isAvailable":      true,
	})
}

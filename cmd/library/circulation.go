package main

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"library_borrow/pkg/models"
	"library_borrow/pkg/repository"
	"library_borrow/pkg/wizard"

	"github.com/gin-gonic/gin"
)

func userViews(c *gin.Context, users []models.User) ([]gin.H, error) {
	ids := make([]uint, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	summaries, err := repo().UserSummaries(c.Request.Context(), ids, clock())
	if err != nil {
		return nil, err
	}
	items := make([]gin.H, len(users))
	for i, u := range users {
		summary := summaries[u.ID]
		items[i] = gin.H{
			"id":                 u.ID,
			"identifier":         u.Identifier,
			"name":               u.Name,
			"creationDate":       formatDate(u.CreationDate),
			"numberBorrowed":     summary.NumberBorrowed,
			"numberLate":         summary.NumberLate,
			"expectedReturnDate": formatDate(summary.ExpectedReturnDate),
		}
	}
	return items, nil
}

// expectedReturnFilter reads expectedReturnOp and a comma separated
// expectedReturnDate list from the query string.
func expectedReturnFilter(c *gin.Context) (repository.Operator, []time.Time, bool, error) {
	rawOp := c.Query("expectedReturnOp")
	if rawOp == "" {
		return "", nil, false, nil
	}
	op, err := repository.ParseOperator(rawOp)
	if err != nil {
		return "", nil, false, err
	}
	var dates []time.Time
	for _, raw := range strings.Split(c.Query("expectedReturnDate"), ",") {
		if raw = strings.TrimSpace(raw); raw == "" {
			continue
		}
		d, err := models.ParseDate(raw)
		if err != nil {
			return "", nil, false, err
		}
		dates = append(dates, d)
	}
	return op, dates, true, nil
}

func getUsers(c *gin.Context) {
	ctx := c.Request.Context()
	op, dates, filtered, err := expectedReturnFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var users []models.User
	if filtered {
		users, err = repo().SearchUsersByExpectedReturn(ctx, op, dates...)
	} else {
		err = db.WithContext(ctx).Order("identifier, id").Find(&users).Error
	}
	if err != nil {
		respondError(c, err)
		return
	}
	items, err := userViews(c, users)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func getUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var user models.User
	if err := db.WithContext(c.Request.Context()).First(&user, id).Error; err != nil {
		respondError(c, err)
		return
	}
	items, err := userViews(c, []models.User{user})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items[0])
}

func createUser(c *gin.Context) {
	var request struct {
		Identifier   *int   `json:"identifier" binding:"required"`
		Name         string `json:"name"`
		CreationDate string `json:"creationDate" binding:"omitempty,datetime=2006-01-02,notfuture"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		bindError(c, err)
		return
	}
	creation, _ := optionalDate(request.CreationDate)
	user := models.User{Identifier: *request.Identifier, Name: request.Name, CreationDate: creation}
	if err := db.WithContext(requestContext(c)).Create(&user).Error; err != nil {
		respondError(c, err)
		return
	}
	items, err := userViews(c, []models.User{user})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, items[0])
}

func borrowingView(b models.Borrowing) gin.H {
	view := gin.H{
		"id":                 b.ID,
		"borrowingUid":       b.BorrowingUid,
		"userId":             b.UserID,
		"exemplaryId":        b.ExemplaryID,
		"borrowingDate":      b.BorrowingDate.Format(models.DateLayout),
		"returnDate":         formatDate(b.ReturnDate),
		"expectedReturnDate": b.ExpectedReturnDate().Format(models.DateLayout),
		"isLate":             b.IsLate(clock()),
	}
	if b.Exemplary != nil {
		view["exemplary"] = b.Exemplary.Label()
	}
	return view
}

func parseIDList(raw string) ([]uint, error) {
	var ids []uint
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

func getBorrowings(c *gin.Context) {
	ctx := c.Request.Context()
	op, dates, filtered, err := expectedReturnFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var borrowings []models.Borrowing
	if filtered {
		borrowings, err = repo().SearchBorrowingsByExpectedReturn(ctx, op, dates...)
		if err != nil {
			respondError(c, err)
			return
		}
	} else {
		query := db.WithContext(ctx).Preload("Exemplary.Book").Order("id")
		if raw := c.Query("ids"); raw != "" {
			ids, err := parseIDList(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ids"})
				return
			}
			query = query.Where("id IN ?", ids)
		}
		if userID := optionalUint(c, "userId"); userID != 0 {
			query = query.Where("user_id = ?", userID)
		}
		if open := optionalBool(c, "open"); open != nil {
			if *open {
				query = query.Where("return_date IS NULL")
			} else {
				query = query.Where("return_date IS NOT NULL")
			}
		}
		if err := query.Find(&borrowings).Error; err != nil {
			respondError(c, err)
			return
		}
	}

	items := make([]gin.H, len(borrowings))
	for i, b := range borrowings {
		items[i] = borrowingView(b)
	}
	c.JSON(http.StatusOK, items)
}

func getBorrowing(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var borrowing models.Borrowing
	if err := db.WithContext(c.Request.Context()).Preload("Exemplary.Book").First(&borrowing, id).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, borrowingView(borrowing))
}

func startBorrow(c *gin.Context) {
	var active wizard.ActiveContext
	if err := c.ShouldBindJSON(&active); err != nil {
		bindError(c, err)
		return
	}
	selection, err := wizard.NewBorrowBook(db).Start(requestContext(c), active)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":         wizard.StateSelectBook,
		"userId":        selection.UserID,
		"exemplaryIds":  selection.ExemplaryIDs,
		"borrowingDate": selection.BorrowingDate.Format(models.DateLayout),
	})
}

func borrowBooks(c *gin.Context) {
	var request struct {
		UserID        uint   `json:"userId" binding:"required"`
		ExemplaryIDs  []uint `json:"exemplaryIds" binding:"required,min=1"`
		BorrowingDate string `json:"borrowingDate" binding:"omitempty,datetime=2006-01-02,notfuture"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		bindError(c, err)
		return
	}
	borrowingDate, _ := optionalDate(request.BorrowingDate)
	selection := wizard.BorrowSelection{UserID: request.UserID, ExemplaryIDs: request.ExemplaryIDs}
	if borrowingDate != nil {
		selection.BorrowingDate = *borrowingDate
	}

	w := wizard.NewBorrowBook(db)
	action, err := w.Borrow(requestContext(c), selection)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"state":        w.State,
		"borrowingIds": w.Borrowings,
		"action":       action,
	})
}

func startReturn(c *gin.Context) {
	var active wizard.ActiveContext
	if err := c.ShouldBindJSON(&active); err != nil {
		bindError(c, err)
		return
	}
	selection, err := wizard.NewReturnBook(db).Start(requestContext(c), active)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":        wizard.StateSelectBorrowing,
		"userId":       selection.UserID,
		"borrowingIds": selection.BorrowingIDs,
		"returnDate":   selection.ReturnDate.Format(models.DateLayout),
	})
}

func returnBooks(c *gin.Context) {
	var request struct {
		UserID       uint   `json:"userId" binding:"required"`
		BorrowingIDs []uint `json:"borrowingIds" binding:"required,min=1"`
		ReturnDate   string `json:"returnDate" binding:"omitempty,datetime=2006-01-02,notfuture"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		bindError(c, err)
		return
	}
	returnDate, _ := optionalDate(request.ReturnDate)
	selection := wizard.ReturnSelection{UserID: request.UserID, BorrowingIDs: request.BorrowingIDs}
	if returnDate != nil {
		selection.ReturnDate = *returnDate
	}

	w := wizard.NewReturnBook(db)
	if err := w.Return(requestContext(c), selection); err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusNoContent, "application/json", nil)
}

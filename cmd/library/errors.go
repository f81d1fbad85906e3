package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"reflect"

	"library_borrow/pkg/models"
	"library_borrow/pkg/repository"
	"library_borrow/pkg/wizard"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// requestContext pins "today" for every date rule evaluated by the request.
func requestContext(c *gin.Context) context.Context {
	return models.WithToday(c.Request.Context(), clock())
}

func respondError(c *gin.Context, err error) {
	var validationErr *wizard.ValidationError
	var violation *models.ConstraintViolation

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": validationErr.Error(),
			"code":  validationErr.Code,
			"ids":   validationErr.IDs,
		})
	case errors.As(err, &violation):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": violation.Error(),
			"field": violation.Field,
		})
	case errors.Is(err, repository.ErrUnknownOperator), errors.Is(err, repository.ErrMissingOperand):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		c.JSON(http.StatusConflict, gin.H{"error": "record is referenced by other records"})
	default:
		log.Printf("Request %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request",
		"details": err.Error(),
	})
}

func deleteRecord(model interface{}) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		record := reflect.New(reflect.TypeOf(model).Elem()).Interface()
		result := db.WithContext(requestContext(c)).Delete(record, id)
		if result.Error != nil {
			respondError(c, result.Error)
			return
		}
		if result.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

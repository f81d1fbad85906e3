package main

import (
	"time"

	"library_borrow/pkg/models"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("notfuture", notFuture)
	}
}

// notFuture accepts empty strings and dates up to today.
func notFuture(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	d, err := models.ParseDate(value)
	if err != nil {
		return false
	}
	return !d.After(models.Day(clock()))
}

func optionalDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	d, err := models.ParseDate(value)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func formatDate(d *time.Time) interface{} {
	if d == nil {
		return nil
	}
	return d.Format(models.DateLayout)
}

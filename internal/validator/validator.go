// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"crmaudit/internal/models"
)

// entityTypeRegex matches upper-case entity type names such as CUSTOMER or
// SALES_OPPORTUNITY.
var entityTypeRegex = regexp.MustCompile(`^[A-Z][A-Z0-9_]{0,49}$`)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		RegisterOn(v)
	}
}

// RegisterOn registers the custom validators on v.
func RegisterOn(v *validator.Validate) {
	_ = v.RegisterValidation("audit_category", validateAuditCategory)
	_ = v.RegisterValidation("audit_source", validateAuditSource)
	_ = v.RegisterValidation("entity_type", validateEntityType)
	_ = v.RegisterValidation("export_format", validateExportFormat)
	_ = v.RegisterValidation("activity_bucket", validateActivityBucket)
}

func validateAuditCategory(fl validator.FieldLevel) bool {
	return models.EventCategory(fl.Field().String()).IsValid()
}

func validateAuditSource(fl validator.FieldLevel) bool {
	return models.AuditSource(fl.Field().String()).IsValid()
}

func validateEntityType(fl validator.FieldLevel) bool {
	return entityTypeRegex.MatchString(fl.Field().String())
}

func validateExportFormat(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "csv", "json":
		return true
	}
	return false
}

func validateActivityBucket(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "hour", "day":
		return true
	}
	return false
}

package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
)

func newValidate() *validator.Validate {
	v := validator.New()
	RegisterOn(v)
	return v
}

func TestCustomValidators(t *testing.T) {
	v := newValidate()

	tests := []struct {
		tag   string
		value string
		valid bool
	}{
		{"audit_category", "CUSTOMER_CREATED", true},
		{"audit_category", "RETENTION_PURGE", true},
		{"audit_category", "customer_created", false},
		{"audit_category", "", false},
		{"audit_source", "WEBHOOK", true},
		{"audit_source", "BATCH", false},
		{"entity_type", "CUSTOMER", true},
		{"entity_type", "SALES_OPPORTUNITY_2", true},
		{"entity_type", "customer", false},
		{"entity_type", "1CUSTOMER", false},
		{"entity_type", "CUSTOMER; DROP", false},
		{"export_format", "csv", true},
		{"export_format", "json", true},
		{"export_format", "xlsx", false},
		{"activity_bucket", "hour", true},
		{"activity_bucket", "day", true},
		{"activity_bucket", "week", false},
	}

	for _, tt := range tests {
		t.Run(tt.tag+"/"+tt.value, func(t *testing.T) {
			err := v.Var(tt.value, tt.tag)
			if tt.valid && err != nil {
				t.Errorf("expected %q to pass %s, got %v", tt.value, tt.tag, err)
			}
			if !tt.valid && err == nil {
				t.Errorf("expected %q to fail %s", tt.value, tt.tag)
			}
		})
	}
}

func TestCustomValidators_OnStruct(t *testing.T) {
	type request struct {
		Category   string `validate:"required,audit_category"`
		EntityType string `validate:"required,entity_type"`
		Source     string `validate:"omitempty,audit_source"`
	}
	v := newValidate()

	if err := v.Struct(request{Category: "NOTE_ADDED", EntityType: "CUSTOMER"}); err != nil {
		t.Errorf("expected valid request, got %v", err)
	}
	if err := v.Struct(request{Category: "NOTE_ADDED", EntityType: "CUSTOMER", Source: "FAX"}); err == nil {
		t.Error("expected unknown source to fail")
	}
}

package models

import "sort"

// EventCategory is the closed set of audit event categories.
type EventCategory string

// Generic entity lifecycle.
const (
	CategoryEntityCreated EventCategory = "ENTITY_CREATED"
	CategoryEntityUpdated EventCategory = "ENTITY_UPDATED"
	CategoryEntityDeleted EventCategory = "ENTITY_DELETED"
)

// CRM domain events.
const (
	CategoryCustomerCreated         EventCategory = "CUSTOMER_CREATED"
	CategoryCustomerUpdated         EventCategory = "CUSTOMER_UPDATED"
	CategoryCustomerDeleted         EventCategory = "CUSTOMER_DELETED"
	CategoryOpportunityCreated      EventCategory = "OPPORTUNITY_CREATED"
	CategoryOpportunityUpdated      EventCategory = "OPPORTUNITY_UPDATED"
	CategoryOpportunityStageChanged EventCategory = "OPPORTUNITY_STAGE_CHANGED"
	CategoryOpportunityValueChanged EventCategory = "OPPORTUNITY_VALUE_CHANGED"
	CategoryActivityCreated         EventCategory = "ACTIVITY_CREATED"
	CategoryNoteAdded               EventCategory = "NOTE_ADDED"
	CategoryTaskAssigned            EventCategory = "TASK_ASSIGNED"
	CategoryCalculationPerformed    EventCategory = "CALCULATION_PERFORMED"
)

// Authentication and authorization.
const (
	CategoryLoginSuccess      EventCategory = "LOGIN_SUCCESS"
	CategoryLoginFailure      EventCategory = "LOGIN_FAILURE"
	CategoryLogout            EventCategory = "LOGOUT"
	CategoryPermissionGranted EventCategory = "PERMISSION_GRANTED"
	CategoryPermissionRevoked EventCategory = "PERMISSION_REVOKED"
	CategoryPermissionChange  EventCategory = "PERMISSION_CHANGE"
	CategoryPermissionDenied  EventCategory = "PERMISSION_DENIED"
	CategoryRoleAssigned      EventCategory = "ROLE_ASSIGNED"
	CategoryRoleRemoved       EventCategory = "ROLE_REMOVED"
	CategorySecurityViolation EventCategory = "SECURITY_VIOLATION"
)

// Data protection and exports.
const (
	CategoryDataExportStarted   EventCategory = "DATA_EXPORT_STARTED"
	CategoryDataExportCompleted EventCategory = "DATA_EXPORT_COMPLETED"
	CategoryGDPRRequest         EventCategory = "GDPR_REQUEST"
	CategoryDataAnonymized      EventCategory = "DATA_ANONYMIZED"
	CategoryDataDeleted         EventCategory = "DATA_DELETED"
	CategoryRetentionPurge      EventCategory = "RETENTION_PURGE"
)

// System events.
const (
	CategoryConfigurationChanged   EventCategory = "CONFIGURATION_CHANGED"
	CategoryMaintenanceModeEnabled EventCategory = "MAINTENANCE_MODE_ENABLED"
	CategorySystemStartup          EventCategory = "SYSTEM_STARTUP"
	CategoryCriticalError          EventCategory = "CRITICAL_ERROR"
)

// CategoryFacets are the derived boolean properties of a category.
type CategoryFacets struct {
	Security  bool
	Notify    bool
	Failure   bool
	Regulated bool
}

// categoryFacets is the only place facets are defined. Every category must
// appear here; IsValid is a lookup in this table.
var categoryFacets = map[EventCategory]CategoryFacets{
	CategoryEntityCreated: {},
	CategoryEntityUpdated: {},
	CategoryEntityDeleted: {},

	CategoryCustomerCreated:         {},
	CategoryCustomerUpdated:         {},
	CategoryCustomerDeleted:         {Regulated: true},
	CategoryOpportunityCreated:      {},
	CategoryOpportunityUpdated:      {},
	CategoryOpportunityStageChanged: {},
	CategoryOpportunityValueChanged: {},
	CategoryActivityCreated:         {},
	CategoryNoteAdded:               {},
	CategoryTaskAssigned:            {},
	CategoryCalculationPerformed:    {},

	CategoryLoginSuccess:      {Security: true},
	CategoryLoginFailure:      {Security: true, Failure: true},
	CategoryLogout:            {Security: true},
	CategoryPermissionGranted: {Security: true},
	CategoryPermissionRevoked: {Security: true},
	CategoryPermissionChange:  {Security: true},
	CategoryPermissionDenied:  {Security: true, Notify: true, Failure: true},
	CategoryRoleAssigned:      {Security: true},
	CategoryRoleRemoved:       {Security: true},
	CategorySecurityViolation: {Security: true, Notify: true},

	CategoryDataExportStarted:   {Regulated: true},
	CategoryDataExportCompleted: {Regulated: true},
	CategoryGDPRRequest:         {Security: true, Notify: true, Regulated: true},
	CategoryDataAnonymized:      {Regulated: true},
	CategoryDataDeleted:         {Notify: true, Regulated: true},
	CategoryRetentionPurge:      {Notify: true, Regulated: true},

	CategoryConfigurationChanged:   {},
	CategoryMaintenanceModeEnabled: {Notify: true},
	CategorySystemStartup:          {},
	CategoryCriticalError:          {Notify: true, Failure: true},
}

// Facets returns the facets of c. Unknown categories have no facets.
func (c EventCategory) Facets() CategoryFacets {
	return categoryFacets[c]
}

// IsValid reports whether c belongs to the closed category set.
func (c EventCategory) IsValid() bool {
	_, ok := categoryFacets[c]
	return ok
}

// IsSecurityRelevant reports whether c is included in security-focused queries.
func (c EventCategory) IsSecurityRelevant() bool { return c.Facets().Security }

// RequiresNotification reports whether writing c raises an escalation.
func (c EventCategory) RequiresNotification() bool { return c.Facets().Notify }

// IsFailure reports whether c matches the failure/denied/error pattern.
func (c EventCategory) IsFailure() bool { return c.Facets().Failure }

// IsRegulated reports whether c is relevant for data-protection regulation.
func (c EventCategory) IsRegulated() bool { return c.Facets().Regulated }

// AllCategories returns every category, sorted.
func AllCategories() []EventCategory {
	return categoriesWhere(func(CategoryFacets) bool { return true })
}

// SecurityCategories returns the security-relevant categories, sorted.
func SecurityCategories() []EventCategory {
	return categoriesWhere(func(f CategoryFacets) bool { return f.Security })
}

// FailureCategories returns the failure categories, sorted.
func FailureCategories() []EventCategory {
	return categoriesWhere(func(f CategoryFacets) bool { return f.Failure })
}

// NotifyCategories returns the categories that require notification, sorted.
func NotifyCategories() []EventCategory {
	return categoriesWhere(func(f CategoryFacets) bool { return f.Notify })
}

// RegulatedCategories returns the regulation-relevant categories, sorted.
func RegulatedCategories() []EventCategory {
	return categoriesWhere(func(f CategoryFacets) bool { return f.Regulated })
}

func categoriesWhere(keep func(CategoryFacets) bool) []EventCategory {
	out := make([]EventCategory, 0, len(categoryFacets))
	for c, f := range categoryFacets {
		if keep(f) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AuditSource is the channel through which an event entered the system.
type AuditSource string

const (
	SourceUI      AuditSource = "UI"
	SourceAPI     AuditSource = "API"
	SourceWebhook AuditSource = "WEBHOOK"
	SourceSystem  AuditSource = "SYSTEM"
)

// IsValid reports whether s is a known source channel.
func (s AuditSource) IsValid() bool {
	switch s {
	case SourceUI, SourceAPI, SourceWebhook, SourceSystem:
		return true
	}
	return false
}

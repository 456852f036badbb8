package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Profile represents a system user
type Profile struct {
	ID             uuid.UUID  `json:"id"`
	Email          string     `json:"email"`
	FullName       string     `json:"full_name"`
	PasswordHash   string     `json:"-"`
	Phone          string     `json:"phone,omitempty"`
	Role           string     `json:"role"`   // admin, staff, client
	Status         string     `json:"status"` // active, inactive
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Role enum values
const (
	RoleAdmin  = "admin"
	RoleStaff  = "staff"
	RoleClient = "client"
)

// ProfileStatus enum values
const (
	ProfileStatusActive   = "active"
	ProfileStatusInactive = "inactive"
)

// Organization represents a tenant organization
type Organization struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Industry    string    `json:"industry,omitempty"`
	Description string    `json:"description,omitempty"`
	AdminID     uuid.UUID `json:"admin_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// FinancialRecord represents one uploaded financial file under audit
type FinancialRecord struct {
	ID              uuid.UUID       `json:"id"`
	OrganizationID  uuid.UUID       `json:"organization_id"`
	UploadedBy      uuid.UUID       `json:"uploaded_by"`
	FileName        string          `json:"file_name"`
	FilePath        string          `json:"file_path"`
	FileSize        int64           `json:"file_size"`
	FileType        string          `json:"file_type"` // PDF, Excel, CSV
	Status          string          `json:"status"`    // pending, processing, analyzing, completed, failed
	AnalysisResults *AnalysisResult `json:"analysis_results,omitempty"`
	RiskFlags       JSONB           `json:"risk_flags,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// FileType enum values
const (
	FileTypePDF   = "PDF"
	FileTypeExcel = "Excel"
	FileTypeCSV   = "CSV"
)

// RecordStatus enum values
const (
	RecordStatusPending    = "pending"
	RecordStatusProcessing = "processing"
	RecordStatusAnalyzing  = "analyzing"
	RecordStatusCompleted  = "completed"
	RecordStatusFailed     = "failed"
)

// Severity enum values
const (
	SeverityLow    = "Low"
	SeverityMedium = "Medium"
	SeverityHigh   = "High"
)

// FlagStatus enum values for anomaly/compliance review
const (
	FlagStatusOpen     = "Open"
	FlagStatusReviewed = "Reviewed"
	FlagStatusResolved = "Resolved"
)

// Anomaly is a single rule-triggered irregularity finding
type Anomaly struct {
	Type            string `json:"type"`
	Description     string `json:"description"`
	Severity        string `json:"severity"` // Low, Medium, High
	RecordReference string `json:"recordReference"`
	Status          string `json:"status,omitempty"` // Open, Reviewed, Resolved
}

// ComplianceIssue mirrors Anomaly with a recommendation; kept for schema
// compatibility with the richer analysis mode, never populated by the
// rule-based engine.
type ComplianceIssue struct {
	Type           string `json:"type"`
	Description    string `json:"description"`
	Severity       string `json:"severity"`
	Recommendation string `json:"recommendation"`
	Status         string `json:"status,omitempty"`
}

// AnalysisResult is the aggregate analysis output for one record
type AnalysisResult struct {
	Summary          string            `json:"summary"`
	Anomalies        []Anomaly         `json:"anomalies"`
	ComplianceIssues []ComplianceIssue `json:"complianceIssues"`
	OverallRiskLevel string            `json:"overallRiskLevel"` // Low, Medium, High
}

// AuditReport represents a generated audit report
type AuditReport struct {
	ID              uuid.UUID `json:"id"`
	OrganizationID  uuid.UUID `json:"organization_id"`
	GeneratedBy     uuid.UUID `json:"generated_by"`
	Title           string    `json:"title"`
	ReportData      JSONB     `json:"report_data"`
	Recommendations string    `json:"recommendations,omitempty"`
	Status          string    `json:"status"` // draft, final
	CreatedAt       time.Time `json:"created_at"`
}

// ReportStatus enum values
const (
	ReportStatusDraft = "draft"
	ReportStatusFinal = "final"
)

// Activity represents one entry in the organization activity feed
type Activity struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	UserID         uuid.UUID `json:"user_id"`
	Action         string    `json:"action"`
	Details        JSONB     `json:"details,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Activity action values
const (
	ActivityRecordUploaded  = "record_uploaded"
	ActivityRecordAnalyzed  = "record_analyzed"
	ActivityRecordReset     = "record_reset"
	ActivityRecordDeleted   = "record_deleted"
	ActivityReportGenerated = "report_generated"
	ActivityFlagReviewed    = "flag_reviewed"
)

// RecordEvent is the analysis job published to the Redis stream
type RecordEvent struct {
	RecordID       string    `json:"record_id"`
	OrganizationID string    `json:"organization_id"`
	FileType       string    `json:"file_type"`
	FilePath       string    `json:"file_path"`
	Timestamp      time.Time `json:"timestamp"`
	RetryCount     int       `json:"retry_count"`
}

// JSONB is a helper type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

func (j JSONB) Value() ([]byte, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// DailyVolume is a per-day upload count used by the analytics dashboard
type DailyVolume struct {
	Day   time.Time `json:"day"`
	Count int64     `json:"count"`
}

// Pagination represents pagination parameters
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}

// PaginatedResponse wraps paginated results
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

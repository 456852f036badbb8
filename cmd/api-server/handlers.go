package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/finaudit/audit-engine/internal/analytics"
	"github.com/finaudit/audit-engine/internal/auth"
	"github.com/finaudit/audit-engine/internal/models"
	"github.com/finaudit/audit-engine/internal/records"
	"github.com/finaudit/audit-engine/internal/reports"
	"github.com/finaudit/audit-engine/internal/repositories"
	"github.com/finaudit/audit-engine/internal/services"
)

// maxUploadSize caps uploaded files at 32 MiB
const maxUploadSize = 32 << 20

// Auth handlers

func registerHandler(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := authService.Register(c.Request.Context(), &req)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, services.ErrWeakPassword) || errors.Is(err, repositories.ErrUserAlreadyExists) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, resp)
	}
}

func loginHandler(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := authService.Login(c.Request.Context(), &req)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, services.ErrInvalidCredentials) || errors.Is(err, services.ErrAccountInactive) {
				status = http.StatusUnauthorized
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func refreshTokenHandler(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(auth.AuthorizationHeader)
		if !strings.HasPrefix(header, auth.BearerPrefix) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}
		token := strings.TrimPrefix(header, auth.BearerPrefix)

		resp, err := authService.RefreshToken(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func getCurrentUserHandler(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := auth.GetUserIDFromContext(c)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		user, err := authService.GetUser(c.Request.Context(), userID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, repositories.ErrUserNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, user)
	}
}

// Record handlers

func uploadRecordHandler(recordService *records.Service, analyticsService *analytics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, userID, ok := tenantFromContext(c)
		if !ok {
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing file upload"})
			return
		}
		if fileHeader.Size > maxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds upload size limit"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		record, err := recordService.Upload(c.Request.Context(), orgID, userID, fileHeader.Filename, data)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		analyticsService.InvalidateOrganization(c.Request.Context(), orgID)

		c.JSON(http.StatusCreated, record)
	}
}

func listRecordsHandler(recordService *records.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, _, ok := tenantFromContext(c)
		if !ok {
			return
		}

		page := getIntParam(c, "page", 1)
		pageSize := getIntParam(c, "page_size", 20)

		recordList, total, err := recordService.List(c.Request.Context(), orgID, pageSize, (page-1)*pageSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"records": recordList,
			"pagination": gin.H{
				"page":      page,
				"page_size": pageSize,
				"total":     total,
			},
		})
	}
}

func getRecordHandler(recordService *records.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, _, ok := tenantFromContext(c)
		if !ok {
			return
		}

		recordID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
			return
		}

		record, err := recordService.Get(c.Request.Context(), orgID, recordID)
		if err != nil {
			c.JSON(recordErrorStatus(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, record)
	}
}

func analyzeRecordHandler(recordService *records.Service, analyticsService *analytics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, userID, ok := tenantFromContext(c)
		if !ok {
			return
		}

		recordID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
			return
		}

		result, err := recordService.Analyze(c.Request.Context(), orgID, userID, recordID)
		if err != nil {
			c.JSON(recordErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		analyticsService.InvalidateOrganization(c.Request.Context(), orgID)

		c.JSON(http.StatusOK, result)
	}
}

func resetRecordHandler(recordService *records.Service, analyticsService *analytics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, userID, ok := tenantFromContext(c)
		if !ok {
			return
		}

		recordID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
			return
		}

		record, err := recordService.Reset(c.Request.Context(), orgID, userID, recordID)
		if err != nil {
			c.JSON(recordErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		analyticsService.InvalidateOrganization(c.Request.Context(), orgID)

		c.JSON(http.StatusOK, record)
	}
}

func deleteRecordHandler(recordService *records.Service, analyticsService *analytics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, userID, ok := tenantFromContext(c)
		if !ok {
			return
		}

		recordID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
			return
		}

		if err := recordService.Delete(c.Request.Context(), orgID, userID, recordID); err != nil {
			c.JSON(recordErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		analyticsService.InvalidateOrganization(c.Request.Context(), orgID)

		c.JSON(http.StatusOK, gin.H{"message": "record deleted"})
	}
}

func updateFlagStatusHandler(recordService *records.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, userID, ok := tenantFromContext(c)
		if !ok {
			return
		}

		recordID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
			return
		}

		var req struct {
			Status string `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		results, err := recordService.UpdateFlagStatus(c.Request.Context(), orgID, userID, recordID, c.Param("flag"), req.Status)
		if err != nil {
			c.JSON(recordErrorStatus(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, results)
	}
}

func listActivitiesHandler(recordService *records.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, _, ok := tenantFromContext(c)
		if !ok {
			return
		}

		limit := getIntParam(c, "limit", 50)
		activities, err := recordService.ListActivities(c.Request.Context(), orgID, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"activities": activities})
	}
}

// Report handlers

func saveReportHandler(reportService *reports.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, userID, ok := tenantFromContext(c)
		if !ok {
			return
		}

		var req struct {
			Title           string       `json:"title" binding:"required"`
			ReportData      models.JSONB `json:"report_data" binding:"required"`
			Recommendations string       `json:"recommendations"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		report := &models.AuditReport{
			OrganizationID:  orgID,
			GeneratedBy:     userID,
			Title:           req.Title,
			ReportData:      req.ReportData,
			Recommendations: req.Recommendations,
			Status:          models.ReportStatusDraft,
		}

		if err := reportService.Save(c.Request.Context(), report); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, report)
	}
}

func listReportsHandler(reportService *reports.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, _, ok := tenantFromContext(c)
		if !ok {
			return
		}

		page := getIntParam(c, "page", 1)
		pageSize := getIntParam(c, "page_size", 20)

		reportList, err := reportService.List(c.Request.Context(), orgID, pageSize, (page-1)*pageSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"reports": reportList})
	}
}

func getReportHandler(reportService *reports.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, _, ok := tenantFromContext(c)
		if !ok {
			return
		}

		reportID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
			return
		}

		report, err := reportService.Get(c.Request.Context(), orgID, reportID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, repositories.ErrReportNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, report)
	}
}

func generateReportHandler(reportService *reports.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, userID, ok := tenantFromContext(c)
		if !ok {
			return
		}

		var req struct {
			RecordID string `json:"record_id" binding:"required"`
			Title    string `json:"title"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		recordID, err := uuid.Parse(req.RecordID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record_id"})
			return
		}

		report, err := reportService.Generate(c.Request.Context(), orgID, userID, recordID, req.Title)
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, repositories.ErrRecordNotFound):
				status = http.StatusNotFound
			case errors.Is(err, reports.ErrRecordNotCompleted):
				status = http.StatusConflict
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, report)
	}
}

func finalizeReportHandler(reportService *reports.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, _, ok := tenantFromContext(c)
		if !ok {
			return
		}

		reportID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
			return
		}

		report, err := reportService.Finalize(c.Request.Context(), orgID, reportID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, repositories.ErrReportNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, report)
	}
}

func deleteReportHandler(reportService *reports.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, _, ok := tenantFromContext(c)
		if !ok {
			return
		}

		reportID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
			return
		}

		if err := reportService.Delete(c.Request.Context(), orgID, reportID); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, repositories.ErrReportNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "report deleted"})
	}
}

// Analytics handlers

func getDashboardHandler(analyticsService *analytics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, _, ok := tenantFromContext(c)
		if !ok {
			return
		}

		dashboard, err := analyticsService.GetDashboard(c.Request.Context(), orgID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, dashboard)
	}
}

func getRiskDistributionHandler(analyticsService *analytics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, _, ok := tenantFromContext(c)
		if !ok {
			return
		}

		dist, err := analyticsService.GetRiskDistribution(c.Request.Context(), orgID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"distribution": dist})
	}
}

func getDailyUploadsHandler(analyticsService *analytics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, _, ok := tenantFromContext(c)
		if !ok {
			return
		}

		days := getIntParam(c, "days", 30)
		volumes, err := analyticsService.GetDailyUploads(c.Request.Context(), orgID, days)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"volumes": volumes})
	}
}

func getLiveFeedHandler(analyticsService *analytics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, _, ok := tenantFromContext(c)
		if !ok {
			return
		}

		limit := getIntParam(c, "limit", 20)
		feed, err := analyticsService.GetLiveFeed(c.Request.Context(), orgID, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, feed)
	}
}

func getSystemMetricsHandler(analyticsService *analytics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics, err := analyticsService.GetSystemMetrics(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, metrics)
	}
}

// Admin handlers

func createOrganizationHandler(adminService *services.AdminService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := auth.GetUserIDFromContext(c)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req services.CreateOrganizationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		org, err := adminService.CreateOrganization(c.Request.Context(), userID, &req)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, org)
	}
}

func listOrganizationsHandler(adminService *services.AdminService) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgs, err := adminService.ListOrganizations(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"organizations": orgs})
	}
}

func getOrganizationHandler(adminService *services.AdminService) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organization id"})
			return
		}

		org, err := adminService.GetOrganization(c.Request.Context(), orgID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, repositories.ErrOrganizationNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, org)
	}
}

func listUsersHandler(adminService *services.AdminService) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organization id"})
			return
		}

		users, err := adminService.ListUsers(c.Request.Context(), orgID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"users": users})
	}
}

func listAllRecordsHandler(adminService *services.AdminService) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := getIntParam(c, "page", 1)
		pageSize := getIntParam(c, "page_size", 20)

		recordList, err := adminService.ListRecords(c.Request.Context(), pageSize, (page-1)*pageSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"records": recordList,
			"pagination": gin.H{
				"page":      page,
				"page_size": pageSize,
			},
		})
	}
}

func setUserStatusHandler(adminService *services.AdminService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}

		var req struct {
			Status string `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := adminService.SetUserStatus(c.Request.Context(), userID, req.Status); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, repositories.ErrUserNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "status updated"})
	}
}

func assignUserHandler(adminService *services.AdminService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}

		var req struct {
			OrganizationID string `json:"organization_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		orgID, err := uuid.Parse(req.OrganizationID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organization_id"})
			return
		}

		if err := adminService.AssignUser(c.Request.Context(), userID, orgID); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, repositories.ErrOrganizationNotFound) || errors.Is(err, repositories.ErrUserNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "user assigned"})
	}
}

// Helpers

// tenantFromContext pulls the caller's organization and user id from the
// validated token claims. Users without an organization cannot touch
// tenant-scoped resources.
func tenantFromContext(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, exists := auth.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return uuid.Nil, uuid.Nil, false
	}

	orgID, exists := auth.GetOrganizationIDFromContext(c)
	if !exists {
		c.JSON(http.StatusForbidden, gin.H{"error": "no organization assigned"})
		return uuid.Nil, uuid.Nil, false
	}

	return orgID, userID, true
}

// recordErrorStatus maps record service errors to HTTP statuses
func recordErrorStatus(err error) int {
	switch {
	case errors.Is(err, repositories.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, repositories.ErrRecordNotPending),
		errors.Is(err, records.ErrResetNotAllowed),
		errors.Is(err, records.ErrRecordNotAnalyzed):
		return http.StatusConflict
	case errors.Is(err, records.ErrInvalidFlagID),
		errors.Is(err, records.ErrInvalidFlagStatus):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func getIntParam(c *gin.Context, key string, defaultValue int) int {
	if val := c.Query(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil && result > 0 {
			return result
		}
	}
	return defaultValue
}

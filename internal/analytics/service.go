package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/finaudit/audit-engine/internal/models"
	"github.com/finaudit/audit-engine/internal/queue"
	"github.com/finaudit/audit-engine/internal/repositories"
)

// Dashboard aggregates the organization-level audit overview
type Dashboard struct {
	RecordsByStatus  map[string]int64     `json:"records_by_status"`
	RiskDistribution map[string]int64     `json:"risk_distribution"`
	AnomalyTypes     map[string]int64     `json:"anomaly_types"`
	ActionCounts     map[string]int64     `json:"action_counts"`
	DailyUploads     []models.DailyVolume `json:"daily_uploads"`
	RecentActivity   []*models.Activity   `json:"recent_activity"`
	GeneratedAt      time.Time            `json:"generated_at"`
}

// LiveEvent is one entry from the CDC pipeline's recent-events feed
type LiveEvent struct {
	EventType      string    `json:"event_type"`
	RecordID       string    `json:"record_id"`
	OrganizationID string    `json:"organization_id"`
	FileName       string    `json:"file_name"`
	FileType       string    `json:"file_type"`
	Status         string    `json:"status"`
	PrevStatus     string    `json:"prev_status,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// LiveFeed is the near-real-time view maintained by the CDC pipeline
type LiveFeed struct {
	StatusCounts map[string]int64 `json:"status_counts"`
	Events       []LiveEvent      `json:"events"`
}

// SystemMetrics reports backing-service health numbers
type SystemMetrics struct {
	DatabaseConns int32     `json:"database_conns"`
	DatabaseIdle  int32     `json:"database_idle"`
	StreamLength  int64     `json:"stream_length"`
	StreamPending int64     `json:"stream_pending"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Service provides dashboard analytics over the audit data
type Service struct {
	recordRepo   *repositories.RecordRepository
	activityRepo *repositories.ActivityRepository
	db           *repositories.Database
	cacheClient  *queue.CacheClient
	streamClient *queue.RedisStreamClient
}

// NewService creates a new analytics service
func NewService(
	recordRepo *repositories.RecordRepository,
	activityRepo *repositories.ActivityRepository,
	db *repositories.Database,
	cacheClient *queue.CacheClient,
	streamClient *queue.RedisStreamClient,
) *Service {
	return &Service{
		recordRepo:   recordRepo,
		activityRepo: activityRepo,
		db:           db,
		cacheClient:  cacheClient,
		streamClient: streamClient,
	}
}

// GetDashboard returns the audit overview for an organization
func (s *Service) GetDashboard(ctx context.Context, orgID uuid.UUID) (*Dashboard, error) {
	// Try cache first
	cacheKey := fmt.Sprintf("dashboard:%s", orgID)
	var cached Dashboard
	if s.cacheClient != nil {
		if err := s.cacheClient.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	statusCounts, err := s.recordRepo.CountByStatus(ctx, orgID)
	if err != nil {
		return nil, err
	}

	riskDist, err := s.riskDistribution(ctx, orgID)
	if err != nil {
		return nil, err
	}

	anomalyTypes, err := s.anomalyTypeCounts(ctx, orgID)
	if err != nil {
		return nil, err
	}

	uploads, err := s.recordRepo.DailyUploadVolume(ctx, orgID, 30)
	if err != nil {
		return nil, err
	}

	actionCounts, err := s.activityRepo.CountByAction(ctx, orgID, time.Now().AddDate(0, 0, -30))
	if err != nil {
		return nil, err
	}

	activities, err := s.activityRepo.ListByOrganization(ctx, orgID, 20)
	if err != nil {
		return nil, err
	}

	dashboard := &Dashboard{
		RecordsByStatus:  statusCounts,
		RiskDistribution: riskDist,
		AnomalyTypes:     anomalyTypes,
		ActionCounts:     actionCounts,
		DailyUploads:     uploads,
		RecentActivity:   activities,
		GeneratedAt:      time.Now(),
	}

	// Cache for 1 minute
	if s.cacheClient != nil {
		if err := s.cacheClient.Set(ctx, cacheKey, dashboard, time.Minute); err != nil {
			log.Warn().Err(err).Msg("Failed to cache dashboard")
		}
	}

	return dashboard, nil
}

// GetRiskDistribution returns completed-record counts per overall risk level
func (s *Service) GetRiskDistribution(ctx context.Context, orgID uuid.UUID) (map[string]int64, error) {
	cacheKey := fmt.Sprintf("risk_distribution:%s", orgID)
	var cached map[string]int64
	if s.cacheClient != nil {
		if err := s.cacheClient.Get(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	dist, err := s.riskDistribution(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if s.cacheClient != nil {
		if err := s.cacheClient.Set(ctx, cacheKey, dist, 5*time.Minute); err != nil {
			log.Warn().Err(err).Msg("Failed to cache risk distribution")
		}
	}

	return dist, nil
}

// GetLiveFeed returns the near-real-time view the CDC pipeline maintains
// in redis: per-status counters and the most recent record events for the
// organization.
func (s *Service) GetLiveFeed(ctx context.Context, orgID uuid.UUID, limit int) (*LiveFeed, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	feed := &LiveFeed{
		StatusCounts: make(map[string]int64),
		Events:       []LiveEvent{},
	}
	if s.cacheClient == nil {
		return feed, nil
	}

	counts, err := s.cacheClient.HGetAll(ctx, "activity:status_counts:"+orgID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to read live status counts: %w", err)
	}
	for status, raw := range counts {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		feed.StatusCounts[status] = n
	}

	entries, err := s.cacheClient.LRange(ctx, "activity:recent_events", 0, 999)
	if err != nil {
		return nil, fmt.Errorf("failed to read live events: %w", err)
	}
	feed.Events = parseLiveEvents(entries, orgID, limit)

	return feed, nil
}

// parseLiveEvents decodes the cached event list, keeping only the given
// organization's events up to limit. Undecodable entries are skipped.
func parseLiveEvents(entries []string, orgID uuid.UUID, limit int) []LiveEvent {
	events := []LiveEvent{}
	for _, entry := range entries {
		if len(events) == limit {
			break
		}
		var event LiveEvent
		if err := json.Unmarshal([]byte(entry), &event); err != nil {
			continue
		}
		if event.OrganizationID != orgID.String() {
			continue
		}
		events = append(events, event)
	}
	return events
}

// InvalidateOrganization drops the cached aggregates for an organization
// so the next dashboard read reflects a just-completed mutation.
func (s *Service) InvalidateOrganization(ctx context.Context, orgID uuid.UUID) {
	if s.cacheClient == nil {
		return
	}
	keys := []string{
		fmt.Sprintf("dashboard:%s", orgID),
		fmt.Sprintf("risk_distribution:%s", orgID),
	}
	if err := s.cacheClient.Delete(ctx, keys...); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate analytics cache")
	}
}

// GetDailyUploads returns per-day upload counts for the last N days
func (s *Service) GetDailyUploads(ctx context.Context, orgID uuid.UUID, days int) ([]models.DailyVolume, error) {
	if days <= 0 || days > 365 {
		days = 30
	}
	return s.recordRepo.DailyUploadVolume(ctx, orgID, days)
}

// GetSystemMetrics returns backing-service health numbers
func (s *Service) GetSystemMetrics(ctx context.Context) (*SystemMetrics, error) {
	metrics := &SystemMetrics{CollectedAt: time.Now()}

	if stats := s.db.Stats(); stats != nil {
		metrics.DatabaseConns = stats.TotalConns()
		metrics.DatabaseIdle = stats.IdleConns()
	}

	if s.streamClient != nil {
		info, err := s.streamClient.GetStreamInfo(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to get stream info")
		} else {
			metrics.StreamLength = info.Length
			metrics.StreamPending = info.PendingCount
		}
	}

	return metrics, nil
}

// riskDistribution groups completed records by stored overall risk level
func (s *Service) riskDistribution(ctx context.Context, orgID uuid.UUID) (map[string]int64, error) {
	query := `
		SELECT analysis_results->>'overallRiskLevel', COUNT(*)
		FROM financial_records
		WHERE organization_id = $1
		  AND status = $2
		  AND analysis_results IS NOT NULL
		GROUP BY 1`

	rows, err := s.db.Pool.Query(ctx, query, orgID, models.RecordStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk distribution: %w", err)
	}
	defer rows.Close()

	dist := map[string]int64{
		models.SeverityLow:    0,
		models.SeverityMedium: 0,
		models.SeverityHigh:   0,
	}
	for rows.Next() {
		var level string
		var count int64
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("failed to scan risk distribution: %w", err)
		}
		dist[level] = count
	}

	return dist, rows.Err()
}

// anomalyTypeCounts unnests stored anomalies and counts them per type
func (s *Service) anomalyTypeCounts(ctx context.Context, orgID uuid.UUID) (map[string]int64, error) {
	query := `
		SELECT anomaly->>'type', COUNT(*)
		FROM financial_records,
		     jsonb_array_elements(analysis_results->'anomalies') AS anomaly
		WHERE organization_id = $1
		  AND status = $2
		  AND analysis_results IS NOT NULL
		GROUP BY 1`

	rows, err := s.db.Pool.Query(ctx, query, orgID, models.RecordStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomaly types: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var anomalyType string
		var count int64
		if err := rows.Scan(&anomalyType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly type count: %w", err)
		}
		counts[anomalyType] = count
	}

	return counts, rows.Err()
}

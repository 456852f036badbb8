package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/finaudit/audit-engine/internal/models"
)

// ActivityRepository handles activity feed persistence
type ActivityRepository struct {
	db *Database
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *Database) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create inserts a new activity entry
func (r *ActivityRepository) Create(ctx context.Context, activity *models.Activity) error {
	query := `
		INSERT INTO activities (id, organization_id, user_id, action, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if activity.ID == uuid.Nil {
		activity.ID = uuid.New()
	}
	activity.CreatedAt = time.Now()

	_, err := r.db.Pool.Exec(ctx, query,
		activity.ID, activity.OrganizationID, activity.UserID,
		activity.Action, activity.Details, activity.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create activity: %w", err)
	}

	return nil
}

// ListByOrganization retrieves recent activities for an organization
func (r *ActivityRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID, limit int) ([]*models.Activity, error) {
	query := `
		SELECT id, organization_id, user_id, action, details, created_at
		FROM activities
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Pool.Query(ctx, query, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var activities []*models.Activity
	for rows.Next() {
		var activity models.Activity
		if err := rows.Scan(&activity.ID, &activity.OrganizationID, &activity.UserID,
			&activity.Action, &activity.Details, &activity.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, &activity)
	}

	return activities, rows.Err()
}

// CountByAction returns activity counts grouped by action for an organization
func (r *ActivityRepository) CountByAction(ctx context.Context, orgID uuid.UUID, since time.Time) (map[string]int64, error) {
	query := `
		SELECT action, COUNT(*)
		FROM activities
		WHERE organization_id = $1 AND created_at >= $2
		GROUP BY action`

	rows, err := r.db.Pool.Query(ctx, query, orgID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count activities: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var action string
		var count int64
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("failed to scan activity count: %w", err)
		}
		counts[action] = count
	}

	return counts, rows.Err()
}

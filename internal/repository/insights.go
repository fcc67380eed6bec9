package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"wisefido-comfort/internal/models"
)

// InsightsRepository 洞察记录仓库（comfort_insights 表）
type InsightsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInsightsRepository 创建洞察仓库
func NewInsightsRepository(db *sql.DB, logger *zap.Logger) *InsightsRepository {
	return &InsightsRepository{
		db:     db,
		logger: logger,
	}
}

// CreateInsight 写入一条洞察记录
func (r *InsightsRepository) CreateInsight(ctx context.Context, insight *models.InsightRecord) error {
	if insight == nil {
		return fmt.Errorf("insight is required")
	}
	if insight.InsightID == "" {
		return fmt.Errorf("insight_id is required")
	}
	if insight.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	query := `
		INSERT INTO comfort_insights (
			insight_id,
			session_id,
			message,
			category,
			agent_ids,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err := r.db.ExecContext(ctx,
		query,
		insight.InsightID,
		insight.SessionID,
		insight.Message,
		insight.Category,
		pq.Array(insight.AgentIDs),
		insight.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create comfort insight: %w", err)
	}

	return nil
}

// ListInsights 按会话列出洞察，时间倒序
func (r *InsightsRepository) ListInsights(ctx context.Context, sessionID string, since time.Time, limit int) ([]models.InsightRecord, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT
			insight_id,
			session_id,
			message,
			category,
			agent_ids,
			created_at
		FROM comfort_insights
		WHERE session_id = $1
		  AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list comfort insights: %w", err)
	}
	defer rows.Close()

	insights := []models.InsightRecord{}
	for rows.Next() {
		var insight models.InsightRecord
		if err := rows.Scan(
			&insight.InsightID,
			&insight.SessionID,
			&insight.Message,
			&insight.Category,
			pq.Array(&insight.AgentIDs),
			&insight.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan comfort insight: %w", err)
		}
		insights = append(insights, insight)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comfort insights: %w", err)
	}

	return insights, nil
}

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

// ActionsRepository 动作历史仓库（comfort_actions 表）
//
// 每个仲裁周期实际下发的 fan/sound/wake 指令各写一条，
// payload 为指令内容的 JSONB
type ActionsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewActionsRepository 创建动作历史仓库
func NewActionsRepository(db *sql.DB, logger *zap.Logger) *ActionsRepository {
	return &ActionsRepository{
		db:     db,
		logger: logger,
	}
}

// CreateAction 写入一条动作记录
func (r *ActionsRepository) CreateAction(ctx context.Context, action *models.ActionRecord) error {
	if action == nil {
		return fmt.Errorf("action is required")
	}
	if action.ActionID == "" {
		return fmt.Errorf("action_id is required")
	}
	if action.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if action.Kind == "" {
		return fmt.Errorf("kind is required")
	}

	query := `
		INSERT INTO comfort_actions (
			action_id,
			session_id,
			kind,
			payload,
			confidence,
			agent_ids,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err := r.db.ExecContext(ctx,
		query,
		action.ActionID,
		action.SessionID,
		action.Kind,
		action.Payload,
		action.Confidence,
		pq.Array(action.AgentIDs),
		action.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create comfort action: %w", err)
	}

	return nil
}

// ListActions 按会话列出动作历史，时间倒序，可按 kind 过滤
func (r *ActionsRepository) ListActions(ctx context.Context, sessionID string, kind *string, since time.Time, limit int) ([]models.ActionRecord, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT
			action_id,
			session_id,
			kind,
			payload,
			confidence,
			agent_ids,
			created_at
		FROM comfort_actions
		WHERE session_id = $1
		  AND created_at >= $2
	`
	args := []interface{}{sessionID, since}
	argN := 3

	if kind != nil {
		query += fmt.Sprintf(" AND kind = $%d", argN)
		args = append(args, *kind)
		argN++
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argN)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list comfort actions: %w", err)
	}
	defer rows.Close()

	actions := []models.ActionRecord{}
	for rows.Next() {
		var action models.ActionRecord
		if err := rows.Scan(
			&action.ActionID,
			&action.SessionID,
			&action.Kind,
			&action.Payload,
			&action.Confidence,
			pq.Array(&action.AgentIDs),
			&action.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan comfort action: %w", err)
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comfort actions: %w", err)
	}

	return actions, nil
}

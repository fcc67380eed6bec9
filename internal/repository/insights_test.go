package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-comfort/internal/models"
)

func setupMockInsightsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *InsightsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewInsightsRepository(db, logger)

	return db, mock, repo
}

func TestCreateInsight_Success(t *testing.T) {
	db, mock, repo := setupMockInsightsDB(t)
	defer db.Close()

	ctx := context.Background()
	insight := &models.InsightRecord{
		InsightID: uuid.New().String(),
		SessionID: uuid.New().String(),
		Message:   "High ambient temperature, raising fan speed",
		Category:  "thermal",
		AgentIDs:  []string{"thermal-agent"},
		CreatedAt: time.Now(),
	}

	mock.ExpectExec(`INSERT INTO comfort_insights`).
		WithArgs(
			insight.InsightID,
			insight.SessionID,
			insight.Message,
			insight.Category,
			pq.Array(insight.AgentIDs),
			insight.CreatedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CreateInsight(ctx, insight)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInsight_MissingFields(t *testing.T) {
	db, _, repo := setupMockInsightsDB(t)
	defer db.Close()

	ctx := context.Background()

	err := repo.CreateInsight(ctx, nil)
	assert.Error(t, err)

	err = repo.CreateInsight(ctx, &models.InsightRecord{SessionID: "sess-1"})
	assert.Error(t, err, "missing insight_id")

	err = repo.CreateInsight(ctx, &models.InsightRecord{InsightID: uuid.New().String()})
	assert.Error(t, err, "missing session_id")
}

func TestListInsights_Success(t *testing.T) {
	db, mock, repo := setupMockInsightsDB(t)
	defer db.Close()

	ctx := context.Background()
	sessionID := uuid.New().String()
	insightID := uuid.New().String()
	createdAt := time.Now()
	since := createdAt.Add(-time.Hour)

	rows := sqlmock.NewRows([]string{
		"insight_id", "session_id", "message", "category", "agent_ids", "created_at",
	}).AddRow(
		insightID, sessionID, "Fetal posture detected, possible cold or stress", "posture",
		"{posture-agent}", createdAt,
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs(sessionID, since, 50).
		WillReturnRows(rows)

	insights, err := repo.ListInsights(ctx, sessionID, since, 50)

	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, insightID, insights[0].InsightID)
	assert.Equal(t, "posture", insights[0].Category)
	assert.Equal(t, []string{"posture-agent"}, insights[0].AgentIDs)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListInsights_MissingSessionID(t *testing.T) {
	db, _, repo := setupMockInsightsDB(t)
	defer db.Close()

	_, err := repo.ListInsights(context.Background(), "", time.Now(), 10)
	assert.Error(t, err)
}

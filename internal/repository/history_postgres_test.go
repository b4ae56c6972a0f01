package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"wisefido-power/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockHistory(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresHistoryLog) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewPostgresHistoryLog(db, zap.NewNop())
}

func TestPostgresHistoryLog_EnsureSchema(t *testing.T) {
	db, mock, repo := setupMockHistory(t)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS power_history`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresHistoryLog_AppendRejectsOutOfOrder(t *testing.T) {
	db, mock, repo := setupMockHistory(t)
	defer db.Close()
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO power_history`).
		WithArgs(sqlmock.AnyArg(), int64(500)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Append(ctx, models.HistoryPoint{Timestamp: time.Unix(10, 0), PowerWatts: 500}))

	// no INSERT expected for the rejected point
	err := repo.Append(ctx, models.HistoryPoint{Timestamp: time.Unix(5, 0), PowerWatts: 300})
	require.ErrorIs(t, err, ErrOutOfOrder)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresHistoryLog_AppendLosesRaceToOtherWriter(t *testing.T) {
	db, mock, repo := setupMockHistory(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO power_history`).
		WithArgs(sqlmock.AnyArg(), int64(700)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Append(context.Background(), models.HistoryPoint{Timestamp: time.Unix(20, 0), PowerWatts: 700})
	require.ErrorIs(t, err, ErrOutOfOrder)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresHistoryLog_AppendStorageFault(t *testing.T) {
	db, mock, repo := setupMockHistory(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO power_history`).
		WillReturnError(errors.New("connection reset"))

	err := repo.Append(context.Background(), models.HistoryPoint{Timestamp: time.Unix(30, 0), PowerWatts: 1})
	require.ErrorIs(t, err, ErrStorage)

	// a failed insert does not advance the order check
	mock.ExpectExec(`INSERT INTO power_history`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Append(context.Background(), models.HistoryPoint{Timestamp: time.Unix(30, 0), PowerWatts: 1}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresHistoryLog_LoadLast(t *testing.T) {
	db, mock, repo := setupMockHistory(t)
	defer db.Close()
	ctx := context.Background()

	mock.ExpectQuery(`SELECT MAX\(timestamp\) FROM power_history`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(time.Unix(100, 0)))
	require.NoError(t, repo.LoadLast(ctx))

	err := repo.Append(ctx, models.HistoryPoint{Timestamp: time.Unix(100, 0), PowerWatts: 1})
	require.ErrorIs(t, err, ErrOutOfOrder)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresHistoryLog_LoadLastEmptyTable(t *testing.T) {
	db, mock, repo := setupMockHistory(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT MAX\(timestamp\)`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))
	require.NoError(t, repo.LoadLast(context.Background()))

	mock.ExpectExec(`INSERT INTO power_history`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Append(context.Background(), models.HistoryPoint{Timestamp: time.Unix(1, 0), PowerWatts: 1}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresHistoryLog_QueryRange(t *testing.T) {
	db, mock, repo := setupMockHistory(t)
	defer db.Close()

	from, to := time.Unix(3, 0), time.Unix(6, 0)
	rows := sqlmock.NewRows([]string{"timestamp", "power_watts"}).
		AddRow(time.Unix(3, 0), int64(300)).
		AddRow(time.Unix(6, 0), int64(600))

	mock.ExpectQuery(`SELECT timestamp, power_watts FROM power_history WHERE timestamp >= \$1 AND timestamp <= \$2 ORDER BY timestamp ASC`).
		WithArgs(from.UTC(), to.UTC()).
		WillReturnRows(rows)

	series, err := repo.Query(context.Background(), models.TimeRange{From: from, To: to})
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, int64(300), series[0].PowerWatts)
	assert.Equal(t, int64(600), series[1].PowerWatts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresHistoryLog_QueryAllEmpty(t *testing.T) {
	db, mock, repo := setupMockHistory(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT timestamp, power_watts FROM power_history ORDER BY timestamp ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"timestamp", "power_watts"}))

	series, err := repo.Query(context.Background(), models.TimeRange{})
	require.NoError(t, err)
	assert.NotNil(t, series)
	assert.Empty(t, series)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresHistoryLog_QueryStorageFault(t *testing.T) {
	db, mock, repo := setupMockHistory(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT timestamp, power_watts FROM power_history`).
		WillReturnError(errors.New("db down"))

	_, err := repo.Query(context.Background(), models.TimeRange{})
	assert.ErrorIs(t, err, ErrStorage)
}

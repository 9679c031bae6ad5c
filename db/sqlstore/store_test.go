package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdkop/internal/metadata"
)

func setupTestStore(t *testing.T, driver string) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := New(db, driver)
	require.NoError(t, err)
	return store, mock
}

func TestStore_SavePostgres(t *testing.T) {
	store, mock := setupTestStore(t, DriverPostgres)

	snap := &metadata.Snapshot{
		ID:        uuid.MustParse("0b6f3e7e-6f0c-4d3c-9a57-2f1f0d8f4c11"),
		Stack:     "DemoAppStack",
		Region:    "us-east-1",
		FetchedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Records: []metadata.DeploymentRecord{
			{LogicalResourceID: "MyQueueABC123", PhysicalResourceID: "arn:...:queue"},
		},
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO stack_snapshots (id, stack, region, fetched_at, records) VALUES ($1, $2, $3, $4, $5)")).
		WithArgs(snap.ID.String(), "DemoAppStack", "us-east-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Save(context.Background(), snap))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveSQLiteUsesQuestionMarks(t *testing.T) {
	store, mock := setupTestStore(t, DriverSQLite)

	mock.ExpectExec(regexp.QuoteMeta("VALUES (?, ?, ?, ?, ?)")).
		WillReturnError(errors.New("database is locked"))

	err := store.Save(context.Background(), &metadata.Snapshot{ID: uuid.New(), Stack: "S", Region: "r"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Latest(t *testing.T) {
	store, mock := setupTestStore(t, DriverClickHouse)

	id := uuid.New()
	fetched := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "fetched_at", "records"}).
		AddRow(id.String(), fetched, `[{"LogicalResourceId":"MyQueueABC123","PhysicalResourceId":"arn:...:queue","Timestamp":"0001-01-01T00:00:00Z"}]`)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, fetched_at, records FROM stack_snapshots WHERE stack = ? AND region = ?")).
		WithArgs("DemoAppStack", "us-east-1").
		WillReturnRows(rows)

	snap, err := store.Latest(context.Background(), "DemoAppStack", "us-east-1")
	require.NoError(t, err)
	assert.Equal(t, id, snap.ID)
	assert.Equal(t, fetched, snap.FetchedAt)
	assert.Equal(t, "DemoAppStack", snap.Stack)
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "arn:...:queue", snap.Records[0].PhysicalResourceID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LatestNotFound(t *testing.T) {
	store, mock := setupTestStore(t, DriverPostgres)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE stack = $1 AND region = $2")).
		WithArgs("DemoAppStack", "us-east-1").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Latest(context.Background(), "DemoAppStack", "us-east-1")
	assert.ErrorIs(t, err, metadata.ErrSnapshotNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LatestCorruptRow(t *testing.T) {
	store, mock := setupTestStore(t, DriverSQLite)

	rows := sqlmock.NewRows([]string{"id", "fetched_at", "records"}).
		AddRow(uuid.New().String(), time.Now(), `{not json`)
	mock.ExpectQuery("SELECT id, fetched_at, records").WillReturnRows(rows)

	_, err := store.Latest(context.Background(), "S", "r")
	require.Error(t, err)
	assert.NotErrorIs(t, err, metadata.ErrSnapshotNotFound)
}

func TestStore_Migrate(t *testing.T) {
	store, mock := setupTestStore(t, DriverClickHouse)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS stack_snapshots")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_Schemes(t *testing.T) {
	_, err := Open("mysql://localhost/db")
	assert.Error(t, err)

	_, err = Open("no-scheme")
	assert.Error(t, err)

	store, err := Open("sqlite3://" + t.TempDir() + "/cache.db")
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, store.dialect.driver)
	require.NoError(t, store.Close())

	_, err = New(nil, "oracle")
	assert.Error(t, err)
}

func TestStore_SQLiteRoundTrip(t *testing.T) {
	store, err := Open("sqlite3://" + t.TempDir() + "/cache.db")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	_, err = store.Latest(ctx, "DemoAppStack", "us-east-1")
	require.ErrorIs(t, err, metadata.ErrSnapshotNotFound)

	older := &metadata.Snapshot{ID: uuid.New(), Stack: "DemoAppStack", Region: "us-east-1",
		FetchedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Records:   []metadata.DeploymentRecord{{LogicalResourceID: "Q", PhysicalResourceID: "old"}}}
	newer := &metadata.Snapshot{ID: uuid.New(), Stack: "DemoAppStack", Region: "us-east-1",
		FetchedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Records:   []metadata.DeploymentRecord{{LogicalResourceID: "Q", PhysicalResourceID: "new"}}}
	require.NoError(t, store.Save(ctx, older))
	require.NoError(t, store.Save(ctx, newer))

	snap, err := store.Latest(ctx, "DemoAppStack", "us-east-1")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, snap.ID)
	assert.Equal(t, "new", snap.Records[0].PhysicalResourceID)
}

package data

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/parlorchat/parlor/internal/domain/auth"
)

func newMockDocumentRepo(t *testing.T) (*DocumentRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &DocumentRepo{DB: db, Clock: NewFixedTimeProvider(fixedNow)}, mock
}

func TestDocumentRepo_Get(t *testing.T) {
	repo, mock := newMockDocumentRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT body FROM documents`)).
		WithArgs("users", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).
			AddRow([]byte(`{"userId":"u1","username":"alice","profileUrl":"ref"}`)))

	var p domainauth.Profile
	found, err := repo.Get(context.Background(), "users", "u1", &p)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, domainauth.Profile{UserID: "u1", Username: "alice", ProfileURL: "ref"}, p)
}

func TestDocumentRepo_GetMissing(t *testing.T) {
	repo, mock := newMockDocumentRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT body FROM documents`)).WillReturnError(sql.ErrNoRows)

	var p domainauth.Profile
	found, err := repo.Get(context.Background(), "users", "u1", &p)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDocumentRepo_GetCorrupt(t *testing.T) {
	repo, mock := newMockDocumentRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT body FROM documents`)).
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow([]byte(`{not json`)))

	var p domainauth.Profile
	found, err := repo.Get(context.Background(), "users", "u1", &p)
	require.Error(t, err)
	assert.True(t, found)
	assert.Contains(t, err.Error(), "unmarshal document users/u1")
}

func TestDocumentRepo_SetUpserts(t *testing.T) {
	repo, mock := newMockDocumentRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (collection, key) DO UPDATE`)).
		WithArgs("users", "u1", []byte(`{"userId":"u1","username":"bob","profileUrl":""}`), fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Set(context.Background(), "users", "u1", domainauth.Profile{UserID: "u1", Username: "bob"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepo_SetFailureWrapsCause(t *testing.T) {
	repo, mock := newMockDocumentRepo(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO documents`)).WillReturnError(assert.AnError)

	err := repo.Set(context.Background(), "users", "u1", map[string]string{"a": "b"})
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "set document users/u1")
}

func TestDocumentRepo_Delete(t *testing.T) {
	repo, mock := newMockDocumentRepo(t)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM documents`)).
		WithArgs("users", "u1").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), "users", "u1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepo_RequiresKeys(t *testing.T) {
	repo, _ := newMockDocumentRepo(t)
	ctx := context.Background()

	_, err := repo.Get(ctx, "", "u1", &domainauth.Profile{})
	require.ErrorIs(t, err, ErrDocumentKeyRequired)
	require.ErrorIs(t, repo.Set(ctx, "users", "", 1), ErrDocumentKeyRequired)
	require.ErrorIs(t, repo.Delete(ctx, "", ""), ErrDocumentKeyRequired)
}

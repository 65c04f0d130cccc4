package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(sqlx.NewDb(db, "postgres")), mock
}

func TestPostgresGetSession(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectQuery(regexp.QuoteMeta(qSelectSession)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"session_string"}).AddRow("sealed"))
	mock.ExpectQuery(regexp.QuoteMeta(qSelectSession)).
		WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"session_string"}))
	mock.ExpectQuery(regexp.QuoteMeta(qSelectSession)).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"session_string"}).AddRow(nil))

	if v, ok, err := p.GetSession(context.Background(), 7); err != nil || !ok || v != "sealed" {
		t.Fatalf("get = %q %v %v", v, ok, err)
	}
	if _, ok, err := p.GetSession(context.Background(), 8); err != nil || ok {
		t.Fatalf("missing row: ok=%v err=%v", ok, err)
	}
	if _, ok, err := p.GetSession(context.Background(), 9); err != nil || ok {
		t.Fatalf("null column: ok=%v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresSaveBotToken(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectExec(regexp.QuoteMeta(qUpsertToken)).
		WithArgs(int64(7), "123:abc").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := p.SaveBotToken(context.Background(), 7, "123:abc"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRemoveSessionPrunesEmptyRow(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(qClearSession)).WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(qPrune)).WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := p.RemoveSession(context.Background(), 7); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

package items

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type boolRow struct{ v bool }

func (r boolRow) Scan(dest ...any) error {
	*(dest[0].(*bool)) = r.v
	return nil
}

type stubDB struct {
	execArgs []any
	execErr  error
	row      pgx.Row
}

func (s *stubDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	s.execArgs = args
	return pgconn.NewCommandTag("INSERT 0 1"), s.execErr
}

func (s *stubDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not used")
}

func (s *stubDB) QueryRow(context.Context, string, ...any) pgx.Row { return s.row }

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

func TestPGStoreCreate(t *testing.T) {
	db := &stubDB{}
	frame := 180
	err := NewPGStore(db).Create(context.Background(), Item{
		Code: "X_SH-Yes", Name: "X_SH-Yes", FrameSize: &frame, StockUOM: "Nos",
		ValuationRate: decimal.RequireFromString("12.50"), NonStandard: true,
	})
	require.NoError(t, err)
	require.Equal(t, "X_SH-Yes", db.execArgs[0])
	require.Equal(t, pgtype.Int4{Int32: 180, Valid: true}, db.execArgs[4])
	require.Equal(t, "12.5", db.execArgs[8])
}

func TestPGStoreCreateDuplicate(t *testing.T) {
	db := &stubDB{execErr: &pgconn.PgError{Code: "23505"}}
	err := NewPGStore(db).Create(context.Background(), Item{Code: "X"})
	require.ErrorIs(t, err, ErrExists)
}

func TestPGStoreExists(t *testing.T) {
	ok, err := NewPGStore(&stubDB{row: boolRow{v: true}}).Exists(context.Background(), "X")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPGStoreGetMissing(t *testing.T) {
	_, err := NewPGStore(&stubDB{row: errRow{err: pgx.ErrNoRows}}).Get(context.Background(), "X")
	require.ErrorIs(t, err, ErrNotFound)
}

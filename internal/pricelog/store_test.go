package pricelog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeRows struct {
	data [][]any
	pos  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.data[r.pos-1], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *time.Time:
			*p = row[i].(time.Time)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

type stubDB struct {
	execArgs  []any
	queryArgs []any
	rows      *fakeRows
	execErr   error
}

func (s *stubDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	s.execArgs = args
	return pgconn.NewCommandTag("INSERT 0 1"), s.execErr
}

func (s *stubDB) Query(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
	s.queryArgs = args
	return s.rows, nil
}

func (s *stubDB) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	db := &stubDB{}
	store := &PGStore{DB: db, Now: func() time.Time { return now }, NewID: func() string { return "01J0000000000000000000000A" }}

	e, err := store.Append(context.Background(), Entry{
		CreationID:     "0b0f6c8e-5a8c-4f7e-9f59-1f1f1f1f1f1f",
		ItemCode:       "M_VF-460V",
		DiscountStage:  "Absolute Amount",
		ValuationPrice: decimal.RequireFromString("1600"),
		FinalPrice:     decimal.RequireFromString("1440"),
		DiscountAmount: decimal.RequireFromString("160"),
	})
	require.NoError(t, err)
	require.Equal(t, "01J0000000000000000000000A", e.ID)
	require.Equal(t, now, e.CreatedAt)
	require.Equal(t, "1600", db.execArgs[8])
	require.Equal(t, "1440", db.execArgs[9])
}

func TestAppendRequiresCreation(t *testing.T) {
	_, err := NewPGStore(&stubDB{}).Append(context.Background(), Entry{})
	require.Error(t, err)
}

func TestAppendDefaultIDIsULID(t *testing.T) {
	store := NewPGStore(&stubDB{})
	a, err := store.Append(context.Background(), Entry{CreationID: "c"})
	require.NoError(t, err)
	require.Len(t, a.ID, 26)
}

func TestAppendFailureSurfaces(t *testing.T) {
	boom := errors.New("insert failed")
	_, err := NewPGStore(&stubDB{execErr: boom}).Append(context.Background(), Entry{CreationID: "c"})
	require.ErrorIs(t, err, boom)
}

func TestListScansDecimals(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	db := &stubDB{rows: &fakeRows{data: [][]any{
		{"02", "c", "M", "Quotation", "QTN-1", "Percentage Values", "10.00", "110.00", "1600.00", "1490.00", "sales@x", at},
		{"01", "c", "M", "", "", "", "0.00", "0.00", "1600.00", "1600.00", "", at},
	}}}

	entries, err := NewPGStore(db).List(context.Background(), "c", 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, []any{"c", 50, 0}, db.queryArgs)
	require.True(t, entries[0].FinalPrice.Equal(decimal.RequireFromString("1490")))
	require.Equal(t, "Quotation: QTN-1", entries[0].Reference())
	require.Equal(t, DirectCreation, entries[1].Reference())
	require.Equal(t, "System", entries[1].Creator())
}

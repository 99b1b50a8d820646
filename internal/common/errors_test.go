package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppErrorKinds(t *testing.T) {
	wrapped := fmt.Errorf("create: %w", Conflict("item already exists"))
	require.ErrorIs(t, wrapped, ErrConflict)
	require.NotErrorIs(t, wrapped, ErrValidation)

	cause := errors.New("dial tcp: refused")
	err := Transport("load price", cause)
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, cause)
	require.Equal(t, "load price: dial tcp: refused", err.Error())
}

func TestWriteErrorAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, Validation("please select at least one parameter", map[string]string{"field": "parameters"}))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body struct {
		Error ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, CodeValidation, body.Error.Code)
	require.Equal(t, "please select at least one parameter", body.Error.Message)
}

func TestWriteErrorHidesUnknownErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("secret detail"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "secret detail")
}

func TestParsePagination(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x?page=3&limit=500", nil)
	p := ParsePagination(req, 20)
	require.Equal(t, 3, p.Page)
	require.Equal(t, MaxPerPage, p.PerPage)
	require.Equal(t, 2*MaxPerPage, p.Offset())

	p = ParsePagination(httptest.NewRequest(http.MethodGet, "/x", nil), 20)
	require.Equal(t, Pagination{Page: 1, PerPage: 20}, p)
	require.Zero(t, p.Offset())
}

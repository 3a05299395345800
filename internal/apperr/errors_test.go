package apperr

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestFromDatabase(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unique", &pgconn.PgError{Code: "23505"}, http.StatusConflict, CodeDuplicate},
		{"foreign key", &pgconn.PgError{Code: "23503"}, http.StatusBadRequest, CodeInvalidReference},
		{"check", &pgconn.PgError{Code: "23514"}, http.StatusBadRequest, CodeInvalidData},
		{"wrapped unique", fmt.Errorf("insert booking: %w", &pgconn.PgError{Code: "23505"}), http.StatusConflict, CodeDuplicate},
		{"no rows", fmt.Errorf("get driveway: %w", pgx.ErrNoRows), http.StatusNotFound, CodeNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := FromDatabase(tc.err)
			require.NotNil(t, mapped)
			require.Equal(t, tc.status, mapped.Status)
			require.Equal(t, tc.code, mapped.Code)
		})
	}

	require.Nil(t, FromDatabase(&pgconn.PgError{Code: "42P01"}))
	require.Nil(t, FromDatabase(fmt.Errorf("boom")))
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("create booking: %w", Conflict(CodeBookingConflict, "taken"))
	require.True(t, IsCode(err, CodeBookingConflict))
	require.False(t, IsCode(err, CodeVehicleTooLarge))
	require.False(t, IsCode(fmt.Errorf("plain"), CodeBookingConflict))
}

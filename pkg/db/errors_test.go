package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_payment_intents_checkout_request_id"}

	cases := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "pgx matching constraint", err: fmt.Errorf("update: %w", pgErr), constraint: "ux_payment_intents_checkout_request_id", want: true},
		{name: "pgx other constraint", err: pgErr, constraint: "users_pkey", want: false},
		{name: "pgx any constraint", err: pgErr, want: true},
		{name: "pgx other code", err: &pgconn.PgError{Code: "23503"}, want: false},
		{name: "sqlite", err: errors.New("UNIQUE constraint failed: payment_intents.checkout_request_id"), constraint: "ux_payment_intents_checkout_request_id", want: true},
		{name: "message fallback", err: errors.New(`duplicate key value violates unique constraint "x"`), want: true},
		{name: "unrelated", err: errors.New("connection refused"), want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, IsUniqueViolation(tc.err, tc.constraint))
		})
	}
}

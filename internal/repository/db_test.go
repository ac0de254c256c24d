package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsContended(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"Lock not available", &pgconn.PgError{Code: "55P03"}, true},
		{"Serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"Deadlock detected", &pgconn.PgError{Code: "40P01"}, true},
		{"Unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"Check violation", &pgconn.PgError{Code: "23514"}, false},
		{"Wrapped lock error", fmt.Errorf("reserve stock: %w", &pgconn.PgError{Code: "55P03"}), true},
		{"Plain error", errors.New("connection reset"), false},
		{"Nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsContended(tt.err))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	openRefund := &pgconn.PgError{Code: "23505", ConstraintName: "uq_refunds_open"}

	assert.True(t, isUniqueViolation(openRefund, "uq_refunds_open"))
	assert.True(t, isUniqueViolation(openRefund, ""))
	assert.True(t, isUniqueViolation(fmt.Errorf("create refund: %w", openRefund), "uq_refunds_open"))

	assert.False(t, isUniqueViolation(openRefund, "coupons_code_key"))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "55P03"}, ""))
	assert.False(t, isUniqueViolation(errors.New("boom"), ""))
	assert.False(t, isUniqueViolation(nil, ""))
}

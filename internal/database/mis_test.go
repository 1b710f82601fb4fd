package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRebind(t *testing.T) {
	q := "UPDATE payment SET QuickBk_Status = ? WHERE id = ? AND QuickBk_Status <> ?"

	assert.Equal(t, q, Rebind("mysql", q))
	assert.Equal(t,
		"UPDATE payment SET QuickBk_Status = $1 WHERE id = $2 AND QuickBk_Status <> $3",
		Rebind("postgres", q))
}

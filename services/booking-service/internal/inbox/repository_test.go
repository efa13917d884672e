package inbox

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execFunc func() error

func (f execFunc) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("INSERT 0 1"), f()
}

func TestRecord(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	ok, err := repo.Record(ctx, execFunc(func() error { return nil }), "evt-1", "identity.customer.updated.v1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Record(ctx, execFunc(func() error { return &pgconn.PgError{Code: "23505"} }), "evt-1", "identity.customer.updated.v1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.Record(ctx, execFunc(func() error { return errors.New("broken pipe") }), "evt-2", "x")
	assert.ErrorContains(t, err, "broken pipe")
}

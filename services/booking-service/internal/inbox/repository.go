package inbox

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/bookingengine/libs/db"
)

type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Record claims eventID. It reports false when the event was already
// processed.
func (r *Repository) Record(ctx context.Context, q Execer, eventID string, eventType string) (bool, error) {
	_, err := q.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if db.PgCode(err) == db.CodeUniqueViolation {
		return false, nil
	}
	return false, errors.Wrap(err, "record inbox event")
}

package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"rollcall/internal/types"
)

// SubscriberRepo reads subscriber identity from the attendance data model.
// It is the external user collaborator the Connection Registry resolves
// against and the source for scheduled job payloads.
type SubscriberRepo struct {
	db DBTX
}

// NewSubscriberRepo creates a SubscriberRepo using the given connection.
func NewSubscriberRepo(db DBTX) *SubscriberRepo {
	return &SubscriberRepo{db: db}
}

// Resolve returns the subscriber with the given id, or a
// not_found_subscriber AppError when the id does not name an active
// subscriber.
func (r *SubscriberRepo) Resolve(ctx context.Context, subscriberID string) (types.Subscriber, error) {
	row := r.db.QueryRow(ctx, `
SELECT id, full_name, class_id
FROM subscribers
WHERE id = $1 AND status = 'active'`, subscriberID)

	var sub types.Subscriber
	if err := row.Scan(&sub.ID, &sub.Name, &sub.GroupID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Subscriber{}, types.NewAppError(types.ErrCodeNotFoundSubscriber,
				fmt.Sprintf("subscriber %s not found", subscriberID), err)
		}
		return types.Subscriber{}, types.NewAppError(types.ErrCodeInternalDB,
			"resolving subscriber", err)
	}
	return sub, nil
}

// ListActiveIDs returns the ids of all active subscribers. Used for job
// payload construction (e.g., the attendance reminder fan-out).
func (r *SubscriberRepo) ListActiveIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `
SELECT id FROM subscribers WHERE status = 'active' ORDER BY id`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "listing active subscribers", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "scanning subscriber id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "iterating subscribers", err)
	}
	return ids, nil
}

// ListGroupIDs returns the distinct group (class) ids that currently have
// active subscribers. Scheduled broadcast jobs iterate these.
func (r *SubscriberRepo) ListGroupIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `
SELECT DISTINCT class_id FROM subscribers WHERE status = 'active' ORDER BY class_id`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "listing groups", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "scanning group id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "iterating groups", err)
	}
	return ids, nil
}

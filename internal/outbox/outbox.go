package outbox

import (
	"context"
	"encoding/json"

	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
)

type Record struct {
	ID      int64
	EventID string
	Topic   string
	Key     string
	Payload []byte
}

// Insert appends an event. Pass the transaction that carries the state
// change so the event commits (or rolls back) with it.
func Insert(ctx context.Context, q postgres.Querier, eventID, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `INSERT INTO outbox(event_id, topic, key, payload) VALUES ($1, $2, $3, $4)`, eventID, topic, key, data)
	return err
}

// FetchPending locks up to limit unsent rows. SKIP LOCKED lets several relays
// share the table without publishing the same row twice concurrently.
func FetchPending(ctx context.Context, q postgres.Querier, limit int) ([]Record, error) {
	rows, err := q.Query(ctx, `SELECT id, event_id, topic, key, payload FROM outbox
		WHERE sent_at IS NULL ORDER BY id LIMIT $1 FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &rec.Payload); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func MarkSent(ctx context.Context, q postgres.Querier, id int64) error {
	_, err := q.Exec(ctx, `UPDATE outbox SET sent_at=now() WHERE id=$1`, id)
	return err
}

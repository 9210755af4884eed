package store

import (
	"fmt"

	"github.com/google/uuid"
)

// AppendMessage appends one message to a lead's log. The sequence number comes
// from the insert itself and breaks ties between equal occurred_at values. The
// parent lead's updated_at is set to the message's origin timestamp, not the
// wall clock, so activity ordering matches origin ordering. An outbound
// message is an operator reply: it bumps reply_count and marks the lead
// replied.
func (db *DB) AppendMessage(leadID, direction, body, deliveryStatus string, occurredAt int64) (*Message, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	m := &Message{
		ID:             uuid.NewString(),
		LeadID:         leadID,
		Direction:      direction,
		Body:           body,
		DeliveryStatus: deliveryStatus,
		OccurredAt:     occurredAt,
	}

	res, err := tx.Exec(`
		INSERT INTO messages (id, lead_id, direction, body, delivery_status, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.LeadID, m.Direction, m.Body, m.DeliveryStatus, m.OccurredAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	m.Seq, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message seq: %w", err)
	}

	if direction == DirectionOutbound {
		_, err = tx.Exec(`
			UPDATE leads SET updated_at = ?, reply_count = reply_count + 1, status = ?
			WHERE id = ?`, occurredAt, StatusReplied, leadID)
	} else {
		_, err = tx.Exec(`UPDATE leads SET updated_at = ? WHERE id = ?`, occurredAt, leadID)
	}
	if err != nil {
		return nil, fmt.Errorf("touch lead: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return m, nil
}

// ListMessages returns a lead's messages ascending by (occurred_at, seq).
func (db *DB) ListMessages(leadID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Query(`
		SELECT seq, id, lead_id, direction, body, delivery_status, occurred_at
		FROM messages
		WHERE lead_id = ?
		ORDER BY occurred_at, seq
		LIMIT ?`, leadID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Seq, &m.ID, &m.LeadID, &m.Direction, &m.Body, &m.DeliveryStatus, &m.OccurredAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

package store

import (
	"fmt"
	"time"
)

// pickPrimary chooses which candidate survives a merge: an explicitly
// preferred id wins, else the first candidate that already carries a display
// name or avatar, else the first candidate. Candidates are expected in
// (created_at, id) order so the choice is deterministic.
func pickPrimary(cands []Lead, preferredID string) *Lead {
	if preferredID != "" {
		for i := range cands {
			if cands[i].ID == preferredID {
				return &cands[i]
			}
		}
	}
	for i := range cands {
		if cands[i].DisplayName != "" || cands[i].AvatarRef != "" {
			return &cands[i]
		}
	}
	return &cands[0]
}

// MergeLeads consolidates multiple lead records that refer to the same real
// contact into one. Every loser's messages are reassigned to the primary,
// reply counts are summed, empty display name/avatar/address slots on the
// primary are filled from the losers, and the losers are deleted — all in one
// transaction so concurrent ingestion for the contact never observes a
// half-merged state. Rows are re-read inside the transaction; caller-held
// snapshots may be stale. Merging a single-element set is a no-op.
func (db *DB) MergeLeads(ids []string, preferredID string) (*Lead, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("merge: no candidates")
	}
	if len(ids) == 1 {
		return db.GetLead(ids[0])
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var cands []Lead
	for _, id := range ids {
		l, err := scanLead(tx.QueryRow(`SELECT `+leadColumns+` FROM leads WHERE id = ?`, id))
		if err != nil {
			return nil, fmt.Errorf("load candidate %q: %w", id, err)
		}
		if l == nil {
			// Already merged away by an earlier pass.
			continue
		}
		cands = append(cands, *l)
	}
	if len(cands) == 0 {
		return nil, fmt.Errorf("merge: no candidates remain")
	}

	primary := pickPrimary(cands, preferredID)

	name := primary.DisplayName
	avatar := primary.AvatarRef
	address := primary.Address
	replies := primary.ReplyCount
	for i := range cands {
		c := &cands[i]
		if c.ID == primary.ID {
			continue
		}
		replies += c.ReplyCount
		if name == "" {
			name = c.DisplayName
		}
		if avatar == "" {
			avatar = c.AvatarRef
		}
		if address == "" {
			address = c.Address
		}
	}
	status := primary.Status
	if status == StatusPending && replies > 0 {
		status = StatusReplied
	}

	now := time.Now().UnixMilli()
	for i := range cands {
		c := &cands[i]
		if c.ID == primary.ID {
			continue
		}
		if _, err := tx.Exec(`UPDATE messages SET lead_id = ? WHERE lead_id = ?`, primary.ID, c.ID); err != nil {
			return nil, fmt.Errorf("reassign messages from %q: %w", c.ID, err)
		}
		if _, err := tx.Exec(`DELETE FROM leads WHERE id = ?`, c.ID); err != nil {
			return nil, fmt.Errorf("delete merged lead %q: %w", c.ID, err)
		}
	}

	if _, err := tx.Exec(`
		UPDATE leads SET display_name = ?, avatar_ref = ?, address = ?, reply_count = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		name, avatar, address, replies, status, now, primary.ID); err != nil {
		return nil, fmt.Errorf("update primary %q: %w", primary.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit merge: %w", err)
	}
	return db.GetLead(primary.ID)
}

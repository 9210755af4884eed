package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// ErrLeadNotFound is returned when an operation references a lead id that no
// longer exists, typically because a merge folded it into another lead.
var ErrLeadNotFound = errors.New("lead not found")

const leadColumns = `id, phone, address, display_name, avatar_ref, reply_count, status, created_at, updated_at`

func scanLead(row interface{ Scan(...any) error }) (*Lead, error) {
	var l Lead
	err := row.Scan(&l.ID, &l.Phone, &l.Address, &l.DisplayName, &l.AvatarRef,
		&l.ReplyCount, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// GetLead returns a lead by id, or nil if it does not exist.
func (db *DB) GetLead(id string) (*Lead, error) {
	return scanLead(db.QueryRow(`SELECT `+leadColumns+` FROM leads WHERE id = ?`, id))
}

// FindLeadByPhone returns the lead stored under the exact canonical phone.
func (db *DB) FindLeadByPhone(phone string) (*Lead, error) {
	return scanLead(db.QueryRow(`SELECT `+leadColumns+` FROM leads WHERE phone = ?`, phone))
}

// FindLeadByAddress returns the lead stored under the exact canonical address.
func (db *DB) FindLeadByAddress(address string) (*Lead, error) {
	if address == "" {
		return nil, nil
	}
	return scanLead(db.QueryRow(`SELECT `+leadColumns+` FROM leads WHERE address = ?`, address))
}

// FindCandidates returns every lead whose stored phone or address overlaps the
// incoming identifiers, by exact match or suffix containment. Phone matching is
// lenient because carriers and clients include or omit country codes, so a
// stored number may be a suffix of the incoming one or vice versa. Results are
// ordered by creation for deterministic merge behavior.
func (db *DB) FindCandidates(phone, address string) ([]Lead, error) {
	rows, err := db.Query(`
		SELECT `+leadColumns+` FROM leads
		WHERE phone = ?1
		   OR (?2 != '' AND address = ?2)
		   OR phone LIKE '%' || ?1
		   OR ?1 LIKE '%' || phone
		ORDER BY created_at, id`, phone, address)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var leads []Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	return leads, rows.Err()
}

// applyLeadUpdate merges incoming fields into a stored lead. Non-empty
// incoming fields fill only empty stored slots, except display name and avatar
// which are last-write-wins since contact metadata legitimately changes. When
// the incoming event carries a protocol address and the stored lead has none,
// the address's phone part becomes the canonical phone so the two stay
// consistent.
func (db *DB) applyLeadUpdate(l *Lead, u LeadUpsert, now int64) (*Lead, error) {
	phone := l.Phone
	address := l.Address
	if u.Address != "" && address == "" {
		address = u.Address
		if u.Phone != "" {
			phone = u.Phone
		}
	}
	name := l.DisplayName
	if u.DisplayName != "" {
		name = u.DisplayName
	}
	avatar := l.AvatarRef
	if u.AvatarRef != "" {
		avatar = u.AvatarRef
	}

	_, err := db.Exec(`
		UPDATE leads SET phone = ?, address = ?, display_name = ?, avatar_ref = ?, updated_at = ?
		WHERE id = ?`,
		phone, address, name, avatar, now, l.ID)
	if err != nil {
		return nil, fmt.Errorf("update lead %q: %w", l.ID, err)
	}
	return db.GetLead(l.ID)
}

// CreateOrUpdateLead finds a lead by phone, then by address, merging incoming
// fields into whichever matches; if neither matches it inserts a new lead with
// a fresh id. A UNIQUE(phone) conflict on the insert means a concurrent event
// for the same brand-new contact won the create race, so the insert is retried
// as an update.
func (db *DB) CreateOrUpdateLead(u LeadUpsert) (*Lead, error) {
	now := time.Now().UnixMilli()

	if l, err := db.FindLeadByPhone(u.Phone); err != nil {
		return nil, err
	} else if l != nil {
		return db.applyLeadUpdate(l, u, now)
	}

	if l, err := db.FindLeadByAddress(u.Address); err != nil {
		return nil, err
	} else if l != nil {
		return db.applyLeadUpdate(l, u, now)
	}

	id := uuid.NewString()
	_, err := db.Exec(`
		INSERT INTO leads (id, phone, address, display_name, avatar_ref, reply_count, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		id, u.Phone, u.Address, u.DisplayName, u.AvatarRef, StatusPending, now, now)
	if err != nil {
		var sqlErr sqlite3.Error
		if errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			if l, ferr := db.FindLeadByPhone(u.Phone); ferr == nil && l != nil {
				return db.applyLeadUpdate(l, u, now)
			}
		}
		return nil, fmt.Errorf("insert lead: %w", err)
	}
	return db.GetLead(id)
}

// ResolveLead is the ingestion entry point for find-or-create: it gathers all
// candidate leads for the incoming identifiers, consolidates them if more than
// one record refers to the same contact, and merges the incoming fields into
// the survivor. The second return value lists the ids of leads absorbed by a
// consolidation, so callers can invalidate per-lead state keyed on them.
func (db *DB) ResolveLead(u LeadUpsert) (*Lead, []string, error) {
	cands, err := db.FindCandidates(u.Phone, u.Address)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UnixMilli()
	switch len(cands) {
	case 0:
		lead, err := db.CreateOrUpdateLead(u)
		return lead, nil, err
	case 1:
		lead, err := db.applyLeadUpdate(&cands[0], u, now)
		return lead, nil, err
	default:
		ids := make([]string, len(cands))
		for i := range cands {
			ids[i] = cands[i].ID
		}
		primary, err := db.MergeLeads(ids, "")
		if err != nil {
			return nil, nil, err
		}
		absorbed := make([]string, 0, len(ids)-1)
		for _, id := range ids {
			if id != primary.ID {
				absorbed = append(absorbed, id)
			}
		}
		lead, err := db.applyLeadUpdate(primary, u, now)
		return lead, absorbed, err
	}
}

// ListLeads returns leads ordered by most recent activity.
func (db *DB) ListLeads(limit, offset int) ([]Lead, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT `+leadColumns+` FROM leads
		ORDER BY updated_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var leads []Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	return leads, rows.Err()
}

// SetLeadStatus updates a lead's triage status.
func (db *DB) SetLeadStatus(id, status string) error {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`UPDATE leads SET status = ?, updated_at = ? WHERE id = ?`, status, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("lead %q not found", id)
	}
	return nil
}

// DeleteLead removes a lead and all of its messages.
func (db *DB) DeleteLead(id string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Explicit message delete so the FTS triggers fire; the FK cascade alone
	// would leave stale index rows behind.
	if _, err := tx.Exec(`DELETE FROM messages WHERE lead_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM leads WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	return tx.Commit()
}

// LeadCount returns the total number of leads.
func (db *DB) LeadCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM leads`).Scan(&count)
	return count, err
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

package store

// initSearch provisions the full-text index. mattn/go-sqlite3 compiles the
// FTS5 module in only under the sqlite_fts5 build tag, so the index is
// created by a runtime capability check rather than by migration: if the
// CREATE fails, the linked SQLite lacks FTS5 and SearchMessages falls back
// to a substring scan. The rebuild step reconciles rows written while the
// index was absent.
func (db *DB) initSearch() error {
	_, err := db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(body, content='messages', content_rowid='seq')`)
	if err != nil {
		db.ftsEnabled = false
		return nil
	}

	stmts := []string{
		`CREATE TRIGGER IF NOT EXISTS messages_fts_insert AFTER INSERT ON messages BEGIN
			INSERT INTO messages_fts(rowid, body) VALUES (new.seq, new.body);
		END`,
		`CREATE TRIGGER IF NOT EXISTS messages_fts_delete AFTER DELETE ON messages BEGIN
			INSERT INTO messages_fts(messages_fts, rowid, body) VALUES ('delete', old.seq, old.body);
		END`,
		`CREATE TRIGGER IF NOT EXISTS messages_fts_update AFTER UPDATE ON messages BEGIN
			INSERT INTO messages_fts(messages_fts, rowid, body) VALUES ('delete', old.seq, old.body);
			INSERT INTO messages_fts(rowid, body) VALUES (new.seq, new.body);
		END`,
		`INSERT INTO messages_fts(messages_fts) VALUES ('rebuild')`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	db.ftsEnabled = true
	return nil
}

// SearchAvailable reports whether full-text search is backed by FTS5.
func (db *DB) SearchAvailable() bool {
	return db.ftsEnabled
}

// SearchMessages performs a full-text search on message bodies. Without FTS5
// it degrades to a case-insensitive substring match with the whole body as
// the snippet.
func (db *DB) SearchMessages(query string, leadID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	if db.ftsEnabled {
		return db.searchFTS(query, leadID, limit)
	}
	return db.searchLike(query, leadID, limit)
}

func (db *DB) searchFTS(query, leadID string, limit int) ([]SearchResult, error) {
	q := `
		SELECT m.seq, m.id, m.lead_id, m.direction, m.body, m.delivery_status, m.occurred_at,
		       snippet(messages_fts, 0, '<<', '>>', '...', 32)
		FROM messages_fts f
		JOIN messages m ON m.seq = f.rowid
		WHERE messages_fts MATCH ?`

	args := []any{query}
	if leadID != "" {
		q += " AND m.lead_id = ?"
		args = append(args, leadID)
	}
	q += " ORDER BY rank LIMIT ?"
	args = append(args, limit)
	return db.scanSearch(q, args)
}

func (db *DB) searchLike(query, leadID string, limit int) ([]SearchResult, error) {
	q := `
		SELECT seq, id, lead_id, direction, body, delivery_status, occurred_at, body
		FROM messages
		WHERE body LIKE '%' || ? || '%'`

	args := []any{query}
	if leadID != "" {
		q += " AND lead_id = ?"
		args = append(args, leadID)
	}
	q += " ORDER BY occurred_at DESC, seq DESC LIMIT ?"
	args = append(args, limit)
	return db.scanSearch(q, args)
}

func (db *DB) scanSearch(q string, args []any) ([]SearchResult, error) {
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(
			&r.Message.Seq, &r.Message.ID, &r.Message.LeadID,
			&r.Message.Direction, &r.Message.Body, &r.Message.DeliveryStatus,
			&r.Message.OccurredAt, &r.Snippet,
		); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

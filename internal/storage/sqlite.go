package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for thread metadata, message
// history, resume chunks, and the embedding job queue.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "resumed.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// DB exposes the underlying connection for the vector store and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// --- Threads ---

// SaveThread inserts or updates a thread's metadata. AnalysisComplete is
// deliberately not writable here: use MarkAnalysisComplete so the flag
// stays monotonic.
func (s *Store) SaveThread(t Thread) error {
	now := time.Now().UTC().Format(time.RFC3339)
	created := now
	if !t.CreatedAt.IsZero() {
		created = t.CreatedAt.UTC().Format(time.RFC3339)
	}
	var score any
	if t.ATSScore != nil {
		score = *t.ATSScore
	}
	_, err := s.db.Exec(`
		INSERT INTO threads (thread_id, owner_id, filename, pages, chunks, ats_score, analysis_complete, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			owner_id = excluded.owner_id,
			filename = excluded.filename,
			pages = excluded.pages,
			chunks = excluded.chunks,
			ats_score = excluded.ats_score,
			updated_at = excluded.updated_at`,
		t.ThreadID, t.OwnerID, t.Filename, t.Pages, t.Chunks, score, created, now,
	)
	return err
}

// GetThread returns a thread's metadata or ErrNotFound.
func (s *Store) GetThread(threadID string) (Thread, error) {
	var t Thread
	var score sql.NullInt64
	var complete int
	var createdAt, updatedAt string
	err := s.db.QueryRow(`
		SELECT thread_id, owner_id, filename, pages, chunks, ats_score, analysis_complete, created_at, updated_at
		FROM threads WHERE thread_id = ?`, threadID,
	).Scan(&t.ThreadID, &t.OwnerID, &t.Filename, &t.Pages, &t.Chunks, &score, &complete, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Thread{}, ErrNotFound
	}
	if err != nil {
		return Thread{}, err
	}
	if score.Valid {
		v := int(score.Int64)
		t.ATSScore = &v
	}
	t.AnalysisComplete = complete != 0
	if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Thread{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Thread{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return t, nil
}

// ListThreadsByOwner returns the owner's threads, most recently updated first.
func (s *Store) ListThreadsByOwner(ownerID string) ([]Thread, error) {
	rows, err := s.db.Query(`
		SELECT thread_id, owner_id, filename, pages, chunks, ats_score, analysis_complete, created_at, updated_at
		FROM threads WHERE owner_id = ? ORDER BY updated_at DESC`, ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Thread
	for rows.Next() {
		var t Thread
		var score sql.NullInt64
		var complete int
		var createdAt, updatedAt string
		if err := rows.Scan(&t.ThreadID, &t.OwnerID, &t.Filename, &t.Pages, &t.Chunks, &score, &complete, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if score.Valid {
			v := int(score.Int64)
			t.ATSScore = &v
		}
		t.AnalysisComplete = complete != 0
		if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if t.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

// ListRecentThreads returns the most recently updated threads across all
// owners, newest first.
func (s *Store) ListRecentThreads(limit int) ([]Thread, error) {
	rows, err := s.db.Query(`
		SELECT thread_id, owner_id, filename, pages, chunks, ats_score, analysis_complete, created_at, updated_at
		FROM threads ORDER BY updated_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Thread
	for rows.Next() {
		var t Thread
		var score sql.NullInt64
		var complete int
		var createdAt, updatedAt string
		if err := rows.Scan(&t.ThreadID, &t.OwnerID, &t.Filename, &t.Pages, &t.Chunks, &score, &complete, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if score.Valid {
			v := int(score.Int64)
			t.ATSScore = &v
		}
		t.AnalysisComplete = complete != 0
		if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if t.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

// UpdateScore sets the thread's ATS score.
func (s *Store) UpdateScore(threadID string, score int) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE threads SET ats_score = ?, updated_at = ? WHERE thread_id = ?`, score, now, threadID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// MarkAnalysisComplete flips analysis_complete to true. The flag never
// reverts; calling this twice is harmless.
func (s *Store) MarkAnalysisComplete(threadID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE threads SET analysis_complete = 1, updated_at = ? WHERE thread_id = ?`, now, threadID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// --- Messages ---

// AppendMessage appends a message to the thread's history, assigning the
// next sequence number.
func (s *Store) AppendMessage(m Message) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`
		INSERT INTO messages (thread_id, seq, role, content, tool_name, tool_payload, created_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE thread_id = ?), ?, ?, ?, ?, ?)`,
		m.ThreadID, m.ThreadID, m.Role, m.Content, m.ToolName, m.ToolPayload, now,
	)
	return err
}

// GetHistory returns the thread's full message history in order.
func (s *Store) GetHistory(threadID string) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT thread_id, seq, role, content, tool_name, tool_payload, created_at
		FROM messages WHERE thread_id = ? ORDER BY seq ASC`, threadID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Message
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ThreadID, &m.Seq, &m.Role, &m.Content, &m.ToolName, &m.ToolPayload, &createdAt); err != nil {
			return nil, err
		}
		if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// --- Resume chunks ---

// SaveResumeChunks replaces the thread's chunk set in one transaction.
// Re-uploading a resume for a thread starts from a clean slate.
func (s *Store) SaveResumeChunks(threadID string, chunks []ResumeChunk) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning chunk transaction: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM resume_chunks WHERE thread_id = ?`, threadID); err != nil {
		tx.Rollback()
		return fmt.Errorf("clearing old chunks: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO resume_chunks (id, thread_id, chunk_index, content, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, c := range chunks {
		if _, err := stmt.Exec(c.ID, threadID, c.ChunkIndex, c.Content, now); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// GetResumeChunk returns a single chunk by ID.
func (s *Store) GetResumeChunk(id string) (ResumeChunk, error) {
	var c ResumeChunk
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, thread_id, chunk_index, content, created_at
		FROM resume_chunks WHERE id = ?`, id,
	).Scan(&c.ID, &c.ThreadID, &c.ChunkIndex, &c.Content, &createdAt)
	if err == sql.ErrNoRows {
		return ResumeChunk{}, ErrNotFound
	}
	if err != nil {
		return ResumeChunk{}, err
	}
	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return ResumeChunk{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return c, nil
}

// FullResumeText concatenates the thread's chunks in order. Returns "" when
// no resume has been ingested.
func (s *Store) FullResumeText(threadID string) (string, error) {
	rows, err := s.db.Query(`
		SELECT content FROM resume_chunks WHERE thread_id = ? ORDER BY chunk_index ASC`, threadID,
	)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var parts []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return "", err
		}
		parts = append(parts, content)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return strings.Join(parts, "\n"), nil
}

// HasResume reports whether the thread has ingested resume chunks.
func (s *Store) HasResume(threadID string) (bool, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM resume_chunks WHERE thread_id = ?`, threadID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// --- Jobs ---

func (s *Store) EnqueueJob(job Job) error {
	now := time.Now().UTC().Format(time.RFC3339)
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = job.RunAfter.UTC().Format(time.RFC3339)
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, maxAttempts, runAfter, now, now,
	)
	return err
}

func (s *Store) ClaimNextJob(types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	placeholders := strings.Repeat(",?", len(types)-1)
	query := `SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs
		WHERE status = 'pending' AND run_after <= ? AND type IN (?` + placeholders + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	args := make([]any, 0, len(types)+1)
	args = append(args, now)
	for _, t := range types {
		args = append(args, t)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err = tx.QueryRow(query, args...).Scan(
		&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError,
	)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	res, err := tx.Exec(`UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`, now, j.ID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking updated job rows: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = "running"
	j.LastError = lastError.String
	if j.RunAfter, err = time.Parse(time.RFC3339, runAfter); err != nil {
		return nil, fmt.Errorf("parsing run_after for job %s: %w", j.ID, err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, now); err != nil {
		return nil, fmt.Errorf("parsing updated_at for job %s: %w", j.ID, err)
	}
	return &j, nil
}

func (s *Store) CompleteJob(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE jobs SET status = 'completed', updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) FailJob(id string, errMsg string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRow(`SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	attempts++

	if attempts >= maxAttempts {
		_, err = tx.Exec(`UPDATE jobs SET status = 'failed', attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, now.Format(time.RFC3339), id)
	} else {
		backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
		runAfter := now.Add(backoff)
		_, err = tx.Exec(`UPDATE jobs SET status = 'pending', attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, runAfter.Format(time.RFC3339), now.Format(time.RFC3339), id)
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

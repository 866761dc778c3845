package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
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

// Store wraps a SQLite database with methods for QA logs, documents,
// share links, surveys, and the indexing job queue.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "heyme.db")
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

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
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

// DB exposes the underlying connection for the vector store.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
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

	// Sort by filename to guarantee ascending order.
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

// --- QA Logs ---

// SaveQALog records one completed turn and indexes its question keywords.
func (s *Store) SaveQALog(l QALog) error {
	createdAt := l.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	normalized := NormalizeQuestion(l.Question)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning qa_log transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO qa_logs (id, question, answer, session_id, link_id, normalized_question, is_failed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Question, l.Answer, l.SessionID, l.LinkID, normalized, boolToInt(l.IsFailed),
		createdAt.UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("inserting qa_log: %w", err)
	}

	for _, kw := range ExtractKeywords(l.Question) {
		if _, err := tx.Exec(`INSERT INTO qa_keywords (qa_log_id, keyword) VALUES (?, ?)`, l.ID, kw); err != nil {
			return fmt.Errorf("inserting keyword %q: %w", kw, err)
		}
	}

	return tx.Commit()
}

// ListQALogs returns non-link chat turns ordered oldest-first, as the
// history loader consumes them.
func (s *Store) ListQALogs() ([]QALog, error) {
	rows, err := s.db.Query(`
		SELECT id, question, answer, session_id, link_id, is_failed, created_at
		FROM qa_logs WHERE link_id = '' ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanQALogs(rows)
}

// ClearQALogs deletes all recorded turns and their keywords.
func (s *Store) ClearQALogs() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM qa_keywords`); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM qa_logs`); err != nil {
		return err
	}
	return tx.Commit()
}

func scanQALogs(rows *sql.Rows) ([]QALog, error) {
	var results []QALog
	for rows.Next() {
		var l QALog
		var createdAt string
		var isFailed int
		if err := rows.Scan(&l.ID, &l.Question, &l.Answer, &l.SessionID, &l.LinkID, &isFailed, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		l.CreatedAt = t
		l.IsFailed = isFailed != 0
		results = append(results, l)
	}
	return results, rows.Err()
}

// --- Documents ---

func (s *Store) SaveDocument(d Document) error {
	now := time.Now().UTC().Format(time.RFC3339)
	createdAt := now
	if !d.CreatedAt.IsZero() {
		createdAt = d.CreatedAt.UTC().Format(time.RFC3339)
	}
	status := d.Status
	if status == "" {
		status = DocStatusUploaded
	}
	_, err := s.db.Exec(`
		INSERT INTO documents (id, title, original_file_name, mime_type, size_bytes, group_id, content, status, chunk_count, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Title, d.OriginalFileName, d.MimeType, d.SizeBytes, d.GroupID, d.Content,
		status, d.ChunkCount, d.ErrorMessage, createdAt, now,
	)
	return err
}

func (s *Store) GetDocument(id string) (Document, error) {
	row := s.db.QueryRow(`
		SELECT id, title, original_file_name, mime_type, size_bytes, group_id, content, status, chunk_count, error_message, created_at, updated_at
		FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// ListDocuments returns documents newest-first, without raw content.
func (s *Store) ListDocuments(limit int) ([]Document, error) {
	rows, err := s.db.Query(`
		SELECT id, title, original_file_name, mime_type, size_bytes, group_id, status, chunk_count, error_message, created_at, updated_at
		FROM documents ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Document
	for rows.Next() {
		var d Document
		var createdAt, updatedAt string
		if err := rows.Scan(&d.ID, &d.Title, &d.OriginalFileName, &d.MimeType, &d.SizeBytes, &d.GroupID,
			&d.Status, &d.ChunkCount, &d.ErrorMessage, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

func (s *Store) DeleteDocument(id string) error {
	res, err := s.db.Exec(`DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateDocumentStatus transitions a document's lifecycle status.
// errMsg is stored only for failed documents.
func (s *Store) UpdateDocumentStatus(id, status, errMsg string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE documents SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		status, errMsg, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDocumentIndexed records a successful indexing pass and drops the raw
// content blob, which is no longer needed once chunks are stored.
func (s *Store) MarkDocumentIndexed(id string, chunkCount int) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`
		UPDATE documents SET status = ?, chunk_count = ?, error_message = '', content = NULL, updated_at = ?
		WHERE id = ?`, DocStatusProcessed, chunkCount, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountProcessingDocuments returns how many documents are still being indexed.
func (s *Store) CountProcessingDocuments() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM documents WHERE status IN (?, ?)`,
		DocStatusUploaded, DocStatusProcessing).Scan(&n)
	return n, err
}

func scanDocument(row *sql.Row) (Document, error) {
	var d Document
	var createdAt, updatedAt string
	err := row.Scan(&d.ID, &d.Title, &d.OriginalFileName, &d.MimeType, &d.SizeBytes, &d.GroupID,
		&d.Content, &d.Status, &d.ChunkCount, &d.ErrorMessage, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Document{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Document{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return d, nil
}

// --- Share Links ---

func (s *Store) SaveShareLink(l ShareLink) error {
	createdAt := l.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var expiresAt any
	if l.ExpiresAt != nil {
		expiresAt = l.ExpiresAt.UTC().Format(time.RFC3339)
	}
	_, err := s.db.Exec(`
		INSERT INTO share_links (id, group_id, title, is_active, access_count, expires_at, created_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)`,
		l.ID, l.GroupID, l.Title, boolToInt(l.IsActive), expiresAt,
		createdAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetShareLink(id string) (ShareLink, error) {
	var l ShareLink
	var isActive int
	var lastAccessed, expiresAt sql.NullString
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, group_id, title, is_active, access_count, last_accessed_at, expires_at, created_at
		FROM share_links WHERE id = ?`, id,
	).Scan(&l.ID, &l.GroupID, &l.Title, &isActive, &l.AccessCount, &lastAccessed, &expiresAt, &createdAt)
	if err == sql.ErrNoRows {
		return ShareLink{}, ErrNotFound
	}
	if err != nil {
		return ShareLink{}, err
	}
	l.IsActive = isActive != 0
	if l.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return ShareLink{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if lastAccessed.Valid {
		t, err := time.Parse(time.RFC3339, lastAccessed.String)
		if err != nil {
			return ShareLink{}, fmt.Errorf("parsing last_accessed_at: %w", err)
		}
		l.LastAccessedAt = &t
	}
	if expiresAt.Valid {
		t, err := time.Parse(time.RFC3339, expiresAt.String)
		if err != nil {
			return ShareLink{}, fmt.Errorf("parsing expires_at: %w", err)
		}
		l.ExpiresAt = &t
	}
	return l, nil
}

// TouchShareLink bumps the access counter after a public link question.
func (s *Store) TouchShareLink(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`
		UPDATE share_links SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?`,
		now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Surveys ---

func (s *Store) SaveSurveyResponse(r SurveyResponse) error {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	reasons := r.Reasons
	if reasons == "" {
		reasons = "[]"
	}
	_, err := s.db.Exec(`
		INSERT INTO survey_responses (id, rating, reasons, session_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Rating, reasons, r.SessionID, createdAt.UTC().Format(time.RFC3339),
	)
	return err
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
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
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

// --- Dashboard aggregates ---

func (s *Store) TopKeywords(limit int) ([]KeywordCount, error) {
	rows, err := s.db.Query(`
		SELECT keyword, COUNT(*) AS cnt FROM qa_keywords
		GROUP BY keyword ORDER BY cnt DESC, keyword ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []KeywordCount
	for rows.Next() {
		var k KeywordCount
		if err := rows.Scan(&k.Keyword, &k.Count); err != nil {
			return nil, err
		}
		results = append(results, k)
	}
	return results, rows.Err()
}

func (s *Store) RecentQuestions(limit int) ([]RecentQuestion, error) {
	rows, err := s.db.Query(`
		SELECT id, question, created_at FROM qa_logs
		ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RecentQuestion
	for rows.Next() {
		var q RecentQuestion
		var createdAt string
		if err := rows.Scan(&q.ID, &q.Question, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		q.CreatedAt = t
		results = append(results, q)
	}
	return results, rows.Err()
}

// DailyCounts returns per-day turn counts for the window starting at since.
func (s *Store) DailyCounts(since time.Time) ([]DailyCount, error) {
	rows, err := s.db.Query(`
		SELECT date(created_at) AS day, COUNT(*) FROM qa_logs
		WHERE created_at >= ?
		GROUP BY day ORDER BY day ASC`, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []DailyCount
	for rows.Next() {
		var d DailyCount
		if err := rows.Scan(&d.Date, &d.Count); err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

func (s *Store) FailedQuestions(limit int) ([]FailedQuestion, error) {
	rows, err := s.db.Query(`
		SELECT normalized_question, MIN(question), COUNT(*), MAX(created_at)
		FROM qa_logs WHERE is_failed = 1
		GROUP BY normalized_question
		ORDER BY COUNT(*) DESC, normalized_question ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FailedQuestion
	for rows.Next() {
		var f FailedQuestion
		var lastAsked sql.NullString
		if err := rows.Scan(&f.NormalizedQuestion, &f.SampleQuestion, &f.FailCount, &lastAsked); err != nil {
			return nil, err
		}
		if lastAsked.Valid {
			t, err := time.Parse(time.RFC3339, lastAsked.String)
			if err != nil {
				return nil, fmt.Errorf("parsing last_asked_at: %w", err)
			}
			f.LastAskedAt = &t
		}
		results = append(results, f)
	}
	return results, rows.Err()
}

func (s *Store) CountQALogs() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM qa_logs`).Scan(&n)
	return n, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// MarshalReasons encodes survey reason tags as the stored JSON array text.
func MarshalReasons(reasons []string) string {
	if reasons == nil {
		reasons = []string{}
	}
	b, err := json.Marshal(reasons)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// Package database manages the SQLite connection, schema migrations,
// and the one-shot import of legacy JSON stores.
//
// The driver is modernc.org/sqlite (pure Go): registered under the
// "sqlite" name by its blank import, no CGO needed.
package database

import (
	"bytes"
	"database/sql"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/remus-chat/remus-node/pkg"
)

// sqliteMagic is the first 16 bytes of every SQLite database file.
var sqliteMagic = []byte("SQLite format 3\x00")

// recoverableErrors are migration error patterns that can be skipped.
// A half-applied migration re-run hits "duplicate column name" on
// ALTER TABLE ADD COLUMN; the column already exists, so continue.
var recoverableErrors = []string{
	"duplicate column name",
}

// DB wraps the connection pool. *sql.DB is safe for concurrent use.
type DB struct {
	Conn *sql.DB
}

// New opens the node database at dbPath and brings its schema current.
//
// Three cases for an existing file:
//   - SQLite header: open it and run any pending migrations.
//   - Legacy JSON store (first byte '{'): move it aside into backupDir
//     with a timestamped name, create a fresh database, and import the
//     JSON contents in a single transaction.
//   - Anything else: refuse with pkg.ErrInvalidDatabase rather than let
//     the driver clobber a file we do not understand.
func New(dbPath, backupDir string, migrationsFS fs.FS) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	var legacyJSON []byte
	if raw, err := os.ReadFile(dbPath); err == nil && len(raw) > 0 {
		switch {
		case bytes.HasPrefix(raw, sqliteMagic):
			// Normal case, open below.
		case isLegacyJSON(raw):
			backup, err := stashLegacyFile(dbPath, backupDir)
			if err != nil {
				return nil, err
			}
			log.Printf("[database] legacy JSON store detected, backed up to %s", backup)
			legacyJSON = raw
		default:
			return nil, fmt.Errorf("%w: %s is neither a SQLite database nor a legacy JSON store", pkg.ErrInvalidDatabase, dbPath)
		}
	}

	conn, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{Conn: conn}

	if err := db.runMigrations(migrationsFS); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := db.ensureLateColumns(); err != nil {
		conn.Close()
		return nil, err
	}

	if legacyJSON != nil {
		if err := db.ImportLegacyJSON(legacyJSON); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to import legacy store: %w", err)
		}
	}

	log.Println("[database] connected and migrations applied")
	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.Conn.Close()
}

// isLegacyJSON sniffs for the old flat-file store format.
func isLegacyJSON(raw []byte) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// stashLegacyFile moves the legacy store into backupDir under a
// timestamped name and returns the backup path.
func stashLegacyFile(dbPath, backupDir string) (string, error) {
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	backup := filepath.Join(backupDir, fmt.Sprintf("%s.legacy-%s.json", filepath.Base(dbPath), time.Now().Format("20060102-150405")))
	if err := os.Rename(dbPath, backup); err != nil {
		return "", fmt.Errorf("failed to back up legacy store: %w", err)
	}
	return backup, nil
}

// runMigrations applies the .sql files in order. The schema_migrations
// table tracks which files already ran, so non-idempotent statements
// are never replayed. If the table is empty but the schema already
// exists (an install that predates tracking), all files are marked
// applied without running.
func (db *DB) runMigrations(migrationsFS fs.FS) error {
	if _, err := db.Conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			sqlFiles = append(sqlFiles, entry.Name())
		}
	}
	sort.Strings(sqlFiles)

	applied := make(map[string]bool)
	rows, err := db.Conn.Query("SELECT filename FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("failed to query schema_migrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate migration rows: %w", err)
	}

	if len(applied) == 0 {
		var tableCount int
		if err := db.Conn.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='guilds'",
		).Scan(&tableCount); err != nil {
			return fmt.Errorf("failed to check existing tables: %w", err)
		}
		if tableCount > 0 {
			for _, file := range sqlFiles {
				if _, err := db.Conn.Exec(
					"INSERT INTO schema_migrations (filename) VALUES (?)", file,
				); err != nil {
					return fmt.Errorf("failed to bootstrap migration %s: %w", file, err)
				}
				applied[file] = true
			}
			log.Printf("[database] bootstrapped %d existing migrations", len(sqlFiles))
			return nil
		}
	}

	for _, file := range sqlFiles {
		if applied[file] {
			continue
		}

		content, err := fs.ReadFile(migrationsFS, file)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file, err)
		}

		// Run statement by statement: SQLite autocommits each one, so a
		// half-applied migration can be resumed by skipping recoverable
		// errors on the statements that already ran.
		if err := db.execStatements(file, string(content)); err != nil {
			return err
		}

		if _, err := db.Conn.Exec(
			"INSERT INTO schema_migrations (filename) VALUES (?)", file,
		); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", file, err)
		}

		log.Printf("[database] migration applied: %s", file)
	}

	return nil
}

// execStatements runs one migration file statement by statement,
// skipping errors in recoverableErrors.
func (db *DB) execStatements(filename, content string) error {
	statements := splitStatements(content)

	for i, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}

		if _, err := db.Conn.Exec(stmt); err != nil {
			errMsg := err.Error()
			recoverable := false
			for _, pattern := range recoverableErrors {
				if strings.Contains(errMsg, pattern) {
					recoverable = true
					break
				}
			}
			if recoverable {
				log.Printf("[database] %s: statement %d skipped (recoverable: %s)", filename, i+1, errMsg)
				continue
			}
			return fmt.Errorf("failed to execute migration %s (statement %d): %w", filename, i+1, err)
		}
	}

	return nil
}

// splitStatements splits SQL text on semicolons, ignoring semicolons
// inside single-quoted string literals ('' escapes included).
func splitStatements(sql string) []string {
	var statements []string
	var current strings.Builder
	inString := false

	for i := 0; i < len(sql); i++ {
		ch := sql[i]

		if ch == '\'' {
			if inString && i+1 < len(sql) && sql[i+1] == '\'' {
				current.WriteByte(ch)
				current.WriteByte(sql[i+1])
				i++
				continue
			}
			inString = !inString
		}

		if ch == ';' && !inString {
			s := strings.TrimSpace(current.String())
			if s != "" {
				statements = append(statements, s)
			}
			current.Reset()
			continue
		}

		current.WriteByte(ch)
	}

	s := strings.TrimSpace(current.String())
	if s != "" {
		statements = append(statements, s)
	}

	return statements
}

// ensureLateColumns adds columns that older node databases predate.
// channels.position additionally needs a backfill: number each channel
// within its (guild, category) group by creation order.
func (db *DB) ensureLateColumns() error {
	addedPosition, err := db.ensureColumn("channels", "position", "INTEGER NOT NULL DEFAULT 0")
	if err != nil {
		return err
	}
	if _, err := db.ensureColumn("messages", "reply_to_id", "TEXT"); err != nil {
		return err
	}
	if addedPosition {
		if err := db.backfillChannelPositions(); err != nil {
			return err
		}
	}
	return nil
}

// ensureColumn reports whether it had to add the column.
func (db *DB) ensureColumn(table, column, decl string) (bool, error) {
	rows, err := db.Conn.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to probe %s columns: %w", table, err)
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			dfltValue  any
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dfltValue, &primaryKey); err != nil {
			return false, fmt.Errorf("failed to scan %s column info: %w", table, err)
		}
		if name == column {
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("failed to iterate %s column info: %w", table, err)
	}
	if found {
		return false, nil
	}

	if _, err := db.Conn.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl)); err != nil {
		return false, fmt.Errorf("failed to add %s.%s: %w", table, column, err)
	}
	log.Printf("[database] added late column %s.%s", table, column)
	return true, nil
}

// backfillChannelPositions numbers channels 0..n within each
// (guild_id, category_id) group ordered by created_at, so pre-position
// databases keep their visual order.
func (db *DB) backfillChannelPositions() error {
	_, err := db.Conn.Exec(`
		UPDATE channels SET position = (
			SELECT COUNT(*) FROM channels AS earlier
			WHERE earlier.guild_id = channels.guild_id
			  AND (earlier.category_id IS channels.category_id)
			  AND (earlier.created_at < channels.created_at
			       OR (earlier.created_at = channels.created_at AND earlier.id < channels.id))
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to backfill channel positions: %w", err)
	}
	return nil
}

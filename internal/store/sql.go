package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/teemow/inboxsorter/internal/apperr"
	"github.com/teemow/inboxsorter/internal/classify"
	"github.com/teemow/inboxsorter/internal/config"
	"github.com/teemow/inboxsorter/internal/credential"
	"github.com/teemow/inboxsorter/internal/rules"
)

// SQL is a Store backed by a relational database.
type SQL struct {
	db *sqlx.DB
}

// OpenSQL connects to the database and applies pending migrations. driver is
// config.DriverSQLite or config.DriverPostgres; dsn is a file path (or
// ":memory:") for SQLite and a connection URL for Postgres.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQL, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch driver {
	case config.DriverSQLite:
		if dsn == "" {
			dsn = "inboxsorter.db"
		}
		db, err = sqlx.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite db: %w", err)
		}
		// One connection serializes writers and keeps ":memory:" databases alive.
		db.SetMaxOpenConns(1)
	case config.DriverPostgres:
		db, err = sqlx.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("opening postgres db: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported SQL driver %q", driver)
	}

	s := &SQL{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Ping checks the connection.
func (s *SQL) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQL) Close() error {
	return s.db.Close()
}

// Migrate applies every migration newer than the recorded schema version.
func (s *SQL) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration, or 0 for an empty database.
func (s *SQL) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.GetContext(ctx, &v, `SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

func (s *SQL) apply(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range strings.Split(m.sql, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO schema_version (version) VALUES (?)`), m.version); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQL) CredentialByToken(ctx context.Context, accessToken string) (credential.Credential, error) {
	var c credential.Credential
	err := s.db.GetContext(ctx, &c, s.db.Rebind(`
		SELECT user_id, email, display_name, access_token, refresh_token, expires_at, created_at
		FROM credentials WHERE access_token = ?`), accessToken)
	if errors.Is(err, sql.ErrNoRows) {
		return credential.Credential{}, apperr.NotFound("credential not found")
	}
	if err != nil {
		return credential.Credential{}, fmt.Errorf("querying credential: %w", err)
	}
	return c, nil
}

// UpsertCredential inserts c or replaces the token material of the existing
// credential for the same user. created_at is kept on update.
func (s *SQL) UpsertCredential(ctx context.Context, c credential.Credential) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO credentials (user_id, email, display_name, access_token, refresh_token, expires_at, created_at)
		VALUES (:user_id, :email, :display_name, :access_token, :refresh_token, :expires_at, :created_at)
		ON CONFLICT (user_id) DO UPDATE SET
			email = excluded.email,
			display_name = excluded.display_name,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at`, c)
	if err != nil {
		return fmt.Errorf("upserting credential: %w", err)
	}
	return nil
}

func (s *SQL) DeleteCredentialByToken(ctx context.Context, accessToken string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM credentials WHERE access_token = ?`), accessToken)
	if err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	return expectRow(res, "credential not found")
}

// ruleRow stores keywords as a JSON array.
type ruleRow struct {
	rules.Rule
	KeywordsJSON string `db:"keywords"`
}

func toRow(r rules.Rule) (ruleRow, error) {
	keywords := r.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	raw, err := json.Marshal(keywords)
	if err != nil {
		return ruleRow{}, fmt.Errorf("encoding keywords: %w", err)
	}
	return ruleRow{Rule: r, KeywordsJSON: string(raw)}, nil
}

func (row ruleRow) rule() (rules.Rule, error) {
	r := row.Rule
	r.Keywords = []string{}
	if row.KeywordsJSON != "" {
		if err := json.Unmarshal([]byte(row.KeywordsJSON), &r.Keywords); err != nil {
			return rules.Rule{}, fmt.Errorf("decoding keywords of rule %s: %w", r.ID, err)
		}
	}
	return r, nil
}

const ruleColumns = `id, user_id, name, description, target_folder_id, target_folder_name, keywords, criteria, is_active, created_at`

func (s *SQL) ListRules(ctx context.Context, userID string, limit int) ([]rules.Rule, error) {
	var rows []ruleRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT `+ruleColumns+` FROM rules
		WHERE user_id = ?
		ORDER BY created_at, id
		LIMIT ?`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}

	out := make([]rules.Rule, 0, len(rows))
	for _, row := range rows {
		r, err := row.rule()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *SQL) GetRule(ctx context.Context, userID, id string) (rules.Rule, error) {
	var row ruleRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT `+ruleColumns+` FROM rules WHERE id = ? AND user_id = ?`), id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return rules.Rule{}, apperr.NotFound("rule not found")
	}
	if err != nil {
		return rules.Rule{}, fmt.Errorf("querying rule %s: %w", id, err)
	}
	return row.rule()
}

func (s *SQL) CreateRule(ctx context.Context, r rules.Rule) error {
	row, err := toRow(r)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO rules (`+ruleColumns+`)
		VALUES (:id, :user_id, :name, :description, :target_folder_id, :target_folder_name, :keywords, :criteria, :is_active, :created_at)`, row)
	if err != nil {
		return fmt.Errorf("inserting rule: %w", err)
	}
	return nil
}

func (s *SQL) UpdateRule(ctx context.Context, r rules.Rule) error {
	row, err := toRow(r)
	if err != nil {
		return err
	}
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE rules SET
			name = :name,
			description = :description,
			target_folder_id = :target_folder_id,
			target_folder_name = :target_folder_name,
			keywords = :keywords,
			criteria = :criteria,
			is_active = :is_active
		WHERE id = :id AND user_id = :user_id`, row)
	if err != nil {
		return fmt.Errorf("updating rule: %w", err)
	}
	return expectRow(res, "rule not found")
}

func (s *SQL) DeleteRule(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM rules WHERE id = ? AND user_id = ?`), id, userID)
	if err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}
	return expectRow(res, "rule not found")
}

func (s *SQL) AppendRecord(ctx context.Context, r classify.Record) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO records (
			id, user_id, message_id, subject, from_address, from_name,
			original_folder, target_folder, target_folder_name, rule_name,
			confidence, classified_at
		) VALUES (
			:id, :user_id, :message_id, :subject, :from_address, :from_name,
			:original_folder, :target_folder, :target_folder_name, :rule_name,
			:confidence, :classified_at
		)`, r)
	if err != nil {
		return fmt.Errorf("inserting record: %w", err)
	}
	return nil
}

func (s *SQL) ListRecords(ctx context.Context, userID string, limit int) ([]classify.Record, error) {
	records := []classify.Record{}
	err := s.db.SelectContext(ctx, &records, s.db.Rebind(`
		SELECT id, user_id, message_id, subject, from_address, from_name,
			original_folder, target_folder, target_folder_name, rule_name,
			confidence, classified_at
		FROM records
		WHERE user_id = ?
		ORDER BY classified_at DESC, id
		LIMIT ?`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	return records, nil
}

func (s *SQL) CountRecords(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM records WHERE user_id = ?`), userID); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

func (s *SQL) GroupRecords(ctx context.Context, userID string, by classify.Grouping, limit int) ([]classify.Count, error) {
	var column string
	switch by {
	case classify.GroupByRule:
		column = "rule_name"
	case classify.GroupByFolder:
		column = "target_folder_name"
	default:
		return nil, fmt.Errorf("unsupported grouping %q", by)
	}

	counts := []classify.Count{}
	err := s.db.SelectContext(ctx, &counts, s.db.Rebind(`
		SELECT `+column+` AS name, COUNT(*) AS count
		FROM records
		WHERE user_id = ?
		GROUP BY `+column+`
		ORDER BY count DESC, name ASC
		LIMIT ?`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("grouping records by %s: %w", column, err)
	}
	return counts, nil
}

func expectRow(res sql.Result, notFound string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return apperr.NotFound(notFound)
	}
	return nil
}

package report

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	sqldblogger "github.com/simukti/sqldb-logger"

	"github.com/trafficai/violation-reporter/internal/analysis"
	"github.com/trafficai/violation-reporter/internal/fingerprint"
	"github.com/trafficai/violation-reporter/internal/geo"
	"github.com/trafficai/violation-reporter/internal/media"
)

const (
	sqlDialect = "sqlite3"
	// DefaultDatabaseName is the file created under DATA_DIR.
	DefaultDatabaseName = "reports.db"

	algorithmSetting = "fingerprint_algorithm"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Compile-time check that SQLRepository implements Repository.
var _ Repository = (*SQLRepository)(nil)

// SQLRepository stores reports in SQLite.
type SQLRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

type reportRow struct {
	ID         string          `db:"id"`
	UserID     string          `db:"user_id"`
	Username   string          `db:"username"`
	MediaType  string          `db:"media_type"`
	MediaHash  string          `db:"media_hash"`
	MediaName  string          `db:"media_name"`
	MIMEType   string          `db:"mime_type"`
	MediaURL   string          `db:"media_url"`
	FrameCount int             `db:"frame_count"`
	Verdict    string          `db:"verdict"`
	Latitude   sql.NullFloat64 `db:"latitude"`
	Longitude  sql.NullFloat64 `db:"longitude"`
	CapturedAt sql.NullInt64   `db:"captured_at"`
	CreatedAt  int64           `db:"created_at"`
}

var reportColumns = []string{
	"id", "user_id", "username", "media_type", "media_hash", "media_name",
	"mime_type", "media_url", "frame_count", "verdict", "latitude",
	"longitude", "captured_at", "created_at",
}

// OpenSQLite opens the report database at path, creating it if needed, and
// applies pending migrations. Statements are logged at debug level.
func OpenSQLite(path string, logger *slog.Logger) (*SQLRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	}
	raw, err := sql.Open(sqlDialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("open report database: %w", err)
	}
	raw = sqldblogger.OpenDriver(dsn, raw.Driver(), &sqlLogger{logger: logger},
		sqldblogger.WithMinimumLevel(sqldblogger.LevelDebug),
	)
	// One connection keeps writers from racing on the database lock and makes
	// ":memory:" behave as a single database.
	raw.SetMaxOpenConns(1)

	if err := raw.Ping(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("connect report database: %w", err)
	}
	if err := Migrate(raw, logger); err != nil {
		_ = raw.Close()
		return nil, err
	}

	logger.Debug("report database ready", slog.String("path", path))
	return &SQLRepository{db: sqlx.NewDb(raw, sqlDialect), logger: logger}, nil
}

// Migrate runs the embedded SQL migrations against db.
func Migrate(db *sql.DB, logger *slog.Logger) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{logger: logger})
	if err := goose.SetDialect(sqlDialect); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("migrate report database: %w", err)
	}
	return nil
}

// Close releases the database.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// BindAlgorithm records the fingerprint algorithm on first use and returns
// fingerprint.ErrAlgorithmMismatch when the database was written with
// another one. A database without the setting that already holds reports
// is taken to be SHA-256.
func (r *SQLRepository) BindAlgorithm(ctx context.Context, algorithm fingerprint.Algorithm) error {
	algorithm, err := fingerprint.ParseAlgorithm(string(algorithm))
	if err != nil {
		return err
	}

	query, args, err := squirrel.Select("value").From("settings").
		Where(squirrel.Eq{"key": algorithmSetting}).ToSql()
	if err != nil {
		return fmt.Errorf("build select: %w", err)
	}

	var stored string
	err = r.db.GetContext(ctx, &stored, r.db.Rebind(query), args...)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		stored, err = r.initAlgorithm(ctx, algorithm)
		if err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("read fingerprint algorithm: %w", err)
	}

	if err := fingerprint.CheckAlgorithm(fingerprint.Algorithm(stored), algorithm); err != nil {
		return fmt.Errorf("report database: %w", err)
	}
	return nil
}

func (r *SQLRepository) initAlgorithm(ctx context.Context, algorithm fingerprint.Algorithm) (string, error) {
	query, args, err := squirrel.Select("COUNT(1)").From("reports").ToSql()
	if err != nil {
		return "", fmt.Errorf("build select: %w", err)
	}
	var n int
	if err := r.db.GetContext(ctx, &n, r.db.Rebind(query), args...); err != nil {
		return "", fmt.Errorf("count reports: %w", err)
	}
	if n > 0 {
		algorithm = fingerprint.AlgorithmSHA256
	}

	query, args, err = squirrel.Insert("settings").
		Columns("key", "value").
		Values(algorithmSetting, string(algorithm)).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		return "", fmt.Errorf("record fingerprint algorithm: %w", err)
	}
	r.logger.Debug("fingerprint algorithm recorded", slog.String("algorithm", string(algorithm)))
	return string(algorithm), nil
}

// Save inserts the report or replaces the one with the same ID.
func (r *SQLRepository) Save(ctx context.Context, rep *Report) error {
	row, err := toRow(rep)
	if err != nil {
		return err
	}

	updates := make([]string, 0, len(reportColumns)-1)
	for _, c := range reportColumns[1:] {
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	query, args, err := squirrel.Insert("reports").
		Columns(reportColumns...).
		Values(row.ID, row.UserID, row.Username, row.MediaType, row.MediaHash, row.MediaName,
			row.MIMEType, row.MediaURL, row.FrameCount, row.Verdict, row.Latitude,
			row.Longitude, row.CapturedAt, row.CreatedAt).
		Suffix("ON CONFLICT (id) DO UPDATE SET " + strings.Join(updates, ", ")).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateHash
		}
		return fmt.Errorf("save report %s: %w", rep.ID, err)
	}
	return nil
}

// FindByID retrieves a report by its ID.
func (r *SQLRepository) FindByID(ctx context.Context, id string) (*Report, error) {
	query, args, err := selectReports().Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var row reportRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("find report %s: %w", id, err)
	}
	return row.toReport()
}

// ExistsByHash reports whether any report holds hash.
func (r *SQLRepository) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	query, args, err := squirrel.Select("COUNT(1)").From("reports").
		Where(squirrel.Eq{"media_hash": hash}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build select: %w", err)
	}

	var n int
	if err := r.db.GetContext(ctx, &n, r.db.Rebind(query), args...); err != nil {
		return false, fmt.Errorf("look up media hash: %w", err)
	}
	return n > 0, nil
}

// List returns all reports, newest first.
func (r *SQLRepository) List(ctx context.Context) ([]*Report, error) {
	return r.list(ctx, selectReports())
}

// ListByUser returns the user's reports, newest first.
func (r *SQLRepository) ListByUser(ctx context.Context, userID string) ([]*Report, error) {
	return r.list(ctx, selectReports().Where(squirrel.Eq{"user_id": userID}))
}

// Delete removes a report by ID.
func (r *SQLRepository) Delete(ctx context.Context, id string) error {
	query, args, err := squirrel.Delete("reports").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("delete report %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete report %s: %w", id, err)
	}
	if n == 0 {
		return ErrReportNotFound
	}
	return nil
}

func (r *SQLRepository) list(ctx context.Context, b squirrel.SelectBuilder) ([]*Report, error) {
	query, args, err := b.OrderBy("created_at DESC", "id DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []reportRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}

	out := make([]*Report, 0, len(rows))
	for _, row := range rows {
		rep, err := row.toReport()
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, nil
}

func selectReports() squirrel.SelectBuilder {
	return squirrel.Select(reportColumns...).From("reports")
}

func toRow(rep *Report) (reportRow, error) {
	verdict, err := json.Marshal(rep.Verdict)
	if err != nil {
		return reportRow{}, fmt.Errorf("encode verdict: %w", err)
	}
	row := reportRow{
		ID:         rep.ID,
		UserID:     rep.UserID,
		Username:   rep.Username,
		MediaType:  string(rep.MediaType),
		MediaHash:  rep.MediaHash.String(),
		MediaName:  rep.MediaName,
		MIMEType:   rep.MIMEType,
		MediaURL:   rep.MediaURL,
		FrameCount: rep.FrameCount,
		Verdict:    string(verdict),
		CreatedAt:  rep.CreatedAt.UnixMilli(),
	}
	if rep.Location != nil {
		row.Latitude = sql.NullFloat64{Float64: rep.Location.Latitude, Valid: true}
		row.Longitude = sql.NullFloat64{Float64: rep.Location.Longitude, Valid: true}
	}
	if rep.CapturedAt != nil {
		row.CapturedAt = sql.NullInt64{Int64: rep.CapturedAt.UnixMilli(), Valid: true}
	}
	return row, nil
}

func (row reportRow) toReport() (*Report, error) {
	rep := &Report{
		ID:         row.ID,
		UserID:     row.UserID,
		Username:   row.Username,
		MediaType:  media.Kind(row.MediaType),
		MediaHash:  fingerprint.Fingerprint(row.MediaHash),
		MediaName:  row.MediaName,
		MIMEType:   row.MIMEType,
		MediaURL:   row.MediaURL,
		FrameCount: row.FrameCount,
		CreatedAt:  time.UnixMilli(row.CreatedAt).UTC(),
	}
	var verdict analysis.Verdict
	if err := json.Unmarshal([]byte(row.Verdict), &verdict); err != nil {
		return nil, fmt.Errorf("decode verdict of report %s: %w", row.ID, err)
	}
	rep.Verdict = verdict
	if row.Latitude.Valid && row.Longitude.Valid {
		rep.Location = &geo.Coordinate{Latitude: row.Latitude.Float64, Longitude: row.Longitude.Float64}
	}
	if row.CapturedAt.Valid {
		at := time.UnixMilli(row.CapturedAt.Int64).UTC()
		rep.CapturedAt = &at
	}
	return rep, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// sqlLogger routes driver-level query logs into slog.
type sqlLogger struct {
	logger *slog.Logger
}

func (l *sqlLogger) Log(ctx context.Context, level sqldblogger.Level, msg string, data map[string]any) {
	attrs := make([]slog.Attr, 0, len(data))
	for _, k := range slices.Sorted(maps.Keys(data)) {
		attrs = append(attrs, slog.Any(k, data[k]))
	}
	switch level {
	case sqldblogger.LevelError:
		l.logger.LogAttrs(ctx, slog.LevelError, msg, attrs...)
	default:
		l.logger.LogAttrs(ctx, slog.LevelDebug, msg, attrs...)
	}
}

// gooseLogger adapts slog to the migration tool's logger.
type gooseLogger struct {
	logger *slog.Logger
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (g gooseLogger) Print(v ...any) { g.logger.Debug(strings.TrimSpace(fmt.Sprint(v...))) }

func (g gooseLogger) Println(v ...any) { g.Print(v...) }

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
	os.Exit(1)
}

func (g gooseLogger) Fatal(v ...any) {
	g.logger.Error(strings.TrimSpace(fmt.Sprint(v...)))
	os.Exit(1)
}

// Package postgres stores users, classes, join requests and fee records in
// Postgres through the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"tuition/internal/catalog"
	"tuition/internal/enrollment"
	"tuition/internal/identity"
)

const uniqueViolation = "23505"

// Store implements the catalog, enrollment and identity repositories.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Migrate creates the tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	full_name     TEXT NOT NULL,
	email         TEXT UNIQUE NOT NULL,
	role          TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS classes (
	id           TEXT PRIMARY KEY,
	code         TEXT UNIQUE NOT NULL,
	name         TEXT NOT NULL,
	subject      TEXT NOT NULL,
	monthly_fee  DOUBLE PRECISION NOT NULL,
	teacher_id   TEXT NOT NULL,
	qr_image_url TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS join_requests (
	id           TEXT PRIMARY KEY,
	class_id     TEXT NOT NULL,
	student_id   TEXT NOT NULL,
	student_name TEXT NOT NULL DEFAULT '',
	phone        TEXT NOT NULL,
	roll_number  TEXT NOT NULL,
	gender       TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	requested_at TIMESTAMPTZ NOT NULL,
	decided_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS fee_records (
	id              TEXT PRIMARY KEY,
	class_id        TEXT NOT NULL,
	student_id      TEXT NOT NULL,
	join_request_id TEXT NOT NULL,
	transaction_id  TEXT NOT NULL,
	screenshot_url  TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_classes_teacher       ON classes(teacher_id);
CREATE INDEX IF NOT EXISTS idx_join_requests_class   ON join_requests(class_id, status);
CREATE INDEX IF NOT EXISTS idx_join_requests_student ON join_requests(student_id);
CREATE INDEX IF NOT EXISTS idx_fee_records_student   ON fee_records(student_id);
CREATE INDEX IF NOT EXISTS idx_fee_records_request   ON fee_records(join_request_id);
`

func isUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// -------- Users --------

func (s *Store) InsertUser(ctx context.Context, u identity.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, full_name, email, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.FullName, u.Email, u.Role, u.PasswordHash, u.CreatedAt)
	if isUnique(err) {
		return identity.ErrEmailTaken
	}
	return err
}

func (s *Store) GetUser(ctx context.Context, id string) (identity.User, error) {
	return s.getUser(ctx, `WHERE id = $1`, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (identity.User, error) {
	return s.getUser(ctx, `WHERE email = $1`, email)
}

func (s *Store) getUser(ctx context.Context, clause, arg string) (identity.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, full_name, email, role, password_hash, created_at FROM users `+clause, arg)
	var u identity.User
	if err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.Role, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.User{}, identity.ErrNotFound
		}
		return identity.User{}, err
	}
	return u, nil
}

// -------- Classes --------

const classColumns = `id, code, name, subject, monthly_fee, teacher_id, qr_image_url, created_at`

func (s *Store) InsertClass(ctx context.Context, c catalog.Class) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO classes (`+classColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.ID, c.Code, c.Name, c.Subject, c.MonthlyFee, c.TeacherID, c.QRImageURL, c.CreatedAt)
	if isUnique(err) {
		return catalog.ErrDuplicate
	}
	return err
}

func (s *Store) GetClass(ctx context.Context, id string) (catalog.Class, error) {
	return s.getClass(ctx, `WHERE id = $1`, id)
}

func (s *Store) GetClassByCode(ctx context.Context, code string) (catalog.Class, error) {
	return s.getClass(ctx, `WHERE code = $1`, code)
}

func (s *Store) getClass(ctx context.Context, clause, arg string) (catalog.Class, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+classColumns+` FROM classes `+clause, arg)
	var c catalog.Class
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Subject, &c.MonthlyFee, &c.TeacherID, &c.QRImageURL, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Class{}, catalog.ErrNotFound
		}
		return catalog.Class{}, err
	}
	return c, nil
}

func (s *Store) ListClasses(ctx context.Context) ([]catalog.Class, error) {
	return s.listClasses(ctx, `ORDER BY created_at DESC`)
}

func (s *Store) ListClassesByTeacher(ctx context.Context, teacherID string) ([]catalog.Class, error) {
	return s.listClasses(ctx, `WHERE teacher_id = $1 ORDER BY created_at DESC`, teacherID)
}

func (s *Store) listClasses(ctx context.Context, tail string, args ...any) ([]catalog.Class, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+classColumns+` FROM classes `+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []catalog.Class{}
	for rows.Next() {
		var c catalog.Class
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Subject, &c.MonthlyFee, &c.TeacherID, &c.QRImageURL, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateClassFee(ctx context.Context, id string, fee float64) error {
	return s.updateClass(ctx, `UPDATE classes SET monthly_fee = $2 WHERE id = $1`, id, fee)
}

func (s *Store) UpdateClassQR(ctx context.Context, id, url string) error {
	return s.updateClass(ctx, `UPDATE classes SET qr_image_url = $2 WHERE id = $1`, id, url)
}

func (s *Store) updateClass(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// -------- Join requests and fee records --------

const requestColumns = `id, class_id, student_id, student_name, phone, roll_number, gender, status, requested_at, decided_at`

func insertJoinRequest(ctx context.Context, ex execer, jr enrollment.JoinRequest) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO join_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, jr.ID, jr.ClassID, jr.StudentID, jr.StudentName, jr.Phone, jr.RollNumber, jr.Gender, string(jr.Status), jr.RequestedAt, jr.DecidedAt)
	if isUnique(err) {
		return enrollment.ErrDuplicate
	}
	return err
}

func insertFeeRecord(ctx context.Context, ex execer, fr enrollment.FeeRecord) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO fee_records (id, class_id, student_id, join_request_id, transaction_id, screenshot_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, fr.ID, fr.ClassID, fr.StudentID, fr.JoinRequestID, fr.TransactionID, fr.ScreenshotURL, fr.CreatedAt)
	if isUnique(err) {
		return enrollment.ErrDuplicate
	}
	return err
}

func (s *Store) InsertJoinRequest(ctx context.Context, jr enrollment.JoinRequest) error {
	return insertJoinRequest(ctx, s.db, jr)
}

func (s *Store) InsertFeeRecord(ctx context.Context, fr enrollment.FeeRecord) error {
	return insertFeeRecord(ctx, s.db, fr)
}

// InsertSubmission writes both records in one transaction.
func (s *Store) InsertSubmission(ctx context.Context, jr enrollment.JoinRequest, fr enrollment.FeeRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertJoinRequest(ctx, tx, jr); err != nil {
		return err
	}
	if err := insertFeeRecord(ctx, tx, fr); err != nil {
		return err
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(sc scanner) (enrollment.JoinRequest, error) {
	var jr enrollment.JoinRequest
	var status string
	var decided sql.NullTime
	if err := sc.Scan(&jr.ID, &jr.ClassID, &jr.StudentID, &jr.StudentName, &jr.Phone, &jr.RollNumber, &jr.Gender, &status, &jr.RequestedAt, &decided); err != nil {
		return enrollment.JoinRequest{}, err
	}
	jr.Status = enrollment.Status(status)
	if decided.Valid {
		t := decided.Time
		jr.DecidedAt = &t
	}
	return jr, nil
}

func (s *Store) GetJoinRequest(ctx context.Context, id string) (enrollment.JoinRequest, error) {
	jr, err := scanRequest(s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM join_requests WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return enrollment.JoinRequest{}, enrollment.ErrNotFound
	}
	return jr, err
}

func (s *Store) ListJoinRequests(ctx context.Context, f enrollment.RequestFilter) ([]enrollment.JoinRequest, error) {
	w := where{}
	w.add("class_id", f.ClassID)
	w.add("student_id", f.StudentID)
	w.add("status", string(f.Status))

	rows, err := s.db.QueryContext(ctx, `SELECT `+requestColumns+` FROM join_requests`+w.sql()+` ORDER BY requested_at`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []enrollment.JoinRequest{}
	for rows.Next() {
		jr, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, jr)
	}
	return out, rows.Err()
}

func (s *Store) ListFeeRecords(ctx context.Context, f enrollment.FeeFilter) ([]enrollment.FeeRecord, error) {
	w := where{}
	w.add("class_id", f.ClassID)
	w.add("student_id", f.StudentID)
	w.add("join_request_id", f.JoinRequestID)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, class_id, student_id, join_request_id, transaction_id, screenshot_url, created_at
		FROM fee_records`+w.sql()+` ORDER BY created_at`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []enrollment.FeeRecord{}
	for rows.Next() {
		var fr enrollment.FeeRecord
		if err := rows.Scan(&fr.ID, &fr.ClassID, &fr.StudentID, &fr.JoinRequestID, &fr.TransactionID, &fr.ScreenshotURL, &fr.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, fr)
	}
	return out, rows.Err()
}

// DecideJoinRequest only updates rows still pending.
func (s *Store) DecideJoinRequest(ctx context.Context, id string, status enrollment.Status, at time.Time) (enrollment.JoinRequest, error) {
	jr, err := scanRequest(s.db.QueryRowContext(ctx, `
		UPDATE join_requests SET status = $2, decided_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING `+requestColumns, id, string(status), at))
	if err == nil {
		return jr, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return enrollment.JoinRequest{}, err
	}
	current, err := s.GetJoinRequest(ctx, id)
	if err != nil {
		return enrollment.JoinRequest{}, err
	}
	return current, enrollment.ErrNotPending
}

// where builds "WHERE a = $1 AND b = $2" from non-empty filter values.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(column, value string) {
	if value == "" {
		return
	}
	w.args = append(w.args, value)
	w.clauses = append(w.clauses, fmt.Sprintf("%s = $%d", column, len(w.args)))
}

func (w *where) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"budgetbook/internal/core"
	"budgetbook/internal/store"

	_ "modernc.org/sqlite"
)

var _ store.Backend = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db            *sql.DB
	now           func() time.Time
	schemaVersion uint
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now, schemaVersion: version}, nil
}

// SchemaVersion is the migration version the database was left on.
func (r *SQLiteRepository) SchemaVersion() uint {
	return r.schemaVersion
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks database connectivity.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) CreateProject(ctx context.Context, p core.Project) (core.Project, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.now().UTC()
	}
	doc, err := p.Settings.Encode()
	if err != nil {
		return core.Project{}, fmt.Errorf("encode settings: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, description, owner_id, settings, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.OwnerID, string(doc), p.CreatedAt)
	if err != nil {
		return core.Project{}, fmt.Errorf("insert project: %w", err)
	}

	slog.InfoContext(ctx, "Project saved to SQLite", "id", p.ID, "owner_id", p.OwnerID)
	return p, nil
}

func (r *SQLiteRepository) GetProject(ctx context.Context, id string) (core.Project, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, description, owner_id, settings, created_at FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Project{}, core.ErrNotFound
	}
	if err != nil {
		return core.Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) ListProjectsForUser(ctx context.Context, userID string) ([]core.Project, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.description, p.owner_id, p.settings, p.created_at
		FROM projects p
		JOIN project_members m ON m.project_id = p.id
		WHERE m.user_id = ?
		ORDER BY p.created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []core.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListProjectIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM projects ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list project ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan project id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLiteRepository) UpdateProject(ctx context.Context, id, name, description string) (int64, error) {
	return r.exec(ctx, "update project",
		`UPDATE projects SET name = ?, description = ? WHERE id = ?`, name, description, id)
}

func (r *SQLiteRepository) UpdateSettings(ctx context.Context, id string, s core.Settings) (int64, error) {
	doc, err := s.Encode()
	if err != nil {
		return 0, fmt.Errorf("encode settings: %w", err)
	}
	return r.exec(ctx, "update settings",
		`UPDATE projects SET settings = ? WHERE id = ?`, string(doc), id)
}

func (r *SQLiteRepository) DeleteProject(ctx context.Context, id string) (int64, error) {
	return r.exec(ctx, "delete project", `DELETE FROM projects WHERE id = ?`, id)
}

func (r *SQLiteRepository) AddMember(ctx context.Context, m core.Member) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id, role, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (project_id, user_id) DO UPDATE SET role = excluded.role`,
		m.ProjectID, m.UserID, string(m.Role), m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetMember(ctx context.Context, projectID, userID string) (core.Member, error) {
	var (
		m    core.Member
		role string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT project_id, user_id, role, created_at FROM project_members WHERE project_id = ? AND user_id = ?`,
		projectID, userID).Scan(&m.ProjectID, &m.UserID, &role, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Member{}, core.ErrNotFound
	}
	if err != nil {
		return core.Member{}, fmt.Errorf("get member: %w", err)
	}
	m.Role = core.Role(role)
	return m, nil
}

func (r *SQLiteRepository) ListMembers(ctx context.Context, projectID string) ([]core.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT project_id, user_id, role, created_at FROM project_members WHERE project_id = ? ORDER BY created_at`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []core.Member
	for rows.Next() {
		var (
			m    core.Member
			role string
		)
		if err := rows.Scan(&m.ProjectID, &m.UserID, &role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.Role = core.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) RemoveMember(ctx context.Context, projectID, userID string) (int64, error) {
	return r.exec(ctx, "remove member",
		`DELETE FROM project_members WHERE project_id = ? AND user_id = ?`, projectID, userID)
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, projectID string) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, name, color, sort_order, created_at
		FROM categories WHERE project_id = ?
		ORDER BY sort_order, created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Color, &c.Order, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (id, project_id, name, color, sort_order, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.ProjectID, c.Name, c.Color, c.Order, c.CreatedAt)
	if err != nil {
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, projectID, id string, patch core.CategoryPatch) (int64, error) {
	var (
		sets []string
		args []any
	)
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Color != nil {
		sets = append(sets, "color = ?")
		args = append(args, *patch.Color)
	}
	if len(sets) == 0 {
		// Nothing to change; still report whether the row is visible.
		var n int64
		err := r.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM categories WHERE id = ? AND project_id = ?`, id, projectID).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("update category: %w", err)
		}
		return n, nil
	}
	args = append(args, id, projectID)
	return r.exec(ctx, "update category",
		`UPDATE categories SET `+strings.Join(sets, ", ")+` WHERE id = ? AND project_id = ?`, args...)
}

func (r *SQLiteRepository) SetCategoryOrder(ctx context.Context, projectID, id string, order int) (int64, error) {
	return r.exec(ctx, "set category order",
		`UPDATE categories SET sort_order = ? WHERE id = ? AND project_id = ?`, order, id, projectID)
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, projectID, id string) (int64, error) {
	return r.exec(ctx, "delete category",
		`DELETE FROM categories WHERE id = ? AND project_id = ?`, id, projectID)
}

const transactionColumns = `id, project_id, amount_cents, currency, category_id, description, date, custom_data, created_by, created_at, updated_at`

func (r *SQLiteRepository) ListTransactions(ctx context.Context, projectID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE project_id = ? ORDER BY date DESC, created_at DESC`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, projectID, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND project_id = ?`, id, projectID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := r.now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	data, err := encodeCustomData(t.CustomData)
	if err != nil {
		return core.Transaction{}, err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.Amount.Cents, t.Currency, nullString(t.CategoryID), t.Description,
		t.Date.String(), data, t.CreatedBy, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"project_id", t.ProjectID,
		"amount_cents", t.Amount.Cents,
		"date", t.Date.String())
	return t, nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	data, err := encodeCustomData(t.CustomData)
	if err != nil {
		return 0, err
	}
	return r.exec(ctx, "update transaction", `
		UPDATE transactions
		SET amount_cents = ?, currency = ?, category_id = ?, description = ?, date = ?, custom_data = ?, updated_at = ?
		WHERE id = ? AND project_id = ?`,
		t.Amount.Cents, t.Currency, nullString(t.CategoryID), t.Description, t.Date.String(), data,
		r.now().UTC(), t.ID, t.ProjectID)
}

func (r *SQLiteRepository) UpdateCustomData(ctx context.Context, projectID, id string, data core.CustomData) (int64, error) {
	encoded, err := encodeCustomData(data)
	if err != nil {
		return 0, err
	}
	return r.exec(ctx, "update custom data",
		`UPDATE transactions SET custom_data = ?, updated_at = ? WHERE id = ? AND project_id = ?`,
		encoded, r.now().UTC(), id, projectID)
}

func (r *SQLiteRepository) DeleteTransactions(ctx context.Context, projectID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, 0, len(ids)+1)
	args = append(args, projectID)
	for _, id := range ids {
		args = append(args, id)
	}
	return r.exec(ctx, "delete transactions",
		`DELETE FROM transactions WHERE project_id = ? AND id IN (`+placeholders+`)`, args...)
}

const invitationColumns = `id, project_id, email, role, invited_by, token, status, expires_at, created_at`

func (r *SQLiteRepository) CreateInvitation(ctx context.Context, inv core.Invitation) (core.Invitation, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = r.now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO invitations (`+invitationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.ProjectID, inv.Email, string(inv.Role), inv.InvitedBy, inv.Token, string(inv.Status),
		inv.ExpiresAt.UTC(), inv.CreatedAt)
	if err != nil {
		return core.Invitation{}, fmt.Errorf("insert invitation: %w", err)
	}
	return inv, nil
}

func (r *SQLiteRepository) UpdateInvitation(ctx context.Context, inv core.Invitation) (int64, error) {
	return r.exec(ctx, "update invitation", `
		UPDATE invitations SET role = ?, invited_by = ?, token = ?, status = ?, expires_at = ?
		WHERE id = ? AND project_id = ?`,
		string(inv.Role), inv.InvitedBy, inv.Token, string(inv.Status), inv.ExpiresAt.UTC(), inv.ID, inv.ProjectID)
}

func (r *SQLiteRepository) FindPendingInvitation(ctx context.Context, projectID, email string) (core.Invitation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations
		WHERE project_id = ? AND lower(email) = lower(?) AND status = 'pending'
		ORDER BY created_at DESC LIMIT 1`, projectID, email)
	inv, err := scanInvitation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Invitation{}, core.ErrNotFound
	}
	if err != nil {
		return core.Invitation{}, fmt.Errorf("find invitation: %w", err)
	}
	return inv, nil
}

func (r *SQLiteRepository) GetInvitationByToken(ctx context.Context, token string) (core.Invitation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE token = ?`, token)
	inv, err := scanInvitation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Invitation{}, core.ErrNotFound
	}
	if err != nil {
		return core.Invitation{}, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

func (r *SQLiteRepository) ListInvitations(ctx context.Context, projectID string) ([]core.Invitation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE project_id = ? ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	var out []core.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) DeleteInvitations(ctx context.Context, cutoff time.Time, statuses []core.InvitationStatus) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
	args := []any{cutoff.UTC()}
	for _, st := range statuses {
		args = append(args, string(st))
	}
	args = append(args, string(core.InvitationPending), cutoff.UTC())
	n, err := r.exec(ctx, "delete invitations",
		`DELETE FROM invitations WHERE created_at < ? AND status IN (`+placeholders+`)
		AND (status <> ? OR expires_at < ?)`, args...)
	if err != nil {
		return 0, err
	}
	slog.InfoContext(ctx, "Old invitations deleted", "count", n, "cutoff", cutoff)
	return n, nil
}

func (r *SQLiteRepository) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s rows affected: %w", op, err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (core.Project, error) {
	var (
		p   core.Project
		doc string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &doc, &p.CreatedAt); err != nil {
		return core.Project{}, err
	}
	settings, err := core.DecodeSettings([]byte(doc))
	if err != nil {
		slog.Warn("Unreadable settings document, using defaults", "project_id", p.ID, "error", err)
	}
	p.Settings = settings
	return p, nil
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t        core.Transaction
		category sql.NullString
		date     string
		data     string
	)
	err := row.Scan(&t.ID, &t.ProjectID, &t.Amount.Cents, &t.Currency, &category, &t.Description,
		&date, &data, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	t.CategoryID = category.String
	if t.Date, err = core.ParseDate(date); err != nil {
		return core.Transaction{}, err
	}
	t.CustomData = core.CustomData{}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &t.CustomData); err != nil {
			return core.Transaction{}, fmt.Errorf("decode custom data: %w", err)
		}
	}
	return t, nil
}

func scanInvitation(row rowScanner) (core.Invitation, error) {
	var (
		inv          core.Invitation
		role, status string
	)
	err := row.Scan(&inv.ID, &inv.ProjectID, &inv.Email, &role, &inv.InvitedBy, &inv.Token, &status,
		&inv.ExpiresAt, &inv.CreatedAt)
	if err != nil {
		return core.Invitation{}, err
	}
	inv.Role = core.Role(role)
	inv.Status = core.InvitationStatus(status)
	return inv, nil
}

func encodeCustomData(data core.CustomData) (string, error) {
	if data == nil {
		return "{}", nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode custom data: %w", err)
	}
	return string(b), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

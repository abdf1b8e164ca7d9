package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/swo-voucher-api/internal/models"
)

const voucherColumns = `id, voucher_number, title, club_name, event_date, event_venue, budget_amount, description, status, version, created_by, created_at, updated_at`

// VoucherRepository persists vouchers and their approval trail.
type VoucherRepository struct {
	db *sqlx.DB
}

// NewVoucherRepository constructs the repository.
func NewVoucherRepository(db *sqlx.DB) *VoucherRepository {
	return &VoucherRepository{db: db}
}

// Create inserts a new voucher row in DRAFT state.
func (r *VoucherRepository) Create(ctx context.Context, voucher *models.Voucher) error {
	if voucher.ID == "" {
		voucher.ID = uuid.NewString()
	}
	if voucher.Status == "" {
		voucher.Status = models.VoucherStatusDraft
	}
	now := time.Now().UTC()
	if voucher.CreatedAt.IsZero() {
		voucher.CreatedAt = now
	}
	voucher.UpdatedAt = voucher.CreatedAt
	if voucher.Version == 0 {
		voucher.Version = 1
	}
	const query = `INSERT INTO vouchers
	(id, voucher_number, title, club_name, event_date, event_venue, budget_amount, description, status, version, created_by, created_at, updated_at)
	VALUES (:id, :voucher_number, :title, :club_name, :event_date, :event_venue, :budget_amount, :description, :status, :version, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, voucher); err != nil {
		return fmt.Errorf("create voucher: %w", err)
	}
	return nil
}

// GetByID fetches a voucher by identifier.
func (r *VoucherRepository) GetByID(ctx context.Context, id string) (*models.Voucher, error) {
	query := fmt.Sprintf(`SELECT %s FROM vouchers WHERE id = $1`, voucherColumns)
	var voucher models.Voucher
	if err := r.db.GetContext(ctx, &voucher, query, id); err != nil {
		return nil, err
	}
	return &voucher, nil
}

// ListApprovals returns the voucher's approval trail ordered oldest first.
func (r *VoucherRepository) ListApprovals(ctx context.Context, voucherID string) ([]models.ApprovalEntry, error) {
	const query = `SELECT id, voucher_id, actor_id, actor_role, action, from_status, to_status, comment, created_at
	FROM voucher_approvals WHERE voucher_id = $1 ORDER BY created_at ASC`
	var entries []models.ApprovalEntry
	if err := r.db.SelectContext(ctx, &entries, query, voucherID); err != nil {
		return nil, fmt.Errorf("list voucher approvals: %w", err)
	}
	return entries, nil
}

// List returns vouchers matching the filter with a total count (latest first).
func (r *VoucherRepository) List(ctx context.Context, filter models.VoucherFilter) ([]models.Voucher, int, error) {
	baseQuery := `FROM vouchers WHERE 1=1`
	var conditions []string
	var args []interface{}

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		conditions = append(conditions, fmt.Sprintf("created_by = $%d", len(args)))
	}
	if filter.ClubName != "" {
		args = append(args, filter.ClubName)
		conditions = append(conditions, fmt.Sprintf("club_name = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(voucher_number) LIKE $%d)", len(args), len(args)))
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", voucherColumns, baseQuery, pageSize, offset)

	var vouchers []models.Voucher
	if err := r.db.SelectContext(ctx, &vouchers, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list vouchers: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count vouchers: %w", err)
	}

	return vouchers, total, nil
}

// TransitionParams groups the columns written when a transition commits.
type TransitionParams struct {
	VoucherID  string
	FromStatus models.VoucherStatus
	ToStatus   models.VoucherStatus
	Version    int
	UpdatedAt  time.Time
	Entry      *models.ApprovalEntry
}

// CommitTransition persists a status change and its approval entry atomically.
// The UPDATE is conditioned on the status and version observed at read time;
// zero affected rows means a concurrent writer won and surfaces as
// sql.ErrNoRows.
func (r *VoucherRepository) CommitTransition(ctx context.Context, params TransitionParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const updateQuery = `UPDATE vouchers SET status = $1, version = version + 1, updated_at = $2
	WHERE id = $3 AND status = $4 AND version = $5`
	result, err := tx.ExecContext(ctx, updateQuery,
		params.ToStatus, params.UpdatedAt, params.VoucherID, params.FromStatus, params.Version)
	if err != nil {
		return fmt.Errorf("update voucher status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check voucher update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	entry := params.Entry
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	const insertQuery = `INSERT INTO voucher_approvals
	(id, voucher_id, actor_id, actor_role, action, from_status, to_status, comment, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := tx.ExecContext(ctx, insertQuery,
		entry.ID, entry.VoucherID, entry.ActorID, entry.ActorRole, entry.Action,
		entry.FromStatus, entry.ToStatus, entry.Comment, entry.CreatedAt); err != nil {
		return fmt.Errorf("append approval entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}

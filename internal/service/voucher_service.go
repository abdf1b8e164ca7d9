package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/swo-voucher-api/internal/dto"
	"github.com/noah-isme/swo-voucher-api/internal/models"
	"github.com/noah-isme/swo-voucher-api/internal/repository"
	"github.com/noah-isme/swo-voucher-api/internal/workflow"
	appErrors "github.com/noah-isme/swo-voucher-api/pkg/errors"
	"github.com/noah-isme/swo-voucher-api/pkg/export"
)

const voucherListCachePrefix = "vouchers:list:"

type voucherStore interface {
	Create(ctx context.Context, voucher *models.Voucher) error
	GetByID(ctx context.Context, id string) (*models.Voucher, error)
	ListApprovals(ctx context.Context, voucherID string) ([]models.ApprovalEntry, error)
	List(ctx context.Context, filter models.VoucherFilter) ([]models.Voucher, int, error)
	CommitTransition(ctx context.Context, params repository.TransitionParams) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type listCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// VoucherList bundles a page of vouchers with its pagination metadata.
type VoucherList struct {
	Items      []models.Voucher  `json:"items"`
	Pagination models.Pagination `json:"pagination"`
}

// VoucherService orchestrates voucher drafting and the approval workflow.
type VoucherService struct {
	repo      voucherStore
	audit     auditLogger
	cache     listCache
	csv       csvRenderer
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	cacheTTL  time.Duration
	prerender func(voucherID string)
	now       func() time.Time
}

// VoucherServiceOption configures the service.
type VoucherServiceOption func(*VoucherService)

// WithVoucherCache enables list caching.
func WithVoucherCache(cache listCache, ttl time.Duration) VoucherServiceOption {
	return func(s *VoucherService) {
		s.cache = cache
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithVoucherMetrics attaches transition counters.
func WithVoucherMetrics(metrics *MetricsService) VoucherServiceOption {
	return func(s *VoucherService) {
		s.metrics = metrics
	}
}

// WithArtifactPrerender registers a hook fired when a voucher reaches PASSED.
func WithArtifactPrerender(fn func(voucherID string)) VoucherServiceOption {
	return func(s *VoucherService) {
		s.prerender = fn
	}
}

// NewVoucherService constructs the service with defaults.
func NewVoucherService(repo voucherStore, audit auditLogger, logger *zap.Logger, opts ...VoucherServiceOption) *VoucherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &VoucherService{
		repo:      repo,
		audit:     audit,
		csv:       export.NewCSVExporter(),
		validator: validator.New(),
		logger:    logger,
		cacheTTL:  5 * time.Minute,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create drafts a new voucher for the acting student head.
func (s *VoucherService) Create(ctx context.Context, req dto.CreateVoucherRequest, actor *models.JWTClaims) (*models.Voucher, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleStudentHead {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only student heads may draft vouchers")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid voucher payload")
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.ClubName) == "" || strings.TrimSpace(req.EventVenue) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "title, club_name and event_venue must not be blank")
	}
	eventDate, err := time.Parse("2006-01-02", req.EventDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "event_date must be formatted as YYYY-MM-DD")
	}

	now := s.now()
	voucher := &models.Voucher{
		ID:           uuid.NewString(),
		Title:        strings.TrimSpace(req.Title),
		ClubName:     strings.TrimSpace(req.ClubName),
		EventDate:    eventDate,
		EventVenue:   strings.TrimSpace(req.EventVenue),
		BudgetAmount: req.BudgetAmount,
		Description:  strings.TrimSpace(req.Description),
		Status:       models.VoucherStatusDraft,
		Version:      1,
		CreatedBy:    actor.UserID,
		CreatedAt:    now,
	}
	voucher.VoucherNumber = fmt.Sprintf("SWO-%d-%s", now.Year(), strings.ToUpper(voucher.ID[:8]))

	if err := s.repo.Create(ctx, voucher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create voucher")
	}

	s.invalidateListCache(ctx)
	s.emitAudit(ctx, actor.UserID, models.AuditActionVoucherCreate, voucher.ID, map[string]interface{}{
		"voucher_number": voucher.VoucherNumber,
		"status":         voucher.Status,
	})
	return voucher, nil
}

// Submit routes a draft voucher to the faculty stage.
func (s *VoucherService) Submit(ctx context.Context, id string, actor *models.JWTClaims) (*models.Voucher, error) {
	return s.transition(ctx, id, actor, workflow.ActionSubmit, "")
}

// Approve advances the voucher one stage down the chain.
func (s *VoucherService) Approve(ctx context.Context, id string, actor *models.JWTClaims, comment string) (*models.Voucher, error) {
	return s.transition(ctx, id, actor, workflow.ActionApprove, comment)
}

// Reject finalizes the voucher as rejected; a reason is mandatory.
func (s *VoucherService) Reject(ctx context.Context, id string, actor *models.JWTClaims, comment string) (*models.Voucher, error) {
	if strings.TrimSpace(comment) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a rejection reason is required")
	}
	return s.transition(ctx, id, actor, workflow.ActionReject, comment)
}

// Get returns a voucher with its approval trail, enforcing scope.
func (s *VoucherService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Voucher, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	voucher, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleStudentHead && voucher.CreatedBy != actor.UserID {
		return nil, appErrors.ErrForbidden
	}

	entries, err := s.repo.ListApprovals(ctx, voucher.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval trail")
	}
	voucher.ApprovalHistory = entries
	return voucher, nil
}

// List returns vouchers visible to the actor. Student heads see their own
// across all statuses; approver roles default to the queue awaiting them.
func (s *VoucherService) List(ctx context.Context, query dto.VoucherQuery, actor *models.JWTClaims) (*VoucherList, error) {
	filter, err := s.scopedFilter(query, actor)
	if err != nil {
		return nil, err
	}

	key := s.listCacheKey(actor, filter)
	if s.cache != nil {
		var cached VoucherList
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return &cached, nil
		}
		s.metrics.RecordCacheOperation(false)
	}

	vouchers, total, err := s.repo.List(ctx, *filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list vouchers")
	}

	result := &VoucherList{
		Items: vouchers,
		Pagination: models.Pagination{
			Page:       filter.Page,
			PageSize:   filter.PageSize,
			TotalCount: total,
		},
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, result, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache voucher list", zap.Error(err))
		}
	}
	return result, nil
}

// ExportCSV renders the actor's visible vouchers as CSV (dean roles only).
func (s *VoucherService) ExportCSV(ctx context.Context, query dto.VoucherQuery, actor *models.JWTClaims) ([]byte, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleDeanSWO && actor.Role != models.RoleDeanSW {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "csv export is limited to dean roles")
	}
	filter, err := s.scopedFilter(query, actor)
	if err != nil {
		return nil, err
	}
	filter.Page = 1
	filter.PageSize = 100

	vouchers, _, err := s.repo.List(ctx, *filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list vouchers for export")
	}

	dataset := export.Dataset{
		Headers: []string{"voucher_number", "title", "club_name", "event_date", "budget_amount", "status", "updated_at"},
	}
	for _, v := range vouchers {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"voucher_number": v.VoucherNumber,
			"title":          v.Title,
			"club_name":      v.ClubName,
			"event_date":     v.EventDate.Format("2006-01-02"),
			"budget_amount":  fmt.Sprintf("%.2f", v.BudgetAmount),
			"status":         string(v.Status),
			"updated_at":     v.UpdatedAt.Format(time.RFC3339),
		})
	}
	return s.csv.Render(dataset)
}

func (s *VoucherService) transition(ctx context.Context, id string, actor *models.JWTClaims, action workflow.Action, comment string) (*models.Voucher, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	voucher, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	readVersion := voucher.Version
	fromStatus := voucher.Status

	principal := workflow.Principal{ID: actor.UserID, Role: actor.Role}
	entry, err := workflow.Apply(voucher, principal, action, comment, s.now())
	if err != nil {
		return nil, err
	}

	params := repository.TransitionParams{
		VoucherID:  voucher.ID,
		FromStatus: fromStatus,
		ToStatus:   voucher.Status,
		Version:    readVersion,
		UpdatedAt:  voucher.UpdatedAt,
		Entry:      entry,
	}
	if err := s.repo.CommitTransition(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "voucher was modified concurrently, re-read and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist transition")
	}
	voucher.Version = readVersion + 1

	s.metrics.ObserveTransition(string(action), string(voucher.Status))
	s.invalidateListCache(ctx)
	s.emitAudit(ctx, actor.UserID, auditActionFor(action), voucher.ID, map[string]interface{}{
		"from":    fromStatus,
		"to":      voucher.Status,
		"comment": comment,
	})

	if voucher.Status == models.VoucherStatusPassed && s.prerender != nil {
		s.prerender(voucher.ID)
	}

	entries, err := s.repo.ListApprovals(ctx, voucher.ID)
	if err != nil {
		s.logger.Warn("failed to reload approval trail", zap.Error(err))
		return voucher, nil
	}
	voucher.ApprovalHistory = entries
	return voucher, nil
}

func (s *VoucherService) scopedFilter(query dto.VoucherQuery, actor *models.JWTClaims) (*models.VoucherFilter, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	filter := &models.VoucherFilter{
		Status:   query.Status,
		ClubName: strings.TrimSpace(query.ClubName),
		Search:   strings.TrimSpace(query.Search),
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	switch actor.Role {
	case models.RoleStudentHead:
		filter.CreatedBy = actor.UserID
	case models.RoleFaculty, models.RoleDeanSWO, models.RoleDeanSW:
		if len(filter.Status) == 0 {
			pending, _ := workflow.PendingStatusFor(actor.Role)
			filter.Status = []models.VoucherStatus{pending}
			break
		}
		// Explicit filters are clamped to the role's review scope so an
		// approver cannot enumerate drafts or upstream queues.
		visible, _ := workflow.VisibleStatusesFor(actor.Role)
		allowed := make(map[models.VoucherStatus]bool, len(visible))
		for _, s := range visible {
			allowed[s] = true
		}
		clamped := make([]models.VoucherStatus, 0, len(filter.Status))
		for _, s := range filter.Status {
			if allowed[s] {
				clamped = append(clamped, s)
			}
		}
		if len(clamped) == 0 {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "requested statuses are outside your review scope")
		}
		filter.Status = clamped
	default:
		return nil, appErrors.ErrForbidden
	}
	return filter, nil
}

func (s *VoucherService) load(ctx context.Context, id string) (*models.Voucher, error) {
	voucher, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load voucher")
	}
	return voucher, nil
}

func (s *VoucherService) listCacheKey(actor *models.JWTClaims, filter *models.VoucherFilter) string {
	statuses := make([]string, 0, len(filter.Status))
	for _, status := range filter.Status {
		statuses = append(statuses, string(status))
	}
	return fmt.Sprintf("%s%s:%s:%s:%s:%s:%d:%d",
		voucherListCachePrefix, actor.Role, actor.UserID,
		strings.Join(statuses, ","), filter.ClubName, filter.Search,
		filter.Page, filter.PageSize)
}

func (s *VoucherService) invalidateListCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, voucherListCachePrefix+"*"); err != nil {
		s.logger.Warn("failed to invalidate voucher list cache", zap.Error(err))
	}
}

func (s *VoucherService) emitAudit(ctx context.Context, userID, action, voucherID string, payload map[string]interface{}) {
	if s.audit == nil {
		return
	}
	body, _ := json.Marshal(payload)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "voucher",
		ResourceID: &voucherID,
		NewValues:  body,
		IPAddress:  "system",
		UserAgent:  "voucher-service",
	}); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func auditActionFor(action workflow.Action) string {
	switch action {
	case workflow.ActionSubmit:
		return models.AuditActionVoucherSubmit
	case workflow.ActionApprove:
		return models.AuditActionVoucherApprove
	case workflow.ActionReject:
		return models.AuditActionVoucherReject
	default:
		return string(action)
	}
}

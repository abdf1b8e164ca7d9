package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/swo-voucher-api/internal/dto"
	"github.com/noah-isme/swo-voucher-api/internal/models"
	"github.com/noah-isme/swo-voucher-api/internal/service"
	"github.com/noah-isme/swo-voucher-api/internal/workflow"
	appErrors "github.com/noah-isme/swo-voucher-api/pkg/errors"
	"github.com/noah-isme/swo-voucher-api/pkg/response"
)

type voucherService interface {
	Create(ctx context.Context, req dto.CreateVoucherRequest, actor *models.JWTClaims) (*models.Voucher, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Voucher, error)
	List(ctx context.Context, query dto.VoucherQuery, actor *models.JWTClaims) (*service.VoucherList, error)
	Submit(ctx context.Context, id string, actor *models.JWTClaims) (*models.Voucher, error)
	Approve(ctx context.Context, id string, actor *models.JWTClaims, comment string) (*models.Voucher, error)
	Reject(ctx context.Context, id string, actor *models.JWTClaims, comment string) (*models.Voucher, error)
	ExportCSV(ctx context.Context, query dto.VoucherQuery, actor *models.JWTClaims) ([]byte, error)
}

// VoucherHandler exposes REST endpoints for the voucher approval workflow.
type VoucherHandler struct {
	service voucherService
}

// NewVoucherHandler constructs the handler.
func NewVoucherHandler(service voucherService) *VoucherHandler {
	return &VoucherHandler{service: service}
}

// Create godoc
// @Summary Draft a new voucher
// @Tags Vouchers
// @Accept json
// @Produce json
// @Param payload body dto.CreateVoucherRequest true "Voucher payload"
// @Success 201 {object} response.Envelope
// @Router /vouchers [post]
func (h *VoucherHandler) Create(c *gin.Context) {
	var req dto.CreateVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid voucher payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	voucher, err := h.service.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, voucher, nil)
}

// List godoc
// @Summary List vouchers visible to the caller
// @Tags Vouchers
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param club_name query string false "Club name filter"
// @Param search query string false "Text search over title and number"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /vouchers [get]
func (h *VoucherHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := parseVoucherQuery(c)
	list, err := h.service.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list.Items, &list.Pagination)
}

// Get godoc
// @Summary Get voucher detail with approval trail
// @Tags Vouchers
// @Produce json
// @Param id path string true "Voucher ID"
// @Success 200 {object} response.Envelope
// @Router /vouchers/{id} [get]
func (h *VoucherHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	voucher, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, voucher, nil)
}

// Submit godoc
// @Summary Submit a draft voucher for faculty review
// @Tags Vouchers
// @Produce json
// @Param id path string true "Voucher ID"
// @Success 200 {object} response.Envelope
// @Router /vouchers/{id}/submit [post]
func (h *VoucherHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	voucher, err := h.service.Submit(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, voucher, nil)
}

// Approve godoc
// @Summary Approve the voucher at its current stage
// @Tags Vouchers
// @Accept json
// @Produce json
// @Param id path string true "Voucher ID"
// @Param payload body dto.DecisionRequest false "Optional comment"
// @Success 200 {object} response.Envelope
// @Router /vouchers/{id}/approve [post]
func (h *VoucherHandler) Approve(c *gin.Context) {
	h.decide(c, workflow.ActionApprove)
}

// Reject godoc
// @Summary Reject the voucher with a reason
// @Tags Vouchers
// @Accept json
// @Produce json
// @Param id path string true "Voucher ID"
// @Param payload body dto.DecisionRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Router /vouchers/{id}/reject [post]
func (h *VoucherHandler) Reject(c *gin.Context) {
	h.decide(c, workflow.ActionReject)
}

func (h *VoucherHandler) decide(c *gin.Context, action workflow.Action) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.DecisionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
			return
		}
	}

	var (
		voucher *models.Voucher
		err     error
	)
	switch action {
	case workflow.ActionApprove:
		voucher, err = h.service.Approve(c.Request.Context(), c.Param("id"), claims, req.Comment)
	case workflow.ActionReject:
		voucher, err = h.service.Reject(c.Request.Context(), c.Param("id"), claims, req.Comment)
	default:
		err = appErrors.ErrValidation
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, voucher, nil)
}

// Export godoc
// @Summary Export vouchers as CSV
// @Tags Vouchers
// @Produce text/csv
// @Param status query string false "Comma separated statuses"
// @Success 200 {string} string "CSV content"
// @Router /vouchers/export [get]
func (h *VoucherHandler) Export(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	data, err := h.service.ExportCSV(c.Request.Context(), parseVoucherQuery(c), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("vouchers-%s.csv", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "text/csv", data)
}

func parseVoucherQuery(c *gin.Context) dto.VoucherQuery {
	query := dto.VoucherQuery{
		ClubName: strings.TrimSpace(c.Query("club_name")),
		Search:   strings.TrimSpace(c.Query("search")),
	}
	if raw := c.Query("status"); raw != "" {
		parts := strings.Split(raw, ",")
		statuses := make([]models.VoucherStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.VoucherStatus(part))
		}
		query.Status = statuses
	}
	if page, err := strconv.Atoi(c.Query("page")); err == nil {
		query.Page = page
	}
	if size, err := strconv.Atoi(c.Query("page_size")); err == nil {
		query.PageSize = size
	}
	return query
}

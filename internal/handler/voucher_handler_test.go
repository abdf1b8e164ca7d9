package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/swo-voucher-api/internal/dto"
	"github.com/noah-isme/swo-voucher-api/internal/middleware"
	"github.com/noah-isme/swo-voucher-api/internal/models"
	"github.com/noah-isme/swo-voucher-api/internal/service"
	appErrors "github.com/noah-isme/swo-voucher-api/pkg/errors"
	"github.com/noah-isme/swo-voucher-api/pkg/response"
)

type voucherServiceMock struct {
	voucher    *models.Voucher
	list       *service.VoucherList
	csv        []byte
	err        error
	gotQuery   dto.VoucherQuery
	gotComment string
}

func (m *voucherServiceMock) Create(ctx context.Context, req dto.CreateVoucherRequest, actor *models.JWTClaims) (*models.Voucher, error) {
	return m.voucher, m.err
}

func (m *voucherServiceMock) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Voucher, error) {
	return m.voucher, m.err
}

func (m *voucherServiceMock) List(ctx context.Context, query dto.VoucherQuery, actor *models.JWTClaims) (*service.VoucherList, error) {
	m.gotQuery = query
	return m.list, m.err
}

func (m *voucherServiceMock) Submit(ctx context.Context, id string, actor *models.JWTClaims) (*models.Voucher, error) {
	return m.voucher, m.err
}

func (m *voucherServiceMock) Approve(ctx context.Context, id string, actor *models.JWTClaims, comment string) (*models.Voucher, error) {
	m.gotComment = comment
	return m.voucher, m.err
}

func (m *voucherServiceMock) Reject(ctx context.Context, id string, actor *models.JWTClaims, comment string) (*models.Voucher, error) {
	m.gotComment = comment
	return m.voucher, m.err
}

func (m *voucherServiceMock) ExportCSV(ctx context.Context, query dto.VoucherQuery, actor *models.JWTClaims) ([]byte, error) {
	m.gotQuery = query
	return m.csv, m.err
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func withClaims(c *gin.Context, role models.UserRole) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: role})
}

func TestVoucherHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &voucherServiceMock{
		voucher: &models.Voucher{ID: "v-1", Status: models.VoucherStatusDraft},
	}
	handler := NewVoucherHandler(mockSvc)

	payload, _ := json.Marshal(dto.CreateVoucherRequest{
		Title:      "Tech Fest",
		ClubName:   "Robotics Club",
		EventDate:  "2026-10-15",
		EventVenue: "Main Auditorium",
	})
	c, w := newGinContext(http.MethodPost, "/vouchers", payload)
	withClaims(c, models.RoleStudentHead)

	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Data)
}

func TestVoucherHandlerCreateRequiresClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewVoucherHandler(&voucherServiceMock{})

	payload, _ := json.Marshal(dto.CreateVoucherRequest{Title: "x", ClubName: "y", EventDate: "2026-01-01"})
	c, w := newGinContext(http.MethodPost, "/vouchers", payload)

	handler.Create(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVoucherHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewVoucherHandler(&voucherServiceMock{})

	c, w := newGinContext(http.MethodPost, "/vouchers", []byte("{not-json"))
	withClaims(c, models.RoleStudentHead)

	handler.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVoucherHandlerListParsesQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &voucherServiceMock{
		list: &service.VoucherList{
			Items:      []models.Voucher{{ID: "v-1"}},
			Pagination: models.Pagination{Page: 2, PageSize: 10, TotalCount: 11},
		},
	}
	handler := NewVoucherHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/vouchers?status=passed,rejected&page=2&page_size=10&club_name=Robotics", nil)
	withClaims(c, models.RoleDeanSW)

	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []models.VoucherStatus{models.VoucherStatusPassed, models.VoucherStatusRejected}, mockSvc.gotQuery.Status)
	require.Equal(t, 2, mockSvc.gotQuery.Page)
	require.Equal(t, 10, mockSvc.gotQuery.PageSize)
	require.Equal(t, "Robotics", mockSvc.gotQuery.ClubName)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Pagination)
	require.Equal(t, 11, envelope.Pagination.TotalCount)
}

func TestVoucherHandlerApprovePassesComment(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &voucherServiceMock{
		voucher: &models.Voucher{ID: "v-1", Status: models.VoucherStatusPendingDeanSWO},
	}
	handler := NewVoucherHandler(mockSvc)

	payload, _ := json.Marshal(dto.DecisionRequest{Comment: "approved for budget"})
	c, w := newGinContext(http.MethodPost, "/vouchers/v-1/approve", payload)
	c.Params = gin.Params{{Key: "id", Value: "v-1"}}
	withClaims(c, models.RoleFaculty)

	handler.Approve(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "approved for budget", mockSvc.gotComment)
}

func TestVoucherHandlerApproveWithoutBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &voucherServiceMock{
		voucher: &models.Voucher{ID: "v-1"},
	}
	handler := NewVoucherHandler(mockSvc)

	c, w := newGinContext(http.MethodPost, "/vouchers/v-1/approve", nil)
	c.Params = gin.Params{{Key: "id", Value: "v-1"}}
	withClaims(c, models.RoleFaculty)

	handler.Approve(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, mockSvc.gotComment)
}

func TestVoucherHandlerRejectSurfacesConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &voucherServiceMock{
		err: appErrors.Clone(appErrors.ErrConflict, "voucher was modified concurrently"),
	}
	handler := NewVoucherHandler(mockSvc)

	payload, _ := json.Marshal(dto.DecisionRequest{Comment: "too expensive"})
	c, w := newGinContext(http.MethodPost, "/vouchers/v-1/reject", payload)
	c.Params = gin.Params{{Key: "id", Value: "v-1"}}
	withClaims(c, models.RoleFaculty)

	handler.Reject(c)

	require.Equal(t, http.StatusConflict, w.Code)
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	require.Equal(t, appErrors.ErrConflict.Code, envelope.Error.Code)
}

func TestVoucherHandlerExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &voucherServiceMock{csv: []byte("voucher_number,title\nSWO-2026-1,Tech Fest\n")}
	handler := NewVoucherHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/vouchers/export", nil)
	withClaims(c, models.RoleDeanSW)

	handler.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	require.Contains(t, w.Body.String(), "SWO-2026-1")
}

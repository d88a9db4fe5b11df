package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	contractdomain "github.com/smallbiznis/rentflow/internal/contract/domain"
	"github.com/smallbiznis/rentflow/pkg/db/pagination"
)

type createContractRequest struct {
	RoomID      string                          `json:"room_id"`
	TenantName  string                          `json:"tenant_name"`
	MonthlyRent decimal.Decimal                 `json:"monthly_rent"`
	StartDate   string                          `json:"start_date"`
	EndDate     string                          `json:"end_date"`
	Services    []contractdomain.ServiceRequest `json:"services"`
	Metadata    map[string]interface{}          `json:"metadata"`
}

func (s *Server) CreateContract(c *gin.Context) {
	var req createContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	startDate, err := parseOptionalDate(req.StartDate)
	if err != nil || startDate == nil {
		AbortWithError(c, newValidationError("start_date", "invalid_start_date", "start_date must be a date"))
		return
	}
	endDate, err := parseOptionalDate(req.EndDate)
	if err != nil {
		AbortWithError(c, newValidationError("end_date", "invalid_end_date", "end_date must be a date"))
		return
	}

	resp, err := s.contractSvc.Create(c.Request.Context(), contractdomain.CreateRequest{
		RoomID:      strings.TrimSpace(req.RoomID),
		TenantName:  strings.TrimSpace(req.TenantName),
		MonthlyRent: req.MonthlyRent,
		StartDate:   *startDate,
		EndDate:     endDate,
		Services:    req.Services,
		Metadata:    req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("contract_id", resp.ID.String())
	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListContracts(c *gin.Context) {
	var query struct {
		pagination.Pagination
		RoomID string `form:"room_id"`
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.contractSvc.List(c.Request.Context(), contractdomain.ListRequest{
		RoomID:    strings.TrimSpace(query.RoomID),
		Status:    strings.TrimSpace(query.Status),
		PageToken: query.PageToken,
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Contracts, "page_info": resp.PageInfo})
}

func (s *Server) GetContractByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	c.Set("contract_id", id)

	resp, err := s.contractSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) TerminateContract(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	c.Set("contract_id", id)

	resp, err := s.contractSvc.Terminate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

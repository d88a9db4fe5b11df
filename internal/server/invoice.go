package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/rentflow/internal/invoice/domain"
	invoicingdomain "github.com/smallbiznis/rentflow/internal/invoicing/domain"
	"github.com/smallbiznis/rentflow/pkg/db/pagination"
)

// invoiceRequest is the body shared by preview, create and update.
type invoiceRequest struct {
	ContractID       string                         `json:"contract_id"`
	Month            int                            `json:"month"`
	Year             int                            `json:"year"`
	ActualDays       *int                           `json:"actual_days"`
	InvoiceDate      string                         `json:"invoice_date"`
	PaidAmount       *decimal.Decimal               `json:"paid_amount"`
	Services         []invoicingdomain.ServiceInput `json:"services"`
	ExcludeInvoiceID string                         `json:"exclude_invoice_id"`
	DraftKey         string                         `json:"draft_key"`
	Metadata         map[string]any                 `json:"metadata"`
}

func bindInvoiceRequest(c *gin.Context) (invoiceRequest, *time.Time, bool) {
	var req invoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return req, nil, false
	}
	invoiceDate, err := parseOptionalDate(req.InvoiceDate)
	if err != nil {
		AbortWithError(c, newValidationError("invoice_date", "invalid_invoice_date", "invoice_date must be a date"))
		return req, nil, false
	}
	req.ContractID = strings.TrimSpace(req.ContractID)
	return req, invoiceDate, true
}

func (r invoiceRequest) saveRequest(invoiceDate *time.Time) invoicedomain.SaveRequest {
	return invoicedomain.SaveRequest{
		ContractID:  r.ContractID,
		Month:       r.Month,
		Year:        r.Year,
		ActualDays:  r.ActualDays,
		InvoiceDate: invoiceDate,
		PaidAmount:  r.PaidAmount,
		Services:    r.Services,
		Metadata:    r.Metadata,
	}
}

// PreviewInvoice computes totals for the current form state without
// persisting anything.
func (s *Server) PreviewInvoice(c *gin.Context) {
	req, invoiceDate, ok := bindInvoiceRequest(c)
	if !ok {
		return
	}

	draftKey := strings.TrimSpace(req.DraftKey)
	if draftKey == "" {
		draftKey = strings.TrimSpace(c.GetHeader(HeaderDraftKey))
	}

	c.Set("contract_id", req.ContractID)
	resp, err := s.invoicingSvc.Compute(c.Request.Context(), invoicingdomain.ComputeRequest{
		ContractID:       req.ContractID,
		Month:            req.Month,
		Year:             req.Year,
		ActualDays:       req.ActualDays,
		InvoiceDate:      invoiceDate,
		PaidAmount:       req.PaidAmount,
		Services:         req.Services,
		ExcludeInvoiceID: strings.TrimSpace(req.ExcludeInvoiceID),
		DraftKey:         draftKey,
		Trigger:          invoicingdomain.TriggerPreview,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateInvoice(c *gin.Context) {
	req, invoiceDate, ok := bindInvoiceRequest(c)
	if !ok {
		return
	}

	c.Set("contract_id", req.ContractID)
	resp, err := s.invoiceSvc.Create(c.Request.Context(), req.saveRequest(invoiceDate))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("invoice_id", resp.ID.String())
	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) UpdateInvoice(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	c.Set("invoice_id", id)

	req, invoiceDate, ok := bindInvoiceRequest(c)
	if !ok {
		return
	}

	resp, err := s.invoiceSvc.Update(c.Request.Context(), id, req.saveRequest(invoiceDate))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("contract_id", resp.ContractID.String())
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RecordInvoicePayment(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	c.Set("invoice_id", id)

	var req invoicedomain.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.RecordPayment(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListInvoices(c *gin.Context) {
	var query struct {
		pagination.Pagination
		ContractID string `form:"contract_id"`
		Status     string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), invoicedomain.ListRequest{
		ContractID: strings.TrimSpace(query.ContractID),
		Status:     strings.TrimSpace(query.Status),
		PageToken:  query.PageToken,
		PageSize:   query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Invoices, "page_info": resp.PageInfo})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	c.Set("invoice_id", id)

	item, err := s.invoiceSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

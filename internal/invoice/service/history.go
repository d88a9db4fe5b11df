package service

import (
	"context"

	"github.com/samber/lo"
	"github.com/smallbiznis/rentflow/internal/invoice/domain"
	"github.com/smallbiznis/rentflow/internal/invoicing/calc"
	invoicingdomain "github.com/smallbiznis/rentflow/internal/invoicing/domain"
	"github.com/smallbiznis/rentflow/internal/orgcontext"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type HistoryParams struct {
	fx.In

	DB   *gorm.DB
	Repo domain.Repository
}

// History lists saved invoices of a contract for debt carry-forward.
type History struct {
	db   *gorm.DB
	repo domain.Repository
}

func NewHistory(p HistoryParams) invoicingdomain.InvoiceHistory {
	return &History{db: p.DB, repo: p.Repo}
}

func (h *History) ListPriorInvoices(ctx context.Context, contractID string) ([]calc.PriorInvoice, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	id, err := parseID(contractID)
	if err != nil {
		return nil, domain.ErrInvalidContract
	}

	invoices, err := h.repo.ListByContract(ctx, h.db, orgID, id)
	if err != nil {
		return nil, err
	}
	return lo.Map(invoices, func(inv domain.Invoice, _ int) calc.PriorInvoice {
		remaining := inv.RemainingAmount
		return calc.PriorInvoice{
			ID:              inv.ID.String(),
			InvoiceDate:     inv.InvoiceDate,
			Status:          string(inv.Status),
			RemainingAmount: &remaining,
		}
	}), nil
}


package handler

import (
	"time"

	"github.com/officeflow/procurement-service/internal/repository"
)

// Response DTOs. Money fields serialize as fixed two-decimal strings so
// clients never see float artifacts.

type requestResponse struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	DepartmentID string           `json:"department_id"`
	RequesterID  string           `json:"requester_id"`
	Status       string           `json:"status"`
	TotalAmount  string           `json:"total_amount"`
	Lines        []requestLineDTO `json:"lines"`
	Approvals    []approvalDTO    `json:"approvals"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

type requestLineDTO struct {
	ID        string `json:"id"`
	ItemID    string `json:"item_id"`
	Quantity  int64  `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type approvalDTO struct {
	ID           string     `json:"id"`
	ApproverID   *string    `json:"approver_id"`
	RequiredRole string     `json:"required_role"`
	Level        int        `json:"level"`
	Status       string     `json:"status"`
	Comments     *string    `json:"comments,omitempty"`
	DecidedAt    *time.Time `json:"decided_at,omitempty"`
}

func toRequestResponse(req *repository.Request) *requestResponse {
	out := &requestResponse{
		ID:           req.ID,
		Title:        req.Title,
		DepartmentID: req.DepartmentID,
		RequesterID:  req.RequesterID,
		Status:       string(req.Status),
		TotalAmount:  req.TotalAmount.StringFixed(2),
		Lines:        make([]requestLineDTO, 0, len(req.Lines)),
		Approvals:    make([]approvalDTO, 0, len(req.Approvals)),
		CreatedAt:    req.CreatedAt,
		UpdatedAt:    req.UpdatedAt,
	}
	for _, line := range req.Lines {
		out.Lines = append(out.Lines, requestLineDTO{
			ID:        line.ID,
			ItemID:    line.ItemID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.StringFixed(2),
			LineTotal: line.LineTotal.StringFixed(2),
		})
	}
	for _, a := range req.Approvals {
		out.Approvals = append(out.Approvals, approvalDTO{
			ID:           a.ID,
			ApproverID:   a.ApproverID,
			RequiredRole: string(a.RequiredRole),
			Level:        a.Level,
			Status:       string(a.Status),
			Comments:     a.Comments,
			DecidedAt:    a.DecidedAt,
		})
	}
	return out
}

type orderResponse struct {
	ID           string         `json:"id"`
	OrderNumber  string         `json:"order_number"`
	SupplierID   string         `json:"supplier_id"`
	Status       string         `json:"status"`
	TotalAmount  string         `json:"total_amount"`
	OrderDate    time.Time      `json:"order_date"`
	ExpectedDate *time.Time     `json:"expected_date,omitempty"`
	ReceivedDate *time.Time     `json:"received_date,omitempty"`
	Notes        *string        `json:"notes,omitempty"`
	Lines        []orderLineDTO `json:"lines"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type orderLineDTO struct {
	ID        string `json:"id"`
	ItemID    string `json:"item_id"`
	Quantity  int64  `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

func toOrderResponse(po *repository.PurchaseOrder) *orderResponse {
	out := &orderResponse{
		ID:           po.ID,
		OrderNumber:  po.OrderNumber,
		SupplierID:   po.SupplierID,
		Status:       string(po.Status),
		TotalAmount:  po.TotalAmount.StringFixed(2),
		OrderDate:    po.OrderDate,
		ExpectedDate: po.ExpectedDate,
		ReceivedDate: po.ReceivedDate,
		Notes:        po.Notes,
		Lines:        make([]orderLineDTO, 0, len(po.Lines)),
		CreatedAt:    po.CreatedAt,
		UpdatedAt:    po.UpdatedAt,
	}
	for _, line := range po.Lines {
		out.Lines = append(out.Lines, orderLineDTO{
			ID:        line.ID,
			ItemID:    line.ItemID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.StringFixed(2),
			LineTotal: line.LineTotal.StringFixed(2),
		})
	}
	return out
}

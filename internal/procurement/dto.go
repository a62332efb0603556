package procurement

import "github.com/shopspring/decimal"

// RunRequest is the payload of one pull run submitted by the upstream runner.
type RunRequest struct {
	RunID        string             `json:"run_id" validate:"omitempty,uuid"`
	Procurements []ProcurementInput `json:"procurements" validate:"required,min=1,dive"`
}

// ProcurementInput references the master data of one procurement.
type ProcurementInput struct {
	ProductID      int64           `json:"product_id" validate:"required,gt=0"`
	Qty            decimal.Decimal `json:"qty"`
	UoMID          int64           `json:"uom_id" validate:"required,gt=0"`
	DestLocationID int64           `json:"location_dest_id" validate:"required,gt=0"`
	CompanyID      int64           `json:"company_id" validate:"required,gt=0"`
	RuleID         int64           `json:"rule_id" validate:"required,gt=0"`
	Origin         string          `json:"origin,omitempty" validate:"max=255"`
	GroupID        int64           `json:"group_id,omitempty" validate:"gte=0"`
	PartnerID      int64           `json:"partner_id,omitempty" validate:"gte=0"`
	Name           string          `json:"name,omitempty" validate:"max=2000"`
}

package procurement

import "strings"

// maxMoveNameLen bounds move names to what the moves table stores.
const maxMoveNameLen = 2000

// MoveBuilder produces the values of the move planned for a procurement.
// The resolver sets ProcureMethod on the result.
type MoveBuilder interface {
	Build(proc Procurement) (ResolvedMove, error)
}

// DefaultBuilder derives move values from the request and its rule.
type DefaultBuilder struct{}

// Build implements MoveBuilder.
func (DefaultBuilder) Build(proc Procurement) (ResolvedMove, error) {
	req, rule := proc.Request, proc.Rule
	if req.Product.ID == 0 {
		return ResolvedMove{}, ErrValidation
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = req.Product.DisplayName()
	}
	if runes := []rune(name); len(runes) > maxMoveNameLen {
		name = string(runes[:maxMoveNameLen])
	}
	partner := rule.PartnerAddressID
	if partner == 0 {
		partner = req.PartnerID
	}
	return ResolvedMove{
		Name:           name,
		ProductID:      req.Product.ID,
		Qty:            req.Qty,
		UoMID:          req.UoM.ID,
		LocationID:     rule.SourceLocationID,
		LocationDestID: req.DestLocationID,
		CompanyID:      req.CompanyID,
		PartnerID:      partner,
		PickingTypeID:  rule.PickingTypeID,
		Origin:         req.Origin,
		GroupID:        groupFor(req, rule),
		RuleID:         rule.ID,
		ProcureMethod:  rule.ProcureMethod,
	}, nil
}

func groupFor(req Request, rule Rule) int64 {
	switch rule.GroupPropagation {
	case GroupFixed:
		return rule.FixedGroupID
	case GroupNone:
		return 0
	default:
		return req.GroupID
	}
}

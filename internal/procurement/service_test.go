package procurement

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/replenishment/internal/inventory"
	"github.com/odyssey-erp/replenishment/internal/uom"
)

type memoryCatalog struct {
	products map[inventory.ProductID]Product
	units    map[int64]uom.Unit
	rules    map[int64]Rule
	err      error
	asked    [][]int64
}

func newMemoryCatalog() *memoryCatalog {
	return &memoryCatalog{
		products: map[inventory.ProductID]Product{widget.ID: widget, gadget.ID: gadget},
		units:    map[int64]uom.Unit{unitUoM.ID: unitUoM, dozenUoM.ID: dozenUoM},
		rules:    map[int64]Rule{7: seoRule()},
	}
}

func (m *memoryCatalog) Products(_ context.Context, ids []int64) (map[inventory.ProductID]Product, error) {
	m.asked = append(m.asked, ids)
	if m.err != nil {
		return nil, m.err
	}
	return m.products, nil
}

func (m *memoryCatalog) Units(_ context.Context, ids []int64) (map[int64]uom.Unit, error) {
	m.asked = append(m.asked, ids)
	return m.units, nil
}

func (m *memoryCatalog) Rules(_ context.Context, ids []int64) (map[int64]Rule, error) {
	m.asked = append(m.asked, ids)
	return m.rules, nil
}

func input(product int64, q string, unit int64) ProcurementInput {
	return ProcurementInput{ProductID: product, Qty: qty(q), UoMID: unit, DestLocationID: 5, CompanyID: 1, RuleID: 7, Origin: "SO042", GroupID: 9}
}

func TestAssembleKeepsInputOrder(t *testing.T) {
	catalog := newMemoryCatalog()
	svc := NewService(catalog)

	procs, err := svc.Assemble(context.Background(), []ProcurementInput{
		input(200, "1", 1),
		input(100, "2", 2),
		input(200, "3", 1),
	})
	require.NoError(t, err)
	require.Len(t, procs, 3)
	require.Equal(t, gadget.ID, procs[0].Request.Product.ID)
	require.Equal(t, widget.ID, procs[1].Request.Product.ID)
	require.Equal(t, dozenUoM, procs[1].Request.UoM)
	require.Equal(t, inventory.LocationID(5), procs[2].Request.DestLocationID)
	require.Equal(t, "SO042", procs[2].Request.Origin)
	require.Equal(t, stockLoc, procs[2].Rule.SourceLocationID)

	require.Equal(t, []int64{100, 200}, catalog.asked[0])
	require.Equal(t, []int64{1, 2}, catalog.asked[1])
	require.Equal(t, []int64{7}, catalog.asked[2])
}

func TestAssembleRejectsUnknownMasterData(t *testing.T) {
	svc := NewService(newMemoryCatalog())

	_, err := svc.Assemble(context.Background(), []ProcurementInput{input(100, "1", 1), input(300, "1", 1)})
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "line 2: product 300")

	bad := input(100, "1", 1)
	bad.RuleID = 8
	_, err = svc.Assemble(context.Background(), []ProcurementInput{bad})
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "rule 8")
}

func TestAssembleWrapsCatalogErrors(t *testing.T) {
	catalog := newMemoryCatalog()
	catalog.err = errors.New("connection reset")

	_, err := NewService(catalog).Assemble(context.Background(), []ProcurementInput{input(100, "1", 1)})
	require.ErrorIs(t, err, catalog.err)
	require.Contains(t, err.Error(), "load products")
}

func TestAssembleEmptyInputSkipsCatalog(t *testing.T) {
	catalog := newMemoryCatalog()
	procs, err := NewService(catalog).Assemble(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, procs)
	require.Empty(t, catalog.asked)
}

package picking

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/replenishment/internal/procurement"
)

func mv(company int64, name string, partner int64) procurement.ResolvedMove {
	return procurement.ResolvedMove{
		Name:           name,
		ProductID:      1,
		Qty:            decimal.NewFromInt(1),
		UoMID:          1,
		LocationID:     8,
		LocationDestID: 5,
		CompanyID:      company,
		PartnerID:      partner,
		PickingTypeID:  2,
		Origin:         "SO001",
		GroupID:        42,
		ProcureMethod:  procurement.MakeToStock,
	}
}

func names(b Batch) []string {
	out := make([]string, len(b.Moves))
	for i, m := range b.Moves {
		out[i] = m.Name
	}
	return out
}

func TestNamePrefix(t *testing.T) {
	assert.Equal(t, "WidgetA", NamePrefix("WidgetA blue"))
	assert.Equal(t, "WidgetA", NamePrefix("WidgetA"))
	assert.Equal(t, "", NamePrefix(" leading space"))
	assert.Equal(t, "", NamePrefix(""))
	assert.Equal(t, "A-b", NamePrefix("A-b c d"))
}

func TestGroupByCompanyAndPrefix(t *testing.T) {
	moves := []procurement.ResolvedMove{
		mv(1, "WidgetA red", 10),
		mv(2, "WidgetA green", 20),
		mv(1, "Gadget", 11),
		mv(1, "WidgetA blue", 12),
	}

	batches, err := NewGrouper("").Group(moves)
	require.NoError(t, err)
	require.Len(t, batches, 3)

	assert.Equal(t, int64(1), batches[0].CompanyID)
	assert.Equal(t, "Gadget", batches[0].Prefix)
	assert.Equal(t, []string{"Gadget"}, names(batches[0]))

	assert.Equal(t, int64(1), batches[1].CompanyID)
	assert.Equal(t, "WidgetA", batches[1].Prefix)
	assert.Equal(t, []string{"WidgetA blue", "WidgetA red"}, names(batches[1]))

	assert.Equal(t, int64(2), batches[2].CompanyID)
	assert.Equal(t, []string{"WidgetA green"}, names(batches[2]))
}

func TestGroupPlacesEveryMoveOnce(t *testing.T) {
	moves := []procurement.ResolvedMove{
		mv(1, "B x", 1), mv(1, "A y", 1), mv(3, "A z", 1), mv(1, "B", 1), mv(1, "A y", 1), mv(3, "C", 1),
	}
	batches, err := NewGrouper(MergeLast).Group(moves)
	require.NoError(t, err)

	total := 0
	for _, b := range batches {
		total += len(b.Moves)
		for _, m := range b.Moves {
			assert.Equal(t, b.CompanyID, m.CompanyID)
			assert.Equal(t, b.Prefix, NamePrefix(m.Name))
		}
	}
	assert.Equal(t, len(moves), total)
	assert.Equal(t, "A y", moves[1].Name, "input must not be reordered")
}

func TestGroupEmpty(t *testing.T) {
	batches, err := NewGrouper(MergeLast).Group(nil)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestMergePoliciesFollowProcessedOrder(t *testing.T) {
	// "Widget a" sorts first but is resolved last.
	moves := []procurement.ResolvedMove{mv(1, "Widget b", 10), mv(1, "Widget a", 20)}

	last, err := NewGrouper(MergeLast).Group(moves)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, int64(20), last[0].Header.PartnerID)
	assert.Equal(t, []string{"Widget a", "Widget b"}, names(last[0]))

	first, err := NewGrouper(MergeFirst).Group(moves)
	require.NoError(t, err)
	assert.Equal(t, int64(10), first[0].Header.PartnerID)
	assert.Equal(t, []string{"Widget a", "Widget b"}, names(first[0]))

	_, err = NewGrouper(MergeAssertEqual).Group(moves)
	require.ErrorIs(t, err, ErrHeaderConflict)
	var conflict *HeaderConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "Widget a", conflict.Move)
	assert.Equal(t, int64(10), conflict.Want.PartnerID)
	assert.Equal(t, int64(20), conflict.Got.PartnerID)
}

func TestMergeLastAcrossInterleavedCompanies(t *testing.T) {
	moves := []procurement.ResolvedMove{
		mv(1, "Gear c", 1),
		mv(2, "Gear x", 7),
		mv(1, "Gear a", 2),
		mv(1, "Gear b", 3),
	}
	batches, err := NewGrouper("").Group(moves)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"Gear a", "Gear b", "Gear c"}, names(batches[0]))
	assert.Equal(t, int64(3), batches[0].Header.PartnerID)
	assert.Equal(t, int64(7), batches[1].Header.PartnerID)
	assert.Equal(t, "Gear c", moves[0].Name)
}

func TestAssertEqualAcceptsMatchingHeaders(t *testing.T) {
	moves := []procurement.ResolvedMove{mv(1, "Widget b", 10), mv(1, "Widget a", 10)}
	batches, err := NewGrouper(MergeAssertEqual).Group(moves)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, int64(10), batches[0].Header.PartnerID)
}

func TestParseMergePolicy(t *testing.T) {
	p, err := ParseMergePolicy("")
	require.NoError(t, err)
	assert.Equal(t, MergeLast, p)

	p, err = ParseMergePolicy("assert-equal")
	require.NoError(t, err)
	assert.Equal(t, MergeAssertEqual, p)

	_, err = ParseMergePolicy("newest")
	require.ErrorIs(t, err, ErrUnknownMergePolicy)
}

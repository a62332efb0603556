package picking

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/odyssey-erp/replenishment/internal/procurement"
)

// ErrHeaderConflict indicates moves of one batch disagree on header fields.
var ErrHeaderConflict = errors.New("picking: conflicting batch header")

// HeaderConflictError reports the first disagreeing move of a batch under
// MergeAssertEqual.
type HeaderConflictError struct {
	CompanyID int64
	Prefix    string
	Move      string
	Want      Header
	Got       Header
}

func (e *HeaderConflictError) Error() string {
	return fmt.Sprintf("picking: batch %q of company %d: move %q header %+v differs from %+v",
		e.Prefix, e.CompanyID, e.Move, e.Got, e.Want)
}

func (e *HeaderConflictError) Unwrap() error {
	return ErrHeaderConflict
}

// NamePrefix returns the batching key of a move name: the text before the
// first space, or the whole name when it has none.
func NamePrefix(name string) string {
	prefix, _, _ := strings.Cut(name, " ")
	return prefix
}

// Grouper splits resolved moves into picking batches.
type Grouper struct {
	policy MergePolicy
}

// NewGrouper builds a Grouper. An empty policy selects MergeLast.
func NewGrouper(policy MergePolicy) *Grouper {
	if policy == "" {
		policy = MergeLast
	}
	return &Grouper{policy: policy}
}

// Policy returns the header merge policy in use.
func (g *Grouper) Policy() MergePolicy {
	return g.policy
}

// Group partitions moves by company in first-seen order, sorts each company's
// moves by name and cuts them into runs sharing a name prefix. Every move
// lands in exactly one batch. Batch moves keep the name order; the header is
// picked by the position of each move in the input.
func (g *Grouper) Group(moves []procurement.ResolvedMove) ([]Batch, error) {
	var companies []int64
	byCompany := make(map[int64][]int)
	for i, m := range moves {
		if _, seen := byCompany[m.CompanyID]; !seen {
			companies = append(companies, m.CompanyID)
		}
		byCompany[m.CompanyID] = append(byCompany[m.CompanyID], i)
	}

	var batches []Batch
	for _, company := range companies {
		order := byCompany[company]
		slices.SortStableFunc(order, func(a, b int) int {
			return strings.Compare(moves[a].Name, moves[b].Name)
		})
		for start := 0; start < len(order); {
			prefix := NamePrefix(moves[order[start]].Name)
			end := start + 1
			for end < len(order) && NamePrefix(moves[order[end]].Name) == prefix {
				end++
			}
			batch := Batch{CompanyID: company, Prefix: prefix, Moves: make([]procurement.ResolvedMove, 0, end-start)}
			for _, i := range order[start:end] {
				batch.Moves = append(batch.Moves, moves[i])
			}
			header, err := g.merge(batch, moves, slices.Sorted(slices.Values(order[start:end])))
			if err != nil {
				return nil, err
			}
			batch.Header = header
			batches = append(batches, batch)
			start = end
		}
	}
	return batches, nil
}

// merge derives the batch header from its moves, visited by input position.
func (g *Grouper) merge(batch Batch, moves []procurement.ResolvedMove, positions []int) (Header, error) {
	first := HeaderOf(moves[positions[0]])
	switch g.policy {
	case MergeFirst:
		return first, nil
	case MergeAssertEqual:
		for _, i := range positions[1:] {
			if h := HeaderOf(moves[i]); h != first {
				return Header{}, &HeaderConflictError{
					CompanyID: batch.CompanyID,
					Prefix:    batch.Prefix,
					Move:      moves[i].Name,
					Want:      first,
					Got:       h,
				}
			}
		}
		return first, nil
	case MergeLast:
		return HeaderOf(moves[positions[len(positions)-1]]), nil
	default:
		return Header{}, fmt.Errorf("%w: %q", ErrUnknownMergePolicy, g.policy)
	}
}

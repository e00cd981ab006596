package savings

import (
	"context"
	"fmt"

	"github.com/rxmetrics/rxmetrics/internal/domain/prescribing"
)

// Service is the read side over persisted savings. FloorAtZero is a display
// policy: stored rows always keep their sign, the floor is applied only on
// the way out.
type Service struct {
	repo        Repository
	floorAtZero bool
}

func NewService(repo Repository, floorAtZero bool) *Service {
	return &Service{repo: repo, floorAtZero: floorAtZero}
}

// OrgSavings returns one organization's savings rows for a month.
func (s *Service) OrgSavings(ctx context.Context, orgCode string, period prescribing.Period) ([]*Record, error) {
	records, err := s.repo.ListByOrg(ctx, orgCode, period)
	if err != nil {
		return nil, fmt.Errorf("list savings for org %s: %w", orgCode, err)
	}
	return s.present(records), nil
}

// PresentationSavings returns every organization's row for one presentation
// and month, ordered by organization code.
func (s *Service) PresentationSavings(ctx context.Context, presentationCode string, period prescribing.Period) ([]*Record, error) {
	records, err := s.repo.ListByPresentation(ctx, presentationCode, period)
	if err != nil {
		return nil, fmt.Errorf("list savings for presentation %s: %w", presentationCode, err)
	}
	return s.present(records), nil
}

// TotalForOrg sums an organization's possible savings for a month, counting
// only positive opportunities. Being below the benchmark on one drug does not
// offset overspend on another.
func (s *Service) TotalForOrg(ctx context.Context, orgCode string, period prescribing.Period) (float64, error) {
	records, err := s.repo.ListByOrg(ctx, orgCode, period)
	if err != nil {
		return 0, fmt.Errorf("list savings for org %s: %w", orgCode, err)
	}
	var total float64
	for _, rec := range records {
		if rec.PossibleSavings > 0 {
			total += rec.PossibleSavings
		}
	}
	return total, nil
}

func (s *Service) present(records []*Record) []*Record {
	if !s.floorAtZero {
		return records
	}
	out := make([]*Record, len(records))
	for i, rec := range records {
		if rec.PossibleSavings >= 0 {
			out[i] = rec
			continue
		}
		floored := *rec
		floored.PossibleSavings = 0
		out[i] = &floored
	}
	return out
}

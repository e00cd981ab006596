package measure

import (
	"context"

	"github.com/rxmetrics/rxmetrics/internal/domain/organization"
	"github.com/rxmetrics/rxmetrics/internal/domain/prescribing"
)

type Service struct {
	repo ValueRepository
}

func NewService(repo ValueRepository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetValue(ctx context.Context, measureID, orgCode string, period prescribing.Period) (*Value, error) {
	return s.repo.GetValue(ctx, measureID, orgCode, period)
}

// PopulationValues returns every organization's row for one measure and
// month, the shape chart consumers read decile bands from.
func (s *Service) PopulationValues(ctx context.Context, measureID string, period prescribing.Period) ([]*Value, error) {
	return s.repo.ListByMeasurePeriod(ctx, measureID, period)
}

// OrganizationSeries returns one organization's values across all computed
// months for a measure.
func (s *Service) OrganizationSeries(ctx context.Context, measureID, orgCode string) ([]*Value, error) {
	return s.repo.ListByOrg(ctx, measureID, orgCode)
}

func (s *Service) GetGlobal(ctx context.Context, measureID string, period prescribing.Period, orgType organization.OrgType) (*Global, error) {
	return s.repo.GetGlobal(ctx, measureID, period, orgType)
}

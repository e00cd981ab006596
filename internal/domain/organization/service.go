package organization

import (
	"context"
	"fmt"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// LoadHierarchy reads every organization and builds the validated tree.
func (s *Service) LoadHierarchy(ctx context.Context) (*Hierarchy, error) {
	nodes, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	h, err := NewHierarchy(nodes)
	if err != nil {
		return nil, fmt.Errorf("build organization hierarchy: %w", err)
	}
	return h, nil
}

func (s *Service) GetOrganization(ctx context.Context, code string) (*Node, error) {
	return s.repo.GetByCode(ctx, code)
}

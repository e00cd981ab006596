package organization

import (
	"context"
)

type Repository interface {
	List(ctx context.Context) ([]*Node, error)
	GetByCode(ctx context.Context, code string) (*Node, error)
}

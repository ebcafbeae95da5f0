package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	domain "github.com/vinylyard/api/internal/domain"
	"github.com/vinylyard/api/internal/repositories"
)

type preorderRepository struct {
	db *sql.DB
	d  dialect
}

func (r *preorderRepository) FindByExternalVariationID(ctx context.Context, variationID string) (domain.Preorder, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var (
		p       domain.Preorder
		release sql.NullTime
	)
	query := "SELECT external_variation_id, release_date, quantity, max_quantity, active FROM preorders WHERE external_variation_id = ?"
	err := r.db.QueryRowContext(ctx, r.d.rebind(query), strings.TrimSpace(variationID)).
		Scan(&p.ExternalVariationID, &release, &p.Quantity, &p.MaxQuantity, &p.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Preorder{}, repositories.NewProductError("preorders.get", repositories.ProductErrorNotFound, nil)
	}
	if err != nil {
		return domain.Preorder{}, repositories.NewProductError("preorders.get", repositories.ProductErrorUnavailable, err)
	}
	p.ReleaseDate = timePtr(release)
	return p, nil
}

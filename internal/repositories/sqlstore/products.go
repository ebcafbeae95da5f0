package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/vinylyard/api/internal/domain"
	"github.com/vinylyard/api/internal/repositories"
)

const productColumns = `id, external_variation_id, slug, source, title, artist, price, currency, description, images,
	product_type, genre, mood, merch_category, size, color, is_visible, stock_quantity, stock_status,
	available_at_location, is_preorder, preorder_release_date, preorder_quantity, preorder_max_quantity,
	created_at, updated_at, last_synced_at, external_updated_at`

type productRepository struct {
	db *sql.DB
	d  dialect
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *productRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	return r.findOne(ctx, "products.get", "SELECT "+productColumns+" FROM products WHERE id = ?", strings.TrimSpace(productID))
}

func (r *productRepository) FindByExternalVariationID(ctx context.Context, variationID string) (domain.Product, error) {
	return r.findOne(ctx, "products.by_variation",
		"SELECT "+productColumns+" FROM products WHERE external_variation_id = ?", strings.TrimSpace(variationID))
}

func (r *productRepository) FindCatalogByTitle(ctx context.Context, title string, exclude []string) (domain.Product, error) {
	list, err := r.d.listArg(exclude)
	if err != nil {
		return domain.Product{}, repositories.NewProductError("products.by_title", repositories.ProductErrorUnknown, err)
	}
	query := "SELECT " + productColumns + ` FROM products
		WHERE title = ? AND source = ?
		AND (external_variation_id IS NULL OR ` + r.d.notIn("external_variation_id") + `)
		ORDER BY created_at, id LIMIT 1`
	return r.findOne(ctx, "products.by_title", query, title, string(domain.ProductSourceCatalog), list)
}

func (r *productRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var exists bool
	err := r.db.QueryRowContext(ctx, r.d.rebind("SELECT EXISTS (SELECT 1 FROM products WHERE slug = ?)"), slug).Scan(&exists)
	if err != nil {
		return false, r.wrap("products.slug_exists", err)
	}
	return exists, nil
}

func (r *productRepository) Insert(ctx context.Context, p domain.Product) error {
	args, err := productArgs(p)
	if err != nil {
		return repositories.NewProductError("products.insert", repositories.ProductErrorUnknown, err)
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := "INSERT INTO products (" + productColumns + ") VALUES (" + placeholders(len(args)) + ")"
	if _, err := r.db.ExecContext(ctx, r.d.rebind(query), args...); err != nil {
		return r.wrap("products.insert", err)
	}
	return nil
}

func (r *productRepository) Update(ctx context.Context, p domain.Product) error {
	args, err := productArgs(p)
	if err != nil {
		return repositories.NewProductError("products.update", repositories.ProductErrorUnknown, err)
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	// Every column except id is rewritten; id moves to the WHERE clause.
	columns := strings.Split(productColumns, ",")[1:]
	sets := make([]string, len(columns))
	for i, col := range columns {
		sets[i] = strings.TrimSpace(col) + " = ?"
	}
	query := "UPDATE products SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	res, err := r.db.ExecContext(ctx, r.d.rebind(query), append(args[1:], args[0])...)
	if err != nil {
		return r.wrap("products.update", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repositories.NewProductError("products.update", repositories.ProductErrorNotFound, nil)
	}
	return nil
}

func (r *productRepository) ListVisible(ctx context.Context) ([]domain.Product, error) {
	visible := true
	return r.List(ctx, repositories.ProductListFilter{Visible: &visible})
}

func (r *productRepository) List(ctx context.Context, filter repositories.ProductListFilter) ([]domain.Product, error) {
	var (
		where []string
		args  []any
	)
	if filter.Visible != nil {
		where = append(where, "is_visible = ?")
		args = append(args, *filter.Visible)
	}
	if filter.Source != "" {
		where = append(where, "source = ?")
		args = append(args, string(filter.Source))
	}
	query := "SELECT " + productColumns + " FROM products"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, r.d.rebind(query), args...)
	if err != nil {
		return nil, r.wrap("products.list", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, r.wrap("products.list", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, r.wrap("products.list", err)
	}
	return products, nil
}

func (r *productRepository) HideMissing(ctx context.Context, keep []string, now time.Time) (int, error) {
	list, err := r.d.listArg(keep)
	if err != nil {
		return 0, repositories.NewProductError("products.hide_missing", repositories.ProductErrorUnknown, err)
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `UPDATE products SET is_visible = ?, updated_at = ?
		WHERE external_variation_id IS NOT NULL AND is_visible = ? AND ` + r.d.notIn("external_variation_id")
	res, err := r.db.ExecContext(ctx, r.d.rebind(query), false, now.UTC(), true, list)
	if err != nil {
		return 0, r.wrap("products.hide_missing", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, r.wrap("products.hide_missing", err)
	}
	return int(n), nil
}

func (r *productRepository) findOne(ctx context.Context, op, query string, args ...any) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	p, err := scanProduct(r.db.QueryRowContext(ctx, r.d.rebind(query), args...))
	if err != nil {
		return domain.Product{}, r.wrap(op, err)
	}
	return p, nil
}

func (r *productRepository) wrap(op string, err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return repositories.NewProductError(op, repositories.ProductErrorNotFound, nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return repositories.NewProductError(op, repositories.ProductErrorUnavailable, err)
	}
	if constraint, ok := r.d.uniqueErr(err); ok {
		if strings.Contains(constraint, "slug") {
			return repositories.NewProductError(op, repositories.ProductErrorSlugTaken, err)
		}
		if strings.Contains(constraint, "external_variation_id") {
			return repositories.NewProductError(op, repositories.ProductErrorExternalIDTaken, err)
		}
	}
	return repositories.NewProductError(op, repositories.ProductErrorUnknown, err)
}

func productArgs(p domain.Product) ([]any, error) {
	images := p.Images
	if images == nil {
		images = []domain.ProductImage{}
	}
	rawImages, err := json.Marshal(toImageRows(images))
	if err != nil {
		return nil, fmt.Errorf("encode images: %w", err)
	}
	return []any{
		p.ID,
		nullString(p.ExternalVariationID),
		p.Slug,
		string(p.Source),
		p.Title,
		p.Artist,
		p.Price,
		p.Currency,
		p.Description,
		string(rawImages),
		string(p.ProductType),
		p.Genre,
		p.Mood,
		p.MerchCategory,
		p.Size,
		p.Color,
		p.IsVisible,
		p.StockQuantity,
		string(p.StockStatus),
		p.AvailableAtLocation,
		p.IsPreorder,
		nullTime(p.PreorderReleaseDate),
		p.PreorderQuantity,
		p.PreorderMaxQuantity,
		p.CreatedAt.UTC(),
		p.UpdatedAt.UTC(),
		nullTime(p.LastSyncedAt),
		nullTime(p.ExternalUpdatedAt),
	}, nil
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p                                            domain.Product
		externalID                                   sql.NullString
		source, productType, stockStatus, rawImages  string
		preorderRelease, lastSynced, externalUpdated sql.NullTime
	)
	err := row.Scan(
		&p.ID, &externalID, &p.Slug, &source, &p.Title, &p.Artist, &p.Price, &p.Currency, &p.Description, &rawImages,
		&productType, &p.Genre, &p.Mood, &p.MerchCategory, &p.Size, &p.Color, &p.IsVisible, &p.StockQuantity, &stockStatus,
		&p.AvailableAtLocation, &p.IsPreorder, &preorderRelease, &p.PreorderQuantity, &p.PreorderMaxQuantity,
		&p.CreatedAt, &p.UpdatedAt, &lastSynced, &externalUpdated,
	)
	if err != nil {
		return domain.Product{}, err
	}
	p.ExternalVariationID = externalID.String
	p.Source = domain.ProductSource(source)
	p.ProductType = domain.ProductType(productType)
	p.StockStatus = domain.StockStatus(stockStatus)
	p.PreorderReleaseDate = timePtr(preorderRelease)
	p.LastSyncedAt = timePtr(lastSynced)
	p.ExternalUpdatedAt = timePtr(externalUpdated)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()

	var images []imageRow
	if rawImages != "" {
		if err := json.Unmarshal([]byte(rawImages), &images); err != nil {
			return domain.Product{}, fmt.Errorf("decode images: %w", err)
		}
	}
	p.Images = fromImageRows(images)
	return p, nil
}

type imageRow struct {
	ImageID string `json:"imageId"`
	URL     string `json:"url"`
}

func toImageRows(images []domain.ProductImage) []imageRow {
	rows := make([]imageRow, len(images))
	for i, img := range images {
		rows[i] = imageRow{ImageID: img.ImageID, URL: img.URL}
	}
	return rows
}

func fromImageRows(rows []imageRow) []domain.ProductImage {
	if len(rows) == 0 {
		return nil
	}
	images := make([]domain.ProductImage, len(rows))
	for i, row := range rows {
		images[i] = domain.ProductImage{ImageID: row.ImageID, URL: row.URL}
	}
	return images
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullString(value string) sql.NullString {
	value = strings.TrimSpace(value)
	return sql.NullString{String: value, Valid: value != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

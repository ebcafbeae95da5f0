package services

import (
	"strings"
	"time"

	domain "github.com/vinylyard/api/internal/domain"
)

// MergeRule decides how an incoming catalog value lands on an existing product.
type MergeRule int

const (
	// AlwaysOverwrite copies the incoming value unconditionally.
	AlwaysOverwrite MergeRule = iota
	// PreserveIfNonEmpty keeps a curated value and only fills it when it is empty.
	PreserveIfNonEmpty
	// NeverTouch keeps the existing value.
	NeverTouch
)

func (r MergeRule) String() string {
	switch r {
	case AlwaysOverwrite:
		return "always-overwrite"
	case PreserveIfNonEmpty:
		return "preserve-if-non-empty"
	case NeverTouch:
		return "never-touch"
	default:
		return "unknown"
	}
}

// MergeField binds a rule to one product field.
type MergeField struct {
	Name string
	Rule MergeRule
	// NeedsImages marks fields skipped when image metadata could not be resolved.
	NeedsImages bool
	assign      func(dst *domain.Product, src domain.Product)
	empty       func(p domain.Product) bool
}

// MergePolicy is the ordered field table applied on every update.
type MergePolicy []MergeField

func overwrite(name string, assign func(dst *domain.Product, src domain.Product)) MergeField {
	return MergeField{Name: name, Rule: AlwaysOverwrite, assign: assign}
}

func curated(name string, get func(p domain.Product) string, set func(p *domain.Product, v string)) MergeField {
	return MergeField{
		Name:   name,
		Rule:   PreserveIfNonEmpty,
		assign: func(dst *domain.Product, src domain.Product) { set(dst, get(src)) },
		empty:  func(p domain.Product) bool { return strings.TrimSpace(get(p)) == "" },
	}
}

func untouched(name string) MergeField {
	return MergeField{Name: name, Rule: NeverTouch}
}

// DefaultMergePolicy returns the catalog merge table.
func DefaultMergePolicy() MergePolicy {
	return MergePolicy{
		overwrite("title", func(d *domain.Product, s domain.Product) { d.Title = s.Title }),
		overwrite("artist", func(d *domain.Product, s domain.Product) { d.Artist = s.Artist }),
		overwrite("price", func(d *domain.Product, s domain.Product) { d.Price = s.Price }),
		overwrite("currency", func(d *domain.Product, s domain.Product) { d.Currency = s.Currency }),
		overwrite("description", func(d *domain.Product, s domain.Product) { d.Description = s.Description }),
		{
			Name:        "images",
			Rule:        AlwaysOverwrite,
			NeedsImages: true,
			assign: func(d *domain.Product, s domain.Product) {
				d.Images = append([]domain.ProductImage(nil), s.Images...)
			},
		},
		overwrite("productType", func(d *domain.Product, s domain.Product) { d.ProductType = s.ProductType }),
		overwrite("externalVariationId", func(d *domain.Product, s domain.Product) {
			d.ExternalVariationID = s.ExternalVariationID
		}),
		overwrite("externalUpdatedAt", func(d *domain.Product, s domain.Product) {
			d.ExternalUpdatedAt = copyTime(s.ExternalUpdatedAt)
		}),

		overwrite("stockQuantity", func(d *domain.Product, s domain.Product) { d.StockQuantity = s.StockQuantity }),
		overwrite("stockStatus", func(d *domain.Product, s domain.Product) { d.StockStatus = s.StockStatus }),
		overwrite("availableAtLocation", func(d *domain.Product, s domain.Product) {
			d.AvailableAtLocation = s.AvailableAtLocation
		}),

		curated("genre", func(p domain.Product) string { return p.Genre }, func(p *domain.Product, v string) { p.Genre = v }),
		curated("mood", func(p domain.Product) string { return p.Mood }, func(p *domain.Product, v string) { p.Mood = v }),
		curated("merchCategory", func(p domain.Product) string { return p.MerchCategory }, func(p *domain.Product, v string) { p.MerchCategory = v }),
		curated("size", func(p domain.Product) string { return p.Size }, func(p *domain.Product, v string) { p.Size = v }),
		curated("color", func(p domain.Product) string { return p.Color }, func(p *domain.Product, v string) { p.Color = v }),

		untouched("isVisible"),
		untouched("slug"),
		untouched("localId"),
		untouched("source"),
		untouched("createdAt"),
	}
}

// Apply merges incoming onto existing and returns the result. existing is not modified.
func (p MergePolicy) Apply(existing, incoming domain.Product, imagesResolved bool) domain.Product {
	merged := existing
	merged.Images = append([]domain.ProductImage(nil), existing.Images...)
	for _, field := range p {
		if field.assign == nil {
			continue
		}
		if field.NeedsImages && !imagesResolved {
			continue
		}
		switch field.Rule {
		case AlwaysOverwrite:
			field.assign(&merged, incoming)
		case PreserveIfNonEmpty:
			if field.empty(merged) && !field.empty(incoming) {
				field.assign(&merged, incoming)
			}
		}
	}
	return merged
}

// Rule returns the rule registered for a field name.
func (p MergePolicy) Rule(name string) (MergeRule, bool) {
	for _, field := range p {
		if field.Name == name {
			return field.Rule, true
		}
	}
	return 0, false
}

// applyPreorder copies preorder linkage when a record exists and leaves the product alone otherwise.
func applyPreorder(product *domain.Product, preorder *domain.Preorder) {
	if preorder == nil {
		return
	}
	product.IsPreorder = preorder.Active
	product.PreorderReleaseDate = copyTime(preorder.ReleaseDate)
	product.PreorderQuantity = preorder.Quantity
	product.PreorderMaxQuantity = preorder.MaxQuantity
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

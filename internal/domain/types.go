package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ProductType classifies a sellable item for storefront navigation.
type ProductType string

const (
	// ProductTypeRecord is the default classification for music releases.
	ProductTypeRecord ProductType = "record"
	// ProductTypeMerch covers apparel, posters and other band merchandise.
	ProductTypeMerch ProductType = "merch"
	// ProductTypeAccessory covers turntable and record care accessories.
	ProductTypeAccessory ProductType = "accessory"
	// ProductTypeVoucher covers gift cards and store credit.
	ProductTypeVoucher ProductType = "voucher"
)

// StockStatus is the customer facing availability bucket derived from a stock count.
type StockStatus string

const (
	StockStatusInStock    StockStatus = "in_stock"
	StockStatusLowStock   StockStatus = "low_stock"
	StockStatusOutOfStock StockStatus = "out_of_stock"
)

// ProductSource records how a product entered the local store.
type ProductSource string

const (
	// ProductSourceCatalog marks products created by catalog synchronisation.
	ProductSourceCatalog ProductSource = "catalog"
	// ProductSourceManual marks products entered by staff.
	ProductSourceManual ProductSource = "manual"
)

const (
	// UntrackedStockQuantity is reported for items whose stock is not counted (vouchers, untracked variations).
	UntrackedStockQuantity = 9999
	// LowStockThreshold is the exclusive upper bound of the low stock bucket.
	LowStockThreshold = 3
)

// ProductImage is a catalog image reference resolved to a public URL.
type ProductImage struct {
	ImageID string
	URL     string
}

// Product is the locally persisted sellable item served to the storefront.
type Product struct {
	ID                  string
	ExternalVariationID string
	Slug                string
	Source              ProductSource

	Title       string
	Artist      string
	Price       decimal.Decimal
	Currency    string
	Description string
	Images      []ProductImage
	ProductType ProductType

	Genre         string
	Mood          string
	MerchCategory string
	Size          string
	Color         string
	IsVisible     bool

	StockQuantity       int
	StockStatus         StockStatus
	AvailableAtLocation bool

	IsPreorder          bool
	PreorderReleaseDate *time.Time
	PreorderQuantity    int
	PreorderMaxQuantity int

	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastSyncedAt      *time.Time
	ExternalUpdatedAt *time.Time
}

// HasExternalID reports whether the product is linked to a catalog variation.
func (p Product) HasExternalID() bool {
	return strings.TrimSpace(p.ExternalVariationID) != ""
}

// Preorder carries release scheduling for an upcoming record, keyed by catalog variation id.
type Preorder struct {
	ExternalVariationID string
	ReleaseDate         *time.Time
	Quantity            int
	MaxQuantity         int
	Active              bool
}

// LastSyncInfo summarises the most recent catalog pull.
type LastSyncInfo struct {
	LastSync      time.Time
	LastSyncCount int
	LocationID    string
	RunID         string
	IsComplete    bool
}

// ClassifyStock maps a stock count to its availability bucket.
func ClassifyStock(quantity int) StockStatus {
	switch {
	case quantity <= 0:
		return StockStatusOutOfStock
	case quantity < LowStockThreshold:
		return StockStatusLowStock
	default:
		return StockStatusInStock
	}
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Catalog attribute keys read from provider custom attributes.
const (
	AttributeGenre         = "genre"
	AttributeMood          = "mood"
	AttributeMerchCategory = "merch_category"
	AttributeSize          = "size"
	AttributeColor         = "color"
)

// CatalogItem is an item as listed by the external catalog provider.
type CatalogItem struct {
	ID                    string
	Name                  string
	Description           string
	ImageIDs              []string
	PresentAtAllLocations bool
	PresentAtLocationIDs  []string
	AbsentAtLocationIDs   []string
	Attributes            map[string]string
	UpdatedAt             time.Time
	Variations            []CatalogVariation
}

// CatalogVariation is a sellable SKU of a catalog item.
type CatalogVariation struct {
	ID                string
	ItemID            string
	Name              string
	Price             *Money
	TrackInventory    bool
	LocationOverrides []LocationOverride
}

// LocationOverride adjusts variation behaviour at a single location.
type LocationOverride struct {
	LocationID     string
	TrackInventory *bool
}

// Money is an amount in the currency's minor units.
type Money struct {
	Amount   int64
	Currency string
}

var zeroDecimalCurrencies = map[string]struct{}{
	"JPY": {},
	"KRW": {},
	"VND": {},
	"CLP": {},
	"ISK": {},
}

// Decimal converts the minor unit amount to a decimal in major units.
func (m Money) Decimal() decimal.Decimal {
	if _, ok := zeroDecimalCurrencies[strings.ToUpper(m.Currency)]; ok {
		return decimal.NewFromInt(m.Amount)
	}
	return decimal.New(m.Amount, -2)
}

// PrimaryVariation returns the first variation, which carries the product's price and stock.
func (i CatalogItem) PrimaryVariation() (CatalogVariation, bool) {
	if len(i.Variations) == 0 {
		return CatalogVariation{}, false
	}
	return i.Variations[0], true
}

// VariationIDs lists the ids of every variation on the item.
func (i CatalogItem) VariationIDs() []string {
	ids := make([]string, 0, len(i.Variations))
	for _, v := range i.Variations {
		if id := strings.TrimSpace(v.ID); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// PresentAt reports whether the item is sold at the location. An empty location matches everything.
func (i CatalogItem) PresentAt(locationID string) bool {
	locationID = strings.TrimSpace(locationID)
	if locationID == "" {
		return true
	}
	if i.PresentAtAllLocations {
		for _, absent := range i.AbsentAtLocationIDs {
			if absent == locationID {
				return false
			}
		}
		return true
	}
	for _, present := range i.PresentAtLocationIDs {
		if present == locationID {
			return true
		}
	}
	return false
}

// Attribute returns a trimmed custom attribute value.
func (i CatalogItem) Attribute(key string) string {
	if i.Attributes == nil {
		return ""
	}
	return strings.TrimSpace(i.Attributes[key])
}

// TracksInventoryAt reports whether stock is counted for the variation at the location.
func (v CatalogVariation) TracksInventoryAt(locationID string) bool {
	locationID = strings.TrimSpace(locationID)
	if locationID != "" {
		for _, override := range v.LocationOverrides {
			if override.LocationID == locationID && override.TrackInventory != nil {
				return *override.TrackInventory
			}
		}
	}
	return v.TrackInventory
}

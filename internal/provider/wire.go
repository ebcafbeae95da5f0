package provider

import (
	"strings"
	"time"

	domain "github.com/vinylyard/api/internal/domain"
	"github.com/vinylyard/api/internal/platform/textutil"
)

const (
	objectTypeItem      = "ITEM"
	objectTypeVariation = "ITEM_VARIATION"
	objectTypeImage     = "IMAGE"

	inventoryStateInStock = "IN_STOCK"
)

type errorEnvelope struct {
	Errors []struct {
		Category string `json:"category"`
		Code     string `json:"code"`
		Detail   string `json:"detail"`
	} `json:"errors"`
}

type catalogObject struct {
	Type                  string                          `json:"type"`
	ID                    string                          `json:"id"`
	UpdatedAt             string                          `json:"updated_at,omitempty"`
	IsDeleted             bool                            `json:"is_deleted,omitempty"`
	PresentAtAllLocations bool                            `json:"present_at_all_locations"`
	PresentAtLocationIDs  []string                        `json:"present_at_location_ids,omitempty"`
	AbsentAtLocationIDs   []string                        `json:"absent_at_location_ids,omitempty"`
	CustomAttributeValues map[string]customAttributeValue `json:"custom_attribute_values,omitempty"`
	ItemData              *itemData                       `json:"item_data,omitempty"`
	ItemVariationData     *itemVariationData              `json:"item_variation_data,omitempty"`
	ImageData             *imageData                      `json:"image_data,omitempty"`
}

type customAttributeValue struct {
	Name        string `json:"name"`
	Key         string `json:"key,omitempty"`
	StringValue string `json:"string_value,omitempty"`
}

type itemData struct {
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	DescriptionHTML string          `json:"description_html,omitempty"`
	ImageIDs        []string        `json:"image_ids,omitempty"`
	Variations      []catalogObject `json:"variations,omitempty"`
}

type itemVariationData struct {
	ItemID            string             `json:"item_id"`
	Name              string             `json:"name"`
	PricingType       string             `json:"pricing_type,omitempty"`
	PriceMoney        *money             `json:"price_money,omitempty"`
	TrackInventory    bool               `json:"track_inventory"`
	LocationOverrides []locationOverride `json:"location_overrides,omitempty"`
}

type money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type locationOverride struct {
	LocationID     string `json:"location_id"`
	TrackInventory *bool  `json:"track_inventory,omitempty"`
}

type imageData struct {
	Name string `json:"name,omitempty"`
	URL  string `json:"url"`
}

type searchItemsRequest struct {
	EnabledLocationIDs []string `json:"enabled_location_ids,omitempty"`
	Cursor             string   `json:"cursor,omitempty"`
	Limit              int      `json:"limit,omitempty"`
}

type searchItemsResponse struct {
	Items  []catalogObject `json:"items"`
	Cursor string          `json:"cursor,omitempty"`
}

type retrieveObjectResponse struct {
	Object catalogObject `json:"object"`
}

type inventoryCountsRequest struct {
	CatalogObjectIDs []string `json:"catalog_object_ids"`
	LocationIDs      []string `json:"location_ids,omitempty"`
	Cursor           string   `json:"cursor,omitempty"`
}

type inventoryCountsResponse struct {
	Counts []inventoryCount `json:"counts"`
	Cursor string           `json:"cursor,omitempty"`
}

type inventoryCount struct {
	CatalogObjectID string `json:"catalog_object_id"`
	State           string `json:"state"`
	LocationID      string `json:"location_id"`
	Quantity        string `json:"quantity"`
}

func (o catalogObject) toItem() (domain.CatalogItem, bool) {
	if o.Type != objectTypeItem || o.ItemData == nil || o.IsDeleted {
		return domain.CatalogItem{}, false
	}
	description := o.ItemData.DescriptionHTML
	if strings.TrimSpace(description) == "" {
		description = o.ItemData.Description
	}
	item := domain.CatalogItem{
		ID:                    o.ID,
		Name:                  strings.TrimSpace(o.ItemData.Name),
		Description:           description,
		ImageIDs:              append([]string(nil), o.ItemData.ImageIDs...),
		PresentAtAllLocations: o.PresentAtAllLocations,
		PresentAtLocationIDs:  append([]string(nil), o.PresentAtLocationIDs...),
		AbsentAtLocationIDs:   append([]string(nil), o.AbsentAtLocationIDs...),
		Attributes:            attributesOf(o.CustomAttributeValues),
		UpdatedAt:             parseTimestamp(o.UpdatedAt),
	}
	for _, v := range o.ItemData.Variations {
		if v.Type != objectTypeVariation || v.ItemVariationData == nil || v.IsDeleted {
			continue
		}
		item.Variations = append(item.Variations, v.toVariation(o.ID))
	}
	return item, true
}

func (o catalogObject) toVariation(itemID string) domain.CatalogVariation {
	data := o.ItemVariationData
	variation := domain.CatalogVariation{
		ID:             o.ID,
		ItemID:         data.ItemID,
		Name:           data.Name,
		TrackInventory: data.TrackInventory,
	}
	if variation.ItemID == "" {
		variation.ItemID = itemID
	}
	if data.PriceMoney != nil {
		variation.Price = &domain.Money{Amount: data.PriceMoney.Amount, Currency: data.PriceMoney.Currency}
	}
	for _, override := range data.LocationOverrides {
		variation.LocationOverrides = append(variation.LocationOverrides, domain.LocationOverride{
			LocationID:     override.LocationID,
			TrackInventory: override.TrackInventory,
		})
	}
	return variation
}

func attributesOf(values map[string]customAttributeValue) map[string]string {
	if len(values) == 0 {
		return nil
	}
	raw := make(map[string]string, len(values))
	for key, value := range values {
		name := value.Name
		if strings.TrimSpace(name) == "" {
			name = key
		}
		raw[name] = textutil.PlainText(value.StringValue)
	}
	return textutil.NormalizeAttributes(raw)
}

func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

package services

import (
	"strings"
	"unicode"

	domain "github.com/vinylyard/api/internal/domain"
)

var (
	voucherPhrases = []string{"gift card", "giftcard", "voucher", "gift certificate"}

	merchKeywords = map[string]struct{}{
		"shirt": {}, "tshirt": {}, "tee": {}, "hoodie": {}, "sweatshirt": {}, "crewneck": {}, "tote": {},
		"hat": {}, "cap": {}, "beanie": {}, "poster": {}, "sticker": {}, "pin": {}, "patch": {}, "mug": {},
		"bag": {}, "socks": {},
	}

	accessoryKeywords = map[string]struct{}{
		"slipmat": {}, "sleeve": {}, "sleeves": {}, "stylus": {}, "needle": {}, "cartridge": {}, "cleaner": {},
		"brush": {}, "crate": {}, "adapter": {}, "turntable": {}, "headphones": {}, "mat": {},
	}

	artistSeparators = []string{" - ", " – ", " — "}
)

// isVoucher reports whether the item is a gift card or store credit.
func isVoucher(name, description string) bool {
	text := strings.ToLower(name + " " + description)
	for _, phrase := range voucherPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// detectProductType classifies by name keywords: voucher first, then merch, then accessory, else record.
func detectProductType(item domain.CatalogItem) domain.ProductType {
	if isVoucher(item.Name, item.Description) {
		return domain.ProductTypeVoucher
	}
	words := strings.FieldsFunc(strings.ToLower(strings.ReplaceAll(item.Name, "-", "")), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if _, ok := merchKeywords[w]; ok {
			return domain.ProductTypeMerch
		}
	}
	for _, w := range words {
		if _, ok := accessoryKeywords[w]; ok {
			return domain.ProductTypeAccessory
		}
	}
	return domain.ProductTypeRecord
}

// parseArtist returns the artist from "Artist - Title" record names.
func parseArtist(name string, productType domain.ProductType) string {
	if productType != domain.ProductTypeRecord {
		return ""
	}
	for _, sep := range artistSeparators {
		if artist, _, ok := strings.Cut(name, sep); ok {
			return strings.TrimSpace(artist)
		}
	}
	return ""
}

// slugBase joins artist and title unless the title already starts with the artist.
func slugBase(artist, title string) string {
	if artist == "" || strings.HasPrefix(strings.ToLower(title), strings.ToLower(artist)) {
		return title
	}
	return artist + " " + title
}

// StockLevel is the derived inventory state of an item's primary variation.
type StockLevel struct {
	Quantity int
	Status   domain.StockStatus
}

func untrackedStock() StockLevel {
	return StockLevel{Quantity: domain.UntrackedStockQuantity, Status: domain.StockStatusInStock}
}

// deriveStock applies, in order: vouchers are always stocked; a count classifies; untracked variations
// and a missing location fail open; anything else is out of stock.
func deriveStock(productType domain.ProductType, variation domain.CatalogVariation, counts map[string]int, locationID string) StockLevel {
	if productType == domain.ProductTypeVoucher {
		return untrackedStock()
	}
	if qty, ok := counts[variation.ID]; ok {
		return StockLevel{Quantity: max(qty, 0), Status: domain.ClassifyStock(qty)}
	}
	if !variation.TracksInventoryAt(locationID) {
		return untrackedStock()
	}
	if strings.TrimSpace(locationID) == "" {
		return untrackedStock()
	}
	return StockLevel{Quantity: 0, Status: domain.StockStatusOutOfStock}
}

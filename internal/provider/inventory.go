package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

const inventoryBatchSize = 100

// InventoryOracle reads per-location stock counts.
type InventoryOracle struct {
	client *Client
}

func NewInventoryOracle(client *Client) (*InventoryOracle, error) {
	if client == nil {
		return nil, errors.New("inventory oracle: client is required")
	}
	return &InventoryOracle{client: client}, nil
}

// GetCounts sums IN_STOCK quantities per variation. Variations without any inventory record are
// absent from the map, which is different from a zero count. An empty locationID queries every location.
func (o *InventoryOracle) GetCounts(ctx context.Context, locationID string, variationIDs []string) (map[string]int, error) {
	ids := dedupe(variationIDs)
	counts := make(map[string]int, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}
	locationID = strings.TrimSpace(locationID)

	for start := 0; start < len(ids); start += inventoryBatchSize {
		batch := ids[start:min(start+inventoryBatchSize, len(ids))]
		req := inventoryCountsRequest{CatalogObjectIDs: batch}
		if locationID != "" {
			req.LocationIDs = []string{locationID}
		}
		for {
			var resp inventoryCountsResponse
			if err := o.client.do(ctx, "inventory_counts", http.MethodPost, "/v2/inventory/counts/batch-retrieve", req, &resp); err != nil {
				return nil, err
			}
			for _, count := range resp.Counts {
				accumulate(counts, count, locationID)
			}
			if req.Cursor = strings.TrimSpace(resp.Cursor); req.Cursor == "" {
				break
			}
		}
	}
	return counts, nil
}

func accumulate(counts map[string]int, count inventoryCount, locationID string) {
	if locationID != "" && count.LocationID != "" && count.LocationID != locationID {
		return
	}
	id := count.CatalogObjectID
	if _, seen := counts[id]; !seen {
		counts[id] = 0
	}
	if count.State != inventoryStateInStock {
		return
	}
	// Quantities are decimal strings; partial units round down.
	qty, err := decimal.NewFromString(strings.TrimSpace(count.Quantity))
	if err != nil || qty.IsNegative() {
		return
	}
	counts[id] += int(qty.IntPart())
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/api/iterator"

	domain "github.com/vinylyard/api/internal/domain"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// CatalogFetcher lists catalog items page by page.
type CatalogFetcher struct {
	client   *Client
	pageSize int
}

func NewCatalogFetcher(client *Client, pageSize int) (*CatalogFetcher, error) {
	if client == nil {
		return nil, errors.New("catalog fetcher: client is required")
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &CatalogFetcher{client: client, pageSize: min(pageSize, maxPageSize)}, nil
}

// Fetch starts a listing, filtered to locationID when it is non-empty. Nothing is requested until Next.
func (f *CatalogFetcher) Fetch(ctx context.Context, locationID string) *ItemIterator {
	return &ItemIterator{ctx: ctx, fetcher: f, locationID: strings.TrimSpace(locationID)}
}

// ItemIterator yields catalog items in provider order. Next returns iterator.Done after the last item.
type ItemIterator struct {
	ctx        context.Context
	fetcher    *CatalogFetcher
	locationID string

	buffer  []domain.CatalogItem
	cursor  string
	started bool
	done    bool
	err     error
	pages   int
}

func (it *ItemIterator) Next() (domain.CatalogItem, error) {
	for len(it.buffer) == 0 {
		if it.err != nil {
			return domain.CatalogItem{}, it.err
		}
		if it.done {
			return domain.CatalogItem{}, iterator.Done
		}
		if err := it.fetchPage(); err != nil {
			it.err = err
			return domain.CatalogItem{}, err
		}
	}
	item := it.buffer[0]
	it.buffer = it.buffer[1:]
	return item, nil
}

// Pages reports how many pages have been requested so far.
func (it *ItemIterator) Pages() int { return it.pages }

func (it *ItemIterator) fetchPage() error {
	if it.started && it.cursor == "" {
		it.done = true
		return nil
	}
	req := searchItemsRequest{Cursor: it.cursor, Limit: it.fetcher.pageSize}
	if it.locationID != "" {
		req.EnabledLocationIDs = []string{it.locationID}
	}
	var resp searchItemsResponse
	if err := it.fetcher.client.do(it.ctx, "search_items", http.MethodPost, "/v2/catalog/search-catalog-items", req, &resp); err != nil {
		return err
	}
	it.started = true
	it.pages++
	it.cursor = strings.TrimSpace(resp.Cursor)
	if it.cursor == "" {
		it.done = true
	}
	for _, obj := range resp.Items {
		if item, ok := obj.toItem(); ok {
			it.buffer = append(it.buffer, item)
		}
	}
	return nil
}

package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	domain "github.com/vinylyard/api/internal/domain"
)

// ImageResolver turns catalog image ids into public URLs. Resolved URLs are cached for the process
// lifetime because image objects are immutable once uploaded.
type ImageResolver struct {
	client *Client

	mu    sync.RWMutex
	cache map[string]string
}

func NewImageResolver(client *Client) (*ImageResolver, error) {
	if client == nil {
		return nil, errors.New("image resolver: client is required")
	}
	return &ImageResolver{client: client, cache: make(map[string]string)}, nil
}

// ResolveImages returns images in the given order. Any failed lookup fails the whole call so callers
// never persist a partial gallery.
func (r *ImageResolver) ResolveImages(ctx context.Context, imageIDs []string) ([]domain.ProductImage, error) {
	ids := dedupe(imageIDs)
	images := make([]domain.ProductImage, 0, len(ids))
	for _, id := range ids {
		imageURL, err := r.resolve(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve image %s: %w", id, err)
		}
		if imageURL == "" {
			continue
		}
		images = append(images, domain.ProductImage{ImageID: id, URL: imageURL})
	}
	return images, nil
}

func (r *ImageResolver) resolve(ctx context.Context, id string) (string, error) {
	r.mu.RLock()
	cached, ok := r.cache[id]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	var resp retrieveObjectResponse
	if err := r.client.do(ctx, "retrieve_object", http.MethodGet, "/v2/catalog/object/"+url.PathEscape(id), nil, &resp); err != nil {
		return "", err
	}
	if resp.Object.Type != objectTypeImage || resp.Object.ImageData == nil {
		return "", fmt.Errorf("object %s is %q, not an image", id, resp.Object.Type)
	}
	imageURL := strings.TrimSpace(resp.Object.ImageData.URL)

	r.mu.Lock()
	r.cache[id] = imageURL
	r.mu.Unlock()
	return imageURL, nil
}

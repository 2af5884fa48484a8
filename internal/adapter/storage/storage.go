package storage

import (
	"net/url"
	"strings"

	"storefront/config"
)

const defaultPlaceholder = "/images/placeholder-product.jpg"

// PublicURLs builds public object URLs for a storage bucket.
type PublicURLs struct {
	BaseURL     string
	Bucket      string
	Folder      string
	Placeholder string
}

func NewPublicURLs(cfg config.StorageConfig) *PublicURLs {
	placeholder := cfg.Placeholder
	if placeholder == "" {
		placeholder = defaultPlaceholder
	}
	return &PublicURLs{
		BaseURL:     strings.TrimSuffix(cfg.PublicBaseURL, "/"),
		Bucket:      cfg.Bucket,
		Folder:      cfg.Folder,
		Placeholder: placeholder,
	}
}

// PublicURL returns {base}/storage/v1/object/public/{bucket}/{folder}/{name}.
func (u *PublicURLs) PublicURL(folder, name string) string {
	parts := []string{"storage", "v1", "object", "public"}
	parts = appendSegments(parts, u.Bucket)
	parts = appendSegments(parts, folder)
	parts = appendSegments(parts, name)
	return u.BaseURL + "/" + strings.Join(parts, "/")
}

// appendSegments escapes each slash-separated segment of p on its own, so
// nested object keys keep their path structure. Empty segments are dropped.
func appendSegments(parts []string, p string) []string {
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			parts = append(parts, url.PathEscape(seg))
		}
	}
	return parts
}

// ImageURL resolves the primary image of a product. Absolute URLs are served
// as they are; bare file names live under the configured folder.
func (u *PublicURLs) ImageURL(images []string) string {
	if len(images) == 0 {
		return u.Placeholder
	}
	img := strings.TrimSpace(images[0])
	if img == "" {
		return u.Placeholder
	}
	if strings.HasPrefix(img, "http://") || strings.HasPrefix(img, "https://") {
		return img
	}
	return u.PublicURL(u.Folder, img)
}

package storage

import (
	"testing"

	"storefront/config"
)

func newTestURLs() *PublicURLs {
	return NewPublicURLs(config.StorageConfig{
		PublicBaseURL: "https://cdn.example.co/",
		Bucket:        "ecommerce",
		Folder:        "products",
	})
}

func TestImageURL(t *testing.T) {
	u := newTestURLs()

	cases := []struct {
		name   string
		images []string
		want   string
	}{
		{"bare file name", []string{"lens.jpg", "other.jpg"}, "https://cdn.example.co/storage/v1/object/public/ecommerce/products/lens.jpg"},
		{"absolute url", []string{"https://img.example.com/a.png"}, "https://img.example.com/a.png"},
		{"no images", nil, "/images/placeholder-product.jpg"},
		{"blank image", []string{"  "}, "/images/placeholder-product.jpg"},
		{"escaped name", []string{"my lens.jpg"}, "https://cdn.example.co/storage/v1/object/public/ecommerce/products/my%20lens.jpg"},
		{"nested name", []string{"sub/a.jpg"}, "https://cdn.example.co/storage/v1/object/public/ecommerce/products/sub/a.jpg"},
		{"nested escaped name", []string{"spring sale/50%.jpg"}, "https://cdn.example.co/storage/v1/object/public/ecommerce/products/spring%20sale/50%25.jpg"},
		{"leading slash", []string{"/a.jpg"}, "https://cdn.example.co/storage/v1/object/public/ecommerce/products/a.jpg"},
	}

	for _, c := range cases {
		if got := u.ImageURL(c.images); got != c.want {
			t.Errorf("%s: expected %q, got %q", c.name, c.want, got)
		}
	}
}

func TestPublicURL_Folder(t *testing.T) {
	u := newTestURLs()
	if got := u.PublicURL("brands", "logo.svg"); got != "https://cdn.example.co/storage/v1/object/public/ecommerce/brands/logo.svg" {
		t.Errorf("unexpected url %q", got)
	}
}

func TestPublicURL_NestedFolder(t *testing.T) {
	u := newTestURLs()
	want := "https://cdn.example.co/storage/v1/object/public/ecommerce/brands/2024%20spring/logo.svg"
	if got := u.PublicURL("brands/2024 spring/", "logo.svg"); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

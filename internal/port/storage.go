package port

// ImageResolver turns stored image references into a servable URL.
type ImageResolver interface {
	// ImageURL resolves the primary (first) image, or a placeholder.
	ImageURL(images []string) string
}

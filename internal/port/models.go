package port

// ModelProfile binds an embedding model to the index namespace it feeds.
// Query vectors and stored vectors must come from the same profile.
type ModelProfile struct {
	Name      string
	Embedder  Embedder
	Index     string
	Namespace string
	Vectors   VectorNamespace
	Sync      bool
}

// ModelCatalog resolves configured model profiles by name.
type ModelCatalog interface {
	// Profile returns the named profile. An empty name selects the default.
	Profile(name string) (ModelProfile, error)

	// Synced returns every profile that product writes keep up to date.
	// Profiles that cannot be built are left out and reported in the error;
	// the others are still returned.
	Synced() ([]ModelProfile, error)

	Names() []string
}

package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"storefront/internal/domain"
)

// Row is one product line of a dataset CSV, with fields as written.
type Row struct {
	Line        int
	Name        string
	Categories  string
	Description string
	Price       string
	Images      string
}

var requiredColumns = []string{"name", "categories", "description", "price", "images"}

// ReadFile parses a dataset CSV with a header row.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read parses CSV rows keyed by header. Column order is free; unknown
// columns are ignored.
func Read(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}

	field := func(rec []string, name string) string {
		i := cols[name]
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rows []Row
	line := 1
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, Row{
			Line:        line,
			Name:        field(rec, "name"),
			Categories:  field(rec, "categories"),
			Description: field(rec, "description"),
			Price:       field(rec, "price"),
			Images:      field(rec, "images"),
		})
	}
	return rows, nil
}

// HasImages reports whether the row lists at least one image.
func (r Row) HasImages() bool {
	return len(r.ImageURLs()) > 0
}

// ImageURLs splits the images column and strips list punctuation left by
// exports ("[", "]", quotes).
func (r Row) ImageURLs() []string {
	var out []string
	for _, part := range strings.Split(r.Images, ",") {
		if u := CleanURL(part); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// CleanURL removes brackets and quotes around an exported URL.
func CleanURL(s string) string {
	s = strings.NewReplacer("[", "", "]", "", `"`, "", "'", "").Replace(s)
	return strings.TrimSpace(s)
}

// Product converts the row to a product. The price must parse exactly.
func (r Row) Product() (domain.Product, error) {
	if r.Name == "" {
		return domain.Product{}, fmt.Errorf("line %d: empty name", r.Line)
	}

	price, err := domain.ParsePrice(r.Price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("line %d: %w", r.Line, err)
	}

	var categories []string
	for _, c := range strings.Split(r.Categories, ",") {
		if c = CleanURL(c); c != "" {
			categories = append(categories, c)
		}
	}

	return domain.Product{
		Name:        r.Name,
		Description: r.Description,
		Categories:  categories,
		Price:       price,
		Images:      r.ImageURLs(),
	}.Normalize(), nil
}

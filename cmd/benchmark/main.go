package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"storefront/config"
	"storefront/internal/adapter/embedding"
	"storefront/internal/adapter/vectorindex"
	"storefront/internal/port"
)

func main() {
	dir := flag.String("dir", ".", "Directory holding storefront.yaml")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 10, "Number of results")
	only := flag.String("model", "", "Benchmark a single model profile")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run cmd/benchmark/main.go -dir . -q \"query\" [-model gemini]")
		fmt.Println("\nTests, per configured model profile:")
		fmt.Println("  1. Embedding latency (provider round trip)")
		fmt.Println("  2. Vector query latency (index round trip)")
		fmt.Println("  3. Similarity of the top matches against the threshold")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	index, closeIndex, err := openIndex(cfg, *dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening vector index: %v\n", err)
		os.Exit(1)
	}
	defer closeIndex()

	models := embedding.NewRegistry(cfg, index, nil)
	names := models.Names()
	if *only != "" {
		names = []string{*only}
	}

	fmt.Println("MODEL COMPARISON BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Printf("Threshold: %.2f\n\n", cfg.Search.SimilarityThreshold)

	ctx := context.Background()
	for _, name := range names {
		profile, err := models.Profile(name)
		if err != nil {
			fmt.Printf("%s: unavailable (%v)\n\n", name, err)
			continue
		}
		benchmark(ctx, profile, *query, *topK, cfg.Search.SimilarityThreshold)
	}
}

func benchmark(ctx context.Context, profile port.ModelProfile, query string, topK int, threshold float64) {
	fmt.Printf("%s (%s, dimension %d) -> %s/%s\n",
		profile.Name, profile.Embedder.ModelName(), profile.Embedder.Dimension(), profile.Index, profile.Namespace)
	fmt.Println(strings.Repeat("-", 70))

	start := time.Now()
	vector, err := profile.Embedder.Embed(ctx, query)
	embedLatency := time.Since(start)
	if err != nil {
		fmt.Printf("  Embedding error: %v\n\n", err)
		return
	}

	start = time.Now()
	matches, err := profile.Vectors.Query(ctx, vector, topK, true)
	queryLatency := time.Since(start)
	if err != nil {
		fmt.Printf("  Query error: %v\n\n", err)
		return
	}

	fmt.Printf("  Embedding: %s   Query: %s   Matches: %d\n\n", embedLatency.Round(time.Millisecond), queryLatency.Round(time.Millisecond), len(matches))
	if len(matches) == 0 {
		fmt.Println("  No vectors - run 'storefront reembed --model " + profile.Name + "'")
		fmt.Println()
		return
	}

	totalScore := 0.0
	above := 0
	for i, m := range matches {
		totalScore += m.Score
		if m.Score >= threshold {
			above++
		}

		rating := "LOW"
		if m.Score > 0.7 {
			rating = "HIGH"
		} else if m.Score > 0.5 {
			rating = "GOOD"
		} else if m.Score > 0.3 {
			rating = "OK"
		}

		name := m.Metadata["name"]
		if len(name) > 50 {
			name = name[:50] + "..."
		}
		fmt.Printf("  %2d. [%s %.3f] #%s %s\n", i+1, rating, m.Score, m.ID, name)
	}

	avgScore := totalScore / float64(len(matches))
	fmt.Println()
	fmt.Printf("  Average similarity: %.3f\n", avgScore)
	fmt.Printf("  Top-1 similarity:   %.3f\n", matches[0].Score)
	fmt.Printf("  Above threshold:    %d/%d\n", above, len(matches))

	if avgScore > 0.5 {
		fmt.Println("  Status: GOOD - matches are closely related")
	} else if avgScore > 0.3 {
		fmt.Println("  Status: OK - results are somewhat related")
	} else {
		fmt.Println("  Status: POOR - may need a different model or re-embedding")
	}
	fmt.Println()
}

func openIndex(cfg *config.Config, dir string) (port.VectorIndex, func(), error) {
	switch cfg.VectorIndex.Backend {
	case "bolt":
		path := cfg.VectorIndex.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		idx, err := vectorindex.OpenBolt(path)
		if err != nil {
			return nil, nil, err
		}
		return idx, func() { idx.Close() }, nil
	case "pinecone":
		idx, err := vectorindex.NewPinecone(cfg.VectorIndex)
		if err != nil {
			return nil, nil, err
		}
		return idx, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported backend: %s", cfg.VectorIndex.Backend)
	}
}

package usecase

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"storefront/config"
	"storefront/internal/adapter/embedding"
	"storefront/internal/domain"
	"storefront/internal/logger"
	"storefront/internal/port"
)

func testSearchConfig(mode string) config.SearchConfig {
	cfg := config.DefaultConfig().Search
	cfg.Mode = mode
	return cfg
}

func newTestSearch(repo port.ProductRepository, emb *fakeEmbedder, ns *fakeNamespace, mode string) *SearchService {
	return NewSearchService(repo, singleProfile(emb, ns), &fakeIndex{}, stubImages{}, nil, testSearchConfig(mode), nil)
}

func resultIDs(results []domain.SearchResult) []int64 {
	ids := make([]int64, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSearch_EmptyQueryListsCatalog(t *testing.T) {
	repo := seedCatalog(t)
	emb := &fakeEmbedder{}
	ns := &fakeNamespace{}
	svc := newTestSearch(repo, emb, ns, ModeHybrid)

	resp, err := svc.Search(context.Background(), SearchRequest{Query: "   "})
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(resultIDs(resp.Results), []int64{1, 2, 3}) {
		t.Errorf("expected full listing, got %v", resultIDs(resp.Results))
	}
	for _, r := range resp.Results {
		if r.MatchType != domain.MatchNone {
			t.Errorf("expected no match type on listing, got %q", r.MatchType)
		}
	}
	if emb.callCount() != 0 || ns.queries != 0 {
		t.Error("expected no provider or index calls for an empty query")
	}
}

func TestSearch_KeywordFirstThenVector(t *testing.T) {
	repo := seedCatalog(t)
	ns := &fakeNamespace{matches: []port.VectorMatch{
		{ID: "2", Score: 0.42},
		{ID: "9", Score: 0.10},
	}}
	svc := newTestSearch(repo, &fakeEmbedder{}, ns, ModeHybrid)

	resp, err := svc.Search(context.Background(), SearchRequest{Query: "blue lamp"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.State != StateDone || resp.Degraded != "" {
		t.Errorf("expected done without degradation, got %s %q", resp.State, resp.Degraded)
	}
	if !equalIDs(resultIDs(resp.Results), []int64{1, 2}) {
		t.Fatalf("expected [1 2], got %v", resultIDs(resp.Results))
	}

	first, second := resp.Results[0], resp.Results[1]
	if first.MatchType != domain.MatchExact || first.Score != 0.5 {
		t.Errorf("expected exact match with score 0.5, got %s %v", first.MatchType, first.Score)
	}
	if first.ImageURL != "lamp.jpg" {
		t.Errorf("expected resolved image url, got %q", first.ImageURL)
	}
	if second.MatchType != domain.MatchVector || second.Score != 0.42 {
		t.Errorf("expected vector match with score 0.42, got %s %v", second.MatchType, second.Score)
	}

	if len(repo.fetched) != 1 || !equalIDs(repo.fetched[0], []int64{2}) {
		t.Errorf("expected only id 2 to be fetched, got %v", repo.fetched)
	}
}

func TestSearch_ThresholdIsInclusive(t *testing.T) {
	repo := seedCatalog(t)
	ns := &fakeNamespace{matches: []port.VectorMatch{
		{ID: "2", Score: 0.3},
		{ID: "3", Score: 0.2999},
	}}
	svc := newTestSearch(repo, &fakeEmbedder{}, ns, ModeSemantic)

	resp, err := svc.Search(context.Background(), SearchRequest{Query: "something"})
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(resultIDs(resp.Results), []int64{2}) {
		t.Errorf("expected only the match at the threshold, got %v", resultIDs(resp.Results))
	}
}

func TestSearch_ExactMatchWinsDuplicate(t *testing.T) {
	repo := seedCatalog(t)
	ns := &fakeNamespace{matches: []port.VectorMatch{{ID: "1", Score: 0.95}}}
	svc := newTestSearch(repo, &fakeEmbedder{}, ns, ModeHybrid)

	resp, err := svc.Search(context.Background(), SearchRequest{Query: "lamp"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected one result, got %v", resultIDs(resp.Results))
	}
	if resp.Results[0].MatchType != domain.MatchExact || resp.Results[0].Score != 0.5 {
		t.Errorf("expected the exact entry to win, got %+v", resp.Results[0])
	}
	if len(repo.fetched) != 0 {
		t.Errorf("expected no id lookup, got %v", repo.fetched)
	}
}

func TestSearch_VectorOrderingAndPageSize(t *testing.T) {
	repo := seedCatalog(t)
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		repo.Create(ctx, domain.Product{Name: "Widget", Price: 100})
	}

	var matches []port.VectorMatch
	for id := 4; id <= 18; id++ {
		score := 0.9
		if id%2 == 0 {
			score = 0.8
		}
		matches = append(matches, port.VectorMatch{ID: domain.Product{ID: int64(id)}.VectorID(), Score: score})
	}
	ns := &fakeNamespace{matches: matches}
	svc := newTestSearch(repo, &fakeEmbedder{}, ns, ModeHybrid)

	resp, err := svc.Search(ctx, SearchRequest{Query: "gadget"})
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{5, 7, 9, 11, 13, 15, 17, 4, 6, 8, 10, 12}
	if !equalIDs(resultIDs(resp.Results), want) {
		t.Errorf("expected %v, got %v", want, resultIDs(resp.Results))
	}

	resp, _ = svc.Search(ctx, SearchRequest{Query: "gadget", PageSize: 3})
	if len(resp.Results) != 3 {
		t.Errorf("expected request page size to apply, got %d", len(resp.Results))
	}
}

func TestSearch_EmbeddingFailure(t *testing.T) {
	repo := seedCatalog(t)
	emb := &fakeEmbedder{err: errBoom}

	hybrid := newTestSearch(repo, emb, &fakeNamespace{}, ModeHybrid)
	resp, err := hybrid.Search(context.Background(), SearchRequest{Query: "tripod"})
	if err != nil {
		t.Fatalf("expected degraded success, got %v", err)
	}
	if resp.State != StateEmbeddingFailed || resp.Degraded != "embedding_failed" {
		t.Errorf("unexpected state %s %q", resp.State, resp.Degraded)
	}
	if !equalIDs(resultIDs(resp.Results), []int64{2}) {
		t.Errorf("expected keyword block only, got %v", resultIDs(resp.Results))
	}

	semantic := newTestSearch(repo, emb, &fakeNamespace{}, ModeSemantic)
	resp, err = semantic.Search(context.Background(), SearchRequest{Query: "tripod"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("expected no results in semantic mode, got %v", resultIDs(resp.Results))
	}
}

func TestSearch_ProfileBuildFailureDegrades(t *testing.T) {
	repo := seedCatalog(t)
	catalog := singleProfile(&fakeEmbedder{}, &fakeNamespace{})
	catalog.err = errBoom
	svc := NewSearchService(repo, catalog, &fakeIndex{}, stubImages{}, nil, testSearchConfig(ModeHybrid), nil)

	resp, err := svc.Search(context.Background(), SearchRequest{Query: "vase"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.State != StateEmbeddingFailed || !equalIDs(resultIDs(resp.Results), []int64{3}) {
		t.Errorf("expected keyword fallback, got %s %v", resp.State, resultIDs(resp.Results))
	}
}

func TestSearch_IndexFailure(t *testing.T) {
	repo := seedCatalog(t)
	ns := &fakeNamespace{queryErr: errBoom}

	for _, mode := range []string{ModeHybrid, ModeSemantic} {
		svc := newTestSearch(repo, &fakeEmbedder{}, ns, mode)
		resp, err := svc.Search(context.Background(), SearchRequest{Query: "ceramic"})
		if err != nil {
			t.Fatalf("%s: expected degraded success, got %v", mode, err)
		}
		if resp.State != StateIndexFailed || resp.Degraded != "index_unavailable" {
			t.Errorf("%s: unexpected state %s %q", mode, resp.State, resp.Degraded)
		}
		if !equalIDs(resultIDs(resp.Results), []int64{3}) {
			t.Errorf("%s: expected keyword results, got %v", mode, resultIDs(resp.Results))
		}
	}
}

func TestSearch_NoResultsAboveThreshold(t *testing.T) {
	repo := seedCatalog(t)
	ns := &fakeNamespace{matches: []port.VectorMatch{{ID: "2", Score: 0.1}}}
	svc := newTestSearch(repo, &fakeEmbedder{}, ns, ModeHybrid)

	resp, err := svc.Search(context.Background(), SearchRequest{Query: "vase"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.State != StateNoResultsAboveThreshold {
		t.Errorf("expected %s, got %s", StateNoResultsAboveThreshold, resp.State)
	}
	if !equalIDs(resultIDs(resp.Results), []int64{3}) {
		t.Errorf("expected keyword block to survive, got %v", resultIDs(resp.Results))
	}
}

func TestSearch_MissingProductIsDroppedAndLogged(t *testing.T) {
	repo := seedCatalog(t)
	ns := &fakeNamespace{matches: []port.VectorMatch{
		{ID: "42", Score: 0.9},
		{ID: "sku-7", Score: 0.8},
		{ID: "3", Score: 0.7},
	}}

	var buf bytes.Buffer
	log := logger.NewWithWriter("test", logger.LevelDebug, &buf)
	svc := NewSearchService(repo, singleProfile(&fakeEmbedder{}, ns), &fakeIndex{}, stubImages{}, nil, testSearchConfig(ModeSemantic), log)

	resp, err := svc.Search(context.Background(), SearchRequest{Query: "decor"})
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(resultIDs(resp.Results), []int64{3}) {
		t.Errorf("expected only the stored product, got %v", resultIDs(resp.Results))
	}

	out := buf.String()
	if !strings.Contains(out, "SYNC WARNING") {
		t.Errorf("expected drift warning in log, got:\n%s", out)
	}
	if !strings.Contains(out, "non-numeric id") {
		t.Errorf("expected non-numeric id warning in log, got:\n%s", out)
	}
	if !strings.Contains(out, "request_id=") {
		t.Errorf("expected request id on log lines, got:\n%s", out)
	}
}

func TestSearch_RepositoryFailureIsFatal(t *testing.T) {
	repo := seedCatalog(t)
	repo.tokensErr = errBoom
	svc := newTestSearch(repo, &fakeEmbedder{}, &fakeNamespace{}, ModeHybrid)

	_, err := svc.Search(context.Background(), SearchRequest{Query: "lamp"})
	if !domain.IsKind(err, domain.KindRepository) {
		t.Errorf("expected repository failure, got %v", err)
	}

	repo.tokensErr = nil
	repo.idsErr = errBoom
	ns := &fakeNamespace{matches: []port.VectorMatch{{ID: "2", Score: 0.9}}}
	svc = newTestSearch(repo, &fakeEmbedder{}, ns, ModeHybrid)
	_, err = svc.Search(context.Background(), SearchRequest{Query: "lamp"})
	if !domain.IsKind(err, domain.KindRepository) {
		t.Errorf("expected repository failure on id lookup, got %v", err)
	}
}

func TestSearch_UnknownModel(t *testing.T) {
	repo := seedCatalog(t)
	emb := &fakeEmbedder{}
	svc := newTestSearch(repo, emb, &fakeNamespace{}, ModeHybrid)

	_, err := svc.Search(context.Background(), SearchRequest{Query: "lamp", Model: "nope"})
	if !domain.IsKind(err, domain.KindInput) {
		t.Errorf("expected input error, got %v", err)
	}
	if emb.callCount() != 0 {
		t.Error("expected no embedding call for an unknown model")
	}
}

func TestSearch_IndexOverride(t *testing.T) {
	repo := seedCatalog(t)
	index := &fakeIndex{}
	override := index.Namespace("other-index", "products-2").(*fakeNamespace)
	override.matches = []port.VectorMatch{{ID: "2", Score: 0.6}}
	profileNS := &fakeNamespace{}

	svc := NewSearchService(repo, singleProfile(&fakeEmbedder{}, profileNS), index, stubImages{}, nil, testSearchConfig(ModeSemantic), nil)
	resp, err := svc.Search(context.Background(), SearchRequest{Query: "travel", Index: "other-index", Namespace: "products-2"})
	if err != nil {
		t.Fatal(err)
	}
	if profileNS.queries != 0 || override.queries != 1 {
		t.Errorf("expected override namespace to be queried, profile=%d override=%d", profileNS.queries, override.queries)
	}
	if !equalIDs(resultIDs(resp.Results), []int64{2}) {
		t.Errorf("expected [2], got %v", resultIDs(resp.Results))
	}
}

func TestSearch_QueryEmbeddingIsCached(t *testing.T) {
	repo := seedCatalog(t)
	emb := &fakeEmbedder{}
	cache := embedding.NewCache(8, 0)
	svc := NewSearchService(repo, singleProfile(emb, &fakeNamespace{}), &fakeIndex{}, stubImages{}, cache, testSearchConfig(ModeHybrid), nil)

	for i := 0; i < 3; i++ {
		if _, err := svc.Search(context.Background(), SearchRequest{Query: "lamp"}); err != nil {
			t.Fatal(err)
		}
	}
	if emb.callCount() != 1 {
		t.Errorf("expected one provider call, got %d", emb.callCount())
	}
}

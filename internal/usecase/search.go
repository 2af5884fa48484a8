package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"storefront/config"
	"storefront/internal/adapter/embedding"
	"storefront/internal/domain"
	"storefront/internal/logger"
	"storefront/internal/port"
)

// SearchState is the stage a search request finished in.
type SearchState string

const (
	StateStart                   SearchState = "start"
	StateEmbeddingGenerated      SearchState = "embedding_generated"
	StateVectorQueried           SearchState = "vector_queried"
	StateResultsFetched          SearchState = "results_fetched"
	StateRanked                  SearchState = "ranked"
	StateDone                    SearchState = "done"
	StateEmbeddingFailed         SearchState = "embedding_failed"
	StateIndexFailed             SearchState = "index_failed"
	StateNoResultsAboveThreshold SearchState = "no_results_above_threshold"
)

const (
	ModeHybrid   = "hybrid"
	ModeSemantic = "semantic"
)

// SearchRequest carries one search. Zero values fall back to configuration.
type SearchRequest struct {
	Query     string
	Model     string
	Index     string
	Namespace string
	TopK      int
	PageSize  int
}

// SearchResponse is the ranked result of a search. Degraded names the
// fallback that served the request, if any.
type SearchResponse struct {
	Results  []domain.SearchResult
	State    SearchState
	Degraded string
}

// SearchService runs hybrid product search: keyword matches from the
// relational store first, then vector matches above the similarity threshold,
// resolved against the store and deduplicated.
type SearchService struct {
	repo   port.ProductRepository
	models port.ModelCatalog
	index  port.VectorIndex
	images port.ImageResolver
	cache  *embedding.Cache
	cfg    config.SearchConfig
	log    *logger.Logger
}

// NewSearchService creates a search service. cache may be nil.
func NewSearchService(
	repo port.ProductRepository,
	models port.ModelCatalog,
	index port.VectorIndex,
	images port.ImageResolver,
	cache *embedding.Cache,
	cfg config.SearchConfig,
	log *logger.Logger,
) *SearchService {
	if log == nil {
		log = logger.Discard()
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeHybrid
	}
	return &SearchService{
		repo:   repo,
		models: models,
		index:  index,
		images: images,
		cache:  cache,
		cfg:    cfg,
		log:    log.WithComponent("search"),
	}
}

// List returns products ordered by id. limit <= 0 lists everything.
func (s *SearchService) List(ctx context.Context, limit int) ([]domain.SearchResult, error) {
	products, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, domain.NewRepositoryFailure("list products", err)
	}
	results := make([]domain.SearchResult, 0, len(products))
	for _, p := range products {
		results = append(results, domain.NewSearchResult(p, s.images.ImageURL(p.Images), domain.MatchNone, 0))
	}
	return results, nil
}

// Search runs one request through the pipeline. Only input and repository
// failures are returned as errors; provider and index failures degrade.
func (s *SearchService) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		results, err := s.List(ctx, 0)
		if err != nil {
			return SearchResponse{}, err
		}
		return SearchResponse{Results: results, State: StateDone}, nil
	}

	t := &searchTrace{
		id:    uuid.NewString(),
		start: time.Now(),
		log:   s.log,
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = s.cfg.PageSize
	}

	profile, profileErr := s.models.Profile(req.Model)
	if errors.Is(profileErr, domain.ErrUnknownModel) {
		return SearchResponse{}, domain.NewInputError("search", profileErr)
	}

	modelName := profile.Name
	if modelName == "" {
		modelName = req.Model
	}
	t.info("search started",
		logger.F("query", query), logger.F("model", modelName), logger.F("mode", s.cfg.Mode),
		logger.F("top_k", topK), logger.F("threshold", s.cfg.SimilarityThreshold))

	tokens := domain.Tokenize(query)

	t.stage(StateStart)

	var (
		exact []domain.Product
		err   error
	)
	if s.cfg.Mode == ModeHybrid {
		exact, err = s.keyword(ctx, tokens)
		if err != nil {
			return SearchResponse{}, err
		}
		t.debug("keyword matches", logger.Count(len(exact)))
	}

	finish := func(state SearchState, degraded string, vector []domain.SearchResult) SearchResponse {
		resp := SearchResponse{
			Results:  s.rank(exact, vector, pageSize),
			State:    state,
			Degraded: degraded,
		}
		t.info("search finished",
			logger.F("state", state), logger.F("degraded", degraded),
			logger.Count(len(resp.Results)), logger.Duration(time.Since(t.start)))
		return resp
	}

	// A profile that cannot be built (missing key, bad provider) is treated
	// like a failing provider.
	var vector []float32
	err = profileErr
	if err == nil {
		vector, err = s.embed(ctx, t, profile, query)
	}
	if err != nil {
		// Semantic mode has no keyword block, so this returns nothing.
		t.warn("embedding failed", logger.Err(domain.NewProviderFailure("embed query", modelName, err)))
		return finish(StateEmbeddingFailed, "embedding_failed", nil), nil
	}
	t.stage(StateEmbeddingGenerated)

	vectors := profile.Vectors
	indexName, namespace := profile.Index, profile.Namespace
	if req.Index != "" || req.Namespace != "" {
		if req.Index != "" {
			indexName = req.Index
		}
		if req.Namespace != "" {
			namespace = req.Namespace
		}
		vectors = s.index.Namespace(indexName, namespace)
	}

	matches, err := s.query(ctx, t, vectors, vector, topK)
	if err != nil {
		t.warn("vector search failed, using keyword matches",
			logger.Err(domain.NewIndexServiceFailure("query", indexName, namespace, err)))
		if s.cfg.Mode == ModeSemantic {
			exact, err = s.keyword(ctx, tokens)
			if err != nil {
				return SearchResponse{}, err
			}
		}
		return finish(StateIndexFailed, "index_unavailable", nil), nil
	}
	t.stage(StateVectorQueried)

	ids, scores := s.filterMatches(t, matches, exact)
	if len(scores) == 0 {
		t.info("no vector matches above threshold", logger.F("threshold", s.cfg.SimilarityThreshold))
		return finish(StateNoResultsAboveThreshold, "", nil), nil
	}

	fetchStart := time.Now()
	products, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return SearchResponse{}, domain.NewRepositoryFailure("fetch products by id", err)
	}
	t.debug("products fetched", logger.Count(len(products)), logger.Duration(time.Since(fetchStart)))
	t.stage(StateResultsFetched)

	s.reportDrift(t, ids, products, indexName, namespace)

	results := make([]domain.SearchResult, 0, len(products))
	for _, p := range products {
		results = append(results, domain.NewSearchResult(p, s.images.ImageURL(p.Images), domain.MatchVector, scores[p.ID]))
	}
	t.stage(StateRanked)

	return finish(StateDone, "", results), nil
}

func (s *SearchService) keyword(ctx context.Context, tokens []string) ([]domain.Product, error) {
	products, err := s.repo.FindByTokens(ctx, tokens)
	if err != nil {
		return nil, domain.NewRepositoryFailure("keyword search", err)
	}
	return products, nil
}

func (s *SearchService) embed(ctx context.Context, t *searchTrace, profile port.ModelProfile, query string) ([]float32, error) {
	emb := profile.Embedder
	if s.cache != nil {
		emb = embedding.NewCachedEmbedder(emb, s.cache)
	}

	ctx, cancel := withTimeout(ctx, s.cfg.EmbeddingTimeout)
	defer cancel()

	start := time.Now()
	vector, err := emb.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("empty embedding")
	}
	t.debug("embedding generated", logger.F("dimension", len(vector)), logger.Duration(time.Since(start)))
	return vector, nil
}

func (s *SearchService) query(ctx context.Context, t *searchTrace, ns port.VectorNamespace, vector []float32, topK int) ([]port.VectorMatch, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.IndexTimeout)
	defer cancel()

	start := time.Now()
	matches, err := ns.Query(ctx, vector, topK, true)
	if err != nil {
		return nil, err
	}

	fields := []logger.Field{logger.Count(len(matches)), logger.Duration(time.Since(start))}
	if len(matches) > 0 {
		lo, hi := matches[0].Score, matches[0].Score
		for _, m := range matches {
			lo = min(lo, m.Score)
			hi = max(hi, m.Score)
		}
		fields = append(fields, logger.F("score_min", lo), logger.F("score_max", hi))
	}
	t.debug("vector search done", fields...)

	if s.log.Enabled(logger.LevelDebug) {
		for i, m := range matches {
			if i == 5 {
				break
			}
			t.debug("match", logger.F("rank", i+1), logger.F("id", m.ID), logger.F("score", m.Score), logger.F("name", m.Metadata["name"]))
		}
	}
	return matches, nil
}

// filterMatches keeps matches at or above the threshold, drops ids that are
// not product ids, and drops ids already served by the keyword block. It
// returns the ids still to fetch and the score of every kept match.
func (s *SearchService) filterMatches(t *searchTrace, matches []port.VectorMatch, exact []domain.Product) ([]int64, map[int64]float64) {
	inExact := make(map[int64]bool, len(exact))
	for _, p := range exact {
		inExact[p.ID] = true
	}

	scores := make(map[int64]float64)
	var ids []int64
	for _, m := range matches {
		if m.Score < s.cfg.SimilarityThreshold {
			continue
		}
		id, ok := domain.ParseVectorID(m.ID)
		if !ok {
			t.warn("skipping vector with non-numeric id", logger.F("id", m.ID))
			continue
		}
		if _, seen := scores[id]; seen {
			continue
		}
		scores[id] = m.Score
		if !inExact[id] {
			ids = append(ids, id)
		}
	}
	return ids, scores
}

func (s *SearchService) reportDrift(t *searchTrace, ids []int64, products []domain.Product, index, namespace string) {
	if len(products) == len(ids) {
		return
	}
	found := make(map[int64]bool, len(products))
	for _, p := range products {
		found[p.ID] = true
	}
	var missing []int64
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	drift := &domain.Error{
		Kind:    domain.KindConsistency,
		Op:      "resolve vector matches",
		Message: fmt.Sprintf("index %s/%s references missing products %v", index, namespace, missing),
	}
	t.warn("SYNC WARNING: vector ids missing from product store", logger.Count(len(missing)), logger.Err(drift))
}

// rank puts keyword matches first in store order, then vector matches by
// descending score (ties by id), truncated to pageSize.
func (s *SearchService) rank(exact []domain.Product, vector []domain.SearchResult, pageSize int) []domain.SearchResult {
	results := make([]domain.SearchResult, 0, len(exact)+len(vector))
	for _, p := range exact {
		results = append(results, domain.NewSearchResult(p, s.images.ImageURL(p.Images), domain.MatchExact, s.cfg.ExactMatchScore))
	}

	sort.SliceStable(vector, func(i, j int) bool {
		if vector[i].Score != vector[j].Score {
			return vector[i].Score > vector[j].Score
		}
		return vector[i].ID < vector[j].ID
	})
	results = append(results, vector...)

	if pageSize > 0 && len(results) > pageSize {
		results = results[:pageSize]
	}
	return results
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// searchTrace tags every log line of one request with its id.
type searchTrace struct {
	id    string
	start time.Time
	log   *logger.Logger
}

func (t *searchTrace) fields(extra []logger.Field) []logger.Field {
	return append([]logger.Field{logger.F("request_id", t.id)}, extra...)
}

func (t *searchTrace) stage(state SearchState) {
	t.debug("stage", logger.F("state", state), logger.F("elapsed", time.Since(t.start)))
}

func (t *searchTrace) debug(msg string, fields ...logger.Field) { t.log.Debug(msg, t.fields(fields)...) }
func (t *searchTrace) info(msg string, fields ...logger.Field)  { t.log.Info(msg, t.fields(fields)...) }
func (t *searchTrace) warn(msg string, fields ...logger.Field)  { t.log.Warn(msg, t.fields(fields)...) }

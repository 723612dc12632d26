package manuals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/goreason/manuals/adapters/cache"
	"github.com/goreason/manuals/adapters/chunkstore"
	adapterllm "github.com/goreason/manuals/adapters/llm"
	"github.com/goreason/manuals/adapters/keyword"
	"github.com/goreason/manuals/adapters/pdf"
	"github.com/goreason/manuals/adapters/vector"
	"github.com/goreason/manuals/agent/graph"
	"github.com/goreason/manuals/agent/planner"
	"github.com/goreason/manuals/agent/tools"
	"github.com/goreason/manuals/answer"
	"github.com/goreason/manuals/chunk"
	"github.com/goreason/manuals/evaluator"
	"github.com/goreason/manuals/figureextract"
	"github.com/goreason/manuals/ingest"
	"github.com/goreason/manuals/llm"
	"github.com/goreason/manuals/metrics"
	"github.com/goreason/manuals/ports"
	"github.com/goreason/manuals/retrieval"
	"github.com/goreason/manuals/tableextract"
	"github.com/goreason/manuals/tracelog"
)

// Engine is the evidence pipeline core's root facade: it wires every
// adapter declared in SPEC_FULL.md's DOMAIN STACK behind the ports
// package and exposes the pipeline's public operations (Ingest,
// Search, Answer, Evaluate).
type Engine struct {
	cfg Config

	chunkStore *chunkstore.Store
	pdfParser  ports.PdfParser
	vision     ports.Vision
	embedding  ports.Embedding

	figureExtractor *figureextract.Extractor
	tableExtractor  *tableextract.Extractor

	keywordSearch ports.KeywordSearch
	vectorSearch  ports.VectorSearch
	answerer      ports.Llm // chat-backed answer drafter, also used for planning

	retrieval *retrieval.Engine
	composer  *answer.Composer
	evaluator *evaluator.Evaluator

	metrics *metrics.Metrics

	retrievalTrace *tracelog.FileTrace
	answerTrace    *tracelog.FileTrace
	agenticTrace   *tracelog.FileTrace

	redisClient *redis.Client
}

// New builds a fully wired Engine from cfg. It validates cfg, builds the
// LLM-backed adapters (chat/embedding/vision), the hybrid retrieval
// stack, the agentic answer composer, and the evaluator, per
// SPEC_FULL.md §1's DOMAIN STACK.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	chatProvider, err := llm.NewProvider(toLlmConfig(cfg.Chat))
	if err != nil {
		return nil, fmt.Errorf("building chat provider: %w", err)
	}
	embedProvider, err := llm.NewProvider(toLlmConfig(cfg.Embedding))
	if err != nil {
		return nil, fmt.Errorf("building embedding provider: %w", err)
	}

	var visionPort ports.Vision
	if cfg.UseVisionIngestion {
		if cfg.Vision.Provider == "" {
			return nil, ErrVisionRequired
		}
		visionProvider, err := llm.NewProvider(toLlmConfig(cfg.Vision))
		if err != nil {
			return nil, fmt.Errorf("building vision provider: %w", err)
		}
		vp, ok := visionProvider.(llm.VisionProvider)
		if !ok {
			return nil, fmt.Errorf("%w: provider %q does not support vision", ErrVisionRequired, cfg.Vision.Provider)
		}
		visionPort = adapterllm.NewVision(vp)
	}

	answerer := adapterllm.NewAnswerer(chatProvider, cfg.Chat.Model)
	var embedding ports.Embedding = adapterllm.NewEmbedder(embedProvider)

	var redisClient *redis.Client
	if cfg.EmbeddingCache {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.EmbeddingCacheAddr})
		embedding = cache.New(embedding, redisClient, 24*time.Hour)
	}

	var vectorSearch ports.VectorSearch
	switch cfg.EmbeddingProvider {
	case "metadata":
		vectorSearch = vector.NewSqliteVec(embedding)
	default:
		vectorSearch = vector.NewHashed(cfg.EmbeddingDim)
	}
	keywordSearch := keyword.New()

	store := chunkstore.New(cfg.AssetsDir)

	retrievalTrace, err := tracelog.Open(cfg.RetrievalTraceFile)
	if err != nil {
		return nil, fmt.Errorf("opening retrieval trace: %w", err)
	}
	answerTrace, err := tracelog.Open(cfg.AnswerTraceFile)
	if err != nil {
		return nil, fmt.Errorf("opening answer trace: %w", err)
	}
	agenticTrace, err := tracelog.Open(cfg.AgenticTraceFile)
	if err != nil {
		return nil, fmt.Errorf("opening agentic trace: %w", err)
	}

	e := &Engine{
		cfg:             cfg,
		chunkStore:      store,
		pdfParser:       pdf.New(),
		vision:          visionPort,
		embedding:       embedding,
		figureExtractor: figureextract.New(),
		tableExtractor:  tableextract.New(),
		keywordSearch:   keywordSearch,
		vectorSearch:    vectorSearch,
		answerer:        answerer,
		metrics:         metrics.New(),
		retrievalTrace:  retrievalTrace,
		answerTrace:     answerTrace,
		agenticTrace:    agenticTrace,
		redisClient:     redisClient,
	}

	e.retrieval = e.buildRetrieval(store)
	e.composer = e.buildComposer(e.retrieval)
	e.evaluator = evaluator.New(e.composer)
	return e, nil
}

// buildRetrieval constructs a hybrid retrieval engine over chunks,
// reusing the keyword/vector searchers already configured for this
// Engine. Called once for the default corpus and again, per request,
// over a doc_ids-scoped view.
func (e *Engine) buildRetrieval(chunks ports.ChunkQuery) *retrieval.Engine {
	return retrieval.New(chunks, e.keywordSearch, e.vectorSearch, nil, zerolog.Nop())
}

// buildComposer constructs the agentic answer composer over retrievalEngine:
// a deterministic planner when no chat provider is configured, or an
// LLM-backed planner otherwise, per spec.md §4.H.
func (e *Engine) buildComposer(retrievalEngine *retrieval.Engine) *answer.Composer {
	toolExecutor := tools.New(retrievalEngine, e.answerer)
	var graphPlanner ports.Planner = planner.New()
	if e.cfg.Chat.Provider != "" {
		graphPlanner = planner.NewLLM(e.answerer, e.agenticTrace)
	}
	graphRunner := graph.New(graphPlanner, toolExecutor, e.agenticTrace)
	return answer.New(retrievalEngine, e.answerer, graphRunner, graphPlanner, toolExecutor, e.agenticTrace, e.answerTrace)
}

// Close releases trace files and the optional embedding-cache client.
func (e *Engine) Close() error {
	if e.retrievalTrace != nil {
		if err := e.retrievalTrace.Close(); err != nil {
			return err
		}
	}
	if e.answerTrace != nil {
		if err := e.answerTrace.Close(); err != nil {
			return err
		}
	}
	if e.agenticTrace != nil {
		if err := e.agenticTrace.Close(); err != nil {
			return err
		}
	}
	if e.redisClient != nil {
		return e.redisClient.Close()
	}
	return nil
}

// Metrics exposes the Prometheus collectors for a /metrics scrape
// endpoint.
func (e *Engine) Metrics() *metrics.Metrics { return e.metrics }

// IngestInput configures one Ingest call.
type IngestInput struct {
	DocID   string // optional; a uuid is generated when empty
	PDFPath string
}

// Ingest parses, chunks, embeds, and persists one PDF document, per
// spec.md §4 (ingestion pipeline).
func (e *Engine) Ingest(ctx context.Context, in IngestInput) (ingest.Result, error) {
	if !strings.HasSuffix(strings.ToLower(in.PDFPath), ".pdf") {
		return ingest.Result{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, in.PDFPath)
	}

	docID := in.DocID
	if docID == "" {
		docID = uuid.NewString()
	}

	result, err := ingest.Run(ctx, ingest.Options{
		DocID:                       docID,
		PDFPath:                     in.PDFPath,
		PdfParser:                   e.pdfParser,
		Ocr:                         e.ocr(),
		Vision:                      e.vision,
		TableExtractor:              e.tableExtractor,
		FigureExtractor:             e.figureExtractor,
		FigureGeometry:              e.pageGeometry,
		Embedding:                   e.embedding,
		ChunkStore:                  e.chunkStore,
		VisionMaxPages:              e.cfg.VisionMaxPages,
		PageWorkers:                 e.cfg.IngestPageWorkers,
		EmbeddingMinCoverage:        e.cfg.EmbeddingMinCoverage,
		EmbeddingFailFast:           e.cfg.EmbeddingFailFast,
		EmbeddingSecondPassMaxChars: e.cfg.EmbeddingSecondPassMaxChars,
	})
	if err != nil {
		e.metrics.IngestFailures.WithLabelValues("ingest_failed").Inc()
		if errors.Is(err, ingest.ErrEmbeddingCoverage) {
			err = fmt.Errorf("%w: %w", ErrEmbeddingCoverage, err)
		}
		return result, err
	}

	e.metrics.DocumentsIngested.WithLabelValues(docID).Inc()
	for ct, n := range result.CountsByType {
		e.metrics.ChunksPersisted.WithLabelValues(string(ct)).Add(float64(n))
	}
	e.metrics.EmbeddingCoverage.WithLabelValues(docID).Observe(result.EmbeddingCoverage)
	return result, nil
}

// ocr adapts the Vision adapter to ports.Ocr: the reference vision
// adapter implements both via one underlying vision-capable provider.
func (e *Engine) ocr() ports.Ocr {
	if v, ok := e.vision.(ports.Ocr); ok {
		return v
	}
	return nil
}

// pageGeometry adapts the pdf adapter's best-effort geometry lookup to
// the figureextract.PageGeometry signature ingest.Options expects, only
// when the parser in use actually exposes one.
func (e *Engine) pageGeometry(pageNumber int) (figureextract.PageGeometry, bool) {
	p, ok := e.pdfParser.(*pdf.Parser)
	if !ok {
		return figureextract.PageGeometry{}, false
	}
	return p.Geometry(pageNumber)
}

// SearchInput configures one Search call, including the multi-document
// doc_ids scope filter of spec.md §6.1.
type SearchInput struct {
	Query          string
	DocID          string
	DocIDs         []string
	TopN           int
	RerankPoolSize int
}

// Search runs hybrid retrieval, per spec.md §6.1 GET /search.
func (e *Engine) Search(ctx context.Context, in SearchInput) (retrieval.Result, error) {
	start := time.Now()
	engine := e.retrieval
	if len(in.DocIDs) > 0 {
		engine = e.buildRetrieval(scopeChunkQuery(e.chunkStore, in.DocIDs))
	}

	res, err := engine.Search(ctx, in.Query, in.DocID, retrieval.Options{TopN: in.TopN, RerankPoolSize: in.RerankPoolSize})
	if err != nil {
		return res, err
	}
	e.metrics.SearchLatency.WithLabelValues(res.Intent).Observe(time.Since(start).Seconds())
	e.metrics.SearchHits.WithLabelValues(res.Intent).Observe(float64(len(res.Hits)))
	e.logRetrievalTrace(res)
	return res, nil
}

// AnswerInput configures one Answer call, including the multi-document
// doc_ids scope filter of spec.md §6.1.
type AnswerInput struct {
	Query                   string
	DocID                   string
	DocIDs                  []string
	TopN                    int
	RerankPoolSize          int
	UseAgenticMode          bool
	EnforceStructuredOutput bool
}

// Answer composes a grounded answer, per spec.md §6.1 GET /answer.
func (e *Engine) Answer(ctx context.Context, in AnswerInput) (answer.Output, error) {
	start := time.Now()
	composer := e.composer
	if len(in.DocIDs) > 0 {
		scopedRetrieval := e.buildRetrieval(scopeChunkQuery(e.chunkStore, in.DocIDs))
		composer = e.buildComposer(scopedRetrieval)
	}

	out, err := composer.Compose(ctx, answer.Input{
		Query:                   in.Query,
		DocID:                   in.DocID,
		TopN:                    in.TopN,
		RerankPoolSize:          in.RerankPoolSize,
		UseAgenticMode:          in.UseAgenticMode && e.cfg.UseAgenticMode,
		EnforceStructuredOutput: in.EnforceStructuredOutput || e.cfg.EnforceStructuredOutput,
		Limits: ports.GraphRunLimits{
			MaxIterations:  e.cfg.AgenticMaxIterations,
			MaxToolCalls:   e.cfg.AgenticMaxToolCalls,
			TimeoutSeconds: e.cfg.AgenticTimeoutSeconds,
		},
	})
	if err != nil {
		return out, err
	}
	e.metrics.AnswersComposed.WithLabelValues(out.Status, out.Confidence).Inc()
	e.metrics.AnswerLatency.WithLabelValues(out.Status).Observe(time.Since(start).Seconds())
	return out, nil
}

// Evaluate runs a multi-turn golden question through the answer
// composer, per spec.md §4.K.
func (e *Engine) Evaluate(ctx context.Context, q evaluator.Question) (evaluator.Rollup, error) {
	return e.evaluator.Run(ctx, q, e.cfg.UseAgenticMode, e.cfg.EnforceStructuredOutput)
}

func (e *Engine) logRetrievalTrace(res retrieval.Result) {
	if e.retrievalTrace == nil {
		return
	}
	ids := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.ChunkID)
	}
	e.retrievalTrace.Log(map[string]any{
		"timestamp":            time.Now().UTC().Format(time.RFC3339),
		"query":                res.Query,
		"intent":               res.Intent,
		"total_chunks_scanned": res.TotalChunksScanned,
		"retrieved_chunk_ids":  ids,
	})
}

func toLlmConfig(c LLMConfig) llm.Config {
	return llm.Config{Provider: c.Provider, Model: c.Model, BaseURL: c.BaseURL, APIKey: c.APIKey}
}

// scopeChunkQuery wraps store so ListChunks only returns chunks whose
// doc_id is in docIDs, implementing the comma-separated doc_ids scope
// filter of spec.md §6.1, distinct from the single-doc_id signature the
// rest of the pipeline uses internally.
func scopeChunkQuery(store *chunkstore.Store, docIDs []string) ports.ChunkQuery {
	allow := make(map[string]bool, len(docIDs))
	for _, id := range docIDs {
		id = strings.TrimSpace(id)
		if id != "" {
			allow[id] = true
		}
	}
	return scopedChunkQuery{inner: store, allow: allow}
}

type scopedChunkQuery struct {
	inner ports.ChunkQuery
	allow map[string]bool
}

func (s scopedChunkQuery) ListChunks(ctx context.Context, docID string) ([]chunk.Chunk, error) {
	if docID != "" && !s.allow[docID] {
		return nil, nil
	}
	all, err := s.inner.ListChunks(ctx, docID)
	if err != nil {
		return nil, err
	}
	out := make([]chunk.Chunk, 0, len(all))
	for _, c := range all {
		if s.allow[c.DocID()] {
			out = append(out, c)
		}
	}
	return out, nil
}

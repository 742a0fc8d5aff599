package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/docstore"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/provider"
	"github.com/starford/laguz/internal/storage"
)

// Result is the successful outcome of one pipeline run.
type Result struct {
	DocumentID      string
	ChunksCreated   int
	ImagesProcessed int
	PageCount       int
	Deduplicated    bool
	Empty           bool
}

// ProgressFunc receives coarse progress updates as stages complete.
type ProgressFunc func(stage models.Stage, percent int)

// Config holds the chunking parameters.
type Config struct {
	ChunkSize    int // max runes per chunk
	ChunkOverlap int // overlapping runes between adjacent chunks
	MaxPageChars int // hard cap before a page is split further
}

// Pipeline runs the three ingestion stages for one file. Stages are
// strictly forward and never retry internally; retry is the background
// worker's job, at whole-file granularity.
type Pipeline struct {
	store     storage.Provider
	docs      docstore.Store
	embedder  provider.Embedder
	describer provider.VisionDescriber
	cfg       Config
	logger    *slog.Logger
}

// New creates a pipeline over the given collaborators.
func New(store storage.Provider, docs docstore.Store, embedder provider.Embedder, describer provider.VisionDescriber, cfg Config, logger *slog.Logger) *Pipeline {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 5
	}
	if cfg.MaxPageChars <= 0 {
		cfg.MaxPageChars = 8000
	}
	return &Pipeline{
		store:     store,
		docs:      docs,
		embedder:  embedder,
		describer: describer,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run drives path through Extract → Prepare → EmbedAndStore. Any stage
// failure returns a *apperr.StageError naming the originating stage; no
// error ever escapes the pipeline untagged.
func (p *Pipeline) Run(ctx context.Context, path, contentHash string, onProgress ProgressFunc) (*Result, error) {
	progress := func(stage models.Stage, pct int) {
		if onProgress != nil {
			onProgress(stage, pct)
		}
	}

	// Extract.
	ext, err := p.extractStage(path)
	if err != nil {
		return nil, apperr.NewStageError(string(models.StageExtract), err)
	}
	progress(models.StageExtract, 30)

	// Prepare.
	chunks, imagesProcessed := p.prepareStage(ctx, path, ext.Pages)
	progress(models.StagePrepare, 60)

	// EmbedAndStore.
	res, err := p.embedAndStore(ctx, path, contentHash, ext.Title, chunks, len(ext.Pages))
	if err != nil {
		return nil, apperr.NewStageError(string(models.StageEmbedAndStore), err)
	}
	progress(models.StageEmbedAndStore, 100)

	out := &Result{
		DocumentID:      res.DocumentID,
		ChunksCreated:   res.ChunksStored,
		ImagesProcessed: imagesProcessed,
		PageCount:       len(ext.Pages),
		Deduplicated:    res.Status == docstore.StatusExists,
		Empty:           len(chunks) == 0,
	}
	if out.Empty {
		p.logger.Info("pipeline: empty document", slog.String("path", path))
	}
	return out, nil
}

func (p *Pipeline) extractStage(path string) (*extraction, error) {
	ex := &extractor{store: p.store, maxPageChars: p.cfg.MaxPageChars, logger: p.logger}
	return ex.extract(path)
}

// prepareStage processes pages in page-number order: image descriptions are
// appended to the page text, then the merged text is chunked. Per-page
// vision failures are logged and skipped; they never abort the page's text
// chunking.
func (p *Pipeline) prepareStage(ctx context.Context, path string, pages []models.PageUnit) ([]models.ChunkUnit, int) {
	var chunks []models.ChunkUnit
	imagesProcessed := 0

	for _, page := range pages {
		text := page.Text
		if len(page.Images) > 0 {
			descs, err := p.describer.Describe(ctx, page.Images)
			if err != nil || len(descs) != len(page.Images) {
				p.logger.Warn("pipeline: describe page images failed",
					slog.String("path", path),
					slog.Int("page", page.Number),
					slog.Any("error", err))
			} else {
				for i, d := range descs {
					if d == "" {
						d = provider.PlaceholderDescription
					}
					text += fmt.Sprintf("\n\n[Image: %s] %s", page.Images[i].Source, d)
					imagesProcessed++
				}
			}
		}

		for seq, c := range chunkText(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap) {
			chunks = append(chunks, models.ChunkUnit{Text: c, Page: page.Number, Seq: seq})
		}
	}
	return chunks, imagesProcessed
}

func (p *Pipeline) embedAndStore(ctx context.Context, path, contentHash, title string, chunks []models.ChunkUnit, pageCount int) (*docstore.StoreResult, error) {
	var vectors [][]float32
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		var err error
		vectors, err = p.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(chunks) {
			return nil, fmt.Errorf("pipeline: %d chunks but %d vectors", len(chunks), len(vectors))
		}
	}
	return p.docs.StoreDocument(path, contentHash, title, chunks, vectors, pageCount)
}

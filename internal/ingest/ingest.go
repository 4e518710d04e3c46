package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mixelka/docsbot/internal/parser"
	"github.com/mixelka/docsbot/internal/pinecone"
)

// upsertBatchSize caps one index write request
const upsertBatchSize = 100

// Embedder turns one chunk into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Upserter writes vectors into the index
type Upserter interface {
	Upsert(ctx context.Context, vectors []pinecone.Vector) (int, error)
}

// Options configures an Ingestor
type Options struct {
	ChunkSize    int // runes per chunk
	ChunkOverlap int // runes repeated between neighbors
}

// Ingestor feeds documents through the split/embed/upsert pipeline.
type Ingestor struct {
	embedder Embedder
	upserter Upserter
	opts     Options
	logger   *slog.Logger
}

// NewIngestor creates an ingestor over the embedder and index
func NewIngestor(embedder Embedder, upserter Upserter, opts Options, logger *slog.Logger) *Ingestor {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 500
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = 50
	}
	return &Ingestor{
		embedder: embedder,
		upserter: upserter,
		opts:     opts,
		logger:   logger.With("component", "ingest"),
	}
}

// IngestFile loads one document. The document name in the chunk
// metadata is the file name without extension, matching the name the
// retrieval filter and source display use.
func (i *Ingestor) IngestFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read document: %w", err)
	}

	text := string(data)
	if strings.EqualFold(filepath.Ext(path), ".html") {
		if text, err = parser.HTMLToText(text); err != nil {
			return 0, fmt.Errorf("failed to normalize %s: %w", path, err)
		}
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	chunks := SplitText(text, i.opts.ChunkSize, i.opts.ChunkOverlap)
	if len(chunks) == 0 {
		i.logger.Warn("document is empty, skipping", "document", name)
		return 0, nil
	}

	var batch []pinecone.Vector
	total := 0
	for idx, chunk := range chunks {
		vec, err := i.embedder.Embed(ctx, chunk)
		if err != nil {
			return total, fmt.Errorf("failed to embed chunk %d of %s: %w", idx, name, err)
		}

		batch = append(batch, pinecone.Vector{
			ID:     fmt.Sprintf("%s-%04d", name, idx),
			Values: vec,
			Metadata: map[string]any{
				"document":    name,
				"chunk_index": idx,
				"text":        chunk,
			},
		})

		if len(batch) == upsertBatchSize {
			n, err := i.upserter.Upsert(ctx, batch)
			if err != nil {
				return total, fmt.Errorf("failed to upsert %s: %w", name, err)
			}
			total += n
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		n, err := i.upserter.Upsert(ctx, batch)
		if err != nil {
			return total, fmt.Errorf("failed to upsert %s: %w", name, err)
		}
		total += n
	}

	i.logger.Info("document ingested", "document", name, "chunks", len(chunks), "upserted", total)
	return total, nil
}

// IngestDir loads every .txt and .html file in dir, non-recursively.
// A failing document aborts the run: a half-ingested corpus is worse
// than a loudly failed one.
func (i *Ingestor) IngestDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list documents: %w", err)
	}

	total := 0
	matched := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".txt", ".html":
		default:
			continue
		}
		matched++

		n, err := i.IngestFile(ctx, filepath.Join(dir, entry.Name()))
		if err != nil {
			return total, err
		}
		total += n
	}

	if matched == 0 {
		return 0, fmt.Errorf("no ingestable documents in %s", dir)
	}
	return total, nil
}

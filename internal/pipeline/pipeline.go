// Package pipeline orchestrates fax processing: concurrent LLM field
// extraction and classification, aggregation rules, and overlay of
// operator corrections recalled from the correction store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/faxd/internal/agent"
	"github.com/fyrsmithlabs/faxd/internal/corrections"
	"github.com/fyrsmithlabs/faxd/internal/fields"
)

var tracer = otel.Tracer(instrumentationName)

var (
	// ErrEmptyDocument is returned when the document text is empty or
	// whitespace-only.
	ErrEmptyDocument = errors.New("empty document text")
)

const (
	defaultTopK          = 3
	defaultMinSimilarity = 0.85
)

// Config controls correction recall and which fields it applies to.
type Config struct {
	// TopK is the number of candidate corrections requested per field.
	TopK int

	// MinSimilarity is the cosine similarity floor below which a recalled
	// correction is ignored. Zero is a valid floor (accept any match);
	// nil selects the default.
	MinSimilarity *float64

	// Correctable lists the fields eligible for correction overlay.
	// Defaults to every field except the generated comment.
	Correctable []fields.Field
}

// ApplyDefaults fills in zero values.
func (c *Config) ApplyDefaults() {
	if c.TopK <= 0 {
		c.TopK = defaultTopK
	}
	if c.MinSimilarity == nil {
		v := defaultMinSimilarity
		c.MinSimilarity = &v
	}
	if len(c.Correctable) == 0 {
		c.Correctable = []fields.Field{
			fields.PatientName,
			fields.DateOfBirth,
			fields.ProviderName,
			fields.DocType,
			fields.DocSubtype,
		}
	}
}

// Pipeline runs documents through extraction, aggregation, and correction
// overlay. It is safe for concurrent use.
type Pipeline struct {
	agent      agent.Agent
	store      corrections.Store
	aggregator Aggregator
	config     Config
	metrics    *Metrics
	logger     *zap.Logger
}

// New creates a Pipeline. The store may be nil, in which case the
// correction stage is skipped entirely.
func New(a agent.Agent, store corrections.Store, config Config, logger *zap.Logger) (*Pipeline, error) {
	if a == nil {
		return nil, errors.New("pipeline: agent is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	return &Pipeline{
		agent:      a,
		store:      store,
		aggregator: DefaultAggregator(),
		config:     config,
		metrics:    NewMetrics(logger),
		logger:     logger,
	}, nil
}

// SetAggregator replaces the default routing and alias rules.
func (p *Pipeline) SetAggregator(ag Aggregator) {
	p.aggregator = ag
}

// Run processes a document end to end and returns a result carrying every
// field with its provenance. Per-field agent failures degrade that field
// to unavailable rather than failing the run; correction store read
// failures likewise leave the LLM value in place. If ctx is canceled
// between stages, Run returns the partial result alongside ctx.Err().
func (p *Pipeline) Run(ctx context.Context, text string) (*fields.Result, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Run")
	defer span.End()

	start := time.Now()
	if strings.TrimSpace(text) == "" {
		p.metrics.recordRun(ctx, "invalid", time.Since(start))
		span.SetStatus(codes.Error, ErrEmptyDocument.Error())
		return nil, ErrEmptyDocument
	}

	result := fields.NewResult()
	result.StartedAt = start
	defer func() {
		result.Duration = time.Since(start)
	}()

	merged := p.extract(ctx, text)

	if err := ctx.Err(); err != nil {
		p.mergeLLM(result, merged)
		p.metrics.recordRun(ctx, "canceled", time.Since(start))
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	p.aggregator.Apply(merged)
	p.mergeLLM(result, merged)

	if err := ctx.Err(); err != nil {
		p.metrics.recordRun(ctx, "canceled", time.Since(start))
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	p.overlay(ctx, text, result)

	p.recordFields(ctx, result)
	p.metrics.recordRun(ctx, "ok", time.Since(start))
	if v := result.Get(fields.DocType); v.Value != nil {
		span.SetAttributes(attribute.String("doc_type", *v.Value))
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// extract fans the three agent calls out concurrently and merges their
// output. Each failure is logged and leaves its fields unset.
func (p *Pipeline) extract(ctx context.Context, text string) fields.Extracted {
	var (
		wg sync.WaitGroup

		extracted  fields.Extracted
		extractErr error

		docType     string
		docSubtype  string
		classifyErr error

		comment    string
		commentErr error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		extracted, extractErr = p.agent.ExtractFields(ctx, text)
	}()
	go func() {
		defer wg.Done()
		docType, docSubtype, classifyErr = p.agent.ClassifyDocument(ctx, text)
	}()
	go func() {
		defer wg.Done()
		comment, commentErr = p.agent.GenerateComment(ctx, text)
	}()
	wg.Wait()

	merged := fields.NewExtracted()
	if extractErr != nil {
		p.logger.Warn("field extraction failed", zap.Error(extractErr))
	} else {
		for _, f := range []fields.Field{fields.PatientName, fields.DateOfBirth, fields.ProviderName} {
			merged.Set(f, extracted.Get(f))
		}
	}
	if classifyErr != nil {
		p.logger.Warn("document classification failed", zap.Error(classifyErr))
	}
	// A partial classification (doc type without subtype) still lands.
	merged.Set(fields.DocType, docType)
	merged.Set(fields.DocSubtype, docSubtype)
	if commentErr != nil {
		p.logger.Warn("comment generation failed", zap.Error(commentErr))
	} else {
		merged.Set(fields.Comment, comment)
	}
	return merged
}

func (p *Pipeline) mergeLLM(result *fields.Result, merged fields.Extracted) {
	for _, f := range fields.All {
		result.SetLLM(f, merged[f])
	}
}

// overlay asks the correction store for each correctable field and, when a
// sufficiently similar correction exists, replaces the LLM value. The best
// match wins; store read errors degrade to the LLM value.
func (p *Pipeline) overlay(ctx context.Context, text string, result *fields.Result) {
	if p.store == nil {
		return
	}

	excerpt := corrections.Excerpt(text)
	for _, f := range p.config.Correctable {
		lookupStart := time.Now()
		matches, err := p.store.FindSimilar(ctx, excerpt, f, p.config.TopK, *p.config.MinSimilarity)
		p.metrics.recordLookup(ctx, string(f), time.Since(lookupStart))
		if err != nil {
			p.logger.Warn("correction lookup failed",
				zap.String("field", string(f)),
				zap.Error(err))
			continue
		}
		if len(matches) == 0 {
			continue
		}
		best := matches[0]
		result.SetCorrection(f, best.Record.Value, best.Similarity)
		p.logger.Debug("correction applied",
			zap.String("field", string(f)),
			zap.String("correction_id", best.Record.ID),
			zap.Float64("similarity", best.Similarity))
	}
}

// SaveCorrection derives the document's excerpt and persists an operator
// correction for the given field. It returns the stored record's ID.
func (p *Pipeline) SaveCorrection(ctx context.Context, text string, field fields.Field, value string) (string, error) {
	ctx, span := tracer.Start(ctx, "pipeline.SaveCorrection")
	defer span.End()

	if p.store == nil {
		return "", fmt.Errorf("%w: no correction store configured", corrections.ErrInvalidConfig)
	}
	if !field.Valid() {
		return "", fmt.Errorf("%w: unknown field %q", corrections.ErrValidation, field)
	}
	excerpt := corrections.Excerpt(text)
	if excerpt == "" {
		return "", fmt.Errorf("%w: empty document text", corrections.ErrValidation)
	}

	id, err := p.store.StoreCorrection(ctx, excerpt, field, value)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	p.metrics.recordCorrectionSaved(ctx, string(field))
	p.logger.Info("correction saved",
		zap.String("correction_id", id),
		zap.String("field", string(field)))
	span.SetAttributes(attribute.String("correction_id", id))
	span.SetStatus(codes.Ok, "")
	return id, nil
}

func (p *Pipeline) recordFields(ctx context.Context, result *fields.Result) {
	for f, v := range result.Fields {
		p.metrics.recordField(ctx, string(f), string(v.Source))
	}
}

package detection

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"ledgerlens/internal/formats"
	"ledgerlens/pkg/contracts/domain"
)

const (
	DefaultSampleSize    = 100
	DefaultMinConfidence = 0.6
)

// Config holds the detection policy
type Config struct {
	SampleSize    int
	MinConfidence float64
}

// DefaultConfig returns the documented detection policy
func DefaultConfig() Config {
	return Config{
		SampleSize:    DefaultSampleSize,
		MinConfidence: DefaultMinConfidence,
	}
}

// Validate checks the policy bounds
func (c Config) Validate() error {
	if c.SampleSize <= 0 {
		return fmt.Errorf("sample size must be positive, got %d", c.SampleSize)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min confidence must be within [0,1], got %v", c.MinConfidence)
	}
	return nil
}

// FormatScore is the match fraction of one candidate format
type FormatScore struct {
	Format   domain.FormatTag `json:"format"`
	Type     domain.DataType  `json:"type"`
	Fraction float64          `json:"fraction"`
	Matched  int              `json:"matched"`
}

// Detector classifies columns. It is stateless after construction and safe
// for concurrent use.
type Detector struct {
	parser *formats.Parser
	cfg    Config
}

// New creates a detector. A zero Config means DefaultConfig; otherwise only
// a non-positive SampleSize falls back, so a MinConfidence of 0 is kept.
func New(parser *formats.Parser, cfg Config) *Detector {
	if parser == nil {
		parser = formats.New()
	}
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = DefaultSampleSize
	}
	return &Detector{parser: parser, cfg: cfg}
}

// Config returns the effective policy
func (d *Detector) Config() Config {
	return d.cfg
}

// AnalyzeColumn classifies one column
func (d *Detector) AnalyzeColumn(col domain.Column) domain.DetectionResult {
	sample := col.NonEmpty(d.cfg.SampleSize)
	if len(sample) == 0 {
		return domain.DetectionResult{Type: domain.TypeString, Format: domain.FormatPlainString}
	}

	best := FormatScore{Format: domain.FormatOther}
	for _, tag := range candidateFormats() {
		score := d.score(tag, sample)
		if score.Matched > best.Matched {
			best = score
		}
	}

	if best.Matched > 0 && best.Fraction >= d.cfg.MinConfidence {
		return domain.DetectionResult{
			Type:       best.Format.Type(),
			Format:     best.Format,
			Confidence: best.Fraction,
			Sampled:    len(sample),
		}
	}

	for _, tag := range domain.StringFormats() {
		if score := d.score(tag, sample); score.Matched > 0 && score.Fraction >= d.cfg.MinConfidence {
			return domain.DetectionResult{
				Type:       domain.TypeString,
				Format:     tag,
				Confidence: score.Fraction,
				Sampled:    len(sample),
			}
		}
	}

	return domain.DetectionResult{
		Type:       domain.TypeString,
		Format:     domain.FormatPlainString,
		Confidence: 1.0,
		Sampled:    len(sample),
	}
}

// Scores returns the match fraction of every candidate format for a column,
// in preference order
func (d *Detector) Scores(col domain.Column) []FormatScore {
	sample := col.NonEmpty(d.cfg.SampleSize)
	tags := append(candidateFormats(), domain.StringFormats()...)
	out := make([]FormatScore, 0, len(tags))
	for _, tag := range tags {
		out = append(out, d.score(tag, sample))
	}
	return out
}

// AnalyzeTable classifies every column of a table, keyed by column name
func (d *Detector) AnalyzeTable(table domain.Table) map[string]domain.DetectionResult {
	out := make(map[string]domain.DetectionResult, len(table.Columns))
	for _, col := range table.Columns {
		out[col.Name] = d.AnalyzeColumn(col)
	}
	return out
}

// AnalyzeColumns classifies columns concurrently. Results are positional and
// identical to calling AnalyzeColumn on each column in turn.
func (d *Detector) AnalyzeColumns(ctx context.Context, cols []domain.Column) ([]domain.DetectionResult, error) {
	results := make([]domain.DetectionResult, len(cols))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range cols {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = d.AnalyzeColumn(cols[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (d *Detector) score(tag domain.FormatTag, sample []domain.Cell) FormatScore {
	s := FormatScore{Format: tag, Type: tag.Type()}
	if len(sample) == 0 {
		return s
	}
	for _, cell := range sample {
		if d.parser.Matches(tag, cell) {
			s.Matched++
		}
	}
	s.Fraction = float64(s.Matched) / float64(len(sample))
	return s
}

// candidateFormats lists date formats before number formats so that ties
// resolve in favour of dates
func candidateFormats() []domain.FormatTag {
	return append(domain.DateFormats(), domain.NumberFormats()...)
}

package grouping

import (
	"log/slog"

	"github.com/DeafMist/event-radar/internal/config"
	"github.com/DeafMist/event-radar/internal/processing"
	"github.com/DeafMist/event-radar/internal/similarity"
)

// OptionsFromConfig maps engine settings onto run options.
func OptionsFromConfig(c config.Grouping) Options {
	return Options{
		Params: Params{
			Threshold:       c.SimilarityThreshold,
			MinGroupSize:    c.MinGroupSize,
			MaxTimeDiffDays: c.MaxTimeDiffDays,
		},
		DaysBack:       c.DaysBack,
		CandidateLimit: c.CandidateLimit,
	}
}

// BuilderFromConfig wires the normalizer, scorer and builder described by c.
func BuilderFromConfig(c config.Grouping, log *slog.Logger) *Builder {
	normalizer := processing.NewNormalizer(c.MinKeywordLength, c.Language)
	weights := similarity.Weights{Title: c.TitleWeight, Content: c.ContentWeight}
	scorer := similarity.NewScorer(normalizer, weights, c.ContentMaxChars)
	return NewBuilder(scorer, c.Workers, log)
}

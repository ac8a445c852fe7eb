package similarity

import (
	"github.com/DeafMist/event-radar/internal/models"
	"github.com/DeafMist/event-radar/internal/processing"
)

// Defaults for Weights and the content window.
const (
	DefaultTitleWeight     = 0.7
	DefaultContentWeight   = 0.3
	DefaultContentMaxChars = 1000
)

// Weights splits the overall score between title and body similarity.
type Weights struct {
	Title   float64
	Content float64
}

// DefaultWeights favours titles, which carry most of the entity signal.
func DefaultWeights() Weights {
	return Weights{Title: DefaultTitleWeight, Content: DefaultContentWeight}
}

// Profile holds the keyword sets of one article, computed once per run.
type Profile struct {
	Title   processing.KeywordSet
	Content processing.KeywordSet
}

// Scorer computes the weighted similarity of two articles. It is stateless
// and deterministic.
type Scorer struct {
	normalizer      *processing.Normalizer
	weights         Weights
	contentMaxChars int
}

// NewScorer wires a normalizer with score weights. contentMaxChars <= 0 selects
// the default window.
func NewScorer(normalizer *processing.Normalizer, weights Weights, contentMaxChars int) *Scorer {
	if normalizer == nil {
		normalizer = processing.NewNormalizer(processing.DefaultMinLength, "tr")
	}
	if contentMaxChars <= 0 {
		contentMaxChars = DefaultContentMaxChars
	}
	return &Scorer{normalizer: normalizer, weights: weights, contentMaxChars: contentMaxChars}
}

// Profile extracts the title and content keyword sets of an article. The body
// is cut to the content window before normalization.
func (s *Scorer) Profile(a models.Article) Profile {
	body := processing.Truncate(processing.ContentText(a.Body()), s.contentMaxChars)
	return Profile{
		Title:   s.normalizer.Keywords(a.Title),
		Content: s.normalizer.Keywords(body),
	}
}

// TitleSimilarity is the larger of Jaccard and set-cosine over title keywords.
func TitleSimilarity(a, b processing.KeywordSet) float64 {
	return max(Jaccard(a, b), CosineSet(a, b))
}

// Compare scores two precomputed profiles.
func (s *Scorer) Compare(a, b Profile) float64 {
	title := TitleSimilarity(a.Title, b.Title)
	content := Jaccard(a.Content, b.Content)
	return s.weights.Title*title + s.weights.Content*content
}

// Score returns the overall similarity of two articles in [0,1] for weights
// summing to at most one.
func (s *Scorer) Score(a, b models.Article) float64 {
	return s.Compare(s.Profile(a), s.Profile(b))
}

package processing_test

import (
	"sort"
	"sync"
	"testing"

	"github.com/DeafMist/event-radar/internal/processing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sorted(set processing.KeywordSet) []string {
	words := set.Words()
	sort.Strings(words)
	return words
}

func TestNormalize(t *testing.T) {
	n := processing.NewNormalizer(3, "tr")
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "punctuation", input: "Faiz kararı açıklandı!!!   (son dakika)", want: "faiz kararı açıklandı son dakika"},
		{name: "collapse whitespace", input: "foo\n\nbar\t baz", want: "foo bar baz"},
		{name: "turkish dotted capital", input: "İSTANBUL", want: "istanbul"},
		{name: "turkish dotless capital", input: "IRAK", want: "ırak"},
		{name: "keeps circumflex", input: "Hâkim kararı", want: "hâkim kararı"},
		{name: "keeps underscore", input: "snake_case-word", want: "snake_case word"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, n.Normalize(tt.input))
		})
	}
}

func TestExtractKeywords(t *testing.T) {
	got := processing.ExtractKeywords("Merkez Bankası faiz kararı açıkladı", 3)
	require.Equal(t, []string{"açıkladı", "bankası", "faiz", "kararı", "merkez"}, sorted(got))
}

func TestExtractKeywordsDropsStopwordsAndShortTokens(t *testing.T) {
	got := processing.ExtractKeywords("Bu haber için çok önemli ve ilginç bir gelişme", 3)
	require.Equal(t, []string{"gelişme", "haber", "ilginç", "önemli"}, sorted(got))
}

func TestExtractKeywordsMinLengthCountsRunes(t *testing.T) {
	// "şık" is three runes but five bytes.
	got := processing.ExtractKeywords("şık ev", 3)
	require.True(t, got.Has("şık"))
	require.False(t, got.Has("ev"))

	require.Empty(t, processing.ExtractKeywords("şık ev", 4))
}

func TestExtractKeywordsEmpty(t *testing.T) {
	require.Empty(t, processing.ExtractKeywords("", 3))
	require.Empty(t, processing.ExtractKeywords("!!! ... ---", 3))
	require.NotNil(t, processing.ExtractKeywords("", 3))
}

func TestNormalizerConcurrentUse(t *testing.T) {
	n := processing.NewNormalizer(3, "tr")
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := n.Keywords("Merkez Bankası faiz oranını değiştirdi")
			assert.Len(t, got, 5)
		}()
	}
	wg.Wait()
}

func TestNewNormalizerFallsBack(t *testing.T) {
	n := processing.NewNormalizer(0, "not a language!")
	require.Equal(t, processing.DefaultMinLength, n.MinLength())
	require.Equal(t, "ırak", n.Normalize("IRAK"))
}

func TestIsStopword(t *testing.T) {
	require.True(t, processing.IsStopword("için"))
	require.True(t, processing.IsStopword("söylemek"))
	require.False(t, processing.IsStopword("merkez"))
}

func TestContentText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "   ", want: ""},
		{name: "plain", input: "Faiz   kararı", want: "Faiz kararı"},
		{name: "entities", input: "Merkez &amp; Bankası", want: "Merkez & Bankası"},
		{name: "markup", input: "<p>Merkez <b>Bankası</b></p><script>var x = 1;</script>", want: "Merkez Bankası"},
		{name: "urls", input: "Detaylar https://example.com/haber?id=1 adresinde", want: "Detaylar adresinde"},
		{name: "link text url", input: `<p>Kaynak:</p> <a href="https://x.com">https://x.com/a</a>`, want: "Kaynak:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, processing.ContentText(tt.input))
		})
	}
}

func TestRemoveURLs(t *testing.T) {
	require.Equal(t, "Go   now", processing.RemoveURLs("Go https://example.com now"))
	require.Equal(t, "Hello world", processing.RemoveURLs("Hello world"))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "çğı", processing.Truncate("çğıöş", 3))
	require.Equal(t, "abc", processing.Truncate("abc", 10))
	require.Equal(t, "abc", processing.Truncate("abc", 0))
	require.Equal(t, "", processing.Truncate("", 5))
}

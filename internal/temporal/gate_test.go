package temporal_test

import (
	"testing"
	"time"

	"github.com/DeafMist/event-radar/internal/models"
	"github.com/DeafMist/event-radar/internal/temporal"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantAware bool
		wantUTC   time.Time
	}{
		{name: "rfc3339 utc", raw: "2024-02-03T04:05:06Z", wantAware: true, wantUTC: time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)},
		{name: "rfc3339 offset", raw: "2024-02-03T04:05:06+03:00", wantAware: true, wantUTC: time.Date(2024, 2, 3, 1, 5, 6, 0, time.UTC)},
		{name: "space offset", raw: "2024-02-03 04:05:06+03:00", wantAware: true, wantUTC: time.Date(2024, 2, 3, 1, 5, 6, 0, time.UTC)},
		{name: "rss", raw: "Sat, 03 Feb 2024 04:05:06 +0000", wantAware: true, wantUTC: time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)},
		{name: "sqlite naive", raw: "2024-02-03 04:05:06", wantUTC: time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)},
		{name: "iso naive fraction", raw: "2024-02-03T04:05:06.250000", wantUTC: time.Date(2024, 2, 3, 4, 5, 6, 250_000_000, time.UTC)},
		{name: "date only", raw: " 2024-02-03 ", wantUTC: time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)},
		{name: "lenient offset", raw: "Thu, 4 Jan 2018 17:53:36 +0300", wantAware: true, wantUTC: time.Date(2018, 1, 4, 14, 53, 36, 0, time.UTC)},
		{name: "lenient utc offset", raw: "Thu, 4 Jan 2018 17:53:36 +0000", wantAware: true, wantUTC: time.Date(2018, 1, 4, 17, 53, 36, 0, time.UTC)},
		{name: "lenient naive", raw: "May 8, 2009 5:57:51 PM", wantUTC: time.Date(2009, 5, 8, 17, 57, 51, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, aware, err := temporal.ParseTimestamp(tt.raw)
			require.NoError(t, err)
			require.Equal(t, tt.wantAware, aware)
			require.True(t, tt.wantUTC.Equal(ts), "got %v", ts)
		})
	}
}

func TestParseTimestampRejectsGarbage(t *testing.T) {
	_, _, err := temporal.ParseTimestamp("")
	require.Error(t, err)

	_, _, err = temporal.ParseTimestamp("not a date at all")
	require.Error(t, err)
}

func TestDaysBetween(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.Equal(t, 0, temporal.DaysBetween(base, base.Add(23*time.Hour)))
	require.Equal(t, 1, temporal.DaysBetween(base, base.Add(47*time.Hour)))
	require.Equal(t, 2, temporal.DaysBetween(base, base.Add(48*time.Hour)))
	require.Equal(t, 2, temporal.DaysBetween(base.Add(48*time.Hour), base))
	require.Equal(t, 1, temporal.DaysBetween(base, base.Add(-time.Hour-24*time.Hour)))
}

func anchor(t *testing.T, raw string) temporal.Anchor {
	t.Helper()
	a, err := temporal.AnchorOf(models.Article{Published: raw})
	require.NoError(t, err)
	return a
}

func TestCloseNaiveAdoptsAwareOffset(t *testing.T) {
	aware := anchor(t, "2024-01-01T00:00:00+05:00")
	naive := anchor(t, "2024-01-03T23:00:00")

	// Read in +05:00 the gap is 71h; read as UTC it would be 76h.
	require.True(t, temporal.Close(aware, naive, 2))
	require.True(t, temporal.Close(naive, aware, 2))
}

func TestCloseLenientNaiveAdoptsAwareOffset(t *testing.T) {
	aware := anchor(t, "2009-05-06T00:00:00+05:00")
	naive := anchor(t, "May 8, 2009 11:00:00 PM")
	require.False(t, naive.Aware)

	// Read in +05:00 the gap is 71h; read as UTC it would be 76h.
	require.True(t, temporal.Close(aware, naive, 2))
	require.True(t, temporal.Close(naive, aware, 2))
}

func TestCloseBothAwareComparesInstants(t *testing.T) {
	a := anchor(t, "2024-01-01T00:00:00+03:00")
	b := anchor(t, "2024-01-02T21:00:00Z")

	require.True(t, temporal.Close(a, b, 2))
	require.False(t, temporal.Close(a, b, 1))
}

func TestCloseInvalidAnchorAllows(t *testing.T) {
	valid := anchor(t, "2024-01-01T00:00:00Z")
	require.True(t, temporal.Close(valid, temporal.Anchor{}, 0))
	require.True(t, temporal.Close(temporal.Anchor{}, temporal.Anchor{}, 0))
}

func TestGateAreClose(t *testing.T) {
	gate := temporal.NewGate(nil)
	base := models.Article{ID: 1, Published: "2024-03-10T09:00:00Z"}

	tests := []struct {
		name    string
		other   models.Article
		maxDays int
		want    bool
	}{
		{name: "one hour apart", other: models.Article{ID: 2, Published: "2024-03-10T10:00:00Z"}, maxDays: 2, want: true},
		{name: "five days apart", other: models.Article{ID: 2, Published: "2024-03-15T09:00:00Z"}, maxDays: 2, want: false},
		{name: "exactly max days", other: models.Article{ID: 2, Published: "2024-03-12T09:00:00Z"}, maxDays: 2, want: true},
		{name: "created_at fallback", other: models.Article{ID: 2, CreatedAt: "2024-03-20 09:00:00"}, maxDays: 2, want: false},
		{name: "missing dates", other: models.Article{ID: 2}, maxDays: 0, want: true},
		{name: "unparseable date", other: models.Article{ID: 2, Published: "yesterday-ish"}, maxDays: 0, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, gate.AreClose(base, tt.other, tt.maxDays))
			require.Equal(t, tt.want, gate.AreClose(tt.other, base, tt.maxDays))
		})
	}
}

func TestAnchorOfPrefersPublished(t *testing.T) {
	a, err := temporal.AnchorOf(models.Article{Published: "2024-01-01T00:00:00Z", CreatedAt: "2024-06-01 00:00:00"})
	require.NoError(t, err)
	require.True(t, a.Valid)
	require.True(t, a.Aware)
	require.Equal(t, 2024, a.Time.Year())
	require.Equal(t, time.January, a.Time.Month())

	_, err = temporal.AnchorOf(models.Article{ID: 7, Published: "garbage value here"})
	require.ErrorContains(t, err, "article 7")
}

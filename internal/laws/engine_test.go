package laws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

func TestSeedCorpusLoaded(t *testing.T) {
	e := NewEngine()
	all := e.All()
	assert.GreaterOrEqual(t, len(all), 7)

	for _, id := range []string{
		"security_deposit_general", "habitability_general", "eviction_notice_general",
		"retaliation_general", "entry_access_general", "rent_increase_general",
		"lease_termination_general",
	} {
		_, ok := e.Get(id)
		assert.True(t, ok, "seed law %s missing", id)
	}
}

func TestMatchDocumentByKeywords(t *testing.T) {
	e := NewEngine()

	text := "This is a notice to quit. You must vacate the premises within 14 days or face eviction proceedings."
	matches := e.MatchDocument(text, "eviction_notice", now)
	require.NotEmpty(t, matches)
	assert.Equal(t, "eviction_notice_general", matches[0].Law.ID)
	assert.Greater(t, matches[0].Relevance, 0.0)
	assert.Contains(t, matches[0].MatchedKeywords, "notice to quit")
}

func TestMatchRankedByRelevance(t *testing.T) {
	e := NewEngine()

	text := "The mold and pest infestation persists; repairs and maintenance were requested, heat and water are out."
	matches := e.MatchDocument(text, "repair_request", now)
	require.NotEmpty(t, matches)
	assert.Equal(t, "habitability_general", matches[0].Law.ID)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Relevance, matches[i].Relevance)
	}
}

func TestNoMatchesForUnrelatedText(t *testing.T) {
	e := NewEngine()
	matches := e.MatchDocument("grocery list: apples, bananas", "", now)
	assert.Empty(t, matches)
}

func TestDocTypeContributesToMatch(t *testing.T) {
	e := NewEngine()
	// Doc type words count toward the haystack even with sparse text.
	matches := e.MatchDocument("see attached", "rent_increase", now)
	require.NotEmpty(t, matches)
	assert.Equal(t, "rent_increase_general", matches[0].Law.ID)
}

func TestAddLaw(t *testing.T) {
	e := NewEngine()
	e.AddLaw(LawReference{
		ID:           "mn_deposit_interest",
		Category:     CategorySecurityDeposit,
		Title:        "Minnesota Deposit Interest",
		Jurisdiction: "minnesota",
		Keywords:     []string{"deposit interest"},
	})
	law, ok := e.Get("mn_deposit_interest")
	require.True(t, ok)
	assert.Equal(t, "minnesota", law.Jurisdiction)
}

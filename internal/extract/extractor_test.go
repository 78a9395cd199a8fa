package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDateGrammars(t *testing.T) {
	x := New()
	cases := []struct {
		text string
		want time.Time
	}{
		{"Rent due on 03/15/2024 each month.", date(2024, time.March, 15)},
		{"Rent due on 03-15-2024 each month.", date(2024, time.March, 15)},
		{"Hearing on January 5, 2025 at the courthouse.", date(2025, time.January, 5)},
		{"Hearing on January 5 2025 at the courthouse.", date(2025, time.January, 5)},
		{"Filed on 2024-11-02 with the clerk.", date(2024, time.November, 2)},
		{"You must vacate by 12 March 2024 at noon.", date(2024, time.March, 12)},
	}
	for _, tc := range cases {
		items := x.Extract(tc.text, "")
		require.NotEmpty(t, items, "no date found in %q", tc.text)
		assert.Equal(t, tc.want, items[0].Date, "text %q", tc.text)
	}
}

func TestInvalidDatesRejected(t *testing.T) {
	x := New()
	assert.Empty(t, x.Extract("Due on 13/45/2024.", ""), "month 13 day 45")
	assert.Empty(t, x.Extract("Event on 01/01/2500.", ""), "year out of range")
	assert.Empty(t, x.Extract("No dates here at all.", ""))
}

func TestOldDatesDiscarded(t *testing.T) {
	x := New()
	items := x.Extract("Signed on 05/20/1985 by both parties.", "")
	assert.Empty(t, items, "pre-2000 dates dropped as probable DOBs")
}

func TestExclusionPatterns(t *testing.T) {
	x := New()
	assert.Empty(t, x.Extract("DOB: 04/02/2001", ""))
	assert.Empty(t, x.Extract("Date of birth 04/02/2001 on file.", ""))
	assert.Empty(t, x.Extract("SSN issued 04/02/2001.", ""))
	assert.Empty(t, x.Extract("Case No. 2024-11-02.", ""))
}

func TestContextClassification(t *testing.T) {
	x := New()
	cases := []struct {
		text      string
		eventType string
		title     string
	}{
		{"Notice served on 03/01/2024.", "notice", "Notice Served"},
		{"You must vacate by 03/10/2024.", "notice", "Vacate Deadline"},
		{"Filed on 03/05/2024.", "court", "Court Filing"},
		{"Hearing on 03/20/2024.", "court", "Court Hearing"},
		{"Rent due by 03/01/2024.", "payment", "Rent Due"},
		{"Payment made on 02/28/2024.", "payment", "Payment Made"},
		{"Inspection on 03/08/2024.", "maintenance", "Inspection Date"},
	}
	for _, tc := range cases {
		items := x.Extract(tc.text, "")
		require.Len(t, items, 1, "text %q", tc.text)
		assert.Equal(t, tc.eventType, items[0].EventType, "text %q", tc.text)
		assert.Equal(t, tc.title, items[0].Title, "text %q", tc.text)
	}
}

func TestDeadlineFlag(t *testing.T) {
	x := New()

	items := x.Extract("You must vacate by 03/10/2024.", "")
	require.Len(t, items, 1)
	assert.True(t, items[0].IsDeadline)

	items = x.Extract("Payment made on 02/28/2024.", "")
	require.Len(t, items, 1)
	assert.False(t, items[0].IsDeadline)
}

func TestDocTypeFallback(t *testing.T) {
	x := New()
	items := x.Extract("Something happened around 03/03/2024 maybe.", "court_filing")
	require.Len(t, items, 1)
	assert.Equal(t, "court", items[0].EventType)
	assert.Equal(t, "Court Date", items[0].Title)
	assert.InDelta(t, 0.7, items[0].Confidence, 0.001)
}

func TestDeduplicationFirstWins(t *testing.T) {
	x := New()
	items := x.Extract("Filed on January 15, 2024. Hearing on January 15, 2024.", "court_filing")

	require.Len(t, items, 1, "same date+type deduplicates")
	assert.Equal(t, date(2024, time.January, 15), items[0].Date)
	assert.Equal(t, "court", items[0].EventType)
	assert.Equal(t, "Court Filing", items[0].Title, "first occurrence wins")
}

func TestOutputSortedByDate(t *testing.T) {
	x := New()
	text := "Hearing on 06/10/2024. Notice served on 05/01/2024. Rent due by 05/15/2024."
	items := x.Extract(text, "")
	require.Len(t, items, 3)
	for i := 1; i < len(items); i++ {
		assert.False(t, items[i].Date.Before(items[i-1].Date), "output sorted ascending")
	}
}

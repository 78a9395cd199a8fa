// Package extract pulls dated events out of document text with a fixed
// rule grammar (regexes and context keywords, no ML) so results are
// reproducible across runs.
package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/semptify/backend/internal/core"
)

type dateFormat int

const (
	fmtMDY dateFormat = iota
	fmtText
	fmtISO
	fmtDMYText
)

var datePatterns = []struct {
	re  *regexp.Regexp
	fmt dateFormat
}{
	{regexp.MustCompile(`(\d{1,2})[/\-](\d{1,2})[/\-](\d{4})`), fmtMDY},
	{regexp.MustCompile(`(?i)(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{1,2}),?\s+(\d{4})`), fmtText},
	{regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`), fmtISO},
	{regexp.MustCompile(`(?i)(\d{1,2})\s+(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{4})`), fmtDMYText},
}

var monthMap = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
}

// contextRules classify a date by the words around it. All rules are
// checked; the highest-confidence hit wins.
var contextRules = []struct {
	re         *regexp.Regexp
	title      string
	eventType  string
	confidence float64
}{
	// Notice events
	{regexp.MustCompile(`(?i)(?:notice|served|delivered|given)\s*(?:on|dated?)?\s*`), "Notice Served", "notice", 0.9},
	{regexp.MustCompile(`(?i)(?:must\s+vacate|vacate\s+by|quit\s+by|leave\s+by)\s*`), "Vacate Deadline", "notice", 0.95},
	{regexp.MustCompile(`(?i)(?:effective|expires?|terminat\w*)\s*(?:on|date)?\s*`), "Notice Effective Date", "notice", 0.85},

	// Court events
	{regexp.MustCompile(`(?i)(?:filed|filing\s+date)\s*(?:on|in)?\s*`), "Court Filing", "court", 0.95},
	{regexp.MustCompile(`(?i)(?:hearing|trial|appear\w*)\s*(?:on|at|scheduled\s+for)?\s*`), "Court Hearing", "court", 0.95},
	{regexp.MustCompile(`(?i)(?:summons|complaint)\s*(?:dated?|filed)?\s*`), "Summons/Complaint Filed", "court", 0.9},

	// Lease events
	{regexp.MustCompile(`(?i)(?:lease\s+)?(?:commence|start|begin)\w*\s*(?:on|date)?\s*`), "Lease Start Date", "other", 0.9},
	{regexp.MustCompile(`(?i)(?:lease\s+)?(?:end|expir\w*|terminat\w*)\s*(?:on|date)?\s*`), "Lease End Date", "other", 0.9},
	{regexp.MustCompile(`(?i)(?:move[\s\-]?in)\s*(?:on|date)?\s*`), "Move-In Date", "other", 0.85},
	{regexp.MustCompile(`(?i)(?:move[\s\-]?out)\s*(?:on|date)?\s*`), "Move-Out Date", "other", 0.85},

	// Payment events
	{regexp.MustCompile(`(?i)(?:rent\s+)?(?:due|payable)\s*(?:on|by)?\s*`), "Rent Due", "payment", 0.85},
	{regexp.MustCompile(`(?i)(?:paid|payment\s+(?:of|made|received))\s*(?:on)?\s*`), "Payment Made", "payment", 0.85},
	{regexp.MustCompile(`(?i)(?:last\s+payment)\s*(?:on|dated?)?\s*`), "Last Payment Date", "payment", 0.8},

	// Communication
	{regexp.MustCompile(`(?i)(?:dated?|written|sent|mailed)\s*(?:on)?\s*`), "Document Date", "communication", 0.7},
	{regexp.MustCompile(`(?i)(?:received)\s*(?:on)?\s*`), "Document Received", "communication", 0.75},

	// Inspection / maintenance
	{regexp.MustCompile(`(?i)(?:inspection|walkthrough)\s*(?:on|dated?)?\s*`), "Inspection Date", "maintenance", 0.85},
	{regexp.MustCompile(`(?i)(?:repair\w*|maintenanc\w*)\s*(?:request\w*|schedul\w*)?\s*(?:on|for)?\s*`), "Repair/Maintenance", "maintenance", 0.8},
}

var excludePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:dob|d\.o\.b\.?|date\s+of\s+birth|born|birthday)\s*[:)]?\s*`),
	regexp.MustCompile(`(?i)(?:ssn|social\s+security)`),
	regexp.MustCompile(`(?i)(?:case\s+(?:no|number|#))`),
}

var deadlineWords = []string{"by", "before", "deadline", "due", "must", "no later than", "expire", "within"}

// doc-type fallbacks when no context rule fires.
var typeDefaults = map[string]struct {
	eventType  string
	title      string
	confidence float64
}{
	"notice":         {"notice", "Notice Date", 0.6},
	"lease":          {"other", "Lease Date", 0.6},
	"court_filing":   {"court", "Court Date", 0.7},
	"receipt":        {"payment", "Payment Date", 0.6},
	"payment_record": {"payment", "Payment Date", 0.6},
}

var chunkSplit = regexp.MustCompile(`[.!?]\s+|\n\n+`)

// Extractor extracts dated events from document text.
type Extractor struct{}

// New creates an Extractor. The rule set is package-level and immutable.
func New() *Extractor { return &Extractor{} }

// Extract finds every dated event in text, classified by context, with
// duplicates removed (first occurrence per date+type wins) and output
// sorted by date ascending. docType is an optional hint used when no
// context rule fires.
func (x *Extractor) Extract(text, docType string) []core.DatedItem {
	var items []core.DatedItem

	offset := 0
	for _, chunk := range splitChunks(text) {
		// Chunks are trimmed substrings of text, in order.
		chunkStart := offset + strings.Index(text[offset:], chunk)
		offset = chunkStart + len(chunk)
		for _, found := range findDates(chunk) {
			before := lowerSlice(chunk, found.pos-100, found.pos)
			after := lowerSlice(chunk, found.pos, found.pos+50)

			// Exclusion reads up to 100 characters before the date in the
			// whole text, so "Case No. <date>" is not lost to the split
			// after "No.".
			if shouldExclude(lowerSlice(text, chunkStart+found.pos-100, chunkStart+found.pos)) {
				continue
			}
			// Years before 2000 are almost always DOBs or history, not
			// actionable tenancy events.
			if found.date.Year() < 2000 {
				continue
			}

			eventType, title, confidence := classify(before+" "+after, docType)
			isDeadline := containsDeadlineWord(before)

			descStart := found.pos - 60
			if descStart < 0 {
				descStart = 0
			}
			descEnd := found.pos + len(found.text) + 60
			if descEnd > len(chunk) {
				descEnd = len(chunk)
			}

			items = append(items, core.DatedItem{
				Date:        found.date,
				EventType:   eventType,
				Title:       title,
				Description: strings.TrimSpace(chunk[descStart:descEnd]),
				Confidence:  confidence,
				SourceText:  found.text,
				IsDeadline:  isDeadline,
			})
		}
	}

	items = dedupe(items)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Date.Before(items[j].Date) })
	return items
}

func splitChunks(text string) []string {
	var chunks []string
	last := 0
	for _, loc := range chunkSplit.FindAllStringIndex(text, -1) {
		// Keep the sentence terminator with its chunk.
		end := loc[0] + 1
		if end > len(text) {
			end = len(text)
		}
		if c := strings.TrimSpace(text[last:end]); c != "" {
			chunks = append(chunks, c)
		}
		last = loc[1]
	}
	if c := strings.TrimSpace(text[last:]); c != "" {
		chunks = append(chunks, c)
	}
	return chunks
}

type foundDate struct {
	date time.Time
	text string
	pos  int
}

func findDates(chunk string) []foundDate {
	var out []foundDate
	for _, p := range datePatterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(chunk, -1) {
			match := chunk[loc[0]:loc[1]]
			groups := submatches(chunk, loc)
			if date, ok := parseDate(groups, p.fmt); ok {
				out = append(out, foundDate{date: date, text: match, pos: loc[0]})
			}
		}
	}
	return out
}

func submatches(s string, loc []int) []string {
	var groups []string
	for i := 2; i+1 < len(loc); i += 2 {
		if loc[i] < 0 {
			groups = append(groups, "")
			continue
		}
		groups = append(groups, s[loc[i]:loc[i+1]])
	}
	return groups
}

func parseDate(groups []string, f dateFormat) (time.Time, bool) {
	if len(groups) < 3 {
		return time.Time{}, false
	}
	var year int
	var month time.Month
	var day int
	var err [3]error

	atoi := func(s string) (int, error) { return strconv.Atoi(s) }

	switch f {
	case fmtMDY:
		var m, d, y int
		m, err[0] = atoi(groups[0])
		d, err[1] = atoi(groups[1])
		y, err[2] = atoi(groups[2])
		month, day, year = time.Month(m), d, y
	case fmtISO:
		var y, m, d int
		y, err[0] = atoi(groups[0])
		m, err[1] = atoi(groups[1])
		d, err[2] = atoi(groups[2])
		month, day, year = time.Month(m), d, y
	case fmtText:
		m, ok := monthMap[strings.ToLower(groups[0])]
		if !ok {
			return time.Time{}, false
		}
		var d, y int
		d, err[0] = atoi(groups[1])
		y, err[1] = atoi(groups[2])
		month, day, year = m, d, y
	case fmtDMYText:
		m, ok := monthMap[strings.ToLower(groups[1])]
		if !ok {
			return time.Time{}, false
		}
		var d, y int
		d, err[0] = atoi(groups[0])
		y, err[1] = atoi(groups[2])
		month, day, year = m, d, y
	}

	for _, e := range err {
		if e != nil {
			return time.Time{}, false
		}
	}
	if month < 1 || month > 12 || day < 1 || day > 31 || year < 1900 || year > 2100 {
		return time.Time{}, false
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
}

func classify(context, docType string) (eventType, title string, confidence float64) {
	best := -1
	bestConf := 0.0
	for i, rule := range contextRules {
		if rule.re.MatchString(context) && rule.confidence > bestConf {
			best = i
			bestConf = rule.confidence
		}
	}
	if best >= 0 {
		r := contextRules[best]
		return r.eventType, r.title, r.confidence
	}
	if d, ok := typeDefaults[docType]; ok {
		return d.eventType, d.title, d.confidence
	}
	return "other", "Document Date", 0.5
}

func shouldExclude(context string) bool {
	for _, p := range excludePatterns {
		if p.MatchString(context) {
			return true
		}
	}
	return false
}

func containsDeadlineWord(context string) bool {
	for _, w := range deadlineWords {
		if strings.Contains(context, w) {
			return true
		}
	}
	return false
}

// dedupe keeps the first occurrence per (calendar date, event type).
func dedupe(items []core.DatedItem) []core.DatedItem {
	seen := make(map[string]bool)
	out := items[:0]
	for _, item := range items {
		key := item.Date.Format("2006-01-02") + "|" + item.EventType
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

func lowerSlice(s string, start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(s) {
		end = len(s)
	}
	if start >= end {
		return ""
	}
	return strings.ToLower(s[start:end])
}

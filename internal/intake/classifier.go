// Package intake turns an opaque byte stream into a registered,
// classified, extracted document, publishing pipeline events along the
// way. The classifier is pluggable; the keyword classifier here is the
// deterministic default so the pipeline runs without an ML backend.
package intake

import (
	"context"
	"sort"
	"strings"
)

// Analysis is the classifier output contract.
type Analysis struct {
	DocType    string   `json:"doc_type"`
	Confidence float64  `json:"confidence"` // 0..1
	Title      string   `json:"title,omitempty"`
	Summary    string   `json:"summary,omitempty"`
	KeyDates   []string `json:"key_dates,omitempty"`
	KeyParties []string `json:"key_parties,omitempty"`
	KeyAmounts []string `json:"key_amounts,omitempty"`
	KeyTerms   []string `json:"key_terms,omitempty"`
	Issues     []string `json:"issues,omitempty"`
}

// Classifier analyzes document text. Implementations must be
// side-effect free and tolerate empty text by returning doc_type
// "unknown" with confidence 0.
type Classifier interface {
	AnalyzeDocument(ctx context.Context, text, filename, hint string) (Analysis, error)
}

// docProfile describes one recognizable document type.
type docProfile struct {
	docType  string
	keywords []string
	issues   []string // issue taxonomy entries implied by this doc type
}

var docProfiles = []docProfile{
	{"eviction_notice", []string{"eviction", "evict", "writ of restitution", "unlawful detainer"}, []string{"eviction_threat"}},
	{"notice_to_quit", []string{"notice to quit", "quit the premises", "terminate your tenancy"}, []string{"eviction_threat"}},
	{"pay_or_quit", []string{"pay or quit", "pay rent or quit", "pay or vacate"}, []string{"eviction_threat"}},
	{"court_summons", []string{"summons", "complaint", "you are hereby summoned", "district court", "housing court"}, nil},
	{"lease", []string{"lease agreement", "rental agreement", "landlord and tenant agree", "term of tenancy"}, nil},
	{"rent_receipt", []string{"rent receipt", "payment received", "received from tenant"}, nil},
	{"rent_increase", []string{"rent increase", "rent will increase", "new monthly rent"}, nil},
	{"repair_request", []string{"repair request", "maintenance request", "please repair", "needs repair"}, nil},
	{"lease_violation", []string{"lease violation", "violation of lease", "breach of lease"}, nil},
	{"communication", []string{"dear tenant", "dear landlord", "sincerely", "regards"}, nil},
}

// KeywordClassifier scores documents against fixed keyword profiles.
// Purely lexical, fully deterministic.
type KeywordClassifier struct{}

// NewKeywordClassifier creates the default classifier.
func NewKeywordClassifier() *KeywordClassifier { return &KeywordClassifier{} }

// AnalyzeDocument picks the best-scoring profile. Confidence grows with
// keyword hits and caps at 0.95; no hit at all falls back to the hint,
// then to unknown.
func (c *KeywordClassifier) AnalyzeDocument(_ context.Context, text, filename, hint string) (Analysis, error) {
	if strings.TrimSpace(text) == "" {
		return Analysis{DocType: "unknown", Confidence: 0}, nil
	}

	haystack := strings.ToLower(text + " " + filename)

	type scored struct {
		profile docProfile
		hits    int
	}
	var candidates []scored
	for _, p := range docProfiles {
		hits := 0
		for _, kw := range p.keywords {
			if strings.Contains(haystack, kw) {
				hits++
			}
		}
		if hits > 0 {
			candidates = append(candidates, scored{profile: p, hits: hits})
		}
	}

	if len(candidates) == 0 {
		if hint != "" {
			return Analysis{DocType: hint, Confidence: 0.4, Summary: "Classified from caller hint"}, nil
		}
		return Analysis{DocType: "unknown", Confidence: 0.2}, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].hits > candidates[j].hits })
	best := candidates[0]

	confidence := 0.5 + 0.15*float64(best.hits)
	if confidence > 0.95 {
		confidence = 0.95
	}

	var terms []string
	for _, kw := range best.profile.keywords {
		if strings.Contains(haystack, kw) {
			terms = append(terms, kw)
		}
	}

	return Analysis{
		DocType:    best.profile.docType,
		Confidence: confidence,
		Title:      strings.ReplaceAll(best.profile.docType, "_", " "),
		Summary:    "Matched " + strings.Join(terms, ", "),
		KeyTerms:   terms,
		Issues:     best.profile.issues,
	}, nil
}

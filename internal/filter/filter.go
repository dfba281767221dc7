/*
Package filter holds the classification rules that decide which
disclosures become alerts: the report-title match, the report-reason
match, and the assembly of alert events from extracted fields.
Parsing lives in the kind package; this package only judges the
already-typed values.
*/
package filter

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shanehull/kindwatch/internal/types"
)

// categoryTitle is the ownership-change report category, normalized
// (no spaces, unified middle dot). Titles are matched by containment:
// KIND prefixes corrected filings with markers like [기재정정].
const categoryTitle = "임원ㆍ주요주주특정증권등소유상황보고서"

// ErrExtractionFailed marks a record whose mandatory fields could not
// be extracted. Per-record; never aborts the run.
var ErrExtractionFailed = errors.New("extraction failed")

// MatchTitle reports whether a listing title denotes an
// executive/major-shareholder ownership-change report.
func MatchTitle(title string) bool {
	return strings.Contains(normalizeTitle(title), categoryTitle)
}

// MatchReason reports whether an extracted report reason is exactly the
// on-market purchase value. Anything else, including the other known
// vocabulary values, rejects the record.
func MatchReason(reason string) bool {
	return NormalizeReason(reason) == types.ReasonOnMarketPurchase
}

// KnownReason reports whether a normalized reason belongs to the
// canonical vocabulary. Unknown values are logged by the caller so new
// vocabulary shows up in diagnostics.
func KnownReason(reason string) bool {
	normalized := NormalizeReason(reason)
	for _, known := range types.KnownReasons {
		if normalized == known {
			return true
		}
	}
	return false
}

// NormalizeReason trims whitespace and the (+)/(-) direction marker
// that detail pages append to acquisition and disposal methods.
func NormalizeReason(reason string) string {
	reason = strings.TrimSpace(reason)
	for _, suffix := range []string{"(+)", "(-)", "（+）", "（-）"} {
		reason = strings.TrimSuffix(reason, suffix)
	}
	return strings.TrimSpace(reason)
}

// BuildEvent assembles an AlertEvent from a listing and its extracted
// detail. Missing filing id or reporter name fails extraction; all
// other fields are optional and keep their zero values.
func BuildEvent(listing types.DisclosureListing, detail types.DisclosureDetail, alertedAt time.Time) (types.AlertEvent, error) {
	if detail.FilingID == "" {
		detail.FilingID = listing.FilingID
	}
	if detail.FilingID == "" {
		return types.AlertEvent{}, fmt.Errorf("%w: missing filing id", ErrExtractionFailed)
	}
	if detail.ReporterName == "" {
		return types.AlertEvent{}, fmt.Errorf("%w: missing reporter name for filing %s", ErrExtractionFailed, detail.FilingID)
	}
	if detail.ReportDateTime.IsZero() {
		detail.ReportDateTime = listing.ReportDate
	}

	return types.AlertEvent{
		DisclosureDetail: detail,
		CompanyName:      listing.CompanyName,
		DetailURL:        listing.DetailURL,
		AlertedAt:        alertedAt,
	}, nil
}

// normalizeTitle strips all whitespace and unifies the middle-dot
// variants (ㆍ, ·, ・, •) seen across filings.
func normalizeTitle(title string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return -1
		case r == '·' || r == '・' || r == '•':
			return 'ㆍ'
		default:
			return r
		}
	}, title)
}

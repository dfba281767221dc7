package kind

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/shanehull/kindwatch/internal/types"
)

// reportDateLayouts are the date formats seen on detail pages.
var reportDateLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02",
	"2006.01.02 15:04",
	"2006.01.02",
	"2006/01/02",
	"20060102",
}

// ParseDailyList extracts disclosure rows from the daily list page.
// Each row carries a time, the company, the report title with a link to
// the detail viewer, and the submitter. The filing id is the acptno
// query parameter of the detail link.
func ParseDailyList(body, baseURL string, date time.Time) ([]types.DisclosureListing, error) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing HTML: %w", err)
	}

	var listings []types.DisclosureListing
	var inTableBody bool

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tbody" {
			inTableBody = true
		}

		if inTableBody && n.Type == html.ElementNode && n.Data == "tr" {
			listing := types.DisclosureListing{ReportDate: date}
			tdIndex := 0
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type != html.ElementNode || c.Data != "td" {
					continue
				}
				tdIndex++
				switch tdIndex {
				case 1: // listing time
					if t, err := time.Parse("15:04", strings.TrimSpace(extractText(c))); err == nil {
						listing.ReportDate = time.Date(
							date.Year(), date.Month(), date.Day(),
							t.Hour(), t.Minute(), 0, 0, date.Location(),
						)
					}
				case 2: // company name
					listing.CompanyName = collapseSpace(extractText(c))
				case 3: // report title and detail link
					if a := findAnchor(c); a != nil {
						listing.Title = collapseSpace(extractText(a))
						if href := attrValue(a, "href"); href != "" {
							listing.DetailURL = absoluteURL(baseURL, href)
							listing.FilingID = filingIDFromURL(listing.DetailURL)
						}
					} else {
						listing.Title = collapseSpace(extractText(c))
					}
				}
			}

			if listing.Title != "" {
				listings = append(listings, listing)
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return listings, nil
}

// ParseDetail extracts labeled fields from a filing detail page. Detail
// pages vary in layout, so fields are located by label text rather than
// cell position. Optional fields are left zero when absent; the caller
// decides which absences are fatal.
func ParseDetail(body string) (types.DisclosureDetail, error) {
	var detail types.DisclosureDetail

	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return detail, fmt.Errorf("failed to parse detail HTML: %w", err)
	}

	assign := func(label, value string) {
		value = collapseSpace(value)
		if value == "" {
			return
		}
		switch {
		case containsAny(label, "보고자", "성명"):
			if detail.ReporterName == "" {
				detail.ReporterName = value
			}
		case containsAny(label, "직위", "임원구분", "관계"):
			if detail.ReporterPosition == "" {
				detail.ReporterPosition = value
			}
		case containsAny(label, "보고사유") || (strings.Contains(label, "취득") && strings.Contains(label, "방법")):
			if detail.ReportReason == "" {
				detail.ReportReason = value
			}
		case containsAny(label, "매수금액", "취득금액", "거래금액"):
			if !detail.AmountKnown {
				if amount, ok := parseAmount(value); ok {
					detail.TransactionAmount = amount
					detail.AmountKnown = true
				}
			}
		case containsAny(label, "보고일", "제출일"):
			if detail.ReportDateTime.IsZero() {
				if t, ok := parseReportDate(value); ok {
					detail.ReportDateTime = t
				}
			}
		case containsAny(label, "공시번호", "접수번호"):
			if detail.FilingID == "" {
				detail.FilingID = value
			}
		}
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					cells = append(cells, collapseSpace(extractText(c)))
				}
			}
			// Rows hold one or more label/value pairs side by side.
			for i := 0; i+1 < len(cells); i++ {
				assign(cells[i], cells[i+1])
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return detail, nil
}

// CompanyNameFromDetail extracts the company name labeled on a detail
// page, used when the listing row lacked one.
func CompanyNameFromDetail(body string) string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return ""
	}

	var name string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if name != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "tr" {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					cells = append(cells, collapseSpace(extractText(c)))
				}
			}
			for i := 0; i+1 < len(cells); i++ {
				if containsAny(cells[i], "회사명", "법인명") && cells[i+1] != "" {
					name = cells[i+1]
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return name
}

func extractText(n *html.Node) string {
	var extract func(*html.Node) string

	extract = func(n *html.Node) string {
		if n.Type == html.TextNode {
			return n.Data
		}
		var sb strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			sb.WriteString(extract(c))
		}
		return sb.String()
	}

	return extract(n)
}

func findAnchor(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "a" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if a := findAnchor(c); a != nil {
			return a
		}
	}
	return nil
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return strings.TrimSpace(attr.Val)
		}
	}
	return ""
}

func absoluteURL(baseURL, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return baseURL + href
}

// filingIDFromURL pulls the acptno parameter from a detail viewer link.
func filingIDFromURL(detailURL string) string {
	u, err := url.Parse(detailURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("acptno")
}

// parseAmount reads an integer currency value such as "1,000,000,000원".
func parseAmount(value string) (int64, bool) {
	var digits strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0, false
	}
	amount, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return amount, true
}

func parseReportDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range reportDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

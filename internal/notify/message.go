/*
Package notify delivers alerts for matched filings: one Telegram
message per new on-market purchase, plus an optional end-of-run email
digest.
*/
package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/shanehull/kindwatch/internal/types"
)

// placeholder renders in place of optional fields the filing omitted.
const placeholder = "N/A"

// FormatAlert renders the Telegram message for one alert event. Pure:
// missing optional fields render the placeholder, never an error.
func FormatAlert(ev types.AlertEvent, loc *time.Location, summary []string) string {
	var sb strings.Builder

	sb.WriteString("🏢 <b>임원 장내매수 알림</b>\n\n")
	sb.WriteString(fmt.Sprintf("📊 <b>회사명:</b> %s\n", escapeOrPlaceholder(ev.CompanyName)))
	sb.WriteString(fmt.Sprintf("👤 <b>보고자:</b> %s\n", escapeOrPlaceholder(ev.ReporterName)))
	sb.WriteString(fmt.Sprintf("💼 <b>직위:</b> %s\n", escapeOrPlaceholder(ev.ReporterPosition)))
	sb.WriteString(fmt.Sprintf("💰 <b>매수금액:</b> %s\n", FormatAmount(ev.TransactionAmount, ev.AmountKnown)))
	sb.WriteString(fmt.Sprintf("📅 <b>보고일자:</b> %s\n", formatReportDate(ev.ReportDateTime)))
	sb.WriteString(fmt.Sprintf("📋 <b>공시번호:</b> %s\n", escapeOrPlaceholder(ev.FilingID)))
	sb.WriteString(fmt.Sprintf("\n⏰ <b>알림시간:</b> %s\n", ev.AlertedAt.In(loc).Format("2006-01-02 15:04:05 MST")))

	if len(summary) > 0 {
		sb.WriteString("\n📝 <b>요약:</b>\n")
		for _, line := range summary {
			sb.WriteString(fmt.Sprintf("• %s\n", html.EscapeString(line)))
		}
	}

	sb.WriteString("\n#임원매수 #KIND #장내매수")

	return sb.String()
}

// FormatAmount renders a currency amount with thousands separators and
// the won suffix, or the placeholder when the amount is unknown.
func FormatAmount(amount int64, known bool) string {
	if !known {
		return placeholder
	}
	return groupDigits(amount) + "원"
}

func formatReportDate(t time.Time) string {
	if t.IsZero() {
		return placeholder
	}
	return t.Format("2006-01-02")
}

func escapeOrPlaceholder(s string) string {
	if s == "" {
		return placeholder
	}
	return html.EscapeString(s)
}

func groupDigits(n int64) string {
	negative := n < 0
	if negative {
		n = -n
	}

	digits := fmt.Sprintf("%d", n)
	var sb strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(d)
	}

	if negative {
		return "-" + sb.String()
	}
	return sb.String()
}

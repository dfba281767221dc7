/*
Package types defines the disclosure records that flow through the
monitoring pipeline.
*/
package types

import (
	"time"
)

// Report reasons observed on 임원ㆍ주요주주 특정증권등 소유상황보고서 filings.
const (
	ReasonOnMarketPurchase  = "장내매수"
	ReasonOnMarketSale      = "장내매도"
	ReasonOffMarketPurchase = "장외매수"
	ReasonOffMarketSale     = "장외매도"
	ReasonGift              = "증여"
	ReasonGiftReceived      = "수증"
	ReasonPledge            = "담보제공"
	ReasonInheritance       = "상속"
	ReasonNewAppointment    = "신규선임"
	ReasonInitialReport     = "신규보고"
)

// KnownReasons is the canonical report-reason vocabulary.
var KnownReasons = []string{
	ReasonOnMarketPurchase,
	ReasonOnMarketSale,
	ReasonOffMarketPurchase,
	ReasonOffMarketSale,
	ReasonGift,
	ReasonGiftReceived,
	ReasonPledge,
	ReasonInheritance,
	ReasonNewAppointment,
	ReasonInitialReport,
}

// DisclosureListing is one row of the daily disclosure list.
// Immutable once fetched; rebuilt every run.
type DisclosureListing struct {
	FilingID    string    `json:"filing_id"`
	CompanyName string    `json:"company_name"`
	Title       string    `json:"title"`
	ReportDate  time.Time `json:"report_date"`
	DetailURL   string    `json:"detail_url"`
}

// DisclosureDetail holds the fields extracted from a detail page.
// Only FilingID and ReporterName are mandatory; the rest may be left
// zero when the page omits them.
type DisclosureDetail struct {
	FilingID          string    `json:"filing_id"`
	ReporterName      string    `json:"reporter"`
	ReporterPosition  string    `json:"position"`
	ReportReason      string    `json:"report_reason"`
	TransactionAmount int64     `json:"transaction_amount"`
	AmountKnown       bool      `json:"amount_known"`
	ReportDateTime    time.Time `json:"report_datetime"`
}

// AlertEvent is a matched on-market purchase ready for notification.
type AlertEvent struct {
	DisclosureDetail
	CompanyName string    `json:"company_name"`
	DetailURL   string    `json:"detail_url"`
	AlertedAt   time.Time `json:"alert_timestamp"`
}

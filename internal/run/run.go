/*
Package run orchestrates one monitoring execution: fetch the day's
disclosure list, classify and extract each record, dedup against the
ledger, deliver alerts, and persist a results snapshot. Per-record
failures are logged and skipped; only an unreachable source or
malformed configuration fails the run.
*/
package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"github.com/shanehull/kindwatch/internal/filter"
	"github.com/shanehull/kindwatch/internal/kind"
	"github.com/shanehull/kindwatch/internal/notify"
	"github.com/shanehull/kindwatch/internal/types"
)

// Pipeline stages recorded with per-record errors.
const (
	stageDetailFetch = "detail_fetch"
	stageExtract     = "extract"
	stageNotify      = "notify"
)

// Source lists the day's disclosures and fetches detail pages.
type Source interface {
	FetchDailyList(ctx context.Context, date time.Time) ([]types.DisclosureListing, error)
	FetchDetail(ctx context.Context, detailURL string) (string, error)
}

// DedupLedger tracks filing ids that have already been alerted.
type DedupLedger interface {
	IsNew(ctx context.Context, filingID string) (bool, error)
	MarkAlerted(ctx context.Context, filingID string) error
}

// AlertSender delivers one alert message per event.
type AlertSender interface {
	Send(ctx context.Context, ev types.AlertEvent, summary []string) (*notify.DeliveryReceipt, error)
}

// DigestSender delivers the end-of-run summary.
type DigestSender interface {
	Send(events []types.AlertEvent, date time.Time) error
}

// Summarizer produces optional alert summary lines from detail page text.
type Summarizer func(ctx context.Context, pageText string) ([]string, error)

// AlertRecord is one generated alert and its delivery outcome,
// persisted in the results snapshot whether or not delivery succeeded.
type AlertRecord struct {
	types.AlertEvent
	Delivered     bool   `json:"delivered"`
	MessageID     int64  `json:"message_id,omitempty"`
	DeliveryError string `json:"delivery_error,omitempty"`
}

// RecordError is a per-record failure kept for diagnosis.
type RecordError struct {
	FilingID string `json:"filing_id"`
	Stage    string `json:"stage"`
	Error    string `json:"error"`
}

// Report is the structured outcome of one run.
type Report struct {
	RunID        string        `json:"run_id"`
	Date         string        `json:"date"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	ListingCount int           `json:"listing_count"`
	TitleMatched int           `json:"title_matched"`
	Purchases    int           `json:"purchases"`
	Alerts       []AlertRecord `json:"alerts"`
	Errors       []RecordError `json:"errors"`
}

// Options wires a Runner.
type Options struct {
	Source     Source
	Ledger     DedupLedger
	Sender     AlertSender
	Digest     DigestSender
	Summarize  Summarizer
	ResultsDir string
	Location   *time.Location
	Logger     *log.Logger
	Now        func() time.Time
}

// Runner executes one monitoring run.
type Runner struct {
	source     Source
	ledger     DedupLedger
	sender     AlertSender
	digest     DigestSender
	summarize  Summarizer
	resultsDir string
	loc        *time.Location
	logger     *log.Logger
	now        func() time.Time
}

// New creates a Runner.
func New(opts Options) *Runner {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		source:     opts.Source,
		ledger:     opts.Ledger,
		sender:     opts.Sender,
		digest:     opts.Digest,
		summarize:  opts.Summarize,
		resultsDir: opts.ResultsDir,
		loc:        opts.Location,
		logger:     opts.Logger,
		now:        now,
	}
}

// Run executes one monitoring pass for the given calendar date.
// A completed run returns a Report and nil error even when individual
// records failed; only a source failure returns an error.
func (r *Runner) Run(ctx context.Context, date time.Time) (*Report, error) {
	runID := uuid.NewString()
	logger := r.logger
	started := r.now().In(r.loc)

	report := &Report{
		RunID:     runID,
		Date:      date.In(r.loc).Format("2006-01-02"),
		StartedAt: started,
	}

	logger.Info().Str("run_id", runID).Str("date", report.Date).Msg("starting monitoring run")

	listings, err := r.source.FetchDailyList(ctx, date.In(r.loc))
	if err != nil {
		if errors.Is(err, kind.ErrSourceEmpty) {
			logger.Info().Str("run_id", runID).Msg("no disclosures listed today")
			r.finish(report)
			return report, nil
		}
		return nil, fmt.Errorf("failed to fetch daily disclosure list: %w", err)
	}

	report.ListingCount = len(listings)
	logger.Info().Str("run_id", runID).Int("listings", len(listings)).Msg("fetched daily disclosure list")

	for _, listing := range listings {
		r.processListing(ctx, runID, listing, report)
	}

	r.sendDigest(report, date)
	r.finish(report)

	logger.Info().
		Str("run_id", runID).
		Int("listings", report.ListingCount).
		Int("title_matched", report.TitleMatched).
		Int("purchases", report.Purchases).
		Int("alerts", len(report.Alerts)).
		Int("record_errors", len(report.Errors)).
		Msg("monitoring run complete")

	return report, nil
}

func (r *Runner) processListing(ctx context.Context, runID string, listing types.DisclosureListing, report *Report) {
	logger := r.logger

	if !filter.MatchTitle(listing.Title) {
		logger.Debug().Str("filing_id", listing.FilingID).Str("title", listing.Title).Msg("title rejected")
		return
	}
	report.TitleMatched++

	body, err := r.source.FetchDetail(ctx, listing.DetailURL)
	if err != nil {
		logger.Warn().Err(err).Str("filing_id", listing.FilingID).Str("stage", stageDetailFetch).Msg("skipping record")
		report.Errors = append(report.Errors, RecordError{FilingID: listing.FilingID, Stage: stageDetailFetch, Error: err.Error()})
		return
	}

	detail, err := kind.ParseDetail(body)
	if err != nil {
		logger.Warn().Err(err).Str("filing_id", listing.FilingID).Str("stage", stageExtract).Msg("skipping record")
		report.Errors = append(report.Errors, RecordError{FilingID: listing.FilingID, Stage: stageExtract, Error: err.Error()})
		return
	}

	if !filter.MatchReason(detail.ReportReason) {
		if detail.ReportReason != "" && !filter.KnownReason(detail.ReportReason) {
			logger.Warn().Str("filing_id", listing.FilingID).Str("reason", detail.ReportReason).Msg("report reason outside known vocabulary")
		} else {
			logger.Debug().Str("filing_id", listing.FilingID).Str("reason", detail.ReportReason).Msg("reason rejected")
		}
		return
	}
	report.Purchases++

	if listing.CompanyName == "" {
		listing.CompanyName = kind.CompanyNameFromDetail(body)
	}

	event, err := filter.BuildEvent(listing, detail, r.now().In(r.loc))
	if err != nil {
		logger.Warn().Err(err).Str("filing_id", listing.FilingID).Str("stage", stageExtract).Msg("skipping record")
		report.Errors = append(report.Errors, RecordError{FilingID: listing.FilingID, Stage: stageExtract, Error: err.Error()})
		return
	}

	isNew, err := r.ledger.IsNew(ctx, event.FilingID)
	if err != nil {
		logger.Warn().Err(err).Str("filing_id", event.FilingID).Msg("ledger lookup failed, treating filing as new")
	}
	if !isNew {
		logger.Info().Str("filing_id", event.FilingID).Msg("already alerted, skipping")
		return
	}

	logger.Info().
		Str("run_id", runID).
		Str("filing_id", event.FilingID).
		Str("company", event.CompanyName).
		Str("amount", notify.FormatAmount(event.TransactionAmount, event.AmountKnown)).
		Msg("on-market purchase found")

	var summary []string
	if r.summarize != nil {
		summary, err = r.summarize(ctx, body)
		if err != nil {
			logger.Warn().Err(err).Str("filing_id", event.FilingID).Msg("summary generation failed, alerting without it")
			summary = nil
		}
	}

	record := AlertRecord{AlertEvent: event}

	if r.sender == nil {
		record.DeliveryError = "notifications disabled"
	} else if receipt, sendErr := r.sender.Send(ctx, event, summary); sendErr != nil {
		logger.Error().Err(sendErr).Str("filing_id", event.FilingID).Str("stage", stageNotify).Msg("alert generated but not delivered")
		report.Errors = append(report.Errors, RecordError{FilingID: event.FilingID, Stage: stageNotify, Error: sendErr.Error()})
		record.DeliveryError = sendErr.Error()
	} else {
		record.Delivered = true
		record.MessageID = receipt.MessageID
		logger.Info().Str("filing_id", event.FilingID).Int64("message_id", receipt.MessageID).Msg("alert delivered")
	}

	report.Alerts = append(report.Alerts, record)

	// Undelivered alerts are not marked, so the next run retries them.
	if record.Delivered || r.sender == nil {
		if err := r.ledger.MarkAlerted(ctx, event.FilingID); err != nil {
			logger.Error().Err(err).Str("filing_id", event.FilingID).Msg("failed to record filing in ledger, duplicate alerts possible")
		}
	}
}

func (r *Runner) sendDigest(report *Report, date time.Time) {
	if r.digest == nil {
		return
	}

	var delivered []types.AlertEvent
	for _, record := range report.Alerts {
		if record.Delivered {
			delivered = append(delivered, record.AlertEvent)
		}
	}
	if len(delivered) == 0 {
		return
	}

	if err := r.digest.Send(delivered, date); err != nil {
		r.logger.Warn().Err(err).Msg("digest delivery failed")
	}
}

// finish stamps the report and persists the results snapshot.
func (r *Runner) finish(report *Report) {
	report.FinishedAt = r.now().In(r.loc)

	if r.resultsDir == "" {
		return
	}
	if err := r.writeSnapshot(report); err != nil {
		r.logger.Error().Err(err).Msg("failed to persist results snapshot")
	}
}

func (r *Runner) writeSnapshot(report *Report) error {
	if err := os.MkdirAll(r.resultsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create results directory %s: %w", r.resultsDir, err)
	}

	name := fmt.Sprintf("executive_purchases_%s.json", report.FinishedAt.Format("20060102_150405"))
	path := filepath.Join(r.resultsDir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write results snapshot %s: %w", path, err)
	}

	r.logger.Info().Str("path", path).Msg("results snapshot saved")
	return nil
}

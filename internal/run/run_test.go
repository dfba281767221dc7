package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shanehull/kindwatch/internal/kind"
	"github.com/shanehull/kindwatch/internal/notify"
	"github.com/shanehull/kindwatch/internal/types"
)

const categoryTitle = "임원ㆍ주요주주특정증권등소유상황보고서"

func purchaseDetailPage(filingID string) string {
	return fmt.Sprintf(`<html><body><table>
<tr><th>회사명</th><td>테스트기업</td><th>공시번호</th><td>%s</td></tr>
<tr><th>보고자</th><td>홍길동</td><th>직위</th><td>대표이사</td></tr>
<tr><th>보고사유</th><td>장내매수</td><th>보고일</th><td>2026-08-24</td></tr>
<tr><th>매수금액</th><td>1,000,000,000원</td></tr>
</table></body></html>`, filingID)
}

func saleDetailPage(filingID string) string {
	return fmt.Sprintf(`<html><body><table>
<tr><th>회사명</th><td>테스트기업</td><th>공시번호</th><td>%s</td></tr>
<tr><th>보고자</th><td>홍길동</td><th>직위</th><td>대표이사</td></tr>
<tr><th>보고사유</th><td>장내매도</td><th>보고일</th><td>2026-08-24</td></tr>
</table></body></html>`, filingID)
}

func purchaseListing(filingID string) types.DisclosureListing {
	return types.DisclosureListing{
		FilingID:    filingID,
		CompanyName: "테스트기업",
		Title:       categoryTitle,
		ReportDate:  time.Date(2026, 8, 24, 9, 30, 0, 0, time.UTC),
		DetailURL:   "https://kind.krx.co.kr/detail/" + filingID,
	}
}

type fakeSource struct {
	listings    []types.DisclosureListing
	listErr     error
	details     map[string]string
	detailErr   error
	detailCalls int
}

func (s *fakeSource) FetchDailyList(ctx context.Context, date time.Time) ([]types.DisclosureListing, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.listings, nil
}

func (s *fakeSource) FetchDetail(ctx context.Context, detailURL string) (string, error) {
	s.detailCalls++
	if s.detailErr != nil {
		return "", s.detailErr
	}
	body, ok := s.details[detailURL]
	if !ok {
		return "", errors.New("no such page")
	}
	return body, nil
}

type fakeLedger struct {
	marked   map[string]bool
	isNewErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{marked: make(map[string]bool)}
}

func (l *fakeLedger) IsNew(ctx context.Context, filingID string) (bool, error) {
	if l.isNewErr != nil {
		return true, l.isNewErr
	}
	return !l.marked[filingID], nil
}

func (l *fakeLedger) MarkAlerted(ctx context.Context, filingID string) error {
	l.marked[filingID] = true
	return nil
}

type fakeSender struct {
	err       error
	calls     int
	summaries [][]string
}

func (s *fakeSender) Send(ctx context.Context, ev types.AlertEvent, summary []string) (*notify.DeliveryReceipt, error) {
	s.calls++
	s.summaries = append(s.summaries, summary)
	if s.err != nil {
		return nil, s.err
	}
	return &notify.DeliveryReceipt{MessageID: int64(s.calls), SentAt: time.Now()}, nil
}

type fakeDigest struct {
	events []types.AlertEvent
	calls  int
}

func (d *fakeDigest) Send(events []types.AlertEvent, date time.Time) error {
	d.calls++
	d.events = events
	return nil
}

func testRunner(t *testing.T, opts Options) *Runner {
	t.Helper()
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = &log.Logger{Writer: log.IOWriter{Writer: io.Discard}}
	}
	return New(opts)
}

func TestRun_AlertsOnNewPurchase(t *testing.T) {
	listing := purchaseListing("20260824000001")
	source := &fakeSource{
		listings: []types.DisclosureListing{listing},
		details:  map[string]string{listing.DetailURL: purchaseDetailPage(listing.FilingID)},
	}
	ledger := newFakeLedger()
	sender := &fakeSender{}

	runner := testRunner(t, Options{Source: source, Ledger: ledger, Sender: sender})

	report, err := runner.Run(context.Background(), time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, 1, report.ListingCount)
	assert.Equal(t, 1, report.TitleMatched)
	assert.Equal(t, 1, report.Purchases)
	require.Len(t, report.Alerts, 1)
	assert.True(t, report.Alerts[0].Delivered)
	assert.Equal(t, "테스트기업", report.Alerts[0].CompanyName)
	assert.True(t, ledger.marked["20260824000001"])
	assert.Empty(t, report.Errors)
}

func TestRun_NonMatchingTitleSkipsDetailFetch(t *testing.T) {
	listing := purchaseListing("20260824000002")
	listing.Title = "기타공시"
	source := &fakeSource{listings: []types.DisclosureListing{listing}}
	sender := &fakeSender{}

	runner := testRunner(t, Options{Source: source, Ledger: newFakeLedger(), Sender: sender})

	report, err := runner.Run(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Zero(t, source.detailCalls, "rejected titles cost no detail fetch")
	assert.Zero(t, report.TitleMatched)
	assert.Zero(t, sender.calls)
}

func TestRun_NonPurchaseReasonIsNotAlerted(t *testing.T) {
	listing := purchaseListing("20260824000003")
	source := &fakeSource{
		listings: []types.DisclosureListing{listing},
		details:  map[string]string{listing.DetailURL: saleDetailPage(listing.FilingID)},
	}
	sender := &fakeSender{}

	runner := testRunner(t, Options{Source: source, Ledger: newFakeLedger(), Sender: sender})

	report, err := runner.Run(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, report.TitleMatched)
	assert.Zero(t, report.Purchases)
	assert.Zero(t, sender.calls)
	assert.Empty(t, report.Alerts)
}

func TestRun_DedupAcrossRuns(t *testing.T) {
	listing := purchaseListing("20260824000004")
	source := &fakeSource{
		listings: []types.DisclosureListing{listing},
		details:  map[string]string{listing.DetailURL: purchaseDetailPage(listing.FilingID)},
	}
	ledger := newFakeLedger()
	sender := &fakeSender{}

	runner := testRunner(t, Options{Source: source, Ledger: ledger, Sender: sender})

	_, err := runner.Run(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, sender.calls)

	// Same filing appears again on the next run.
	report, err := runner.Run(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, sender.calls, "already-alerted filing must not alert again")
	assert.Equal(t, 1, report.Purchases)
	assert.Empty(t, report.Alerts)
}

func TestRun_DeliveryFailureDoesNotMarkLedger(t *testing.T) {
	listing := purchaseListing("20260824000005")
	source := &fakeSource{
		listings: []types.DisclosureListing{listing},
		details:  map[string]string{listing.DetailURL: purchaseDetailPage(listing.FilingID)},
	}
	ledger := newFakeLedger()
	sender := &fakeSender{err: notify.ErrDeliveryFailed}

	runner := testRunner(t, Options{Source: source, Ledger: ledger, Sender: sender})

	report, err := runner.Run(context.Background(), time.Now())
	require.NoError(t, err, "delivery failures never fail the run")

	require.Len(t, report.Alerts, 1)
	assert.False(t, report.Alerts[0].Delivered)
	assert.NotEmpty(t, report.Alerts[0].DeliveryError)
	assert.False(t, ledger.marked[listing.FilingID], "undelivered alerts retry on the next run")
	require.Len(t, report.Errors, 1)
	assert.Equal(t, stageNotify, report.Errors[0].Stage)
}

func TestRun_DetailFetchFailureIsPerRecord(t *testing.T) {
	good := purchaseListing("20260824000006")
	bad := purchaseListing("20260824000007")
	bad.DetailURL = "https://kind.krx.co.kr/detail/missing"
	source := &fakeSource{
		listings: []types.DisclosureListing{bad, good},
		details:  map[string]string{good.DetailURL: purchaseDetailPage(good.FilingID)},
	}
	sender := &fakeSender{}

	runner := testRunner(t, Options{Source: source, Ledger: newFakeLedger(), Sender: sender})

	report, err := runner.Run(context.Background(), time.Now())
	require.NoError(t, err)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, stageDetailFetch, report.Errors[0].Stage)
	assert.Equal(t, bad.FilingID, report.Errors[0].FilingID)
	require.Len(t, report.Alerts, 1, "the remaining record still alerts")
	assert.Equal(t, good.FilingID, report.Alerts[0].FilingID)
}

func TestRun_MissingFilingIDNeverReachesSender(t *testing.T) {
	listing := purchaseListing("")
	listing.DetailURL = "https://kind.krx.co.kr/detail/anonymous"
	source := &fakeSource{
		listings: []types.DisclosureListing{listing},
		details:  map[string]string{listing.DetailURL: purchaseDetailPage("")},
	}
	sender := &fakeSender{}

	runner := testRunner(t, Options{Source: source, Ledger: newFakeLedger(), Sender: sender})

	report, err := runner.Run(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Zero(t, sender.calls)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, stageExtract, report.Errors[0].Stage)
}

func TestRun_EmptySourceIsCleanRun(t *testing.T) {
	source := &fakeSource{listErr: kind.ErrSourceEmpty}

	runner := testRunner(t, Options{Source: source, Ledger: newFakeLedger()})

	report, err := runner.Run(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Zero(t, report.ListingCount)
	assert.Empty(t, report.Alerts)
	assert.Empty(t, report.Errors)
	assert.False(t, report.FinishedAt.IsZero())
}

func TestRun_SourceUnavailableFailsRun(t *testing.T) {
	source := &fakeSource{listErr: kind.ErrSourceUnavailable}

	runner := testRunner(t, Options{Source: source, Ledger: newFakeLedger()})

	_, err := runner.Run(context.Background(), time.Now())
	require.ErrorIs(t, err, kind.ErrSourceUnavailable)
}

func TestRun_DisabledSenderStillMarksLedger(t *testing.T) {
	listing := purchaseListing("20260824000008")
	source := &fakeSource{
		listings: []types.DisclosureListing{listing},
		details:  map[string]string{listing.DetailURL: purchaseDetailPage(listing.FilingID)},
	}
	ledger := newFakeLedger()

	runner := testRunner(t, Options{Source: source, Ledger: ledger})

	report, err := runner.Run(context.Background(), time.Now())
	require.NoError(t, err)

	require.Len(t, report.Alerts, 1)
	assert.False(t, report.Alerts[0].Delivered)
	assert.Equal(t, "notifications disabled", report.Alerts[0].DeliveryError)
	assert.True(t, ledger.marked[listing.FilingID])
}

func TestRun_SummarizerFailureStillAlerts(t *testing.T) {
	listing := purchaseListing("20260824000009")
	source := &fakeSource{
		listings: []types.DisclosureListing{listing},
		details:  map[string]string{listing.DetailURL: purchaseDetailPage(listing.FilingID)},
	}
	sender := &fakeSender{}
	summarize := func(ctx context.Context, pageText string) ([]string, error) {
		return nil, errors.New("model unavailable")
	}

	runner := testRunner(t, Options{Source: source, Ledger: newFakeLedger(), Sender: sender, Summarize: summarize})

	report, err := runner.Run(context.Background(), time.Now())
	require.NoError(t, err)

	require.Len(t, report.Alerts, 1)
	assert.True(t, report.Alerts[0].Delivered)
	require.Len(t, sender.summaries, 1)
	assert.Nil(t, sender.summaries[0], "alert goes out without the summary")
}

func TestRun_DigestGetsDeliveredEventsOnly(t *testing.T) {
	delivered := purchaseListing("20260824000010")
	source := &fakeSource{
		listings: []types.DisclosureListing{delivered},
		details:  map[string]string{delivered.DetailURL: purchaseDetailPage(delivered.FilingID)},
	}
	sender := &fakeSender{}
	digest := &fakeDigest{}

	runner := testRunner(t, Options{Source: source, Ledger: newFakeLedger(), Sender: sender, Digest: digest})

	_, err := runner.Run(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, digest.calls)
	require.Len(t, digest.events, 1)
	assert.Equal(t, delivered.FilingID, digest.events[0].FilingID)
}

func TestRun_DigestSkippedWhenNothingDelivered(t *testing.T) {
	listing := purchaseListing("20260824000011")
	source := &fakeSource{
		listings: []types.DisclosureListing{listing},
		details:  map[string]string{listing.DetailURL: saleDetailPage(listing.FilingID)},
	}
	digest := &fakeDigest{}

	runner := testRunner(t, Options{Source: source, Ledger: newFakeLedger(), Sender: &fakeSender{}, Digest: digest})

	_, err := runner.Run(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Zero(t, digest.calls)
}

func TestRun_WritesResultsSnapshot(t *testing.T) {
	listing := purchaseListing("20260824000012")
	source := &fakeSource{
		listings: []types.DisclosureListing{listing},
		details:  map[string]string{listing.DetailURL: purchaseDetailPage(listing.FilingID)},
	}
	resultsDir := t.TempDir()

	runner := testRunner(t, Options{
		Source:     source,
		Ledger:     newFakeLedger(),
		Sender:     &fakeSender{},
		ResultsDir: resultsDir,
	})

	report, err := runner.Run(context.Background(), time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(resultsDir, "executive_purchases_*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)

	var saved Report
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, report.RunID, saved.RunID)
	assert.Equal(t, "2026-08-24", saved.Date)
	require.Len(t, saved.Alerts, 1)
	assert.Equal(t, listing.FilingID, saved.Alerts[0].FilingID)
	assert.True(t, saved.Alerts[0].Delivered)
}

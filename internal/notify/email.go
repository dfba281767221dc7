package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/phuslu/log"
	gomail "gopkg.in/mail.v2"

	"github.com/shanehull/kindwatch/internal/config"
	"github.com/shanehull/kindwatch/internal/types"
)

// EmailDigest sends one end-of-run email summarizing the alerts the
// run generated.
type EmailDigest struct {
	cfg    config.EmailConfig
	tmpl   *template.Template
	loc    *time.Location
	logger *log.Logger
}

type digestEvent struct {
	CompanyName string
	Reporter    string
	Position    string
	Amount      string
	ReportDate  string
	FilingID    string
	DetailURL   string
}

type digestData struct {
	Date        string
	GeneratedAt string
	Events      []digestEvent
}

// NewEmailDigest creates a digest sender. Returns nil when the digest
// is disabled so callers can skip it without a flag check.
func NewEmailDigest(cfg config.EmailConfig, loc *time.Location, logger *log.Logger) *EmailDigest {
	if !cfg.Enabled {
		return nil
	}
	if cfg.FromEmail == "" {
		cfg.FromEmail = cfg.SMTPUser
	}
	return &EmailDigest{
		cfg:    cfg,
		tmpl:   template.Must(template.New("digest").Parse(digestHTMLTemplate)),
		loc:    loc,
		logger: logger,
	}
}

// Send delivers the digest for the given run date. Failures are logged
// and returned but never abort the run.
func (d *EmailDigest) Send(events []types.AlertEvent, date time.Time) error {
	data := digestData{
		Date:        date.In(d.loc).Format("2006-01-02"),
		GeneratedAt: time.Now().In(d.loc).Format("2006-01-02 15:04:05 MST"),
	}
	for _, ev := range events {
		data.Events = append(data.Events, digestEvent{
			CompanyName: orPlaceholder(ev.CompanyName),
			Reporter:    orPlaceholder(ev.ReporterName),
			Position:    orPlaceholder(ev.ReporterPosition),
			Amount:      FormatAmount(ev.TransactionAmount, ev.AmountKnown),
			ReportDate:  formatReportDate(ev.ReportDateTime),
			FilingID:    orPlaceholder(ev.FilingID),
			DetailURL:   ev.DetailURL,
		})
	}

	var htmlBuf bytes.Buffer
	if err := d.tmpl.Execute(&htmlBuf, data); err != nil {
		return fmt.Errorf("failed to render digest template: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", d.cfg.FromEmail)
	m.SetHeader("To", d.cfg.ToEmail)
	m.SetHeader("Subject", fmt.Sprintf("KIND 임원 장내매수 digest: %s (%d alerts)", data.Date, len(events)))
	m.SetBody("text/plain", renderDigestText(data))
	m.AddAlternative("text/html", htmlBuf.String())

	dialer := gomail.NewDialer(d.cfg.SMTPServer, d.cfg.SMTPPort, d.cfg.SMTPUser, d.cfg.SMTPPass)
	dialer.Timeout = 10 * time.Second

	if err := dialer.DialAndSend(m); err != nil {
		d.logger.Error().Err(err).Str("to", d.cfg.ToEmail).Msg("failed to send digest email")
		return err
	}

	d.logger.Info().Str("to", d.cfg.ToEmail).Int("alerts", len(events)).Msg("digest email sent")
	return nil
}

// renderDigestText is the plain text alternative for clients that
// don't render HTML.
func renderDigestText(data digestData) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("임원 장내매수 digest %s\n", data.Date))
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")

	for i, ev := range data.Events {
		sb.WriteString(fmt.Sprintf("--- #%d ---\n", i+1))
		sb.WriteString(fmt.Sprintf("회사명: %s\n", ev.CompanyName))
		sb.WriteString(fmt.Sprintf("보고자: %s (%s)\n", ev.Reporter, ev.Position))
		sb.WriteString(fmt.Sprintf("매수금액: %s\n", ev.Amount))
		sb.WriteString(fmt.Sprintf("보고일자: %s\n", ev.ReportDate))
		sb.WriteString(fmt.Sprintf("공시번호: %s\n", ev.FilingID))
		if ev.DetailURL != "" {
			sb.WriteString(fmt.Sprintf("URL: %s\n", ev.DetailURL))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("Generated at %s\n", data.GeneratedAt))
	return sb.String()
}

func orPlaceholder(s string) string {
	if s == "" {
		return placeholder
	}
	return s
}

package notify

const digestHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>임원 장내매수 digest {{.Date}}</title>
  <style>
    body {
      margin: 0;
      padding: 24px;
      background-color: #f3f4f6;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
      color: #111827;
      line-height: 1.5;
    }

    .container {
      max-width: 640px;
      margin: 0 auto;
      background: #ffffff;
      border-radius: 8px;
      border: 1px solid #e5e7eb;
      overflow: hidden;
    }

    .header {
      padding: 20px 24px;
      background: linear-gradient(135deg, #1f2a44 0%, #37393b 100%);
      color: #ffffff;
    }

    .header h1 {
      margin: 0;
      font-size: 20px;
    }

    .header .date {
      font-size: 14px;
      opacity: 0.9;
    }

    .event {
      padding: 16px 24px;
      border-bottom: 1px solid #e5e7eb;
    }

    .event .company {
      font-size: 16px;
      font-weight: 700;
      margin-bottom: 6px;
    }

    .event table {
      border-collapse: collapse;
      font-size: 14px;
    }

    .event td {
      padding: 2px 12px 2px 0;
      vertical-align: top;
    }

    .event td.label {
      color: #6b7280;
      white-space: nowrap;
    }

    .footer {
      padding: 14px 24px;
      font-size: 12px;
      color: #6b7280;
    }

    a {
      color: #2563eb;
    }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>임원 장내매수 digest</h1>
      <div class="date">{{.Date}} · {{len .Events}} alerts</div>
    </div>
    {{range .Events}}
    <div class="event">
      <div class="company">{{.CompanyName}}</div>
      <table>
        <tr><td class="label">보고자</td><td>{{.Reporter}} ({{.Position}})</td></tr>
        <tr><td class="label">매수금액</td><td>{{.Amount}}</td></tr>
        <tr><td class="label">보고일자</td><td>{{.ReportDate}}</td></tr>
        <tr><td class="label">공시번호</td><td>{{.FilingID}}</td></tr>
        {{if .DetailURL}}<tr><td class="label">공시</td><td><a href="{{.DetailURL}}">상세보기</a></td></tr>{{end}}
      </table>
    </div>
    {{end}}
    <div class="footer">Generated at {{.GeneratedAt}} by kindwatch.</div>
  </div>
</body>
</html>`

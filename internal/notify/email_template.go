package notify

const emailHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{.Title}}</title>
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
      background: linear-gradient(135deg, #1f3a5f 0%, #37393b 100%);
      color: #ffffff;
      font-size: 20px;
      font-weight: 700;
    }

    .section {
      padding: 16px 24px;
      border-top: 1px solid #f3f4f6;
      font-size: 14px;
    }

    .section-title {
      font-size: 11px;
      font-weight: 700;
      color: #6b7280;
      text-transform: uppercase;
      letter-spacing: 0.1em;
      margin-bottom: 12px;
    }

    .chart {
      display: block;
      max-width: 100%;
      margin-bottom: 12px;
      border-radius: 4px;
    }

    .footer {
      padding: 16px 24px;
      font-size: 12px;
      color: #9ca3af;
      text-align: center;
      background: #f9fafb;
      border-top: 1px solid #f3f4f6;
    }

    a {
      color: #0b3d91;
      text-decoration: none;
    }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">{{.Title}}</div>

    <div class="section">
      {{.Body}}
    </div>

    {{if .Images}}
    <div class="section">
      <div class="section-title">Charts</div>
      {{range .Images}}
      <a href="{{.URL}}" target="_blank" rel="noopener"><img class="chart" src="{{.URL}}" alt="{{.Description}}" /></a>
      {{end}}
    </div>
    {{end}}

    <div class="footer">
      Generated by <a href="https://github.com/shanehull/marketwrap" target="_blank" rel="noopener">marketwrap</a>
    </div>
  </div>
</body>
</html>`

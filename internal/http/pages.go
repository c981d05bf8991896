package httpapi

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

type pageData struct {
	Amount    string
	DepositID string
	Message   string
	Replayed  bool
}

const pageLayout = `<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>{{template "title" .}}</title></head>
<body><main>{{template "body" .}}</main></body>
</html>`

var (
	successPage = mustPage(`
{{define "title"}}Deposit authorized{{end}}
{{define "body"}}<h1>Your deposit hold is in place</h1>
<p>A hold of {{.Amount}} has been placed on your card. You will only be charged if the hold is captured.</p>
<p>Reference: {{.DepositID}}</p>
{{if .Replayed}}<p>This deposit was already confirmed earlier; nothing new was charged.</p>{{end}}
<p>You can close this window and return to the app.</p>{{end}}`)

	failurePage = mustPage(`
{{define "title"}}Deposit not completed{{end}}
{{define "body"}}<h1>We could not complete your deposit</h1>
<p>{{.Message}}</p>
<p>Please return to the app and contact your move coordinator.</p>{{end}}`)

	cancelPage = mustPage(`
{{define "title"}}Deposit cancelled{{end}}
{{define "body"}}<h1>Checkout cancelled</h1>
<p>No hold was placed on your card. You can start again from the app.</p>{{end}}`)
)

func mustPage(body string) *template.Template {
	return template.Must(template.Must(template.New("page").Parse(pageLayout)).Parse(body))
}

func (s *Server) renderPage(w http.ResponseWriter, status int, page *template.Template, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := page.Execute(w, data); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

// formatAmount renders minor units for display only, e.g. 15000 usd -> "150.00 USD".
func formatAmount(cents int64, currency string) string {
	if currency == "" {
		currency = "usd"
	}
	return decimal.New(cents, -2).StringFixed(2) + " " + strings.ToUpper(currency)
}

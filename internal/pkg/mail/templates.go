package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("mail").Funcs(template.FuncMap{
	"upper": strings.ToUpper,
	"money": formatMoney,
	"date": func(t time.Time) string {
		return t.UTC().Format("2006-01-02 15:04 MST")
	},
}).ParseFS(templateFS, "templates/*.html"))

const (
	TemplateBillingEvent       = "billing_event.html"
	TemplateContactTeam        = "contact_team.html"
	TemplateContactConfirm     = "contact_confirmation.html"
	TemplateDemoTeam           = "demo_team.html"
	TemplateDemoConfirm        = "demo_confirmation.html"
	TemplateConnectedAccountOK = "connected_account.html"
)

// Render executes the named template with data.
func Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render mail template %s: %w", name, err)
	}
	return buf.String(), nil
}

// formatMoney renders an amount in minor units.
func formatMoney(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, amount/100, amount%100, strings.ToUpper(currency))
}

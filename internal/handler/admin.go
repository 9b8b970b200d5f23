package handler

import (
	"html/template"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

var adminTemplate = template.Must(template.New("combined-orders").Funcs(template.FuncMap{
	"joinOrders": func(orders []string) string { return strings.Join(orders, ", ") },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Unconfirmed combine candidates</title>
<style>
body { font-family: sans-serif; margin: 24px; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ddd; padding: 6px 12px; text-align: left; }
th { background: #f5f5f5; }
</style>
</head>
<body>
<h1>Unconfirmed combine candidates</h1>
{{if .}}
<table>
<tr><th>Email</th><th>Orders</th><th>Shipping estimate</th><th>Created</th></tr>
{{range .}}
<tr>
<td>{{.Email}}</td>
<td>{{joinOrders .MemberOrders}}</td>
<td>{{printf "%.2f" .ShippingCost}}</td>
<td>{{.CreatedAt.Format "2006-01-02 15:04:05 MST"}}</td>
</tr>
{{end}}
</table>
{{else}}
<p>No unconfirmed candidates.</p>
{{end}}
</body>
</html>
`))

// AdminCombinedOrders отдаёт страницу со всеми неподтверждёнными кандидатами,
// новые первыми.
func (h *Handler) AdminCombinedOrders(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.service.ListUnconfirmed(r.Context())
	if err != nil {
		h.logger.Error("list candidates error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := adminTemplate.Execute(w, candidates); err != nil {
		h.logger.Error("render admin page error", zap.Error(err))
	}
}

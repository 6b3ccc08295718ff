package ai

import (
	"context"
	"sort"
	"strings"
)

type calculatorParams struct {
	Expression string `json:"expression" jsonschema_description:"Arithmetic using numbers, + - * / and parentheses"`
}

type adviceParams struct {
	Topic string `json:"topic" jsonschema_description:"Business question or topic, e.g. cash flow, late payments, pricing"`
}

type knowledgeParams struct {
	Query string `json:"query"`
}

// registerGeneralTools adds the tools that need no invoice data.
func registerGeneralTools(r *ToolRegistry) {
	r.Register(typedTool("calculator", "Evaluate an arithmetic expression.", calculator))
	r.Register(typedTool("businessAdvice", "Practical advice on invoicing, collections, cash flow, pricing and taxes.", businessAdvice))
	r.Register(typedTool("knowledgeQuery", "Search the help articles about this product and its QuickBooks integration.", knowledgeQuery))
}

func calculator(_ context.Context, p calculatorParams) (any, error) {
	v, err := Evaluate(p.Expression)
	if err != nil {
		return nil, err
	}
	return map[string]any{"expression": p.Expression, "result": v}, nil
}

type adviceEntry struct {
	topic    string
	keywords []string
	tips     []string
}

var adviceBook = []adviceEntry{
	{"cash_flow", []string{"cash", "flow", "liquidity", "runway"}, []string{
		"Invoice immediately when work is delivered rather than in a monthly batch.",
		"Shorten payment terms for new customers to 15 days.",
		"Review outstanding balances weekly and forecast receipts 90 days ahead.",
	}},
	{"collections", []string{"late", "overdue", "collect", "collections", "reminder", "unpaid"}, []string{
		"Send a friendly reminder 3 days before the due date and again the day after.",
		"Call customers whose invoices are more than 30 days overdue.",
		"Offer a payment plan before escalating to a collections agency.",
	}},
	{"pricing", []string{"price", "pricing", "rate", "discount", "margin"}, []string{
		"Price from value delivered, then check the margin against your costs.",
		"Offer a small early-payment discount, such as 2% within 10 days.",
		"Raise rates for new customers first and review existing ones yearly.",
	}},
	{"tax", []string{"tax", "vat", "sales", "deduction", "irs"}, []string{
		"Record the tax rate on every invoice so reports match filings.",
		"Set aside a fixed share of each payment for taxes in a separate account.",
		"Confirm rates with your accountant when you sell into a new region.",
	}},
	{"invoicing", []string{"invoice", "invoicing", "terms", "billing", "bill"}, []string{
		"Use sequential invoice numbers and include clear due dates.",
		"Itemize work so customers can approve invoices quickly.",
		"Send invoices electronically and accept online payment.",
	}},
}

var generalAdvice = []string{
	"Keep invoices current and follow up on anything past due.",
	"Reconcile QuickBooks with your bank each month.",
	"Track which customers pay late and adjust their terms.",
}

func businessAdvice(_ context.Context, p adviceParams) (any, error) {
	words := tokenize(p.Topic)
	best, bestScore := -1, 0
	for i, e := range adviceBook {
		if s := overlap(words, e.keywords); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return map[string]any{"topic": "general", "advice": generalAdvice}, nil
	}
	return map[string]any{"topic": adviceBook[best].topic, "advice": adviceBook[best].tips}, nil
}

type article struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

var knowledgeBase = []article{
	{"Connecting QuickBooks", "Open Settings and choose Connect to QuickBooks. After you approve access at Intuit you return to Settings with the connection active. Access is refreshed automatically."},
	{"Disconnecting QuickBooks", "Choose Disconnect in Settings. Stored tokens are deleted and access is revoked at Intuit. Invoices already in QuickBooks are not changed."},
	{"Team roles", "Admins manage the team, members and QuickBooks. Accountants manage invoices and QuickBooks. Assistants view and edit invoices and use the assistant. Viewers can only view invoices."},
	{"Inviting team members", "Admins invite people by email from the team page. Invitations expire after 7 days and can be revoked before they are accepted."},
	{"Invoice totals", "Each line amount is quantity times unit price. Tax is the subtotal times the tax rate, 8% unless set, rounded to cents. The total is subtotal plus tax."},
	{"Invoice statuses", "Invoices start as draft, become pending when sent, and paid when settled. Pending invoices past their due date are overdue. Void invoices keep their number but have no balance."},
	{"QuickBooks invoices", "Invoices created in QuickBooks are separate from this app's own invoices. Use the QuickBooks pages to view, send or delete them."},
}

func knowledgeQuery(_ context.Context, p knowledgeParams) (any, error) {
	words := tokenize(p.Query)
	type hit struct {
		a     article
		score int
	}
	var hits []hit
	for _, a := range knowledgeBase {
		if s := overlap(words, tokenize(a.Title+" "+a.Body)); s > 0 {
			hits = append(hits, hit{a, s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > 3 {
		hits = hits[:3]
	}
	out := make([]article, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.a)
	}
	return map[string]any{"query": p.Query, "articles": out}, nil
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "of": true, "and": true, "or": true,
	"is": true, "are": true, "how": true, "do": true, "i": true, "my": true, "in": true,
	"on": true, "for": true, "what": true, "can": true, "with": true,
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if !stopWords[f] {
			out = append(out, f)
		}
	}
	return out
}

func overlap(words, keywords []string) int {
	set := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		set[k] = true
	}
	n := 0
	for _, w := range words {
		if set[w] {
			n++
		}
	}
	return n
}

package repl

import (
	"fmt"
	"io"
	"strings"
	"time"

	"invoice-agent/internal/ai"
	"invoice-agent/internal/core"
	"invoice-agent/internal/quickbooks"
)

func printInvoices(out io.Writer, invoices []core.Invoice, now time.Time) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 78))
	fmt.Fprintf(out, "  %-74s\n", "INVOICES")
	fmt.Fprintln(out, strings.Repeat("=", 78))
	if len(invoices) == 0 {
		fmt.Fprintln(out, "  No invoices found.")
		fmt.Fprintln(out, strings.Repeat("=", 78))
		return
	}
	fmt.Fprintf(out, "  %-12s %-24s %-10s %-10s %14s\n", "NUMBER", "CUSTOMER", "DUE", "STATUS", "TOTAL")
	fmt.Fprintln(out, strings.Repeat("-", 78))
	for _, inv := range invoices {
		fmt.Fprintf(out, "  %-12s %-24s %-10s %-10s %14s\n",
			inv.InvoiceNumber, truncate(inv.CustomerName, 24), inv.DueDate.Format(core.DateLayout),
			inv.EffectiveStatus(now), inv.TotalAmount.StringFixed(2))
	}
	fmt.Fprintln(out, strings.Repeat("=", 78))
}

func printStats(out io.Writer, s *core.InvoiceStats) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 46))
	fmt.Fprintf(out, "  %-42s\n", "INVOICE SUMMARY")
	fmt.Fprintln(out, strings.Repeat("=", 46))
	fmt.Fprintf(out, "  %-24s %18d\n", "Invoices", s.Count)
	fmt.Fprintf(out, "  %-24s %18s\n", "Total billed", s.TotalAmount.StringFixed(2))
	fmt.Fprintf(out, "  %-24s %18s\n", "Paid", s.PaidAmount.StringFixed(2))
	fmt.Fprintf(out, "  %-24s %18s\n", "Outstanding", s.Outstanding.StringFixed(2))
	fmt.Fprintf(out, "  %-24s %18s\n", fmt.Sprintf("Overdue (%d)", s.OverdueCount), s.OverdueTotal.StringFixed(2))
	fmt.Fprintln(out, strings.Repeat("=", 46))
}

func printStatus(out io.Writer, st quickbooks.ConnectionStatus) {
	if !st.Connected {
		fmt.Fprintln(out, "QuickBooks: not connected")
		return
	}
	fmt.Fprintf(out, "QuickBooks: connected to %s (realm %s)\n", st.CompanyName, st.RealmID)
	if st.ExpiresAt != nil {
		fmt.Fprintf(out, "Access token expires %s\n", st.ExpiresAt.Format(time.RFC3339))
	}
}

func printReply(out io.Writer, res *ai.ChatResult) {
	for _, c := range res.ToolCalls {
		mark := "ok"
		if !c.Success {
			mark = "failed"
		}
		fmt.Fprintf(out, "  [tool] %s %s (%s)\n", c.Name, c.Arguments, mark)
	}
	fmt.Fprintf(out, "\n[AI]: %s\n", res.Reply)
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, `Commands:
  /invoices             list the assistant's invoices
  /stats                summarize them
  /calc <expression>    evaluate arithmetic
  /status [user-id]     show a QuickBooks connection
  /clear                start a new conversation
  /help                 show this help
  /exit                 quit
Anything else is sent to the assistant.`)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

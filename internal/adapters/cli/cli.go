package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"invoice-agent/internal/ai"
	"invoice-agent/internal/app"
)

// ErrUsage is returned for missing arguments and unknown commands.
var ErrUsage = errors.New("usage")

// Usage lists the one-shot commands.
const Usage = `Usage: app <command> [args]

Commands:
  cleanup              delete expired QuickBooks tokens and invitations
  status <user-id>     show a user's QuickBooks connection
  calc "<expression>"  evaluate an arithmetic expression
  invoices             list the assistant's invoices
  stats                summarize the assistant's invoices
  chat "<message>"     ask the assistant one question

Run without a command for the interactive assistant.`

// Run executes a one-shot CLI command, writing its output to out.
// args is os.Args[1:]; the first element is the subcommand name.
func Run(ctx context.Context, svc app.ApplicationService, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no command given", ErrUsage)
	}

	switch args[0] {
	case "cleanup":
		res, err := svc.Cleanup(ctx)
		if err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}
		fmt.Fprintf(out, "Deleted %d expired token(s) and %d expired invitation(s).\n", res.ExpiredTokens, res.ExpiredInvitations)

	case "status":
		if len(args) < 2 {
			return fmt.Errorf("%w: app status <user-id>", ErrUsage)
		}
		st, err := svc.QuickBooksStatus(ctx, args[1])
		if err != nil {
			return fmt.Errorf("status failed: %w", err)
		}
		return printJSON(out, st)

	case "calc", "calculate":
		if len(args) < 2 {
			return fmt.Errorf("%w: app calc \"<expression>\"", ErrUsage)
		}
		expr := strings.Join(args[1:], " ")
		v, err := svc.Calculate(expr)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s = %s\n", expr, strconv.FormatFloat(v, 'f', -1, 64))

	case "invoices", "inv":
		invoices, err := svc.AssistantInvoices(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, invoices)

	case "stats":
		stats, err := svc.AssistantInvoiceStats(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, stats)

	case "chat":
		if len(args) < 2 {
			return fmt.Errorf("%w: app chat \"<message>\"", ErrUsage)
		}
		res, err := svc.Chat(ctx, LocalUserID, app.ChatRequest{
			Messages: []ai.Message{{Role: "user", Content: strings.Join(args[1:], " ")}},
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(out, res.Reply)

	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
	return nil
}

// LocalUserID identifies the operator for assistant turns run from a terminal.
const LocalUserID = "cli"

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"invoice-agent/internal/ai"
	"invoice-agent/internal/app"
)

// Session identifies who the REPL acts for. TeamID is optional.
type Session struct {
	UserID string
	TeamID string
}

var errExit = errors.New("exit")

// Run starts the interactive assistant loop.
// Slash commands are dispatched deterministically; anything else is one
// assistant turn over the conversation so far.
func Run(ctx context.Context, svc app.ApplicationService, sess Session, in io.Reader, out io.Writer) {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "Invoice Assistant")
	fmt.Fprintln(out, "Ask about your invoices, or use /help for commands.")
	fmt.Fprintln(out, strings.Repeat("-", 70))

	var history []ai.Message

	dispatchSlash := func(input string) error {
		tokens := strings.Fields(strings.TrimPrefix(input, "/"))
		if len(tokens) == 0 {
			return nil
		}
		cmd := strings.ToLower(tokens[0])
		args := tokens[1:]

		switch cmd {
		case "invoices", "inv":
			invoices, err := svc.AssistantInvoices(ctx)
			if err != nil {
				return err
			}
			printInvoices(out, invoices, time.Now())

		case "stats":
			stats, err := svc.AssistantInvoiceStats(ctx)
			if err != nil {
				return err
			}
			printStats(out, stats)

		case "calc":
			if len(args) == 0 {
				fmt.Fprintln(out, "Usage: /calc <expression>")
				return nil
			}
			v, err := svc.Calculate(strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(out, strconv.FormatFloat(v, 'f', -1, 64))

		case "status":
			uid := sess.UserID
			if len(args) > 0 {
				uid = args[0]
			}
			st, err := svc.QuickBooksStatus(ctx, uid)
			if err != nil {
				return err
			}
			printStatus(out, st)

		case "clear":
			history = nil
			fmt.Fprintln(out, "Conversation cleared.")

		case "help", "h":
			printHelp(out)

		case "exit", "quit", "q":
			return errExit

		default:
			fmt.Fprintf(out, "Unknown command: /%s  (type /help for all commands)\n", cmd)
		}
		return nil
	}

	for {
		fmt.Fprint(out, "\n> ")
		input, readErr := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input == "" {
			if readErr != nil {
				return
			}
			continue
		}

		if strings.HasPrefix(input, "/") {
			if err := dispatchSlash(input); err != nil {
				if errors.Is(err, errExit) {
					fmt.Fprintln(out, "Goodbye!")
					return
				}
				fmt.Fprintf(out, "Error: %v\n", err)
			}
			continue
		}

		fmt.Fprintln(out, "[AI] Thinking...")
		turn := append(history, ai.Message{Role: "user", Content: input})
		res, err := svc.Chat(ctx, sess.UserID, app.ChatRequest{TeamID: sess.TeamID, Messages: turn})
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		printReply(out, res)
		history = append(turn, ai.Message{Role: "assistant", Content: res.Reply})

		if readErr != nil {
			return
		}
	}
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielohoh/sales-ai-agent/internal/gateway"
	"github.com/danielohoh/sales-ai-agent/internal/observability"
	"github.com/danielohoh/sales-ai-agent/internal/service"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant in the terminal",
	Long: `Talk to the assistant in the terminal.

When a plan is proposed you can approve it (y), reject it (n), or edit a
field first with "field=value", e.g. company_name=Acme International.
Type "exit" to quit.`,
	RunE: runChat,
}

var chatUser string

func init() {
	chatCmd.Flags().StringVar(&chatUser, "user", "local", "user id that owns the records")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	color := observability.IsTerminal()
	observability.PrintBanner(os.Stdout, color)
	return repl(ctx, a.service, chatUser, os.Stdin, os.Stdout, color)
}

func repl(ctx context.Context, svc *service.Service, userID string, in io.Reader, out io.Writer, color bool) error {
	scanner := bufio.NewScanner(in)
	chatID := "terminal:" + userID

	for {
		fmt.Fprint(out, observability.Prompt(color))
		if !scanner.Scan() {
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		resp, err := svc.Chat(ctx, chatID, userID, text, nil)
		if err != nil && resp == nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, resp.Content)
		if resp.ActionPlan == nil {
			continue
		}

		fmt.Fprintln(out, gateway.FormatPlan(resp.ActionPlan))
		if err := decide(ctx, svc, userID, resp.ActionPlan.PlanID, scanner, out, color); err != nil {
			return err
		}
	}
}

// decide asks for approval of one plan until it is approved or rejected.
func decide(ctx context.Context, svc *service.Service, userID, planID string, scanner *bufio.Scanner, out io.Writer, color bool) error {
	mods := map[string]any{}
	for {
		fmt.Fprint(out, observability.Highlight("Approve? [y]es / [n]o / field=value: ", color))
		if !scanner.Scan() {
			return scanner.Err()
		}
		answer := strings.TrimSpace(scanner.Text())

		if field, value, ok := strings.Cut(answer, "="); ok {
			field = strings.TrimSpace(field)
			if field == "" {
				fmt.Fprintln(out, "usage: field=value")
				continue
			}
			mods[field] = strings.TrimSpace(value)
			fmt.Fprintf(out, "%s will be set to %q\n", field, mods[field])
			continue
		}

		switch strings.ToLower(answer) {
		case "y", "yes":
			a, err := svc.Approve(ctx, planID, userID, mods)
			if err != nil {
				fmt.Fprintf(out, "could not approve: %v\n", err)
				return nil
			}
			fmt.Fprintln(out, gateway.FormatResult(a.Result))
			return nil
		case "n", "no":
			if _, err := svc.Reject(planID, userID); err != nil {
				fmt.Fprintf(out, "could not reject: %v\n", err)
				return nil
			}
			fmt.Fprintln(out, "Plan discarded. Nothing was changed.")
			return nil
		default:
			fmt.Fprintln(out, "please answer y, n, or field=value")
		}
	}
}

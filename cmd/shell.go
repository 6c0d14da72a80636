package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	cPrompt   = color.New(color.FgCyan, color.Bold)
	cMuted    = color.New(color.Faint)
	cError    = color.New(color.FgRed, color.Bold)
	cWarn     = color.New(color.FgYellow)
	cCmd      = color.New(color.FgYellow, color.Bold)
	cGreeting = color.New(color.Bold)
)

var shellCmd = &cobra.Command{
	Use:   "shell <player-id>",
	Short: "Start an interactive session on one player's store",
	Long:  "Open a persistent session against a player's store. Type 'help' for available commands.",
	Args:  cobra.ExactArgs(1),
	RunE:  runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

// shellCommands maps a shell verb to the subcommand it runs. Every handler
// receives the player id as its first argument.
var shellCommands = map[string]func(*cobra.Command, []string) error{
	"status":   runStatus,
	"list":     runList,
	"show":     runShow,
	"sessions": runSessions,
	"pairs":    runPairs,
	"sql":      runSQL,
	"backfill": runBackfill,
	"sync":     runSync,
}

func runShell(cmd *cobra.Command, args []string) error {
	playerID := args[0]

	cGreeting.Println("matchsync shell")
	cMuted.Printf("store %s; type 'help' or 'exit'\n", playerID)
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if cmd.Context().Err() != nil {
			return nil
		}
		cPrompt.Print(playerID)
		cMuted.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		tokens := strings.Fields(line)
		verb, rest := tokens[0], tokens[1:]

		switch verb {
		case "exit", "quit":
			return nil
		case "help":
			shellHelp()
			continue
		}
		run, ok := shellCommands[verb]
		if !ok {
			cWarn.Fprintf(os.Stderr, "unknown command %q, type 'help'\n", verb)
			continue
		}
		if verb == "sql" {
			// keep the query as typed
			rest = []string{strings.TrimSpace(strings.TrimPrefix(line, verb))}
		}
		if err := run(cmd, append([]string{playerID}, rest...)); err != nil {
			cError.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

func shellHelp() {
	fmt.Println()
	type entry struct{ cmd, desc string }
	rows := []entry{
		{"status", "category coverage and pending work"},
		{"list", "recent matches"},
		{"show <match-prefix>", "everything stored for one match"},
		{"sessions", "play sessions of the last week"},
		{"pairs [match-prefix]", "killer/victim pairs of a match, or top rivals"},
		{"sql <query>", "run a raw SQL query"},
		{"sync", "discover new matches"},
		{"backfill", "materialize every missing category"},
		{"help", "show this message"},
		{"exit / quit", "close the session"},
	}
	for _, r := range rows {
		fmt.Print("  ")
		cCmd.Printf("%-24s", r.cmd)
		fmt.Println(r.desc)
	}
	fmt.Println()
}

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/tuannm99/novastore/internal"
	"github.com/tuannm99/novastore/internal/engine"
)

const prompt = "novastore> "

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".novastore_history"
	}
	return filepath.Join(home, ".novastore_history")
}

// splitArgs splits a shell line on spaces, keeping 'quoted text' together.
func splitArgs(line string) ([]string, error) {
	var (
		out     []string
		cur     strings.Builder
		inQuote bool
		escaped bool
		have    bool
	)
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '\'':
			inQuote = !inQuote
			have = true
		case (r == ' ' || r == '\t') && !inQuote:
			if have {
				out = append(out, cur.String())
				cur.Reset()
				have = false
			}
		default:
			cur.WriteRune(r)
			have = true
		}
	}
	if inQuote {
		return nil, errors.New("unterminated quote")
	}
	if have {
		out = append(out, cur.String())
	}
	return out, nil
}

func runShell(db *engine.Database, cfg *internal.Config, histPath string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     histPath,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer func() { _ = rl.Close() }()

	fmt.Printf("data directory %s\n", db.DataDir)
	fmt.Println(`type \help for help`)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			// EOF
			fmt.Println()
			return nil
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case `\q`, "quit", "exit":
			return nil
		case `\help`:
			fmt.Print(usage)
			fmt.Println(`  \q | quit | exit                     leave the shell`)
			continue
		}

		args, err := splitArgs(line)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		if args[0] == "shell" {
			continue
		}
		if err := run(db, cfg, args[0], args[1:]); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

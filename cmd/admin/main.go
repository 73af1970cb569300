package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	persistlog "strider.ai/internal/persistence/log"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "fault":
			faultCmd(os.Args[2:])
			return
		case "escalations":
			escalationsCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints the log files under the data directory.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	for _, sub := range []struct{ dir, prefix string }{
		{filepath.Join(*dataDir, "bots", "outcomes"), "outcomes"},
		{filepath.Join(*dataDir, "server", "escalations"), "escalations"},
	} {
		files, err := persistlog.ListFiles(sub.dir, sub.prefix)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		for _, f := range files {
			fmt.Println(f)
		}
	}
}

func escalationsCmd(args []string) {
	fs := flag.NewFlagSet("escalations", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	agentID := fs.String("agent", "", "agent id filter (optional)")
	_ = fs.Parse(args)

	dir := filepath.Join(*dataDir, "server", "escalations")
	files, err := persistlog.ListFiles(dir, "escalations")
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	agent := strings.TrimSpace(*agentID)
	for _, path := range files {
		err := persistlog.ReadLines(path, func(line []byte) error {
			var e persistlog.EscalationEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			if agent != "" && e.AgentID != agent {
				return nil
			}
			printJSON(e)
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"strider.ai/internal/nav/movement"
	"strider.ai/internal/nav/status"
	"strider.ai/internal/persistence/indexdb"
	persistlog "strider.ai/internal/persistence/log"
)

func main() {
	var (
		outcomesDir = flag.String("outcomes", "./data/bots/outcomes", "dir containing outcomes-*.jsonl.zst")
		dbPath      = flag.String("db", "", "cross-check totals against this sqlite index (optional)")
		agentID     = flag.String("agent", "", "only this agent (optional)")
	)
	flag.Parse()

	files, err := persistlog.ListFiles(*outcomesDir, "outcomes")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list outcomes:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no outcome files found in", *outcomesDir)
		os.Exit(1)
	}

	sum := newSummary(*agentID)
	for _, path := range files {
		if err := persistlog.ReadOutcomes(path, sum.add); err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}
	sum.print(os.Stdout)

	if *dbPath == "" {
		return
	}
	idx, err := indexdb.OpenSQLite(*dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open index:", err)
		os.Exit(1)
	}
	defer idx.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	counts, err := idx.OutcomeCounts(ctx, *agentID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "index:", err)
		os.Exit(1)
	}
	if diff := sum.diff(counts); len(diff) > 0 {
		fmt.Printf("index mismatch: %v\n", diff)
		os.Exit(1)
	}
	fmt.Println("index ok")
}

type codeStats struct {
	n         int
	restarts  int
	elapsedMS int64
}

type summary struct {
	agent    string
	events   int
	retries  int
	agents   map[string]bool
	terminal map[status.Code]*codeStats
}

func newSummary(agent string) *summary {
	return &summary{agent: agent, agents: map[string]bool{}, terminal: map[status.Code]*codeStats{}}
}

func (s *summary) add(e movement.Event) error {
	if s.agent != "" && e.AgentID != s.agent {
		return nil
	}
	s.events++
	s.agents[e.AgentID] = true
	if e.Code == status.CodeRetry {
		s.retries++
	}
	if !e.Terminal {
		return nil
	}
	cs := s.terminal[e.Code]
	if cs == nil {
		cs = &codeStats{}
		s.terminal[e.Code] = cs
	}
	cs.n++
	cs.restarts += e.Restarts
	cs.elapsedMS += e.ElapsedMS
	return nil
}

func (s *summary) print(w io.Writer) {
	fmt.Fprintf(w, "events=%d agents=%d retries=%d\n", s.events, len(s.agents), s.retries)
	codes := make([]string, 0, len(s.terminal))
	for c := range s.terminal {
		codes = append(codes, string(c))
	}
	sort.Strings(codes)
	for _, c := range codes {
		cs := s.terminal[status.Code(c)]
		fmt.Fprintf(w, "%-28s n=%-5d avg_restarts=%.2f avg_ms=%d\n",
			c, cs.n, float64(cs.restarts)/float64(cs.n), cs.elapsedMS/int64(cs.n))
	}
}

// diff returns codes whose terminal count disagrees with the index.
func (s *summary) diff(index map[status.Code]int) map[status.Code][2]int {
	out := map[status.Code][2]int{}
	for c, cs := range s.terminal {
		if index[c] != cs.n {
			out[c] = [2]int{cs.n, index[c]}
		}
	}
	for c, n := range index {
		if _, ok := s.terminal[c]; !ok {
			out[c] = [2]int{0, n}
		}
	}
	return out
}

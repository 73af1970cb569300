package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	role := fs.String("role", "bots", "which index: bots|server (ignored with -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	agentID := fs.String("agent", "", "agent id filter (optional)")
	_ = fs.Parse(args)

	q := "codes"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, *role, "index.sqlite")
	}
	if *limit <= 0 {
		*limit = 20
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	agent := strings.TrimSpace(*agentID)
	switch q {
	case "codes":
		query := `SELECT code,COUNT(*),COALESCE(AVG(restarts),0),COALESCE(AVG(elapsed_ms),0) FROM outcomes WHERE terminal=1 GROUP BY code ORDER BY code`
		qargs := []any{}
		if agent != "" {
			query = `SELECT code,COUNT(*),COALESCE(AVG(restarts),0),COALESCE(AVG(elapsed_ms),0) FROM outcomes WHERE terminal=1 AND agent_id=? GROUP BY code ORDER BY code`
			qargs = append(qargs, agent)
		}
		rows, err := db.Query(query, qargs...)
		if err != nil {
			fail("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Code        string  `json:"code"`
				Count       int     `json:"count"`
				AvgRestarts float64 `json:"avg_restarts"`
				AvgElapsed  float64 `json:"avg_elapsed_ms"`
			}
			if err := rows.Scan(&r.Code, &r.Count, &r.AvgRestarts, &r.AvgElapsed); err != nil {
				fail("scan", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fail("rows", err)
		}

	case "outcomes":
		query := `SELECT time,agent_id,mode,code,terminal,pos_x,pos_y,pos_z,restarts,elapsed_ms FROM outcomes ORDER BY id DESC LIMIT ?`
		qargs := []any{*limit}
		if agent != "" {
			query = `SELECT time,agent_id,mode,code,terminal,pos_x,pos_y,pos_z,restarts,elapsed_ms FROM outcomes WHERE agent_id=? ORDER BY id DESC LIMIT ?`
			qargs = []any{agent, *limit}
		}
		rows, err := db.Query(query, qargs...)
		if err != nil {
			fail("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Time      string     `json:"time"`
				AgentID   string     `json:"agent_id"`
				Mode      string     `json:"mode"`
				Code      string     `json:"code"`
				Terminal  bool       `json:"terminal"`
				Pos       [3]float64 `json:"pos"`
				Restarts  int        `json:"restarts"`
				ElapsedMS int64      `json:"elapsed_ms"`
			}
			if err := rows.Scan(&r.Time, &r.AgentID, &r.Mode, &r.Code, &r.Terminal, &r.Pos[0], &r.Pos[1], &r.Pos[2], &r.Restarts, &r.ElapsedMS); err != nil {
				fail("scan", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fail("rows", err)
		}

	case "escalations":
		rows, err := db.Query(`SELECT time,agent_id,start_x,start_y,start_z,goal_x,goal_y,goal_z,width,height,COALESCE(agent_type,'') FROM escalations ORDER BY id DESC LIMIT ?`, *limit)
		if err != nil {
			fail("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Time      string     `json:"time"`
				AgentID   string     `json:"agent_id"`
				Start     [3]float64 `json:"start"`
				Goal      [3]float64 `json:"goal"`
				Width     float64    `json:"width"`
				Height    float64    `json:"height"`
				AgentType string     `json:"agent_type,omitempty"`
			}
			if err := rows.Scan(&r.Time, &r.AgentID, &r.Start[0], &r.Start[1], &r.Start[2], &r.Goal[0], &r.Goal[1], &r.Goal[2], &r.Width, &r.Height, &r.AgentType); err != nil {
				fail("scan", err)
			}
			if agent != "" && r.AgentID != agent {
				continue
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fail("rows", err)
		}

	case "meta":
		rows, err := db.Query(`SELECT key,value FROM meta ORDER BY key`)
		if err != nil {
			fail("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Key   string `json:"key"`
				Value string `json:"value"`
			}
			if err := rows.Scan(&r.Key, &r.Value); err != nil {
				fail("scan", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fail("rows", err)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-role bots|server|-db PATH] [-agent ID] codes|outcomes|escalations|meta")
		os.Exit(2)
	}
}

func fail(what string, err error) {
	fmt.Fprintln(os.Stderr, what+":", err)
	os.Exit(1)
}

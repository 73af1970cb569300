package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"strider.ai/internal/nav/movement"
	"strider.ai/internal/nav/status"
	plog "strider.ai/internal/persistence/log"
	"strider.ai/internal/tuning"
)

// SQLiteIndex is a queryable secondary index of supervisor outcomes and
// escalations. Writes are queued to a single writer goroutine and batched; the
// JSONL logs remain the source of truth. Queries use their own connection and
// see what has been committed, at most commitMaxWait behind the queue.
type SQLiteIndex struct {
	db  *sql.DB // writer only
	rdb *sql.DB // queries

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// sendMu keeps senders off ch while Close closes it.
	sendMu sync.RWMutex
	closed atomic.Bool

	dropOutcome    atomic.Uint64
	dropEscalation atomic.Uint64
	writeErr       atomic.Uint64
	written        atomic.Uint64
}

type reqKind int

const (
	reqOutcome reqKind = iota + 1
	reqEscalation
	reqMeta
	reqFlush
)

const (
	commitEvery   = 2000
	commitMaxWait = 2 * time.Second
)

// ErrClosed is returned by calls that need the writer after Close.
var ErrClosed = errors.New("indexdb: closed")

type req struct {
	kind reqKind

	outcome    movement.Event
	escalation plog.EscalationEntry
	meta       map[string]string

	// done receives the commit result of reqMeta and reqFlush.
	done chan error
}

type Stats struct {
	QueueDepth          int
	QueueCapacity       int
	Written             uint64
	DropOutcomeTotal    uint64
	DropEscalationTotal uint64
	WriteErrorTotal     uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 65536)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// WAL readers never wait on the writer's open transaction.
	rdb, err := sql.Open("sqlite", path)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	rdb.SetMaxOpenConns(1)
	rdb.SetMaxIdleConns(1)
	rdb.SetConnMaxLifetime(0)
	for _, p := range []string{"PRAGMA busy_timeout=5000;", "PRAGMA query_only=1;"} {
		if _, err := rdb.Exec(p); err != nil {
			_ = rdb.Close()
			_ = db.Close()
			return nil, err
		}
	}

	s := &SQLiteIndex{
		db:  db,
		rdb: rdb,
		ch:  make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS outcomes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			time TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			code TEXT NOT NULL,
			terminal INTEGER NOT NULL,
			pos_x REAL NOT NULL, pos_y REAL NOT NULL, pos_z REAL NOT NULL,
			goal_x REAL NOT NULL, goal_y REAL NOT NULL, goal_z REAL NOT NULL,
			target TEXT,
			restarts INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_agent_time ON outcomes(agent_id, time);`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_code ON outcomes(code);`,
		`CREATE TABLE IF NOT EXISTS escalations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			time TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			start_x REAL NOT NULL, start_y REAL NOT NULL, start_z REAL NOT NULL,
			goal_x REAL NOT NULL, goal_y REAL NOT NULL, goal_z REAL NOT NULL,
			width REAL NOT NULL,
			height REAL NOT NULL,
			agent_type TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_escalations_agent_time ON escalations(agent_id, time);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.sendMu.Lock()
		s.closed.Store(true)
		close(s.ch)
		s.sendMu.Unlock()
		s.wg.Wait()
		err = errors.Join(s.db.Close(), s.rdb.Close())
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:          len(s.ch),
		QueueCapacity:       cap(s.ch),
		Written:             s.written.Load(),
		DropOutcomeTotal:    s.dropOutcome.Load(),
		DropEscalationTotal: s.dropEscalation.Load(),
		WriteErrorTotal:     s.writeErr.Load(),
	}
}

// offer queues r without blocking and reports whether it was accepted.
func (s *SQLiteIndex) offer(r req) bool {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed.Load() {
		return true
	}
	select {
	case s.ch <- r:
		return true
	default:
		return false
	}
}

// call queues r and waits for the writer to commit it.
func (s *SQLiteIndex) call(ctx context.Context, r req) error {
	r.done = make(chan error, 1)
	s.sendMu.RLock()
	if s.closed.Load() {
		s.sendMu.RUnlock()
		return ErrClosed
	}
	select {
	case s.ch <- r:
		s.sendMu.RUnlock()
	case <-ctx.Done():
		s.sendMu.RUnlock()
		return ctx.Err()
	}
	select {
	case err := <-r.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordOutcome satisfies movement.Recorder. It never blocks.
func (s *SQLiteIndex) RecordOutcome(e movement.Event) error {
	if s == nil {
		return nil
	}
	if !s.offer(req{kind: reqOutcome, outcome: e}) {
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropOutcome.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordEscalation(e plog.EscalationEntry) {
	if s == nil {
		return
	}
	if !s.offer(req{kind: reqEscalation, escalation: e}) {
		s.dropEscalation.Add(1)
	}
}

// Flush commits everything queued so far.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.call(ctx, req{kind: reqFlush})
}

// UpsertTuning stores the tuning actually applied, with its digest, in meta.
// The stored document uses the tuning.yaml key names.
func (s *SQLiteIndex) UpsertTuning(t tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.call(ctx, req{kind: reqMeta, meta: map[string]string{
		"schema_version": "1",
		"tuning":         string(b),
		"tuning_digest":  hex.EncodeToString(sum[:]),
		"updated_at":     time.Now().UTC().Format(time.RFC3339Nano),
	}})
}

func (s *SQLiteIndex) Meta(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.rdb.QueryRowContext(ctx, `SELECT value FROM meta WHERE key=?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// OutcomeCounts returns terminal outcome counts by code, optionally for one agent.
func (s *SQLiteIndex) OutcomeCounts(ctx context.Context, agentID string) (map[status.Code]int, error) {
	q := `SELECT code, COUNT(*) FROM outcomes WHERE terminal=1 GROUP BY code`
	args := []any{}
	if agentID != "" {
		q = `SELECT code, COUNT(*) FROM outcomes WHERE terminal=1 AND agent_id=? GROUP BY code`
		args = append(args, agentID)
	}
	rows, err := s.rdb.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[status.Code]int{}
	for rows.Next() {
		var code string
		var n int
		if err := rows.Scan(&code, &n); err != nil {
			return nil, err
		}
		out[status.Code(code)] = n
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) EscalationCount(ctx context.Context) (int, error) {
	var n int
	err := s.rdb.QueryRowContext(ctx, `SELECT COUNT(*) FROM escalations`).Scan(&n)
	return n, err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertOutcome, _ := s.db.Prepare(`INSERT INTO outcomes(time,agent_id,mode,code,terminal,pos_x,pos_y,pos_z,goal_x,goal_y,goal_z,target,restarts,elapsed_ms) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertEscalation, _ := s.db.Prepare(`INSERT INTO escalations(time,agent_id,start_x,start_y,start_z,goal_x,goal_y,goal_z,width,height,agent_type) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	upsertMeta, _ := s.db.Prepare(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertOutcome, insertEscalation, upsertMeta} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx         *sql.Tx
		opCount    int
		lastCommit = time.Now()
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() error {
		if tx == nil {
			return nil
		}
		err := tx.Commit()
		if err != nil {
			s.writeErr.Add(1)
		} else {
			s.written.Add(uint64(opCount))
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
		return err
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.writeErr.Add(1)
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			_ = commit()
		}
	}

	// The ticker commits a batch that stopped growing.
	tick := time.NewTicker(commitMaxWait / 4)
	defer tick.Stop()

	for {
		var r req
		select {
		case <-tick.C:
			flushIfNeeded()
			continue
		case rr, ok := <-s.ch:
			if !ok {
				_ = commit()
				return
			}
			r = rr
		}
		if r.kind == reqFlush {
			r.done <- commit()
			continue
		}
		begin()
		if tx == nil {
			s.writeErr.Add(1)
			if r.done != nil {
				r.done <- errors.New("indexdb: begin failed")
			}
			continue
		}
		switch r.kind {
		case reqOutcome:
			e := r.outcome
			if insertOutcome == nil {
				continue
			}
			terminal := 0
			if e.Terminal {
				terminal = 1
			}
			if _, err := tx.Stmt(insertOutcome).Exec(
				e.Time.UTC().Format(time.RFC3339Nano),
				e.AgentID,
				e.Mode,
				string(e.Code),
				terminal,
				e.Pos[0], e.Pos[1], e.Pos[2],
				e.Goal[0], e.Goal[1], e.Goal[2],
				e.Target,
				e.Restarts,
				e.ElapsedMS,
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqEscalation:
			e := r.escalation
			if insertEscalation == nil {
				continue
			}
			if _, err := tx.Stmt(insertEscalation).Exec(
				e.Time.UTC().Format(time.RFC3339Nano),
				e.AgentID,
				e.Start[0], e.Start[1], e.Start[2],
				e.Goal[0], e.Goal[1], e.Goal[2],
				e.Width,
				e.Height,
				e.AgentType,
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqMeta:
			var err error
			if upsertMeta == nil {
				err = errors.New("indexdb: meta statement unavailable")
			}
			for k, v := range r.meta {
				if err != nil {
					break
				}
				_, err = tx.Stmt(upsertMeta).Exec(k, v)
			}
			if err != nil {
				rollback()
				r.done <- err
				continue
			}
			r.done <- commit()
			continue
		}
		flushIfNeeded()
	}
}

var _ movement.Recorder = (*SQLiteIndex)(nil)

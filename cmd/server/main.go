package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"strider.ai/internal/nav/status"
	"strider.ai/internal/persistence/indexdb"
	persistlog "strider.ai/internal/persistence/log"
	"strider.ai/internal/protocol"
	"strider.ai/internal/sim/sandbox"
	"strider.ai/internal/transport/ws"
	"strider.ai/internal/tuning"
)

func main() {
	var (
		addr       = flag.String("addr", envString("STRIDER_ADDR", ":8080"), "http listen address")
		dataDir    = flag.String("data", envString("STRIDER_DATA", "./data"), "runtime data directory")
		tuningPath = flag.String("tuning", envString("STRIDER_TUNING", ""), "path to tuning.yaml (defaults when empty)")
		coursePath = flag.String("course", envString("STRIDER_COURSE", ""), "obstacle course yaml (built-in course when empty)")
		seed       = flag.Int64("seed", int64(envInt("STRIDER_SEED", 1337)), "sandbox seed")
		disableDB  = flag.Bool("disable_db", envBool("STRIDER_DISABLE_DB", false), "disable the sqlite escalation index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune := tuning.Defaults()
	if tp := strings.TrimSpace(*tuningPath); tp != "" {
		t, err := tuning.Load(tp)
		if err != nil {
			logger.Fatalf("load tuning: %v", err)
		}
		tune = t
	}

	course := sandbox.DefaultCourse()
	if cp := strings.TrimSpace(*coursePath); cp != "" {
		c, err := sandbox.LoadCourse(cp)
		if err != nil {
			logger.Fatalf("load course: %v", err)
		}
		course = c
	}
	w := sandbox.NewWorld(sandbox.Config{Seed: *seed})
	if err := course.Apply(w); err != nil {
		logger.Fatalf("apply course: %v", err)
	}

	serverDir := filepath.Join(*dataDir, "server")
	_ = os.MkdirAll(serverDir, 0o755)

	// Optional: read-model index (does not affect the sandbox).
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		var err error
		idx, err = indexdb.OpenSQLite(filepath.Join(serverDir, "index.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index: upsert tuning: %v", err)
		}
	}
	escLog := persistlog.NewEscalationLogger(serverDir)
	defer escLog.Close()

	srv := ws.NewServer(w, tune.StepHz, logger)
	srv.OnEscalate(func(m protocol.EscalateMsg) {
		e := persistlog.EscalationEntry{
			Time:      time.Now().UTC(),
			AgentID:   m.AgentID,
			Start:     m.Start,
			Goal:      m.Goal,
			Width:     m.Width,
			Height:    m.Height,
			AgentType: m.AgentType,
		}
		if err := escLog.WriteEscalation(e); err != nil {
			logger.Printf("escalation log: %v", err)
		}
		idx.RecordEscalation(e)
	})

	var stepMicros atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, metricsView{
			World:  w.Stats(),
			Server: srv.Stats(),
			StepMS: float64(stepMicros.Load()) / 1000,
			Index:  indexStats(idx),
		})
	})

	if envBool("STRIDER_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(struct {
				World  sandbox.Stats `json:"world"`
				Server ws.Stats      `json:"server"`
				Agents []string      `json:"agents"`
			}{w.Stats(), srv.Stats(), w.AgentIDs()})
		}))
		mux.HandleFunc("/admin/v1/fault", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if err := applyFault(w, r); err != nil {
				http.Error(rw, err.Error(), http.StatusBadRequest)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true})
		}))
	} else {
		logger.Printf("admin endpoints disabled (STRIDER_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("STRIDER_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", srv.Handler())

	hs := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signalContext()
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		interval := tune.StepInterval()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				start := time.Now()
				w.Step(interval.Seconds())
				stepMicros.Store(time.Since(start).Microseconds())
			}
		}
	})
	g.Go(func() error {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return hs.Shutdown(ctx2)
	})
	g.Go(func() error {
		logger.Printf("listening on %s (step_hz=%d boxes=%d)", *addr, tune.StepHz, w.Stats().Boxes)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatalf("server: %v", err)
	}
}

func indexStats(idx *indexdb.SQLiteIndex) *indexdb.Stats {
	if idx == nil {
		return nil
	}
	st := idx.Stats()
	return &st
}

// applyFault injects sandbox faults:
//
//	?rays=N&status=S          fail the next N casts with ray status S (default -1)
//	?agent=ID&frozen=BOOL     freeze or release an agent
//	?agent=ID&nudge_blocked=BOOL
//	?remove_box=ID            drop an obstacle from the course
func applyFault(w *sandbox.World, r *http.Request) error {
	q := r.URL.Query()
	if v := q.Get("rays"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return errors.New("bad rays")
		}
		st := -1
		if s := q.Get("status"); s != "" {
			if st, err = strconv.Atoi(s); err != nil || st >= 0 {
				return errors.New("status must be negative")
			}
		}
		w.FailRays(n, status.Ray(st))
	}
	id := q.Get("agent")
	if v := q.Get("frozen"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.New("bad frozen")
		}
		if err := w.SetFrozen(id, b); err != nil {
			return err
		}
	}
	if v := q.Get("remove_box"); v != "" {
		if !w.RemoveBox(v) {
			return errors.New("unknown box")
		}
	}
	if v := q.Get("nudge_blocked"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.New("bad nudge_blocked")
		}
		if err := w.SetNudgeBlocked(id, b); err != nil {
			return err
		}
	}
	return nil
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

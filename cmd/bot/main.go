package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/sync/errgroup"

	"strider.ai/internal/bridge"
	"strider.ai/internal/nav/avoid"
	"strider.ai/internal/nav/movement"
	"strider.ai/internal/persistence/indexdb"
	persistlog "strider.ai/internal/persistence/log"
	"strider.ai/internal/protocol"
	"strider.ai/internal/tuning"
)

func main() {
	var (
		url        = flag.String("url", "ws://localhost:8080/v1/ws", "host ws url")
		name       = flag.String("name", "bot", "bot name (with -bots > 1, used as a prefix)")
		bots       = flag.Int("bots", 1, "number of bots")
		goalsFlag  = flag.String("goals", "10,0,0;15,6,0;0,0,0", "goal list x,y,z;x,y,z")
		loops      = flag.Int("loops", 1, "passes over the goal list (0 = forever)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (defaults when empty)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite outcome index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	goals, err := parseGoals(*goalsFlag)
	if err != nil {
		logger.Fatalf("goals: %v", err)
	}
	tune := tuning.Defaults()
	if tp := strings.TrimSpace(*tuningPath); tp != "" {
		if tune, err = tuning.Load(tp); err != nil {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	botDir := filepath.Join(*dataDir, "bots")
	outcomes := persistlog.NewOutcomeLogger(botDir)
	defer outcomes.Close()
	recorders := movement.Recorders{outcomes}
	if !*disableDB {
		idx, err := indexdb.OpenSQLite(filepath.Join(botDir, "index.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index: upsert tuning: %v", err)
		}
		recorders = append(recorders, idx)
	}

	mgr, err := bridge.NewManager(bridge.Config{
		URL:       *url,
		StateFile: filepath.Join(botDir, "sessions.json"),
		Logger:    log.New(os.Stdout, "[bridge] ", log.LstdFlags|log.Lmicroseconds),
	})
	if err != nil {
		logger.Fatalf("bridge: %v", err)
	}
	defer mgr.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < *bots; i++ {
		key := *name
		if *bots > 1 {
			key = fmt.Sprintf("%s-%d", *name, i+1)
		}
		spawn := protocol.Vec3{0, float64(i) * 2, 0}
		g.Go(func() error {
			return runBot(ctx, mgr, key, &spawn, goals, *loops, tune, recorders, logger)
		})
	}
	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Fatalf("bot: %v", err)
	}
}

func runBot(ctx context.Context, mgr *bridge.Manager, key string, spawn *protocol.Vec3, goals []mgl64.Vec3, loops int, tune tuning.Tuning, rec movement.Recorder, logger *log.Logger) error {
	if id, at := mgr.LastConnected(key); id != "" {
		logger.Printf("%s: resuming agent %s (last connected %s)", key, id, at.Format(time.RFC3339))
	}
	sess, err := mgr.Session(key, spawn)
	if err != nil {
		return err
	}
	readyCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = sess.WaitReady(readyCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("%s: connect: %w", key, err)
	}

	r := &runner{
		name: key,
		link: sess,
		sup: movement.NewSupervisor(sess.AgentID(), sess, tune.MovementConfig(),
			movement.WithRecorder(rec),
			movement.WithLogger(log.New(os.Stdout, "[movement] ", log.LstdFlags|log.Lmicroseconds)),
		),
		planner:   avoid.NewPlanner(tune.NewScanner(sess, logger), nil, tune.AvoidConfig(), logger),
		log:       logger,
		width:     tune.Avoid.AgentWidth,
		height:    tune.Avoid.AgentHeight,
		tolerance: tune.Movement.Tolerance,
		tick:      time.Second,
	}

	for pass := 0; loops == 0 || pass < loops; pass++ {
		for _, goal := range goals {
			code, err := r.runGoal(ctx, goal)
			if err != nil {
				return fmt.Errorf("%s: goal %v: %w", key, goal, err)
			}
			logger.Printf("%s: goal %v -> %s", key, goal, code)
		}
	}
	st := r.sup.Stats()
	logger.Printf("%s: done starts=%d restarts=%d unsticks=%d outcomes=%v", key, st.Starts, st.Restarts, st.Unsticks, st.Outcomes)
	return nil
}

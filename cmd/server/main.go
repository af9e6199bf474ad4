package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "tidehunt.io/internal/persistence/log"
	"tidehunt.io/internal/persistence/store"
	"tidehunt.io/internal/sim/engine"
	"tidehunt.io/internal/sim/game"
	"tidehunt.io/internal/sim/tuning"
	"tidehunt.io/internal/transport/ws"
)

func main() {
	var (
		addr         = flag.String("addr", ":8080", "http listen address")
		dataDir      = flag.String("data", "./data", "runtime data directory")
		dbPath       = flag.String("db", "", "sqlite database path (default: <data>/games.db)")
		defaultsPath = flag.String("defaults", "", "path to defaults.yaml (optional)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	def, err := tuning.Load(strings.TrimSpace(*defaultsPath))
	if err != nil {
		logger.Fatalf("load defaults: %v", err)
	}

	dp := strings.TrimSpace(*dbPath)
	if dp == "" {
		dp = filepath.Join(*dataDir, "games.db")
	}
	db, err := store.OpenSQLite(dp)
	if err != nil {
		logger.Fatalf("open db: %v", err)
	}
	defer db.Close()

	journal := persistlog.NewEventJournal(filepath.Join(*dataDir, "events"))
	defer journal.Close()

	hub := ws.NewHub(logger)

	eng := engine.New(db, db, game.MultiNotifier{hub, journal}, def, logger)
	eng.SetArchiveDir(filepath.Join(*dataDir, "archives"))
	defer eng.Close()

	ctx, cancel := signalContext()
	defer cancel()

	mux := http.NewServeMux()
	registerRoutes(mux, eng, logger)
	mux.HandleFunc("/v1/ws", hub.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
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

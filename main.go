package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gopxl/beep"

	"github.com/MJE43/plinko-drop/internal/api"
	"github.com/MJE43/plinko-drop/internal/config"
	"github.com/MJE43/plinko-drop/internal/sound"
	"github.com/MJE43/plinko-drop/internal/store"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (default $PLINKO_CONFIG)")
	flag.Parse()

	log.Printf("Starting Plinko (Go %s, engine %s)...", runtime.Version(), api.EngineVersion)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if cfg.SoundEnabled() {
		paths, err := sound.Render(cfg.Server.WebRoot, beep.SampleRate(cfg.Sound.SampleRate))
		if err != nil {
			// the page still works, just silently
			log.Printf("sound render failed: %v", err)
		} else {
			log.Printf("rendered %d sound assets into %s", len(paths), cfg.Server.WebRoot)
		}
	}

	var db store.DB
	sqlite, err := openStore(cfg.Store.Path)
	if err != nil {
		log.Printf("run history disabled: %v", err)
	} else {
		db = sqlite
		defer sqlite.Close()
	}

	srv := api.NewServer(cfg, db)
	addr, err := srv.Start(cfg.Addr())
	if err != nil {
		log.Fatalf("listen %s: %v", cfg.Addr(), err)
	}
	log.Printf("Plinko ready at http://%s (web root %s)", addr, cfg.Server.WebRoot)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutMs)*time.Millisecond)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	log.Println("Server exited normally")
}

func openStore(path string) (*store.SQLiteDB, error) {
	db, err := store.NewSQLiteDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

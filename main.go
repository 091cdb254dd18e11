package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/geofix-app/geofix/internal/api"
	"github.com/geofix-app/geofix/internal/config"
	"github.com/geofix-app/geofix/internal/store"
	"github.com/geofix-app/geofix/internal/version"
)

var (
	//go:embed static/*
	staticFiles embed.FS
	devMode     = flag.Bool("dev", false, "serve static assets from ./static instead of the embedded copy")
	listen      = flag.String("listen", ":8080", "listen address")
	dbPath      = flag.String("db", "geofix.db", "path to the project database")
	configPath  = flag.String("config", "", "path to a tuning config JSON (solver defaults apply when empty)")
	printVer    = flag.Bool("version", false, "print version and exit")
)

// buildHandler assembles the root mux: the API under /api, the static UI
// at /. Dev mode reads ./static from disk so the UI can be iterated on
// without restarting the server.
func buildHandler(db *store.DB, cfg *config.TuningConfig, dev bool) (http.Handler, error) {
	mux := http.NewServeMux()
	mux.Handle("/api/", api.NewServer(db, cfg).ServeMux())

	var staticHandler http.Handler
	if dev {
		staticHandler = http.FileServer(http.Dir("./static"))
	} else {
		sub, err := fs.Sub(staticFiles, "static")
		if err != nil {
			return nil, fmt.Errorf("failed to mount embedded static files: %w", err)
		}
		staticHandler = http.FileServer(http.FS(sub))
	}
	mux.Handle("/", staticHandler)

	return api.LoggingMiddleware(mux), nil
}

func main() {
	flag.Parse()

	if *printVer {
		fmt.Printf("geofix %s\n", version.String())
		return
	}

	// `geofix -db <path> migrate <action>` manages the schema and exits.
	if args := flag.Args(); len(args) > 0 && args[0] == "migrate" {
		store.RunMigrateCommand(args[1:], *dbPath)
		return
	}

	if *listen == "" {
		log.Fatal("listen address is required")
	}

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	db, err := store.OpenAndMigrate(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	handler, err := buildHandler(db, cfg, *devMode)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              *listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.GetRequestTimeout(),
		WriteTimeout:      2 * cfg.GetRequestTimeout(),
	}

	go func() {
		log.Printf("geofix %s listening on %s (db %s)", version.String(), *listen, *dbPath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Println("graceful shutdown complete")
}

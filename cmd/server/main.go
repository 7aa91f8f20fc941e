package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"buildingheight.ai/internal/host/scene"
	"buildingheight.ai/internal/logging"
	"buildingheight.ai/internal/metrics"
	persistlog "buildingheight.ai/internal/persistence/log"
	"buildingheight.ai/internal/persistence/settingsdb"
	"buildingheight.ai/internal/settings"
	"buildingheight.ai/internal/sim/frame"
	"buildingheight.ai/internal/sim/geometry"
	"buildingheight.ai/internal/sim/selection"
	"buildingheight.ai/internal/sim/stats"
	"buildingheight.ai/internal/transport/bindings"
)

func main() {
	var (
		addr         = flag.String("addr", "127.0.0.1:8080", "http listen address")
		scenePath    = flag.String("scene", "./configs/scene.example.yaml", "scene YAML standing in for the game's entity store")
		settingsPath = flag.String("settings", "./configs/settings.yaml", "settings YAML (optional)")
		settingsDB   = flag.String("settings_db", "./data/settings.db", "SQLite settings store (empty to disable)")
		envPath      = flag.String("env", ".env", "dotenv file with BHF_* overrides (optional)")
		dataDir      = flag.String("data", "./data", "selection audit log directory (empty to disable)")
		frameHz      = flag.Int("frame_hz", frame.DefaultFrameRateHz, "frame loop rate")
	)
	flag.Parse()

	logger := logging.Setup().With("component", "server")

	cur, db, err := loadSettings(*settingsPath, *settingsDB, *envPath, logger)
	if err != nil {
		fatal(logger, "load settings", err)
	}
	var persister settings.Persister
	if db != nil {
		defer db.Close()
		persister = db
	}
	store := settings.NewStore(cur, persister)
	logger.Info("settings loaded", "height_unit", cur.HeightUnit.String(), "sea_level_offset_meters", cur.SeaLevelOffsetMeters)

	sc, err := scene.Load(*scenePath)
	if err != nil {
		fatal(logger, "load scene", err)
	}
	logger.Info("scene loaded", "scene", sc.String(), "timeline_end", sc.TimelineEnd())

	reader := geometry.NewReader(geometry.NewLayoutCache(logger))
	// Layouts belong to the loaded game types; drop them when the session ends.
	defer reader.Cache().Clear()

	deriver := stats.NewDeriver(stats.DeriverConfig{
		Store:    sc,
		Water:    sc,
		Settings: store,
		Reader:   reader,
		Logger:   logger,
	})
	watcher := selection.NewWatcher(deriver, nil)

	if strings.TrimSpace(*dataDir) != "" {
		audit := persistlog.NewSelectionLogger(*dataDir)
		defer audit.Close()
		watcher.OnChange(func(snap stats.Snapshot) {
			if err := audit.WriteSelection(snap, store.Settings()); err != nil {
				logger.Warn("selection audit write failed", "err", err)
			}
		})
	}

	bsrv := bindings.NewServer(bindings.Config{
		State:    watcher.State(),
		Settings: store,
		Selector: sc,
		Logger:   logger,
	})

	runner, err := frame.New(frame.Config{
		FrameRateHz: *frameHz,
		Source:      sc,
		Watcher:     watcher,
		Logger:      logger,
	})
	if err != nil {
		fatal(logger, "frame loop", err)
	}
	runner.OnPublish(func(stats.Snapshot) { bsrv.Publish() })

	ctx, cancel := signalContext()
	defer cancel()

	loopDone := startLoop(ctx, runner, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.Handler())
	bsrv.Register(mux)
	mux.HandleFunc("/admin/v1/scene/entities", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		writeJSON(rw, struct {
			Scene    string             `json:"scene"`
			Frame    uint64             `json:"frame"`
			Entities []scene.EntityInfo `json:"entities"`
		}{Scene: sc.Name(), Frame: runner.Frame(), Entities: sc.Entities()})
	})
	if db != nil {
		mux.HandleFunc("/admin/v1/settings/history", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			hist, err := db.History(limit)
			if err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(rw, hist)
		})
	}
	if envBool("BHF_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Info("pprof endpoints disabled (BHF_ENABLE_PPROF_HTTP=false)")
	}

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

	logger.Info("listening", "addr", *addr, "frame_hz", *frameHz)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fatal(logger, "ListenAndServe", err)
	}
	// The deferred audit close and cache clear must not race a final frame.
	cancel()
	<-loopDone
}

type loop interface {
	Run(ctx context.Context) error
}

// startLoop runs l until ctx is done. The returned channel closes once Run has returned.
func startLoop(ctx context.Context, l loop, logger *slog.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := l.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("frame loop stopped", "err", err)
		}
	}()
	return done
}

// loadSettings layers defaults < YAML < SQLite < dotenv < process env.
func loadSettings(yamlPath, dbPath, envPath string, logger *slog.Logger) (settings.Settings, *settingsdb.SQLite, error) {
	cur := settings.Defaults()
	if p := strings.TrimSpace(yamlPath); p != "" {
		s, err := settings.Load(p)
		switch {
		case err == nil:
			cur = s
		case errors.Is(err, os.ErrNotExist):
			logger.Info("settings file not found; using defaults", "path", p)
		default:
			return cur, nil, err
		}
	}

	var db *settingsdb.SQLite
	if p := strings.TrimSpace(dbPath); p != "" {
		var err error
		db, err = settingsdb.Open(p)
		if err != nil {
			return cur, nil, err
		}
		s, found, err := db.Load(cur)
		if err != nil {
			_ = db.Close()
			return cur, nil, err
		}
		if found {
			cur = s
		}
	}

	cur, err := settings.LoadEnvFile(cur, envPath)
	if err == nil {
		cur, err = settings.ApplyEnv(cur, os.LookupEnv)
	}
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return cur, nil, err
	}
	return cur, db, nil
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
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

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
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

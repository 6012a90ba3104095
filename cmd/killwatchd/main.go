package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"killwatch/internal/activity"
	"killwatch/internal/delivery"
	"killwatch/internal/eventlog"
	"killwatch/internal/explain"
	"killwatch/internal/ingestion"
	"killwatch/internal/interest"
	"killwatch/internal/interestmap"
	"killwatch/internal/metrics"
	"killwatch/internal/profileconfig"
	"killwatch/internal/topology"
	"killwatch/pkg/app"
	"killwatch/pkg/catalog"
	"killwatch/pkg/config"
	"killwatch/pkg/eveclient"
	"killwatch/pkg/relay"
	"killwatch/pkg/version"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	_ "go.uber.org/automaxprocs"
)

// customLoggerMiddleware logs requests but excludes health/metrics noise.
func customLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		middleware.Logger(next).ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	displayBanner()

	versionInfo := version.Get()
	log.Printf("version: %s", version.GetVersionString())
	log.Printf("build: %s (%s)", versionInfo.BuildDate, versionInfo.Platform)

	numCPU := runtime.NumCPU()
	maxProcs := runtime.GOMAXPROCS(0)
	log.Printf("cpu: %d system, GOMAXPROCS=%d (automaxprocs)", numCPU, maxProcs)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appCtx, err := app.InitializeApp("killwatchd")
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}
	defer appCtx.Shutdown(context.Background())

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	runtime.GC()
	runtime.ReadMemStats(&m)
	log.Printf("memory: heap=%s sys=%s gc_cycles=%d", formatBytes(m.HeapAlloc), formatBytes(m.Sys), m.NumGC)

	catalogDB := catalog.NewMemoryDB(config.GetCatalogPath())

	graph, err := topology.NewGraph(ctx, catalogDB)
	if err != nil {
		log.Fatalf("failed to load topology graph: %v", err)
	}
	slog.Info("topology graph loaded")

	activityCache := activity.NewCache(nil)

	profileDir := config.GetProfileDir()
	docs, err := profileconfig.LoadDir(profileDir)
	if err != nil {
		log.Fatalf("failed to load profiles from %s: %v", profileDir, err)
	}
	if len(docs) == 0 {
		log.Fatalf("no profiles found in %s", profileDir)
	}

	registry, profiles, err := buildProfiles(docs, graph, catalogDB)
	if err != nil {
		log.Fatalf("failed to build profiles: %v", err)
	}
	slog.Info("profiles loaded", "count", len(profiles))

	initialMap, err := interestmap.Build(graph, profileconfig.MergeInterestMaps(docs), 1, 1)
	if err != nil {
		log.Fatalf("failed to build interest map: %v", err)
	}
	mapPublisher := interestmap.NewPublisher(initialMap)

	mapVersion := 1
	rebuild := func() (*interestmap.Map, error) {
		freshDocs, err := profileconfig.LoadDir(profileDir)
		if err != nil {
			return nil, fmt.Errorf("reload profiles: %w", err)
		}
		freshRegistry, _, err := buildProfiles(freshDocs, graph, catalogDB)
		if err != nil {
			return nil, fmt.Errorf("rebuild profiles: %w", err)
		}
		registry.Publish(freshRegistry.All())
		mapVersion++
		return interestmap.Build(graph, profileconfig.MergeInterestMaps(freshDocs), mapVersion, 1)
	}

	watcher, err := interestmap.NewWatcher(profileDir, mapPublisher, rebuild)
	if err != nil {
		log.Printf("warning: profile hot-reload watcher unavailable: %v", err)
	} else {
		go watcher.Run(ctx)
		slog.Info("watching profile directory for changes", "dir", profileDir)
	}

	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				activityCache.Evict(ctx)
			}
		}
	}()

	enrichClient := eveclient.NewHTTP(eveclient.DefaultHTTPConfig(config.GetEnv("EVE_ESI_URL", "https://esi.evetech.net/latest")))

	met := metrics.New()

	var eventStore *eventlog.Store
	if appCtx.MongoDB != nil {
		eventStore, err = eventlog.New(ctx, appCtx.MongoDB.Database)
		if err != nil {
			log.Printf("warning: event archive unavailable: %v", err)
		} else {
			slog.Info("event archive connected")
		}
	}

	router := delivery.NewRouter(met)
	for _, p := range profiles {
		providers := buildDeliveryProviders(docs, p.Name)
		router.Register(p, providers...)
	}

	queueID := config.GetEnv("RELAY_QUEUE_ID", "")
	if queueID == "" {
		queueID = "killwatch-" + uuid.New().String()
	}
	relayCfg := relay.DefaultConfig(queueID)
	if url := config.GetRelayURL(); url != "" {
		relayCfg.Endpoint = url
	}
	relayClient := relay.New(relayCfg)

	var statePersister *relay.StatePersister
	if appCtx.MongoDB != nil {
		statePersister, err = relay.NewStatePersister(ctx, appCtx.MongoDB.Database)
		if err != nil {
			log.Printf("warning: relay state persistence unavailable: %v", err)
		} else {
			go func() {
				ticker := time.NewTicker(5 * time.Minute)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if err := statePersister.Save(ctx, relayClient.Snapshot()); err != nil {
							slog.Warn("relay: failed to persist consumer state", "error", err)
						}
					}
				}
			}()
		}
	}

	var dedup ingestion.Dedup
	if appCtx.Redis != nil {
		dedup = ingestion.NewRedisDedup(appCtx.Redis.Client, "")
		slog.Info("dedup backed by Redis, suppression shared across instances")
	}

	loop, err := ingestion.New(ingestion.Config{
		Source:   relayClient,
		Activity: activityCache,
		Map:      mapPublisher,
		Dedup:    dedup,
		Graph:    graph,
		Enrich:   enrichClient,
		Router:   router,
		EventLog: eventStoreOrNil(eventStore),
		Metrics:  met,
		Profiles: profiles,
	})
	if err != nil {
		log.Fatalf("failed to build ingestion loop: %v", err)
	}

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- loop.Run(ctx)
	}()

	r := chi.NewRouter()
	r.Use(customLoggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", enhancedHealthHandler)
	r.Handle("/metrics", met.Handler())

	humaConfig := huma.DefaultConfig("Killwatch API", versionInfo.Version)
	humaConfig.Info.Description = "Kill-feed intelligence and notification pipeline"
	humaConfig.DocsPath = ""
	humaConfig.Tags = []*huma.Tag{
		{Name: "Killwatch", Description: "Explain and simulate profile decisions"},
	}

	apiPrefix := config.GetAPIPrefix()
	var api huma.API
	if apiPrefix == "" {
		api = humachi.New(r, humaConfig)
	} else {
		r.Route(apiPrefix, func(prefixRouter chi.Router) {
			api = humachi.New(prefixRouter, humaConfig)
		})
	}

	var eventLookup explain.EventLookup
	if eventStore != nil {
		eventLookup = eventStore
	}
	explainRoutes := explain.NewRoutes(registry, eventLookup, explain.Dependencies{
		Map:      mapPublisher.Load(),
		Activity: activityCache,
		Graph:    graph,
		Enrich:   enrichClient,
	})
	explainRoutes.RegisterRoutes(api)

	host := config.GetHost()
	port := app.GetPort("8080")
	srv := &http.Server{
		Addr:         host + ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("starting killwatchd", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	select {
	case err := <-loopDone:
		if err != nil {
			slog.Warn("ingestion loop exited", "error", err)
		}
	case <-shutdownCtx.Done():
		slog.Warn("ingestion loop drain timed out")
	}

	router.FlushDigests(shutdownCtx)
	if statePersister != nil {
		if err := statePersister.Save(shutdownCtx, relayClient.Snapshot()); err != nil {
			slog.Warn("relay: failed to persist consumer state on shutdown", "error", err)
		}
	}
	appCtx.Shutdown(shutdownCtx)

	slog.Info("killwatchd shutdown complete")
}

// eventStoreOrNil adapts a possibly-nil *eventlog.Store into a possibly-nil
// ingestion.EventLog, since a typed nil pointer wrapped in an interface is
// not itself nil.
func eventStoreOrNil(s *eventlog.Store) ingestion.EventLog {
	if s == nil {
		return nil
	}
	return s
}

// buildProfiles turns every loaded Document into a validated profile and a
// Registry exposing them by name. A Document that fails validation is
// logged and skipped; the other profiles still load.
func buildProfiles(docs []profileconfig.Document, graph *topology.Graph, cat catalog.DB) (*profileconfig.Registry, []*interest.Profile, error) {
	profiles := make([]*interest.Profile, 0, len(docs))
	for _, doc := range docs {
		p, err := profileconfig.BuildProfile(doc, graph, cat)
		if err != nil {
			slog.Error("profile failed validation, skipping", "profile", doc.Name, "error", err)
			continue
		}
		profiles = append(profiles, p)
	}
	return profileconfig.NewRegistry(profiles), profiles, nil
}

// buildDeliveryProviders resolves a profile's delivery declarations into
// live Provider instances.
func buildDeliveryProviders(docs []profileconfig.Document, profileName string) []delivery.Provider {
	for _, doc := range docs {
		if doc.Name != profileName {
			continue
		}
		providers := make([]delivery.Provider, 0, len(doc.Delivery))
		for _, d := range doc.Delivery {
			switch d.Kind {
			case "webhook":
				providers = append(providers, delivery.NewWebhookProvider(profileName, d.Target))
			case "discord":
				providers = append(providers, delivery.NewDiscordProvider(d.Target))
			case "email":
				providers = append(providers, delivery.NewEmailProvider(d.Target))
			default:
				providers = append(providers, delivery.NewLogProvider(slog.Default()))
			}
		}
		if len(providers) == 0 {
			providers = append(providers, delivery.NewLogProvider(slog.Default()))
		}
		return providers
	}
	return []delivery.Provider{delivery.NewLogProvider(slog.Default())}
}

func enhancedHealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	versionInfo := version.Get()
	fmt.Fprintf(w, `{
	"status": "healthy",
	"service": "killwatchd",
	"version": "%s",
	"git_commit": "%s",
	"build_date": "%s",
	"go_version": "%s",
	"platform": "%s"
}`, versionInfo.Version, versionInfo.GitCommit, versionInfo.BuildDate, versionInfo.GoVersion, versionInfo.Platform)
}

func displayBanner() {
	file, err := os.Open("banner.txt")
	if err != nil {
		fmt.Print("\033[38;5;196m")
		fmt.Print("KILLWATCH\n")
		fmt.Print("\033[0m")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		fmt.Print("\033[38;5;196m")
		fmt.Print("KILLWATCH\n")
		fmt.Print("\033[0m")
		return
	}

	fmt.Print("\n\033[38;5;196m")
	fmt.Print(string(content))
	fmt.Print("\033[0m\n")
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"

	"bus-tracker/internal/api"
	"bus-tracker/internal/config"
	"bus-tracker/internal/db"
	"bus-tracker/internal/location"
	"bus-tracker/internal/metrics"
	"bus-tracker/internal/publisher"
	"bus-tracker/internal/refresh"
	"bus-tracker/internal/server"
	"bus-tracker/internal/stops"
	"bus-tracker/internal/tracking"
	"bus-tracker/internal/transit"
)

const usage = `usage:
  tracker [watch] [stop-id-or-code]   track live arrivals for a stop (default STOP_ID)
  tracker stops [-refresh] [query]    list stops, nearest first when PASSENGER_LAT/LNG are set;
                                      -refresh drops the Redis stop cache first
  tracker buses                       list every live bus
  tracker routes                      list every route`

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[1:]
	cmd := "watch"
	if len(args) > 0 && slices.Contains([]string{"watch", "stops", "buses", "routes", "help", "-h"}, args[0]) {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "stops":
		refreshCache := false
		if len(args) > 0 && args[0] == "-refresh" {
			refreshCache, args = true, args[1:]
		}
		query := ""
		if len(args) > 0 {
			query = args[0]
		}
		if err := listStops(ctx, cfg, query, refreshCache); err != nil {
			log.Fatalf("stops: %v", err)
		}
	case "buses":
		buses, err := api.NewClient(cfg.APIBaseURL, cfg.APITimeout).Buses(ctx)
		if err != nil {
			log.Fatalf("buses: %v", err)
		}
		writeBuses(os.Stdout, buses)
	case "routes":
		routes, err := api.NewClient(cfg.APIBaseURL, cfg.APITimeout).Routes(ctx)
		if err != nil {
			log.Fatalf("routes: %v", err)
		}
		writeRoutes(os.Stdout, routes)
	case "watch":
		key := cfg.StopID
		if len(args) > 0 {
			key = args[0]
		}
		if key == "" {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		watch(ctx, cfg, key)
	default:
		fmt.Println(usage)
	}
}

func watch(ctx context.Context, cfg *config.Config, key string) {
	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(refresh.Period, cfg.APITimeout)
		srv := mcol.Serve(cfg.MetricsAddr)
		defer shutdown(srv)
	}

	client := api.NewClient(cfg.APIBaseURL, cfg.APITimeout)
	dir, closeDir := openDirectory(ctx, cfg, client, mcol)
	defer closeDir()

	stopID := key
	if st, err := dir.Lookup(ctx, key); err == nil {
		stopID = st.ID
		log.Printf("resolved %q to stop %s (%s)", key, st.ID, st.Name)
	} else if errors.Is(err, stops.ErrNotFound) {
		log.Fatalf("unknown stop %q", key)
	} else {
		log.Printf("stop lookup failed, using %q as the stop id: %v", key, err)
	}

	// NATS is optional unless it is the passenger position source
	pub, err := publisher.NewNATSPublisher(cfg.NATSURL, "bus-tracker", cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
	if err != nil {
		if cfg.GeoSource == config.GeoNATS {
			log.Fatalf("nats error: %v", err)
		}
		log.Printf("nats unavailable, views will not be published: %v", err)
		pub = nil
	}
	if pub != nil {
		defer pub.Close()
	}

	ctrl, err := tracking.New(tracking.Options{
		StopID:   stopID,
		Fetcher:  client,
		Provider: positionProvider(cfg, pub),
		Watch: location.WatchOptions{
			MaximumAge:         cfg.GeoMaxAge,
			Timeout:            cfg.GeoTimeout,
			EnableHighAccuracy: true,
		},
		Refresh: refresh.Options{
			FetchTimeout: cfg.APITimeout,
			Metrics:      wrapRefreshMetrics(mcol),
		},
		LocationMetrics: wrapLocationMetrics(mcol),
		AutoLocate:      cfg.AutoLocate,
	})
	if err != nil {
		log.Fatalf("tracker error: %v", err)
	}

	r := newRenderer(os.Stdout)
	ctrl.OnChange(r.Render)
	if pub != nil {
		ctrl.OnChange(func(v tracking.ViewModel) {
			if err := pub.PublishView(stopID, v); err != nil {
				log.Printf("publish view: %v", err)
			}
		})
	}

	if err := ctrl.Start(ctx); err != nil {
		log.Fatalf("start error: %v", err)
	}
	defer ctrl.Close()

	if cfg.HTTPAddr != "" {
		srv := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: server.New(server.Deps{Session: ctrl, Stops: dir}).Routes(),
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		log.Printf("http listening on %s", cfg.HTTPAddr)
		defer shutdown(srv)
	}

	// Block until context cancelled
	<-ctx.Done()
	log.Println("shutdown complete")
}

func listStops(ctx context.Context, cfg *config.Config, query string, refreshCache bool) error {
	client := api.NewClient(cfg.APIBaseURL, cfg.APITimeout)
	dir, closeDir := openDirectory(ctx, cfg, client, nil)
	defer closeDir()

	if refreshCache {
		if cached, ok := dir.(*stops.Cached); ok {
			if err := cached.Invalidate(ctx); err != nil {
				return fmt.Errorf("invalidate stop cache: %w", err)
			}
			log.Printf("stop cache cleared")
		} else {
			log.Printf("no stop cache configured, nothing to refresh")
		}
	}

	all, err := dir.List(ctx)
	if err != nil {
		return err
	}
	matched := stops.Filter(all, query)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	if cfg.GeoSource == config.GeoStatic {
		p := transit.GeoPoint{Lat: cfg.PassengerLat, Lng: cfg.PassengerLng}
		fmt.Fprintln(tw, "ID\tCODE\tNAME\tDISTANCE")
		for _, s := range stops.Nearest(matched, p, 0) {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f km\n", s.ID, s.Code, s.Name, s.DistanceKm)
		}
		return nil
	}
	fmt.Fprintln(tw, "ID\tCODE\tNAME\tADDRESS")
	for _, s := range matched {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Code, s.Name, s.Address)
	}
	return nil
}

// openDirectory prefers a local GTFS database over the backend and fronts
// either with Redis when configured.
func openDirectory(ctx context.Context, cfg *config.Config, client *api.Client, mcol *metrics.Collector) (stops.Directory, func()) {
	var dir stops.Directory = stops.NewAPIDirectory(client)
	var closers []func()

	if cfg.DatabaseURL != "" {
		dsn := cfg.DatabaseURL
		if cfg.City != "" {
			var err error
			if dsn, err = db.LatestFeedDSN(ctx, dsn, cfg.City); err != nil {
				log.Fatalf("resolve feed for city %q: %v", cfg.City, err)
			}
		}
		sqlDB, err := db.Open(dsn)
		if err != nil {
			log.Fatalf("db open error: %v", err)
		}
		if err := db.Ping(ctx, sqlDB); err != nil {
			log.Fatalf("db ping error: %v", err)
		}
		closers = append(closers, func() { sqlDB.Close() })
		dir = stops.NewPGDirectory(sqlDB)
		if cfg.City != "" {
			log.Printf("reading stops for city %q from postgres", cfg.City)
		} else {
			log.Printf("reading stops from postgres")
		}
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pctx).Err()
		cancel()
		if err != nil {
			log.Printf("redis unavailable, stops are not cached: %v", err)
			rdb.Close()
		} else {
			closers = append(closers, func() { rdb.Close() })
			dir = stops.NewCached(dir, rdb, cfg.StopsCacheTTL, wrapCacheMetrics(mcol))
		}
	}

	return dir, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}

func positionProvider(cfg *config.Config, pub *publisher.NATSPublisher) location.Provider {
	switch cfg.GeoSource {
	case config.GeoStatic:
		return location.NewStaticProvider(location.Position{
			Coord:     transit.GeoPoint{Lat: cfg.PassengerLat, Lng: cfg.PassengerLng},
			AccuracyM: cfg.PassengerAccuracy,
			Timestamp: time.Now(),
		})
	case config.GeoNATS:
		log.Printf("passenger position from %s", location.PositionSubject(cfg.PassengerDeviceID))
		return location.NewNATSProvider(pub.Conn(), cfg.PassengerDeviceID)
	default:
		return nil
	}
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

// Command server hosts the tracking-instance registry and the
// /ws/listener control plane. On startup it restores every
// map_config/collision_data pair persisted in the sqlite store so
// instances survive a restart, then serves the push channel until
// interrupted.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"btracked-go/controlplane"
	"btracked-go/manager"
	"btracked-go/store"
	"btracked-go/tracking"
	"btracked-go/world"
)

func main() {
	dbPath := flag.String("db", "btracked.db", "path to the sqlite persistence store")
	port := flag.Int("port", 8080, "control plane HTTP/websocket port")
	updateRateMs := flag.Int("update-rate", 100, "default per-instance filter update rate, ms")
	flag.Parse()

	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer db.Close()

	mgr := manager.New()
	ctx := context.Background()
	restoreInstances(ctx, db, mgr, *updateRateMs)

	srv := controlplane.NewServer(mgr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(*port); err != nil {
			log.Fatalf("control plane server: %v", err)
		}
	}()

	<-sigChan
	log.Println("shutting down...")
}

// restoreInstances loads every map_config row and its collision data (if
// present) and re-registers a tracking instance for it, using a default
// filter configuration the operator can later update via the control
// plane.
func restoreInstances(ctx context.Context, db *store.Store, mgr *manager.Manager, updateRateMs int) {
	maps, err := db.ListMapConfigs(ctx)
	if err != nil {
		log.Printf("warn: listing persisted map configs: %v", err)
		return
	}

	for _, m := range maps {
		var geometry world.GeometryConfig
		if err := json.Unmarshal(m.Config, &geometry); err != nil {
			log.Printf("warn: decoding geometry for map %q: %v", m.MapKey, err)
			continue
		}

		collision, err := db.GetCollisionData(ctx, m.MapKey)
		if err != nil {
			log.Printf("warn: no collision data for map %q, skipping restore: %v", m.MapKey, err)
			continue
		}

		var filter tracking.FilterConfig
		if entry, err := db.GetConfig(ctx, m.MapKey, "filter_config"); err == nil {
			if err := json.Unmarshal(entry.Value, &filter); err != nil {
				log.Printf("warn: decoding filter config for map %q, using defaults: %v", m.MapKey, err)
				filter = defaultFilterConfig()
			}
		} else {
			filter = defaultFilterConfig()
		}

		filterCfg := manager.InstanceFilterConfig{
			Filter:       filter,
			UpdateRateMs: updateRateMs,
		}
		if err := mgr.NewInstance(m.MapKey, &geometry, filterCfg, collision); err != nil {
			log.Printf("warn: restoring instance %q: %v", m.MapKey, err)
			continue
		}
		log.Printf("restored instance %q from persisted store", m.MapKey)
	}
}

// defaultFilterConfig is used for a restored map with no persisted
// "filter_config" row yet — a reasonable starting point an operator is
// expected to tune via the control plane afterward.
func defaultFilterConfig() tracking.FilterConfig {
	return tracking.FilterConfig{
		NumParticles:    500,
		Speed:           1.0,
		TurnRateMean:    0,
		TurnRateStdDev:  0.3,
		ReinitThreshold: 0.01,
		ReinitRatio:     0.25,
	}
}

package booking

import (
	"context"
	"database/sql"
	"log"
	"time"

	bookingdb "stayfinder/internal/db/booking"

	"stayfinder/internal/booking/saga"
	"stayfinder/internal/inventory"
)

// BuildOrchestrator wires an Orchestrator from config (Postgres DSN, event
// publisher, logger). If the DSN is empty or initialization fails, it falls
// back to in-memory stores; bookings then do not survive a restart, which
// is fine for development and tests but logged loudly.
// The returned cleanup closes any external resources.
func BuildOrchestrator(ctx context.Context, dsn string, activities Activities, events EventPublisher, cfg Config, logf func(format string, args ...any)) (*Orchestrator, func()) {
	if logf == nil {
		logf = log.Printf
	}
	if activities == nil {
		activities = NoopActivities{}
	}

	cleanup := func() {}
	var invStore inventory.Store = inventory.NewMemoryStore()
	var cpStore saga.CheckpointStore = saga.NewMemoryCheckpointStore()

	if dsn != "" {
		sqlDB, err := sql.Open("pgx", dsn)
		if err != nil {
			logf("postgres open failed, falling back to in-memory stores: %v", err)
		} else {
			setupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			inv, err := bookingdb.NewInventoryStoreWithSchema(setupCtx, sqlDB)
			if err != nil {
				logf("postgres inventory init failed, falling back to in-memory stores: %v", err)
				_ = sqlDB.Close()
			} else {
				cps, err := bookingdb.NewCheckpointStoreWithSchema(setupCtx, sqlDB)
				if err != nil {
					logf("postgres checkpoint init failed, falling back to in-memory stores: %v", err)
					_ = sqlDB.Close()
				} else {
					logf("postgres booking stores enabled")
					invStore = inv
					cpStore = cps
					cleanup = func() {
						if err := sqlDB.Close(); err != nil {
							logf("close postgres: %v", err)
						}
					}
				}
			}
		}
	}

	return NewOrchestrator(invStore, cpStore, activities, events, cfg, logf), cleanup
}

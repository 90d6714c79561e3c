package main

import (
	"context"
	"database/sql"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	dig_container "github.com/trezcool/engage/apps/api/di/dig"
	echoapi "github.com/trezcool/engage/apps/api/echo"
	"github.com/trezcool/engage/core"
	"github.com/trezcool/engage/core/cache"
	"github.com/trezcool/engage/core/reconcile"
	"github.com/trezcool/engage/core/submission"
	"github.com/trezcool/engage/storage/database/pgtree"
)

const badgerGCInterval = 5 * time.Minute

func startWithDig() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		db *sql.DB,
		store *cache.BadgerStore,
		tree *pgtree.Tree,
		submissionSvc *submission.Service,
		watcher *reconcile.Watcher,
		hub *echoapi.Hub,
		server *echoapi.Server,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

		ctx, cancelBackground := context.WithCancel(context.Background())
		defer cancelBackground()

		dbLogger := dbLoggerParam.Logger
		defer func() {
			if err := db.Close(); err != nil {
				dbLogger.Fatal("Failed to close", err)
			}
		}()
		defer func() {
			if err := store.Close(); err != nil {
				apiLogger.Error(fmt.Sprintf("closing local cache: %v", err), err)
			}
		}()
		defer watcher.Stop()
		defer apiLogger.Info("Application stopped")

		// =========================================================================
		// Start Background Jobs

		go store.RunGC(ctx, badgerGCInterval)

		go func() {
			if err := tree.Run(ctx); err != nil {
				dbLogger.Error(fmt.Sprintf("aggregates listener stopped: %v", err), err)
			}
		}()

		if err := submissionSvc.WatchAdminLists(ctx, watcher); err != nil {
			apiLogger.Error(fmt.Sprintf("watching admin lists: %v", err), err)
		}

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
		// /debug/vars - Added to the default mux by importing the expvar package.
		// /metrics - Prometheus metrics.

		// Expose important info under /debug/vars.
		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)
		expvar.Publish("live_clients", expvar.Func(func() interface{} { return hub.Clients() }))
		expvar.Publish("tree_subscribers", expvar.Func(func() interface{} { return tree.Subscribers() }))

		http.Handle("/metrics", promhttp.Handler())

		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()

		// =========================================================================
		// Start API Service

		go func() {
			server.Start()
		}()

		// =========================================================================
		// Shutdown

		select {
		case err := <-server.Errors():
			apiLogger.Fatal(fmt.Sprintf("server error: %v", err), err)

		case sig := <-server.ShutdownSignal():
			apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

			// stop reloads and listeners before draining requests
			cancelBackground()

			// give outstanding requests a deadline for completion
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			// asking listener to shut down and shed load
			if err := server.Shutdown(ctx); err != nil {
				apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					apiLogger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}
		}
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

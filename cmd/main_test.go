package main

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartystreets/goconvey/convey"

	"github.com/vigilops/livetrack/internal/adapters/http/api"
	service "github.com/vigilops/livetrack/internal/app"
	"github.com/vigilops/livetrack/internal/config"
	"github.com/vigilops/livetrack/pkg/metrics"
)

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			// Test with environment variables
			_ = os.Setenv("LIVETRACK_ADDR", ":8080")
			_ = os.Setenv("LIVETRACK_QUEUE_SIZE", "1000")
			_ = os.Setenv("LIVETRACK_TRAIL_CAP", "25")
			defer func() {
				_ = os.Unsetenv("LIVETRACK_ADDR")
				_ = os.Unsetenv("LIVETRACK_QUEUE_SIZE")
				_ = os.Unsetenv("LIVETRACK_TRAIL_CAP")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				ctx := context.Background()
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.TrailCap, convey.ShouldEqual, 25)
			})
		})

		convey.Convey("When testing session creation", func() {
			convey.Convey("Then the session should be creatable with default options", func() {
				session := service.New()
				convey.So(session, convey.ShouldNotBeNil)
			})

			convey.Convey("And the session should be creatable with custom options", func() {
				session := service.New(
					service.WithQueueSize(2000),
					service.WithDedupeWindow(1000),
					service.WithTrailCap(25),
				)
				convey.So(session, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When testing HTTP server creation", func() {
			session := service.New()
			convey.So(session, convey.ShouldNotBeNil)

			convey.Convey("Then HTTP server should be creatable", func() {
				server := api.NewServer(session, session)
				convey.So(server, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When testing metrics initialization", func() {
			convey.Convey("Then metrics manager should be creatable", func() {
				registry := prometheus.NewRegistry()
				manager := metrics.NewManager(metrics.WithPrometheusRegistry(registry))
				convey.So(manager, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		convey.Convey("When testing system metrics updater", func() {
			convey.Convey("Then it should stop when the context expires", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()

				convey.So(func() {
					startSystemMetricsUpdater(ctx)
				}, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When testing session metrics updater", func() {
			session := service.New()
			convey.So(session, convey.ShouldNotBeNil)

			convey.Convey("Then it should stop when the context expires", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()

				convey.So(func() {
					startSessionMetricsUpdater(ctx, session)
				}, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When testing system metrics update", func() {
			convey.Convey("Then it should update metrics without panicking", func() {
				convey.So(func() {
					updateSystemMetrics()
				}, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When testing session metrics update", func() {
			session := service.New()
			convey.So(session, convey.ShouldNotBeNil)

			convey.Convey("Then it should update metrics without panicking", func() {
				convey.So(func() {
					updateSessionMetrics(session)
				}, convey.ShouldNotPanic)
			})
		})
	})
}

func TestMainApplicationIntegration(t *testing.T) {
	convey.Convey("Given main application integration", t, func() {
		convey.Convey("When testing full application setup", func() {
			_ = os.Setenv("LIVETRACK_ADDR", ":8080")
			_ = os.Setenv("LIVETRACK_QUEUE_SIZE", "1000")
			defer func() {
				_ = os.Unsetenv("LIVETRACK_ADDR")
				_ = os.Unsetenv("LIVETRACK_QUEUE_SIZE")
			}()

			convey.Convey("Then all components should work together", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()

				// Load configuration
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)

				// Create session (without starting to avoid feed/backend dependencies)
				session := service.New(
					service.WithQueueSize(cfg.QueueSize),
					service.WithDedupeWindow(cfg.DedupeWindow),
					service.WithTrailCap(cfg.TrailCap),
				)
				convey.So(session, convey.ShouldNotBeNil)

				// Create HTTP server
				server := api.NewServer(session, session)
				convey.So(server, convey.ShouldNotBeNil)

				// Create HTTP mux
				mux := http.NewServeMux()
				convey.So(mux, convey.ShouldNotBeNil)

				// Register routes
				server.Register(ctx, mux)

				// Stop session
				session.Stop()
			})
		})
	})
}

func TestMainApplicationErrorHandling(t *testing.T) {
	convey.Convey("Given main application error handling", t, func() {
		convey.Convey("When testing invalid configuration", func() {
			_ = os.Setenv("LIVETRACK_ADDR", "")
			defer func() { _ = os.Unsetenv("LIVETRACK_ADDR") }()

			convey.Convey("Then configuration loading should fail", func() {
				ctx := context.Background()
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When testing session creation with zero-valued options", func() {
			convey.Convey("Then the session should fall back to defaults", func() {
				session := service.New(
					service.WithQueueSize(0),
					service.WithDedupeWindow(0),
					service.WithTrailCap(0),
				)
				convey.So(session, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestMainApplicationResourceCleanup(t *testing.T) {
	convey.Convey("Given main application resource cleanup", t, func() {
		convey.Convey("When testing session creation", func() {
			session := service.New()
			convey.So(session, convey.ShouldNotBeNil)

			convey.Convey("Then stats should be readable without starting", func() {
				stats := session.GetStats()
				convey.So(stats, convey.ShouldNotBeNil)
				convey.So(stats["started"], convey.ShouldEqual, false)
			})
		})

		convey.Convey("When testing multiple session creation cycles", func() {
			convey.Convey("Then every session should be independent", func() {
				ids := map[string]bool{}
				for i := 0; i < 3; i++ {
					session := service.New()
					convey.So(session, convey.ShouldNotBeNil)
					convey.So(ids[session.ID()], convey.ShouldBeFalse)
					ids[session.ID()] = true
				}
			})
		})
	})
}

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartystreets/goconvey/convey"

	app "github.com/okian/medrank/internal/app"
	"github.com/okian/medrank/internal/config"
	"github.com/okian/medrank/pkg/logger"
	"github.com/okian/medrank/pkg/metrics"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const presetsYAML = `
presets:
  - id: clinic
    name: 门诊推广
    weights: {influence: 0.3, activity: 0.2, quality: 0.3, price: 0.2}
  - id: reach
    name: 曝光优先
    weights: {influence: 0.6, activity: 0.2, quality: 0.1, price: 0.1}
`

func testConfig() *config.Config {
	cfg := config.New(context.Background())
	cfg.Addr = "127.0.0.1:0"
	cfg.WorkerCount = 2
	cfg.QueueSize = 64
	return cfg
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			_ = os.Setenv("MEDRANK_ADDR", ":8080")
			_ = os.Setenv("MEDRANK_QUEUE_SIZE", "1000")
			_ = os.Setenv("MEDRANK_WORKER_COUNT", "4")
			defer func() {
				_ = os.Unsetenv("MEDRANK_ADDR")
				_ = os.Unsetenv("MEDRANK_QUEUE_SIZE")
				_ = os.Unsetenv("MEDRANK_WORKER_COUNT")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When the address is blanked out", func() {
			_ = os.Setenv("MEDRANK_ADDR", "")
			defer func() { _ = os.Unsetenv("MEDRANK_ADDR") }()

			convey.Convey("Then configuration loading should fail", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When testing metrics initialization", func() {
			convey.Convey("Then metrics manager should be creatable", func() {
				manager := metrics.NewManager(metrics.WithPrometheusRegistry(prometheus.NewRegistry()))
				convey.So(manager, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestBuildService(t *testing.T) {
	convey.Convey("Given a config naming a SQLite file and a presets file", t, func() {
		dir := t.TempDir()
		presets := filepath.Join(dir, "presets.yaml")
		convey.So(os.WriteFile(presets, []byte(presetsYAML), 0o600), convey.ShouldBeNil)

		cfg := testConfig()
		cfg.DBPath = filepath.Join(dir, "medrank.db")
		cfg.PresetsFile = presets
		cfg.SeedProfiles = true

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		convey.Convey("When the service is built and started", func() {
			svc, err := buildService(ctx, cfg, logger.Get())
			convey.So(err, convey.ShouldBeNil)
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer svc.Stop()

			convey.Convey("Then the file presets replace the built-in ones and are seeded", func() {
				ps := svc.Presets()
				convey.So(len(ps), convey.ShouldEqual, 2)
				convey.So(ps[0].Key, convey.ShouldEqual, "clinic")

				profiles, err := svc.ListProfiles(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(profiles), convey.ShouldEqual, 3)
			})

			convey.Convey("Then the database file is created", func() {
				_, err := os.Stat(cfg.DBPath)
				convey.So(err, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the presets file is missing", func() {
			cfg.PresetsFile = filepath.Join(dir, "nope.yaml")
			_, err := buildService(ctx, cfg, logger.Get())

			convey.Convey("Then building fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestHTTPServer(t *testing.T) {
	convey.Convey("Given a started in-memory service behind the HTTP server", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		cfg := testConfig()
		svc, err := buildService(ctx, cfg, logger.Get())
		convey.So(err, convey.ShouldBeNil)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		srv := newHTTPServer(ctx, cfg, svc, logger.Get())
		ts := httptest.NewServer(srv.Handler)
		defer ts.Close()

		convey.Convey("Then the API and the docs are both routed", func() {
			for _, path := range []string{"/healthz", "/stats", "/api/profiles/default", "/openapi.yaml", "/api-docs"} {
				resp, err := http.Get(ts.URL + path)
				convey.So(err, convey.ShouldBeNil)
				_ = resp.Body.Close()
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			}
		})

		convey.Convey("Then the write timeout leaves room for the request timeout", func() {
			convey.So(srv.WriteTimeout, convey.ShouldBeGreaterThan, cfg.RequestTimeout())
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a runnable server on an ephemeral port", t, func() {
		cfg := testConfig()
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() { done <- run(ctx, cfg, logger.Get()) }()

		convey.Convey("When the context is cancelled", func() {
			time.Sleep(100 * time.Millisecond)
			cancel()

			convey.Convey("Then run shuts down cleanly", func() {
				select {
				case err := <-done:
					convey.So(err, convey.ShouldBeNil)
				case <-time.After(10 * time.Second):
					t.Fatal("run did not return")
				}
			})
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the background metrics updaters", t, func() {
		convey.Convey("When the system updater runs until its context expires", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			convey.Convey("Then it returns without panicking", func() {
				convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When the service updater runs against an unstarted service", func() {
			svc := app.New()
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			convey.Convey("Then it returns without panicking", func() {
				convey.So(func() { startServiceMetricsUpdater(ctx, svc) }, convey.ShouldNotPanic)
				convey.So(func() { updateServiceMetrics(ctx, svc) }, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When system metrics are sampled", func() {
			convey.Convey("Then it should update metrics without panicking", func() {
				convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			})
		})
	})
}

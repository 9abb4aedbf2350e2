package metrics

import (
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom naming", func() {
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithJobBuckets([]float64{0.01, 0.1}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then collectors are registered under the custom names", func() {
				So(manager, ShouldNotBeNil)
				manager.doctorsScored.Add(2)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, mf := range families {
					if mf.GetName() == "test_unit_doctors_scored_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When registering the same names twice", func() {
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then promauto panics on the duplicate", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})

		Convey("When empty options are given", func() {
			m := NewManager(WithNamespace(""), WithSubsystem(""), WithHistogramBuckets(nil), WithJobBuckets(nil), WithPrometheusRegistry(registry))

			Convey("Then defaults are kept", func() {
				So(m.namespace, ShouldEqual, "medrank")
				So(m.subsystem, ShouldEqual, "engine")
				So(len(m.histogramBuckets), ShouldBeGreaterThan, 0)
				So(m.jobBuckets[0], ShouldBeLessThan, m.histogramBuckets[0])
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording engine metrics", func() {
			before := testutil.ToFloat64(globalManager.doctorsScored)
			RecordDoctorsScored(5)
			RecordScoringLatency(3)
			RecordSubIndexFallback("roi_forecast")
			RecordRecordDropped()

			Convey("Then counters move", func() {
				So(testutil.ToFloat64(globalManager.doctorsScored), ShouldEqual, before+5)
				So(testutil.ToFloat64(globalManager.subIndexFallbacks.WithLabelValues("roi_forecast")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording batch and report metrics", func() {
			RecordRecalculation("success", 12)
			RecordReport("overview", "success", 4)
			RecordImportRows("csv", "accepted", 10)
			RecordProfileActivation()

			Convey("Then labelled series exist", func() {
				So(testutil.ToFloat64(globalManager.recalculations.WithLabelValues("success")), ShouldBeGreaterThanOrEqualTo, 1)
				So(testutil.ToFloat64(globalManager.reports.WithLabelValues("overview", "success")), ShouldBeGreaterThanOrEqualTo, 1)
				So(testutil.ToFloat64(globalManager.importRows.WithLabelValues("csv", "accepted")), ShouldBeGreaterThanOrEqualTo, 10)
			})
		})

		Convey("When updating gauges", func() {
			UpdateCatalogSize(42)
			UpdateProfileCount(3)
			UpdateQueueSize(7)
			UpdateQueueCapacity(100)
			UpdateWorkerActiveCount(4)
			UpdateSystemGoroutineCount(12)
			UpdateSystemMemoryUsage(1024)

			Convey("Then gauges hold the last value", func() {
				So(testutil.ToFloat64(globalManager.catalogSize), ShouldEqual, 42)
				So(testutil.ToFloat64(globalManager.profileCount), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.workerActiveCount), ShouldEqual, 4)
			})
		})

		Convey("When recording HTTP and error metrics", func() {
			So(func() {
				RecordHTTPRequest("reports", "POST", "200")
				RecordHTTPRequestDuration("reports", "POST", "200", 8)
				RecordRateLimited("recalculate")
				RecordIdempotentReplay()
				RecordErrorByComponent("repository", "store_error")
				RecordErrorByType("store_error", "high")
				RecordStoreLatency("replace_scores", 2)
				RecordQueueEnqueueError()
				RecordWorkerProcessingLatency(1)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})
	})
}

func TestMetricsRegistryExposition(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		RecordDoctorsScored(1)

		Convey("Then it exposes medrank metrics and no Go runtime collectors", func() {
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			var names []string
			for _, mf := range families {
				names = append(names, mf.GetName())
			}
			joined := strings.Join(names, ",")
			So(joined, ShouldContainSubstring, "medrank_engine_doctors_scored_total")
			So(joined, ShouldNotContainSubstring, "go_goroutines")
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent recorders", t, func() {
		before := testutil.ToFloat64(globalManager.doctorsScored)
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					RecordDoctorsScored(1)
					RecordHTTPRequest("doctors", "GET", "200")
				}
			}()
		}
		wg.Wait()

		Convey("Then no increments are lost", func() {
			So(testutil.ToFloat64(globalManager.doctorsScored), ShouldEqual, before+1600)
		})
	})
}

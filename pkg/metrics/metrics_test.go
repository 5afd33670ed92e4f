package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should register every collector", func() {
				So(manager, ShouldNotBeNil)
				manager.claims.WithLabelValues(ModeSelfClaim, "granted").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then metric names should use the namespace and subsystem", func() {
				manager.scoreUpdates.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				var found bool
				for _, f := range families {
					if f.GetName() == "test_unit_performance_score_updates_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "test")
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording claim outcomes", func() {
			before := testutil.ToFloat64(globalManager.claims.WithLabelValues(ModeAutoMatch, "granted"))
			RecordClaim(ModeAutoMatch, "granted")
			RecordClaim(ModeAutoMatch, "granted")

			Convey("Then the counter should advance", func() {
				after := testutil.ToFloat64(globalManager.claims.WithLabelValues(ModeAutoMatch, "granted"))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When recording gauges", func() {
			UpdateQueueSize(7)
			UpdateJobsTotal(3)
			UpdateWorkersTotal(4)

			Convey("Then the gauges should hold the last value", func() {
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.jobsTotal), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.workersTotal), ShouldEqual, 4)
			})
		})

		Convey("When recording the remaining helpers", func() {
			Convey("Then none of them should panic", func() {
				So(func() {
					RecordClaimLatency(ModeSelfClaim, 1.5)
					RecordAutoMatchAttempts(2)
					RecordTransition("assigned", "in_progress", "ok")
					RecordRating("accepted")
					RecordScoreUpdate()
					RecordAvailabilityInconsistency("claim")
					RecordStoreRetry("get_job")
					RecordStoreLatency("memory", "get_job", 0.1)
					UpdateQueueCapacity(10)
					UpdateQueueUtilization(0.5)
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError()
					UpdateWorkerCount(2)
					RecordWorkerProcessingLatency(3)
					RecordReconcileResult("repaired")
					RecordHTTPRequest("claim", "POST", "200")
					RecordHTTPRequestDuration("claim", "POST", "200", 4)
					RecordErrorByComponent("coordinator", "store_unavailable")
					RecordErrorByEndpoint("claim", "POST", "conflict")
					UpdateSystemMemoryUsage(1024)
					UpdateSystemGoroutineCount(12)
					RecordSystemGCPauseTime(0.2)
				}, ShouldNotPanic)
				So(GetRegistry(), ShouldNotBeNil)
			})
		})
	})
}

package claimrace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/movers/internal/adapters/http/api"
	service "github.com/okian/movers/internal/app"
	"github.com/okian/movers/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	svc := service.New(service.WithWorkerCount(2), service.WithLogger(logger.Nop()))
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start service: %v", err)
	}
	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(ctx, mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		svc.Stop()
	})
	return srv
}

func TestRun(t *testing.T) {
	Convey("Given a running service", t, func() {
		srv := startServer(t)
		out := filepath.Join(t.TempDir(), "report", "race.json")
		cfg := &Config{
			BaseURL:     srv.URL,
			NumJobs:     20,
			NumWorkers:  30,
			Contenders:  6,
			Concurrency: 16,
			Timeout:     5 * time.Second,
			OutputFile:  out,
		}

		Convey("When the race runs", func() {
			stats, err := Run(context.Background(), cfg)

			Convey("Then no job is granted twice", func() {
				So(err, ShouldBeNil)
				So(stats.Violations, ShouldBeEmpty)
				So(stats.JobsPosted, ShouldEqual, 20)
				So(stats.WorkersSeeded, ShouldEqual, 30)
				So(stats.ClaimsSent, ShouldEqual, 20*6)
				So(stats.ClaimsFailed, ShouldEqual, 0)
				So(stats.ClaimsGranted, ShouldBeGreaterThan, 0)
				So(stats.ClaimsGranted, ShouldBeLessThanOrEqualTo, 20)
				So(stats.ClaimsGranted+stats.JobsUnassigned, ShouldEqual, 20)
				So(stats.ClaimsGranted+stats.ClaimsConflict, ShouldEqual, stats.ClaimsSent)
			})

			Convey("And the report is written", func() {
				data, err := os.ReadFile(out)
				So(err, ShouldBeNil)
				var saved Stats
				So(json.Unmarshal(data, &saved), ShouldBeNil)
				So(saved.ClaimsSent, ShouldEqual, stats.ClaimsSent)
			})
		})
	})

	Convey("Given no service", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		Convey("Then the health check fails", func() {
			_, err := Run(context.Background(), &Config{BaseURL: srv.URL, NumJobs: 1, NumWorkers: 1, Contenders: 1, Concurrency: 1, Timeout: time.Second})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "health check")
		})
	})
}

func TestCheckJob(t *testing.T) {
	Convey("Given the verifier", t, func() {
		Convey("A single grant matching the stored assignee passes", func() {
			v := checkJob(jobView{ID: "J1", Status: "assigned", AssignedWorkerID: "W1"}, []string{"W1"})
			So(v, ShouldBeEmpty)
		})

		Convey("Two grants for one job are flagged", func() {
			v := checkJob(jobView{ID: "J1", Status: "assigned", AssignedWorkerID: "W1"}, []string{"W1", "W2"})
			So(v, ShouldHaveLength, 1)
		})

		Convey("An assignee with no grant is flagged", func() {
			v := checkJob(jobView{ID: "J1", Status: "assigned", AssignedWorkerID: "W9"}, nil)
			So(v, ShouldHaveLength, 1)
		})

		Convey("A mismatched assignee is flagged", func() {
			v := checkJob(jobView{ID: "J1", Status: "assigned", AssignedWorkerID: "W2"}, []string{"W1"})
			So(v, ShouldHaveLength, 1)
		})

		Convey("An open job with no grant passes", func() {
			So(checkJob(jobView{ID: "J1", Status: "open"}, nil), ShouldBeEmpty)
		})
	})
}

func TestGenerators(t *testing.T) {
	Convey("Given the generators", t, func() {
		workers := generateWorkers(10)
		jobs := generateJobs(10)

		Convey("Workers are available and carry the base skill", func() {
			seen := map[string]bool{}
			for _, w := range workers {
				So(w.Available, ShouldBeTrue)
				So(w.Skills, ShouldContain, skillPool[0])
				So(seen[w.ID], ShouldBeFalse)
				seen[w.ID] = true
			}
		})

		Convey("Jobs have valid sizes and positive prices", func() {
			for _, j := range jobs {
				So(sizes, ShouldContain, j.Size)
				So(j.Price, ShouldBeGreaterThanOrEqualTo, minPrice)
			}
		})

		Convey("Contenders are distinct and capped by the pool", func() {
			c := contenders(workers, 4)
			So(c, ShouldHaveLength, 4)
			ids := map[string]bool{}
			for _, w := range c {
				ids[w.ID] = true
			}
			So(ids, ShouldHaveLength, 4)
			So(contenders(workers, 50), ShouldHaveLength, 10)
		})
	})
}

package scoring_test

import (
	"context"
	"testing"

	scoring "github.com/okian/movers/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMeanScorer_Score(t *testing.T) {
	Convey("Given a new mean scorer", t, func() {
		scorer := scoring.NewMeanScorer()
		ctx := context.Background()

		Convey("When the worker has a single rating", func() {
			result, err := scorer.Score(ctx, scoring.Input{WorkerID: "W2", Scores: []int{5}})

			Convey("Then the score should equal that rating", func() {
				So(err, ShouldBeNil)
				So(result.WorkerID, ShouldEqual, "W2")
				So(result.Score, ShouldEqual, 5.0)
				So(result.Count, ShouldEqual, 1)
			})
		})

		Convey("When the worker has several ratings", func() {
			result, err := scorer.Score(ctx, scoring.Input{WorkerID: "W1", Scores: []int{5, 4, 4}})

			Convey("Then the score should be the mean rounded to four places", func() {
				So(err, ShouldBeNil)
				So(result.Score, ShouldEqual, 4.3333)
				So(result.Count, ShouldEqual, 3)
			})
		})

		Convey("When rounding lands on a half", func() {
			result, err := scorer.Score(ctx, scoring.Input{WorkerID: "W1", Scores: []int{1, 2}})

			Convey("Then the exact mean should be kept", func() {
				So(err, ShouldBeNil)
				So(result.Score, ShouldEqual, 1.5)
			})
		})

		Convey("When the worker has no ratings", func() {
			result, err := scorer.Score(ctx, scoring.Input{WorkerID: "W3"})

			Convey("Then the score should be zero", func() {
				So(err, ShouldBeNil)
				So(result.Score, ShouldEqual, 0)
				So(result.Count, ShouldEqual, 0)
			})
		})

		Convey("When the same input is scored twice", func() {
			in := scoring.Input{WorkerID: "W1", Scores: []int{3, 5, 4, 2, 5, 1, 4}}
			a, errA := scorer.Score(ctx, in)
			b, errB := scorer.Score(ctx, in)

			Convey("Then both results should match", func() {
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				So(a, ShouldResemble, b)
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := scorer.Score(cctx, scoring.Input{WorkerID: "W1", Scores: []int{5}})

			Convey("Then it should return an error", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "context cancelled")
			})
		})
	})

	Convey("Given a scorer with custom precision", t, func() {
		scorer := scoring.NewMeanScorer(scoring.WithPrecision(1))

		Convey("Then the score should keep one decimal place", func() {
			result, err := scorer.Score(context.Background(), scoring.Input{WorkerID: "W1", Scores: []int{5, 4, 4}})
			So(err, ShouldBeNil)
			So(result.Score, ShouldEqual, 4.3)
			So(scorer.Precision(), ShouldEqual, 1)
		})

		Convey("And out of range precision should be ignored", func() {
			So(scoring.NewMeanScorer(scoring.WithPrecision(-1)).Precision(), ShouldEqual, 4)
			So(scoring.NewMeanScorer(scoring.WithPrecision(42)).Precision(), ShouldEqual, 4)
		})
	})
}

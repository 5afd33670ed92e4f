package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/movers/internal/retry"
	. "github.com/smartystreets/goconvey/convey"
)

var errTransient = errors.New("transient")

func TestBackoff(t *testing.T) {
	Convey("Given backoff parameters", t, func() {
		base := 10 * time.Millisecond
		capDur := 100 * time.Millisecond

		Convey("When there is no previous delay", func() {
			Convey("Then the first delay should be base", func() {
				So(retry.Backoff(0, base, 3, capDur, nil), ShouldEqual, base)
			})
		})

		Convey("When growing from a previous delay", func() {
			Convey("Then every delay should stay within [base, cap]", func() {
				prev := time.Duration(0)
				for i := 0; i < 50; i++ {
					prev = retry.Backoff(prev, base, 3, capDur, nil)
					So(prev, ShouldBeGreaterThanOrEqualTo, base)
					So(prev, ShouldBeLessThanOrEqualTo, capDur)
				}
			})
		})

		Convey("When the cap is below base", func() {
			Convey("Then the cap should win", func() {
				So(retry.Backoff(0, base, 3, time.Millisecond, nil), ShouldEqual, time.Millisecond)
			})
		})
	})
}

func TestDo(t *testing.T) {
	ctx := context.Background()
	fast := retry.Policy{Attempts: 3, Base: time.Millisecond, Cap: 2 * time.Millisecond}.WithSeed(7)

	Convey("Given a retry policy", t, func() {
		Convey("When the operation succeeds on the second try", func() {
			calls := 0
			var retried []int
			p := fast
			p.OnRetry = func(attempt int, _ time.Duration, _ error) { retried = append(retried, attempt) }
			err := retry.Do(ctx, p, func(context.Context) error {
				calls++
				if calls < 2 {
					return errTransient
				}
				return nil
			})

			Convey("Then it should return nil after two calls", func() {
				So(err, ShouldBeNil)
				So(calls, ShouldEqual, 2)
				So(retried, ShouldResemble, []int{1})
			})
		})

		Convey("When the operation keeps failing", func() {
			calls := 0
			err := retry.Do(ctx, fast, func(context.Context) error {
				calls++
				return errTransient
			})

			Convey("Then it should stop at the attempt limit with the last error", func() {
				So(errors.Is(err, errTransient), ShouldBeTrue)
				So(calls, ShouldEqual, 3)
			})
		})

		Convey("When the error is not retryable", func() {
			calls := 0
			p := fast
			p.Retryable = func(err error) bool { return errors.Is(err, errTransient) }
			permanent := errors.New("permanent")
			err := retry.Do(ctx, p, func(context.Context) error {
				calls++
				return permanent
			})

			Convey("Then it should not retry", func() {
				So(err, ShouldEqual, permanent)
				So(calls, ShouldEqual, 1)
			})
		})

		Convey("When the context is cancelled between attempts", func() {
			cctx, cancel := context.WithCancel(ctx)
			p := retry.Policy{Attempts: 5, Base: time.Second}
			err := retry.Do(cctx, p, func(context.Context) error {
				cancel()
				return errTransient
			})

			Convey("Then it should abort with both errors visible", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(errors.Is(err, errTransient), ShouldBeTrue)
			})
		})
	})
}

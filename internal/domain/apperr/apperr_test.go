package apperr_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/okian/medrank/internal/domain/apperr"
	. "github.com/smartystreets/goconvey/convey"
)

func TestKinds(t *testing.T) {
	Convey("Given classified errors", t, func() {
		Convey("When built with New", func() {
			err := apperr.New(apperr.KindNotFound, "get_doctor", "doctor d1 not found")

			Convey("Then errors.Is matches the kind sentinel only", func() {
				So(errors.Is(err, apperr.ErrNotFound), ShouldBeTrue)
				So(errors.Is(err, apperr.ErrValidation), ShouldBeFalse)
				So(apperr.KindOf(err), ShouldEqual, apperr.KindNotFound)
				So(err.Error(), ShouldEqual, "get_doctor: doctor d1 not found")
			})
		})

		Convey("When wrapping an already classified error", func() {
			inner := apperr.New(apperr.KindValidation, "validate", "bad weights")
			err := apperr.Wrap(apperr.KindStore, "create_profile", inner)

			Convey("Then the inner kind wins", func() {
				So(apperr.KindOf(err), ShouldEqual, apperr.KindValidation)
				So(errors.Is(err, apperr.ErrValidation), ShouldBeTrue)
			})
		})

		Convey("When wrapping a plain error", func() {
			err := apperr.Wrap(apperr.KindStore, "put_doctors", fmt.Errorf("disk full"))

			Convey("Then the given kind applies", func() {
				So(apperr.KindOf(err), ShouldEqual, apperr.KindStore)
				So(err.Error(), ShouldContainSubstring, "disk full")
			})
		})

		Convey("When wrapping nil", func() {
			So(apperr.Wrap(apperr.KindStore, "noop", nil), ShouldBeNil)
			So(apperr.FromContext("noop", nil), ShouldBeNil)
		})

		Convey("When the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err := apperr.CheckContext(ctx, "score_all")

			Convey("Then the error is Cancelled and still unwraps to context.Canceled", func() {
				So(apperr.KindOf(err), ShouldEqual, apperr.KindCancelled)
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(errors.Is(err, apperr.ErrCancelled), ShouldBeTrue)
			})
		})

		Convey("When an unclassified context error is inspected", func() {
			So(apperr.KindOf(context.DeadlineExceeded), ShouldEqual, apperr.KindCancelled)
			So(apperr.KindOf(errors.New("boom")), ShouldEqual, apperr.KindInternal)
			So(apperr.KindOf(fmt.Errorf("x: %w", apperr.ErrConflict)), ShouldEqual, apperr.KindConflict)
		})

		Convey("Then kind names are stable", func() {
			So(apperr.KindValidation.String(), ShouldEqual, "validation_error")
			So(apperr.KindNotFound.String(), ShouldEqual, "not_found")
			So(apperr.KindStore.String(), ShouldEqual, "store_error")
			So(apperr.KindCancelled.String(), ShouldEqual, "cancelled")
			So(apperr.KindConflict.String(), ShouldEqual, "conflict")
			So(apperr.KindInternal.String(), ShouldEqual, "internal_error")
		})
	})
}

func TestBatchError(t *testing.T) {
	Convey("Given a batch with many failures", t, func() {
		failures := make([]apperr.Failure, 0, 5)
		for i := 1; i <= 5; i++ {
			failures = append(failures, apperr.Failure{ID: fmt.Sprintf("d%d", i), Message: "composite is not finite"})
		}
		err := &apperr.BatchError{Kind: apperr.KindInternal, Op: "recalculate", Failures: failures, Limit: 2}

		Convey("Then Error lists only the first N and counts the rest", func() {
			msg := err.Error()
			So(msg, ShouldContainSubstring, "5 failure(s)")
			So(msg, ShouldContainSubstring, "id=d1")
			So(msg, ShouldContainSubstring, "id=d2")
			So(msg, ShouldNotContainSubstring, "id=d3")
			So(msg, ShouldContainSubstring, "and 3 more")
		})

		Convey("Then First caps the slice", func() {
			So(len(err.First(3)), ShouldEqual, 3)
			So(len(err.First(0)), ShouldEqual, 5)
		})

		Convey("Then it classifies through KindOf and errors.As", func() {
			var wrapped error = fmt.Errorf("outer: %w", err)
			var be *apperr.BatchError
			So(errors.As(wrapped, &be), ShouldBeTrue)
			So(errors.Is(wrapped, apperr.ErrInternal), ShouldBeTrue)
		})

		Convey("Then row failures render their position", func() {
			f := apperr.Failure{Row: 3, Field: "total_followers", Value: "-1", Message: "must be non-negative"}
			So(f.String(), ShouldEqual, `row 3 field=total_followers value="-1": must be non-negative`)
		})
	})
}

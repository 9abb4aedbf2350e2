package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/medrank/internal/domain/apperr"
)

func TestStatusOf(t *testing.T) {
	Convey("Given classified errors", t, func() {
		cases := []struct {
			err  error
			want int
		}{
			{apperr.New(apperr.KindValidation, "op", "bad"), http.StatusBadRequest},
			{apperr.New(apperr.KindNotFound, "op", "gone"), http.StatusNotFound},
			{apperr.New(apperr.KindConflict, "op", "taken"), http.StatusConflict},
			{apperr.New(apperr.KindStore, "op", "disk"), http.StatusInternalServerError},
			{apperr.FromContext("op", context.Canceled), http.StatusRequestTimeout},
			{apperr.FromContext("op", context.DeadlineExceeded), http.StatusGatewayTimeout},
			{errors.New("plain"), http.StatusInternalServerError},
			{&apperr.BatchError{Kind: apperr.KindValidation, Op: "op"}, http.StatusBadRequest},
		}

		Convey("Then each maps to its status code", func() {
			for _, c := range cases {
				So(statusOf(c.err), ShouldEqual, c.want)
			}
		})
	})
}

func TestRateLimiter(t *testing.T) {
	Convey("Given a limiter with a burst of two", t, func() {
		rl := NewRateLimiter(0.001, 2)

		Convey("When one client spends its burst", func() {
			a, b, c := rl.Allow("10.0.0.1"), rl.Allow("10.0.0.1"), rl.Allow("10.0.0.1")

			Convey("Then the third call is refused and other clients are unaffected", func() {
				So(a, ShouldBeTrue)
				So(b, ShouldBeTrue)
				So(c, ShouldBeFalse)
				So(rl.Allow("10.0.0.2"), ShouldBeTrue)
			})
		})

		Convey("When clients go idle", func() {
			rl.Allow("10.0.0.1")
			rl.sweep(time.Now().Add(visitorIdleTTL + time.Second))

			Convey("Then they are forgotten", func() {
				rl.mu.Lock()
				defer rl.mu.Unlock()
				So(rl.visitors, ShouldBeEmpty)
			})
		})
	})

	Convey("Given a limiter with no rate", t, func() {
		rl := NewRateLimiter(0, 0)

		Convey("Then every call is allowed", func() {
			for i := 0; i < 100; i++ {
				So(rl.Allow("10.0.0.1"), ShouldBeTrue)
			}
		})
	})
}

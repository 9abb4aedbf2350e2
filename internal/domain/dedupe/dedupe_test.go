package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	dedupe "github.com/okian/medrank/internal/domain/dedupe"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()
	fp := dedupe.Fingerprint([]byte("POST"), []byte("/api/profiles"), []byte(`{"name":"a"}`))

	Convey("Given a new InMemoryDeduper", t, func() {
		d := dedupe.NewInMemoryDeduper()
		So(d.Size(), ShouldEqual, 0)

		Convey("When a key is claimed for the first time", func() {
			_, state := d.Begin(ctx, "key-1", fp)

			Convey("Then the caller owns it", func() {
				So(state, ShouldEqual, dedupe.StateNew)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And the same request arrives before completion", func() {
				_, again := d.Begin(ctx, "key-1", fp)
				So(again, ShouldEqual, dedupe.StateInFlight)
			})

			Convey("And the response is recorded", func() {
				body := []byte(`{"id":"p1"}`)
				d.Complete(ctx, "key-1", dedupe.Response{Status: 201, ContentType: "application/json", Body: body})
				body[0] = 'X'

				Convey("Then a retry replays a copy of it", func() {
					resp, again := d.Begin(ctx, "key-1", fp)
					So(again, ShouldEqual, dedupe.StateReplay)
					So(resp.Status, ShouldEqual, 201)
					So(string(resp.Body), ShouldEqual, `{"id":"p1"}`)
				})

				Convey("Then release no longer drops it", func() {
					d.Release(ctx, "key-1")
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And a different request reuses the key", func() {
				other := dedupe.Fingerprint([]byte("POST"), []byte("/api/profiles"), []byte(`{"name":"b"}`))
				_, again := d.Begin(ctx, "key-1", other)
				So(again, ShouldEqual, dedupe.StateMismatch)
			})

			Convey("And the request fails and releases the key", func() {
				d.Release(ctx, "key-1")

				Convey("Then a retry owns it again", func() {
					So(d.Size(), ShouldEqual, 0)
					_, again := d.Begin(ctx, "key-1", fp)
					So(again, ShouldEqual, dedupe.StateNew)
				})
			})
		})

		Convey("When releasing an unknown key", func() {
			d.Release(ctx, "missing")
			So(d.Size(), ShouldEqual, 0)
		})
	})

	Convey("Given a bounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for i := 1; i <= 3; i++ {
			_, state := d.Begin(ctx, fmt.Sprintf("k%d", i), fp)
			So(state, ShouldEqual, dedupe.StateNew)
		}

		Convey("When a fourth key arrives", func() {
			_, state := d.Begin(ctx, "k4", fp)

			Convey("Then the oldest key is evicted", func() {
				So(state, ShouldEqual, dedupe.StateNew)
				So(d.Size(), ShouldEqual, 3)
				_, again := d.Begin(ctx, "k1", fp)
				So(again, ShouldEqual, dedupe.StateNew)
				_, k3 := d.Begin(ctx, "k3", fp)
				So(k3, ShouldEqual, dedupe.StateInFlight)
			})
		})

		Convey("When a middle key is released", func() {
			d.Release(ctx, "k2")
			_, _ = d.Begin(ctx, "k4", fp)
			_, _ = d.Begin(ctx, "k5", fp)

			Convey("Then eviction still removes the oldest", func() {
				So(d.Size(), ShouldEqual, 3)
				_, k1 := d.Begin(ctx, "k1", fp)
				So(k1, ShouldEqual, dedupe.StateNew)
			})
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		for i := 0; i < 2000; i++ {
			d.Begin(ctx, fmt.Sprintf("k%d", i), fp)
		}
		So(d.Size(), ShouldEqual, 2000)
	})

	Convey("Given a deduper with a short ttl", t, func() {
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		d := dedupe.NewInMemoryDeduper(
			dedupe.WithTTL(time.Minute),
			dedupe.WithClock(func() time.Time { return now }),
		)
		d.Begin(ctx, "k", fp)
		d.Complete(ctx, "k", dedupe.Response{Status: 200})

		Convey("When the key expires", func() {
			now = now.Add(2 * time.Minute)
			_, state := d.Begin(ctx, "k", fp)

			Convey("Then it can be claimed again", func() {
				So(state, ShouldEqual, dedupe.StateNew)
				So(d.Size(), ShouldEqual, 1)
			})
		})
	})
}

func TestInMemoryDeduperConcurrency(t *testing.T) {
	Convey("Given a deduper with concurrent access", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		ctx := context.Background()

		Convey("When many goroutines claim the same key", func() {
			var wg sync.WaitGroup
			var owners atomic.Int64
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, s := d.Begin(ctx, "shared", 7); s == dedupe.StateNew {
						owners.Add(1)
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one owns it", func() {
				So(owners.Load(), ShouldEqual, 1)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When goroutines claim distinct keys", func() {
			var wg sync.WaitGroup
			for g := 0; g < 10; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for i := 0; i < 100; i++ {
						d.Begin(ctx, fmt.Sprintf("g%d-%d", g, i), 1)
					}
				}(g)
			}
			wg.Wait()
			So(d.Size(), ShouldEqual, 1000)
		})
	})
}

func TestFingerprint(t *testing.T) {
	Convey("Fingerprints separate their parts", t, func() {
		So(dedupe.Fingerprint([]byte("ab"), []byte("c")), ShouldNotEqual, dedupe.Fingerprint([]byte("a"), []byte("bc")))
		So(dedupe.Fingerprint([]byte("x")), ShouldEqual, dedupe.Fingerprint([]byte("x")))
		So(dedupe.StateReplay.String(), ShouldEqual, "replay")
	})
}

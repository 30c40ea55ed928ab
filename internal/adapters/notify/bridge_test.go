package notify

import (
	"context"
	"testing"
	"time"

	"github.com/okian/showcase/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBridge(t *testing.T) {
	Convey("Given a bridge attached to a broadcaster", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		b := NewBroadcaster()
		br := NewBridge(nil)
		defer func() { _ = br.Close() }()
		br.Attach(b)

		events, err := br.Subscribe(ctx, "42")
		So(err, ShouldBeNil)

		Convey("When changes for several users are broadcast", func() {
			p := model.NewProfile()
			p.SessionCount = 3
			b.Publish(ctx, model.ProfileChanged{UserID: "7", Reason: model.ChangeSession, Profile: p})
			b.Publish(ctx, model.ProfileChanged{UserID: "42", Reason: model.ChangeSession, Profile: p})

			Convey("Then the subscriber only sees its own user", func() {
				select {
				case ev := <-events:
					So(ev.UserID, ShouldEqual, "42")
					So(ev.Reason, ShouldEqual, model.ChangeSession)
					So(ev.Profile.SessionCount, ShouldEqual, 3)
				case <-time.After(2 * time.Second):
					So("timeout waiting for event", ShouldBeEmpty)
				}
			})
		})

		Convey("When the context is cancelled", func() {
			cancel()

			Convey("Then the stream is closed", func() {
				closed := false
				deadline := time.After(2 * time.Second)
				for !closed {
					select {
					case _, ok := <-events:
						closed = !ok
					case <-deadline:
						So("timeout waiting for close", ShouldBeEmpty)
						return
					}
				}
				So(closed, ShouldBeTrue)
			})
		})
	})
}

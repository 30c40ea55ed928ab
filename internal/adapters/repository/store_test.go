package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/showcase/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []model.ProfileChanged
}

func (c *capturePublisher) Publish(_ context.Context, ev model.ProfileChanged) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *capturePublisher) all() []model.ProfileChanged {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.ProfileChanged(nil), c.events...)
}

// failingBackend fails every write.
type failingBackend struct {
	*MemoryBackend
	mu     sync.Mutex
	writes int
}

func (f *failingBackend) Set(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	return errors.New("quota exceeded")
}

func (f *failingBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func TestProfileStore_Load(t *testing.T) {
	Convey("Given a store with no prior save", t, func() {
		ctx := context.Background()
		backend := NewMemoryBackend()
		store := NewProfileStore(backend)

		Convey("Load returns empty defaults", func() {
			p := store.Load(ctx, "")
			So(p.Interactions, ShouldBeEmpty)
			So(p.BrowsingHistory, ShouldBeEmpty)
			So(p.SessionCount, ShouldEqual, 0)
		})

		Convey("Corrupt JSON is replaced by defaults", func() {
			So(backend.Set(ctx, store.Key("7"), "{not json"), ShouldBeNil)
			p := store.Load(ctx, "7")
			So(p, ShouldResemble, model.NewProfile())
		})

		Convey("A closed backend degrades to defaults", func() {
			So(backend.Close(), ShouldBeNil)
			So(store.Load(ctx, "7"), ShouldResemble, model.NewProfile())
		})

		Convey("Over-long stored collections are trimmed on load", func() {
			raw := `{"interactions":[`
			for i := 0; i < 60; i++ {
				if i > 0 {
					raw += ","
				}
				raw += fmt.Sprintf(`{"itemId":"i-%d","action":"view","timestamp":1}`, i)
			}
			raw += `]}`
			So(backend.Set(ctx, store.Key(""), raw), ShouldBeNil)

			loaded := store.Load(ctx, "")
			So(loaded.Interactions, ShouldHaveLength, 50)
			So(loaded.Interactions[0].ItemID, ShouldEqual, "i-10")
			So(loaded.Interests, ShouldNotBeNil)
		})
	})
}

func TestProfileStore_Keys(t *testing.T) {
	Convey("Given a store with a custom key", t, func() {
		store := NewProfileStore(NewMemoryBackend(), WithKey("profile"))

		So(store.Key(""), ShouldEqual, "profile")
		So(store.Key("42"), ShouldEqual, "profile:42")
		So(NewProfileStore(NewMemoryBackend()).Key(""), ShouldEqual, DefaultKey)
	})
}

func TestProfileStore_Save(t *testing.T) {
	Convey("Given a store with a publisher", t, func() {
		ctx := context.Background()
		pub := &capturePublisher{}
		fixed := time.UnixMilli(1_700_000_000_000)
		store := NewProfileStore(NewMemoryBackend(), WithPublisher(pub), WithClock(func() time.Time { return fixed }))

		Convey("When a profile is saved", func() {
			p := model.NewProfile()
			p.SessionCount = 2
			p.AddInterests("food")
			store.Save(ctx, "42", model.ChangeSession, p)

			Convey("Then it is readable and a notification was broadcast", func() {
				So(store.Load(ctx, "42").SessionCount, ShouldEqual, 2)
				So(store.Load(ctx, "42").Interests, ShouldResemble, []string{"food"})

				events := pub.all()
				So(events, ShouldHaveLength, 1)
				So(events[0].UserID, ShouldEqual, "42")
				So(events[0].Reason, ShouldEqual, model.ChangeSession)
				So(events[0].Profile.SessionCount, ShouldEqual, 2)
				So(events[0].At.Equal(fixed), ShouldBeTrue)
			})

			Convey("Then other users are unaffected", func() {
				So(store.Load(ctx, "43").SessionCount, ShouldEqual, 0)
			})
		})
	})

	Convey("Given a store whose backend rejects writes", t, func() {
		ctx := context.Background()
		pub := &capturePublisher{}
		backend := &failingBackend{MemoryBackend: NewMemoryBackend()}
		store := NewProfileStore(backend, WithPublisher(pub), WithBreaker(2, time.Hour))

		Convey("Save does not panic and still broadcasts", func() {
			p := model.NewProfile()
			p.SessionCount = 1
			So(func() { store.Save(ctx, "", model.ChangeSession, p) }, ShouldNotPanic)
			So(pub.all(), ShouldHaveLength, 1)
			So(pub.all()[0].Profile.SessionCount, ShouldEqual, 1)
		})

		Convey("The breaker stops calling the backend after repeated failures", func() {
			for i := 0; i < 5; i++ {
				store.Save(ctx, "", model.ChangeInteraction, model.NewProfile())
			}
			So(backend.calls(), ShouldEqual, 2)
			So(pub.all(), ShouldHaveLength, 5)
		})
	})
}

func TestProfileStore_Update(t *testing.T) {
	Convey("Given concurrent updates of one user", t, func() {
		ctx := context.Background()
		store := NewProfileStore(NewMemoryBackend())

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				store.Update(ctx, "u1", model.ChangeSession, func(p *model.Profile) {
					p.SessionCount++
				})
			}()
		}
		wg.Wait()

		Convey("Then no increment is lost", func() {
			So(store.Load(ctx, "u1").SessionCount, ShouldEqual, 50)
		})
	})

	Convey("Given an update that overflows the limits", t, func() {
		ctx := context.Background()
		store := NewProfileStore(NewMemoryBackend(), WithLimits(model.Limits{History: 2, Interactions: 3}))

		got := store.Update(ctx, "", model.ChangeInteraction, func(p *model.Profile) {
			p.BrowsingHistory = []string{"a", "b", "c"}
		})

		Convey("Then the saved profile is trimmed", func() {
			So(got.BrowsingHistory, ShouldResemble, []string{"b", "c"})
			So(store.Load(ctx, "").BrowsingHistory, ShouldResemble, []string{"b", "c"})
			So(store.Limits(), ShouldResemble, model.Limits{History: 2, Interactions: 3})
		})
	})
}

// reentrantPublisher mutates another profile from inside the notification,
// the way a Service listener may.
type reentrantPublisher struct {
	store *ProfileStore
	once  sync.Once
}

func (r *reentrantPublisher) Publish(ctx context.Context, ev model.ProfileChanged) {
	r.once.Do(func() {
		// Same stripe as the user that triggered the notification.
		r.store.Update(ctx, ev.UserID, model.ChangeInterests, func(p *model.Profile) {
			p.AddInterests("echo")
		})
		r.store.Reset(ctx, ev.UserID+"-shadow")
	})
}

func TestProfileStore_ListenerMutation(t *testing.T) {
	Convey("Given a listener that updates profiles when notified", t, func() {
		ctx := context.Background()
		pub := &reentrantPublisher{}
		store := NewProfileStore(NewMemoryBackend(), WithPublisher(pub))
		pub.store = store

		done := make(chan struct{})
		go func() {
			defer close(done)
			store.Update(ctx, "5", model.ChangeSession, func(p *model.Profile) { p.SessionCount++ })
		}()

		Convey("Then the update completes and both writes are kept", func() {
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				So("update blocked on its own notification", ShouldBeEmpty)
				return
			}
			p := store.Load(ctx, "5")
			So(p.SessionCount, ShouldEqual, 1)
			So(p.Interests, ShouldResemble, []string{"echo"})
		})
	})
}

func TestProfileStore_Reset(t *testing.T) {
	Convey("Given a saved profile", t, func() {
		ctx := context.Background()
		pub := &capturePublisher{}
		store := NewProfileStore(NewMemoryBackend(), WithPublisher(pub))
		store.Update(ctx, "9", model.ChangeSession, func(p *model.Profile) { p.SessionCount = 4 })

		Convey("When it is reset", func() {
			p := store.Reset(ctx, "9")

			Convey("Then defaults are returned and broadcast", func() {
				So(p.SessionCount, ShouldEqual, 0)
				So(store.Load(ctx, "9").SessionCount, ShouldEqual, 0)
				events := pub.all()
				So(events[len(events)-1].Reason, ShouldEqual, model.ChangeReset)
			})
		})
	})
}

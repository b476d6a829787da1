package discovery

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
)

type fakeDiscoverer struct {
	calls   atomic.Int32
	release chan struct{}
	fail    atomic.Bool
	tools   []Tool
}

func (fake *fakeDiscoverer) Discover(ctx context.Context, label string) ([]Tool, error) {
	fake.calls.Add(1)

	if fake.release != nil {
		<-fake.release
	}

	if fake.fail.Load() {
		return nil, fmt.Errorf("%s unreachable", label)
	}

	return fake.tools, nil
}

func TestDiscoverDeduplicates(t *testing.T) {
	Convey("Given a slow discoverer", t, func() {
		fake := &fakeDiscoverer{
			release: make(chan struct{}),
			tools:   []Tool{{Name: "a"}, {Name: "b"}, {Name: "c"}},
		}
		coordinator := NewCoordinator(fake)

		Convey("When many callers ask for the same label at once", func() {
			var (
				wg      sync.WaitGroup
				results = make([]int, 10)
			)

			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i] = coordinator.Discover(context.Background(), "svc-a")
				}(i)
			}

			time.Sleep(50 * time.Millisecond)
			close(fake.release)
			wg.Wait()

			Convey("Then the collaborator is called once and everyone gets the count", func() {
				So(fake.calls.Load(), ShouldEqual, 1)
				for _, n := range results {
					So(n, ShouldEqual, 3)
				}
			})

			Convey("Then later calls are served from the cache", func() {
				So(coordinator.Discover(context.Background(), "svc-a"), ShouldEqual, 3)
				So(fake.calls.Load(), ShouldEqual, 1)
			})
		})
	})
}

func TestDiscoverFailureIsNotCached(t *testing.T) {
	Convey("Given a discoverer that fails", t, func() {
		fake := &fakeDiscoverer{tools: []Tool{{Name: "x"}, {Name: "y"}}}
		fake.fail.Store(true)
		coordinator := NewCoordinator(fake)

		So(coordinator.Discover(context.Background(), "svc-a"), ShouldEqual, 0)

		Convey("When it recovers", func() {
			fake.fail.Store(false)

			Convey("Then the next call returns the real count", func() {
				So(coordinator.Discover(context.Background(), "svc-a"), ShouldEqual, 2)
				So(fake.calls.Load(), ShouldEqual, 2)
			})
		})
	})
}

func TestDiscoverEmptyIsNotCached(t *testing.T) {
	fake := &fakeDiscoverer{}
	coordinator := NewCoordinator(fake)

	assert.Equal(t, 0, coordinator.Discover(context.Background(), "svc-a"))
	assert.Equal(t, 0, coordinator.Discover(context.Background(), "svc-a"))
	assert.Equal(t, int32(2), fake.calls.Load())
}

func TestDiscoverCallerGivesUp(t *testing.T) {
	fake := &fakeDiscoverer{release: make(chan struct{}), tools: []Tool{{Name: "a"}}}
	coordinator := NewCoordinator(fake)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.Equal(t, 0, coordinator.Discover(ctx, "svc-a"))

	close(fake.release)

	assert.Eventually(t, func() bool {
		return len(coordinator.Tools("svc-a")) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestInvalidateAndToolSet(t *testing.T) {
	Convey("Given a static discoverer behind the coordinator", t, func() {
		static := NewStaticDiscoverer()
		static.Register("memory", Tool{Name: "memory_search"}, func(ctx context.Context, args map[string]any) (string, error) {
			return "found " + args["query"].(string), nil
		})
		static.Register("clock", Tool{Name: "now"}, func(ctx context.Context, args map[string]any) (string, error) {
			return "noon", nil
		})

		coordinator := NewCoordinator(static)

		Convey("When assembling a tool set", func() {
			tools := coordinator.ToolSet(context.Background(), []string{"memory", "missing", "clock"})

			Convey("Then tools from known labels are returned in label order", func() {
				So(len(tools), ShouldEqual, 2)
				So(tools[0].Name, ShouldEqual, "memory_search")
				So(tools[0].Label, ShouldEqual, "memory")
				So(tools[1].Name, ShouldEqual, "now")
			})
		})

		Convey("When calling a tool", func() {
			out, err := coordinator.Call(context.Background(), "memory", "memory_search", map[string]any{"query": "tea"})
			So(err, ShouldBeNil)
			So(out, ShouldEqual, "found tea")
		})

		Convey("When invalidating a label", func() {
			coordinator.Discover(context.Background(), "memory")
			coordinator.Invalidate("memory")
			So(coordinator.Tools("memory"), ShouldBeEmpty)
		})
	})
}

func TestInvalidateDuringDiscovery(t *testing.T) {
	Convey("Given a discovery blocked in flight", t, func() {
		fake := &fakeDiscoverer{
			release: make(chan struct{}),
			tools:   []Tool{{Name: "a"}, {Name: "b"}, {Name: "c"}},
		}
		coordinator := NewCoordinator(fake)

		var (
			wg      sync.WaitGroup
			results = make([]int, 2)
		)

		wg.Add(1)
		go func() {
			defer wg.Done()
			results[0] = coordinator.Discover(context.Background(), "svc")
		}()

		So(waitFor(func() bool { return fake.calls.Load() == 1 }), ShouldBeTrue)

		Convey("When the label is invalidated and asked for again", func() {
			coordinator.Invalidate("svc")

			wg.Add(1)
			go func() {
				defer wg.Done()
				results[1] = coordinator.Discover(context.Background(), "svc")
			}()

			time.Sleep(50 * time.Millisecond)
			close(fake.release)
			wg.Wait()

			Convey("Then both callers share the one call in flight", func() {
				So(fake.calls.Load(), ShouldEqual, 1)
				So(results, ShouldResemble, []int{3, 3})
			})

			Convey("Then the invalidated result is not cached", func() {
				So(coordinator.Tools("svc"), ShouldBeEmpty)
				So(coordinator.Discover(context.Background(), "svc"), ShouldEqual, 3)
				So(fake.calls.Load(), ShouldEqual, 2)
			})
		})
	})
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)

	for time.Now().Before(deadline) {
		if cond() {
			return true
		}

		time.Sleep(5 * time.Millisecond)
	}

	return cond()
}

package sched

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kestrel/internal/blockalloc"
	"kestrel/internal/pagealloc"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	pages := pagealloc.NewPool(64, 0)
	blocks := blockalloc.NewAllocator(pages)
	return NewScheduler(blocks, nil)
}

// TestSingleRunnableTaskNeverSwitches implements invariant
// that Schedule() is a no-op when exactly one runnable task is already
// current.
func TestSingleRunnableTaskNeverSwitches(t *testing.T) {
	s := newTestScheduler(t)
	var runs int
	done := make(chan struct{})
	s.Spawn("solo", 0, func(h *Handle) {
		runs++
		h.Yield() // sole runnable task: returns without switching away
		close(done)
		h.Exit()
	})

	s.Schedule()
	<-done
	require.Equal(t, 1, runs)

	// scheduling again with only a zombie left is a no-op, not a crash
	s.Schedule()
}

// TestRunCountsAcrossCooperativeYields implements scenario 1:
// two tasks that yield back and forth accumulate independent run counts.
func TestRunCountsAcrossCooperativeYields(t *testing.T) {
	s := newTestScheduler(t)
	const rounds = 5
	var mu sync.Mutex
	order := []string{}

	var wg sync.WaitGroup
	wg.Add(2)

	s.Spawn("a", 0, func(h *Handle) {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			mu.Lock()
			order = append(order, "a")
			mu.Unlock()
			h.Yield()
		}
	})
	s.Spawn("b", 0, func(h *Handle) {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			mu.Lock()
			order = append(order, "b")
			mu.Unlock()
			h.Yield()
		}
	})

	for i := 0; i < rounds*2+4; i++ {
		s.Schedule()
	}
	waitWithTimeout(t, &wg)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(order), rounds*2)
}

// TestCascadingKillMarksDescendantsZombie implements scenario
// 2: killing a parent marks every descendant zombie too, even though
// none of them have run again since the kill.
func TestCascadingKillMarksDescendantsZombie(t *testing.T) {
	s := newTestScheduler(t)
	var parent, child, grandchild TaskID
	spawned := make(chan struct{})

	// each task parks on an event nobody wakes: the boot context only
	// gets control back from Schedule once no task is runnable.
	parent = s.Spawn("parent", 0, func(h *Handle) {
		child = s.Spawn("child", 0, func(h2 *Handle) {
			grandchild = s.Spawn("grandchild", 0, func(h3 *Handle) {
				h3.WaitEvent(EventID(99))
			})
			close(spawned)
			h2.WaitEvent(EventID(99))
		})
		h.WaitEvent(EventID(99))
	})

	for i := 0; i < 10; i++ {
		s.Schedule()
		select {
		case <-spawned:
			i = 10
		default:
		}
	}
	<-spawned
	s.Schedule()

	require.True(t, s.Kill(parent))

	s.mu.Lock()
	pt := s.lookupLocked(parent)
	ct := s.lookupLocked(child)
	gt := s.lookupLocked(grandchild)
	require.NotNil(t, pt)
	require.NotNil(t, ct)
	require.NotNil(t, gt)
	require.True(t, pt.Zombie())
	require.True(t, ct.Zombie())
	require.True(t, gt.Zombie())
	s.mu.Unlock()
}

// fakeTimer lets tests drive PollAndAdvance deterministically.
type fakeTimer struct {
	tick uint32
}

func (f *fakeTimer) PollAndAdvance() uint32 { return f.tick }

// TestTimerWakesBlockedTask implements scenario 3: a task
// blocked via BlockUntil(deadline) becomes runnable once the polled tick
// reaches the deadline, and not before.
func TestTimerWakesBlockedTask(t *testing.T) {
	ft := &fakeTimer{}
	pages := pagealloc.NewPool(64, 0)
	blocks := blockalloc.NewAllocator(pages)
	s := NewScheduler(blocks, ft)

	woke := make(chan struct{})
	s.Spawn("sleeper", 0, func(h *Handle) {
		h.BlockUntil(100)
		close(woke)
		h.Exit()
	})

	ft.tick = 50
	s.Schedule()
	select {
	case <-woke:
		t.Fatal("task woke before its deadline")
	default:
	}

	ft.tick = 100
	s.Schedule()
	waitChanWithTimeout(t, woke)
}

// TestWaitEventIsLevelTriggeredNotEdge implements documented
// level-triggered wait/wake semantics: WakeEvent posted while no task is
// yet waiting is not queued, so a later WaitEvent(id) call still blocks.
func TestWaitEventIsLevelTriggeredNotEdge(t *testing.T) {
	s := newTestScheduler(t)
	var id TaskID
	reachedWait := make(chan struct{})
	resumed := make(chan struct{})

	id = s.Spawn("waiter", 0, func(h *Handle) {
		close(reachedWait)
		h.WaitEvent(EventID(42))
		close(resumed)
		h.Exit()
	})
	_ = id

	s.WakeEvent(EventID(42)) // no waiter yet: this wake is not queued
	s.Schedule()
	<-reachedWait
	s.Schedule() // parks the waiter

	select {
	case <-resumed:
		t.Fatal("waiter resumed before WakeEvent")
	default:
	}

	s.WakeEvent(EventID(42))
	s.Schedule()
	waitChanWithTimeout(t, resumed)
}

// TestRingStaysCircularAfterSpawnAndReap checks the ring invariant
// directly: after a task exits and is reaped, the remaining tasks still
// form one circular list.
func TestRingStaysCircularAfterSpawnAndReap(t *testing.T) {
	s := newTestScheduler(t)
	done := make(chan struct{})
	s.Spawn("ephemeral", 0, func(h *Handle) {
		h.Exit()
	})
	s.Spawn("survivor", 0, func(h *Handle) {
		for i := 0; i < 3; i++ {
			h.Yield()
		}
		close(done)
		h.Exit()
	})

	for i := 0; i < 8; i++ {
		s.Schedule()
	}
	waitChanWithTimeout(t, done)
	s.Schedule() // reaps the final zombie

	s.mu.Lock()
	n := s.ringLen()
	s.mu.Unlock()
	require.LessOrEqual(t, n, 1)
}

func waitWithTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	waitChanWithTimeout(t, done)
}

func waitChanWithTimeout(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for scheduler progress")
	}
}

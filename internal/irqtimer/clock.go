package irqtimer

import (
	"sync"

	"kestrel/internal/sched"
)

// defaultFrequencyHz is the QEMU-virt fallback frequency
// (nanotime.go: "CNTFRQ_EL0 returned 0, using default 62.5 MHz").
const defaultFrequencyHz = 62500000

// TickPeriodMillis is the timer period ("arming timer to fire
// every 20ms"). The scheduler tick that PollAndAdvance produces counts
// single milliseconds, not periods of this length.
const TickPeriodMillis = 20

// Clock is a monotonic millisecond clock. Real hardware reads
// CNTVCT_EL0 scaled by CNTFRQ_EL0; here a software counter stands in for
// the hardware register. NanosSinceBoot scales it with the original
// truncated nanosPerTick arithmetic; PollAndAdvance derives milliseconds
// as counter * 1000 / frequency.
type Clock struct {
	mu sync.Mutex

	frequencyHz  uint64
	nanosPerTick int64

	hwTicks uint64 // stands in for a CNTVCT_EL0 read
	tick    uint32 // scheduler's millisecond tick counter
}

// NewClock creates a Clock at frequencyHz. A zero frequencyHz falls back
// to the QEMU default, exactly as nanotime.go's initTime does.
func NewClock(frequencyHz uint64) *Clock {
	if frequencyHz == 0 {
		frequencyHz = defaultFrequencyHz
	}
	return &Clock{
		frequencyHz:  frequencyHz,
		nanosPerTick: int64(1000000000 / frequencyHz),
	}
}

// AdvanceHW advances the simulated hardware counter by n ticks of the
// underlying frequency, as a test driver or the boot loop's idle spin
// would between polls.
func (c *Clock) AdvanceHW(n uint64) {
	c.mu.Lock()
	c.hwTicks += n
	c.mu.Unlock()
}

// NanosSinceBoot converts the simulated hardware counter to nanoseconds
// using the same ns_per_tick arithmetic as initTime.
func (c *Clock) NanosSinceBoot() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(c.hwTicks) * c.nanosPerTick
}

// PollAndAdvance computes the milliseconds elapsed since boot
// (counter-value * 1000 / counter-frequency) and advances the
// millisecond tick counter to it, returning the new value. Satisfies
// sched.TimerSource.
func (c *Clock) PollAndAdvance() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	elapsedMillis := c.hwTicks * 1000 / c.frequencyHz
	wantTick := uint32(elapsedMillis)
	if wantTick > c.tick {
		c.tick = wantTick
	}
	return c.tick
}

// Tick returns the current scheduler tick without advancing it.
func (c *Clock) Tick() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tick
}

var _ sched.TimerSource = (*Clock)(nil)

// Dispatcher wires a Controller's timer and SVC-equivalent paths into a
// scheduler and a syscall table: SVC-from-EL0 is routed to the syscall
// table, and IRQ numbers route to registered handlers.
type Dispatcher struct {
	GIC   *Controller
	Clock *Clock
	Sched *sched.Scheduler

	// SVC is invoked for software-interrupt-equivalent calls; nil
	// disables syscall dispatch (useful before internal/syscall's
	// Table is wired up).
	SVC func(num uint32, a0, a1, a2 uintptr) uintptr
}

// NewDispatcher registers the timer IRQ handler (advance-and-poll) on
// gic and returns a ready-to-use Dispatcher.
func NewDispatcher(gic *Controller, clock *Clock, s *sched.Scheduler) *Dispatcher {
	d := &Dispatcher{GIC: gic, Clock: clock, Sched: s}
	gic.Register(IRQTimer, func() {
		s.AdvanceTick(clock.PollAndAdvance())
	})
	return d
}

// Dispatch services one pending interrupt, exactly as Controller.Dispatch
// does; exposed here so callers go through the Dispatcher rather than
// the bare Controller.
func (d *Dispatcher) Dispatch(number int) {
	if number >= 0 {
		d.GIC.Raise(number)
	}
	d.GIC.Dispatch()
}

// SVCDispatch routes a software-interrupt-equivalent call to the
// installed SVC table.
func (d *Dispatcher) SVCDispatch(num uint32, a0, a1, a2 uintptr) uintptr {
	if d.SVC == nil {
		return 0
	}
	return d.SVC(num, a0, a1, a2)
}

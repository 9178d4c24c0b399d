// Package irqtimer simulates the GICv2 distributor/CPU-interface pair and
// the generic timer that drive the IRQ dispatch path, over plain Go state
// instead of real MMIO. The register offset constants below are kept from
// gic_qemu.go for reference only: the controller holds its state per
// interrupt rather than in banked 32-bit registers, so no code walks them.
package irqtimer

const (
	gicdCTLR       = 0x000
	gicdISENABLERn = 0x100
	gicdICENABLERn = 0x180
	gicdISPENDRn   = 0x200
	gicdICPENDRn   = 0x280
	gicdIPRIORITYn = 0x400

	giccCTLR = 0x000
	giccPMR  = 0x004
	giccIAR  = 0x00C
	giccEOIR = 0x010

	// NumInterrupts mirrors the original 1020-entry handler table size
	// (PPIs 16-31, SPIs 32-1019).
	NumInterrupts = 1020

	// IRQTimer is the ARM generic virtual-timer PPI id (27 in the
	// original table), reused here as the simulated timer-tick source.
	IRQTimer = 27
	// IRQVirtioNotify is an SPI id assigned to the simulated virtio
	// notify line, analogous to IRQ_ID_UART_SPI's placement in the SPI
	// range.
	IRQVirtioNotify = 33

	spuriousIAR = 1023
)

// Handler is invoked once per Dispatch call for a given interrupt number.
type Handler func()

// Controller is a simulated GIC distributor + CPU interface: register
// state lives in plain Go fields rather than an MMIO window, since the
// hosted simulator has no real bus to back a []byte view with dispatch
// side effects, but every operation (mask, unmask, ack, priority mask)
// mutates the same state a real GIC register write would.
type Controller struct {
	enabled  [NumInterrupts]bool
	pending  [NumInterrupts]bool
	priority [NumInterrupts]uint8
	handlers [NumInterrupts]Handler

	priorityMask uint8
	distEnabled  bool
	cpuEnabled   bool

	activeIRQ int // -1 when none is being serviced
}

// NewController returns a controller with every SPI masked by default;
// only interrupts explicitly registered afterward are unmasked, so a
// misconfigured or unexpected source can't flood the dispatcher.
func NewController() *Controller {
	c := &Controller{priorityMask: 0xFF, activeIRQ: -1}
	for i := range c.priority {
		c.priority[i] = 0x80
	}
	return c
}

// Enable turns on the distributor and CPU interface, per gicInitFull's
// GICD_CTLR/GICC_CTLR writes.
func (c *Controller) Enable() {
	c.distEnabled = true
	c.cpuEnabled = true
}

// Register installs h as the handler for irq and unmasks it
// (GICD_ISENABLERn), matching per-device interrupt registration.
func (c *Controller) Register(irq int, h Handler) {
	c.handlers[irq] = h
	c.enabled[irq] = true
}

// Mask clears the enable bit for irq (GICD_ICENABLERn).
func (c *Controller) Mask(irq int) { c.enabled[irq] = false }

// Unmask sets the enable bit for irq (GICD_ISENABLERn).
func (c *Controller) Unmask(irq int) { c.enabled[irq] = true }

// Raise marks irq pending (GICD_ISPENDRn), as a device or the timer
// source would on an edge.
func (c *Controller) Raise(irq int) {
	if c.enabled[irq] {
		c.pending[irq] = true
	}
}

// iar is the highest-priority enabled-and-pending interrupt's id, or the
// spurious id 1023 if none, mirroring GICC_IAR's read side effect of
// marking the interrupt active.
func (c *Controller) iar() int {
	best := -1
	for i := range c.pending {
		if !c.pending[i] || !c.enabled[i] {
			continue
		}
		if c.priority[i] >= c.priorityMask {
			continue
		}
		if best == -1 || c.priority[i] < c.priority[best] {
			best = i
		}
	}
	if best == -1 {
		return spuriousIAR
	}
	c.pending[best] = false
	c.activeIRQ = best
	return best
}

// eoi clears the active interrupt (GICC_EOIR write), completing the
// ack/EOI pairing.
func (c *Controller) eoi() {
	c.activeIRQ = -1
}

// Dispatch reads the IAR-equivalent, invokes the matching handler if
// any, and signals EOI. A spurious read (no pending interrupt) is a
// no-op, not an error.
func (c *Controller) Dispatch() {
	id := c.iar()
	if id == spuriousIAR {
		return
	}
	if h := c.handlers[id]; h != nil {
		h()
	}
	c.eoi()
}

// Command kestrel boots the simulated kernel: page pool, block
// allocator, scheduler, interrupt controller and timer, the virtio
// device substrate, the input aggregator, the framebuffer and window
// manager, and finally spawns the compositor, an input-poll pump, and a
// shell task bound to the console PTY directly from main; there is no
// separate init task.
package main

import (
	"fmt"
	"os"

	"kestrel/internal/blockalloc"
	"kestrel/internal/bootcfg"
	"kestrel/internal/fb"
	"kestrel/internal/inputagg"
	"kestrel/internal/irqtimer"
	"kestrel/internal/klog"
	"kestrel/internal/pagealloc"
	"kestrel/internal/pty"
	"kestrel/internal/sched"
	"kestrel/internal/syscall"
	"kestrel/internal/virtio"
	"kestrel/internal/wm"
)

func main() {
	cfg, err := bootcfg.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "kestrel: ", err)
		os.Exit(2)
	}
	if err := klog.SetLevel(cfg.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "kestrel: ", err)
		os.Exit(2)
	}

	klog.Info("booting", klog.Fields{"pages": cfg.PagePoolPages, "stack_kib": cfg.DefaultStackKiB})

	pages := pagealloc.NewPool(cfg.PagePoolPages, 0)
	blocks := blockalloc.NewAllocator(pages)

	clock := irqtimer.NewClock(0)
	s := sched.NewScheduler(blocks, clock)

	gic := irqtimer.NewController()
	gic.Enable()
	dispatcher := irqtimer.NewDispatcher(gic, clock, s)

	console := pty.New()
	svcTable := syscall.NewTable(s, console, func(str string) {
		fmt.Fprint(os.Stdout, str)
	})
	dispatcher.SVC = svcTable.Dispatch

	gpuWindow := virtio.NewMMIOWindow(virtio.ClassGPU, 2)
	gpuDev, err := virtio.NewDevice(gpuWindow, 16)
	if err != nil {
		klog.Fatal("gpu device probe failed", klog.Fields{"err": err.Error()})
	}
	if err := gpuDev.Init(); err != nil {
		klog.Fatal("gpu device init failed", klog.Fields{"err": err.Error()})
	}
	gpu := virtio.NewGPUDevice(gpuDev, uint32(cfg.DisplayWidth), uint32(cfg.DisplayHeight))

	inputWindow := virtio.NewMMIOWindow(virtio.ClassInput, 2)
	inputDev, err := virtio.NewDevice(inputWindow, 8)
	if err != nil {
		klog.Fatal("input device probe failed", klog.Fields{"err": err.Error()})
	}
	if err := inputDev.Init(); err != nil {
		klog.Fatal("input device init failed", klog.Fields{"err": err.Error()})
	}
	input := virtio.NewInputDevice(inputDev, 32)

	agg := inputagg.NewAggregator(s, cfg.DisplayWidth, cfg.DisplayHeight)

	surface := fb.NewSurface(cfg.DisplayWidth, cfg.DisplayHeight)
	mgr := wm.NewManager(surface, func() { s.WakeEvent(inputagg.EventWM) })
	compositor := wm.NewCompositor(mgr, agg, gpu, cfg.DisplayWidth, cfg.DisplayHeight)

	shellWindow := mgr.Create("shell", wm.Geometry{X: 40, Y: 40, W: 480, H: 320},
		wm.ColourPair{BorderR: 90, BorderG: 90, BorderB: 90, TitlebarR: 30, TitlebarG: 30, TitlebarB: 120},
		nil)
	shellWindow.PTY = console

	s.Spawn("compositor", 0, compositor.Loop)
	s.Spawn("input-pump", 0, func(h *sched.Handle) {
		for {
			for _, ev := range input.Poll() {
				agg.Push(inputagg.FromRaw(ev))
			}
			h.BlockUntil(s.Tick() + 10)
		}
	})
	s.Spawn("shell", 0, func(h *sched.Handle) {
		for {
			line, ok := console.GetLine(h)
			if !ok {
				return
			}
			klog.Debug("shell line", klog.Fields{"line": line})
		}
	})

	klog.Info("boot complete, entering scheduler loop", klog.Fields{})
	for {
		s.Schedule()
	}
}

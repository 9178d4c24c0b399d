// Package bootcfg parses the kernel's boot parameters. Real hardware would
// read these from ATAGs or a device tree blob (see the original
// getMemSize); a hosted simulator takes them as command-line flags instead.
package bootcfg

import (
	"github.com/spf13/pflag"
)

// Config holds every tunable the core subsystems need at boot.
type Config struct {
	PagePoolPages   int
	DefaultStackKiB int
	DisplayWidth    int
	DisplayHeight   int
	SpinBound       int
	LogLevel        string
}

// Default returns the configuration a QEMU virt target boots with:
// a modest page pool, 16 KiB per-task stacks (default), and a
// 1024x768 virtio-gpu scanout.
func Default() Config {
	return Config{
		PagePoolPages:   16384, // 64 MiB / 4 KiB pages
		DefaultStackKiB: 16,
		DisplayWidth:    1024,
		DisplayHeight:   768,
		SpinBound:       1 << 20,
		LogLevel:        "info",
	}
}

// Parse builds a Config from argv, starting from Default and overriding
// with whatever flags are present.
func Parse(args []string) (Config, error) {
	cfg := Default()

	fs := pflag.NewFlagSet("kestrel", pflag.ContinueOnError)
	fs.IntVar(&cfg.PagePoolPages, "pages", cfg.PagePoolPages, "number of 4KiB pages in the page pool")
	fs.IntVar(&cfg.DefaultStackKiB, "stack-kib", cfg.DefaultStackKiB, "default per-task kernel stack size, in KiB")
	fs.IntVar(&cfg.DisplayWidth, "width", cfg.DisplayWidth, "scanout width in pixels")
	fs.IntVar(&cfg.DisplayHeight, "height", cfg.DisplayHeight, "scanout height in pixels")
	fs.IntVar(&cfg.SpinBound, "spin-bound", cfg.SpinBound, "virtio control round-trip busy-wait bound")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

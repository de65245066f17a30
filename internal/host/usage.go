package host

import (
	"fmt"
	"syscall"
)

// System reports disk and memory utilisation of the host.
type System struct {
	Root string // filesystem to report, "/" when empty
}

// SystemUsage returns used disk space on Root and used RAM, in percent.
func (s *System) SystemUsage() (disk, ram int, err error) {
	root := s.Root
	if root == "" {
		root = "/"
	}

	var fs syscall.Statfs_t
	if err := syscall.Statfs(root, &fs); err != nil {
		return 0, 0, fmt.Errorf("statfs %s: %w", root, err)
	}
	disk, err = usedPercent(uint64(fs.Bfree), uint64(fs.Blocks))
	if err != nil {
		return 0, 0, fmt.Errorf("disk usage of %s: %w", root, err)
	}

	var si syscall.Sysinfo_t
	if err := syscall.Sysinfo(&si); err != nil {
		return 0, 0, fmt.Errorf("sysinfo: %w", err)
	}
	ram, err = usedPercent(uint64(si.Freeram), uint64(si.Totalram))
	if err != nil {
		return 0, 0, fmt.Errorf("memory usage: %w", err)
	}
	return disk, ram, nil
}

// usedPercent computes 100 - free*100/total with integer division.
func usedPercent(free, total uint64) (int, error) {
	if total == 0 {
		return 0, fmt.Errorf("total is zero")
	}
	if free > total {
		return 0, fmt.Errorf("free %d exceeds total %d", free, total)
	}
	return int(100 - free*100/total), nil
}

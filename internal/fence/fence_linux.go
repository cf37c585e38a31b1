//go:build linux

package fence

import (
	"runtime"
	"sync"

	"github.com/joeycumines/go-lockfree/xlog"
	"golang.org/x/sys/unix"
)

// membarrier(2) command numbers, from linux/membarrier.h. golang.org/x/sys/unix
// exposes the SYS_MEMBARRIER syscall number but not these command constants,
// so they're named here directly.
const (
	membarrierCmdQuery                   = 0
	membarrierCmdPrivateExpedited         = 1 << 3
	membarrierCmdRegisterPrivateExpedited = 1 << 4
)

var (
	membarrierOnce      sync.Once
	membarrierAvailable bool

	// dummyPage backs the mprotect fallback: toggling its protection forces
	// a TLB shootdown IPI to every core running a thread of this process,
	// which is a de facto memory barrier on all of them.
	dummyPage     []byte
	dummyPageOnce sync.Once
	mprotectMu    sync.Mutex
)

func probeMembarrier() bool {
	_, _, errno := unix.Syscall(unix.SYS_MEMBARRIER, membarrierCmdQuery, 0, 0)
	if errno != 0 {
		return false
	}
	_, _, errno = unix.Syscall(unix.SYS_MEMBARRIER, membarrierCmdRegisterPrivateExpedited, 0, 0)
	return errno == 0
}

func membarrierHeavy() bool {
	_, _, errno := unix.Syscall(unix.SYS_MEMBARRIER, membarrierCmdPrivateExpedited, 0, 0)
	return errno == 0
}

func ensureDummyPage() {
	dummyPageOnce.Do(func() {
		pageSize := unix.Getpagesize()
		b, err := unix.Mmap(-1, 0, pageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
		if err != nil {
			// Allocation failure here is fatal per spec.md §7/§9: the heavy
			// fence has no recoverable path.
			xlog.Current().Log(xlog.LevelError, "fence: mmap dummy page for mprotect fallback failed",
				xlog.F("error", err))
			panic("fence: mmap dummy page for mprotect fallback: " + err.Error())
		}
		dummyPage = b
	})
}

// mprotectHeavy downgrades then restores the dummy page's protection,
// which the kernel implements via an IPI-driven TLB shootdown to every
// core running a thread of this process — the fallback heavy fence when
// membarrier is unavailable (e.g. inside some containers/seccomp
// profiles).
func mprotectHeavy() {
	ensureDummyPage()
	mprotectMu.Lock()
	defer mprotectMu.Unlock()
	// Write to the page so it is resident: a page with no mapping in any
	// TLB gives the downgrade nothing to shoot down.
	dummyPage[0] = 1
	for _, prot := range []int{unix.PROT_READ, unix.PROT_READ | unix.PROT_WRITE} {
		if err := unix.Mprotect(dummyPage, prot); err != nil {
			xlog.Current().Log(xlog.LevelError, "fence: mprotect heavy-fence fallback failed",
				xlog.F("error", err))
			panic("fence: mprotect heavy-fence fallback failed: " + err.Error())
		}
	}
	runtime.KeepAlive(dummyPage)
}

func heavyImpl() {
	membarrierOnce.Do(func() {
		membarrierAvailable = probeMembarrier()
	})
	if membarrierAvailable && membarrierHeavy() {
		return
	}
	mprotectHeavy()
}

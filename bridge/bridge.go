// This file is part of cyd-emulator.
//
// cyd-emulator is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// cyd-emulator is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with cyd-emulator.  If not, see <https://www.gnu.org/licenses/>.

// Package bridge runs an interpreted CPU core and coordinates it with the
// rtos package. The run loop executes the core in bounded instruction
// batches; between batches it handles debug pause requests and
// breakpoints, nudges a halted core so pending interrupts can resume it,
// and watches for the firmware's bootstrap idle point so it can hand
// control to the guest scheduler.
//
// Scheduler bootstrap rests on a deliberate contract with the core: a
// program counter that has not advanced across a whole batch is read as
// the bootstrap code spinning at its idle point. This is a heuristic, kept
// behind the selfLoop predicate so it can be swapped for an explicit idle
// hook if the core ever grows one. It is not a general liveness check.
//
// Debug operations (Break, Continue, IsPaused, WaitPaused) are safe to
// call from any goroutine. Everything else that touches the core directly
// requires the loop to be paused first.
package bridge

import (
	"sync"
	"time"

	"github.com/levkropp/cyd-emulator/curated"
	"github.com/levkropp/cyd-emulator/logger"
	"github.com/levkropp/cyd-emulator/rtos"
)

// batchSize is the instruction limit for one Core.Run call. Small enough
// that pause requests are honoured promptly, large enough that the loop
// overhead disappears.
const batchSize = 10000

// haltNap is how long the loop sleeps before prodding a halted core.
const haltNap = time.Millisecond

// taskReturnTrap is written to the guest's return-address register before
// a deferred task is dispatched. It points into the guest ROM region, so a
// task function that returns (which the guest API forbids) lands somewhere
// unmistakable in a debugger rather than running off into data.
const taskReturnTrap = 0x40000000

// Xtensa call0 ABI register numbers.
const (
	regReturnAddr = 0 // a0
	regStack      = 1 // a1
	regFirstArg   = 2 // a2
)

// Bridge drives a Core from its own goroutine (the one that calls Run) and
// mediates between that goroutine and debug controllers.
type Bridge struct {
	core    Core
	appCore Core
	sys     System
	mem     Memory
	rt      *rtos.RTOS

	shutdown     chan struct{}
	shutdownOnce sync.Once

	// debug state shared with controller goroutines. pausedCh is closed
	// when the loop parks in the Paused state and replaced on continue;
	// resumeCh the other way around
	crit     sync.Mutex
	state    State
	active   bool
	pausedCh chan struct{}
	resumeCh chan struct{}

	// second core bring-up
	appLive bool
}

// Option configures optional Bridge collaborators.
type Option func(*Bridge)

// WithRTOS connects the emulated RTOS. Without it the loop never attempts
// scheduler bootstrap, whatever the program counter does.
func WithRTOS(rt *rtos.RTOS) Option {
	return func(b *Bridge) { b.rt = rt }
}

// WithSystem connects the peripheral-state queries used for second-core
// bring-up.
func WithSystem(sys System) Option {
	return func(b *Bridge) { b.sys = sys }
}

// WithAppCore connects a second CPU core. It stays stalled until the
// System reports firmware has released it.
func WithAppCore(core Core) Option {
	return func(b *Bridge) { b.appCore = core }
}

// WithMemory connects raw guest memory for debug peeking.
func WithMemory(mem Memory) Option {
	return func(b *Bridge) { b.mem = mem }
}

// New prepares a Bridge around the given core. Run must be called to start
// execution.
func New(core Core, opts ...Option) *Bridge {
	b := &Bridge{
		core:     core,
		shutdown: make(chan struct{}),
		state:    Running,
		pausedCh: make(chan struct{}),
		resumeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// curated error patterns for the bridge package.
const (
	AlreadyRunning = "bridge: run loop already active"
	NotPaused      = "bridge: operation requires the cpu to be paused"
	NoMemoryAccess = "bridge: no guest memory attached"
)

// Run is the execution loop. It blocks until Shutdown is called or the
// core terminates unexpectedly (a stop with no breakpoint, halt or pause
// to explain it). Core errors are returned as is; a clean termination
// returns nil either way.
func (b *Bridge) Run() error {
	b.crit.Lock()
	if b.active {
		b.crit.Unlock()
		return curated.Errorf(AlreadyRunning)
	}
	b.active = true
	// a Break issued before the loop starts must still park it on the
	// first iteration, so an already pending pause request is preserved
	if b.state != PauseRequested {
		b.state = Running
	}
	b.crit.Unlock()

	defer func() {
		b.crit.Lock()
		b.active = false
		b.state = Stopped
		b.crit.Unlock()
	}()

	for {
		select {
		case <-b.shutdown:
			return nil
		default:
		}

		// breakpoint state must be read before the pause check so a
		// simultaneous pause request does not hide the one-step-past
		// behaviour that a breakpoint pause needs on continue
		bp := b.core.BreakpointHit()

		b.crit.Lock()
		pauseReq := b.state == PauseRequested
		b.crit.Unlock()

		if pauseReq || bp {
			if err := b.park(bp); err != nil {
				return err
			}
			continue
		}

		if b.core.Halted() {
			// a halted core only resumes through an interrupt. nap and
			// attempt a single step so a pending interrupt can take
			time.Sleep(haltNap)
			if err := b.core.Step(false); err != nil {
				return err
			}
			continue
		}

		if !b.core.Running() {
			logger.Logf("bridge", "cpu stopped at %08x", b.core.PC())
			return nil
		}

		pcBefore := b.core.PC()
		ran, err := b.core.Run(batchSize)
		if err != nil {
			return err
		}

		if ran == 0 && !b.core.Halted() && !b.core.BreakpointHit() && !b.pauseRequested() {
			logger.Logf("bridge", "cpu made no progress at %08x", b.core.PC())
			return nil
		}

		if b.selfLoop(pcBefore, ran) {
			b.bootstrap()
		}

		b.runAppCore()
	}
}

// selfLoop is the scheduler bootstrap signal: the program counter
// unchanged across a full batch while an RTOS layer is attached. The
// firmware's startup code spins in place once it has created its tasks
// and called the scheduler, which on real hardware never returns.
func (b *Bridge) selfLoop(pcBefore uint32, ran int) bool {
	return b.rt != nil && ran >= batchSize && b.core.PC() == pcBefore
}

// bootstrap performs one scheduler-bootstrap action per self-loop event:
// first start the guest scheduler, then dispatch deferred tasks one at a
// time on subsequent events.
func (b *Bridge) bootstrap() {
	if !b.rt.SchedulerStarted() {
		b.rt.StartScheduler()
		return
	}

	d, ok := b.rt.NextDeferred()
	if !ok {
		return
	}

	// redirect the core into the task function the way the real
	// scheduler's context switch would: argument in a2, a trap address in
	// a0 and the program counter at the entry point
	b.core.SetRegister(regFirstArg, d.Arg)
	b.core.SetRegister(regReturnAddr, taskReturnTrap)
	b.core.SetPC(d.Entry)

	logger.Logf("bridge", "dispatched guest task: entry=%08x arg=%08x", d.Entry, d.Arg)
}

// runAppCore brings up and steps the second core, keeping both cycle
// counters synchronized to the larger of the two so emulated delay
// calculations agree across cores.
func (b *Bridge) runAppCore() {
	if b.appCore == nil || b.sys == nil {
		return
	}

	if !b.appLive {
		if !b.sys.AppCoreReleased() {
			return
		}
		boot := b.sys.AppCoreBootAddr()
		b.appCore.Reset()
		b.appCore.SetPC(boot)
		b.appCore.SetRunning(true)
		b.appLive = true
		logger.Logf("bridge", "app core released: boot=%08x", boot)
	}

	if b.appCore.Running() && !b.appCore.Halted() {
		if _, err := b.appCore.Run(batchSize); err != nil {
			logger.Logf("bridge", "app core error: %v", err)
			b.appCore.SetRunning(false)
		}
	}

	if pro, app := b.core.Cycles(), b.appCore.Cycles(); pro > app {
		b.appCore.SetCycles(pro)
	} else if app > pro {
		b.core.SetCycles(app)
	}
}

// park publishes the Paused state and blocks until a controller calls
// Continue or the bridge is shut down. When the pause was caused by a
// breakpoint, one instruction is executed with breakpoint checks
// suppressed on the way out so the core can move past the trapped address.
func (b *Bridge) park(fromBreakpoint bool) error {
	b.crit.Lock()
	b.state = Paused
	b.resumeCh = make(chan struct{})
	resume := b.resumeCh
	close(b.pausedCh)
	b.crit.Unlock()

	if fromBreakpoint {
		logger.Logf("bridge", "breakpoint at %08x", b.core.PC())
	} else {
		logger.Logf("bridge", "paused at %08x", b.core.PC())
	}

	select {
	case <-resume:
	case <-b.shutdown:
		return nil
	}

	if fromBreakpoint {
		return b.core.Step(true)
	}
	return nil
}

func (b *Bridge) pauseRequested() bool {
	b.crit.Lock()
	defer b.crit.Unlock()
	return b.state == PauseRequested
}

// Shutdown ends the run loop. It unblocks a paused loop and is observed
// within one batch otherwise. Safe to call more than once and from any
// goroutine.
func (b *Bridge) Shutdown() {
	b.shutdownOnce.Do(func() {
		close(b.shutdown)
	})
}

// IsActive reports whether the run loop is currently executing.
func (b *Bridge) IsActive() bool {
	b.crit.Lock()
	defer b.crit.Unlock()
	return b.active
}

// State returns the run loop's current state.
func (b *Bridge) State() State {
	b.crit.Lock()
	defer b.crit.Unlock()
	return b.state
}

// CPU returns the core being driven. Callers must not touch it while the
// loop is running unpaused.
func (b *Bridge) CPU() Core {
	return b.core
}

// Peek8 reads a byte of guest memory.
func (b *Bridge) Peek8(addr uint32) (uint8, error) {
	if b.mem == nil {
		return 0, curated.Errorf(NoMemoryAccess)
	}
	return b.mem.Peek8(addr)
}

// Peek16 reads a 16bit word of guest memory.
func (b *Bridge) Peek16(addr uint32) (uint16, error) {
	if b.mem == nil {
		return 0, curated.Errorf(NoMemoryAccess)
	}
	return b.mem.Peek16(addr)
}

// Peek32 reads a 32bit word of guest memory.
func (b *Bridge) Peek32(addr uint32) (uint32, error) {
	if b.mem == nil {
		return 0, curated.Errorf(NoMemoryAccess)
	}
	return b.mem.Peek32(addr)
}

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

// Package demo is the built-in native firmware: a self-test suite that
// exercises tasks, semaphores, queues, event groups, timers and
// critical sections, drawing a PASS/FAIL row on the display for each
// check. It doubles as a smoke test of the whole emulator when no
// firmware image is given.
package demo

import (
	"fmt"

	"github.com/levkropp/cyd-emulator/display"
	"github.com/levkropp/cyd-emulator/logger"
	"github.com/levkropp/cyd-emulator/nvs"
	"github.com/levkropp/cyd-emulator/rtos"
)

const (
	colPass = display.Green
	colFail = display.Red
	colRun  = display.Yellow
	colHead = display.Cyan
	colFg   = display.White
	colBg   = display.Black
)

// Suite runs the self-test firmware in a task of its own.
type Suite struct {
	rt    *rtos.RTOS
	disp  *display.Display
	store *nvs.Store

	row  int
	pass int
	fail int

	done chan struct{}
}

// Option configures optional Suite collaborators.
type Option func(*Suite)

// WithStore attaches persistent storage, enabling the NVS checks.
func WithStore(store *nvs.Store) Option {
	return func(s *Suite) { s.store = store }
}

// NewSuite prepares the self-test firmware. Call Start to run it.
func NewSuite(rt *rtos.RTOS, disp *display.Display, opts ...Option) *Suite {
	s := &Suite{
		rt:   rt,
		disp: disp,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates the firmware's main task. The returned channel from
// Done closes when the suite has finished.
func (s *Suite) Start() (rtos.Task, error) {
	return s.rt.CreateTask(func(any) { s.run() }, "app_main", nil, 1)
}

// Done closes once all tests have run and the summary is on screen.
func (s *Suite) Done() <-chan struct{} {
	return s.done
}

// Passed reports the number of passing tests. Valid after Done closes.
func (s *Suite) Passed() int { return s.pass }

// Failed reports the number of failing tests. Valid after Done closes.
func (s *Suite) Failed() int { return s.fail }

func (s *Suite) header(title string) {
	y := s.row * display.FontHeight
	w, h := s.disp.Size()
	if y+display.FontHeight > h {
		return
	}
	s.disp.FillRect(0, y, w, display.FontHeight, colBg)
	s.disp.DrawString(0, y, title, colHead, colBg)
	s.row++
}

// line formats a test row: name at column 1, dots to the result column.
func line(name string, result string) string {
	b := make([]byte, 40)
	for i := range b {
		b[i] = ' '
	}
	n := len(name)
	if n > 30 {
		n = 30
	}
	copy(b[1:], name[:n])
	if result != "" {
		for i := 1 + n; i < 33; i++ {
			b[i] = '.'
		}
		copy(b[33:], result)
	}
	return string(b)
}

func (s *Suite) status(name string) {
	y := s.row * display.FontHeight
	w, h := s.disp.Size()
	if y+display.FontHeight > h {
		return
	}
	s.disp.FillRect(0, y, w, display.FontHeight, colBg)
	s.disp.DrawString(0, y, line(name, "")+"...", colRun, colBg)
}

func (s *Suite) result(name string, passed bool) {
	y := s.row * display.FontHeight
	w, h := s.disp.Size()
	if y+display.FontHeight > h {
		return
	}
	s.disp.FillRect(0, y, w, display.FontHeight, colBg)

	if passed {
		s.disp.DrawString(0, y, line(name, "PASS"), colPass, colBg)
		s.pass++
	} else {
		s.disp.DrawString(0, y, line(name, "FAIL"), colFail, colBg)
		s.fail++
	}
	s.row++

	verdict := "PASS"
	if !passed {
		verdict = "FAIL"
	}
	logger.Logf("test", "%s: %s", name, verdict)
}

func (s *Suite) check(name string, fn func() bool) {
	s.status(name)
	s.result(name, fn())
}

func (s *Suite) run() {
	defer close(s.done)

	s.disp.Clear(colBg)
	logger.Log("test", "self-test suite starting")

	s.header(" Self-Test Suite")
	s.row++

	s.header(" Tasks")
	s.check("Task create + mutex", s.testTasks)
	s.check("Tick count", s.testTickCount)
	s.check("Critical sections", s.testCriticalSection)

	s.header(" Semaphores")
	s.check("Mutex take/give", s.testMutex)
	s.check("Recursive mutex", s.testRecursiveMutex)
	s.check("Binary semaphore", s.testBinarySemaphore)
	s.check("Counting semaphore", s.testCountingSemaphore)

	s.header(" Queues")
	s.check("Send/receive FIFO", s.testQueue)
	s.check("Peek", s.testQueuePeek)
	s.check("Send-to-front", s.testQueueFront)
	s.check("Cross-task queue", s.testQueueCrossTask)
	s.check("Overwrite", s.testQueueOverwrite)
	s.check("Reset", s.testQueueReset)

	s.header(" Event Groups")
	s.check("Wait-all + clear", s.testEventGroup)
	s.check("Wait-any", s.testEventGroupAny)

	s.header(" Timers")
	s.check("One-shot timer", s.testTimerOneShot)
	s.check("Periodic timer", s.testTimerPeriodic)
	s.check("Timer ID", s.testTimerID)

	if s.store != nil {
		s.header(" Storage")
		s.check("NVS boot counter", s.testBootCounter)
	}

	s.row++
	s.header(" Summary")

	y := s.row * display.FontHeight
	summary := fmt.Sprintf("  %d passed, %d failed", s.pass, s.fail)
	col := colPass
	if s.fail > 0 {
		col = colFail
	}
	s.disp.DrawString(0, y, summary, col, colBg)
	s.row++

	if s.fail == 0 {
		y = s.row * display.FontHeight
		s.disp.DrawString(0, y, "  All tests passed!", colPass, colBg)
	}

	logger.Logf("test", "done: %d passed, %d failed", s.pass, s.fail)
}

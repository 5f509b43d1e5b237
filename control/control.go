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

// Package control is the emulator's external automation channel: a unix
// domain socket with a connection-per-command line protocol. A client
// connects, writes one text line, reads the response and the connection
// closes. Responses end with an "OK ..." or "ERR ..." line.
//
// Input commands (tap, touch_down, touch_up) drive the touch panel.
// Debug commands (pause, continue, step, paused, regs, peek, break,
// clearbreak) are layered on the bridge's debug surface and fail when no
// bridge is attached. Introspection commands (status, log, screenshot,
// memviz) work in any mode.
package control

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bradleyjkemp/memviz"
	"golang.org/x/image/bmp"

	"github.com/levkropp/cyd-emulator/board"
	"github.com/levkropp/cyd-emulator/bridge"
	"github.com/levkropp/cyd-emulator/curated"
	"github.com/levkropp/cyd-emulator/display"
	"github.com/levkropp/cyd-emulator/logger"
	"github.com/levkropp/cyd-emulator/symbols"
)

// SocketError is the pattern for failures while setting up the control
// socket.
const SocketError = "control: %v"

// how long a paused-state transition is waited for on behalf of a client.
const pauseTimeout = 2 * time.Second

// Server is the control channel. Create with NewServer and stop with
// Close.
type Server struct {
	path string
	ln   net.Listener

	disp  *display.Display
	touch *display.Touch
	brd   board.Profile
	dbg   *bridge.Bridge
	sym   *symbols.Table

	// quit requests a clean emulator shutdown, typically by pushing a
	// quit event at the gui loop
	quit func()

	closeOnce sync.Once
	done      chan struct{}
}

// Option configures optional Server collaborators.
type Option func(*Server)

// WithDisplay attaches the framebuffer, enabling screenshot.
func WithDisplay(d *display.Display) Option {
	return func(s *Server) { s.disp = d }
}

// WithTouch attaches the touch panel, enabling tap and touch commands.
func WithTouch(t *display.Touch) Option {
	return func(s *Server) { s.touch = t }
}

// WithBoard sets the board profile reported by status.
func WithBoard(p board.Profile) Option {
	return func(s *Server) { s.brd = p }
}

// WithBridge attaches the execution bridge, enabling the debug commands.
func WithBridge(b *bridge.Bridge) Option {
	return func(s *Server) { s.dbg = b }
}

// WithSymbols attaches a symbol table. Addresses in debug command
// responses are annotated with the nearest symbol.
func WithSymbols(sym *symbols.Table) Option {
	return func(s *Server) { s.sym = sym }
}

// WithQuit sets the callback run by the quit command.
func WithQuit(quit func()) Option {
	return func(s *Server) { s.quit = quit }
}

// NewServer binds the control socket and starts serving. A stale socket
// file from a previous run is removed first.
func NewServer(path string, opts ...Option) (*Server, error) {
	s := &Server{
		path: path,
		brd:  board.Default(),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	// remove stale socket
	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, curated.Errorf(SocketError, err)
	}
	s.ln = ln

	go s.serve()

	logger.Logf("control", "listening on %s", path)
	return s, nil
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.ln.Close()
		_ = os.Remove(s.path)
	})
}

func (s *Server) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			logger.Logf("control", "accept: %v", err)
			return
		}
		go s.handle(conn)
	}
}

// handle serves one connection: one command line, one response.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		return
	}
	line = strings.TrimSpace(line)

	cmd, args, _ := strings.Cut(line, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "tap":
		s.cmdTap(conn, args)
	case "touch_down":
		s.cmdTouchDown(conn, args)
	case "touch_up":
		s.cmdTouchUp(conn)
	case "status":
		s.cmdStatus(conn)
	case "log":
		s.cmdLog(conn)
	case "screenshot":
		s.cmdScreenshot(conn, args)
	case "memviz":
		s.cmdMemviz(conn, args)
	case "quit":
		s.cmdQuit(conn)
	case "pause":
		s.cmdPause(conn)
	case "continue", "c":
		s.cmdContinue(conn)
	case "step":
		s.cmdStep(conn, args)
	case "paused":
		s.cmdPaused(conn)
	case "regs":
		s.cmdRegs(conn)
	case "peek":
		s.cmdPeek(conn, args)
	case "break":
		s.cmdBreak(conn, args)
	case "clearbreak":
		s.cmdClearBreak(conn, args)
	default:
		fmt.Fprintf(conn, "ERR unknown command\n")
	}
}

// parseAddr accepts decimal, 0x hex and 0 octal address forms.
func parseAddr(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	return uint32(v), err
}

func (s *Server) cmdTap(conn net.Conn, args string) {
	var x, y int
	if _, err := fmt.Sscanf(args, "%d %d", &x, &y); err != nil || s.touch == nil {
		fmt.Fprintf(conn, "ERR usage: tap <x> <y>\n")
		return
	}
	s.touch.Update(true, x, y)
	time.Sleep(50 * time.Millisecond)
	s.touch.Update(false, x, y)
	fmt.Fprintf(conn, "OK\n")
}

func (s *Server) cmdTouchDown(conn net.Conn, args string) {
	var x, y int
	if _, err := fmt.Sscanf(args, "%d %d", &x, &y); err != nil || s.touch == nil {
		fmt.Fprintf(conn, "ERR usage: touch_down <x> <y>\n")
		return
	}
	s.touch.Update(true, x, y)
	fmt.Fprintf(conn, "OK\n")
}

func (s *Server) cmdTouchUp(conn net.Conn) {
	if s.touch == nil {
		fmt.Fprintf(conn, "ERR no touch panel\n")
		return
	}
	s.touch.Update(false, 0, 0)
	fmt.Fprintf(conn, "OK\n")
}

func (s *Server) cmdStatus(conn net.Conn) {
	mode := "native"
	running := true
	if s.dbg != nil {
		mode = "bridge"
		running = s.dbg.IsActive()
	}
	w, h := 0, 0
	if s.disp != nil {
		w, h = s.disp.Size()
	}
	fmt.Fprintf(conn, "OK board=%s display=%dx%d running=%t mode=%s\n",
		s.brd.Model, w, h, running, mode)
}

func (s *Server) cmdLog(conn net.Conn) {
	logger.Tail(conn, 64)
	fmt.Fprintf(conn, "OK\n")
}

func (s *Server) cmdScreenshot(conn net.Conn, path string) {
	if path == "" || s.disp == nil {
		fmt.Fprintf(conn, "ERR usage: screenshot <path>\n")
		return
	}

	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(conn, "ERR failed to write %s: %v\n", path, err)
		return
	}
	defer f.Close()

	if err := bmp.Encode(f, s.disp.Image()); err != nil {
		fmt.Fprintf(conn, "ERR failed to encode %s: %v\n", path, err)
		return
	}
	fmt.Fprintf(conn, "OK %s\n", path)
}

// cmdMemviz writes a graphviz dot rendering of the emulator's object
// graph, for debugging the emulator itself.
func (s *Server) cmdMemviz(conn net.Conn, path string) {
	if path == "" {
		fmt.Fprintf(conn, "ERR usage: memviz <path>\n")
		return
	}

	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(conn, "ERR failed to write %s: %v\n", path, err)
		return
	}
	defer f.Close()

	// every attached collaborator becomes a root so the dump covers the
	// whole emulator, not just the board profile
	roots := []interface{}{&s.brd}
	if s.disp != nil {
		roots = append(roots, s.disp)
	}
	if s.touch != nil {
		roots = append(roots, s.touch)
	}
	if s.dbg != nil {
		roots = append(roots, s.dbg)
	}
	if s.sym != nil {
		roots = append(roots, s.sym)
	}
	memviz.Map(f, roots...)
	fmt.Fprintf(conn, "OK %s\n", path)
}

func (s *Server) cmdQuit(conn net.Conn) {
	fmt.Fprintf(conn, "OK\n")
	if s.quit != nil {
		s.quit()
	}
}

// requireBridge is the guard shared by the debug commands.
func (s *Server) requireBridge(conn net.Conn) bool {
	if s.dbg == nil {
		fmt.Fprintf(conn, "ERR debug not active\n")
		return false
	}
	return true
}

// annotate appends the nearest symbol to an address, when a symbol
// table has been attached.
func (s *Server) annotate(addr uint32) string {
	if s.sym == nil || s.sym.Count() == 0 {
		return fmt.Sprintf("0x%08X", addr)
	}
	return fmt.Sprintf("0x%08X <%s>", addr, s.sym.FormatAddress(addr))
}

func (s *Server) cmdPause(conn net.Conn) {
	if !s.requireBridge(conn) {
		return
	}
	if s.dbg.IsPaused() {
		pc, _ := s.dbg.PC()
		fmt.Fprintf(conn, "OK already paused at %s\n", s.annotate(pc))
		return
	}
	s.dbg.Break()
	if !s.dbg.WaitPaused(pauseTimeout) {
		fmt.Fprintf(conn, "ERR timeout waiting for pause\n")
		return
	}
	pc, _ := s.dbg.PC()
	fmt.Fprintf(conn, "OK paused at %s\n", s.annotate(pc))
}

func (s *Server) cmdContinue(conn net.Conn) {
	if !s.requireBridge(conn) {
		return
	}
	if !s.dbg.IsPaused() {
		fmt.Fprintf(conn, "OK not paused\n")
		return
	}
	s.dbg.Continue()
	fmt.Fprintf(conn, "OK\n")
}

func (s *Server) cmdStep(conn net.Conn, args string) {
	if !s.requireBridge(conn) {
		return
	}

	// stepping requires the paused state. pause on the client's behalf
	if !s.dbg.IsPaused() {
		s.dbg.Break()
		if !s.dbg.WaitPaused(pauseTimeout) {
			fmt.Fprintf(conn, "ERR timeout waiting for pause\n")
			return
		}
	}

	count := 1
	if args != "" {
		fmt.Sscanf(args, "%d", &count)
	}
	if count < 1 {
		count = 1
	}
	if count > 100000 {
		count = 100000
	}

	for i := 0; i < count; i++ {
		pc, _ := s.dbg.PC()
		if err := s.dbg.StepInstruction(); err != nil {
			fmt.Fprintf(conn, "ERR step: %v\n", err)
			return
		}
		fmt.Fprintf(conn, "STEP 0x%08X\n", pc)
	}

	pc, _ := s.dbg.PC()
	fmt.Fprintf(conn, "OK pc=0x%08X\n", pc)
}

func (s *Server) cmdPaused(conn net.Conn) {
	if !s.requireBridge(conn) {
		return
	}
	fmt.Fprintf(conn, "OK paused=%t\n", s.dbg.IsPaused())
}

func (s *Server) cmdRegs(conn net.Conn) {
	if !s.requireBridge(conn) {
		return
	}

	pc, err := s.dbg.PC()
	if err != nil {
		fmt.Fprintf(conn, "ERR not paused\n")
		return
	}
	fmt.Fprintf(conn, "REG PC=%s\n", s.annotate(pc))

	for r := 0; r < 16; r += 4 {
		v0, _ := s.dbg.Register(r)
		v1, _ := s.dbg.Register(r + 1)
		v2, _ := s.dbg.Register(r + 2)
		v3, _ := s.dbg.Register(r + 3)
		fmt.Fprintf(conn, "REG a%d=%08X a%d=%08X a%d=%08X a%d=%08X\n",
			r, v0, r+1, v1, r+2, v2, r+3, v3)
	}
	fmt.Fprintf(conn, "OK\n")
}

func (s *Server) cmdPeek(conn net.Conn, args string) {
	if !s.requireBridge(conn) {
		return
	}

	addr, err := parseAddr(args)
	if err != nil {
		fmt.Fprintf(conn, "ERR usage: peek <addr>\n")
		return
	}

	val, err := s.dbg.Peek32(addr)
	if err != nil {
		fmt.Fprintf(conn, "ERR peek: %v\n", err)
		return
	}
	fmt.Fprintf(conn, "OK 0x%08X = 0x%08X (%d)\n", addr, val, val)
}

func (s *Server) cmdBreak(conn net.Conn, args string) {
	if !s.requireBridge(conn) {
		return
	}

	addr, err := parseAddr(args)
	if err != nil {
		fmt.Fprintf(conn, "ERR usage: break <addr>\n")
		return
	}

	if err := s.dbg.SetBreakpoint(addr); err != nil {
		fmt.Fprintf(conn, "ERR %v\n", err)
		return
	}
	fmt.Fprintf(conn, "OK breakpoint set at 0x%08X\n", addr)
}

func (s *Server) cmdClearBreak(conn net.Conn, args string) {
	if !s.requireBridge(conn) {
		return
	}

	addr, err := parseAddr(args)
	if err != nil {
		fmt.Fprintf(conn, "ERR usage: clearbreak <addr>\n")
		return
	}

	if err := s.dbg.ClearBreakpoint(addr); err != nil {
		fmt.Fprintf(conn, "ERR %v\n", err)
		return
	}
	fmt.Fprintf(conn, "OK cleared breakpoint at 0x%08X\n", addr)
}

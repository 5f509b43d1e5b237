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

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/levkropp/cyd-emulator/board"
	"github.com/levkropp/cyd-emulator/console"
	"github.com/levkropp/cyd-emulator/control"
	"github.com/levkropp/cyd-emulator/curated"
	"github.com/levkropp/cyd-emulator/demo"
	"github.com/levkropp/cyd-emulator/display"
	"github.com/levkropp/cyd-emulator/gui"
	"github.com/levkropp/cyd-emulator/logger"
	"github.com/levkropp/cyd-emulator/nvs"
	"github.com/levkropp/cyd-emulator/rtos"
	"github.com/levkropp/cyd-emulator/script"
	"github.com/levkropp/cyd-emulator/statsview"
	"github.com/levkropp/cyd-emulator/symbols"
	"github.com/levkropp/cyd-emulator/version"
)

// the gui service cadence. the display refreshes at roughly 60fps.
const frameInterval = 16 * time.Millisecond

// SDL requires that window handling happens on the main thread, so main
// runs the gui service loop and everything else runs in goroutines.
//
// #mainthread
func main() {
	os.Exit(run())
}

func run() int {
	boardModel := flag.String("board", board.DefaultModel, "CYD board model to emulate")
	listBoards := flag.Bool("list", false, "list supported board models and exit")
	scale := flag.Int("scale", 2, "window scale factor")
	controlPath := flag.String("control", "", "unix socket path for the control interface")
	nvsDir := flag.String("nvs", "nvs", "directory for persistent NVS storage")
	elfFile := flag.String("elf", "", "ELF file to read a symbol table from")
	scriptFile := flag.String("script", "", "Lua script to run against the emulator")
	headless := flag.Bool("headless", false, "run without a window")
	echoLog := flag.Bool("log", false, "echo the emulator log to stderr")
	stats := flag.Bool("stats", false, "run the statistics server")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		vers, revision, _ := version.Version()
		fmt.Printf("%s %s (%s)\n", version.ApplicationName, vers, revision)
		return 0
	}

	if *listBoards {
		board.List(os.Stdout)
		return 0
	}

	if *echoLog {
		logger.SetEcho(os.Stderr)
	}

	if *stats {
		if statsview.Available() {
			statsview.Launch(os.Stdout)
		} else {
			fmt.Fprintln(os.Stderr, "statsview not compiled into this build")
		}
	}

	profile, ok := board.Find(*boardModel)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown board model %q\n", *boardModel)
		board.List(os.Stderr)
		return 1
	}
	logger.Logf("main", "emulating %s (%s, %d cores)",
		profile.Model, profile.ChipName, profile.Cores)

	// quit is closed exactly once, from whichever surface asks first:
	// the window, the console, the control socket or a signal
	quitCh := make(chan struct{})
	var quitOnce sync.Once
	quit := func() {
		quitOnce.Do(func() { close(quitCh) })
	}

	intChan := make(chan os.Signal, 1)
	signal.Notify(intChan, os.Interrupt)
	go func() {
		select {
		case <-intChan:
			quit()
		case <-quitCh:
		}
	}()

	rt := rtos.New()
	defer rt.Shutdown()

	disp := display.NewDisplay(profile.DisplayWidth, profile.DisplayHeight)
	touch := display.NewTouch()

	store, err := nvs.NewStore(*nvsDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	var sym *symbols.Table
	if *elfFile != "" {
		sym, err = symbols.ReadELF(*elfFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		logger.Logf("main", "%d symbols from %s", sym.Count(), *elfFile)
	}

	if *controlPath != "" {
		ctl, err := control.NewServer(*controlPath,
			control.WithDisplay(disp),
			control.WithTouch(touch),
			control.WithBoard(profile),
			control.WithSymbols(sym),
			control.WithQuit(quit),
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		defer ctl.Close()
		logger.Logf("main", "control socket at %s", *controlPath)
	}

	cons, err := console.New(nil, quit)
	if err == nil {
		defer cons.Close()
	} else if !curated.Is(err, console.NotATerminal) {
		logger.Logf("main", "console: %v", err)
	}

	suite := demo.NewSuite(rt, disp, demo.WithStore(store))
	if _, err := suite.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	if *scriptFile != "" {
		go func() {
			eng := script.NewEngine(script.WithTouch(touch))
			defer eng.Close()
			if err := eng.RunFile(*scriptFile); err != nil {
				logger.Logf("main", "%v", err)
			}
		}()
	}

	if *headless {
		<-quitCh
		return 0
	}

	win, err := gui.NewWindow(disp, touch, *scale, quit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer win.Destroy()

	tick := time.NewTicker(frameInterval)
	defer tick.Stop()

	for {
		select {
		case <-quitCh:
			return 0
		case <-tick.C:
			if err := win.Service(); err != nil {
				logger.Logf("main", "%v", err)
				return 1
			}
		}
	}
}

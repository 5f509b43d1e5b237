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

// Package gui presents the emulated LCD in an SDL window and feeds
// mouse input back to the touch panel. SDL requires that all calls
// happen on the main OS thread, so NewWindow, Service and Destroy MUST
// ONLY be called from the main goroutine.
package gui

import (
	"github.com/veandco/go-sdl2/sdl"

	"github.com/levkropp/cyd-emulator/curated"
	"github.com/levkropp/cyd-emulator/display"
)

// SDLError is the pattern for errors originating in the SDL layer.
const SDLError = "sdl: %v"

// two bytes per RGB565 pixel
const pixelDepth = 2

// Window is the SDL presentation of the emulated display.
type Window struct {
	disp  *display.Display
	touch *display.Touch

	window   *sdl.Window
	renderer *sdl.Renderer
	texture  *sdl.Texture

	width  int32
	height int32
	scale  int32

	// pixels is the byte array that we copy to the texture before
	// applying to the renderer. it is width * height * pixelDepth.
	pixels []byte
	frame  []uint16

	// mouse button state from the previous Service, for edge detection
	mouseDown bool

	// quit is called on window close or the escape key
	quit func()
}

// NewWindow creates the SDL window at the native display size multiplied
// by scale. The quit function is called when the user closes the window.
//
// MUST ONLY be called from the main goroutine.
func NewWindow(disp *display.Display, touch *display.Touch, scale int, quit func()) (*Window, error) {
	if scale < 1 {
		scale = 1
	}

	w, h := disp.Size()
	win := &Window{
		disp:   disp,
		touch:  touch,
		width:  int32(w),
		height: int32(h),
		scale:  int32(scale),
		pixels: make([]byte, w*h*pixelDepth),
		frame:  make([]uint16, w*h),
		quit:   quit,
	}

	var err error

	err = sdl.Init(sdl.INIT_VIDEO)
	if err != nil {
		return nil, curated.Errorf(SDLError, err)
	}

	// MOUSEMOTION events fill up the event queue pretty quickly. we only
	// want one value per frame which we can do with a single call to
	// GetMouseState()
	sdl.EventState(sdl.MOUSEMOTION, sdl.IGNORE)

	win.window, err = sdl.CreateWindow("cyd-emulator",
		int32(sdl.WINDOWPOS_UNDEFINED), int32(sdl.WINDOWPOS_UNDEFINED),
		win.width*win.scale, win.height*win.scale,
		uint32(sdl.WINDOW_SHOWN))
	if err != nil {
		return nil, curated.Errorf(SDLError, err)
	}

	win.renderer, err = sdl.CreateRenderer(win.window, -1, uint32(sdl.RENDERER_ACCELERATED))
	if err != nil {
		return nil, curated.Errorf(SDLError, err)
	}

	// make sure everything drawn through the renderer is correctly scaled
	err = win.renderer.SetScale(float32(win.scale), float32(win.scale))
	if err != nil {
		return nil, curated.Errorf(SDLError, err)
	}

	// texture is the same size as the pixel array. scaling is applied by
	// the renderer in order to fit it in the window
	win.texture, err = win.renderer.CreateTexture(uint32(sdl.PIXELFORMAT_RGB565),
		int(sdl.TEXTUREACCESS_STREAMING),
		win.width, win.height)
	if err != nil {
		return nil, curated.Errorf(SDLError, err)
	}

	return win, nil
}

// Service runs one iteration of the presentation loop: drain the SDL
// event queue, poll the mouse and blit the current framebuffer. Call it
// at the desired refresh cadence.
//
// MUST ONLY be called from the main goroutine.
func (win *Window) Service() error {
	for ev := sdl.PollEvent(); ev != nil; ev = sdl.PollEvent() {
		switch ev := ev.(type) {
		case *sdl.QuitEvent:
			win.quit()

		case *sdl.KeyboardEvent:
			if ev.Type == sdl.KEYDOWN && ev.Repeat == 0 && ev.Keysym.Sym == sdl.K_ESCAPE {
				win.quit()
			}
		}
	}

	win.serviceMouse()

	return win.render()
}

// serviceMouse polls the mouse once per frame and forwards the pressed
// position to the touch panel in display coordinates.
func (win *Window) serviceMouse() {
	if win.touch == nil {
		return
	}

	mx, my, state := sdl.GetMouseState()
	down := state&sdl.Button(sdl.BUTTON_LEFT) != 0

	if down {
		win.touch.Update(true, int(mx/win.scale), int(my/win.scale))
	} else if win.mouseDown {
		win.touch.Update(false, 0, 0)
	}
	win.mouseDown = down
}

func (win *Window) render() error {
	win.disp.Snapshot(win.frame)

	// RGB565 texture bytes are little-endian
	for i, px := range win.frame {
		win.pixels[i*2] = byte(px)
		win.pixels[i*2+1] = byte(px >> 8)
	}

	err := win.texture.Update(nil, win.pixels, int(win.width*pixelDepth))
	if err != nil {
		return curated.Errorf(SDLError, err)
	}

	err = win.renderer.Copy(win.texture, nil, nil)
	if err != nil {
		return curated.Errorf(SDLError, err)
	}

	win.renderer.Present()

	return nil
}

// Destroy releases all SDL resources.
//
// MUST ONLY be called from the main goroutine.
func (win *Window) Destroy() {
	if win.texture != nil {
		_ = win.texture.Destroy()
	}
	if win.renderer != nil {
		_ = win.renderer.Destroy()
	}
	if win.window != nil {
		_ = win.window.Destroy()
	}
	sdl.Quit()
}

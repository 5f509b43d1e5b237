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

// Package display is the emulated LCD panel: an RGB565 framebuffer with
// the primitive drawing operations firmware expects from the panel
// driver, plus the touch overlay.
//
// Firmware tasks draw into the framebuffer while the gui goroutine reads
// it out for blitting, so every operation takes the framebuffer lock.
package display

import (
	"image"
	"image/color"
	"sync"
)

// Display is the shared framebuffer. Create with NewDisplay.
type Display struct {
	crit sync.Mutex

	width  int
	height int
	buf    []uint16
}

// Common panel colors in RGB565.
const (
	Black   uint16 = 0x0000
	White   uint16 = 0xffff
	Red     uint16 = 0xf800
	Green   uint16 = 0x07e0
	Blue    uint16 = 0x001f
	Yellow  uint16 = 0xffe0
	Cyan    uint16 = 0x07ff
	Magenta uint16 = 0xf81f
)

// RGB packs 8bit channels into an RGB565 pixel.
func RGB(r, g, b uint8) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

// NewDisplay creates a framebuffer of the given panel size, cleared to
// black.
func NewDisplay(width, height int) *Display {
	return &Display{
		width:  width,
		height: height,
		buf:    make([]uint16, width*height),
	}
}

// Size returns the panel dimensions.
func (d *Display) Size() (width, height int) {
	return d.width, d.height
}

// Clear fills the whole panel with one color.
func (d *Display) Clear(color uint16) {
	d.FillRect(0, 0, d.width, d.height, color)
}

// FillRect fills a rectangle, clipped to the panel.
func (d *Display) FillRect(x, y, w, h int, color uint16) {
	if x < 0 {
		w += x
		x = 0
	}
	if y < 0 {
		h += y
		y = 0
	}
	if x+w > d.width {
		w = d.width - x
	}
	if y+h > d.height {
		h = d.height - y
	}
	if w <= 0 || h <= 0 {
		return
	}

	d.crit.Lock()
	defer d.crit.Unlock()

	for row := y; row < y+h; row++ {
		dst := d.buf[row*d.width+x : row*d.width+x+w]
		for i := range dst {
			dst[i] = color
		}
	}
}

// DrawChar draws one glyph with an opaque background cell. Characters
// outside the font's range draw as space.
func (d *Display) DrawChar(x, y int, c byte, fg, bg uint16) {
	if c < fontFirst || c > fontLast {
		c = ' '
	}
	glyph := &fontData[c-fontFirst]

	d.crit.Lock()
	defer d.crit.Unlock()

	for row := 0; row < FontHeight; row++ {
		dy := y + row
		if dy < 0 || dy >= d.height {
			continue
		}
		if x < 0 || x+FontWidth > d.width {
			continue
		}

		bits := glyph[row]
		dst := d.buf[dy*d.width+x:]
		for col := 0; col < FontWidth; col++ {
			if bits&(1<<col) != 0 {
				dst[col] = fg
			} else {
				dst[col] = bg
			}
		}
	}
}

// DrawString draws text starting at x,y. A newline returns to the start
// column; text that reaches the right edge wraps to column zero. Drawing
// stops at the bottom of the panel.
func (d *Display) DrawString(x, y int, s string, fg, bg uint16) {
	cx, cy := x, y
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			cx = x
			cy += FontHeight
			continue
		}
		if cx+FontWidth > d.width {
			cx = 0
			cy += FontHeight
		}
		if cy+FontHeight > d.height {
			break
		}

		d.DrawChar(cx, cy, s[i], fg, bg)
		cx += FontWidth
	}
}

// DrawBitmap1BPP draws a packed 1bpp bitmap, MSB leftmost, rows padded to
// whole bytes.
func (d *Display) DrawBitmap1BPP(x, y, w, h int, bitmap []byte, fg, bg uint16) {
	rowBytes := (w + 7) / 8

	d.crit.Lock()
	defer d.crit.Unlock()

	for row := 0; row < h; row++ {
		dy := y + row
		if dy < 0 || dy >= d.height {
			continue
		}

		src := bitmap[row*rowBytes:]
		for col := 0; col < w; col++ {
			dx := x + col
			if dx < 0 || dx >= d.width {
				continue
			}
			if src[col/8]&(0x80>>(col&7)) != 0 {
				d.buf[dy*d.width+dx] = fg
			} else {
				d.buf[dy*d.width+dx] = bg
			}
		}
	}
}

// DrawLineRGB565 copies one row of pixels, clipped horizontally. This is
// the bulk path display drivers use for image blits.
func (d *Display) DrawLineRGB565(x, y, w int, pixels []uint16) {
	if y < 0 || y >= d.height || w <= 0 {
		return
	}
	skip := 0
	if x < 0 {
		skip = -x
		w += x
		x = 0
	}
	if x+w > d.width {
		w = d.width - x
	}
	if w <= 0 {
		return
	}

	d.crit.Lock()
	defer d.crit.Unlock()

	copy(d.buf[y*d.width+x:y*d.width+x+w], pixels[skip:skip+w])
}

// Pixel reads one pixel.
func (d *Display) Pixel(x, y int) uint16 {
	if x < 0 || x >= d.width || y < 0 || y >= d.height {
		return 0
	}

	d.crit.Lock()
	defer d.crit.Unlock()
	return d.buf[y*d.width+x]
}

// Snapshot copies the framebuffer. The gui blits from this so the lock is
// held only for the copy, not the whole render.
func (d *Display) Snapshot(dst []uint16) []uint16 {
	d.crit.Lock()
	defer d.crit.Unlock()

	if len(dst) < len(d.buf) {
		dst = make([]uint16, len(d.buf))
	}
	copy(dst, d.buf)
	return dst
}

// Image converts the framebuffer to an RGBA image, for screenshots.
func (d *Display) Image() *image.RGBA {
	d.crit.Lock()
	defer d.crit.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	for y := 0; y < d.height; y++ {
		for x := 0; x < d.width; x++ {
			p := d.buf[y*d.width+x]
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(p>>11) << 3,
				G: uint8(p>>5&0x3f) << 2,
				B: uint8(p&0x1f) << 3,
				A: 0xff,
			})
		}
	}
	return img
}

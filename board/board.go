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

// Package board describes the ESP32 "Cheap Yellow Display" board variants
// the emulator can present to firmware: chip model, core count, panel
// resolution and peripherals.
package board

import (
	"fmt"
	"io"
	"strings"
)

// Chip model IDs, matching the values firmware reads from the chip info
// API.
const (
	ChipESP32   = 1
	ChipESP32S3 = 9
)

// Profile describes one board variant.
type Profile struct {
	Model         string
	ChipName      string
	ChipModel     int
	Cores         int
	DisplaySize   string
	DisplayWidth  int
	DisplayHeight int
	TouchType     string
	SDSlots       int
	USBOTG        bool
	USBType       string
}

// DefaultModel is the classic 2.8" resistive CYD.
const DefaultModel = "2432S028R"

var profiles = []Profile{
	// 2.4" boards
	{"2432S024R", "ESP32", ChipESP32, 2, "2.4\"", 320, 240, "XPT2046 (resistive)", 1, false, "Micro-USB (UART)"},
	{"2432S024C", "ESP32", ChipESP32, 2, "2.4\"", 320, 240, "GT911 (capacitive)", 1, false, "Micro-USB (UART)"},

	// 2.8" boards, the classic CYD
	{"2432S028R", "ESP32", ChipESP32, 2, "2.8\"", 320, 240, "XPT2046 (resistive)", 1, false, "Micro-USB (UART)"},
	{"2432S028C", "ESP32", ChipESP32, 2, "2.8\"", 320, 240, "GT911 (capacitive)", 1, false, "Micro-USB (UART)"},

	// 3.2" boards
	{"2432S032R", "ESP32", ChipESP32, 2, "3.2\"", 320, 240, "XPT2046 (resistive)", 1, false, "Micro-USB (UART)"},
	{"2432S032C", "ESP32", ChipESP32, 2, "3.2\"", 320, 240, "GT911 (capacitive)", 1, false, "Micro-USB (UART)"},

	// 3.5" boards, higher resolution
	{"3248S035R", "ESP32", ChipESP32, 2, "3.5\"", 480, 320, "XPT2046 (resistive)", 1, false, "Micro-USB (UART)"},
	{"3248S035C", "ESP32", ChipESP32, 2, "3.5\"", 480, 320, "GT911 (capacitive)", 1, false, "Micro-USB (UART)"},

	// 4.3" ESP32 board
	{"4827S043C", "ESP32", ChipESP32, 2, "4.3\"", 480, 272, "FT5x06 (capacitive)", 1, false, "Micro-USB (UART)"},

	// 4.3" ESP32-S3 boards
	{"8048S043R", "ESP32-S3", ChipESP32S3, 2, "4.3\"", 800, 480, "XPT2046 (resistive)", 1, true, "USB-C (OTG)"},
	{"8048S043C", "ESP32-S3", ChipESP32S3, 2, "4.3\"", 800, 480, "GT911 (capacitive)", 1, true, "USB-C (OTG)"},

	// 5.0" ESP32-S3 board
	{"8048S050C", "ESP32-S3", ChipESP32S3, 2, "5.0\"", 800, 480, "GT911 (capacitive)", 1, true, "USB-C (OTG)"},

	// 7.0" ESP32-S3 board
	{"8048S070C", "ESP32-S3", ChipESP32S3, 2, "7.0\"", 800, 480, "GT911 (capacitive)", 1, true, "USB-C (OTG)"},
}

// Find returns the profile for a model name, matched case insensitively.
// ok is false for an unknown model.
func Find(model string) (Profile, bool) {
	for _, p := range profiles {
		if strings.EqualFold(p.Model, model) {
			return p, true
		}
	}
	return Profile{}, false
}

// Default returns the default board profile.
func Default() Profile {
	p, _ := Find(DefaultModel)
	return p
}

// Profiles returns every known board, in catalogue order.
func Profiles() []Profile {
	return append([]Profile(nil), profiles...)
}

// List writes the board catalogue as a table, for the --board help output.
func List(w io.Writer) {
	fmt.Fprintf(w, "Available CYD board profiles:\n\n")
	fmt.Fprintf(w, "  %-12s %-9s %-6s %-10s %-22s %s  %s\n",
		"MODEL", "CHIP", "LCD", "RES", "TOUCH", "SD", "USB")
	fmt.Fprintf(w, "  %-12s %-9s %-6s %-10s %-22s %s  %s\n",
		"-----", "----", "---", "---", "-----", "--", "---")
	for _, p := range profiles {
		res := fmt.Sprintf("%dx%d", p.DisplayWidth, p.DisplayHeight)
		def := ""
		if p.Model == DefaultModel {
			def = "  (default)"
		}
		fmt.Fprintf(w, "  %-12s %-9s %-6s %-10s %-22s %d   %s%s\n",
			p.Model, p.ChipName, p.DisplaySize, res,
			p.TouchType, p.SDSlots, p.USBType, def)
	}
}

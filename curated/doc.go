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

// Package curated is a helper package for the plain Go language error type.
// Curated errors implement the error interface and can be used wherever a
// regular error is expected.
//
// Curated errors are created with the Errorf() function. Like the Errorf()
// function in the fmt package it takes a formatting pattern and placeholder
// values. Unlike the fmt package, the pattern is kept alongside the values
// and is used to identify the error later:
//
//	e := curated.Errorf("rtos: too many tasks (max %d)", max)
//
//	if curated.Is(e, "rtos: too many tasks (max %d)") {
//		...
//	}
//
// The Has() function is similar to Is() but checks whether the pattern
// occurs anywhere in the error chain, rather than only at the head.
//
// Patterns that are tested for in more than one package should be defined
// as exported string constants by the package that creates them.
package curated

package events

import (
	"fmt"
	"strings"
)

// Virtual key codes. Backends on other platforms translate into this table.
const (
	VKBack     uint32 = 0x08
	VKTab      uint32 = 0x09
	VKReturn   uint32 = 0x0D
	VKShift    uint32 = 0x10
	VKControl  uint32 = 0x11
	VKMenu     uint32 = 0x12
	VKCapital  uint32 = 0x14
	VKEscape   uint32 = 0x1B
	VKSpace    uint32 = 0x20
	VKPrior    uint32 = 0x21
	VKNext     uint32 = 0x22
	VKEnd      uint32 = 0x23
	VKHome     uint32 = 0x24
	VKLeft     uint32 = 0x25
	VKUp       uint32 = 0x26
	VKRight    uint32 = 0x27
	VKDown     uint32 = 0x28
	VKInsert   uint32 = 0x2D
	VKDelete   uint32 = 0x2E
	VK0        uint32 = 0x30
	VK9        uint32 = 0x39
	VKA        uint32 = 0x41
	VKZ        uint32 = 0x5A
	VKLWin     uint32 = 0x5B
	VKRWin     uint32 = 0x5C
	VKF1       uint32 = 0x70
	VKF24      uint32 = 0x87
	VKLShift   uint32 = 0xA0
	VKRShift   uint32 = 0xA1
	VKLControl uint32 = 0xA2
	VKRControl uint32 = 0xA3
	VKLMenu    uint32 = 0xA4
	VKRMenu    uint32 = 0xA5
)

// VKLetter returns the key code for an ASCII letter.
func VKLetter(r rune) uint32 {
	if r >= 'a' && r <= 'z' {
		r -= 'a' - 'A'
	}
	return uint32(r)
}

// VKFunction returns the key code for Fn, 1 <= n <= 24.
func VKFunction(n int) uint32 {
	return VKF1 + uint32(n-1)
}

var keyNames = map[uint32]string{
	VKBack:   "Backspace",
	VKTab:    "Tab",
	VKReturn: "Enter",
	VKEscape: "Esc",
	VKSpace:  "Space",
	VKPrior:  "PageUp",
	VKNext:   "PageDown",
	VKEnd:    "End",
	VKHome:   "Home",
	VKLeft:   "Left",
	VKUp:     "Up",
	VKRight:  "Right",
	VKDown:   "Down",
	VKInsert: "Insert",
	VKDelete: "Delete",
}

// KeyName renders a key code for display in hotkey combinations.
func KeyName(code uint32) string {
	switch {
	case code >= VKA && code <= VKZ, code >= VK0 && code <= VK9:
		return string(rune(code))
	case code >= VKF1 && code <= VKF24:
		return fmt.Sprintf("F%d", code-VKF1+1)
	}
	if name, ok := keyNames[code]; ok {
		return name
	}
	return fmt.Sprintf("VK_%02X", code)
}

// IsModifierKey reports whether code is a modifier key.
func IsModifierKey(code uint32) bool {
	switch code {
	case VKShift, VKControl, VKMenu, VKLWin, VKRWin,
		VKLShift, VKRShift, VKLControl, VKRControl, VKLMenu, VKRMenu, VKCapital:
		return true
	}
	return false
}

// IsNavigationKey reports whether code moves the caret.
func IsNavigationKey(code uint32) bool {
	switch code {
	case VKLeft, VKRight, VKUp, VKDown, VKHome, VKEnd, VKPrior, VKNext:
		return true
	}
	return false
}

// Combination renders modifiers plus key as "Ctrl+Alt+Shift+Win+Key".
func Combination(m Modifiers, code uint32) string {
	parts := make([]string, 0, 5)
	if m.Ctrl {
		parts = append(parts, "Ctrl")
	}
	if m.Alt {
		parts = append(parts, "Alt")
	}
	if m.Shift {
		parts = append(parts, "Shift")
	}
	if m.Win {
		parts = append(parts, "Win")
	}
	parts = append(parts, KeyName(code))
	return strings.Join(parts, "+")
}

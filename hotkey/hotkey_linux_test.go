//go:build linux

package hotkey

import "testing"

func TestComboTransitions(t *testing.T) {
	var c combo
	steps := []struct {
		code     uint16
		value    int32
		down, up bool
	}{
		{keySpace, 1, false, false}, // space alone
		{keySpace, 0, false, false},
		{keyLCtrl, 1, false, false},
		{keyRShift, 1, false, false},
		{keySpace, 1, true, false},
		{keySpace, 2, false, false}, // autorepeat
		{keyLCtrl, 0, false, false}, // modifiers may lift first
		{keySpace, 0, false, true},
		{keySpace, 1, false, false}, // ctrl no longer held
	}
	for i, s := range steps {
		down, up := c.feed(s.code, s.value)
		if down != s.down || up != s.up {
			t.Errorf("step %d: feed(%d, %d) = %v, %v; want %v, %v", i, s.code, s.value, down, up, s.down, s.up)
		}
	}
}

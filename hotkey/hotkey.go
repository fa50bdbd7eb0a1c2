// Package hotkey binds the global Ctrl+Shift+Space shortcut to recording.
package hotkey

// Hotkey delivers press and release of one global key combination.
type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

const Combo = "Ctrl+Shift+Space"

//go:build cgo

package hal

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

type hostKeyboard struct {
	ch chan KeyEvent
}

func newHostKeyboard() *hostKeyboard {
	return &hostKeyboard{ch: make(chan KeyEvent, 64)}
}

func (k *hostKeyboard) Events() <-chan KeyEvent { return k.ch }

var hostKeys = []struct {
	key  ebiten.Key
	code KeyCode
}{
	{ebiten.KeyEnter, KeyEnter},
	{ebiten.KeyEscape, KeyEscape},
	{ebiten.KeyTab, KeyTab},
	{ebiten.KeySpace, KeySpace},
}

func (k *hostKeyboard) poll() {
	emit := func(ev KeyEvent) {
		select {
		case k.ch <- ev:
		default:
		}
	}

	for _, r := range ebiten.AppendInputChars(nil) {
		if r == ' ' {
			continue
		}
		emit(KeyEvent{Press: true, Rune: r})
	}

	for _, hk := range hostKeys {
		if inpututil.IsKeyJustPressed(hk.key) {
			emit(KeyEvent{Code: hk.code, Press: true})
		}
		if inpututil.IsKeyJustReleased(hk.key) {
			emit(KeyEvent{Code: hk.code, Press: false})
		}
	}
}

//go:build !linux
// +build !linux

package fan

import "errors"

var ErrNotSupported = errors.New("tachometer requires linux gpio character devices")

func StartTachometer(chip string, pin int) (*Tachometer, error) {
	return nil, ErrNotSupported
}

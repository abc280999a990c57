// Package layout resolves the device class the message list is laid out for.
package layout

import "time"

// DefaultMobileMaxWidth is the terminal width, in columns, below which the
// compact (mobile) layout is used.
const DefaultMobileMaxWidth = 80

// Media observer throttles. Android pays more for layout work.
const (
	MediaThrottle        = 350 * time.Millisecond
	MediaThrottleAndroid = time.Second
)

// Class describes the layout the list is rendered in.
type Class struct {
	IsMobile bool
}

// Resolve classifies a terminal of the given width. A threshold <= 0 uses
// DefaultMobileMaxWidth; an unknown width (<= 0) is treated as desktop.
func Resolve(width, threshold int) Class {
	if threshold <= 0 {
		threshold = DefaultMobileMaxWidth
	}
	return Class{IsMobile: width > 0 && width < threshold}
}

// Forced applies a "mobile"/"desktop" override; anything else keeps c.
func (c Class) Forced(mode string) Class {
	switch mode {
	case "mobile":
		return Class{IsMobile: true}
	case "desktop":
		return Class{IsMobile: false}
	default:
		return c
	}
}

// MediaThrottleFor returns the media observer throttle for a GOOS value.
func MediaThrottleFor(goos string) time.Duration {
	if goos == "android" {
		return MediaThrottleAndroid
	}
	return MediaThrottle
}

package domain

import "unicode/utf16"

// Theme is a background image URL rendered behind a room.
type Theme string

// themePalette is fixed and ordered; the hash index into it must stay
// stable across releases so a room key keeps its background forever.
var themePalette = []Theme{
	"https://images.unsplash.com/photo-1557683316-973673baf926",
	"https://images.unsplash.com/photo-1579546929518-9e396f3cc809",
	"https://images.unsplash.com/photo-1451187580459-43490279c0fa",
	"https://images.unsplash.com/photo-1519681393784-d120267933ba",
	"https://images.unsplash.com/photo-1506905925346-21bda4d32df4",
	"https://images.unsplash.com/photo-1534796636912-3b95b3ab5986",
	"https://images.unsplash.com/photo-1464802686167-b939a6910659",
	"https://images.unsplash.com/photo-1419242902214-272b3f66ee7a",
}

const themeParams = "?w=1920&q=80&fit=crop"

// AssignTheme maps a room key to one of the fixed backgrounds. Pure and
// deterministic: the same key yields the same theme on every call and
// after a restart. The hash is the 32-bit `h = h*31 + charCode` over
// UTF-16 code units that web clients compute, truncation included, so
// server and clients always agree on the background.
func AssignTheme(key RoomKey) Theme {
	var h int32
	for _, cu := range utf16.Encode([]rune(string(key))) {
		h = h<<5 - h + int32(cu)
	}
	n := int64(h)
	if n < 0 {
		n = -n
	}
	return themePalette[n%int64(len(themePalette))] + themeParams
}

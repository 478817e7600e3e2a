// Package exifgps recovers GPS coordinates from the Exif block of a JPEG by
// walking its marker segments and TIFF tag directories directly. No image
// decoding happens and malformed input never produces an error: it simply
// yields no location.
package exifgps

import (
	"bytes"
	"encoding/binary"

	"github.com/trafficai/violation-reporter/internal/geo"
)

// JPEG markers.
const (
	markerPrefix = 0xFF
	markerSOI    = 0xD8
	markerEOI    = 0xD9
	markerSOS    = 0xDA
	markerAPP1   = 0xE1
	markerTEM    = 0x01
	markerRST0   = 0xD0
	markerRST7   = 0xD7
)

// TIFF tags and field types used for GPS.
const (
	tagGPSIFDPointer = 0x8825
	tagGPSLatRef     = 0x0001
	tagGPSLat        = 0x0002
	tagGPSLngRef     = 0x0003
	tagGPSLng        = 0x0004

	typeASCII    = 2
	typeRational = 5

	ifdEntrySize = 12
)

var exifSignature = []byte("Exif")

// ExtractLocation returns the GPS position embedded in a JPEG's Exif data,
// or nil when data is not a JPEG, carries no Exif GPS directory, or any
// structure along the way is malformed or truncated.
func ExtractLocation(data []byte) *geo.Coordinate {
	tiff, ok := findExifTIFF(data)
	if !ok {
		return nil
	}
	r, ok := tiffReader(tiff)
	if !ok {
		return nil
	}

	ifd0, ok := r.u32(4)
	if !ok {
		return nil
	}
	gpsOff, ok := findTagValue(r, int(ifd0), tagGPSIFDPointer)
	if !ok {
		return nil
	}

	fix, ok := readGPS(r, int(gpsOff))
	if !ok {
		return nil
	}
	c := &geo.Coordinate{
		Latitude:  fix.latitude(),
		Longitude: fix.longitude(),
	}
	if c.Validate() != nil {
		return nil
	}
	return c
}

// findExifTIFF walks the marker segments and returns the TIFF structure
// carried by the first APP1 segment whose payload begins with "Exif".
func findExifTIFF(data []byte) ([]byte, bool) {
	jpeg := reader{buf: data, order: binary.BigEndian}

	if soi, ok := jpeg.u16(0); !ok || soi != markerPrefix<<8|markerSOI {
		return nil, false
	}

	off := 2
	for off < len(data) {
		prefix, ok := jpeg.u8(off)
		if !ok || prefix != markerPrefix {
			return nil, false
		}
		marker, ok := jpeg.u8(off + 1)
		if !ok {
			return nil, false
		}

		switch {
		case marker == markerPrefix:
			// Fill byte before a marker.
			off++
			continue
		case marker == markerEOI || marker == markerSOS:
			// Metadata segments always precede the scan data.
			return nil, false
		case marker == markerTEM || (marker >= markerRST0 && marker <= markerRST7):
			off += 2
			continue
		}

		length, ok := jpeg.u16(off + 2)
		if !ok || length < 2 {
			return nil, false
		}
		payloadStart := off + 4
		segmentEnd := off + 2 + int(length)

		if marker == markerAPP1 {
			end := min(segmentEnd, len(data))
			if sig, ok := jpeg.slice(payloadStart, len(exifSignature)); ok && bytes.Equal(sig, exifSignature) {
				// "Exif" is followed by two pad bytes, then the TIFF header.
				tiffStart := payloadStart + 6
				if tiffStart > end {
					return nil, false
				}
				return data[tiffStart:end], true
			}
		}
		off = segmentEnd
	}
	return nil, false
}

// tiffReader inspects the byte-order mark of a TIFF header.
func tiffReader(tiff []byte) (reader, bool) {
	if len(tiff) < 8 {
		return reader{}, false
	}
	switch {
	case tiff[0] == 'I' && tiff[1] == 'I':
		return reader{buf: tiff, order: binary.LittleEndian}, true
	case tiff[0] == 'M' && tiff[1] == 'M':
		return reader{buf: tiff, order: binary.BigEndian}, true
	default:
		return reader{}, false
	}
}

// ifdEntry is one 12-byte directory entry.
type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	// at is the offset of the entry's 4-byte value/offset field.
	at int
}

// entries decodes the directory at dirOff.
func entries(r reader, dirOff int) ([]ifdEntry, bool) {
	n, ok := r.u16(dirOff)
	if !ok {
		return nil, false
	}
	out := make([]ifdEntry, 0, n)
	for i := 0; i < int(n); i++ {
		e := dirOff + 2 + i*ifdEntrySize
		tag, ok1 := r.u16(e)
		typ, ok2 := r.u16(e + 2)
		count, ok3 := r.u32(e + 4)
		if _, ok4 := r.u32(e + 8); !(ok1 && ok2 && ok3 && ok4) {
			return nil, false
		}
		out = append(out, ifdEntry{tag: tag, typ: typ, count: count, at: e + 8})
	}
	return out, true
}

// findTagValue returns the raw 32-bit value field of tag in the directory at dirOff.
func findTagValue(r reader, dirOff int, tag uint16) (uint32, bool) {
	es, ok := entries(r, dirOff)
	if !ok {
		return 0, false
	}
	for _, e := range es {
		if e.tag == tag {
			return r.u32(e.at)
		}
	}
	return 0, false
}

// gpsFix holds the four GPS fields once all are read.
type gpsFix struct {
	latRef, lngRef byte
	lat, lng       [3]float64
}

func (g gpsFix) latitude() float64  { return toDecimal(g.lat, g.latRef == 'S') }
func (g gpsFix) longitude() float64 { return toDecimal(g.lng, g.lngRef == 'W') }

// toDecimal converts a degrees/minutes/seconds triple to signed decimal degrees.
func toDecimal(dms [3]float64, negative bool) float64 {
	dd := dms[0] + dms[1]/60 + dms[2]/3600
	if negative {
		dd = -dd
	}
	return dd
}

func readGPS(r reader, dirOff int) (gpsFix, bool) {
	es, ok := entries(r, dirOff)
	if !ok {
		return gpsFix{}, false
	}

	var fix gpsFix
	var haveLatRef, haveLat, haveLngRef, haveLng bool
	for _, e := range es {
		switch e.tag {
		case tagGPSLatRef:
			fix.latRef, haveLatRef = readRef(r, e, 'N', 'S')
		case tagGPSLngRef:
			fix.lngRef, haveLngRef = readRef(r, e, 'E', 'W')
		case tagGPSLat:
			fix.lat, haveLat = readDMS(r, e)
		case tagGPSLng:
			fix.lng, haveLng = readDMS(r, e)
		}
	}
	if !(haveLatRef && haveLat && haveLngRef && haveLng) {
		return gpsFix{}, false
	}
	return fix, true
}

// readRef reads a single-character ASCII reference. Values of four bytes or
// fewer are stored inline in the entry's value field.
func readRef(r reader, e ifdEntry, allowed ...byte) (byte, bool) {
	if e.typ != typeASCII || e.count < 1 {
		return 0, false
	}
	at := e.at
	if e.count > 4 {
		off, ok := r.u32(e.at)
		if !ok {
			return 0, false
		}
		at = int(off)
	}
	c, ok := r.u8(at)
	if !ok {
		return 0, false
	}
	for _, a := range allowed {
		if c == a {
			return c, true
		}
	}
	return 0, false
}

// readDMS reads three RATIONAL values (numerator/denominator uint32 pairs).
func readDMS(r reader, e ifdEntry) ([3]float64, bool) {
	var dms [3]float64
	if e.typ != typeRational || e.count < 3 {
		return dms, false
	}
	off, ok := r.u32(e.at)
	if !ok {
		return dms, false
	}
	for i := 0; i < 3; i++ {
		num, ok1 := r.u32(int(off) + i*8)
		den, ok2 := r.u32(int(off) + i*8 + 4)
		if !ok1 || !ok2 || den == 0 {
			return dms, false
		}
		dms[i] = float64(num) / float64(den)
	}
	return dms, true
}

package exifgps

import (
	"encoding/binary"
)

// tagSpec describes one directory entry for the synthetic TIFF builder. Data
// of four bytes or fewer is stored inline; anything larger goes to the data
// area and the entry records its offset.
type tagSpec struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

func asciiTag(tag uint16, s string) tagSpec {
	b := append([]byte(s), 0)
	return tagSpec{tag: tag, typ: typeASCII, count: uint32(len(b)), data: b}
}

func rationalTag(order binary.ByteOrder, tag uint16, vals ...[2]uint32) tagSpec {
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		order.PutUint32(b[i*8:], v[0])
		order.PutUint32(b[i*8+4:], v[1])
	}
	return tagSpec{tag: tag, typ: typeRational, count: uint32(len(vals)), data: b}
}

func dms(d, m, s uint32) [][2]uint32 {
	return [][2]uint32{{d, 1}, {m, 1}, {s, 1}}
}

// buildTIFF lays out a header, IFD0 and an optional GPS IFD. When gps is
// non-nil IFD0 gets a GPS pointer entry appended.
func buildTIFF(order binary.ByteOrder, ifd0, gps []tagSpec) []byte {
	dirSize := func(n int) int { return 2 + n*ifdEntrySize + 4 }

	n0 := len(ifd0)
	if gps != nil {
		n0++
	}
	ifd0Off := 8
	gpsOff := ifd0Off + dirSize(n0)
	dataOff := gpsOff
	if gps != nil {
		dataOff += dirSize(len(gps))
	}

	buf := make([]byte, dataOff)
	if order == binary.LittleEndian {
		copy(buf, "II")
	} else {
		copy(buf, "MM")
	}
	order.PutUint16(buf[2:], 42)
	order.PutUint32(buf[4:], uint32(ifd0Off))

	writeDir := func(at int, tags []tagSpec) {
		order.PutUint16(buf[at:], uint16(len(tags)))
		for i, t := range tags {
			e := at + 2 + i*ifdEntrySize
			order.PutUint16(buf[e:], t.tag)
			order.PutUint16(buf[e+2:], t.typ)
			order.PutUint32(buf[e+4:], t.count)
			if len(t.data) <= 4 {
				copy(buf[e+8:e+12], t.data)
				continue
			}
			order.PutUint32(buf[e+8:], uint32(len(buf)))
			buf = append(buf, t.data...)
		}
		// next-IFD offset stays zero
	}

	tags0 := ifd0
	if gps != nil {
		ptr := make([]byte, 4)
		order.PutUint32(ptr, uint32(gpsOff))
		tags0 = append(append([]tagSpec{}, ifd0...), tagSpec{tag: tagGPSIFDPointer, typ: 4, count: 1, data: ptr})
	}
	writeDir(ifd0Off, tags0)
	if gps != nil {
		writeDir(gpsOff, gps)
	}
	return buf
}

// segment builds a JPEG marker segment with its big-endian length.
func segment(marker byte, payload []byte) []byte {
	out := []byte{0xFF, marker, 0, 0}
	binary.BigEndian.PutUint16(out[2:], uint16(len(payload)+2))
	return append(out, payload...)
}

func exifSegment(tiff []byte) []byte {
	return segment(markerAPP1, append([]byte("Exif\x00\x00"), tiff...))
}

// buildJPEG wraps segments between SOI and EOI. It carries no scan data.
func buildJPEG(segments ...[]byte) []byte {
	out := []byte{0xFF, markerSOI}
	for _, s := range segments {
		out = append(out, s...)
	}
	return append(out, 0xFF, markerEOI)
}

func gpsTags(order binary.ByteOrder, latRef string, lat [][2]uint32, lngRef string, lng [][2]uint32) []tagSpec {
	return []tagSpec{
		asciiTag(tagGPSLatRef, latRef),
		rationalTag(order, tagGPSLat, lat...),
		asciiTag(tagGPSLngRef, lngRef),
		rationalTag(order, tagGPSLng, lng...),
	}
}

// bangalore is 12°30'0"N 77°15'0"E.
func bangalore(order binary.ByteOrder) []byte {
	return buildJPEG(exifSegment(buildTIFF(order, nil,
		gpsTags(order, "N", dms(12, 30, 0), "E", dms(77, 15, 0)))))
}

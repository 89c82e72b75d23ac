// Package orientation reads the EXIF orientation flag embedded in JPEG data
// and applies the matching geometric transform to pixel data.
//
// The reader is total: a missing marker, a truncated segment, a bad byte-order
// indicator or any other structural anomaly yields Unspecified rather than an
// error. Malformed metadata is not an error condition here, only a no-op.
package orientation

import (
	"encoding/binary"
	"image"
	"io"

	"github.com/disintegration/imaging"
)

// Orientation is the EXIF flag (tag 0x0112) describing the transform that
// must be applied to stored pixel data to display it upright.
type Orientation int

const (
	Unspecified Orientation = 0
	Normal      Orientation = 1
	FlipH       Orientation = 2 // horizontal flip
	Rotate180   Orientation = 3
	FlipV       Orientation = 4 // vertical flip
	Transpose   Orientation = 5 // flip + 90 degrees
	Rotate270   Orientation = 6 // 90 degrees clockwise
	Transverse  Orientation = 7 // flip + 270 degrees
	Rotate90    Orientation = 8 // 90 degrees counter-clockwise
)

// String returns the EXIF name of the orientation.
func (o Orientation) String() string {
	switch o {
	case Normal:
		return "normal"
	case FlipH:
		return "flip-horizontal"
	case Rotate180:
		return "rotate-180"
	case FlipV:
		return "flip-vertical"
	case Transpose:
		return "transpose"
	case Rotate270:
		return "rotate-270"
	case Transverse:
		return "transverse"
	case Rotate90:
		return "rotate-90"
	default:
		return "unspecified"
	}
}

// Dimensions returns the bounds of a w x h image after Apply.
func (o Orientation) Dimensions(w, h int) (int, int) {
	switch o {
	case Transpose, Transverse, Rotate90, Rotate270:
		return h, w
	default:
		return w, h
	}
}

// Apply returns img transformed so its pixels read upright. Unspecified and
// Normal return img unchanged.
func (o Orientation) Apply(img image.Image) image.Image {
	switch o {
	case FlipH:
		return imaging.FlipH(img)
	case Rotate180:
		return imaging.Rotate180(img)
	case FlipV:
		return imaging.FlipV(img)
	case Transpose:
		return imaging.Transpose(img)
	case Rotate270:
		return imaging.Rotate270(img)
	case Transverse:
		return imaging.Transverse(img)
	case Rotate90:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// JPEG and TIFF markers consumed by Read.
const (
	markerSOI      = 0xffd8
	markerAPP1     = 0xffe1
	exifHeader     = 0x45786966 // "Exif"
	byteOrderBE    = 0x4d4d     // "MM"
	byteOrderLE    = 0x4949     // "II"
	orientationTag = 0x0112
)

// Read scans r for the EXIF orientation flag of a JPEG image. It walks the
// marker segments to APP1, verifies the Exif signature, picks the byte order
// from the TIFF header, follows the IFD offset and scans the directory
// entries for tag 0x0112. Any short read, invalid marker or out-of-range
// value returns Unspecified.
func Read(r io.Reader) Orientation {
	var soi uint16
	if err := binary.Read(r, binary.BigEndian, &soi); err != nil {
		return Unspecified
	}
	if soi != markerSOI {
		return Unspecified
	}

	// Walk marker segments until APP1.
	for {
		var marker, size uint16
		if err := binary.Read(r, binary.BigEndian, &marker); err != nil {
			return Unspecified
		}
		if err := binary.Read(r, binary.BigEndian, &size); err != nil {
			return Unspecified
		}
		if marker>>8 != 0xff {
			return Unspecified
		}
		if marker == markerAPP1 {
			break
		}
		if size < 2 {
			return Unspecified
		}
		if _, err := io.CopyN(io.Discard, r, int64(size-2)); err != nil {
			return Unspecified
		}
	}

	// "Exif\0\0" signature.
	var header uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return Unspecified
	}
	if header != exifHeader {
		return Unspecified
	}
	if _, err := io.CopyN(io.Discard, r, 2); err != nil {
		return Unspecified
	}

	// TIFF header: byte order indicator, then the 0x002a magic.
	var indicator uint16
	if err := binary.Read(r, binary.BigEndian, &indicator); err != nil {
		return Unspecified
	}
	var byteOrder binary.ByteOrder
	switch indicator {
	case byteOrderBE:
		byteOrder = binary.BigEndian
	case byteOrderLE:
		byteOrder = binary.LittleEndian
	default:
		return Unspecified
	}
	if _, err := io.CopyN(io.Discard, r, 2); err != nil {
		return Unspecified
	}

	// Offset to the first IFD, relative to the TIFF header start.
	var offset uint32
	if err := binary.Read(r, byteOrder, &offset); err != nil {
		return Unspecified
	}
	if offset < 8 {
		return Unspecified
	}
	if _, err := io.CopyN(io.Discard, r, int64(offset-8)); err != nil {
		return Unspecified
	}

	var numTags uint16
	if err := binary.Read(r, byteOrder, &numTags); err != nil {
		return Unspecified
	}

	// Directory entries are 12 bytes: tag(2) type(2) count(4) value(4).
	for i := 0; i < int(numTags); i++ {
		var tag uint16
		if err := binary.Read(r, byteOrder, &tag); err != nil {
			return Unspecified
		}
		if tag != orientationTag {
			if _, err := io.CopyN(io.Discard, r, 10); err != nil {
				return Unspecified
			}
			continue
		}
		if _, err := io.CopyN(io.Discard, r, 6); err != nil {
			return Unspecified
		}
		var val uint16
		if err := binary.Read(r, byteOrder, &val); err != nil {
			return Unspecified
		}
		if val < 1 || val > 8 {
			return Unspecified
		}
		return Orientation(val)
	}
	return Unspecified
}

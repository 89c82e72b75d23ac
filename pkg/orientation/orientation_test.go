package orientation

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

// exifSegment builds an APP1 segment holding a TIFF block with a single
// orientation entry.
func exifSegment(tag uint16, little bool) []byte {
	var tiff bytes.Buffer
	var bo binary.ByteOrder = binary.BigEndian
	if little {
		tiff.Write([]byte{0x49, 0x49}) // "II"
		bo = binary.LittleEndian
	} else {
		tiff.Write([]byte{0x4d, 0x4d}) // "MM"
	}
	binary.Write(&tiff, bo, uint16(0x002a))
	binary.Write(&tiff, bo, uint32(8)) // IFD starts right after the header
	binary.Write(&tiff, bo, uint16(1)) // one directory entry
	binary.Write(&tiff, bo, uint16(0x0112))
	binary.Write(&tiff, bo, uint16(3)) // SHORT
	binary.Write(&tiff, bo, uint32(1))
	binary.Write(&tiff, bo, tag)
	tiff.Write([]byte{0, 0}) // value field padding

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)

	var seg bytes.Buffer
	binary.Write(&seg, binary.BigEndian, uint16(0xffe1))
	binary.Write(&seg, binary.BigEndian, uint16(len(payload)+2))
	seg.Write(payload)
	return seg.Bytes()
}

// exifJPEG is a minimal JPEG prefix: SOI followed by the EXIF APP1 segment.
// Read never needs the image data that would follow.
func exifJPEG(tag uint16, little bool) []byte {
	return append([]byte{0xff, 0xd8}, exifSegment(tag, little)...)
}

func TestReadAllTags(t *testing.T) {
	for tag := uint16(1); tag <= 8; tag++ {
		if got := Read(bytes.NewReader(exifJPEG(tag, false))); got != Orientation(tag) {
			t.Errorf("big-endian tag %d: got %v", tag, got)
		}
		if got := Read(bytes.NewReader(exifJPEG(tag, true))); got != Orientation(tag) {
			t.Errorf("little-endian tag %d: got %v", tag, got)
		}
	}
}

func TestReadNoMetadata(t *testing.T) {
	// A plain encoded JPEG carries no APP1 segment.
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got := Read(bytes.NewReader(buf.Bytes())); got != Unspecified {
		t.Errorf("expected Unspecified, got %v", got)
	}
}

func TestReadNotJPEG(t *testing.T) {
	inputs := [][]byte{
		nil,
		{0x89, 0x50, 0x4e, 0x47}, // PNG signature
		{0xff},
		[]byte("not an image at all"),
	}
	for _, in := range inputs {
		if got := Read(bytes.NewReader(in)); got != Unspecified {
			t.Errorf("input %v: expected Unspecified, got %v", in, got)
		}
	}
}

func TestReadTruncated(t *testing.T) {
	full := exifJPEG(6, false)
	// The trailing two bytes are value-field padding; everything before the
	// value read itself must fail soft.
	for n := 0; n < len(full)-2; n++ {
		if got := Read(bytes.NewReader(full[:n])); got != Unspecified {
			t.Errorf("truncated at %d bytes: expected Unspecified, got %v", n, got)
		}
	}
}

func TestReadBadByteOrder(t *testing.T) {
	data := exifJPEG(6, false)
	// The byte order indicator sits right after SOI(2) + marker(2) + size(2)
	// + "Exif\0\0"(6).
	data[12], data[13] = 'X', 'X'
	if got := Read(bytes.NewReader(data)); got != Unspecified {
		t.Errorf("expected Unspecified, got %v", got)
	}
}

func TestReadOutOfRangeValue(t *testing.T) {
	for _, tag := range []uint16{0, 9, 200} {
		if got := Read(bytes.NewReader(exifJPEG(tag, false))); got != Unspecified {
			t.Errorf("value %d: expected Unspecified, got %v", tag, got)
		}
	}
}

func TestDimensions(t *testing.T) {
	tests := []struct {
		o          Orientation
		w, h       int
		wantW, wantH int
	}{
		{Unspecified, 4, 3, 4, 3},
		{Normal, 4, 3, 4, 3},
		{FlipH, 4, 3, 4, 3},
		{Rotate180, 4, 3, 4, 3},
		{FlipV, 4, 3, 4, 3},
		{Transpose, 4, 3, 3, 4},
		{Rotate270, 4, 3, 3, 4},
		{Transverse, 4, 3, 3, 4},
		{Rotate90, 4, 3, 3, 4},
	}
	for _, tt := range tests {
		w, h := tt.o.Dimensions(tt.w, tt.h)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("%v.Dimensions(%d, %d) = %d, %d, want %d, %d",
				tt.o, tt.w, tt.h, w, h, tt.wantW, tt.wantH)
		}
	}
}

var (
	red   = color.NRGBA{255, 0, 0, 255}
	green = color.NRGBA{0, 255, 0, 255}
)

// twoPixel is a 2x1 image: red at (0,0), green at (1,0).
func twoPixel() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, red)
	img.SetNRGBA(1, 0, green)
	return img
}

func pixelAt(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

func TestApplyPixels(t *testing.T) {
	src := twoPixel()

	if got := pixelAt(Normal.Apply(src), 0, 0); got != red {
		t.Errorf("Normal: got %v at origin, want red", got)
	}
	if got := pixelAt(FlipH.Apply(src), 0, 0); got != green {
		t.Errorf("FlipH: got %v at origin, want green", got)
	}
	if got := pixelAt(Rotate180.Apply(src), 0, 0); got != green {
		t.Errorf("Rotate180: got %v at origin, want green", got)
	}
	// FlipV of a single-row image is the identity.
	if got := pixelAt(FlipV.Apply(src), 1, 0); got != green {
		t.Errorf("FlipV: got %v at (1,0), want green", got)
	}

	// Rotate270 corrects tag 6 by rotating 90 degrees clockwise: the left
	// pixel ends up on top.
	cw := Rotate270.Apply(src)
	if b := cw.Bounds(); b.Dx() != 1 || b.Dy() != 2 {
		t.Fatalf("Rotate270: bounds %v, want 1x2", b)
	}
	if got := pixelAt(cw, 0, 0); got != red {
		t.Errorf("Rotate270: got %v at top, want red", got)
	}
	if got := pixelAt(cw, 0, 1); got != green {
		t.Errorf("Rotate270: got %v at bottom, want green", got)
	}

	// Rotate90 corrects tag 8 by rotating counter-clockwise: the right
	// pixel ends up on top.
	ccw := Rotate90.Apply(src)
	if got := pixelAt(ccw, 0, 0); got != green {
		t.Errorf("Rotate90: got %v at top, want green", got)
	}
}

func TestApplyInvolutions(t *testing.T) {
	// Flips, Rotate180, Transpose and Transverse undo themselves; applying
	// each twice must restore the source.
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.SetNRGBA(0, 0, red)
	src.SetNRGBA(2, 1, green)
	src.SetNRGBA(1, 0, color.NRGBA{0, 0, 255, 255})

	for _, o := range []Orientation{FlipH, FlipV, Rotate180, Transpose, Transverse} {
		twice := o.Apply(o.Apply(src))
		for y := 0; y < 2; y++ {
			for x := 0; x < 3; x++ {
				if pixelAt(twice, x, y) != pixelAt(src, x, y) {
					t.Errorf("%v applied twice changed pixel (%d,%d)", o, x, y)
				}
			}
		}
	}

	// Rotate90 and Rotate270 are inverse to each other.
	restored := Rotate90.Apply(Rotate270.Apply(src))
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			if pixelAt(restored, x, y) != pixelAt(src, x, y) {
				t.Errorf("Rotate270 then Rotate90 changed pixel (%d,%d)", x, y)
			}
		}
	}
}

func TestString(t *testing.T) {
	if Rotate270.String() != "rotate-270" {
		t.Errorf("unexpected name %q", Rotate270.String())
	}
	if Orientation(42).String() != "unspecified" {
		t.Errorf("out-of-range orientation should stringify as unspecified")
	}
}

// Package format identifies image and video containers from their leading
// bytes so the pipeline never trusts file extensions or reported MIME types.
package format

import (
	"bytes"
	"io"
	"os"
	"strings"
)

// Format is a short container name such as "jpg" or "mp4".
type Format string

const (
	Unknown Format = ""
	JXL     Format = "jxl"
	PNG     Format = "png"
	JPEG    Format = "jpg"
	TIFF    Format = "tiff"
	GIF     Format = "gif"
	BMP     Format = "bmp"
	WebP    Format = "webp"
	AVI     Format = "avi"
	MKV     Format = "mkv"
	HEIC    Format = "heic"
	AVIF    Format = "avif"
	MP4     Format = "mp4"
)

// HeaderSize is the number of leading bytes Detect inspects.
const HeaderSize = 32

type signature struct {
	magic  []byte
	format Format
}

// Unambiguous prefixes. RIFF and ISOBMFF containers are resolved afterwards.
var signatures = []signature{
	{[]byte{0x00, 0x00, 0x00, 0x0c, 'J', 'X', 'L', ' ', 0x0d, 0x0a, 0x87, 0x0a}, JXL},
	{[]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, PNG},
	{[]byte{0xff, 0xd8, 0xff}, JPEG},
	{[]byte{0xff, 0x0a}, JXL},
	{[]byte{'I', 'I', 0x2a, 0x00}, TIFF},
	{[]byte{'M', 'M', 0x00, 0x2a}, TIFF},
	{[]byte("GIF8"), GIF},
	{[]byte("BM"), BMP},
}

var (
	riffMagic     = []byte("RIFF")
	matroskaMagic = []byte{0x1a, 0x45, 0xdf, 0xa3}
	ftypBox       = []byte("ftyp")
)

var quickTimeAtoms = map[string]struct{}{
	"moov": {}, "mdat": {}, "wide": {}, "skip": {}, "free": {}, "pnot": {},
}

// Detect classifies a header. It returns Unknown when nothing matches.
func Detect(header []byte) Format {
	for _, sig := range signatures {
		if bytes.HasPrefix(header, sig.magic) {
			return sig.format
		}
	}
	if bytes.HasPrefix(header, riffMagic) && len(header) >= 12 {
		switch string(header[8:12]) {
		case "WEBP", "WEBX":
			return WebP
		case "AVI ":
			return AVI
		}
	}
	if bytes.HasPrefix(header, matroskaMagic) {
		return MKV
	}
	if len(header) >= 12 && bytes.Equal(header[4:8], ftypBox) {
		switch strings.ToLower(string(header[8:12])) {
		case "heic", "heix", "mif1", "msf1":
			return HEIC
		case "avif", "avis":
			return AVIF
		default:
			return MP4
		}
	}
	if len(header) >= 8 {
		if _, ok := quickTimeAtoms[string(header[4:8])]; ok {
			return MP4
		}
	}
	return Unknown
}

// DetectFile reads the header of path and classifies it.
func DetectFile(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return Unknown, err
	}
	defer f.Close()
	header := make([]byte, HeaderSize)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return Unknown, err
	}
	return Detect(header[:n]), nil
}

// IsVideoContainer reports whether f holds video streams.
func (f Format) IsVideoContainer() bool {
	switch f {
	case MP4, MKV, AVI:
		return true
	default:
		return false
	}
}

// Extension returns the file extension including the leading dot.
func (f Format) Extension() string {
	if f == Unknown {
		return ""
	}
	return "." + string(f)
}

func (f Format) String() string {
	if f == Unknown {
		return "unknown"
	}
	return string(f)
}

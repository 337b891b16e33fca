package scanning

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	"golang.org/x/image/draw"
)

const (
	// maxDimension bounds the longest side of a normalized image.
	maxDimension = 1024
	// jpegQuality is the re-encode quality on encoding/jpeg's 1-100 scale
	// (0.8 of full quality).
	jpegQuality = 80
)

// NormalizedImage is a bounded-dimension JPEG re-encoding of an upload,
// ready for network transfer and model input. Immutable once produced.
type NormalizedImage struct {
	data   []byte
	width  int
	height int
}

// Width returns the pixel width of the normalized image.
func (n NormalizedImage) Width() int { return n.width }

// Height returns the pixel height of the normalized image.
func (n NormalizedImage) Height() int { return n.height }

// Bytes returns the encoded JPEG bytes.
func (n NormalizedImage) Bytes() []byte { return n.data }

// MIMEType returns the MIME type of the normalized encoding.
func (n NormalizedImage) MIMEType() string { return "image/jpeg" }

// Payload returns the base64 body with no data-URI prefix, the form the
// extraction backends expect.
func (n NormalizedImage) Payload() string {
	return base64.StdEncoding.EncodeToString(n.data)
}

// DataURI returns the self-describing data URI representation.
func (n NormalizedImage) DataURI() string {
	return "data:image/jpeg;base64," + n.Payload()
}

// Normalize decodes an upload and produces a NormalizedImage whose
// longest side is at most maxDimension pixels. Images already within
// bounds keep their exact dimensions. Decode failures return a
// *DecodeError and no partial output.
func Normalize(data []byte, contentType string) (NormalizedImage, error) {
	img, err := decodeUpload(data, contentType)
	if err != nil {
		return NormalizedImage{}, &DecodeError{Err: err}
	}

	img = clampImage(img)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return NormalizedImage{}, &DecodeError{Err: fmt.Errorf("encoding JPEG: %w", err)}
	}

	bounds := img.Bounds()
	return NormalizedImage{
		data:   buf.Bytes(),
		width:  bounds.Dx(),
		height: bounds.Dy(),
	}, nil
}

// decodeUpload turns raw upload bytes into pixels, handling the formats
// phone cameras and scanners actually produce: JPEG, PNG, GIF, HEIC/HEIF
// and single-page PDF scans.
func decodeUpload(data []byte, contentType string) (image.Image, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))

	if mimeType == "application/pdf" {
		return pdfFirstPage(data)
	}

	// HEIC is common on iPhones and not supported by the standard image
	// package.
	if isHEICFormat(data) || isHEICMimeType(mimeType) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") || strings.Contains(err.Error(), "unsupported") {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF. Error: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// pdfFirstPage renders the first page of a PDF scan as an image.
func pdfFirstPage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// clampImage scales an image down so its longest side is at most
// maxDimension pixels, preserving aspect ratio. Images already within
// bounds are returned unchanged; nothing is ever upscaled.
func clampImage(img image.Image) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= maxDimension && height <= maxDimension {
		return img
	}

	var targetW, targetH int
	if width > height {
		targetW = maxDimension
		targetH = int(float64(height) * float64(maxDimension) / float64(width))
	} else {
		targetH = maxDimension
		targetW = int(float64(width) * float64(maxDimension) / float64(height))
	}
	if targetW < 1 {
		targetW = 1
	}
	if targetH < 1 {
		targetH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// isHEICFormat checks the ftyp box for HEIC/HEIF brands.
func isHEICFormat(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	if string(data[4:8]) != "ftyp" {
		return false
	}
	brand := string(data[8:12])
	return brand == "heic" || brand == "heif" || brand == "mif1" || brand == "msf1"
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format.
func isHEICMimeType(mimeType string) bool {
	return mimeType == "image/heic" || mimeType == "image/heif" ||
		strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

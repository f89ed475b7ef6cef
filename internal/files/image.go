package files

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math/bits"
	"strconv"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DuplicateDistance is the largest Hamming distance between two fingerprints
// still reported as the same picture.
const DuplicateDistance = 5

// imageInfo is what an upload records about its picture.
type imageInfo struct {
	Format      string
	Width       int
	Height      int
	Fingerprint string
}

// inspectImage decodes data and computes its difference hash.
func inspectImage(data []byte) (*imageInfo, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	return &imageInfo{
		Format:      format,
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Fingerprint: fmt.Sprintf("%016x", differenceHash(img)),
	}, nil
}

// differenceHash computes a 64-bit dHash: each bit says whether a pixel of a
// 9x8 grayscale thumbnail is brighter than its right neighbour.
func differenceHash(img image.Image) uint64 {
	small := image.NewRGBA(image.Rect(0, 0, 9, 8))
	draw.BiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Over, nil)

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if luma(small, x, y) > luma(small, x+1, y) {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash
}

// luma uses the ITU-R BT.601 weights.
func luma(img *image.RGBA, x, y int) float64 {
	r, g, b, _ := img.At(x, y).RGBA()
	return 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
}

// fingerprintDistance returns the Hamming distance of two hex fingerprints,
// or -1 if either is missing or malformed.
func fingerprintDistance(a, b string) int {
	if a == "" || b == "" {
		return -1
	}
	x, err := strconv.ParseUint(a, 16, 64)
	if err != nil {
		return -1
	}
	y, err := strconv.ParseUint(b, 16, 64)
	if err != nil {
		return -1
	}
	return bits.OnesCount64(x ^ y)
}

// thumbnail scales data to fit within maxSize keeping the aspect ratio and
// returns it JPEG-encoded. Smaller images are only re-encoded.
func thumbnail(data []byte, maxSize int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	newWidth, newHeight := width, height
	if width > maxSize || height > maxSize {
		if width > height {
			newWidth = maxSize
			newHeight = max(1, int(float64(height)*float64(maxSize)/float64(width)))
		} else {
			newHeight = maxSize
			newWidth = max(1, int(float64(width)*float64(maxSize)/float64(height)))
		}
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

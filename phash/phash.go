// Package phash implements the 16x16 greyscale average-hash used by the plan
// runner to gate step completion on visual similarity to a reference
// checkpoint screenshot. It is deliberately a cheap, resolution-robust
// fingerprint rather than pixel equality.
package phash

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"math/bits"

	"golang.org/x/image/draw"
)

const (
	hashSize = 16
	hashBits = hashSize * hashSize // 256
)

// Hash is a 256-bit average-hash packed into four uint64 words.
type Hash [4]uint64

// DecodeBase64PNG decodes a base64-encoded PNG (or JPEG) image. It returns
// (nil, err) if the payload cannot be decoded; callers treat that as "no
// fingerprint available" rather than a fatal error.
func DecodeBase64PNG(b64 string) (image.Image, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	return DecodeImage(raw)
}

// DecodeImage decodes a raw-bytes PNG or JPEG image, as captured directly
// from a screenshot call.
func DecodeImage(raw []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return img, nil
}

// AHash computes the 16x16 average-hash of img: downscale to 16x16
// greyscale, threshold each pixel against the mean, pack the 256 bits
// row-major into four uint64 words.
func AHash(img image.Image) Hash {
	small := image.NewGray(image.Rect(0, 0, hashSize, hashSize))
	draw.BiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Over, nil)

	var sum int
	pixels := make([]uint8, 0, hashBits)
	for y := 0; y < hashSize; y++ {
		for x := 0; x < hashSize; x++ {
			g := small.GrayAt(x, y).Y
			pixels = append(pixels, g)
			sum += int(g)
		}
	}
	mean := sum / hashBits

	var h Hash
	for i, g := range pixels {
		if int(g) >= mean {
			word := i / 64
			bit := uint(i % 64)
			h[word] |= 1 << bit
		}
	}
	return h
}

// HammingDistance returns the number of differing bits between a and b, in
// [0, 256].
func HammingDistance(a, b Hash) int {
	dist := 0
	for i := range a {
		dist += bits.OnesCount64(a[i] ^ b[i])
	}
	return dist
}

// Similarity converts a Hamming distance into a [0,1] similarity score:
// 1 - distance/256, floored at 0.
func Similarity(a, b Hash) float64 {
	dist := HammingDistance(a, b)
	score := 1.0 - float64(dist)/float64(hashBits)
	if score < 0 {
		return 0
	}
	return score
}

// EncodePNGBase64 is a small convenience used by tests and debug tooling to
// round-trip an image.Image back into the base64 PNG form the checkpoint
// and frame payloads carry on the wire.
func EncodePNGBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// SolidImage returns a uniform-color image, handy for constructing
// deterministic fixtures in tests.
func SolidImage(w, h int, c color.Gray) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

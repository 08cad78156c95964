package vision

import (
	"fmt"

	"github.com/disintegration/imaging"
)

// ColourSegmenter estimates road-surface coverage without a trained model:
// low-saturation, mid-luminance pixels in the lower part of the frame are
// counted as asphalt. It is the fallback when no segmentation model is
// configured and implements quality.RoadSegmenter.
type ColourSegmenter struct {
	// SampleWidth is the width the image is downscaled to before sampling.
	SampleWidth int
}

// NewColourSegmenter returns a segmenter with the default sample size.
func NewColourSegmenter() *ColourSegmenter {
	return &ColourSegmenter{SampleWidth: 256}
}

// RoadSurfacePct returns the estimated road coverage as a percentage of the
// whole frame. Only pixels in the bottom 60% of the frame can contribute,
// since street-level road surface sits below the horizon.
func (s *ColourSegmenter) RoadSurfacePct(path string) (float64, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return 0, fmt.Errorf("decode image %s: %w", path, err)
	}

	sampleW := s.SampleWidth
	if sampleW <= 0 {
		sampleW = 256
	}
	small := imaging.Resize(img, sampleW, 0, imaging.Box)
	nrgba := imaging.Clone(small)

	bounds := nrgba.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return 0, fmt.Errorf("image %s has no pixels after resize", path)
	}

	horizonY := int(float64(h) * 0.4)
	var roadLike int
	for y := horizonY; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := 0; x < w; x++ {
			r := int(row[x*4])
			g := int(row[x*4+1])
			b := int(row[x*4+2])

			maxC, minC := r, r
			for _, c := range []int{g, b} {
				if c > maxC {
					maxC = c
				}
				if c < minC {
					minC = c
				}
			}
			lum := (r + g + b) / 3

			// Asphalt is grey: channels close together, neither black nor white.
			if maxC-minC < 40 && lum >= 40 && lum <= 200 {
				roadLike++
			}
		}
	}

	return float64(roadLike) / float64(w*h) * 100, nil
}

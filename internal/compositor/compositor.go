// internal/compositor/compositor.go
package compositor

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	_ "image/jpeg" // register decoder for jpeg references

	"github.com/reelforge/reelforge/internal/models"
)

// Canvas geometry: references are laid onto a master frame, then the
// camera crop is scaled down to the output frame.
const (
	masterW = 1920
	masterH = 1080
	outputW = 1280
	outputH = 720
)

// Compose lays the reference image(s) onto the master canvas (side by side
// for two subjects, full frame for one), crops it according to the scene's
// camera transform, and applies the mood overlay keyed on the description.
// Purely deterministic; used only when no video stage runs.
func Compose(female, male image.Image, transformID int, description string) (image.Image, error) {
	if female == nil && male == nil {
		return nil, fmt.Errorf("no reference image to composite")
	}

	master := image.NewRGBA(image.Rect(0, 0, masterW, masterH))
	draw.Draw(master, master.Bounds(), &image.Uniform{color.RGBA{15, 15, 15, 255}}, image.Point{}, draw.Src)

	hasFemale := female != nil
	hasMale := male != nil
	switch {
	case hasFemale && hasMale:
		drawCover(master, female, image.Rect(0, 0, masterW/2, masterH))
		drawCover(master, male, image.Rect(masterW/2, 0, masterW, masterH))
	case hasFemale:
		drawCover(master, female, master.Bounds())
	default:
		drawCover(master, male, master.Bounds())
	}

	crop := cropRect(transformID, hasFemale && hasMale)
	final := image.NewRGBA(image.Rect(0, 0, outputW, outputH))
	scaleInto(final, master, crop)

	applyOverlay(final, overlayFor(description))
	return final, nil
}

// ComposePNG composites and encodes to a PNG data URI, the artifact form
// the rest of the pipeline traffics in.
func ComposePNG(female, male image.Image, transformID int, description string) (string, error) {
	img, err := Compose(female, male, transformID, description)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encoding composite: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeReference decodes a caller-supplied reference image.
func DecodeReference(ref *models.ReferenceImage) (image.Image, error) {
	if ref == nil {
		return nil, nil
	}
	img, _, err := image.Decode(bytes.NewReader(ref.Data))
	if err != nil {
		return nil, fmt.Errorf("decoding reference image: %w", err)
	}
	return img, nil
}

// cropRect returns the predefined lens crop for a camera transform. Crops
// differ depending on whether one or two subjects share the frame.
func cropRect(transformID int, dual bool) image.Rectangle {
	rect := func(x, y, w, h float64) image.Rectangle {
		return image.Rect(int(x), int(y), int(x+w), int(y+h))
	}

	switch transformID {
	case models.TransformDolly:
		w, h := masterW*0.6, masterH*0.6
		return rect((masterW-w)/2, (masterH-h)*0.4, w, h)
	case models.TransformCloseFemale:
		if dual {
			return rect(masterW*0.05, masterH*0.1, masterW*0.4, masterH*0.7)
		}
		w, h := masterW*0.5, masterH*0.5
		return rect((masterW-w)/2, masterH*0.1, w, h)
	case models.TransformCloseMale:
		if dual {
			return rect(masterW*0.55, masterH*0.1, masterW*0.4, masterH*0.7)
		}
		w, h := masterW*0.5, masterH*0.5
		return rect((masterW-w)/2, masterH*0.1, w, h)
	case models.TransformMid:
		if dual {
			// wide enough to keep both sides of the split visible
			w, h := masterW*0.95, masterH*0.95
			return rect((masterW-w)/2, (masterH-h)*0.05, w, h)
		}
		w, h := masterW*0.8, masterH*0.8
		return rect((masterW-w)/2, (masterH-h)*0.2, w, h)
	default: // wide: the full master frame
		return image.Rect(0, 0, masterW, masterH)
	}
}

// overlayFor selects the translucent grading overlay by description
// keywords: romantic scenes warm, somber scenes cool, neutral otherwise.
func overlayFor(description string) color.RGBA {
	d := strings.ToLower(description)
	switch {
	case strings.Contains(d, "wedding") || strings.Contains(d, "love") ||
		strings.Contains(d, "romance") || strings.Contains(d, "婚"):
		return color.RGBA{255, 220, 200, 38} // warm rose, ~15%
	case strings.Contains(d, "night") || strings.Contains(d, "dark") || strings.Contains(d, "sad"):
		return color.RGBA{20, 30, 60, 77} // cool blue, ~30%
	default:
		return color.RGBA{255, 200, 150, 13} // faint neutral warmth, ~5%
	}
}

// drawCover draws src into dst's rect the way CSS object-fit: cover does:
// scale to fill, cropping the overflowing axis around the center.
func drawCover(dst *image.RGBA, src image.Image, rect image.Rectangle) {
	sb := src.Bounds()
	srcW, srcH := float64(sb.Dx()), float64(sb.Dy())
	dstRatio := float64(rect.Dx()) / float64(rect.Dy())
	srcRatio := srcW / srcH

	var sx, sy, sw, sh float64
	if srcRatio > dstRatio {
		sh = srcH
		sw = srcH * dstRatio
		sy = 0
		sx = (srcW - sw) / 2
	} else {
		sw = srcW
		sh = srcW / dstRatio
		sx = 0
		sy = (srcH - sh) / 2
	}

	window := image.Rect(sb.Min.X+int(sx), sb.Min.Y+int(sy), sb.Min.X+int(sx+sw), sb.Min.Y+int(sy+sh))
	scaleInto(dst.SubImage(rect).(*image.RGBA), src, window)
}

// scaleInto scales the window of src onto the whole of dst using
// nearest-neighbor sampling. Good enough for a fallback composite.
func scaleInto(dst *image.RGBA, src image.Image, window image.Rectangle) {
	db := dst.Bounds()
	dw, dh := db.Dx(), db.Dy()
	ww, wh := window.Dx(), window.Dy()
	if dw == 0 || dh == 0 || ww == 0 || wh == 0 {
		return
	}

	for y := 0; y < dh; y++ {
		srcY := window.Min.Y + y*wh/dh
		for x := 0; x < dw; x++ {
			srcX := window.Min.X + x*ww/dw
			dst.Set(db.Min.X+x, db.Min.Y+y, src.At(srcX, srcY))
		}
	}
}

// applyOverlay alpha-blends a single translucent color over the frame.
func applyOverlay(img *image.RGBA, overlay color.RGBA) {
	alpha := float64(overlay.A) / 255
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.RGBAAt(x, y).R, img.RGBAAt(x, y).G, img.RGBAAt(x, y).B, img.RGBAAt(x, y).A
			img.SetRGBA(x, y, color.RGBA{
				R: blend(r, overlay.R, alpha),
				G: blend(g, overlay.G, alpha),
				B: blend(bl, overlay.B, alpha),
				A: a,
			})
		}
	}
}

func blend(base, over uint8, alpha float64) uint8 {
	return uint8(float64(base)*(1-alpha) + float64(over)*alpha)
}

// internal/compositor/compositor_test.go
package compositor

import (
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelforge/reelforge/internal/models"
)

func solidImage(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestComposeOutputGeometry(t *testing.T) {
	female := solidImage(640, 480, color.RGBA{200, 50, 50, 255})
	male := solidImage(300, 500, color.RGBA{50, 50, 200, 255})

	for _, transform := range []int{
		models.TransformWide,
		models.TransformDolly,
		models.TransformCloseFemale,
		models.TransformCloseMale,
		models.TransformMid,
	} {
		img, err := Compose(female, male, transform, "a quiet street")
		require.NoError(t, err)
		assert.Equal(t, 1280, img.Bounds().Dx(), "transform %d", transform)
		assert.Equal(t, 720, img.Bounds().Dy(), "transform %d", transform)
	}
}

func TestComposeSingleSubject(t *testing.T) {
	female := solidImage(640, 480, color.RGBA{200, 50, 50, 255})

	img, err := Compose(female, nil, models.TransformWide, "plain")
	require.NoError(t, err)
	assert.Equal(t, 1280, img.Bounds().Dx())

	img, err = Compose(nil, female, models.TransformCloseMale, "plain")
	require.NoError(t, err)
	assert.Equal(t, 720, img.Bounds().Dy())
}

func TestComposeWithoutReferencesFails(t *testing.T) {
	_, err := Compose(nil, nil, models.TransformWide, "anything")
	require.Error(t, err)
}

func TestDualLayoutSplitsCanvas(t *testing.T) {
	red := solidImage(100, 100, color.RGBA{255, 0, 0, 255})
	blue := solidImage(100, 100, color.RGBA{0, 0, 255, 255})

	img, err := Compose(red, blue, models.TransformWide, "plain")
	require.NoError(t, err)

	// wide crop keeps the side-by-side layout: red left, blue right
	left := img.At(img.Bounds().Dx()/4, img.Bounds().Dy()/2)
	right := img.At(img.Bounds().Dx()*3/4, img.Bounds().Dy()/2)
	lr, _, lb, _ := left.RGBA()
	rr, _, rb, _ := right.RGBA()
	assert.Greater(t, lr, lb, "left half should stay red-dominant")
	assert.Greater(t, rb, rr, "right half should stay blue-dominant")
}

func TestOverlaySelection(t *testing.T) {
	warm := overlayFor("a wedding in spring")
	cool := overlayFor("a sad night alone")
	neutral := overlayFor("grocery shopping")

	assert.Equal(t, uint8(38), warm.A)
	assert.Equal(t, uint8(77), cool.A)
	assert.Equal(t, uint8(13), neutral.A)

	assert.Equal(t, warm, overlayFor("婚禮場面"))
}

func TestComposePNGProducesDataURI(t *testing.T) {
	female := solidImage(64, 64, color.RGBA{180, 120, 90, 255})
	uri, err := ComposePNG(female, nil, models.TransformMid, "night walk")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))
	assert.Greater(t, len(uri), 100)
}

func TestDecodeReferenceNilPassesThrough(t *testing.T) {
	img, err := DecodeReference(nil)
	require.NoError(t, err)
	assert.Nil(t, img)

	_, err = DecodeReference(&models.ReferenceImage{Data: []byte("not an image"), MIMEType: "image/png"})
	require.Error(t, err)
}

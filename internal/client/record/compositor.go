package record

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	canvasBackground = color.RGBA{R: 16, G: 16, B: 20, A: 255}
	cellPlaceholder  = color.RGBA{R: 38, G: 38, B: 46, A: 255}
	labelStrip       = color.RGBA{R: 0, G: 0, B: 0, A: 200}
	labelText        = color.RGBA{R: 235, G: 235, B: 235, A: 255}
)

const labelStripHeight = 18

// Compositor renders all current video sources into one fixed-size
// frame: equal cells in a ceil(sqrt(n))-column grid, each cropped
// cover-fit and labeled with the participant's display name.
type Compositor struct {
	width  int
	height int
	scaler draw.Scaler
}

func NewCompositor(width, height int) *Compositor {
	return &Compositor{
		width:  width,
		height: height,
		scaler: draw.ApproxBiLinear,
	}
}

// Tile is one participant's slot in the grid.
type Tile struct {
	Label string
	Frame *image.RGBA // nil renders the camera-off placeholder
}

func gridSize(n int) (cols, rows int) {
	if n <= 0 {
		return 1, 1
	}
	cols = int(math.Ceil(math.Sqrt(float64(n))))
	rows = (n + cols - 1) / cols
	return cols, rows
}

// Compose renders the tiles onto a fresh canvas. Participants who left
// are simply absent from the slice; the layout reflows every call.
func (c *Compositor) Compose(tiles []Tile) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{canvasBackground}, image.Point{}, draw.Src)

	if len(tiles) == 0 {
		return canvas
	}

	cols, rows := gridSize(len(tiles))
	cellW := c.width / cols
	cellH := c.height / rows

	for i, tile := range tiles {
		col := i % cols
		row := i / cols
		cell := image.Rect(col*cellW, row*cellH, (col+1)*cellW, (row+1)*cellH)
		c.drawCell(canvas, cell, tile)
	}
	return canvas
}

func (c *Compositor) drawCell(canvas *image.RGBA, cell image.Rectangle, tile Tile) {
	if tile.Frame == nil {
		draw.Draw(canvas, cell, &image.Uniform{cellPlaceholder}, image.Point{}, draw.Src)
	} else {
		src := tile.Frame
		c.scaler.Scale(canvas, cell, src, coverCrop(src.Bounds(), cell), draw.Src, nil)
	}
	c.drawLabel(canvas, cell, tile.Label)
}

// coverCrop picks the centered sub-rectangle of src whose aspect ratio
// matches dst, so scaling fills the cell without letterboxing.
func coverCrop(src, dst image.Rectangle) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	dw, dh := dst.Dx(), dst.Dy()
	if sw == 0 || sh == 0 || dw == 0 || dh == 0 {
		return src
	}
	// Compare aspect ratios via cross-multiplication to stay integral.
	if sw*dh > dw*sh {
		// Source is wider: crop width.
		cw := dw * sh / dh
		x0 := src.Min.X + (sw-cw)/2
		return image.Rect(x0, src.Min.Y, x0+cw, src.Max.Y)
	}
	// Source is taller: crop height.
	ch := dh * sw / dw
	y0 := src.Min.Y + (sh-ch)/2
	return image.Rect(src.Min.X, y0, src.Max.X, y0+ch)
}

func (c *Compositor) drawLabel(canvas *image.RGBA, cell image.Rectangle, label string) {
	if label == "" {
		return
	}
	strip := image.Rect(cell.Min.X, cell.Max.Y-labelStripHeight, cell.Max.X, cell.Max.Y)
	draw.Draw(canvas, strip, &image.Uniform{labelStrip}, image.Point{}, draw.Over)

	d := font.Drawer{
		Dst:  canvas,
		Src:  &image.Uniform{labelText},
		Face: basicfont.Face7x13,
		Dot: fixed.Point26_6{
			X: fixed.I(cell.Min.X + 6),
			Y: fixed.I(cell.Max.Y - 5),
		},
	}
	d.DrawString(label)
}

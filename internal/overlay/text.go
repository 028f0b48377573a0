// Package overlay rasterises diagnostic text onto raw RGB frames before
// they enter the encoder.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"strings"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"framecast/pkg/models"
)

// Position anchors an overlay on the frame.
type Position int

const (
	LeftTop Position = iota
	LeftBottom
	RightTop
	RightBottom
	Center
)

// Layout constants shared with the browser viewers, which reserve these
// regions when drawing their own chrome.
const (
	margin     = 50
	anchorBoxW = 300
	anchorBoxH = 100
	lineHeight = 20
)

// Renderer draws strings onto raw frames with a fixed-size TrueType face.
type Renderer struct {
	mu   sync.Mutex
	face font.Face
}

// NewRenderer loads the TrueType font at path and prepares a face at the
// overlay point size.
func NewRenderer(path string) (*Renderer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font: %w", err)
	}
	parsed, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", path, err)
	}
	face := truetype.NewFace(parsed, &truetype.Options{Size: lineHeight})
	return &Renderer{face: face}, nil
}

// RenderString draws content onto the frame's scene plane in white at the
// given anchor. Newlines advance the pen by the fixed line height; glyphs
// falling outside the frame are clipped.
func (r *Renderer) RenderString(frame *models.RawFrame, pos Position, content string) {
	width := int(frame.Camera.Width)
	height := int(frame.Camera.Height)

	penX, penY := penOrigin(pos, width, height)

	r.mu.Lock()
	defer r.mu.Unlock()

	dst := &rgbImage{pix: frame.Scene, width: width, height: height}
	drawer := font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: r.face,
	}
	for i, line := range strings.Split(content, "\n") {
		drawer.Dot = fixed.P(penX, penY+i*lineHeight)
		drawer.DrawString(line)
	}
}

// penOrigin returns the baseline start for an anchor, using a fixed margin
// from the frame edge and a fixed corner box.
func penOrigin(pos Position, width, height int) (int, int) {
	switch pos {
	case LeftBottom:
		return margin, height - anchorBoxH + margin
	case RightTop:
		return width - anchorBoxW + margin, margin
	case RightBottom:
		return width - anchorBoxW + margin, height - anchorBoxH + margin
	case Center:
		return width/2 - anchorBoxW, height/2 - anchorBoxH
	default:
		return margin, margin
	}
}

// rgbImage adapts a packed RGB24 plane to draw.Image so the font drawer
// can write glyphs straight into the frame buffer.
type rgbImage struct {
	pix    []byte
	width  int
	height int
}

func (m *rgbImage) ColorModel() color.Model { return color.RGBAModel }

func (m *rgbImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.width, m.height)
}

func (m *rgbImage) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= m.width || y >= m.height {
		return color.RGBA{}
	}
	i := (y*m.width + x) * 3
	return color.RGBA{R: m.pix[i], G: m.pix[i+1], B: m.pix[i+2], A: 255}
}

func (m *rgbImage) Set(x, y int, c color.Color) {
	if x < 0 || y < 0 || x >= m.width || y >= m.height {
		return
	}
	r, g, b, _ := c.RGBA()
	i := (y*m.width + x) * 3
	m.pix[i] = byte(r >> 8)
	m.pix[i+1] = byte(g >> 8)
	m.pix[i+2] = byte(b >> 8)
}

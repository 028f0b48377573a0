package codec

import (
	"fmt"

	"framecast/pkg/models"
)

// StrideAlign is the byte alignment of the luma stride in converted
// frames. Chroma planes use half the luma stride, which is therefore
// 16-aligned.
const StrideAlign = 32

// AlignedStride returns width rounded up to the stride alignment.
func AlignedStride(width int) int {
	return (width + StrideAlign - 1) &^ (StrideAlign - 1)
}

// ConvertRGBToI420 converts a packed RGB scene plane to planar YUV 4:2:0
// (BT.601 limited range) at the encoder's dimensions. When the source and
// destination dimensions differ — a resolution change raced the render —
// the source is resampled by nearest neighbour, which is what the
// downstream viewer would see for a single transitional frame anyway.
func ConvertRGBToI420(frame *models.RawFrame, dstWidth, dstHeight int) (*models.ConvertedFrame, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	srcWidth := int(frame.Camera.Width)
	srcHeight := int(frame.Camera.Height)
	if dstWidth <= 0 || dstHeight <= 0 || dstWidth%2 != 0 || dstHeight%2 != 0 {
		return nil, fmt.Errorf("invalid destination dimensions %dx%d", dstWidth, dstHeight)
	}

	stride := AlignedStride(dstWidth)
	chromaStride := stride / 2
	out := &models.ConvertedFrame{
		Index:  frame.Index,
		Camera: frame.Camera,
		Width:  dstWidth,
		Height: dstHeight,
		Stride: stride,
		Y:      make([]byte, stride*dstHeight),
		Cb:     make([]byte, chromaStride*dstHeight/2),
		Cr:     make([]byte, chromaStride*dstHeight/2),
	}

	scale := srcWidth != dstWidth || srcHeight != dstHeight
	for y := 0; y < dstHeight; y++ {
		srcY := y
		if scale {
			srcY = y * srcHeight / dstHeight
		}
		row := frame.Scene[srcY*srcWidth*3:]
		for x := 0; x < dstWidth; x++ {
			srcX := x
			if scale {
				srcX = x * srcWidth / dstWidth
			}
			r := int32(row[srcX*3])
			g := int32(row[srcX*3+1])
			b := int32(row[srcX*3+2])

			out.Y[y*stride+x] = clampByte((66*r+129*g+25*b+128)>>8 + 16)
			// Chroma is sampled at the top-left pixel of each 2x2 block.
			if y%2 == 0 && x%2 == 0 {
				ci := (y/2)*chromaStride + x/2
				out.Cb[ci] = clampByte((-38*r-74*g+112*b+128)>>8 + 128)
				out.Cr[ci] = clampByte((112*r-94*g-18*b+128)>>8 + 128)
			}
		}
	}
	return out, nil
}

func clampByte(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

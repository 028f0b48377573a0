// Package protocol implements the binary wire format shared with the
// renderer fleet and the browser control clients. Messages follow the
// protobuf schema in proto/nes.proto; the codec is written directly against
// the protobuf wire format so both ends agree bit-exactly without generated
// code.
package protocol

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"framecast/pkg/models"
)

// Field numbers from proto/nes.proto. Changing any of these breaks every
// deployed renderer.
const (
	cameraFieldMatrix = 1
	cameraFieldWidth  = 2
	cameraFieldHeight = 3
	cameraFieldIsLeft = 4

	requestFieldIndex  = 1
	requestFieldCamera = 2
	requestFieldIsLeft = 3

	frameFieldIndex  = 1
	frameFieldCamera = 2
	frameFieldIsLeft = 3
	frameFieldScene  = 4
	frameFieldDepth  = 5
)

// FrameRequest is one render order sent to a renderer.
type FrameRequest struct {
	Index  uint64
	Camera models.Camera
	IsLeft bool
}

// AppendCamera appends the wire encoding of cam to buf.
func AppendCamera(buf []byte, cam models.Camera) []byte {
	// Packed repeated float: tag, byte length, then fixed32 values.
	buf = protowire.AppendTag(buf, cameraFieldMatrix, protowire.BytesType)
	buf = protowire.AppendVarint(buf, uint64(4*len(cam.Matrix)))
	for _, v := range cam.Matrix {
		buf = protowire.AppendFixed32(buf, math.Float32bits(v))
	}
	buf = protowire.AppendTag(buf, cameraFieldWidth, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(cam.Width))
	buf = protowire.AppendTag(buf, cameraFieldHeight, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(cam.Height))
	if cam.IsLeft {
		buf = protowire.AppendTag(buf, cameraFieldIsLeft, protowire.VarintType)
		buf = protowire.AppendVarint(buf, 1)
	}
	return buf
}

// ParseCamera decodes a Camera message.
func ParseCamera(data []byte) (models.Camera, error) {
	var cam models.Camera
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return cam, fmt.Errorf("camera: bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == cameraFieldMatrix && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return cam, fmt.Errorf("camera: bad matrix: %w", protowire.ParseError(n))
			}
			data = data[n:]
			if len(packed) != 4*models.CameraMatrixSize {
				return cam, fmt.Errorf("camera: matrix has %d bytes, want %d",
					len(packed), 4*models.CameraMatrixSize)
			}
			for i := range cam.Matrix {
				bits, n := protowire.ConsumeFixed32(packed)
				if n < 0 {
					return cam, fmt.Errorf("camera: bad matrix element: %w", protowire.ParseError(n))
				}
				packed = packed[n:]
				cam.Matrix[i] = math.Float32frombits(bits)
			}
		case num == cameraFieldWidth && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return cam, fmt.Errorf("camera: bad width: %w", protowire.ParseError(n))
			}
			data = data[n:]
			cam.Width = uint32(v)
		case num == cameraFieldHeight && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return cam, fmt.Errorf("camera: bad height: %w", protowire.ParseError(n))
			}
			data = data[n:]
			cam.Height = uint32(v)
		case num == cameraFieldIsLeft && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return cam, fmt.Errorf("camera: bad is_left: %w", protowire.ParseError(n))
			}
			data = data[n:]
			cam.IsLeft = v != 0
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return cam, fmt.Errorf("camera: bad field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return cam, nil
}

// MarshalFrameRequest encodes a FrameRequest message.
func MarshalFrameRequest(req FrameRequest) []byte {
	cam := AppendCamera(nil, req.Camera)

	buf := make([]byte, 0, len(cam)+24)
	buf = protowire.AppendTag(buf, requestFieldIndex, protowire.VarintType)
	buf = protowire.AppendVarint(buf, req.Index)
	buf = protowire.AppendTag(buf, requestFieldCamera, protowire.BytesType)
	buf = protowire.AppendBytes(buf, cam)
	if req.IsLeft {
		buf = protowire.AppendTag(buf, requestFieldIsLeft, protowire.VarintType)
		buf = protowire.AppendVarint(buf, 1)
	}
	return buf
}

// ParseFrameRequest decodes a FrameRequest message. Renderer implementations
// use the same codec; the server parses requests only in tests.
func ParseFrameRequest(data []byte) (FrameRequest, error) {
	var req FrameRequest
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return req, fmt.Errorf("request: bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == requestFieldIndex && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return req, fmt.Errorf("request: bad index: %w", protowire.ParseError(n))
			}
			data = data[n:]
			req.Index = v
		case num == requestFieldCamera && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return req, fmt.Errorf("request: bad camera: %w", protowire.ParseError(n))
			}
			data = data[n:]
			cam, err := ParseCamera(raw)
			if err != nil {
				return req, err
			}
			req.Camera = cam
		case num == requestFieldIsLeft && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return req, fmt.Errorf("request: bad is_left: %w", protowire.ParseError(n))
			}
			data = data[n:]
			req.IsLeft = v != 0
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return req, fmt.Errorf("request: bad field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return req, nil
}

// MarshalRenderedFrame encodes a RenderedFrame message. The server only
// sends frames in tests; renderers use the same layout.
func MarshalRenderedFrame(frame *models.RawFrame) []byte {
	cam := AppendCamera(nil, frame.Camera)

	buf := make([]byte, 0, len(cam)+len(frame.Scene)+len(frame.Depth)+32)
	buf = protowire.AppendTag(buf, frameFieldIndex, protowire.VarintType)
	buf = protowire.AppendVarint(buf, frame.Index)
	buf = protowire.AppendTag(buf, frameFieldCamera, protowire.BytesType)
	buf = protowire.AppendBytes(buf, cam)
	if frame.Camera.IsLeft {
		buf = protowire.AppendTag(buf, frameFieldIsLeft, protowire.VarintType)
		buf = protowire.AppendVarint(buf, 1)
	}
	buf = protowire.AppendTag(buf, frameFieldScene, protowire.BytesType)
	buf = protowire.AppendBytes(buf, frame.Scene)
	if frame.Depth != nil {
		buf = protowire.AppendTag(buf, frameFieldDepth, protowire.BytesType)
		buf = protowire.AppendBytes(buf, frame.Depth)
	}
	return buf
}

// ParseRenderedFrame decodes a RenderedFrame message into a RawFrame. The
// pixel planes are copied out of data so the caller may reuse its buffer.
func ParseRenderedFrame(data []byte) (*models.RawFrame, error) {
	frame := &models.RawFrame{}
	var isLeft bool
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("frame: bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == frameFieldIndex && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("frame: bad index: %w", protowire.ParseError(n))
			}
			data = data[n:]
			frame.Index = v
		case num == frameFieldCamera && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("frame: bad camera: %w", protowire.ParseError(n))
			}
			data = data[n:]
			cam, err := ParseCamera(raw)
			if err != nil {
				return nil, err
			}
			frame.Camera = cam
		case num == frameFieldIsLeft && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("frame: bad is_left: %w", protowire.ParseError(n))
			}
			data = data[n:]
			isLeft = v != 0
		case num == frameFieldScene && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("frame: bad scene plane: %w", protowire.ParseError(n))
			}
			data = data[n:]
			frame.Scene = append([]byte(nil), raw...)
		case num == frameFieldDepth && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("frame: bad depth plane: %w", protowire.ParseError(n))
			}
			data = data[n:]
			frame.Depth = append([]byte(nil), raw...)
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("frame: bad field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	frame.Camera.IsLeft = isLeft
	if err := frame.Validate(); err != nil {
		return nil, fmt.Errorf("frame %d: %w", frame.Index, err)
	}
	return frame, nil
}

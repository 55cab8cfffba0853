package perception

import (
	"fmt"

	"github.com/wayline-dev/wayline-wearable/internal/hal"
	"github.com/wayline-dev/wayline-wearable/internal/inference"
)

// preprocessFrame converts an RGB24 frame into a model input tensor: bilinear
// resize to dstW x dstH, scale to [0,1], planar CHW layout.
//
// Sampling uses half-pixel centers: src = (dst + 0.5) * ratio - 0.5, clamped
// to the frame, so the resize is alignment-correct at the borders and a
// same-size frame passes through losslessly.
func preprocessFrame(frame *hal.Frame, dstW, dstH int) (*inference.Tensor, error) {
	if frame.Format != hal.PixelFormatRGB24 {
		return nil, fmt.Errorf("preprocess: unsupported pixel format %d", frame.Format)
	}
	srcW, srcH := frame.Width, frame.Height
	if len(frame.Data) < srcW*srcH*3 {
		return nil, fmt.Errorf("preprocess: frame data %d bytes, need %d", len(frame.Data), srcW*srcH*3)
	}

	out := &inference.Tensor{
		Shape: []int{1, 3, dstH, dstW},
		Data:  make([]float32, 3*dstH*dstW),
	}
	plane := dstH * dstW

	if srcW == dstW && srcH == dstH {
		// Fast path: layout and scale conversion only.
		for y := 0; y < dstH; y++ {
			row := y * srcW * 3
			for x := 0; x < dstW; x++ {
				p := row + x*3
				idx := y*dstW + x
				out.Data[idx] = float32(frame.Data[p]) / 255.0
				out.Data[plane+idx] = float32(frame.Data[p+1]) / 255.0
				out.Data[2*plane+idx] = float32(frame.Data[p+2]) / 255.0
			}
		}
		return out, nil
	}

	ratioX := float32(srcW) / float32(dstW)
	ratioY := float32(srcH) / float32(dstH)

	for y := 0; y < dstH; y++ {
		sy := (float32(y)+0.5)*ratioY - 0.5
		if sy < 0 {
			sy = 0
		}
		// Fraction comes from the unclamped floor; only the coordinates are
		// clamped. Weights stay in [0,1] and the last rows collapse onto the
		// edge pixel instead of extrapolating past it.
		y0 := int(sy)
		fy := sy - float32(y0)
		if y0 > srcH-1 {
			y0, fy = srcH-1, 0
		}
		y1 := y0 + 1
		if y1 > srcH-1 {
			y1 = srcH - 1
		}

		for x := 0; x < dstW; x++ {
			sx := (float32(x)+0.5)*ratioX - 0.5
			if sx < 0 {
				sx = 0
			}
			x0 := int(sx)
			fx := sx - float32(x0)
			if x0 > srcW-1 {
				x0, fx = srcW-1, 0
			}
			x1 := x0 + 1
			if x1 > srcW-1 {
				x1 = srcW - 1
			}

			w00 := (1 - fx) * (1 - fy)
			w10 := fx * (1 - fy)
			w01 := (1 - fx) * fy
			w11 := fx * fy

			p00 := (y0*srcW + x0) * 3
			p10 := (y0*srcW + x1) * 3
			p01 := (y1*srcW + x0) * 3
			p11 := (y1*srcW + x1) * 3

			idx := y*dstW + x
			for ch := 0; ch < 3; ch++ {
				v := w00*float32(frame.Data[p00+ch]) +
					w10*float32(frame.Data[p10+ch]) +
					w01*float32(frame.Data[p01+ch]) +
					w11*float32(frame.Data[p11+ch])
				out.Data[ch*plane+idx] = v / 255.0
			}
		}
	}
	return out, nil
}

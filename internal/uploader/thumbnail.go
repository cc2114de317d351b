package uploader

import (
	"bytes"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"
)

// ThumbnailMaxDim bounds the longest side of generated thumbnails.
const ThumbnailMaxDim = 200

// Thumbnail downscales an image so its longest side is at most maxDim and
// re-encodes it as JPEG. Any decode or encode failure falls back to
// returning the original bytes unchanged; a preview is best-effort and never
// worth surfacing an error for.
func Thumbnail(data []byte, maxDim int) []byte {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return data
	}
	if w <= maxDim && h <= maxDim {
		// Already small: still re-encode so the preview is a predictable
		// format and strips any oversized metadata.
		return encodeJPEG(src, data)
	}

	var tw, th int
	if w >= h {
		tw = maxDim
		th = h * maxDim / w
	} else {
		th = maxDim
		tw = w * maxDim / h
	}
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	scaleBoxAverage(dst, src)
	return encodeJPEG(dst, data)
}

func encodeJPEG(img image.Image, fallback []byte) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return fallback
	}
	return buf.Bytes()
}

// scaleBoxAverage fills dst by averaging the source pixels each destination
// pixel covers. Quality is adequate for a 200px preview without pulling in
// an image-processing dependency.
func scaleBoxAverage(dst *image.RGBA, src image.Image) {
	sb := src.Bounds()
	db := dst.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	dw, dh := db.Dx(), db.Dy()

	for dy := 0; dy < dh; dy++ {
		sy0 := sb.Min.Y + dy*sh/dh
		sy1 := sb.Min.Y + (dy+1)*sh/dh
		if sy1 <= sy0 {
			sy1 = sy0 + 1
		}
		for dx := 0; dx < dw; dx++ {
			sx0 := sb.Min.X + dx*sw/dw
			sx1 := sb.Min.X + (dx+1)*sw/dw
			if sx1 <= sx0 {
				sx1 = sx0 + 1
			}

			var r, g, b, a, n uint64
			for sy := sy0; sy < sy1; sy++ {
				for sx := sx0; sx < sx1; sx++ {
					pr, pg, pb, pa := src.At(sx, sy).RGBA()
					r += uint64(pr)
					g += uint64(pg)
					b += uint64(pb)
					a += uint64(pa)
					n++
				}
			}
			i := dst.PixOffset(db.Min.X+dx, db.Min.Y+dy)
			dst.Pix[i+0] = uint8(r / n >> 8)
			dst.Pix[i+1] = uint8(g / n >> 8)
			dst.Pix[i+2] = uint8(b / n >> 8)
			dst.Pix[i+3] = uint8(a / n >> 8)
		}
	}
}

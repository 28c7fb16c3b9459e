package service

import (
	"bytes"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"mime"
	"net/http"
	"strings"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultImageMaxUploadSizeMB = 10

	// Masters are scaled down to fit a square of this many pixels.
	masterEdge  = 2048
	jpegQuality = 82
	webpQuality = 70
)

// imageTypes maps accepted MIME types, and their aliases, to the name
// image.Decode reports for them.
var imageTypes = map[string]string{
	"image/jpeg": "jpeg",
	"image/jpg":  "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// imageError is a problem with the upload itself, reported to the caller as 400.
type imageError string

func (e imageError) Error() string { return string(e) }

// processedImage is an upload re-encoded as a JPEG master plus a WebP sibling.
type processedImage struct {
	JPEG   []byte
	WebP   []byte
	Width  int
	Height int
}

// processImage checks the sniffed type, decodes, shrinks and re-encodes an
// upload. A declared image/* type must name the same format as the bytes.
func processImage(content []byte, declaredType string) (*processedImage, error) {
	if !isAllowedImageMIME(http.DetectContentType(content)) {
		return nil, imageError("Invalid image type")
	}

	decoded, format, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, imageError("Invalid image file")
	}
	declared := mediaType(declaredType)
	if strings.HasPrefix(declared, "image/") && imageTypes[declared] != format {
		return nil, imageError("Image content type mismatch")
	}

	master := fit(decoded, masterEdge)
	var jpg, wp bytes.Buffer
	if err := jpeg.Encode(&jpg, master, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	if err := webp.Encode(&wp, master, &webp.Options{Quality: webpQuality}); err != nil {
		return nil, err
	}
	b := master.Bounds()
	return &processedImage{JPEG: jpg.Bytes(), WebP: wp.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}

// fit scales src down, keeping its aspect ratio, until both sides are at
// most edge pixels. Smaller images are returned as is.
func fit(src image.Image, edge int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := max(w, h)
	if w <= 0 || h <= 0 || longest <= edge {
		return src
	}

	scale := float64(edge) / float64(longest)
	dst := image.NewRGBA(image.Rect(0, 0, max(int(float64(w)*scale), 1), max(int(float64(h)*scale), 1)))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}

func isAllowedImageMIME(contentType string) bool {
	_, ok := imageTypes[mediaType(contentType)]
	return ok
}

// mediaType strips parameters and case from a Content-Type value.
func mediaType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	return strings.ToLower(contentType)
}

package utils

import (
	"bytes"
	"crypto/sha512"
	"encoding/hex"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"

	"github.com/nfnt/resize"
)

// Sha512String hashes and encodes in hex the result
func Sha512String(s string) string {
	hash := sha512.New()
	hash.Write([]byte(s))
	return hex.EncodeToString(hash.Sum(nil))
}

type ImageConverted struct {
	Size int64
	NewX uint16
	NewY uint16
	OldX uint16
	OldY uint16
}

// ReencodeJPEG decodes (gif/png/jpeg) and re-encodes as JPEG at the given
// quality, bounding the longer side to maxSize when maxSize > 0.
func ReencodeJPEG(maxSize uint, quality int, reader io.Reader, writer io.Writer) (result ImageConverted, err error) {
	img, _, err := image.Decode(reader)
	if err != nil {
		return result, err
	}
	imageRect := img.Bounds().Size()
	result.OldX = uint16(imageRect.X)
	result.OldY = uint16(imageRect.Y)

	if maxSize > 0 {
		img = resize.Thumbnail(maxSize, maxSize, img, resize.Lanczos3)
	}
	var newBuf bytes.Buffer
	if err = jpeg.Encode(&newBuf, img, &jpeg.Options{Quality: quality}); err != nil {
		return
	}
	imageRect = img.Bounds().Size()
	result.NewX = uint16(imageRect.X)
	result.NewY = uint16(imageRect.Y)

	result.Size, err = io.Copy(writer, &newBuf)
	return
}

// CreateThumb proportionally resizes to fit in a size x size box and
// encodes as JPEG
func CreateThumb(size uint, quality int, reader io.Reader, writer io.Writer) (result ImageConverted, err error) {
	return ReencodeJPEG(size, quality, reader, writer)
}

package converter

import (
	"bytes"
	"errors"
	"io"
	"os"
)

var ErrUnsupportedImage = errors.New("unsupported image type")

type ImageType string

const (
	ImagePNG  ImageType = "png"
	ImageJPEG ImageType = "jpeg"
	ImageGIF  ImageType = "gif"
)

var magicBytes = map[ImageType][]byte{
	ImagePNG:  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	ImageJPEG: {0xFF, 0xD8, 0xFF},
	ImageGIF:  {0x47, 0x49, 0x46, 0x38},
}

// DetectImageType sniffs the leading bytes of r and rewinds it.
func DetectImageType(r io.ReadSeeker) (ImageType, error) {
	buffer := make([]byte, 512)
	n, err := r.Read(buffer)
	if err != nil && err != io.EOF {
		return "", err
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	for imageType, signature := range magicBytes {
		if bytes.HasPrefix(buffer[:n], signature) {
			return imageType, nil
		}
	}

	return "", ErrUnsupportedImage
}

// DetectImageFile opens path and sniffs its type.
func DetectImageFile(path string) (ImageType, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return DetectImageType(f)
}

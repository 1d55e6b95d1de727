package render

import (
	"image"

	"github.com/disintegration/imaging"
)

// Load reads and decodes the image at path, applying its EXIF orientation.
func Load(path string) (image.Image, error) {
	return imaging.Open(path, imaging.AutoOrientation(true))
}

// Save encodes img to path. The encoding is picked from the file extension of path (jpg, png, gif,
// tif or bmp); jpegQuality in [1, 100] applies to JPEG outputs.
func Save(path string, img image.Image, jpegQuality int) error {
	if jpegQuality < 1 || jpegQuality > 100 {
		jpegQuality = 92
	}
	return imaging.Save(img, path, imaging.JPEGQuality(jpegQuality))
}

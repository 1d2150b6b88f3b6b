// Package filex provides helpers for describing local media files slated
// for attachment upload.
package filex

import (
	"fmt"
	"image"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Info describes a local file well enough to reserve an attachment slot
// for it: declared name, content type, and byte length. Width and Height
// are the pixel dimensions for recognized image formats, zero otherwise.
type Info struct {
	Filename      string
	ContentType   string
	ContentLength int64
	Width         int
	Height        int
}

// Describe stats path and determines its content type, preferring the file
// extension and falling back to sniffing the first 512 bytes. Image files
// additionally get their pixel dimensions probed.
func Describe(path string) (*Info, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType, err = sniffContentType(path)
		if err != nil {
			return nil, err
		}
	}

	info := &Info{
		Filename:      filepath.Base(path),
		ContentType:   contentType,
		ContentLength: stat.Size(),
	}

	if strings.HasPrefix(contentType, "image/") {
		if f, err := os.Open(path); err == nil {
			if w, h, ok := ImageDimensions(f); ok {
				info.Width, info.Height = w, h
			}
			f.Close()
		}
	}

	return info, nil
}

// ImageDimensions probes the pixel dimensions of an image stream without
// decoding the pixels. ok is false when the format is not recognized
// (registered decoders: png, jpeg, gif).
func ImageDimensions(r io.Reader) (width, height int, ok bool) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}

func sniffContentType(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return http.DetectContentType(buf[:n]), nil
}

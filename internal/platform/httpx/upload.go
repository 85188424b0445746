package httpx

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// SaveUpload copies the multipart file in field to a temp file under dir and
// returns its path with a cleanup func. The file extension must map to one of
// the accepted MIME types. Oversized or malformed uploads wrap ErrValidation.
func SaveUpload(r *http.Request, field, dir string, maxBytes int64, accept ...string) (string, func(), error) {
	noop := func() {}
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", noop, fmt.Errorf("%w: upload exceeds %d bytes", ErrValidation, tooLarge.Limit)
		}
		return "", noop, fmt.Errorf("%w: %s: %v", ErrValidation, field, err)
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if len(accept) > 0 && !accepted(ext, accept) {
		return "", noop, fmt.Errorf("%w: unsupported file type %q", ErrValidation, ext)
	}
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", noop, err
	}
	out, err := os.CreateTemp(dir, "upload-*"+ext)
	if err != nil {
		return "", noop, err
	}
	cleanup := func() { _ = os.Remove(out.Name()) }
	if _, err := io.Copy(out, file); err != nil {
		_ = out.Close()
		cleanup()
		return "", noop, err
	}
	if err := out.Close(); err != nil {
		cleanup()
		return "", noop, err
	}
	return out.Name(), cleanup, nil
}

func accepted(ext string, types []string) bool {
	got := mime.TypeByExtension(ext)
	if got == "" {
		return false
	}
	base, _, _ := mime.ParseMediaType(got)
	for _, t := range types {
		if base == t {
			return true
		}
	}
	return false
}

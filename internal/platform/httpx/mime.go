package httpx

import (
	"log"
	"mime"
)

// MIME types accepted by upload endpoints.
const (
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimePDF  = "application/pdf"
)

func init() {
	ensureMimeType(".xlsx", MimeXLSX)
	ensureMimeType(".pdf", MimePDF)
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("httpx: failed to register MIME type for %s: %v", ext, err)
	}
}

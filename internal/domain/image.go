package domain

import "net/http"

// Roles of the two required images in a submission.
const (
	ImageSource = "source"
	ImageTarget = "target"
)

// ImagePayload holds one input image as raw encoded bytes plus its MIME
// type. Payloads are created on file selection, persisted to the local
// asset store, read at submission time to build the upload request, and
// never mutated.
type ImagePayload struct {
	Name string
	Data []byte
	MIME string
}

// NewImagePayload builds a payload for the given role, sniffing the MIME
// type from the leading bytes of the image data.
func NewImagePayload(name string, data []byte) ImagePayload {
	return ImagePayload{
		Name: name,
		Data: data,
		MIME: http.DetectContentType(data),
	}
}

// Present reports whether the payload actually carries image data.
func (p ImagePayload) Present() bool {
	return len(p.Data) > 0
}

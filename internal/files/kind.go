package files

import (
	"bytes"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// Kind groups the accepted upload types. Only images get dimensions,
// fingerprints and thumbnails.
type Kind string

const (
	KindImage       Kind = "image"
	KindDocument    Kind = "document"
	KindSpreadsheet Kind = "spreadsheet"
)

// Size limits per kind.
const (
	MaxImageSize    = 10 << 20
	MaxDocumentSize = 20 << 20

	// MaxUploadSize is the largest file of any kind.
	MaxUploadSize = MaxDocumentSize
)

const (
	mimePDF  = "application/pdf"
	mimeDOC  = "application/msword"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeTXT  = "text/plain"
	mimeXLS  = "application/vnd.ms-excel"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// documentTypes maps the accepted non-image MIME types to their kind.
var documentTypes = map[string]Kind{
	mimePDF:  KindDocument,
	mimeDOC:  KindDocument,
	mimeDOCX: KindDocument,
	mimeTXT:  KindDocument,
	mimeXLS:  KindSpreadsheet,
	mimeXLSX: KindSpreadsheet,
}

// extensionTypes resolves uploads whose content sniffs as a generic container.
var extensionTypes = map[string]string{
	".pdf":  mimePDF,
	".doc":  mimeDOC,
	".docx": mimeDOCX,
	".txt":  mimeTXT,
	".xls":  mimeXLS,
	".xlsx": mimeXLSX,
}

// oleMagic starts every legacy Office (DOC, XLS) compound file.
var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// kindOf returns the kind of an accepted MIME type.
func kindOf(contentType string) (Kind, bool) {
	if strings.HasPrefix(contentType, "image/") {
		return KindImage, true
	}
	k, ok := documentTypes[contentType]
	return k, ok
}

// MaxSize returns the size limit of the kind.
func (k Kind) MaxSize() int {
	if k == KindImage {
		return MaxImageSize
	}
	return MaxDocumentSize
}

func mediaType(ct string) string {
	ct = strings.TrimSpace(ct)
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return strings.ToLower(ct)
}

func sniff(data []byte) string {
	return mediaType(http.DetectContentType(data))
}

// detectContentType prefers the declared type, then the sniffed one, then the extension.
func detectContentType(u Upload) string {
	ct := mediaType(u.ContentType)
	if ct != "" && ct != "application/octet-stream" {
		return ct
	}
	ct = sniff(u.Data)
	if ct == "application/octet-stream" || ct == "application/zip" {
		if byExt, ok := extensionTypes[strings.ToLower(filepath.Ext(u.Filename))]; ok {
			return byExt
		}
	}
	return ct
}

// contentMatches reports whether data looks like a file of the non-image type ct.
func contentMatches(ct string, data []byte) bool {
	switch ct {
	case mimePDF, mimeTXT:
		return sniff(data) == ct
	case mimeDOCX, mimeXLSX:
		return sniff(data) == "application/zip"
	case mimeDOC, mimeXLS:
		return bytes.HasPrefix(data, oleMagic)
	}
	return false
}

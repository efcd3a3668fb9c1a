package constants

import "strings"

// PDFContentType is the only content type accepted as a source document.
const PDFContentType = "application/pdf"

// AllowedExtensions holds the file extensions offered by the CLI when expanding directories.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsPDFContentType reports whether a declared or sniffed content type is PDF.
// Parameters such as "; charset=..." are ignored.
func IsPDFContentType(contentType string) bool {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.EqualFold(strings.TrimSpace(mt), PDFContentType)
}

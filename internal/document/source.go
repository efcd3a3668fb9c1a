package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/lease-abstractor/constants"
	"github.com/joseph-ayodele/lease-abstractor/internal/common"
)

// Input is a candidate document as handed over by the caller.
// ContentType may be empty, in which case it is sniffed from Data.
type Input struct {
	Name        string
	ContentType string
	Data        []byte
}

// Source is an accepted, immutable PDF document.
type Source struct {
	Name        string
	ContentType string
	Data        []byte
	Hash        string // sha256 hex of Data
}

// Notice reports an input that was not accepted. Other inputs of the
// same batch are unaffected.
type Notice struct {
	Document string
	Message  string
	Err      error
}

func (n Notice) Error() string {
	return fmt.Sprintf("%s: %s", n.Document, n.Message)
}

func (n Notice) Unwrap() error { return n.Err }

// InputFromFile reads a file from disk. The display name is the base name.
func InputFromFile(path string) (Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Input{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Input{Name: filepath.Base(path), Data: data}, nil
}

// newSource validates an input and turns it into a Source.
func newSource(in Input) (Source, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Source{}, fmt.Errorf("document name is required: %w", common.ErrInvalidInput)
	}
	ct := in.ContentType
	if ct == "" {
		ct = http.DetectContentType(in.Data)
	}
	if !constants.IsPDFContentType(ct) {
		return Source{}, fmt.Errorf("content type %q: %w", ct, common.ErrNotPDF)
	}
	sum := sha256.Sum256(in.Data)
	return Source{Name: name, ContentType: ct, Data: in.Data, Hash: hex.EncodeToString(sum[:])}, nil
}

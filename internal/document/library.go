package document

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/joseph-ayodele/lease-abstractor/internal/common"
)

// TextAssembler builds the combined text of a document set.
type TextAssembler interface {
	Assemble(ctx context.Context, docs []Source, progress Progress) (string, error)
}

// Library is the ordered document set plus the cached assembled text.
// The cache is keyed by the identity of the whole set, so a changed set
// never sees stale text.
type Library struct {
	mu        sync.Mutex
	docs      []Source
	assembler TextAssembler
	logger    *slog.Logger

	cacheKey  string
	cacheText string
}

func NewLibrary(assembler TextAssembler, logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.Default()
	}
	return &Library{assembler: assembler, logger: logger}
}

// Add accepts inputs in order. Rejected inputs come back as notices; the
// rest of the batch is still added.
func (l *Library) Add(inputs ...Input) []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()

	var notices []Notice
	for _, in := range inputs {
		src, err := newSource(in)
		if err != nil {
			notices = append(notices, Notice{Document: in.Name, Message: noticeMessage(err), Err: err})
			continue
		}
		if l.indexLocked(src.Name) >= 0 {
			err := fmt.Errorf("duplicate document %q: %w", src.Name, common.ErrInvalidInput)
			notices = append(notices, Notice{Document: src.Name, Message: "a document with this name is already loaded", Err: err})
			continue
		}
		l.docs = append(l.docs, src)
		l.logger.Info("library.add", "document", src.Name, "bytes", len(src.Data))
	}
	l.invalidateLocked()
	return notices
}

// Put adds one input, or replaces the content of an existing document with
// the same name in place. It reports whether a document was replaced.
func (l *Library) Put(in Input) (bool, error) {
	src, err := newSource(in)
	if err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	replaced := false
	if i := l.indexLocked(src.Name); i >= 0 {
		if l.docs[i].Hash == src.Hash {
			return true, nil
		}
		l.docs[i] = src
		replaced = true
	} else {
		l.docs = append(l.docs, src)
	}
	l.invalidateLocked()
	l.logger.Info("library.put", "document", src.Name, "bytes", len(src.Data), "replaced", replaced)
	return replaced, nil
}

func noticeMessage(err error) string {
	switch {
	case errors.Is(err, common.ErrNotPDF):
		return "only PDF files are supported"
	case errors.Is(err, common.ErrInvalidInput):
		return "document name is required"
	default:
		return err.Error()
	}
}

// Remove drops a document by name. It reports whether anything was removed.
func (l *Library) Remove(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexLocked(name)
	if i < 0 {
		return false
	}
	l.docs = append(l.docs[:i:i], l.docs[i+1:]...)
	l.invalidateLocked()
	return true
}

// Clear removes all documents and the cached text.
func (l *Library) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.docs = nil
	l.invalidateLocked()
}

// Documents returns a copy of the document set in order.
func (l *Library) Documents() []Source {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Source(nil), l.docs...)
}

// Names returns the document names in order.
func (l *Library) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, len(l.docs))
	for i, d := range l.docs {
		names[i] = d.Name
	}
	return names
}

// Key identifies the current document set. Empty when the set is empty.
func (l *Library) Key() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return setKey(l.docs)
}

// Cached returns the assembled text if it is present for the current set.
func (l *Library) Cached() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cacheKey == "" || l.cacheKey != setKey(l.docs) {
		return "", false
	}
	return l.cacheText, true
}

// Text returns the assembled text of the current set, building and caching
// it when absent. A failed assembly leaves the cache untouched.
func (l *Library) Text(ctx context.Context, progress Progress) (string, error) {
	l.mu.Lock()
	docs := append([]Source(nil), l.docs...)
	key := setKey(docs)
	if len(docs) == 0 {
		l.mu.Unlock()
		return "", common.ErrNoDocuments
	}
	if key == l.cacheKey {
		text := l.cacheText
		l.mu.Unlock()
		l.logger.Debug("library.cache.hit", "key", shortKey(key))
		return text, nil
	}
	l.mu.Unlock()

	text, err := l.assembler.Assemble(ctx, docs, progress)
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// the set may have changed while assembling; only cache text that
	// still matches it
	if setKey(l.docs) == key {
		l.cacheKey, l.cacheText = key, text
		l.logger.Info("library.cache.store", "key", shortKey(key), "chars", len(text))
	}
	return text, nil
}

func (l *Library) indexLocked(name string) int {
	for i, d := range l.docs {
		if d.Name == name {
			return i
		}
	}
	return -1
}

func (l *Library) invalidateLocked() {
	if l.cacheKey != "" && l.cacheKey != setKey(l.docs) {
		l.cacheKey, l.cacheText = "", ""
	}
}

func setKey(docs []Source) string {
	if len(docs) == 0 {
		return ""
	}
	h := sha256.New()
	for _, d := range docs {
		h.Write([]byte(d.Name))
		h.Write([]byte{0})
		h.Write([]byte(d.Hash))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func shortKey(k string) string {
	if len(k) > 12 {
		return k[:12]
	}
	return k
}

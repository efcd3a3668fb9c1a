package ocr

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"slices"
	"strings"
	"testing"
)

type call struct {
	name string
	args []string
}

// stubRunner records calls and fakes pdftoppm/tesseract outputs.
type stubRunner struct {
	calls  []call
	stdout string
	fail   error
}

func (s *stubRunner) Run(_ context.Context, name string, _ *slog.Logger, args ...string) ([]byte, []byte, error) {
	s.calls = append(s.calls, call{name: name, args: append([]string(nil), args...)})
	if s.fail != nil {
		return nil, []byte("boom"), s.fail
	}
	if name == "pdftoppm" && slices.Contains(args, "-singlefile") {
		prefix := args[len(args)-1]
		if err := os.WriteFile(prefix+".png", []byte("\x89PNG fake"), 0o600); err != nil {
			return nil, nil, err
		}
	}
	return []byte(s.stdout), nil, nil
}

func argValue(args []string, flag string) string {
	i := slices.Index(args, flag)
	if i < 0 || i+1 >= len(args) {
		return ""
	}
	return args[i+1]
}

func TestRasterizerRendersSinglePageAtDPI(t *testing.T) {
	r := &stubRunner{}
	rz := NewPdftoppmRasterizer(Config{DPI: 300}, r, nil)

	raster, err := rz.Open(context.Background(), []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	img, err := raster.RenderPage(context.Background(), 2)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(img) == 0 {
		t.Fatalf("expected image bytes")
	}
	if len(r.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(r.calls))
	}
	args := r.calls[0].args
	if argValue(args, "-f") != "2" || argValue(args, "-l") != "2" {
		t.Fatalf("expected page range 2..2, got %v", args)
	}
	if argValue(args, "-r") != "300" {
		t.Fatalf("expected dpi 300, got %v", args)
	}

	dir := raster.(*pdftoppmRaster).dir
	if err := raster.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("temp dir should be removed, stat err=%v", err)
	}
}

func TestRasterizerRaisesLowDPI(t *testing.T) {
	rz := NewPdftoppmRasterizer(Config{DPI: 72}, &stubRunner{}, nil)
	if rz.DPI() != MinDPI {
		t.Fatalf("expected dpi raised to %d, got %d", MinDPI, rz.DPI())
	}
}

func TestRasterizerPropagatesFailure(t *testing.T) {
	r := &stubRunner{fail: errors.New("exit status 1")}
	rz := NewPdftoppmRasterizer(Config{}, r, nil)
	raster, err := rz.Open(context.Background(), []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer raster.Close()
	if _, err := raster.RenderPage(context.Background(), 1); err == nil {
		t.Fatalf("expected render error")
	}
}

func TestCLIWorkerRecognize(t *testing.T) {
	r := &stubRunner{stdout: "LEASE  AGREEMENT\r\n\n\n\nRent: $1,000.00  \n"}
	e := NewCLIEngine(Config{Lang: "eng", TessdataDir: "/tess"}, r, nil)
	w, err := e.NewWorker(context.Background())
	if err != nil {
		t.Fatalf("worker: %v", err)
	}
	defer w.Close()

	text, err := w.Recognize(context.Background(), []byte("png"))
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if text != "LEASE AGREEMENT\n\nRent: $1,000.00" {
		t.Fatalf("unexpected text %q", text)
	}
	args := r.calls[0].args
	if argValue(args, "-l") != "eng" || argValue(args, "--tessdata-dir") != "/tess" {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestNormalizeKeepsDigits(t *testing.T) {
	in := "Term: 05 years\t\tfrom 01/02/2020\n-----\nend"
	got := Normalize(in)
	if !strings.Contains(got, "05 years from 01/02/2020") {
		t.Fatalf("digits must survive normalization: %q", got)
	}
	if strings.Contains(got, "-----") {
		t.Fatalf("box noise should be removed: %q", got)
	}
}

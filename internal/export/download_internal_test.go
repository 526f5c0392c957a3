package export

import (
	"errors"
	"os"
	"testing"

	"github.com/derickschaefer/sonarboard/internal/model"
)

func TestDownloadFallsBackToDirectWrite(t *testing.T) {
	orig := primaryWrite
	t.Cleanup(func() { primaryWrite = orig })
	primaryWrite = func(string, []byte) error { return errors.New("temp dir full") }

	path, err := Download(&model.Artifact{Name: "app-SonarQube-2024-01-01.csv", Content: []byte("a,b")}, t.TempDir())
	if err != nil {
		t.Fatalf("expected alternate path to succeed, got %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading download: %v", err)
	}
	if string(got) != "a,b" {
		t.Errorf("expected %q, got %q", "a,b", got)
	}
}

func TestDownloadReportsBothErrors(t *testing.T) {
	origP, origA := primaryWrite, alternateWrite
	t.Cleanup(func() { primaryWrite, alternateWrite = origP, origA })
	first := errors.New("first")
	second := errors.New("second")
	primaryWrite = func(string, []byte) error { return first }
	alternateWrite = func(string, []byte) error { return second }

	_, err := Download(&model.Artifact{Name: "x.csv"}, t.TempDir())
	if !errors.Is(err, first) || !errors.Is(err, second) {
		t.Errorf("expected both errors to be wrapped, got %v", err)
	}
}

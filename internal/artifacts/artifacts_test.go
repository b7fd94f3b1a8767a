package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matthewgall/shelfscrape/internal/config"
	"github.com/matthewgall/shelfscrape/internal/relaxjson"
)

var _ relaxjson.ArtifactWriter = DebugWriter{}

func TestLocalStorage(t *testing.T) {
	dir := t.TempDir()
	store := NewLocal(dir)
	ctx := context.Background()

	if err := store.Save(ctx, "runs/product_data.json", strings.NewReader(`{"a":1}`)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if got := store.Location("runs/product_data.json"); got != filepath.Join(dir, "runs", "product_data.json") {
		t.Errorf("Location() = %q", got)
	}

	data, err := os.ReadFile(store.Location("runs/product_data.json"))
	if err != nil {
		t.Fatalf("reading saved file: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Errorf("Save() content = %q", data)
	}

	if err := store.Save(ctx, "runs/product_data.json", strings.NewReader(`{}`)); err != nil {
		t.Fatalf("Save() overwrite error = %v", err)
	}
	data, _ = os.ReadFile(store.Location("runs/product_data.json"))
	if string(data) != `{}` {
		t.Errorf("Save() should truncate, got %q", data)
	}

	if err := store.Delete(ctx, "runs/product_data.json"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, "runs/product_data.json"); err != nil {
		t.Errorf("Delete() of missing key error = %v", err)
	}
}

func TestLocalStorageAbsoluteKey(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "out.json")
	store := NewLocal("ignored")
	if got := store.Location(abs); got != abs {
		t.Errorf("Location() = %q, want %q", got, abs)
	}
}

func TestDebugWriterWithParser(t *testing.T) {
	dir := t.TempDir()
	store := NewLocal(dir)
	parser := relaxjson.New(relaxjson.Options{
		Artifacts: DebugWriter{Store: store, Key: "debug/extracted_data_debug.txt"},
	})

	_, err := parser.Parse(`<script>window.__NUXT__ = {broken: [1, {x: }};</script>`)
	var malformed *relaxjson.MalformedDataError
	if !errors.As(err, &malformed) {
		t.Fatalf("Parse() error = %v, want *MalformedDataError", err)
	}

	want := filepath.Join(dir, "debug", "extracted_data_debug.txt")
	if malformed.ArtifactLocation != want {
		t.Errorf("ArtifactLocation = %q, want %q", malformed.ArtifactLocation, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("debug artifact missing: %v", err)
	}
}

func TestNewFactory(t *testing.T) {
	store, err := New(context.Background(), config.ArtifactsConfig{Method: "LOCAL", Local: config.ArtifactsLocalConfig{Directory: "out"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := store.(*LocalStorage); !ok {
		t.Errorf("New() = %T, want *LocalStorage", store)
	}

	if _, err := New(context.Background(), config.ArtifactsConfig{Method: "gcs"}); !errors.Is(err, ErrUnknownStorage) {
		t.Errorf("New() error = %v, want ErrUnknownStorage", err)
	}
}

func TestNewS3Validation(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		cfg  config.ArtifactsS3Config
	}{
		{"missing bucket", config.ArtifactsS3Config{Region: "eu-west-1"}},
		{"missing region", config.ArtifactsS3Config{Bucket: "b"}},
		{"half credentials", config.ArtifactsS3Config{Bucket: "b", Region: "eu-west-1", AccessKeyID: "AKIA"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewS3(ctx, tt.cfg); err == nil {
				t.Error("NewS3() should fail")
			}
		})
	}
}

func TestS3Location(t *testing.T) {
	store, err := NewS3(context.Background(), config.ArtifactsS3Config{
		Bucket:          "scrapes",
		Region:          "eu-west-1",
		Endpoint:        "http://127.0.0.1:9000",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "secret",
		Prefix:          "/shelfscrape/",
		PathStyle:       true,
	})
	if err != nil {
		t.Fatalf("NewS3() error = %v", err)
	}
	if got := store.Location("product_data.json"); got != "s3://scrapes/shelfscrape/product_data.json" {
		t.Errorf("Location() = %q", got)
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"product_data.json":        "application/json; charset=utf-8",
		"debug_extracted_data.txt": "text/plain; charset=utf-8",
		"blob.bin":                 "application/octet-stream",
	}
	for key, want := range tests {
		if got := contentType(key); got != want {
			t.Errorf("contentType(%q) = %q, want %q", key, got, want)
		}
	}
}

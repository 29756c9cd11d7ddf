package logger

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"conduit-ai/internal/infra/config"
)

func logOneRecord(t *testing.T, level string, emit func(log *slog.Logger)) map[string]any {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.log")

	log, closer, err := New(config.LoggerConfig{Level: level, Format: "json", Output: path})
	if err != nil {
		t.Fatal(err)
	}
	emit(log)
	if err := closer(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return record
}

func TestDebugLevelAddsSource(t *testing.T) {
	record := logOneRecord(t, "debug", func(log *slog.Logger) {
		log.Info("hello")
	})
	if _, ok := record["source"]; !ok {
		t.Errorf("debug logger record has no source: %v", record)
	}
}

func TestInfoLevelOmitsSource(t *testing.T) {
	record := logOneRecord(t, "info", func(log *slog.Logger) {
		log.Info("hello")
	})
	if _, ok := record["source"]; ok {
		t.Errorf("info logger record carries source: %v", record)
	}
}

func TestForComponentTagsRecords(t *testing.T) {
	record := logOneRecord(t, "info", func(log *slog.Logger) {
		ForComponent(log, "gateway").Info("hello")
	})
	if record["component"] != "gateway" {
		t.Errorf("component = %v", record["component"])
	}
}

package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestSetup_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := Setup(&buf)

	log.Info("テストメッセージ", "url", "https://example.com", "attempt", 3)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("ログ出力はJSONであるべき: %v", err)
	}
	if record["msg"] != "テストメッセージ" {
		t.Errorf("msg = %v", record["msg"])
	}
	if record["url"] != "https://example.com" {
		t.Errorf("url属性が出力されるべき: %v", record["url"])
	}
}

func TestSetup_DebugSuppressed(t *testing.T) {
	var buf bytes.Buffer
	log := Setup(&buf)

	log.Debug("出力されないはず")

	if buf.Len() != 0 {
		t.Errorf("Infoレベル設定ではDebugは抑制されるべき: %s", buf.String())
	}
}

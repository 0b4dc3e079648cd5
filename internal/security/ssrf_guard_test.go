package security

import (
	"testing"
	"time"
)

func TestValidateURL_AllowsPublicHTTPS(t *testing.T) {
	g := NewSSRFGuard()
	if err := g.ValidateURL("https://www.webtoons.com/en/genres"); err != nil {
		t.Errorf("公開HTTPSのURLは許可されるべき: %v", err)
	}
}

func TestValidateURL_RejectsScheme(t *testing.T) {
	g := NewSSRFGuard()
	for _, raw := range []string{"ftp://example.com/x", "file:///etc/passwd", "javascript:alert(1)"} {
		if err := g.ValidateURL(raw); err == nil {
			t.Errorf("%q は拒否されるべき", raw)
		}
	}
}

func TestValidateURL_RejectsPrivateIP(t *testing.T) {
	g := NewSSRFGuard()
	for _, raw := range []string{
		"http://127.0.0.1/admin",
		"http://10.0.0.5/",
		"http://192.168.1.1/",
		"http://169.254.169.254/latest/meta-data/",
		"http://localhost:8080/",
	} {
		if err := g.ValidateURL(raw); err == nil {
			t.Errorf("%q は拒否されるべき", raw)
		}
	}
}

func TestValidateURL_RejectsEmpty(t *testing.T) {
	g := NewSSRFGuard()
	if err := g.ValidateURL(""); err == nil {
		t.Error("空URLは拒否されるべき")
	}
}

func TestNewSafeClient_ReturnsClient(t *testing.T) {
	g := NewSSRFGuard()
	client := g.NewSafeClient(5 * time.Second)
	if client == nil {
		t.Fatal("クライアントが生成されるべき")
	}
}

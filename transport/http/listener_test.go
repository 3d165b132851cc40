package http

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
)

func TestCreateListenerBindsEphemeralPort(t *testing.T) {
	ln, err := createListener("127.0.0.1:0", buildListenConfig(ListenOptions{}))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	if !strings.HasPrefix(ln.Addr().String(), "127.0.0.1:") {
		t.Fatalf("unexpected addr %s", ln.Addr())
	}
}

func TestCreateListenerRejectsMissingCertificate(t *testing.T) {
	dir := t.TempDir()
	_, err := createListener("127.0.0.1:0", fiber.ListenConfig{
		CertFile:    filepath.Join(dir, "server.crt"),
		CertKeyFile: filepath.Join(dir, "server.key"),
	})
	if err == nil || !strings.Contains(err.Error(), "load tls certificate") {
		t.Fatalf("expected certificate error, got %v", err)
	}
}

func TestServerTLSConfigRejectsInvalidKeyPair(t *testing.T) {
	dir := t.TempDir()
	ca := filepath.Join(dir, "ca.pem")
	if err := os.WriteFile(ca, []byte("not a certificate"), 0o600); err != nil {
		t.Fatalf("write ca: %v", err)
	}
	_, err := serverTLSConfig(fiber.ListenConfig{CertFile: ca, CertKeyFile: ca, CertClientFile: ca})
	if err == nil || !strings.Contains(err.Error(), "load tls certificate") {
		t.Fatalf("expected key pair error, got %v", err)
	}
}

package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/recognizer/mock"
)

func TestVerifyCommand_DoesNotOpenLedger(t *testing.T) {
	dir := t.TempDir()
	faces := filepath.Join(dir, "faces")
	if err := os.Mkdir(faces, 0o755); err != nil {
		t.Fatal(err)
	}
	img := mock.Image(1)
	if err := os.WriteFile(filepath.Join(faces, "alice.png"), img, 0o600); err != nil {
		t.Fatal(err)
	}
	good := filepath.Join(dir, "probe.png")
	if err := os.WriteFile(good, img, 0o600); err != nil {
		t.Fatal(err)
	}
	corrupt := filepath.Join(dir, "corrupt.jpg")
	if err := os.WriteFile(corrupt, []byte("corrupt upload bytes"), 0o600); err != nil {
		t.Fatal(err)
	}

	// An unreachable ledger fails every command that opens it.
	t.Setenv("LEDGER_BACKEND", "mariadb")
	t.Setenv("MARIADB_DSN", "root:secret@tcp(127.0.0.1:1)/attendance")
	t.Setenv("LOG_LEVEL", "error")

	tests := []struct {
		name string
		args []string
	}{
		{"matching image", []string{"verify", "alice", good, "--faces", faces, "--mode", "image"}},
		{"undecodable image", []string{"verify", "alice", corrupt, "--faces", faces, "--mode", "image"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rootCmd.SetArgs(tt.args)
			if err := rootCmd.ExecuteContext(context.Background()); err != nil {
				t.Fatalf("verify failed: %v", err)
			}
		})
	}
}

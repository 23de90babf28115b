package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestLoadQuizFile(t *testing.T) {
	quizzes, err := loadQuizFile(filepath.Join("..", "..", "config", "quizzes.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(quizzes) != 2 {
		t.Fatalf("expected 2 quizzes, got %d", len(quizzes))
	}
	first := quizzes[0]
	if first.ID != "quiz-1" || len(first.Questions) != 3 || first.Questions[2].Points != 3 {
		t.Fatalf("unexpected first quiz: %+v", first)
	}
	if !first.Questions[1].Options[0].Correct {
		t.Fatalf("expected Paris to be correct: %+v", first.Questions[1].Options)
	}
}

func TestLoadQuizFileRejectsUntitledQuiz(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quizzes.yaml")
	if err := os.WriteFile(path, []byte("quizzes:\n  - id: x\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := loadQuizFile(path); err == nil || !strings.Contains(err.Error(), "no title") {
		t.Fatalf("expected missing title error, got %v", err)
	}
}

func TestTokenCommandSignsWithConfiguredSecret(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("auth:\n  jwt_secret: s3cret\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("JWT_SECRET", "s3cret")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--config", cfgPath, "--user", "u1", "--name", "Alice"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	raw := strings.TrimSpace(out.String())
	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("s3cret"), nil
	}); err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims["sub"] != "u1" || claims["name"] != "Alice" {
		t.Fatalf("unexpected claims: %v", claims)
	}
}

func TestTokenCommandRequiresUser(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"token"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error without --user")
	}
}

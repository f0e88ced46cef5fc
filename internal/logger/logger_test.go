package logger

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactsSecretsAndHashesOwners(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.Info("generate", "openai_api_key", "sk-123", "owner_id", "alice", "study_id", "s1")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["openai_api_key"] != "[REDACTED]" {
		t.Fatalf("expected api key redacted, got %v", fields["openai_api_key"])
	}
	owner, _ := fields["owner_id"].(string)
	if !strings.HasPrefix(owner, "hash:") || strings.Contains(owner, "alice") {
		t.Fatalf("expected hashed owner, got %q", owner)
	}
	if fields["study_id"] != "s1" {
		t.Fatalf("expected study id untouched, got %v", fields["study_id"])
	}
}

func TestWithKeepsSalt(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := &Logger{SugaredLogger: zap.New(core).Sugar()}

	a := base.WithHashSalt("x").With("component", "test")
	b := base.WithHashSalt("y")
	a.Info("one", "owner_id", "alice")
	b.Info("two", "owner_id", "alice")

	entries := logs.All()
	if entries[0].ContextMap()["owner_id"] == entries[1].ContextMap()["owner_id"] {
		t.Fatalf("expected different salts to give different hashes")
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Debug("ignored", "k", "v")
	l.Sync()
}

func TestTokenCountersAreNotRedacted(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.Debug("generated", "total_tokens", 42, "usage_total", 42, "access_token", "abc", "token_id", "t1")

	fields := logs.All()[0].ContextMap()
	if fields["total_tokens"] != int64(42) || fields["usage_total"] != int64(42) {
		t.Fatalf("expected token counts kept, got %v and %v", fields["total_tokens"], fields["usage_total"])
	}
	for _, key := range []string{"access_token", "token_id"} {
		if fields[key] != "[REDACTED]" {
			t.Fatalf("expected %s redacted, got %v", key, fields[key])
		}
	}
}

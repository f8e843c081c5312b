package bootstrap

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"go.uber.org/zap"
)

func TestContainsIgnoreCase(t *testing.T) {
	tests := []struct {
		s        string
		substr   string
		expected bool
	}{
		{"Hello World", "hello", true},
		{"Hello World", "WORLD", true},
		{"Hello World", "xyz", false},
		{"", "", true},
		{"abc", "", true},
		{"", "abc", false},
		{"connection refused", "Connection Refused", true},
		{"WRONGPASS invalid username-password pair", "wrongpass", true},
	}

	for _, tt := range tests {
		t.Run(tt.s+"_"+tt.substr, func(t *testing.T) {
			result := containsIgnoreCase(tt.s, tt.substr)
			if result != tt.expected {
				t.Errorf("containsIgnoreCase(%q, %q) = %v, want %v", tt.s, tt.substr, result, tt.expected)
			}
		})
	}
}

func TestClassifyConnectionError(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}

	tests := []struct {
		name     string
		err      error
		addr     string
		contains string
	}{
		{name: "nil error returns empty string", err: nil, addr: "localhost:6379", contains: ""},
		{name: "connection refused", err: refused, addr: "localhost:6379", contains: "Connection refused by Redis"},
		{name: "unknown host", err: errors.New("dial tcp: lookup redis.invalid: no such host"), addr: "redis.invalid:6379", contains: "Cannot resolve hostname"},
		{name: "bad password", err: errors.New("WRONGPASS invalid username-password pair"), addr: "localhost:6379", contains: "Authentication failed"},
		{name: "anything else", err: errors.New("boom"), addr: "localhost:6379", contains: "Failed to connect to Redis at localhost:6379: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ClassifyConnectionError(tt.err, tt.addr)
			if tt.contains == "" && result != "" {
				t.Errorf("ClassifyConnectionError() = %q, want empty string", result)
			}
			if tt.contains != "" && !strings.Contains(result, tt.contains) {
				t.Errorf("ClassifyConnectionError() = %q, want to contain %q", result, tt.contains)
			}
		})
	}
}

func TestClassifySQLiteError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		dbPath   string
		contains string
	}{
		{name: "nil error returns empty string", err: nil, dbPath: "/data/seclabel.db", contains: ""},
		{name: "permission denied", err: errors.New("open: permission denied"), dbPath: "/data/seclabel.db", contains: "Permission denied"},
		{name: "locked", err: errors.New("database is locked (SQLITE_BUSY)"), dbPath: "/data/seclabel.db", contains: "locked by another process"},
		{name: "disk full", err: errors.New("SQLITE_FULL: database or disk is full"), dbPath: "/data/seclabel.db", contains: "Disk full"},
		{name: "corrupt", err: errors.New("database disk image is malformed"), dbPath: "/data/seclabel.db", contains: "corrupted"},
		{name: "missing dir", err: errors.New("no such file or directory"), dbPath: "/nope/seclabel.db", contains: "path does not exist"},
		{name: "read only", err: errors.New("attempt to write a read-only database"), dbPath: "/data/seclabel.db", contains: "SECLABEL_SQLITE_PATH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ClassifySQLiteError(tt.err, tt.dbPath)
			if tt.contains == "" && result != "" {
				t.Errorf("ClassifySQLiteError() = %q, want empty string", result)
			}
			if tt.contains != "" && !strings.Contains(result, tt.contains) {
				t.Errorf("ClassifySQLiteError() = %q, want to contain %q", result, tt.contains)
			}
		})
	}
}

func TestEnsureDataDirectories(t *testing.T) {
	base := t.TempDir()
	dirs := DataDirectories{
		Base:    filepath.Join(base, "data"),
		Exports: filepath.Join(base, "data", "exports"),
		SQLite:  filepath.Join(base, "db", "seclabel.db"),
	}

	if err := EnsureDataDirectories(dirs, zap.NewNop().Sugar()); err != nil {
		t.Fatalf("EnsureDataDirectories() error = %v", err)
	}

	for _, dir := range []string{dirs.Base, dirs.Exports, filepath.Dir(dirs.SQLite)} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("directory %s was not created: %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
		if _, err := os.Stat(filepath.Join(dir, ".seclabel_write_test")); !os.IsNotExist(err) {
			t.Errorf("write test file left behind in %s", dir)
		}
	}
}

func TestEnsureDataDirectories_NotWritable(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	err := EnsureDataDirectories(DataDirectories{Base: filepath.Join(blocker, "data")}, zap.NewNop().Sugar())
	if err == nil {
		t.Fatal("expected an error when the base path sits under a regular file")
	}
	if !strings.Contains(err.Error(), "Remediation") {
		t.Errorf("error should carry remediation hints, got %q", err.Error())
	}
}

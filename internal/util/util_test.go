package util

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"
)

func TestCleanOldLogsKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"shardgate_2026-01-01.log",
		"shardgate_2026-01-02.log",
		"shardgate_2026-01-03.log",
		"shardgate_2026-01-04.log",
		"other.log",
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	if removed := cleanOldLogs(dir, 2); removed != 2 {
		t.Fatalf("removed %d, want 2", removed)
	}
	for _, n := range []string{"shardgate_2026-01-03.log", "shardgate_2026-01-04.log", "other.log"} {
		if _, err := os.Stat(filepath.Join(dir, n)); err != nil {
			t.Fatalf("%s was removed", n)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, names[0])); !os.IsNotExist(err) {
		t.Fatal("oldest log kept")
	}
}

func TestGenerateSelfSignedCert(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "tls", "api.crt")
	key := filepath.Join(dir, "tls", "api.key")

	if err := GenerateSelfSignedCert(cert, key, "127.0.0.1", "localhost"); err != nil {
		t.Fatal(err)
	}
	pair, err := tls.LoadX509KeyPair(cert, key)
	if err != nil {
		t.Fatalf("generated pair does not load: %v", err)
	}
	if len(pair.Certificate) != 1 {
		t.Fatalf("chain length %d", len(pair.Certificate))
	}

	st, err := os.Stat(key)
	if err != nil {
		t.Fatal(err)
	}
	if st.Mode().Perm()&0077 != 0 {
		t.Fatalf("key file mode %v is group/world readable", st.Mode().Perm())
	}
}

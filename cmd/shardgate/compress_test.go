package main

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shardgate-project/shardgate/internal/huffman"
)

func TestReadPayload(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "payload.bin")
	if err := os.WriteFile(file, []byte{0xA9, 0x00}, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		args    []string
		file    string
		want    []byte
		wantErr bool
	}{
		{"hex", []string{"b9 00 01"}, "", []byte{0xB9, 0x00, 0x01}, false},
		{"file", nil, file, []byte{0xA9, 0x00}, false},
		{"both", []string{"00"}, file, nil, true},
		{"neither", nil, "", nil, true},
		{"bad hex", []string{"zz"}, "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readPayload(tt.args, tt.file)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("payload = %x, want %x", got, tt.want)
			}
		})
	}
}

func TestCompressCommand(t *testing.T) {
	src := []byte{0xB9, 0x00, 0x03, 0x00, 0x00, 0x00}
	want := huffman.Compress(src)

	t.Run("stdout", func(t *testing.T) {
		cmd := compressCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{hex.EncodeToString(src)})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !strings.Contains(out.String(), hex.EncodeToString(want)) {
			t.Errorf("output %q does not contain %x", out.String(), want)
		}
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.bin")
		n, err := compressToFile(path, src)
		if err != nil {
			t.Fatalf("compressToFile: %v", err)
		}
		if n != int64(len(want)) {
			t.Errorf("wrote %d bytes, want %d", n, len(want))
		}
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("file = %x, want %x", got, want)
		}
	})
}

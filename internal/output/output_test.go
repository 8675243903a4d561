package output

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, map[string]int{"functions": 3}); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.String(), "{\n  \"functions\": 3\n}\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWriteJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "report.json")
	if err := WriteJSONFile(path, []int{1, 2}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("1,\n  2")) {
		t.Errorf("content = %q", data)
	}
}

func TestWriteJSONUnsupported(t *testing.T) {
	if err := WriteJSON(&bytes.Buffer{}, make(chan int)); err == nil {
		t.Fatal("expected error for channel value")
	}
}

func TestWriteText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "g.dot")
	if err := WriteText(path, "digraph {}\n"); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "digraph {}\n" {
		t.Errorf("content = %q", data)
	}
}

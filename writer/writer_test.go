package writer

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ulikunitz/xz"
)

func TestWriteCreatesRawFileAndAccumulates(t *testing.T) {
	dir := t.TempDir()
	w := New(filepath.Join(dir, "work"), filepath.Join(dir, "upload"), 1<<20, 64<<20, 6)

	if !w.Write("a/b.", []byte("hello ")) {
		t.Fatal("expected write to succeed")
	}
	if !w.Write("a/b.", []byte("world")) {
		t.Fatal("expected second write to succeed")
	}

	p := w.partitions["a/b."]
	if p.state != stateRaw {
		t.Fatalf("expected partition to remain RAW under the compression threshold, got %v", p.state)
	}
	if p.totalUncompressedSize != int64(len("hello world")) {
		t.Fatalf("unexpected total size %d", p.totalUncompressedSize)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "work", "a/b.", rawFileName))
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "hello world" {
		t.Fatalf("unexpected raw file contents %q", raw)
	}
}

func TestRotationFinalizesAndPublishes(t *testing.T) {
	dir := t.TempDir()
	w := New(filepath.Join(dir, "work"), filepath.Join(dir, "upload"), 10, 64<<20, 0)

	payload := bytes.Repeat([]byte("x"), 20)
	if !w.Write("p.", payload) {
		t.Fatal("expected write to succeed")
	}

	if _, stillOpen := w.partitions["p."]; stillOpen {
		t.Fatal("expected partition to be removed from the active map after rotation")
	}

	published := filepath.Join(dir, "upload", "p.", compressedFileName)
	if _, err := os.Stat(published); err != nil {
		t.Fatalf("expected published compressed file, got error: %v", err)
	}

	f, err := os.Open(published)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	xr, err := xz.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if _, err := out.ReadFrom(xr); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Bytes(), payload) {
		t.Fatalf("round-tripped content mismatch: got %q want %q", out.Bytes(), payload)
	}
}

func TestFinalizeFlushesRemainingPartitions(t *testing.T) {
	dir := t.TempDir()
	w := New(filepath.Join(dir, "work"), filepath.Join(dir, "upload"), 1<<20, 64<<20, 3)

	if !w.Write("one.", []byte("alpha")) {
		t.Fatal("expected write to succeed")
	}
	if !w.Write("two.", []byte("beta")) {
		t.Fatal("expected write to succeed")
	}

	if !w.Finalize() {
		t.Fatal("expected Finalize to succeed for uncorrupted partitions")
	}
	if len(w.partitions) != 0 {
		t.Fatal("expected all partitions removed after Finalize")
	}

	for _, name := range []string{"one.", "two."} {
		if _, err := os.Stat(filepath.Join(dir, "upload", name, compressedFileName)); err != nil {
			t.Fatalf("expected %s to be published: %v", name, err)
		}
	}
}

func TestReprioritizationAttachesEncoderToBusiestPartition(t *testing.T) {
	dir := t.TempDir()
	// preset 0 costs 3_145_728 bytes/context; a 4 MiB budget affords no
	// active encoder (contexts = 4*1024*1024/3145728 - 1 = 0), so use
	// 2*3145728, which gives contexts = 2 - 1 = 1.
	w := New(filepath.Join(dir, "work"), filepath.Join(dir, "upload"), 1<<30, 2*3145728, 0)

	big := bytes.Repeat([]byte("y"), compressionThreshold+1)
	if !w.Write("busy.", big) {
		t.Fatal("expected write to succeed")
	}

	for i := 0; i < reprioritizationInterval-1; i++ {
		if !w.Write("quiet.", []byte("z")) {
			t.Fatal("expected filler write to succeed")
		}
	}

	p := w.partitions["busy."]
	if p.state != stateStreaming {
		t.Fatalf("expected busiest eligible partition to receive an encoder, got state %v", p.state)
	}
}

package writer

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ulikunitz/xz"
)

func TestEmptyPartitionFinalizesTrivially(t *testing.T) {
	dir := t.TempDir()
	p := newPartition(filepath.Join(dir, "work"), "never-written.")
	if !p.finalize(filepath.Join(dir, "upload"), 6) {
		t.Fatal("expected a partition with no writes to finalize trivially")
	}
}

func TestRemoveCompressorReopensFreshRawFile(t *testing.T) {
	dir := t.TempDir()
	p := newPartition(filepath.Join(dir, "work"), "switchback.")

	big := make([]byte, compressionThreshold+1)
	if !p.write(big, 0) {
		t.Fatal("expected write to succeed")
	}
	if !p.addCompressor(0) {
		t.Fatal("expected addCompressor to succeed")
	}
	if p.state != stateStreaming {
		t.Fatalf("expected STREAMING_COMPRESSED, got %v", p.state)
	}

	if !p.removeCompressor() {
		t.Fatal("expected removeCompressor to succeed")
	}
	if p.state != stateInitial {
		t.Fatalf("expected partition to fall back to initial (lazy raw reopen), got %v", p.state)
	}
	if p.rawOnlySize != 0 {
		t.Fatalf("expected raw_only_size reset after add_compressor, got %d", p.rawOnlySize)
	}

	if !p.write([]byte("tail"), 0) {
		t.Fatal("expected write after removeCompressor to reopen a raw file")
	}
	if p.state != stateRaw {
		t.Fatalf("expected RAW after reopening, got %v", p.state)
	}
}

// TestFinalizeAfterDemotionWithNoFurtherWrites reproduces the low-activity
// case reprioritization demotion targets: a partition is streaming, gets
// demoted (removeCompressor), and then never receives another write before
// the run ends. Its already-compressed data must still be closed and
// published, not silently dropped in work_dir.
func TestFinalizeAfterDemotionWithNoFurtherWrites(t *testing.T) {
	dir := t.TempDir()
	p := newPartition(filepath.Join(dir, "work"), "dormant.")

	payload := bytes.Repeat([]byte("d"), compressionThreshold+1)
	if !p.write(payload, 0) {
		t.Fatal("expected write to succeed")
	}
	if !p.addCompressor(0) {
		t.Fatal("expected addCompressor to succeed")
	}
	if !p.removeCompressor() {
		t.Fatal("expected removeCompressor to succeed")
	}
	if p.state != stateInitial {
		t.Fatalf("expected demoted partition to sit in stateInitial, got %v", p.state)
	}
	if p.compressedFile == nil {
		t.Fatal("expected the pending compressed file to remain open after demotion")
	}

	uploadDir := filepath.Join(dir, "upload")
	if !p.finalize(uploadDir, 0) {
		t.Fatal("expected finalize to publish the dormant compressed data")
	}

	published := filepath.Join(uploadDir, "dormant.", compressedFileName)
	f, err := os.Open(published)
	if err != nil {
		t.Fatalf("expected published compressed file, got error: %v", err)
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
		t.Fatal("round-tripped content mismatch after demote-then-finalize")
	}

	if _, err := os.Stat(filepath.Join(dir, "work", "dormant.", compressedFileName)); !os.IsNotExist(err) {
		t.Fatal("expected work_dir to be emptied of the partition's files after finalize")
	}
}

// TestAddCompressorReusesExistingCompressedFileHandle guards against the fd
// leak that came from addCompressor unconditionally opening a new handle on
// a partition re-promoted after a prior demotion: the second addCompressor
// call must reuse p.compressedFile rather than replace it.
func TestAddCompressorReusesExistingCompressedFileHandle(t *testing.T) {
	dir := t.TempDir()
	p := newPartition(filepath.Join(dir, "work"), "reuse.")

	first := bytes.Repeat([]byte("a"), compressionThreshold+1)
	if !p.write(first, 0) || !p.addCompressor(0) {
		t.Fatal("expected first RAW -> STREAMING_COMPRESSED transition to succeed")
	}
	if !p.removeCompressor() {
		t.Fatal("expected removeCompressor to succeed")
	}
	handle := p.compressedFile
	if handle == nil {
		t.Fatal("expected compressedFile to remain open after demotion")
	}

	second := bytes.Repeat([]byte("b"), compressionThreshold+1)
	if !p.write(second, 0) {
		t.Fatal("expected write after demotion to reopen a raw file")
	}
	if !p.addCompressor(0) {
		t.Fatal("expected second RAW -> STREAMING_COMPRESSED transition to succeed")
	}
	if p.compressedFile != handle {
		t.Fatal("expected addCompressor to reuse the existing compressed file handle, not open a second one")
	}

	if !p.finalize(filepath.Join(dir, "upload"), 0) {
		t.Fatal("expected finalize to succeed")
	}

	published := filepath.Join(dir, "upload", "reuse.", compressedFileName)
	f, err := os.Open(published)
	if err != nil {
		t.Fatalf("expected published compressed file, got error: %v", err)
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
	want := append(append([]byte{}, first...), second...)
	if !bytes.Equal(out.Bytes(), want) {
		t.Fatal("round-tripped content mismatch across two streaming sessions")
	}
}

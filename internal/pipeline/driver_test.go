package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"datasetdedup/internal/consolidate"
	"datasetdedup/internal/hash"
	"datasetdedup/internal/match"
	"datasetdedup/internal/models"
	"datasetdedup/internal/scan"
	"datasetdedup/internal/storage"
	"datasetdedup/internal/testutil"
)

type fakeCollector struct {
	files map[string][]byte
	err   error
}

func (c *fakeCollector) Collect(_ context.Context, dir string) error {
	if c.err != nil {
		return c.err
	}
	for name, data := range c.files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			return err
		}
	}
	return nil
}

type fakePublisher struct {
	dir string
}

func (p *fakePublisher) Publish(_ context.Context, dir string) error {
	p.dir = dir
	return nil
}

type fakeRecorder struct {
	runs    []*storage.Run
	entries [][]*models.FileEntry
}

func (r *fakeRecorder) RecordRun(_ context.Context, run *storage.Run, entries []*models.FileEntry) error {
	run.ID = "run-1"
	r.runs = append(r.runs, run)
	r.entries = append(r.entries, entries)
	return nil
}

func newDriver(t *testing.T, in string, opts ...Option) (*Driver, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "audit")
	c := consolidate.NewConsolidator(root, consolidate.WithCopyWorkers(2))
	opts = append([]Option{WithScanner(scan.NewScanner(scan.WithWorkers(3)))}, opts...)
	return NewDriver(in, c, opts...), root
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// consolidatedFiles fingerprints every file in the consolidated directory,
// leaving out the two indices.
func consolidatedFiles(t *testing.T, root string) []*models.ImageRecord {
	t.Helper()
	dir := filepath.Join(root, consolidate.ConsolidatedDir)
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to list %s: %v", dir, err)
	}
	hasher := hash.NewHasher()
	var records []*models.ImageRecord
	for _, de := range dirEntries {
		if de.IsDir() || de.Name() == consolidate.DuplicatesIndex || de.Name() == consolidate.MasterIndex {
			continue
		}
		rec, err := hasher.Compute(filepath.Join(dir, de.Name()))
		if err != nil {
			t.Fatalf("failed to fingerprint %s: %v", de.Name(), err)
		}
		records = append(records, rec)
	}
	return records
}

// assertNoDuplicates fails when two records share content or lie within
// threshold of each other.
func assertNoDuplicates(t *testing.T, records []*models.ImageRecord, threshold int) {
	t.Helper()
	for i := range records {
		for j := i + 1; j < len(records); j++ {
			a, b := records[i], records[j]
			if a.ContentHash == b.ContentHash {
				t.Errorf("%s and %s share a content hash", a.Path, b.Path)
			}
			if dist := hash.HammingDistance(a.PerceptualHash, b.PerceptualHash); dist <= threshold {
				t.Errorf("%s and %s are %d apart", a.Path, b.Path, dist)
			}
		}
	}
}

func TestRun_IdenticalBytes(t *testing.T) {
	in := t.TempDir()
	a := testutil.WritePNG(t, in, "a.png", testutil.Blocks(1, 64))
	b := testutil.CopyFile(t, a, in, "b.png")

	d, root := newDriver(t, in)
	report, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Status() != models.StatusSuccess {
		t.Errorf("status = %s, want success", report.Status())
	}
	if report.Summary.Consolidated != 1 || report.Summary.ExactGroups != 1 {
		t.Errorf("summary = %+v", report.Summary)
	}
	if report.RunID != "" {
		t.Errorf("unrecorded run should have no id, got %q", report.RunID)
	}

	outDir := filepath.Join(root, consolidate.ConsolidatedDir)
	if _, err := os.Stat(filepath.Join(outDir, "a.png")); err != nil {
		t.Errorf("representative not copied: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "b.png")); !os.IsNotExist(err) {
		t.Errorf("duplicate must not be consolidated, stat err = %v", err)
	}

	lines := readLines(t, filepath.Join(outDir, consolidate.DuplicatesIndex))
	want := b + " -> " + a + " (EXACT)"
	if len(lines) != 1 || lines[0] != want {
		t.Errorf("duplicates index = %q, want [%q]", lines, want)
	}
}

func TestRun_CorruptFileIsPartial(t *testing.T) {
	in := t.TempDir()
	for i := 0; i < 10; i++ {
		testutil.WritePNG(t, in, "img"+string(rune('0'+i))+".png", testutil.Blocks(int64(i+10), 64))
	}
	bad := testutil.WriteBytes(t, in, "img5.png", []byte("truncated"))

	d, root := newDriver(t, in)
	report, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Status() != models.StatusPartial {
		t.Errorf("status = %s, want partial", report.Status())
	}
	if got := report.Summary.Skipped[models.SkipDecodeError]; got != 1 {
		t.Errorf("decode_error skips = %d, want 1", got)
	}
	if report.Summary.Consolidated != 9 {
		t.Errorf("consolidated = %d, want 9", report.Summary.Consolidated)
	}

	master := readLines(t, filepath.Join(root, consolidate.ConsolidatedDir, consolidate.MasterIndex))
	if len(master) != 10 {
		t.Fatalf("master index has %d lines, want 10", len(master))
	}
	found := false
	for _, line := range master {
		if strings.HasPrefix(line, bad+" -> SKIPPED(decode_error)") {
			found = true
		}
	}
	if !found {
		t.Errorf("corrupt file missing from master index: %q", master)
	}
}

// The consolidated set never keeps two files with equal content or two files
// within the perceptual threshold, and every scanned file gets one line.
func TestRun_ClosureProperties(t *testing.T) {
	in := t.TempDir()
	for i := 0; i < 6; i++ {
		img := testutil.Blocks(int64(100+i), 64)
		p := testutil.WritePNG(t, in, "p"+string(rune('a'+i))+".png", img)
		if i%2 == 0 {
			testutil.CopyFile(t, p, in, "copy_"+string(rune('a'+i))+".png")
		}
		if i%3 == 0 {
			testutil.WriteJPEG(t, in, "j"+string(rune('a'+i))+".jpg", img)
		}
	}
	testutil.WritePNG(t, in, "gradient.png", testutil.Gradient(64))

	const threshold = 8
	d, root := newDriver(t, in, WithPerceptualMatcher(match.NewPerceptualMatcher(threshold)))
	report, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	entries := report.Result.Plan.Entries
	if report.Summary.Scanned != len(entries) {
		t.Fatalf("scanned %d but %d entries", report.Summary.Scanned, len(entries))
	}

	var kept []*models.ImageRecord
	for _, e := range entries {
		if e.Kept() {
			kept = append(kept, e.Record)
			if e.OutputName == "" {
				t.Errorf("%s kept but not consolidated", e.Path)
			}
		}
	}
	assertNoDuplicates(t, kept, threshold)

	// The same must hold for what actually landed on disk
	files := consolidatedFiles(t, root)
	assertNoDuplicates(t, files, threshold)
	if len(files) != report.Summary.Consolidated {
		t.Errorf("%d files on disk, summary says %d consolidated", len(files), report.Summary.Consolidated)
	}
	if want := report.Summary.Unique + report.Summary.Representatives; len(files) != want {
		t.Errorf("%d files on disk, want unique+representatives = %d", len(files), want)
	}

	if report.Summary.ExactGroups != 3 {
		t.Errorf("exact groups = %d, want 3", report.Summary.ExactGroups)
	}
}

// A second run into an audit root that already holds output is refused
// before anything is written, so the directory keeps exactly one copy.
func TestRun_RerunSameRootRefused(t *testing.T) {
	in := t.TempDir()
	a := testutil.WritePNG(t, in, "a.png", testutil.Blocks(1, 64))
	testutil.CopyFile(t, a, in, "b.png")
	testutil.WritePNG(t, in, "c.png", testutil.Gradient(64))

	root := filepath.Join(t.TempDir(), "audit")
	c := consolidate.NewConsolidator(root, consolidate.WithCopyWorkers(2))
	first, err := NewDriver(in, c, WithScanner(scan.NewScanner(scan.WithWorkers(2)))).Run(context.Background())
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	before := consolidatedFiles(t, root)

	recorder := &fakeRecorder{}
	_, err = NewDriver(in, consolidate.NewConsolidator(root), WithRecorder(recorder)).Run(context.Background())
	if !errors.Is(err, consolidate.ErrOutputNotEmpty) {
		t.Fatalf("second run error = %v, want ErrOutputNotEmpty", err)
	}
	if len(recorder.runs) != 1 || recorder.runs[0].Status != "failed" {
		t.Errorf("refused run should be recorded as failed, got %+v", recorder.runs)
	}

	after := consolidatedFiles(t, root)
	if len(after) != len(before) || len(after) != first.Summary.Consolidated {
		t.Fatalf("consolidated files: %d before, %d after, summary %d", len(before), len(after), first.Summary.Consolidated)
	}
	for i := range after {
		if filepath.Base(after[i].Path) != filepath.Base(before[i].Path) {
			t.Errorf("file %d changed from %s to %s", i, filepath.Base(before[i].Path), filepath.Base(after[i].Path))
		}
	}
	assertNoDuplicates(t, after, match.DefaultThreshold)

	master := readLines(t, filepath.Join(root, consolidate.ConsolidatedDir, consolidate.MasterIndex))
	if len(master) != first.Summary.Scanned {
		t.Errorf("master index has %d lines, want %d", len(master), first.Summary.Scanned)
	}
}

func TestRun_Deterministic(t *testing.T) {
	in := t.TempDir()
	for i := 0; i < 8; i++ {
		testutil.WritePNG(t, in, "f"+string(rune('a'+i))+".png", testutil.Blocks(int64(200+i%5), 48))
	}

	var indices [][]string
	for run := 0; run < 2; run++ {
		d, root := newDriver(t, in)
		if _, err := d.Run(context.Background()); err != nil {
			t.Fatalf("run %d failed: %v", run, err)
		}
		out := filepath.Join(root, consolidate.ConsolidatedDir)
		indices = append(indices, append(
			readLines(t, filepath.Join(out, consolidate.DuplicatesIndex)),
			readLines(t, filepath.Join(out, consolidate.MasterIndex))...))
	}
	if strings.Join(indices[0], "\n") != strings.Join(indices[1], "\n") {
		t.Errorf("indices differ between runs:\n%q\n%q", indices[0], indices[1])
	}
}

func TestRun_CollectPublishRecord(t *testing.T) {
	in := t.TempDir()
	src := testutil.WritePNG(t, t.TempDir(), "seed.png", testutil.Blocks(7, 32))
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}

	collector := &fakeCollector{files: map[string][]byte{"one.png": data, "two.png": data}}
	publisher := &fakePublisher{}
	recorder := &fakeRecorder{}
	d, root := newDriver(t, in, WithCollector(collector), WithPublisher(publisher), WithRecorder(recorder))

	report, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Summary.Scanned != 2 || report.Summary.Duplicates != 1 {
		t.Errorf("collected files not scanned: %+v", report.Summary)
	}
	if publisher.dir != filepath.Join(root, consolidate.ConsolidatedDir) {
		t.Errorf("published %q", publisher.dir)
	}
	if report.RunID != "run-1" || len(recorder.runs) != 1 {
		t.Fatalf("run not recorded: id=%q runs=%d", report.RunID, len(recorder.runs))
	}
	run := recorder.runs[0]
	if run.Status != "success" || run.InputDir != in || run.OutputDir != root {
		t.Errorf("recorded run = %+v", run)
	}
	if run.Threshold != match.DefaultThreshold {
		t.Errorf("threshold = %d", run.Threshold)
	}
	if len(recorder.entries[0]) != 2 {
		t.Errorf("recorded %d entries, want 2", len(recorder.entries[0]))
	}
}

func TestRun_FailedRunIsRecorded(t *testing.T) {
	recorder := &fakeRecorder{}
	collectErr := errors.New("network down")
	d, _ := newDriver(t, t.TempDir(), WithCollector(&fakeCollector{err: collectErr}), WithRecorder(recorder))

	_, err := d.Run(context.Background())
	if !errors.Is(err, collectErr) {
		t.Fatalf("err = %v, want %v", err, collectErr)
	}
	if len(recorder.runs) != 1 || recorder.runs[0].Status != "failed" {
		t.Fatalf("failed run not recorded: %+v", recorder.runs)
	}
	if !strings.Contains(recorder.runs[0].Error, "network down") {
		t.Errorf("recorded error = %q", recorder.runs[0].Error)
	}
}

func TestRun_RecordsToStorage(t *testing.T) {
	in := t.TempDir()
	a := testutil.WritePNG(t, in, "a.png", testutil.Blocks(3, 32))
	testutil.CopyFile(t, a, in, "b.png")

	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}
	defer store.Close()

	d, _ := newDriver(t, in, WithRecorder(store))
	report, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	files, err := store.GetRunFiles(context.Background(), report.RunID, models.DispositionDuplicate)
	if err != nil {
		t.Fatalf("GetRunFiles failed: %v", err)
	}
	if len(files) != 1 || files[0].Representative != a {
		t.Fatalf("recorded duplicates = %+v", files)
	}
}

func TestRun_OutputInsideInput(t *testing.T) {
	in := t.TempDir()
	c := consolidate.NewConsolidator(filepath.Join(in, "audit"))
	if _, err := NewDriver(in, c).Run(context.Background()); err == nil {
		t.Fatal("expected error for audit root inside the input dir")
	}
	if _, err := NewDriver(in, consolidate.NewConsolidator(in)).Run(context.Background()); err == nil {
		t.Fatal("expected error for audit root equal to the input dir")
	}
}

func TestRun_MissingInput(t *testing.T) {
	d, _ := newDriver(t, filepath.Join(t.TempDir(), "nope"))
	if _, err := d.Run(context.Background()); err == nil {
		t.Fatal("expected error for missing input dir")
	}
}

func TestRun_CancelledContext(t *testing.T) {
	in := t.TempDir()
	testutil.WritePNG(t, in, "a.png", testutil.Blocks(1, 32))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, _ := newDriver(t, in)
	if _, err := d.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestCheckDisjoint(t *testing.T) {
	tests := []struct {
		in, out string
		wantErr bool
	}{
		{"/data/in", "/data/out", false},
		{"/data/in", "/data/in/out", true},
		{"/data/in", "/data/in", true},
		{"/data/in", "/data/input", false},
		{"/data/in/sub", "/data", false},
	}
	for _, tt := range tests {
		err := CheckDisjoint(tt.in, tt.out)
		if (err != nil) != tt.wantErr {
			t.Errorf("CheckDisjoint(%q, %q) = %v, wantErr %v", tt.in, tt.out, err, tt.wantErr)
		}
	}
}

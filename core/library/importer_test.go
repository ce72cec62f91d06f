package library

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"Tunevault/model"
)

type recordingUploader struct {
	mu       sync.Mutex
	uploaded []string
	bodies   map[string]string
	busy     int // 前 busy 次调用返回 ErrBusy
	notify   chan string
}

func newRecordingUploader() *recordingUploader {
	return &recordingUploader{bodies: make(map[string]string)}
}

func (u *recordingUploader) Upload(ctx context.Context, userID string, in UploadInput) (*model.MusicFile, error) {
	u.mu.Lock()
	if u.busy > 0 {
		u.busy--
		u.mu.Unlock()
		return nil, ErrBusy
	}
	u.mu.Unlock()

	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	u.uploaded = append(u.uploaded, in.Filename)
	u.bodies[in.Filename] = string(data)
	u.mu.Unlock()
	if u.notify != nil {
		u.notify <- in.Filename
	}
	return &model.MusicFile{ID: "id-" + in.Filename, UserID: userID, Title: in.Filename}, nil
}

func (u *recordingUploader) names() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := append([]string(nil), u.uploaded...)
	sort.Strings(out)
	return out
}

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestImportDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.mp3"), "aaa")
	writeFile(t, filepath.Join(dir, "notes.txt"), "hello")
	writeFile(t, filepath.Join(dir, "sub", "b.flac"), "bbb")

	up := newRecordingUploader()
	im := NewImporter(up, "u1", nil)

	res, err := im.ImportDir(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if res != (ImportResult{Imported: 2, Skipped: 1}) {
		t.Errorf("result = %+v", res)
	}
	if got := up.names(); len(got) != 2 || got[0] != "a.mp3" || got[1] != "b.flac" {
		t.Errorf("uploaded = %v", got)
	}

	// 同一个 Importer 再跑一次全部跳过
	res, err = im.ImportDir(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if res != (ImportResult{Skipped: 3}) {
		t.Errorf("second run = %+v", res)
	}
}

func TestImportFileRetriesWhenBusy(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.ogg")
	writeFile(t, p, "ogg data")

	up := newRecordingUploader()
	up.busy = 2
	im := NewImporter(up, "u1", nil)
	im.retryBusy = time.Millisecond

	if err := im.ImportFile(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if up.bodies["a.ogg"] != "ogg data" {
		t.Errorf("body = %q", up.bodies["a.ogg"])
	}
}

func TestImportFileBusyCancelled(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.mp3")
	writeFile(t, p, "x")

	up := newRecordingUploader()
	up.busy = 1 << 30
	im := NewImporter(up, "u1", nil)
	im.retryBusy = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := im.ImportFile(ctx, p); err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestWatchImportsNewFiles(t *testing.T) {
	dir := t.TempDir()
	up := newRecordingUploader()
	up.notify = make(chan string, 4)
	im := NewImporter(up, "u1", nil)
	im.settle = 40 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- im.Watch(ctx, dir) }()

	// 等待监听器就绪后再写文件
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "ignored.txt"), "x")
	writeFile(t, filepath.Join(dir, "new.mp3"), "fresh")

	select {
	case name := <-up.notify:
		if name != "new.mp3" {
			t.Errorf("imported %q, want new.mp3", name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("new file was not imported")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}

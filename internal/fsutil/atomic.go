// Package fsutil writes output files atomically: data goes to a hidden temp
// file in the destination directory and is renamed into place on Commit, so
// readers never observe a partially written file.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// PendingFile is a temp file that becomes the destination on Commit.
type PendingFile struct {
	f    *os.File
	dst  string
	done bool
}

// Create opens a pending file for dir/name, creating dir if needed.
func Create(dir, name string) (*PendingFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &PendingFile{f: f, dst: filepath.Join(dir, name)}, nil
}

func (p *PendingFile) Write(b []byte) (int, error) {
	return p.f.Write(b)
}

// Path returns the final destination path.
func (p *PendingFile) Path() string { return p.dst }

// Commit flushes the temp file and renames it over the destination.
func (p *PendingFile) Commit() error {
	if p.done {
		return errors.New("pending file already finished")
	}
	p.done = true
	tmp := p.f.Name()
	if err := p.f.Chmod(0o644); err != nil {
		p.cleanup(tmp)
		return err
	}
	if err := p.f.Sync(); err != nil {
		p.cleanup(tmp)
		return err
	}
	if err := p.f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, p.dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename into %s: %w", p.dst, err)
	}
	return nil
}

// Abort discards the temp file. It is a no-op after Commit, so it is safe to defer.
func (p *PendingFile) Abort() {
	if p.done {
		return
	}
	p.done = true
	p.cleanup(p.f.Name())
}

func (p *PendingFile) cleanup(tmp string) {
	_ = p.f.Close()
	_ = os.Remove(tmp)
}

// WriteFrom copies r into dir/name atomically and returns the bytes written.
func WriteFrom(dir, name string, r io.Reader) (int64, error) {
	p, err := Create(dir, name)
	if err != nil {
		return 0, err
	}
	defer p.Abort()

	n, err := io.Copy(p, r)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", name, err)
	}
	if err := p.Commit(); err != nil {
		return n, err
	}
	return n, nil
}

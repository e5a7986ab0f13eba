package dataset

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// DirPublisher copies datasets into a local directory and returns file:// URIs.
type DirPublisher struct {
	dir string
}

// NewDirPublisher creates dir if needed.
func NewDirPublisher(dir string) (*DirPublisher, error) {
	if dir == "" {
		return nil, fmt.Errorf("publish directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create publish directory: %w", err)
	}
	return &DirPublisher{dir: abs}, nil
}

func (p *DirPublisher) Publish(_ context.Context, name string, data []byte) (Published, error) {
	hash := PayloadHash(data)
	target := filepath.Join(p.dir, objectName(hash, name))

	// Content addressed: an existing file already holds these bytes
	if _, err := os.Stat(target); os.IsNotExist(err) {
		tmp := target + ".tmp"
		if err := os.WriteFile(tmp, data, 0644); err != nil {
			return Published{}, fmt.Errorf("write dataset: %w", err)
		}
		if err := os.Rename(tmp, target); err != nil {
			os.Remove(tmp)
			return Published{}, fmt.Errorf("write dataset: %w", err)
		}
	}

	u := url.URL{Scheme: "file", Path: filepath.ToSlash(target)}
	return Published{URI: u.String(), PayloadHash: hash, Size: len(data)}, nil
}

func (p *DirPublisher) Name() string {
	return "dir-" + p.dir
}

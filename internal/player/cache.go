package player

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Cache spools remote loop assets to local files so decoding gets a
// seekable stream. Concurrent loads of the same ref collapse into one
// download; the ?v= cache-buster is part of the key, so a re-ingested
// loop is fetched fresh.
type Cache struct {
	baseURL string
	client  *http.Client
	baseDir string

	mu      sync.Mutex
	pending map[string]chan struct{}
}

func NewCache(baseURL, tmpDir string) *Cache {
	cacheDir := filepath.Join(tmpDir, "loop_cache")
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		log.Printf("⚠️ Failed to create cache dir: %v", err)
	}

	return &Cache{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
		baseDir: cacheDir,
		pending: make(map[string]chan struct{}),
	}
}

// LocalPath returns a local file holding the asset, downloading it if
// needed. If another goroutine is already downloading the same ref we
// wait on it instead of duplicating the fetch.
func (c *Cache) LocalPath(ctx context.Context, ref string) (string, error) {
	localPath := c.filePath(ref)

	if c.exists(localPath) {
		os.Chtimes(localPath, time.Now(), time.Now())
		return localPath, nil
	}

	c.mu.Lock()
	waitCh, isDownloading := c.pending[ref]
	if isDownloading {
		c.mu.Unlock()
		select {
		case <-waitCh:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		if !c.exists(localPath) {
			return "", fmt.Errorf("download of %s failed in another goroutine", ref)
		}
		return localPath, nil
	}

	done := make(chan struct{})
	c.pending[ref] = done
	c.mu.Unlock()

	defer func() {
		close(done)
		c.mu.Lock()
		delete(c.pending, ref)
		c.mu.Unlock()
	}()

	log.Printf("📥 Cache Miss: Downloading %s", ref)
	if err := c.download(ctx, ref, localPath); err != nil {
		return "", err
	}

	return localPath, nil
}

func (c *Cache) download(ctx context.Context, ref, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+ref, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", ref, resp.StatusCode)
	}

	// Write to a temp name first so a half-finished download never looks
	// like a cache hit.
	partPath := localPath + ".part"
	f, err := os.Create(partPath)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(partPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(partPath)
		return err
	}

	return os.Rename(partPath, localPath)
}

func (c *Cache) filePath(ref string) string {
	sum := sha1.Sum([]byte(ref))
	return filepath.Join(c.baseDir, hex.EncodeToString(sum[:])+".mp3")
}

func (c *Cache) exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

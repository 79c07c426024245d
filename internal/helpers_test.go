package internal

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

// fastRetry returns an executor that never really sleeps, so error paths
// stay fast in tests.
func fastRetry() *RetryExecutor {
	return &RetryExecutor{
		Attempts:     DefaultRetryAttempts,
		InitialDelay: time.Millisecond,
		sleep: func(ctx context.Context, d time.Duration) error {
			return nil
		},
	}
}

func sha(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("gzip write failed: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close failed: %v", err)
	}
	return buf.Bytes()
}

// buildManifest assembles a valid manifest from filename -> chunk layout.
// Every chunk gets its digest registered; file digests cover the
// concatenated content.
type chunkSpec struct {
	id   string
	data []byte
}

func buildManifest(appId, version string, files map[string][]chunkSpec) *GameManifest {
	m := &GameManifest{
		ManifestFileVersion: "1",
		AppName:             appId,
		AppVersion:          version,
		ChunkHashList:       map[string]string{},
		ChunkShaList:        map[string][]byte{},
		DataGroupList:       map[string][]string{},
	}
	for name, chunks := range files {
		entry := FileEntry{Filename: name}
		var offset int64
		var content []byte
		for _, c := range chunks {
			entry.FileChunkParts = append(entry.FileChunkParts, ChunkPart{
				Guid:   c.id,
				Offset: offset,
				Size:   int64(len(c.data)),
			})
			m.ChunkShaList[c.id] = sha(c.data)
			offset += int64(len(c.data))
			content = append(content, c.data...)
		}
		entry.FileHash = sha(content)
		m.FileList = append(m.FileList, entry)
		m.BuildSize += int64(len(content))
	}
	return m
}

// fakeCDN serves a manifest at the CloudDir convention and chunks at the
// ChunksV3 convention, counting manifest hits.
type fakeCDN struct {
	server       *httptest.Server
	manifest     *GameManifest
	chunks       map[string][]byte
	manifestHits int
	gzipManifest bool
	// corruptChunk, when set, swaps that chunk's payload for garbage.
	corruptChunk string
}

func newFakeCDN(t *testing.T, appId string, manifest *GameManifest, chunks map[string][]byte) *fakeCDN {
	t.Helper()
	cdn := &fakeCDN{manifest: manifest, chunks: chunks}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if filepath.Ext(path) == ".manifest" {
			cdn.manifestHits++
			data, err := json.Marshal(cdn.manifest)
			if err != nil {
				t.Errorf("manifest marshal failed: %v", err)
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			if cdn.gzipManifest {
				data = gzipBytes(t, data)
			}
			w.Write(data)
			return
		}

		if filepath.Ext(path) == ".chunk" {
			id := filepath.Base(path)
			id = id[:len(id)-len(".chunk")]
			data, ok := cdn.chunks[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			if cdn.corruptChunk == id {
				data = []byte("corrupted payload")
			}
			w.Write(data)
			return
		}

		w.WriteHeader(http.StatusNotFound)
	})

	cdn.server = httptest.NewServer(mux)
	t.Cleanup(cdn.server.Close)
	return cdn
}

func (c *fakeCDN) client(resolver AssetResolver) *StoreClient {
	s := NewStoreClient(c.server.URL, c.server.URL, resolver)
	s.retry = fastRetry()
	return s
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	dataDir := t.TempDir()
	cfg := DefaultConfig(dataDir)
	cfg.InstallDir = filepath.Join(dataDir, "games")
	cfg.DownloadThreads = 2
	return cfg
}

func testCred() *Credential {
	return &Credential{AccessToken: "test-token", AccountID: "acct-1"}
}

func readFileOrFail(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return data
}

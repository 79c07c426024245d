package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// AssetResolver is the external collaborator that maps an app id to the
// location of its current manifest. An empty URL (with nil error) tells
// the client to fall back to the CDN path convention.
type AssetResolver interface {
	ResolveManifestURL(ctx context.Context, cred *Credential, appId string) (string, error)
}

// CdnPathResolver always falls back to the CDN path convention.
type CdnPathResolver struct{}

func (CdnPathResolver) ResolveManifestURL(ctx context.Context, cred *Credential, appId string) (string, error) {
	return "", nil
}

// CloudSaveEntry is a remote save descriptor. Entries are fetched per
// sync operation and never cached.
type CloudSaveEntry struct {
	ID         string
	AppName    string
	Filename   string
	Size       int64
	UploadedAt time.Time
}

// cloudSaveMetadata is the wire shape of one remote save record.
type cloudSaveMetadata struct {
	FileName   string `json:"fileName"`
	Length     int64  `json:"length"`
	UploadedAt string `json:"uploaded"`
}

// StoreClient talks to the distribution backend: manifest downloads with
// TTL caching, chunk retrieval against the CDN, and the cloud-save store.
// All remote calls run through the retry executor.
type StoreClient struct {
	httpClient  *http.Client
	cache       *ManifestCache
	retry       *RetryExecutor
	resolver    AssetResolver
	cdnBaseUrl  string
	saveBaseUrl string
}

// NewStoreClient builds a client against cdnBaseUrl. saveBaseUrl is the
// cloud-save service root; empty disables save operations.
func NewStoreClient(cdnBaseUrl, saveBaseUrl string, resolver AssetResolver) *StoreClient {
	if resolver == nil {
		resolver = CdnPathResolver{}
	}
	return &StoreClient{
		httpClient: &http.Client{
			Timeout: RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 16,
			},
		},
		cache:       NewManifestCache(),
		retry:       NewRetryExecutor(),
		resolver:    resolver,
		cdnBaseUrl:  strings.TrimRight(cdnBaseUrl, "/"),
		saveBaseUrl: strings.TrimRight(saveBaseUrl, "/"),
	}
}

// Cache exposes the manifest cache so the owner can clear it on demand.
func (s *StoreClient) Cache() *ManifestCache {
	return s.cache
}

// CdnBaseUrl reports the configured CDN root.
func (s *StoreClient) CdnBaseUrl() string {
	return s.cdnBaseUrl
}

// isGzipped sniffs the gzip magic number. Compression is auto-detected,
// never declared out of band.
func isGzipped(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

// isZstd sniffs the zstd frame magic number.
func isZstd(data []byte) bool {
	return len(data) >= 4 &&
		data[0] == 0x28 && data[1] == 0xb5 && data[2] == 0x2f && data[3] == 0xfd
}

// maybeInflate reverses gzip or zstd compression when the payload's magic
// bytes say so, and returns the payload untouched otherwise.
func maybeInflate(data []byte) ([]byte, error) {
	switch {
	case isGzipped(data):
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, WrapError(KindApi, err, "failed to open gzip stream")
		}
		defer zr.Close()
		inflated, err := io.ReadAll(zr)
		if err != nil {
			return nil, WrapError(KindApi, err, "failed to inflate gzip payload")
		}
		return inflated, nil
	case isZstd(data):
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, WrapError(KindApi, err, "failed to open zstd stream")
		}
		defer zr.Close()
		inflated, err := io.ReadAll(zr.IOReadCloser())
		if err != nil {
			return nil, WrapError(KindApi, err, "failed to inflate zstd payload")
		}
		return inflated, nil
	default:
		return data, nil
	}
}

// getBytes performs one GET and returns the body, mapping any non-success
// status to an Api error for that attempt.
func (s *StoreClient) getBytes(ctx context.Context, url string, cred *Credential) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, WrapError(KindApi, err, "failed to build request for %s", url)
	}
	if cred != nil {
		req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, WrapError(KindApi, err, "request to %s failed", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewError(KindApi, "request to %s failed with status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(KindApi, err, "failed to read response from %s", url)
	}
	return body, nil
}

// manifestURL resolves where the manifest for appId lives: a direct URL
// from asset metadata when available, else the CDN path convention.
func (s *StoreClient) manifestURL(ctx context.Context, cred *Credential, appId string) (string, error) {
	url, err := s.resolver.ResolveManifestURL(ctx, cred, appId)
	if err != nil {
		return "", err
	}
	if url != "" {
		return url, nil
	}
	return fmt.Sprintf("%s/%s/CloudDir/%s.manifest", s.cdnBaseUrl, appId, appId), nil
}

// GetManifest returns the manifest for appId, serving a cache entry when
// it is younger than the TTL and refetching otherwise. The entry is
// replaced, not mutated, on refetch.
func (s *StoreClient) GetManifest(ctx context.Context, cred *Credential, appId string) (*GameManifest, error) {
	if cred == nil {
		return nil, NewError(KindAuth, "not authenticated: manifest fetch requires a credential")
	}

	if manifest, ok := s.cache.Get(appId); ok {
		PushLogDebug(s, "serving cached manifest", "app", appId)
		return manifest, nil
	}

	url, err := s.manifestURL(ctx, cred, appId)
	if err != nil {
		return nil, err
	}
	PushLogInfo(s, "downloading manifest", "app", appId, "url", url)

	manifest, err := Retry(ctx, s.retry, "manifest download", func(ctx context.Context) (*GameManifest, error) {
		raw, err := s.getBytes(ctx, url, cred)
		if err != nil {
			return nil, err
		}
		data, err := maybeInflate(raw)
		if err != nil {
			return nil, err
		}

		// Strict deserialization: a field-shape mismatch is a fatal
		// parse error, not a partial result.
		var m GameManifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, WrapError(KindApi, err, "failed to parse manifest for %s", appId)
		}
		if err := m.Validate(); err != nil {
			return nil, err
		}
		return &m, nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Put(appId, manifest)
	PushLogInfo(s, "manifest cached", "app", manifest.AppName, "version", manifest.AppVersion)
	return manifest, nil
}

// ChunkURL builds the hierarchical CDN path for a chunk id. Ids shorter
// than 4 characters fall back to the flat form.
func ChunkURL(base, chunkId string) string {
	base = strings.TrimRight(base, "/")
	if len(chunkId) >= 4 {
		return fmt.Sprintf("%s/ChunksV3/%s/%s/%s.chunk", base, chunkId[0:2], chunkId[2:4], chunkId)
	}
	return fmt.Sprintf("%s/ChunksV3/%s.chunk", base, chunkId)
}

// GetChunk downloads one chunk, decompressing when the payload carries a
// compression magic number. cdnOverride replaces the configured CDN root
// when non-empty. Chunk bytes are never cached; chunks are single-use
// write targets.
func (s *StoreClient) GetChunk(ctx context.Context, chunkId string, cdnOverride string) ([]byte, error) {
	base := s.cdnBaseUrl
	if cdnOverride != "" {
		base = cdnOverride
	}
	url := ChunkURL(base, chunkId)

	return Retry(ctx, s.retry, "chunk "+chunkId, func(ctx context.Context) ([]byte, error) {
		raw, err := s.getBytes(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		data, err := maybeInflate(raw)
		if err != nil {
			return nil, err
		}
		PushLogDebug(s, "chunk downloaded", "chunk", chunkId, "bytes", len(data))
		return data, nil
	})
}

// CheckForUpdates fetches the latest manifest and reports its version when
// it differs from currentVersion, or "" when the build is current.
func (s *StoreClient) CheckForUpdates(ctx context.Context, cred *Credential, appId, currentVersion string) (string, error) {
	manifest, err := s.GetManifest(ctx, cred, appId)
	if err != nil {
		return "", err
	}
	if manifest.AppVersion != currentVersion {
		PushLogInfo(s, "update available", "app", appId, "from", currentVersion, "to", manifest.AppVersion)
		return manifest.AppVersion, nil
	}
	return "", nil
}

func (s *StoreClient) saveURL(appId string, parts ...string) string {
	url := s.saveBaseUrl + "/egstore/" + appId
	for _, p := range parts {
		url += "/" + p
	}
	return url
}

// ListCloudSaves fetches the remote save entries for appId. Timestamps
// that fail to parse are kept with a zero time so conflict handling can
// still run.
func (s *StoreClient) ListCloudSaves(ctx context.Context, cred *Credential, appId string) ([]CloudSaveEntry, error) {
	if cred == nil {
		return nil, NewError(KindAuth, "not authenticated: cloud save listing requires a credential")
	}

	return Retry(ctx, s.retry, "cloud save list", func(ctx context.Context) ([]CloudSaveEntry, error) {
		body, err := s.getBytes(ctx, s.saveURL(appId), cred)
		if err != nil {
			return nil, err
		}

		var metadata []cloudSaveMetadata
		if err := json.Unmarshal(body, &metadata); err != nil {
			return nil, WrapError(KindApi, err, "failed to parse cloud save listing for %s", appId)
		}

		entries := make([]CloudSaveEntry, 0, len(metadata))
		for _, m := range metadata {
			uploadedAt, err := time.Parse(time.RFC3339, m.UploadedAt)
			if err != nil {
				PushLogWarning(s, "unparseable save timestamp", "file", m.FileName, "value", m.UploadedAt)
				uploadedAt = time.Time{}
			}
			entries = append(entries, CloudSaveEntry{
				ID:         m.FileName,
				AppName:    appId,
				Filename:   m.FileName,
				Size:       m.Length,
				UploadedAt: uploadedAt,
			})
		}
		return entries, nil
	})
}

// DownloadCloudSave fetches the raw bytes of one remote save.
func (s *StoreClient) DownloadCloudSave(ctx context.Context, cred *Credential, appId, saveId string) ([]byte, error) {
	if cred == nil {
		return nil, NewError(KindAuth, "not authenticated: cloud save download requires a credential")
	}
	return Retry(ctx, s.retry, "cloud save download "+saveId, func(ctx context.Context) ([]byte, error) {
		return s.getBytes(ctx, s.saveURL(appId, saveId), cred)
	})
}

// UploadCloudSave pushes one save file, last-writer-wins on the remote.
func (s *StoreClient) UploadCloudSave(ctx context.Context, cred *Credential, appId, filename string, data []byte) error {
	if cred == nil {
		return NewError(KindAuth, "not authenticated: cloud save upload requires a credential")
	}

	_, err := Retry(ctx, s.retry, "cloud save upload "+filename, func(ctx context.Context) (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.saveURL(appId, filename), bytes.NewReader(data))
		if err != nil {
			return struct{}{}, WrapError(KindApi, err, "failed to build upload request for %s", filename)
		}
		req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
		req.Header.Set("Content-Type", "application/octet-stream")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return struct{}{}, WrapError(KindApi, err, "upload of %s failed", filename)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return struct{}{}, NewError(KindApi, "upload of %s failed with status %d", filename, resp.StatusCode)
		}
		io.Copy(io.Discard, resp.Body)
		return struct{}{}, nil
	})
	return err
}

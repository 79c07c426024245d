package internal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// ChunkSource supplies chunk bytes by id. The store client implements it;
// tests substitute fakes.
type ChunkSource interface {
	GetChunk(ctx context.Context, chunkId string, cdnOverride string) ([]byte, error)
}

// FileReconstructor rebuilds one target file from its chunk parts,
// verifying every chunk before it is written and the whole file after.
type FileReconstructor struct {
	Source      ChunkSource
	CdnOverride string

	// OnWrite, when set, receives the count of verified bytes after
	// each chunk slice lands on disk.
	OnWrite DelegateWriteBytes
}

// executableSuffixes are file name endings that get an execute-enabled
// mode in addition to the manifest's declared launch executable.
var executableSuffixes = []string{".exe", ".sh", ".bin"}

func isExecutableName(filename, launchExe string) bool {
	if launchExe != "" && filename == launchExe {
		return true
	}
	for _, suffix := range executableSuffixes {
		if strings.HasSuffix(filename, suffix) {
			return true
		}
	}
	return false
}

// ReconstructFile writes the file described by entry to destPath. Chunk
// parts are processed in the manifest's declared order: fetch, verify
// against the chunk-level digest, write exactly the declared length at the
// declared offset. A verification failure at any level aborts without the
// file being accepted.
func (r *FileReconstructor) ReconstructFile(
	ctx context.Context,
	destPath string,
	entry *FileEntry,
	manifest *GameManifest,
) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return WrapError(KindDisk, err, "failed to create parent directories for %s", destPath)
	}

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return WrapError(KindDisk, err, "failed to open %s for writing", destPath)
	}
	defer out.Close()

	for _, part := range entry.FileChunkParts {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunkData, err := r.Source.GetChunk(ctx, part.Guid, r.CdnOverride)
		if err != nil {
			return err
		}

		// Fail fast on a digest mismatch: no partial unverified data
		// reaches the file. Validate() already guaranteed the digest
		// exists, so a missing one here is fail-closed too.
		expected, ok := manifest.ChunkShaList[part.Guid]
		if !ok {
			return NewError(KindIntegrity, "no digest recorded for chunk %s", part.Guid)
		}
		if !VerifyBytes(chunkData, expected) {
			return NewError(KindIntegrity,
				"chunk %s failed digest verification for %s", part.Guid, entry.Filename)
		}
		if weak, ok := manifest.ChunkHashList[part.Guid]; ok && weak != "" {
			if !VerifyWeakHash(chunkData, weak) {
				return NewError(KindIntegrity,
					"chunk %s failed weak-hash verification for %s", part.Guid, entry.Filename)
			}
		}

		if part.Size > int64(len(chunkData)) {
			return NewError(KindIntegrity,
				"chunk %s is %d bytes, shorter than declared part size %d",
				part.Guid, len(chunkData), part.Size)
		}

		if _, err := out.WriteAt(chunkData[:part.Size], part.Offset); err != nil {
			return WrapError(KindDisk, err, "failed to write chunk %s to %s", part.Guid, destPath)
		}

		if r.OnWrite != nil {
			r.OnWrite(part.Size)
		}
		PushLogDebug(r, "chunk written",
			"chunk", part.Guid, "offset", part.Offset, "size", part.Size, "file", entry.Filename)
	}

	// Durably sync before the whole-file check so the digest covers what
	// is actually on disk.
	if err := out.Sync(); err != nil {
		return WrapError(KindDisk, err, "failed to sync %s", destPath)
	}
	if err := out.Close(); err != nil {
		return WrapError(KindDisk, err, "failed to close %s", destPath)
	}

	if len(entry.FileHash) > 0 {
		ok, err := VerifyFile(destPath, entry.FileHash)
		if err != nil {
			return err
		}
		if !ok {
			return NewError(KindIntegrity, "file %s failed digest verification", entry.Filename)
		}
	}

	mode := os.FileMode(0644)
	if isExecutableName(entry.Filename, manifest.LaunchExe) {
		mode = 0755
	}
	if err := os.Chmod(destPath, mode); err != nil {
		return WrapError(KindDisk, err, "failed to set permissions on %s", destPath)
	}

	PushLogInfo(r, "file reconstructed",
		"file", entry.Filename, "bytes", entry.FileSize(), "mode", mode)
	return nil
}

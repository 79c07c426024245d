package internal

import (
	"sort"
)

// ChunkPart references a slice of a content-addressed chunk destined for a
// specific byte range of a file. It never owns the chunk bytes; those are
// fetched on demand and written straight into the file being rebuilt.
type ChunkPart struct {
	Guid   string `json:"Guid"`
	Offset int64  `json:"Offset"`
	Size   int64  `json:"Size"`
}

// FileEntry describes one file of a build as an ordered list of chunk
// parts plus a whole-file digest.
type FileEntry struct {
	Filename       string      `json:"Filename"`
	FileHash       []byte      `json:"FileHash"`
	FileChunkParts []ChunkPart `json:"FileChunkParts"`
}

// FileSize is the sum of the entry's chunk-part lengths.
func (f *FileEntry) FileSize() int64 {
	var total int64
	for _, part := range f.FileChunkParts {
		total += part.Size
	}
	return total
}

// GameManifest identifies one build of one title and describes every file
// as a sequence of byte ranges sourced from content-addressed chunks.
type GameManifest struct {
	ManifestFileVersion string              `json:"ManifestFileVersion"`
	IsFileData          bool                `json:"bIsFileData"`
	AppName             string              `json:"AppNameString"`
	AppVersion          string              `json:"AppVersionString"`
	LaunchExe           string              `json:"LaunchExeString"`
	LaunchCommand       string              `json:"LaunchCommand"`
	BuildSize           int64               `json:"BuildSizeInt"`
	FileList            []FileEntry         `json:"FileManifestList"`
	ChunkHashList       map[string]string   `json:"ChunkHashList"`
	ChunkShaList        map[string][]byte   `json:"ChunkShaList"`
	DataGroupList       map[string][]string `json:"DataGroupList"`
}

// Validate enforces the manifest-shape invariants:
//   - every file's chunk parts tile [0, fileSize) with no gaps or overlaps
//   - every referenced chunk id appears in ChunkShaList, so a download can
//     never silently skip verification
//
// A manifest that violates either invariant is rejected outright.
func (m *GameManifest) Validate() error {
	for i := range m.FileList {
		entry := &m.FileList[i]
		if entry.Filename == "" {
			return NewError(KindApi, "manifest file entry %d has an empty filename", i)
		}
		if err := validateTiling(entry); err != nil {
			return err
		}
		for _, part := range entry.FileChunkParts {
			if _, ok := m.ChunkShaList[part.Guid]; !ok {
				return NewError(KindIntegrity,
					"chunk %s referenced by %s has no digest in ChunkShaList", part.Guid, entry.Filename)
			}
		}
	}
	return nil
}

// validateTiling checks that the chunk parts, laid out at their declared
// offsets with their declared lengths, cover the file exactly.
func validateTiling(entry *FileEntry) error {
	parts := make([]ChunkPart, len(entry.FileChunkParts))
	copy(parts, entry.FileChunkParts)
	sort.Slice(parts, func(i, j int) bool { return parts[i].Offset < parts[j].Offset })

	var next int64
	for _, part := range parts {
		if part.Size <= 0 {
			return NewError(KindApi,
				"file %s has a chunk part with non-positive size %d", entry.Filename, part.Size)
		}
		if part.Offset < next {
			return NewError(KindApi,
				"file %s has overlapping chunk parts at offset %d", entry.Filename, part.Offset)
		}
		if part.Offset > next {
			return NewError(KindApi,
				"file %s has a gap before offset %d", entry.Filename, part.Offset)
		}
		next = part.Offset + part.Size
	}
	return nil
}

// FindFile returns the entry for filename, or nil.
func (m *GameManifest) FindFile(filename string) *FileEntry {
	for i := range m.FileList {
		if m.FileList[i].Filename == filename {
			return &m.FileList[i]
		}
	}
	return nil
}

// TotalFileSize sums the reconstructed size of every file in the build.
func (m *GameManifest) TotalFileSize() int64 {
	var total int64
	for i := range m.FileList {
		total += m.FileList[i].FileSize()
	}
	return total
}

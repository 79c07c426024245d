package internal

import (
	"encoding/json"
	"testing"
)

func TestValidateAcceptsTiledFile(t *testing.T) {
	m := buildManifest("app", "1.0", map[string][]chunkSpec{
		"bin/game": {
			{id: "aaaa0001", data: []byte("hello ")},
			{id: "aaaa0002", data: []byte("world")},
		},
	})
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidateRejectsGap(t *testing.T) {
	m := buildManifest("app", "1.0", map[string][]chunkSpec{
		"data.pak": {
			{id: "gap00001", data: []byte("0123456789")},
			{id: "gap00002", data: []byte("xyz")},
		},
	})
	m.FileList[0].FileChunkParts[1].Offset = 12 // leaves bytes 10-11 uncovered
	if err := m.Validate(); err == nil {
		t.Fatal("Validate() accepted a manifest with a gap")
	}
}

func TestValidateRejectsOverlap(t *testing.T) {
	m := buildManifest("app", "1.0", map[string][]chunkSpec{
		"data.pak": {
			{id: "ovl00001", data: []byte("0123456789")},
			{id: "ovl00002", data: []byte("xyz")},
		},
	})
	m.FileList[0].FileChunkParts[1].Offset = 8
	if err := m.Validate(); err == nil {
		t.Fatal("Validate() accepted a manifest with overlapping parts")
	}
}

func TestValidateRejectsNonZeroStart(t *testing.T) {
	m := buildManifest("app", "1.0", map[string][]chunkSpec{
		"data.pak": {{id: "sta00001", data: []byte("abc")}},
	})
	m.FileList[0].FileChunkParts[0].Offset = 1
	if err := m.Validate(); err == nil {
		t.Fatal("Validate() accepted a file that does not start at offset 0")
	}
}

func TestValidateFailsClosedOnMissingDigest(t *testing.T) {
	m := buildManifest("app", "1.0", map[string][]chunkSpec{
		"data.pak": {{id: "mis00001", data: []byte("abc")}},
	})
	delete(m.ChunkShaList, "mis00001")

	err := m.Validate()
	if err == nil {
		t.Fatal("Validate() accepted a chunk reference with no digest")
	}
	if !IsKind(err, KindIntegrity) {
		t.Errorf("Validate() error kind = %v, want integrity", err)
	}
}

func TestFileSizeSumsParts(t *testing.T) {
	m := buildManifest("app", "1.0", map[string][]chunkSpec{
		"data.pak": {
			{id: "sum00001", data: []byte("abcd")},
			{id: "sum00002", data: []byte("efghij")},
		},
	})
	if got := m.FileList[0].FileSize(); got != 10 {
		t.Errorf("FileSize() = %d, want 10", got)
	}
	if got := m.TotalFileSize(); got != 10 {
		t.Errorf("TotalFileSize() = %d, want 10", got)
	}
}

func TestManifestWireFormatRoundTrip(t *testing.T) {
	m := buildManifest("MyGame", "2.1.0", map[string][]chunkSpec{
		"Engine/start.sh": {{id: "rt000001", data: []byte("#!/bin/sh\n")}},
	})
	m.LaunchExe = "Engine/start.sh"
	m.IsFileData = true

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	// Wire field names are fixed by the external format.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal to map failed: %v", err)
	}
	for _, field := range []string{
		"ManifestFileVersion", "bIsFileData", "AppNameString", "AppVersionString",
		"LaunchExeString", "LaunchCommand", "BuildSizeInt", "FileManifestList",
		"ChunkHashList", "ChunkShaList", "DataGroupList",
	} {
		if _, ok := raw[field]; !ok {
			t.Errorf("serialized manifest is missing wire field %q", field)
		}
	}

	var decoded GameManifest
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.AppName != "MyGame" || decoded.AppVersion != "2.1.0" {
		t.Errorf("round trip lost identity: %q %q", decoded.AppName, decoded.AppVersion)
	}
	if decoded.FindFile("Engine/start.sh") == nil {
		t.Error("round trip lost file entry")
	}
	if err := decoded.Validate(); err != nil {
		t.Errorf("round-tripped manifest failed validation: %v", err)
	}
}

func TestFindFileMissing(t *testing.T) {
	m := buildManifest("app", "1.0", nil)
	if m.FindFile("nope") != nil {
		t.Error("FindFile() returned an entry for an unknown name")
	}
}

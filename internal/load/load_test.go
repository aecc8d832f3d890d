package load

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/snarg/transcribe-etl/internal/database"
	"github.com/snarg/transcribe-etl/internal/storage"
	"github.com/snarg/transcribe-etl/internal/transcript"
)

const (
	knownFile   = "/audio-efs/Test_04803_MUL_MUL_0002_20220605-192230_0038_solo2-17-A-1.wav"
	unknownFile = "/audio-efs/Test_04803_MUL_MUL_0002_20220605-192230_0038_TEST_NOT_IN_DB.wav"
)

type fakeLookup struct {
	rows map[string]database.TranscriptMetadata
	err  error
}

func (f fakeLookup) LookupTranscriptMetadata(ctx context.Context, files []string) (map[string]database.TranscriptMetadata, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]database.TranscriptMetadata{}
	for _, file := range files {
		if m, ok := f.rows[file]; ok {
			out[file] = m
		}
	}
	return out, nil
}

func qaReport() fakeLookup {
	duration := 19.12
	return fakeLookup{rows: map[string]database.TranscriptMetadata{
		knownFile: {
			FilePath:       knownFile,
			DirectoryName:  "/audio-efs/",
			CorpusCode:     ptr("solo2-17-A-1"),
			AudioDuration:  &duration,
			Email:          ptr("xxx123xxx@hotmail.com"),
			Gender:         ptr("FEMALE"),
			NativeLanguage: ptr("Franch"),
			Pin:            "P998123",
		},
	}}
}

func ptr(s string) *string { return &s }

func group(file string) transcript.Group {
	return transcript.Group{
		File: file,
		Utterances: []transcript.Utterance{
			{File: file, SpeakerTag: "<#spk_2>", Text: "hello, how are you", Start: 45, End: 5045},
		},
	}
}

func newLoader(t *testing.T, lookup MetadataLookup) (*Loader, string) {
	t.Helper()
	dir := t.TempDir()
	return NewLoader(storage.NewLocalStore(dir), lookup, zerolog.Nop()), dir
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
}

func TestLoadWritesTranscriptAndMetadata(t *testing.T) {
	l, dir := newLoader(t, qaReport())

	arts, err := l.Load(context.Background(), []transcript.Group{group(knownFile)})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(arts) != 1 {
		t.Fatalf("artifacts = %d, want 1", len(arts))
	}

	folder := filepath.Join(dir, "2022-06-05", "P998123")
	txPath := filepath.Join(folder, "Test_04803_MUL_MUL_0002_20220605-192230_0038_solo2-17-A-1_tx.json")
	metaPath := filepath.Join(folder, "Test_04803_MUL_MUL_0002_20220605-192230_0038_solo2-17-A-1_meta.json")

	var tx []map[string]any
	readJSON(t, txPath, &tx)
	wantTx := []map[string]any{
		{"speaker_tag": "<#spk_2>", "text": "hello, how are you", "start": float64(45), "end": float64(5045)},
	}
	if !reflect.DeepEqual(tx, wantTx) {
		t.Errorf("tx = %v, want %v", tx, wantTx)
	}

	var meta map[string]any
	readJSON(t, metaPath, &meta)
	wantMeta := map[string]any{
		"audio_duration":  19.12,
		"audio_file_name": knownFile,
		"corpus_code":     "solo2-17-A-1",
		"speaker_id": map[string]any{
			"email":           "xxx123xxx@hotmail.com",
			"gender":          "FEMALE",
			"native_language": "Franch",
		},
	}
	if !reflect.DeepEqual(meta, wantMeta) {
		t.Errorf("meta = %v, want %v", meta, wantMeta)
	}

	want := Artifact{
		File:        knownFile,
		PackageDate: "2022-06-05",
		Pin:         "P998123",
		TxKey:       "2022-06-05/P998123/Test_04803_MUL_MUL_0002_20220605-192230_0038_solo2-17-A-1_tx.json",
		MetaKey:     "2022-06-05/P998123/Test_04803_MUL_MUL_0002_20220605-192230_0038_solo2-17-A-1_meta.json",
		Utterances:  1,
	}
	if arts[0] != want {
		t.Errorf("artifact = %+v, want %+v", arts[0], want)
	}
}

func TestLoadUnknownFileGoesToNoPin(t *testing.T) {
	l, dir := newLoader(t, qaReport())

	if _, err := l.Load(context.Background(), []transcript.Group{group(unknownFile)}); err != nil {
		t.Fatalf("Load: %v", err)
	}

	folder := filepath.Join(dir, "2022-06-05", NoPinFolder)
	for _, name := range []string{
		"Test_04803_MUL_MUL_0002_20220605-192230_0038_TEST_NOT_IN_DB_tx.json",
		"Test_04803_MUL_MUL_0002_20220605-192230_0038_TEST_NOT_IN_DB_meta.json",
	} {
		if _, err := os.Stat(filepath.Join(folder, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	var meta map[string]any
	readJSON(t, filepath.Join(folder, "Test_04803_MUL_MUL_0002_20220605-192230_0038_TEST_NOT_IN_DB_meta.json"), &meta)
	if meta["audio_file_name"] != unknownFile {
		t.Errorf("audio_file_name = %v, want %s", meta["audio_file_name"], unknownFile)
	}
	if meta["corpus_code"] != nil || meta["audio_duration"] != nil {
		t.Errorf("expected null metadata for unknown file, got %v", meta)
	}
}

func TestLoadWithoutLookup(t *testing.T) {
	l, dir := newLoader(t, nil)
	arts, err := l.Load(context.Background(), []transcript.Group{group(knownFile)})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(arts) != 1 || arts[0].Pin != NoPinFolder {
		t.Fatalf("artifacts = %+v, want one in %s", arts, NoPinFolder)
	}
	if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(arts[0].TxKey))); err != nil {
		t.Errorf("tx artifact missing: %v", err)
	}
}

func TestLoadSkipsUndatedGroups(t *testing.T) {
	l, _ := newLoader(t, qaReport())
	arts, err := l.Load(context.Background(), []transcript.Group{
		group("/audio-efs/no_date_here.wav"),
		group(knownFile),
	})
	if err == nil || !strings.Contains(err.Error(), "no package date") {
		t.Fatalf("err = %v, want package date error", err)
	}
	if len(arts) != 1 || arts[0].File != knownFile {
		t.Errorf("artifacts = %+v, want only the dated group", arts)
	}
}

func TestLoadLookupError(t *testing.T) {
	boom := errors.New("connection refused")
	l, _ := newLoader(t, fakeLookup{err: boom})
	if _, err := l.Load(context.Background(), []transcript.Group{group(knownFile)}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestBuildMetaNullColumns(t *testing.T) {
	duration := 3.5
	m := database.TranscriptMetadata{
		FilePath:      knownFile,
		AudioDuration: &duration,
		Gender:        ptr("MALE"),
		Pin:           database.UnmappedPin,
	}
	data, err := json.Marshal(BuildMeta(knownFile, m, true))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]any{
		"audio_duration":  3.5,
		"audio_file_name": knownFile,
		"corpus_code":     nil,
		"speaker_id": map[string]any{
			"email":           nil,
			"gender":          "MALE",
			"native_language": nil,
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("meta = %v, want %v", got, want)
	}
}

func TestPackageDate(t *testing.T) {
	tests := []struct {
		file    string
		want    string
		wantErr bool
	}{
		{knownFile, "2022-06-05", false},
		{"/audio-efs/Test_12345678_20230411.wav", "", true}, // first run is not a valid date
		{"/audio-efs/call_20230411_rec.wav", "2023-04-11", false},
		{"/audio-efs/call.wav", "", true},
	}
	for _, tt := range tests {
		got, err := PackageDate(tt.file)
		if (err != nil) != tt.wantErr {
			t.Errorf("PackageDate(%q) err = %v, wantErr %v", tt.file, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("PackageDate(%q) = %q, want %q", tt.file, got, tt.want)
		}
	}
}

func TestArtifactName(t *testing.T) {
	tests := []struct {
		file, suffix, want string
	}{
		{knownFile, "_tx.json", "Test_04803_MUL_MUL_0002_20220605-192230_0038_solo2-17-A-1_tx.json"},
		{"relative/a.wav", "_meta.json", "a_meta.json"},
		{`C:\audio\b.wav`, "_tx.json", "b_tx.json"},
		{"no_ext", "_tx.json", "no_ext_tx.json"},
	}
	for _, tt := range tests {
		if got := ArtifactName(tt.file, tt.suffix); got != tt.want {
			t.Errorf("ArtifactName(%q, %q) = %q, want %q", tt.file, tt.suffix, got, tt.want)
		}
	}
}

// Package load writes parsed transcript groups to the artifact store as a
// transcript file and a metadata file per audio file, partitioned by package
// date and speaker pin.
package load

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/transcribe-etl/internal/database"
	"github.com/snarg/transcribe-etl/internal/metrics"
	"github.com/snarg/transcribe-etl/internal/storage"
	"github.com/snarg/transcribe-etl/internal/transcript"
)

// NoPinFolder holds artifacts of files that have no QA report row.
const NoPinFolder = "no-pin"

// MetadataLookup resolves QA report metadata for audio file paths.
type MetadataLookup interface {
	LookupTranscriptMetadata(ctx context.Context, files []string) (map[string]database.TranscriptMetadata, error)
}

// Meta is the metadata artifact written next to each transcript.
type Meta struct {
	AudioDuration *float64 `json:"audio_duration"`
	AudioFileName string   `json:"audio_file_name"`
	CorpusCode    *string  `json:"corpus_code"`
	SpeakerID     Speaker  `json:"speaker_id"`
}

type Speaker struct {
	Email          *string `json:"email"`
	Gender         *string `json:"gender"`
	NativeLanguage *string `json:"native_language"`
}

// Artifact describes one group written to the store.
type Artifact struct {
	File        string `json:"file"`
	PackageDate string `json:"package_date"`
	Pin         string `json:"pin"`
	TxKey       string `json:"tx_key"`
	MetaKey     string `json:"meta_key"`
	Utterances  int    `json:"utterances"`
}

// Loader writes groups to an artifact store.
type Loader struct {
	store  storage.Store
	lookup MetadataLookup
	log    zerolog.Logger
}

// NewLoader creates a loader. lookup may be nil, in which case every group
// lands in the no-pin folder with empty metadata.
func NewLoader(store storage.Store, lookup MetadataLookup, log zerolog.Logger) *Loader {
	return &Loader{
		store:  store,
		lookup: lookup,
		log:    log.With().Str("component", "load").Logger(),
	}
}

// Load writes the transcript and metadata artifacts of every group. A group
// that cannot be written is skipped and its error joined into the returned
// error; the other groups are still written.
func (l *Loader) Load(ctx context.Context, groups []transcript.Group) ([]Artifact, error) {
	if len(groups) == 0 {
		return nil, nil
	}

	meta := map[string]database.TranscriptMetadata{}
	if l.lookup != nil {
		files := make([]string, len(groups))
		for i, g := range groups {
			files[i] = g.File
		}
		var err error
		meta, err = l.lookup.LookupTranscriptMetadata(ctx, files)
		if err != nil {
			return nil, fmt.Errorf("metadata lookup: %w", err)
		}
	}

	var written []Artifact
	var errs []error
	for _, g := range groups {
		m, found := meta[g.File]
		a, err := l.loadGroup(ctx, g, m, found)
		if err != nil {
			l.log.Warn().Err(err).Str("file", g.File).Msg("group not loaded")
			errs = append(errs, err)
			continue
		}
		written = append(written, a)
	}
	return written, errors.Join(errs...)
}

func (l *Loader) loadGroup(ctx context.Context, g transcript.Group, m database.TranscriptMetadata, found bool) (Artifact, error) {
	date, err := PackageDate(g.File)
	if err != nil {
		return Artifact{}, err
	}

	pin := NoPinFolder
	if found {
		pin = m.Pin
	}
	folder := date + "/" + pin
	a := Artifact{
		File:        g.File,
		PackageDate: date,
		Pin:         pin,
		TxKey:       folder + "/" + ArtifactName(g.File, "_tx.json"),
		MetaKey:     folder + "/" + ArtifactName(g.File, "_meta.json"),
		Utterances:  len(g.Utterances),
	}

	utts := g.Utterances
	if utts == nil {
		utts = []transcript.Utterance{}
	}
	tx, err := json.Marshal(utts)
	if err != nil {
		return Artifact{}, fmt.Errorf("marshal transcript %s: %w", g.File, err)
	}
	if err := l.store.Save(ctx, a.TxKey, tx, "application/json"); err != nil {
		return Artifact{}, fmt.Errorf("save %s: %w", a.TxKey, err)
	}
	metrics.ArtifactsWrittenTotal.WithLabelValues("tx").Inc()

	metaJSON, err := json.Marshal(BuildMeta(g.File, m, found))
	if err != nil {
		return Artifact{}, fmt.Errorf("marshal metadata %s: %w", g.File, err)
	}
	if err := l.store.Save(ctx, a.MetaKey, metaJSON, "application/json"); err != nil {
		return Artifact{}, fmt.Errorf("save %s: %w", a.MetaKey, err)
	}
	metrics.ArtifactsWrittenTotal.WithLabelValues("meta").Inc()

	l.log.Debug().
		Str("file", g.File).
		Str("tx_key", a.TxKey).
		Int("utterances", a.Utterances).
		Msg("group loaded")
	return a, nil
}

// BuildMeta assembles the metadata artifact of file. Fields are null when
// the file has no QA report row or the column is NULL.
func BuildMeta(file string, m database.TranscriptMetadata, found bool) Meta {
	meta := Meta{AudioFileName: file}
	if !found {
		return meta
	}
	meta.AudioDuration = m.AudioDuration
	meta.CorpusCode = m.CorpusCode
	meta.SpeakerID = Speaker{
		Email:          m.Email,
		Gender:         m.Gender,
		NativeLanguage: m.NativeLanguage,
	}
	return meta
}

var packageDatePattern = regexp.MustCompile(`\d{8}`)

// PackageDate returns the first eight-digit run of the file name, read as
// YYYYMMDD, formatted as YYYY-MM-DD.
func PackageDate(file string) (string, error) {
	raw := packageDatePattern.FindString(file)
	if raw == "" {
		return "", fmt.Errorf("no package date in %q", file)
	}
	d, err := time.Parse("20060102", raw)
	if err != nil {
		return "", fmt.Errorf("package date %q in %q: %w", raw, file, err)
	}
	return d.Format("2006-01-02"), nil
}

// ArtifactName derives an artifact file name from an audio path: the base
// name with its extension replaced by suffix.
func ArtifactName(file, suffix string) string {
	base := path.Base(strings.ReplaceAll(file, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base)) + suffix
}

// Package modlist implements C10: parsing a modlist manifest (JSON) into
// typed archives and typed directives. Source and directive shapes are
// tagged unions on a "$type" discriminator string, following §4.9's
// "tagged dispatch on the $type string" rule; everything else about the
// wire format is this package's own concern, per spec.md's explicit
// non-goal ("Manifest JSON schema parsing ... field-by-field JSON shape
// is not [specified]").
package modlist

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modkit/installer/internal/directive"
	"github.com/modkit/installer/internal/sources"
)

// Metadata is the manifest's display header (§4.9).
type Metadata struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Author      string `json:"author"`
	Game        string `json:"game"`
	Description string `json:"description"`
}

// Archive is one entry in the manifest's ordered archive list. Index in
// the containing slice is its priority (§3: "preserves order so that
// priority = index is a stable ordering").
type Archive struct {
	Hash    string
	Name    string
	Size    int64
	Source  sources.Source
	MetaIni string
}

// Manifest is C10's parsed output.
type Manifest struct {
	Metadata   Metadata
	Archives   []Archive
	Directives []directive.Directive
}

// ParseError indicates the manifest contained a directive $type string
// this parser doesn't recognize (§4.9: "parser error" for
// unknown directive variants -- unlike unknown *sources*, which map to
// sources.Unknown instead of failing the whole parse).
type ParseError struct {
	Context string
	Type    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("modlist: unrecognized %s $type %q", e.Context, e.Type)
}

type wireManifest struct {
	Metadata   Metadata          `json:"metadata"`
	Archives   []wireArchive     `json:"archives"`
	Directives []json.RawMessage `json:"directives"`
}

type wireArchive struct {
	Hash    string          `json:"hash"`
	Name    string          `json:"name"`
	Size    int64           `json:"size"`
	Source  json.RawMessage `json:"source"`
	MetaIni string          `json:"meta_ini"`
}

type wireHeader struct {
	Type     string              `json:"$type"`
	URL      string              `json:"url"`
	Headers  json.RawMessage     `json:"headers"`
	Mirrors  []string            `json:"mirrors"`
	BaseURL  string              `json:"base_url"`
	GameID   string              `json:"game_id"`
	RelPath  string              `json:"relative_path"`
	GameVer  string              `json:"game_version"`
	GameVerConstraint string     `json:"game_version_constraint"`
	ModID    int                 `json:"mod_id"`
	FileID   int                 `json:"file_id"`
	Domain   string              `json:"game_domain"`
	Metadata map[string]string   `json:"metadata"`
	Instructions string          `json:"instructions"`
	ArchiveHash string           `json:"source_archive_hash"`
	InnerPath   string           `json:"inner_path"`
}

// Parse parses raw JSON manifest text into a Manifest, per §4.9.
func Parse(data []byte) (*Manifest, error) {
	var wire wireManifest
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("modlist: parsing manifest: %w", err)
	}

	m := &Manifest{Metadata: wire.Metadata}

	for i, wa := range wire.Archives {
		src, err := parseSource(wa.Source)
		if err != nil {
			return nil, fmt.Errorf("modlist: archive[%d] %q: %w", i, wa.Name, err)
		}
		m.Archives = append(m.Archives, Archive{
			Hash: wa.Hash, Name: wa.Name, Size: wa.Size, Source: src, MetaIni: wa.MetaIni,
		})
	}

	for i, raw := range wire.Directives {
		d, err := parseDirective(raw)
		if err != nil {
			return nil, fmt.Errorf("modlist: directive[%d]: %w", i, err)
		}
		m.Directives = append(m.Directives, d)
	}

	return m, nil
}

func parseSource(raw json.RawMessage) (sources.Source, error) {
	if len(raw) == 0 {
		return sources.Unknown{}, nil
	}
	var h wireHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("parsing source: %w", err)
	}

	switch h.Type {
	case "Http":
		return sources.Http{URL: h.URL, Headers: parseHeaders(h.Headers), Mirrors: h.Mirrors}, nil
	case "Cdn":
		return sources.Cdn{BaseURL: h.BaseURL}, nil
	case "GameFile":
		return sources.GameFile{GameID: h.GameID, RelativePath: h.RelPath, GameVersion: h.GameVer, GameVersionConstraint: h.GameVerConstraint}, nil
	case "Nexus":
		return sources.Nexus{ModID: h.ModID, FileID: h.FileID, GameDomain: h.Domain, Metadata: h.Metadata}, nil
	case "Manual":
		return sources.Manual{Instructions: h.Instructions, URL: h.URL}, nil
	case "Archive":
		return sources.Archive{SourceArchiveHash: h.ArchiveHash, InnerPath: h.InnerPath}, nil
	default:
		// §4.9: unknown source variant strings map to Unknown, not a
		// parse error -- only unknown directive types abort the parse.
		return sources.Unknown{}, nil
	}
}

// parseHeaders accepts either a JSON object ({"Key":"Value"}) or an
// array of "Key: Value" strings, splitting each at the first colon per
// §4.9's "Header strings of form 'Key: Value' are split at the first
// colon."
func parseHeaders(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}

	var asMap map[string]string
	if err := json.Unmarshal(raw, &asMap); err == nil {
		return asMap
	}

	var asLines []string
	if err := json.Unmarshal(raw, &asLines); err != nil {
		return nil
	}
	out := make(map[string]string, len(asLines))
	for _, line := range asLines {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out
}

type wireDirective struct {
	Type            string   `json:"$type"`
	To              string   `json:"to"`
	Hash            string   `json:"hash"`
	Size            int64    `json:"size"`
	ArchiveHashPath []string `json:"archive_hash_path"`
	FromHash        string   `json:"from_hash"`
	PatchID         string   `json:"patch_id"`
	SourceDataID    string   `json:"source_data_id"`
	TempID          string   `json:"temp_id"`
	State           string   `json:"state"`
	FileStates      []string `json:"file_states"`
	ImageState      string   `json:"image_state"`
	Kind            string   `json:"kind"`
	Sources         []struct {
		Hash         string `json:"hash"`
		RelativePath string `json:"relative_path"`
	} `json:"sources"`
}

func parseDirective(raw json.RawMessage) (directive.Directive, error) {
	var w wireDirective
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("parsing directive: %w", err)
	}
	base := directive.Base{To: w.To, Hash: w.Hash, Size: w.Size}

	switch w.Type {
	case "FromArchive":
		return &directive.FromArchive{Base: base, ArchiveHashPath: w.ArchiveHashPath}, nil
	case "PatchedFromArchive":
		return &directive.PatchedFromArchive{Base: base, ArchiveHashPath: w.ArchiveHashPath, FromHash: w.FromHash, PatchID: w.PatchID}, nil
	case "InlineFile":
		return &directive.InlineFile{Base: base, SourceDataID: w.SourceDataID}, nil
	case "RemappedInlineFile":
		return &directive.RemappedInlineFile{Base: base, SourceDataID: w.SourceDataID}, nil
	case "ArchiveMeta":
		return &directive.ArchiveMeta{Base: base, SourceDataID: w.SourceDataID}, nil
	case "CreateBSA":
		return &directive.CreateBSA{Base: base, TempID: w.TempID, State: w.State, FileStates: w.FileStates}, nil
	case "MergedPatch":
		mergeSources := make([]directive.MergeSource, len(w.Sources))
		for i, s := range w.Sources {
			mergeSources[i] = directive.MergeSource{Hash: s.Hash, RelativePath: s.RelativePath}
		}
		return &directive.MergedPatch{Base: base, Sources: mergeSources}, nil
	case "TransformedTexture":
		return &directive.TransformedTexture{Base: base, ArchiveHashPath: w.ArchiveHashPath, ImageState: w.ImageState}, nil
	case "PropertyFile":
		return &directive.PropertyFile{Base: base, SourceDataID: w.SourceDataID, Kind: directive.PropertyFileKind(w.Kind)}, nil
	case "IgnoredDirectly":
		return &directive.IgnoredDirectly{Base: base}, nil
	case "NoMatch":
		return &directive.NoMatch{Base: base}, nil
	default:
		return nil, &ParseError{Context: "directive", Type: w.Type}
	}
}

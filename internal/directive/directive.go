// Package directive implements C8: the tagged union of installer
// instructions and their common execute contract (§4.8). Every variant
// writes exactly one file under install_dir and verifies its content
// hash in the same pass, except where the spec carves out an explicit
// exception (RemappedInlineFile, FromArchive's two-pass hash).
package directive

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/modkit/installer/internal/errs"
	"github.com/modkit/installer/internal/extract"
	"github.com/modkit/installer/internal/progress"
	"github.com/modkit/installer/internal/vfs"
	"github.com/modkit/installer/internal/xxh"
)

// Base carries the fields every directive variant shares (§3: "all share
// to, hash, size").
type Base struct {
	To   string
	Hash string
	Size int64
}

// Fields returns b itself. Every variant embeds Base, so this promotes
// automatically and satisfies Directive without each variant needing its
// own boilerplate accessor.
func (b Base) Fields() Base { return b }

// Context bundles the four directories and collaborators every variant's
// execute needs, matching §4.8's common contract signature
// (install_dir, extracted_blob_dir, downloads_dir, game_dir, vfs, progress?).
type Context struct {
	InstallDir        string
	ExtractedBlobDir  string
	DownloadsDir      string
	GameDir           string
	VFS               *vfs.Index
	Extractor         extract.Extractor
	Reporter          progress.Reporter
}

// Directive is implemented by every tagged variant. Execute returns the
// xxHash64-base64 actually written, for callers building the installer's
// file-hash cache (§4.8: "populated by step 4/5 for later consumers").
type Directive interface {
	Fields() Base
	Execute(ctx Context) (string, error)
}

// phaseExecute names the InstallError.Phase a directive's own Execute should
// report, kept here so every variant's error wrapping is consistent.
const phaseExecute = "execute"

// writeVerified runs steps 1-2 and 4-6 of the common contract shared by
// every byte-producing variant: delete any existing destination, ensure
// its parent exists, stream data through an xxHash64 digest while
// writing, then verify against want unless want is empty (callers that
// must skip verification, like RemappedInlineFile, pass "").
func writeVerified(ctx Context, to string, want string, data io.Reader) (string, error) {
	dest := filepath.Join(ctx.InstallDir, to)

	if err := os.RemoveAll(dest); err != nil && !os.IsNotExist(err) {
		return "", &errs.InstallError{To: to, Phase: phaseExecute, Cause: errs.NewFileSystemError(dest, errs.FSOpRemove, err)}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", &errs.InstallError{To: to, Phase: phaseExecute, Cause: errs.NewFileSystemError(filepath.Dir(dest), errs.FSOpMkdir, err)}
	}

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", &errs.InstallError{To: to, Phase: phaseExecute, Cause: errs.NewFileSystemError(dest, errs.FSOpCreate, err)}
	}

	digest := xxh.NewDigest()
	size, err := io.Copy(io.MultiWriter(f, digest), data)
	if err != nil {
		f.Close()
		return "", &errs.InstallError{To: to, Phase: phaseExecute, Cause: errs.NewFileSystemError(dest, errs.FSOpWrite, err)}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", &errs.InstallError{To: to, Phase: phaseExecute, Cause: errs.NewFileSystemError(dest, errs.FSOpSync, err)}
	}
	f.Close()

	got := xxh.Encode(digest.Sum64())
	if want != "" && got != want {
		return "", &errs.InstallError{To: to, Phase: phaseExecute, Cause: &errs.ValidationFailedError{
			File: dest, Kind: errs.ValidationKindXXH64, Expected: want, Actual: got,
		}}
	}

	progress.Emit(ctx.Reporter, progress.Event{Kind: progress.KindValidationComplete, ValidationComplete: &progress.ValidationComplete{Path: dest, Valid: true}})
	_ = size
	return got, nil
}

// FromArchive extracts inner_path from the archive named by the first
// element of ArchiveHashPath.
type FromArchive struct {
	Base
	ArchiveHashPath []string // [archive_hash, ...components]
}

func (d *FromArchive) Execute(ctx Context) (string, error) {
	if len(d.ArchiveHashPath) < 1 {
		return "", &errs.InstallError{To: d.To, Phase: phaseExecute, Cause: &errs.ConfigurationError{Message: "FromArchive requires a non-empty archive hash path"}}
	}
	archiveHash, components := d.ArchiveHashPath[0], d.ArchiveHashPath[1:]

	_, ok := ctx.VFS.Lookup(archiveHash, components)
	if !ok {
		return "", &errs.InstallError{To: d.To, Phase: phaseExecute, Cause: &errs.ConfigurationError{Message: "path not found in VFS index"}}
	}
	archivePath, ok := ctx.VFS.Location(archiveHash)
	if !ok {
		return "", &errs.InstallError{To: d.To, Phase: phaseExecute, Cause: &errs.ConfigurationError{Message: "archive " + archiveHash + " has no known disk location"}}
	}

	innerPath := strings.Join(components, "/")
	rc, err := ctx.Extractor.Extract(archivePath, innerPath)
	if err != nil {
		return "", &errs.InstallError{To: d.To, Phase: phaseExecute, Cause: err}
	}
	defer rc.Close()

	// FromArchive re-reads the destination after extraction rather than
	// hashing the extractor's stream in the same pass (§4.8 step 5): the
	// extractor may not expose byte-accurate ordering guarantees the
	// digest would need, so writeVerified's pass is treated as
	// provisional and the hash check happens as a second read below.
	dest := filepath.Join(ctx.InstallDir, d.To)
	if _, err := writeVerified(ctx, d.To, "", rc); err != nil {
		return "", err
	}
	valid, err := xxh.Validate(dest, xxh.Spec{ExpectedXXH64: d.Hash, ExpectedSize: &d.Size}, nil, ctx.Reporter)
	if err != nil {
		return "", &errs.InstallError{To: d.To, Phase: phaseExecute, Cause: err}
	}
	if !valid {
		return "", &errs.InstallError{To: d.To, Phase: phaseExecute, Cause: &errs.ValidationFailedError{File: dest, Kind: errs.ValidationKindXXH64, Expected: d.Hash}}
	}
	progress.Emit(ctx.Reporter, progress.Event{Kind: progress.KindValidationComplete, ValidationComplete: &progress.ValidationComplete{Path: dest, Valid: true}})
	return d.Hash, nil
}

// PatchedFromArchive extracts a source blob, verifies it against
// FromHash, then applies a binary patch loaded from PatchID.
type PatchedFromArchive struct {
	Base
	ArchiveHashPath []string
	FromHash        string
	PatchID         string
	ApplyPatch      func(source []byte, patchID string) ([]byte, error)
}

func (d *PatchedFromArchive) Execute(ctx Context) (string, error) {
	if len(d.ArchiveHashPath) < 1 {
		return "", &errs.InstallError{To: d.To, Phase: phaseExecute, Cause: &errs.ConfigurationError{Message: "PatchedFromArchive requires a non-empty archive hash path"}}
	}
	archiveHash, components := d.ArchiveHashPath[0], d.ArchiveHashPath[1:]
	archivePath, ok := ctx.VFS.Location(archiveHash)
	if !ok {
		return "", &errs.InstallError{To: d.To, Phase: phaseExecute, Cause: &errs.ConfigurationError{Message: "archive " + archiveHash + " has no known disk location"}}
	}

	rc, err := ctx.Extractor.Extract(archivePath, strings.Join(components, "/"))
	if err != nil {
		return "", &errs.InstallError{To: d.To, Phase: phaseExecute, Cause: err}
	}
	source, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return "", &errs.InstallError{To: d.To, Phase: phaseExecute, Cause: errs.NewFileSystemError(archivePath, errs.FSOpRead, err)}
	}

	if got := xxh.EncodeBytes(source); got != d.FromHash {
		return "", &errs.InstallError{To: d.To, Phase: phaseExecute, Cause: &errs.ValidationFailedError{File: archivePath, Kind: errs.ValidationKindXXH64, Expected: d.FromHash, Actual: got}}
	}

	if d.ApplyPatch == nil {
		return "", &errs.InstallError{To: d.To, Phase: phaseExecute, Cause: &errs.ConfigurationError{Message: "no patch applier configured for PatchedFromArchive"}}
	}
	patched, err := d.ApplyPatch(source, d.PatchID)
	if err != nil {
		return "", &errs.InstallError{To: d.To, Phase: phaseExecute, Cause: err}
	}

	return writeVerified(ctx, d.To, d.Hash, bytes.NewReader(patched))
}

// InlineFile writes extracted_blob_dir/SourceDataID verbatim.
type InlineFile struct {
	Base
	SourceDataID string
}

func (d *InlineFile) Execute(ctx Context) (string, error) {
	blobPath := filepath.Join(ctx.ExtractedBlobDir, d.SourceDataID)
	f, err := os.Open(blobPath)
	if err != nil {
		return "", &errs.InstallError{To: d.To, Phase: phaseExecute, Cause: errs.NewFileSystemError(blobPath, errs.FSOpOpen, err)}
	}
	defer f.Close()
	return writeVerified(ctx, d.To, d.Hash, f)
}

// pathMagicTokens is the fixed 9-token substitution table §4.8 names for
// RemappedInlineFile: each of install/game/downloads dir in three
// slash-spellings.
func pathMagicTokens(ctx Context) map[string]string {
	tokens := map[string]string{}
	add := func(token, value string) {
		tokens[token] = value
		tokens[strings.ReplaceAll(token, "/", `\`)] = strings.ReplaceAll(value, "/", `\`)
		tokens[strings.ReplaceAll(token, "/", `\\`)] = strings.ReplaceAll(value, "/", `\\`)
	}
	add("{{INSTALL_DIR}}", ctx.InstallDir)
	add("{{GAME_DIR}}", ctx.GameDir)
	add("{{DOWNLOADS_DIR}}", ctx.DownloadsDir)
	return tokens
}

// RemappedInlineFile is an InlineFile whose bytes are rewritten through
// the path-magic substitution table before being written. Per §4.8/§7,
// hash verification is skipped entirely here because the manifest's hash
// is ambiguous about pre- vs post-remap content (§9 open question); the
// manifest hash is advisory only.
type RemappedInlineFile struct {
	Base
	SourceDataID string
}

func (d *RemappedInlineFile) Execute(ctx Context) (string, error) {
	blobPath := filepath.Join(ctx.ExtractedBlobDir, d.SourceDataID)
	raw, err := os.ReadFile(blobPath)
	if err != nil {
		return "", &errs.InstallError{To: d.To, Phase: phaseExecute, Cause: errs.NewFileSystemError(blobPath, errs.FSOpRead, err)}
	}

	text := string(raw)
	for token, value := range pathMagicTokens(ctx) {
		text = strings.ReplaceAll(text, token, value)
	}

	return writeVerified(ctx, d.To, "", strings.NewReader(text))
}

// ArchiveMeta writes an INI file with a forced [General]\ninstalled=true\n
// header, stripping any pre-existing [General] section and blank lines
// from the source blob first (§4.8).
type ArchiveMeta struct {
	Base
	SourceDataID string
}

func (d *ArchiveMeta) Execute(ctx Context) (string, error) {
	blobPath := filepath.Join(ctx.ExtractedBlobDir, d.SourceDataID)
	raw, err := os.ReadFile(blobPath)
	if err != nil {
		return "", &errs.InstallError{To: d.To, Phase: phaseExecute, Cause: errs.NewFileSystemError(blobPath, errs.FSOpRead, err)}
	}

	formatted := formatMetaINI(raw)
	return writeVerified(ctx, d.To, d.Hash, strings.NewReader(formatted))
}

// formatMetaINI drops any existing [General] header and blank lines,
// then prepends the forced header, matching §4.8's ArchiveMeta rule and
// the §8 scenario 6 worked example byte-for-byte.
func formatMetaINI(raw []byte) string {
	var b strings.Builder
	b.WriteString("[General]\n")
	b.WriteString("installed=true\n")

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.TrimSpace(line) == "[General]" {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// delegated is the shared shape for the four variants §4.8 specifies as
// "contract is the same, actual byte synthesis is not specified here":
// MergedPatch, CreateBSA, TransformedTexture, PropertyFile. Each carries
// a Produce func closing over whatever collaborator actually synthesizes
// its bytes; nil Produce is a configuration error rather than a panic,
// so an installer wired without one of these codecs fails the specific
// directive, not the whole run. Produce is exported plainly (rather than
// via an unexported embedded helper type) so modlist's parser can build
// these directives directly and an installer can attach the codec
// afterward.
func executeDelegated(ctx Context, base Base, produce func(Context) (io.Reader, error)) (string, error) {
	if produce == nil {
		return "", &errs.InstallError{To: base.To, Phase: phaseExecute, Cause: &errs.ConfigurationError{Message: "no byte-synthesis collaborator configured for this directive"}}
	}
	r, err := produce(ctx)
	if err != nil {
		return "", &errs.InstallError{To: base.To, Phase: phaseExecute, Cause: err}
	}
	return writeVerified(ctx, base.To, base.Hash, r)
}

// MergedPatch combines several source files (by hash + relative_path)
// into the destination via a delegated patch-merge algorithm.
type MergedPatch struct {
	Base
	Sources []MergeSource
	Produce func(ctx Context) (io.Reader, error)
}

// MergeSource names one input to a MergedPatch.
type MergeSource struct {
	Hash         string
	RelativePath string
}

func (d *MergedPatch) Execute(ctx Context) (string, error) { return executeDelegated(ctx, d.Base, d.Produce) }

// CreateBSA assembles a BSA/BA2 archive from FileStates under a scratch
// directory named by TempID.
type CreateBSA struct {
	Base
	TempID     string
	State      string
	FileStates []string
	Produce    func(ctx Context) (io.Reader, error)
}

func (d *CreateBSA) Execute(ctx Context) (string, error) { return executeDelegated(ctx, d.Base, d.Produce) }

// TransformedTexture re-encodes an archive-sourced image per ImageState.
type TransformedTexture struct {
	Base
	ArchiveHashPath []string
	ImageState      string
	Produce         func(ctx Context) (io.Reader, error)
}

func (d *TransformedTexture) Execute(ctx Context) (string, error) { return executeDelegated(ctx, d.Base, d.Produce) }

// PropertyFileKind distinguishes the two PropertyFile uses §3 names.
type PropertyFileKind string

const (
	PropertyFileBanner PropertyFileKind = "Banner"
	PropertyFileReadme PropertyFileKind = "Readme"
)

// PropertyFile writes a banner image or readme text sourced from a blob.
type PropertyFile struct {
	Base
	SourceDataID string
	Kind         PropertyFileKind
	Produce      func(ctx Context) (io.Reader, error)
}

func (d *PropertyFile) Execute(ctx Context) (string, error) { return executeDelegated(ctx, d.Base, d.Produce) }

// IgnoredDirectly and NoMatch are no-ops: the installer filters them out
// before the execution phases (§4.8), but they still implement Directive
// so a caller that forgets to filter fails loudly instead of silently
// skipping.
type IgnoredDirectly struct{ Base }

func (d *IgnoredDirectly) Execute(ctx Context) (string, error) {
	return "", &errs.InstallError{To: d.To, Phase: phaseExecute, Cause: &errs.ConfigurationError{Message: "IgnoredDirectly must be filtered before execution, not executed"}}
}

type NoMatch struct{ Base }

func (d *NoMatch) Execute(ctx Context) (string, error) {
	return "", &errs.InstallError{To: d.To, Phase: phaseExecute, Cause: &errs.ConfigurationError{Message: "NoMatch must be filtered before execution, not executed"}}
}

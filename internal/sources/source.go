// Package sources implements the per-protocol download backends of §4.3:
// Http (Range-resume via internal/httpclient), Cdn (chunked format with
// per-part integrity), GameFile (copy from an existing install), Nexus
// (API-authenticated, rate-limited), plus the always-erroring Manual and
// Unknown variants and the extraction-only Archive variant.
package sources

// Source is the tagged union named in §3 ("Download source"). Each
// concrete type below is a variant; Kind distinguishes them without a
// type switch at every call site, though callers are free to type-switch
// when they need variant-specific fields.
type Source interface {
	Kind() string
}

// Http downloads a file directly, falling back to mirrors in order after
// the primary URL exhausts its retry budget.
type Http struct {
	URL     string
	Headers map[string]string
	Mirrors []string
}

func (Http) Kind() string { return "http" }

// Cdn downloads the chunked format described in §4.3: a gzip-compressed
// JSON manifest at BaseURL+"/definition.json.gz" naming parts fetched
// individually and seek-written into the destination.
type Cdn struct {
	BaseURL string
}

func (Cdn) Kind() string { return "cdn" }

// GameFile copies a file out of an existing game installation.
// GameVersionConstraint is the SPEC_FULL §3 addition: when it and
// GameVersion (the installed game's version, as carried on the source)
// are both non-empty, the constraint is parsed as a Masterminds/semver
// constraint and checked against GameVersion before the copy proceeds;
// if either is empty, no check occurs.
type GameFile struct {
	GameID                 string
	RelativePath           string
	GameVersion            string
	GameVersionConstraint  string
}

func (GameFile) Kind() string { return "gamefile" }

// Nexus downloads through the Nexus Mods API, subject to its daily/hourly
// rate limiter and CDN-preference selection.
type Nexus struct {
	ModID       int
	FileID      int
	GameDomain  string
	Metadata    map[string]string
}

func (Nexus) Kind() string { return "nexus" }

// Manual represents a source that requires a human to fetch the file by
// hand (e.g. sites gating downloads behind a browser challenge). It
// always errors in the automated path per §3.
type Manual struct {
	Instructions string
	URL          string // optional, may be empty
}

func (Manual) Kind() string { return "manual" }

// Archive is extraction-only: it names bytes that live inside an
// already-downloaded archive rather than naming something to download.
type Archive struct {
	SourceArchiveHash string
	InnerPath         string
}

func (Archive) Kind() string { return "archive" }

// Unknown always errors; it exists so a malformed manifest entry has
// somewhere to land instead of panicking the parser.
type Unknown struct{}

func (Unknown) Kind() string { return "unknown" }

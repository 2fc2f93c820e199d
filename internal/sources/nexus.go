package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/modkit/installer/internal/elog"
	"github.com/modkit/installer/internal/errs"
	"github.com/modkit/installer/internal/httpclient"
	"github.com/modkit/installer/internal/progress"
	"github.com/modkit/installer/internal/secrets"
)

const nexusAPIBase = "https://api.nexusmods.com/v1"

// Cache TTLs from §4.3 step 4.
const (
	modInfoTTL      = 24 * time.Hour
	fileListTTL     = 12 * time.Hour
	downloadLinkTTL = 6 * time.Hour
)

// cdnPreference is the §4.3 step-5 CDN selection order: substring match
// against the link's name, first match wins, else fall back to the
// first link returned.
var cdnPreference = []string{"CloudFlare", "Amazon CloudFront"}

type modInfoKey struct {
	gameDomain string
	modID      int
}

type fileListKey struct {
	gameDomain string
	modID      int
}

type downloadLinkKey struct {
	gameDomain string
	modID      int
	fileID     int
}

type nexusModInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type nexusFileEntry struct {
	FileID   int    `json:"file_id"`
	FileName string `json:"file_name"`
}

type nexusFileList struct {
	Files []nexusFileEntry `json:"files"`
}

type nexusDownloadLink struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// NexusClient is the process-global API client named in §4.3 step 1:
// "Requires a process-global API client initialized from NEXUS_API_KEY
// env." It owns the rate limiter and the three TTL caches, all of which
// must be shared across every NexusHandler in the process.
type NexusClient struct {
	apiKey string
	http   *http.Client
	limit  *RateLimiter

	modInfo       *ttlCache[modInfoKey, nexusModInfo]
	fileList      *ttlCache[fileListKey, nexusFileList]
	downloadLinks *ttlCache[downloadLinkKey, []nexusDownloadLink]
}

var (
	globalNexusClient   *NexusClient
	globalNexusClientMu sync.Mutex
)

// NexusClientFromEnv lazily initializes the process-global Nexus API
// client from the nexus_api_key secret (NEXUS_API_KEY env var, or the
// [secrets] table in config.toml), matching the teacher's singleton
// pattern in internal/version/assets.go (lazy init + process-wide reuse).
func NexusClientFromEnv(httpClient *http.Client) (*NexusClient, error) {
	globalNexusClientMu.Lock()
	defer globalNexusClientMu.Unlock()

	if globalNexusClient != nil {
		return globalNexusClient, nil
	}

	key, err := getNexusAPIKey()
	if err != nil {
		return nil, &errs.ConfigurationError{
			Message:    "NEXUS_API_KEY is not set",
			Field:      "NEXUS_API_KEY",
			SuggestStr: "export NEXUS_API_KEY with a valid Nexus Mods API key from your account settings",
		}
	}

	globalNexusClient = &NexusClient{
		apiKey:        key,
		http:          httpClient,
		limit:         NewRateLimiter(),
		modInfo:       newTTLCache[modInfoKey, nexusModInfo](modInfoTTL),
		fileList:      newTTLCache[fileListKey, nexusFileList](fileListTTL),
		downloadLinks: newTTLCache[downloadLinkKey, []nexusDownloadLink](downloadLinkTTL),
	}
	return globalNexusClient, nil
}

// getNexusAPIKey is split out so tests can stub it without touching the
// real environment or config file.
var getNexusAPIKey = func() (string, error) { return secrets.Get("nexus_api_key") }

func (c *NexusClient) get(ctx context.Context, reporter progress.Reporter, path string, out interface{}) error {
	if err := c.limit.WaitForHeadroom(reporter); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, nexusAPIBase+path, nil)
	if err != nil {
		return fmt.Errorf("nexus: building request for %s: %w", path, err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &errs.HTTPRequestError{URL: path, Cause: err}
	}
	defer resp.Body.Close()
	c.limit.Observe(resp.Header)

	if resp.StatusCode == http.StatusTooManyRequests {
		return &errs.HTTPRequestError{URL: path, StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return &errs.HTTPRequestError{URL: path, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("nexus: reading response for %s: %w", path, err)
	}
	return decodeDualCase(body, out)
}

// decodeDualCase accepts API responses using either PascalCase or
// lowercase field names (§4.3 step 3) by lowercasing every object key
// (at the top level, or within each element of a top-level array, since
// download_link.json returns an array) before decoding into out, whose
// struct tags are all lowercase.
func decodeDualCase(body []byte, out interface{}) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var rawArr []map[string]json.RawMessage
		if err := json.Unmarshal(body, &rawArr); err != nil {
			return fmt.Errorf("nexus: parsing array response: %w", err)
		}
		lowered := make([]map[string]json.RawMessage, len(rawArr))
		for i, obj := range rawArr {
			lowered[i] = lowerKeys(obj)
		}
		normalized, err := json.Marshal(lowered)
		if err != nil {
			return fmt.Errorf("nexus: normalizing response casing: %w", err)
		}
		return json.Unmarshal(normalized, out)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return fmt.Errorf("nexus: parsing response: %w", err)
	}
	normalized, err := json.Marshal(lowerKeys(raw))
	if err != nil {
		return fmt.Errorf("nexus: normalizing response casing: %w", err)
	}
	return json.Unmarshal(normalized, out)
}

func lowerKeys(m map[string]json.RawMessage) map[string]json.RawMessage {
	lowered := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		lowered[strings.ToLower(k)] = v
	}
	return lowered
}

func (c *NexusClient) ModInfo(ctx context.Context, reporter progress.Reporter, gameDomain string, modID int) (nexusModInfo, error) {
	key := modInfoKey{gameDomain, modID}
	if v, ok := c.modInfo.Get(key); ok {
		return v, nil
	}
	var info nexusModInfo
	path := fmt.Sprintf("/games/%s/mods/%d.json", gameDomain, modID)
	if err := c.get(ctx, reporter, path, &info); err != nil {
		return nexusModInfo{}, err
	}
	c.modInfo.Set(key, info)
	return info, nil
}

func (c *NexusClient) FileList(ctx context.Context, reporter progress.Reporter, gameDomain string, modID int) (nexusFileList, error) {
	key := fileListKey{gameDomain, modID}
	if v, ok := c.fileList.Get(key); ok {
		return v, nil
	}
	var list nexusFileList
	path := fmt.Sprintf("/games/%s/mods/%d/files.json", gameDomain, modID)
	if err := c.get(ctx, reporter, path, &list); err != nil {
		return nexusFileList{}, err
	}
	c.fileList.Set(key, list)
	return list, nil
}

func (c *NexusClient) DownloadLinks(ctx context.Context, reporter progress.Reporter, gameDomain string, modID, fileID int) ([]nexusDownloadLink, error) {
	key := downloadLinkKey{gameDomain, modID, fileID}
	if v, ok := c.downloadLinks.Get(key); ok {
		return v, nil
	}
	var links []nexusDownloadLink
	path := fmt.Sprintf("/games/%s/mods/%d/files/%d/download_link.json", gameDomain, modID, fileID)
	if err := c.get(ctx, reporter, path, &links); err != nil {
		return nil, err
	}
	c.downloadLinks.Set(key, links)
	return links, nil
}

// selectCDN picks the preferred link by the §4.3 step-5 substring
// preference order, falling back to the first link.
func selectCDN(links []nexusDownloadLink) (nexusDownloadLink, bool) {
	if len(links) == 0 {
		return nexusDownloadLink{}, false
	}
	for _, pref := range cdnPreference {
		for _, l := range links {
			if strings.Contains(l.Name, pref) {
				return l, true
			}
		}
	}
	return links[0], true
}

// NexusHandler implements the §4.3 "Nexus source": resolve file list and
// download links through the process-global client, select a preferred
// CDN link, then hand off to C2 for the actual transfer.
type NexusHandler struct {
	Client     *NexusClient
	Downloader *httpclient.Downloader
	MaxRetries int
	Logger     elog.Logger
}

func NewNexusHandler(client *NexusClient, downloader *httpclient.Downloader, maxRetries int) *NexusHandler {
	return &NexusHandler{Client: client, Downloader: downloader, MaxRetries: maxRetries, Logger: elog.Default()}
}

func (h *NexusHandler) Fetch(ctx context.Context, req Request, reporter progress.Reporter) (Result, error) {
	src, ok := req.Source.(Nexus)
	if !ok {
		return Result{}, &errs.ConfigurationError{Message: "NexusHandler received a non-Nexus source"}
	}

	links, err := h.Client.DownloadLinks(ctx, reporter, src.GameDomain, src.ModID, src.FileID)
	if err != nil {
		return Result{}, err
	}
	link, ok := selectCDN(links)
	if !ok {
		return Result{}, &errs.ConfigurationError{
			Message: fmt.Sprintf("no download links returned for mod %d file %d", src.ModID, src.FileID),
		}
	}

	filename := req.Filename
	if filename == "" {
		if list, err := h.Client.FileList(ctx, reporter, src.GameDomain, src.ModID); err == nil {
			for _, f := range list.Files {
				if f.FileID == src.FileID {
					filename = f.FileName
					break
				}
			}
		}
	}
	if filename == "" {
		filename = strconv.Itoa(src.FileID)
	}

	dest := DestinationPath(Request{Filename: filename, DestinationDir: req.DestinationDir}, link.URI)

	if existing, ok := checkExisting(dest, req); ok {
		return existing, nil
	}

	err = httpclient.Retry(ctx, httpclient.RetryConfig{MaxRetries: h.MaxRetries, URL: link.URI}, reporter, func(ctx context.Context) error {
		_, derr := h.Downloader.Download(ctx, link.URI, dest, req.ExpectedSize, nil, reporter)
		return derr
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: KindDownloaded, Size: req.ExpectedSize, Path: dest}, nil
}

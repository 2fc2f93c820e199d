package functional

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/cucumber/godog"

	"github.com/modkit/installer/internal/httpclient"
	"github.com/modkit/installer/internal/sources"
	"github.com/modkit/installer/internal/xxh"
)

func registerCdnSteps(ctx *godog.ScenarioContext) {
	ctx.Step(`^a CDN server with (\d+) parts of (\d+) bytes each$`, aCdnServerWithParts(false))
	ctx.Step(`^a CDN server with (\d+) parts of (\d+) bytes each and a corrupted part 1$`, aCdnServerWithParts(true))
	ctx.Step(`^I download the archive as a CDN source$`, downloadCdnArchive)
}

type cdnFixtureDef struct {
	MungedName string     `json:"munged_name"`
	Hash       string     `json:"hash"`
	Size       int64      `json:"size"`
	Parts      []cdnPart_ `json:"parts"`
}

type cdnPart_ struct {
	Index  int    `json:"index"`
	Size   int64  `json:"size"`
	Hash   string `json:"hash"`
	Offset int64  `json:"offset"`
}

func aCdnServerWithParts(corrupt bool) func(context.Context, int, int) (context.Context, error) {
	return func(ctx context.Context, numParts, partSize int) (context.Context, error) {
		w := getWorld(ctx)

		parts := make([][]byte, numParts)
		for i := range parts {
			b := make([]byte, partSize)
			for j := range b {
				b[j] = byte(i + 1)
			}
			parts[i] = b
		}
		if corrupt && len(parts) > 1 {
			parts[1][0] ^= 0xff
		}

		full := make([]byte, 0, numParts*partSize)
		def := cdnFixtureDef{MungedName: "archive.bin", Size: int64(numParts * partSize)}
		for i, b := range parts {
			def.Parts = append(def.Parts, cdnPart_{
				Index:  i,
				Size:   int64(len(b)),
				Hash:   xxh.EncodeBytes(b),
				Offset: int64(i * partSize),
			})
			full = append(full, b...)
		}
		def.Hash = xxh.EncodeBytes(full)

		// Corrupt the served bytes only after the definition's hashes were
		// taken from the clean parts, so part 1 no longer matches its hash.
		if corrupt && len(parts) > 1 {
			parts[1][0] ^= 0xff
		}

		mux := http.NewServeMux()
		mux.HandleFunc("/definition.json.gz", func(w http.ResponseWriter, r *http.Request) {
			gz := gzip.NewWriter(w)
			json.NewEncoder(gz).Encode(def)
			gz.Close()
		})
		for i, b := range parts {
			body := b
			mux.HandleFunc(fmt.Sprintf("/parts/%d", i), func(w http.ResponseWriter, r *http.Request) {
				w.Write(body)
			})
		}
		srv := httptest.NewServer(mux)
		w.servers = append(w.servers, &httptestServer{Server: srv})

		return context.WithValue(ctx, primaryURLKey{}, srv.URL), nil
	}
}

func downloadCdnArchive(ctx context.Context) error {
	w := getWorld(ctx)
	baseURL, _ := ctx.Value(primaryURLKey{}).(string)

	client := httpclient.New(httpclient.DefaultOptions())
	h := sources.NewCdnHandler(client)
	req := sources.Request{Source: sources.Cdn{BaseURL: baseURL}, DestinationDir: w.dir}

	res, err := h.Fetch(context.Background(), req, w.reporter)
	recordOutcome(w, res, err)
	return nil
}

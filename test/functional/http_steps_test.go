package functional

import (
	"bytes"
	"context"

	"github.com/cucumber/godog"

	"github.com/modkit/installer/internal/httpclient"
	"github.com/modkit/installer/internal/sources"
	"github.com/modkit/installer/internal/xxh"
)

func registerHTTPSteps(ctx *godog.ScenarioContext) {
	ctx.Step(`^an HTTP server serving (\d+) bytes of zeroes at "([^"]*)"$`, anHTTPServerServingZeroes)
	ctx.Step(`^a primary HTTP server that always returns status (\d+)$`, aPrimaryServerAlwaysFailing)
	ctx.Step(`^a mirror HTTP server serving (\d+) bytes of zeroes at "([^"]*)"$`, aMirrorServerServingZeroes)
	ctx.Step(`^an HTTP server that serves (\d+) zero bytes on the first request and the canonical payload after that at "([^"]*)"$`, anHTTPServerWithValidationRetry)

	ctx.Step(`^I download the archive as an HTTP source with expected size (\d+) and no hash$`, downloadPlainHTTP)
	ctx.Step(`^I download the archive as an HTTP source with mirrors and expected size (\d+)$`, downloadWithMirrors)
	ctx.Step(`^I download the archive as an HTTP source with expected size (\d+) and the canonical hash, allowing (\d+) retr(?:y|ies)$`, downloadWithValidationRetry)
}

func anHTTPServerServingZeroes(ctx context.Context, size int, path string) (context.Context, error) {
	w := getWorld(ctx)
	srv := newScriptedServer(path, scriptedResponse{body: make([]byte, size)})
	w.servers = append(w.servers, srv)
	return context.WithValue(ctx, primaryURLKey{}, srv.URL+path), nil
}

func aPrimaryServerAlwaysFailing(ctx context.Context, status int) (context.Context, error) {
	w := getWorld(ctx)
	srv := newScriptedServer("/file.bin", scriptedResponse{status: status})
	w.servers = append(w.servers, srv)
	return context.WithValue(ctx, primaryURLKey{}, srv.URL+"/file.bin"), nil
}

func aMirrorServerServingZeroes(ctx context.Context, size int, path string) (context.Context, error) {
	w := getWorld(ctx)
	srv := newScriptedServer(path, scriptedResponse{body: make([]byte, size)})
	w.servers = append(w.servers, srv)
	return context.WithValue(ctx, mirrorURLKey{}, srv.URL+path), nil
}

func anHTTPServerWithValidationRetry(ctx context.Context, size int, path string) (context.Context, error) {
	w := getWorld(ctx)
	canonical := bytes.Repeat([]byte("a"), size)
	bad := make([]byte, size)
	srv := newScriptedServer(path,
		scriptedResponse{body: bad},
		scriptedResponse{body: canonical},
	)
	w.servers = append(w.servers, srv)
	return context.WithValue(context.WithValue(ctx, primaryURLKey{}, srv.URL+path), canonicalBytesKey{}, canonical), nil
}

type primaryURLKey struct{}
type mirrorURLKey struct{}
type canonicalBytesKey struct{}

func downloadPlainHTTP(ctx context.Context, size int) error {
	w := getWorld(ctx)
	url, _ := ctx.Value(primaryURLKey{}).(string)

	d := httpclient.NewDownloader(httpclient.DefaultOptions())
	h := sources.NewHttpHandler(d, 2)
	req := sources.Request{Source: sources.Http{URL: url}, DestinationDir: w.dir, ExpectedSize: int64(size)}

	res, err := h.Fetch(context.Background(), req, w.reporter)
	recordOutcome(w, res, err)
	return nil
}

func downloadWithMirrors(ctx context.Context, size int) error {
	w := getWorld(ctx)
	primary, _ := ctx.Value(primaryURLKey{}).(string)
	mirror, _ := ctx.Value(mirrorURLKey{}).(string)

	d := httpclient.NewDownloader(httpclient.DefaultOptions())
	h := sources.NewHttpHandler(d, 0)
	req := sources.Request{
		Source:         sources.Http{URL: primary, Mirrors: []string{mirror}},
		DestinationDir: w.dir,
		Filename:       "file.bin",
		ExpectedSize:   int64(size),
	}

	res, err := h.Fetch(context.Background(), req, w.reporter)
	recordOutcome(w, res, err)
	return nil
}

func downloadWithValidationRetry(ctx context.Context, size, maxRetries int) error {
	w := getWorld(ctx)
	url, _ := ctx.Value(primaryURLKey{}).(string)
	canonical, _ := ctx.Value(canonicalBytesKey{}).([]byte)
	hash := xxh.EncodeBytes(canonical)

	dispatch := sources.NewDispatcher()
	d := httpclient.NewDownloader(httpclient.DefaultOptions())
	dispatch.Http = sources.NewHttpHandler(d, 0)

	p := newTestPipeline(dispatch, maxRetries)
	req := sources.Request{
		Source:         sources.Http{URL: url},
		DestinationDir: w.dir,
		ExpectedSize:   int64(size),
		Validation:     xxh.Spec{ExpectedXXH64: hash},
	}

	outcomes := p.Batch(context.Background(), []sources.Request{req}, w.reporter)
	w.metricsSnapshot = p.Metrics().Snapshot()
	recordOutcome(w, outcomes[0].Result, outcomes[0].Err)
	return nil
}

func recordOutcome(w *world, res sources.Result, err error) {
	if err != nil {
		w.err = err
		return
	}
	w.outcomes = append(w.outcomes, outcome{kind: res.String(), size: res.Size, validated: res.Validated})
	w.lastPath = res.Path
}

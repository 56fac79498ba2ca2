package build

import (
	"context"
	"encoding/json"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/starford/typsite/internal/site"
)

var emptyArray = json.RawMessage("[]")

type listingEntry struct {
	key   string
	value json.RawMessage
}

// FilesJSON builds the file listing: a JSON object keyed by the absolute
// path of every file under the content root. Values are empty arrays, or
// the document's queried metadata when data is requested.
func (e *Executor) FilesJSON(ctx context.Context) ([]byte, error) {
	files := SourceFiles(e.cfg.ContentRoot())
	entries := make(chan listingEntry, len(files))

	g, gCtx := errgroup.WithContext(ctx)
	for _, file := range files {
		g.Go(func() error {
			value, err := e.listingValue(gCtx, file)
			if err != nil {
				return err
			}
			entries <- listingEntry{key: file, value: value}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(entries)

	listing := make(map[string]json.RawMessage, len(files))
	for entry := range entries {
		listing[entry.key] = entry.value
	}
	return json.Marshal(listing)
}

func (e *Executor) listingValue(ctx context.Context, file string) (json.RawMessage, error) {
	if e.cfg.FileListing != site.ListingIncludeData {
		return emptyArray, nil
	}
	action, err := site.Classify(file, e.cfg)
	if err != nil {
		return nil, err
	}
	if action.Kind != site.CompileToPath {
		return emptyArray, nil
	}

	out, err := e.compiler.Query(ctx, file)
	if err != nil {
		e.logger.Info("failed to query", slog.String("path", file), slog.String("error", err.Error()))
		return emptyArray, nil
	}
	if !json.Valid(out) {
		e.logger.Warn("query output is not JSON", slog.String("path", file))
		return emptyArray, nil
	}
	return json.RawMessage(out), nil
}

package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/forcekit/agents/internal/observability"
	"github.com/rs/zerolog"
)

// mockDispatcher replays canned fixture files instead of reaching the
// network. A fixture is found by flattening the request path: query
// stripped, "/" replaced with "_". Lookup order per request:
//
//	<root>/<name>.json   single JSON payload
//	<root>/<name>        single plain payload
//	<root>/<name>/       directory; files replayed in sorted order,
//	                     one per call
type mockDispatcher struct {
	root   string
	logger zerolog.Logger

	mu  sync.Mutex
	seq map[string]int
}

func newMockDispatcher(root string, logger zerolog.Logger) (*mockDispatcher, error) {
	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		return nil, &InvalidMockDirError{Dir: root, Reason: "directory does not exist"}
	}
	if err != nil {
		return nil, &InvalidMockDirError{Dir: root, Reason: err.Error()}
	}
	if !info.IsDir() {
		return nil, &InvalidMockDirError{Dir: root, Reason: "not a directory"}
	}

	logger.Info().Str("mock_dir", root).Msg("Mock dispatch enabled")

	return &mockDispatcher{
		root:   root,
		logger: logger,
		seq:    make(map[string]int),
	}, nil
}

func (d *mockDispatcher) Mode() string {
	return "mock"
}

func (d *mockDispatcher) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	name := fixtureName(req.URL)

	jsonPath := filepath.Join(d.root, name+".json")
	plainPath := filepath.Join(d.root, name)

	if body, ok := readFixtureFile(jsonPath); ok {
		d.logger.Debug().Str("fixture", jsonPath).Msg("Replaying mock fixture")
		observability.RecordMockReplay("json")
		return &Response{StatusCode: http.StatusOK, Body: body}, nil
	}

	if info, err := os.Stat(plainPath); err == nil {
		if info.IsDir() {
			return d.replayFromDir(name, plainPath, req)
		}
		if body, ok := readFixtureFile(plainPath); ok {
			d.logger.Debug().Str("fixture", plainPath).Msg("Replaying mock fixture")
			observability.RecordMockReplay("text")
			return &Response{StatusCode: http.StatusOK, Body: body}, nil
		}
	}

	return nil, &MissingMockFileError{
		URL:        req.URL,
		Candidates: []string{jsonPath, plainPath},
	}
}

// replayFromDir serves the next file of a fixture directory. Each call
// consumes one file in sorted listing order.
func (d *mockDispatcher) replayFromDir(name, dir string, req *Request) (*Response, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read mock directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, &MissingMockFileError{URL: req.URL, Candidates: []string{dir}}
	}

	d.mu.Lock()
	idx := d.seq[name]
	d.seq[name] = idx + 1
	d.mu.Unlock()

	if idx >= len(files) {
		return nil, fmt.Errorf("mock fixture sequence exhausted for %s (%d files in %s)", req.URL, len(files), dir)
	}

	path := filepath.Join(dir, files[idx])
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mock file %s: %w", path, err)
	}

	d.logger.Debug().
		Str("fixture", path).
		Int("sequence", idx).
		Msg("Replaying mock fixture")
	observability.RecordMockReplay("dir")

	return &Response{StatusCode: http.StatusOK, Body: body}, nil
}

// fixtureName flattens a request URL into a fixture file name: the
// query string is stripped and path separators become underscores.
func fixtureName(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	} else if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		path = rawURL[:i]
	}

	path = strings.Trim(path, "/")
	return strings.ReplaceAll(path, "/", "_")
}

func readFixtureFile(path string) ([]byte, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, false
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return body, true
}

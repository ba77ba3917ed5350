package openapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	scanerrors "github.com/PentesterFlow/OpenSQLi/internal/errors"
)

// yamlMimeTypes are content types that mean the document body is YAML.
var yamlMimeTypes = []string{
	"text/vnd.yaml",
	"application/yaml",
	"application/x-yaml",
	"text/x-yaml",
	"text/yaml",
}

// maxDocumentSize caps how much of a description we read. 50 MiB covers
// even pathological enterprise specs.
const maxDocumentSize = 50 << 20

// Loader fetches and parses API descriptions from URLs or local files.
// Transient network failures during the fetch are retried.
type Loader struct {
	client  *http.Client
	retrier *scanerrors.Retrier
}

// NewLoader creates a loader. client may be nil for a default one.
func NewLoader(client *http.Client) *Loader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Loader{
		client:  client,
		retrier: scanerrors.NewDefaultRetrier(),
	}
}

// LoadResult carries the parsed document plus where it came from, which the
// normalizer needs for relative server URL resolution.
type LoadResult struct {
	Document  *Document
	SourceURL string // empty for local files
}

// Load retrieves and parses a description from a URL or a filesystem path.
func (l *Loader) Load(ctx context.Context, source string) (*LoadResult, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return l.loadURL(ctx, source)
	}
	return l.loadFile(source)
}

func (l *Loader) loadURL(ctx context.Context, rawURL string) (*LoadResult, error) {
	res, retry := scanerrors.DoWithResult(ctx, l.retrier, "load_description", rawURL,
		func(ctx context.Context) (*LoadResult, error) {
			return l.fetchURL(ctx, rawURL)
		})
	if !retry.Success {
		return nil, retry.LastError
	}
	return res, nil
}

func (l *Loader) fetchURL(ctx context.Context, rawURL string) (*LoadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, scanerrors.NewSchemaError(rawURL, "invalid description URL: "+err.Error())
	}
	req.Header.Set("Accept", "application/json, application/yaml, */*")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, scanerrors.Categorize(err, rawURL)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, scanerrors.NewAuthError(rawURL, resp.StatusCode, "description fetch not authorized")
	case resp.StatusCode != http.StatusOK:
		return nil, scanerrors.NewSchemaError(rawURL,
			fmt.Sprintf("description fetch returned %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, scanerrors.Categorize(err, rawURL)
	}

	isYAML := false
	ct := resp.Header.Get("Content-Type")
	for _, mime := range yamlMimeTypes {
		if strings.Contains(ct, mime) {
			isYAML = true
			break
		}
	}
	if !isYAML && hasYAMLExtension(rawURL) {
		isYAML = true
	}

	doc, err := parse(data, isYAML)
	if err != nil {
		return nil, scanerrors.NewSchemaError(rawURL, err.Error())
	}
	return &LoadResult{Document: doc, SourceURL: rawURL}, nil
}

func (l *Loader) loadFile(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, scanerrors.NewSchemaError(path, "cannot read description file: "+err.Error())
	}

	doc, err := parse(data, hasYAMLExtension(path))
	if err != nil {
		return nil, scanerrors.NewSchemaError(path, err.Error())
	}
	return &LoadResult{Document: doc}, nil
}

// hasYAMLExtension checks the path extension, ignoring query strings.
func hasYAMLExtension(path string) bool {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// parse decodes the document, trying JSON first unless YAML was detected.
// Valid JSON is valid YAML, so the JSON check keeps large JSON specs off
// the slower YAML path.
func parse(data []byte, preferYAML bool) (*Document, error) {
	var doc Document

	if !preferYAML && json.Valid(data) {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid JSON description: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML description: %w", err)
		}
	}

	if !doc.IsOpenAPI3() && !doc.IsSwagger2() {
		return nil, fmt.Errorf("unsupported description version (openapi=%q swagger=%q)", doc.OpenAPI, doc.Swagger)
	}
	return &doc, nil
}

// Parse decodes a description from raw bytes, auto-detecting the format.
func Parse(data []byte) (*Document, error) {
	return parse(data, false)
}

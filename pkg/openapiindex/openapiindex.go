// Package openapiindex builds and caches, per host, the path-template index
// spec §4.3 describes: given a host's OpenAPI document, find the templated
// path (with `{param}` segments) that a concrete request path resolves to.
package openapiindex

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/muesli/cache2go"
	"github.com/safareli/http-proxy/pkg/model"
	"gopkg.in/yaml.v3"
)

const defaultTTL = 15 * time.Minute

var httpMethods = []struct {
	name string
	get  func(*openapi3.PathItem) *openapi3.Operation
}{
	{"GET", func(p *openapi3.PathItem) *openapi3.Operation { return p.Get }},
	{"POST", func(p *openapi3.PathItem) *openapi3.Operation { return p.Post }},
	{"PUT", func(p *openapi3.PathItem) *openapi3.Operation { return p.Put }},
	{"DELETE", func(p *openapi3.PathItem) *openapi3.Operation { return p.Delete }},
	{"PATCH", func(p *openapi3.PathItem) *openapi3.Operation { return p.Patch }},
	{"HEAD", func(p *openapi3.PathItem) *openapi3.Operation { return p.Head }},
	{"OPTIONS", func(p *openapi3.PathItem) *openapi3.Operation { return p.Options }},
	{"TRACE", func(p *openapi3.PathItem) *openapi3.Operation { return p.Trace }},
}

// Index caches one parsed path-template list per host. It deliberately
// holds no process-wide singleton state — callers construct and own each
// *Index instance, per the spec's "no global mutable singletons" design
// note.
type Index struct {
	cache  *cache2go.CacheTable
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures an Index at construction time.
type Option func(*Index)

// WithTTL overrides the default per-host document cache TTL.
func WithTTL(ttl time.Duration) Option {
	return func(idx *Index) { idx.ttl = ttl }
}

// WithLogger attaches a logger used for cache hit/miss diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(idx *Index) { idx.logger = logger }
}

// New creates a fresh, independent Index. cacheName must be unique per
// instance (cache2go keys caches globally by name internally).
func New(cacheName string, opts ...Option) *Index {
	idx := &Index{
		cache: cache2go.Cache(cacheName),
		ttl:   defaultTTL,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Lookup resolves (host, method, concretePath) against the indexed paths
// for source, loading and caching the document on first use for that host.
// It returns (nil, false, nil) when no path template matches — the zero
// value is not itself an error, per spec §4.3's "OpenApiPath|none" return.
func (idx *Index) Lookup(ctx context.Context, host string, source *model.OpenAPISource, method, concretePath string) (*model.OpenAPIPath, bool, error) {
	if source == nil {
		return nil, false, nil
	}

	paths, err := idx.hostPaths(ctx, host, source)
	if err != nil {
		return nil, false, err
	}

	segments := splitSegments(stripQuery(concretePath))
	for _, p := range paths {
		if _, ok := p.Methods[method]; !ok {
			continue
		}
		if len(p.Segments) != len(segments) {
			continue
		}
		if segmentsMatch(p.Segments, segments) {
			match := p
			return &match, true, nil
		}
	}
	return nil, false, nil
}

func (idx *Index) hostPaths(ctx context.Context, host string, source *model.OpenAPISource) ([]model.OpenAPIPath, error) {
	if item, err := idx.cache.Value(host); err == nil {
		idx.logDebug("openapi index cache hit", "host", host)
		return item.Data().([]model.OpenAPIPath), nil
	}
	idx.logDebug("openapi index cache miss", "host", host)

	paths, err := loadPaths(ctx, source)
	if err != nil {
		return nil, err
	}
	idx.cache.Add(host, idx.ttl, paths)
	return paths, nil
}

func loadPaths(ctx context.Context, source *model.OpenAPISource) ([]model.OpenAPIPath, error) {
	data, err := fetchDocument(ctx, source)
	if err != nil {
		return nil, err
	}

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}

	if doc.Paths == nil {
		return nil, nil
	}

	templates := templateOrder(data, doc)

	paths := make([]model.OpenAPIPath, 0, len(templates))
	for _, template := range templates {
		item := doc.Paths.Value(template)
		methods := map[string]struct{}{}
		for _, m := range httpMethods {
			if m.get(item) != nil {
				methods[m.name] = struct{}{}
			}
		}
		if len(methods) == 0 {
			continue
		}
		paths = append(paths, model.OpenAPIPath{
			Template: template,
			Segments: templateSegments(template),
			Methods:  methods,
		})
	}
	return paths, nil
}

// fetchDocument reads the raw document bytes so the parser and the
// declaration-order scan below see the same source.
func fetchDocument(ctx context.Context, source *model.OpenAPISource) ([]byte, error) {
	switch {
	case source.URL != "":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
		if err != nil {
			return nil, fmt.Errorf("build openapi request for %q: %w", source.URL, err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch openapi document %q: %w", source.URL, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch openapi document %q: status %s", source.URL, resp.Status)
		}
		return io.ReadAll(resp.Body)
	case source.Path != "":
		return os.ReadFile(source.Path)
	default:
		return nil, fmt.Errorf("openapi source has neither url nor path")
	}
}

// templateOrder returns the path templates in document declaration order.
// Lookup's "first match wins" contract is defined in terms of that order,
// and kin-openapi's Paths.Map() erases it, so the order is recovered from
// the raw bytes with a yaml.Node scan (mapping keys stay ordered there,
// for JSON documents too — JSON is valid YAML flow syntax). Templates the
// scan misses are appended sorted, so every declared path is still indexed
// deterministically.
func templateOrder(data []byte, doc *openapi3.T) []string {
	known := doc.Paths.Map()
	templates := make([]string, 0, len(known))
	seen := make(map[string]struct{}, len(known))
	for _, k := range pathKeyOrder(data) {
		if _, ok := known[k]; !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		templates = append(templates, k)
	}

	rest := make([]string, 0)
	for k := range known {
		if _, ok := seen[k]; !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(templates, rest...)
}

// pathKeyOrder extracts the keys of the top-level "paths" mapping in the
// order the document declares them. Returns nil when the document can't be
// scanned; templateOrder falls back to sorted keys in that case.
func pathKeyOrder(data []byte) []string {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil
	}
	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil
	}
	docNode := root.Content[0]
	for i := 0; i+1 < len(docNode.Content); i += 2 {
		if docNode.Content[i].Value != "paths" {
			continue
		}
		pathsNode := docNode.Content[i+1]
		if pathsNode.Kind != yaml.MappingNode {
			return nil
		}
		keys := make([]string, 0, len(pathsNode.Content)/2)
		for j := 0; j+1 < len(pathsNode.Content); j += 2 {
			keys = append(keys, pathsNode.Content[j].Value)
		}
		return keys
	}
	return nil
}

func templateSegments(template string) []model.OpenAPIPathSegment {
	raw := splitSegments(template)
	segments := make([]model.OpenAPIPathSegment, len(raw))
	for i, seg := range raw {
		segments[i] = model.OpenAPIPathSegment{
			Value:       seg,
			IsParameter: strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}"),
		}
	}
	return segments
}

func segmentsMatch(template []model.OpenAPIPathSegment, concrete []string) bool {
	for i, seg := range template {
		if seg.IsParameter {
			continue
		}
		if seg.Value != concrete[i] {
			return false
		}
	}
	return true
}

func stripQuery(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		return p[:i]
	}
	return p
}

func splitSegments(p string) []string {
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func (idx *Index) logDebug(msg string, args ...any) {
	if idx.logger != nil {
		idx.logger.Debug(msg, args...)
	}
}

package schema

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"noco-bridge/internal/domain"
)

// recordsPath matches the data endpoint of one table:
// {apiPath}/data/{baseId}/{tableId}/records.
var recordsPath = regexp.MustCompile(`^(.*)/data/([^/{}]+)/([^/{}]+)/records$`)

// LoadDocumentFile reads an API description document from disk and parses it
// with ParseDocument.
func LoadDocumentFile(path string, logger *slog.Logger) (*Registry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("read API document: %w", err)
	}
	return ParseDocument(data, logger)
}

// ParseDocument builds a registry from a pre-fetched OpenAPI document instead
// of calling the metadata endpoints. The base URL is the first server entry
// without template variables; base and table IDs come from paths matching the
// records endpoint, and each path's first operation tag names the table.
// Static documents carry no link-field or view metadata.
func ParseDocument(data []byte, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, domain.ErrSchema(domain.KindInvalidDocument, nil, "parse API document: %v", err)
	}

	baseURL := ""
	for _, srv := range doc.Servers {
		if srv == nil || srv.URL == "" || strings.Contains(srv.URL, "{") {
			continue
		}
		baseURL = strings.TrimRight(srv.URL, "/")
		break
	}
	if baseURL == "" {
		return nil, domain.ErrSchema(domain.KindInvalidDocument, nil, "API document declares no concrete server URL")
	}

	var paths map[string]*openapi3.PathItem
	if doc.Paths != nil {
		paths = doc.Paths.Map()
	}
	urlPaths := make([]string, 0, len(paths))
	for p := range paths {
		urlPaths = append(urlPaths, p)
	}
	sort.Strings(urlPaths)

	var (
		apiPath string
		baseID  string
		tables  []Table
		seen    = map[string]bool{}
	)
	for _, p := range urlPaths {
		m := recordsPath.FindStringSubmatch(p)
		if m == nil {
			continue
		}
		tag := operationTag(paths[p])
		if tag == "" {
			logger.Debug("records path without tag skipped", "path", p)
			continue
		}
		if baseID == "" {
			apiPath, baseID = m[1], m[2]
		} else if m[2] != baseID {
			return nil, domain.ErrSchema(domain.KindInvalidDocument, nil,
				"API document mixes bases %q and %q", baseID, m[2])
		}
		if seen[tag] {
			return nil, domain.ErrSchema(domain.KindInvalidDocument, nil,
				"API document declares table %q more than once", tag)
		}
		seen[tag] = true
		tables = append(tables, Table{Name: tag, ID: m[3]})
	}

	if len(tables) == 0 {
		return nil, domain.ErrSchema(domain.KindNoTablesDiscovered, nil,
			"API document declares no table records paths")
	}

	logger.Info("schema loaded from API document", "base_url", baseURL, "base_id", baseID, "tables", len(tables))
	return newRegistry(baseURL, apiPath, baseID, tables), nil
}

// operationTag returns the first tag of the GET operation, falling back to
// the other operations in method order.
func operationTag(item *openapi3.PathItem) string {
	if item == nil {
		return ""
	}
	if item.Get != nil && len(item.Get.Tags) > 0 {
		return item.Get.Tags[0]
	}
	ops := item.Operations()
	methods := make([]string, 0, len(ops))
	for method := range ops {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	for _, method := range methods {
		if op := ops[method]; op != nil && len(op.Tags) > 0 {
			return op.Tags[0]
		}
	}
	return ""
}

package migrations

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// Script is a generated up/down migration pair for one store.
type Script struct {
	Store   string
	Version string
	Slug    string
	Up      string
	Down    string
}

// Filenames returns the up and down file names for the script.
func (s *Script) Filenames() (string, string) {
	kind, ext := "graph", "cypher"
	if s.Store == StoreElasticsearch {
		kind, ext = "search", "json"
	}
	base := fmt.Sprintf("%s_%s.%s", s.Version, s.Slug, kind)
	return base + ".up." + ext, base + ".down." + ext
}

// Generate renders detected changes into per-store migration scripts. A
// store with no changes produces no script. Graph scripts are Cypher
// statements, search scripts are JSON action plans; both carry review
// comments where a change cannot be applied mechanically.
//
// Relationship-only updates produce no script: edges are maintained at sync
// time, not by schema migration.
func Generate(changes []Change, message, version string) []Script {
	var graphChanges, searchChanges []Change
	for _, change := range changes {
		switch change.StoreType {
		case StoreNeo4j:
			graphChanges = append(graphChanges, change)
		case StoreElasticsearch:
			searchChanges = append(searchChanges, change)
		}
	}

	slug := slugify(message)
	var scripts []Script

	if up := buildGraphUp(graphChanges, message, version); up != "" {
		scripts = append(scripts, Script{
			Store:   StoreNeo4j,
			Version: version,
			Slug:    slug,
			Up:      up,
			Down:    "// Implement downgrade logic as needed\n",
		})
	}

	if up := buildSearchUp(searchChanges, message); up != "" {
		scripts = append(scripts, Script{
			Store:   StoreElasticsearch,
			Version: version,
			Slug:    slug,
			Up:      up,
			Down:    buildSearchDown(message),
		})
	}

	return scripts
}

// WriteScripts writes each script's up/down pair into dir and returns the
// written paths.
func WriteScripts(dir string, scripts []Script) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create migration directory")
	}

	var written []string
	for i := range scripts {
		upName, downName := scripts[i].Filenames()

		upPath := filepath.Join(dir, upName)
		if err := os.WriteFile(upPath, []byte(scripts[i].Up), 0o644); err != nil {
			return written, errors.Wrapf(err, "write %s", upName)
		}
		written = append(written, upPath)

		downPath := filepath.Join(dir, downName)
		if err := os.WriteFile(downPath, []byte(scripts[i].Down), 0o644); err != nil {
			return written, errors.Wrapf(err, "write %s", downName)
		}
		written = append(written, downPath)
	}
	return written, nil
}

func buildGraphUp(changes []Change, message, version string) string {
	var ops []string

	for _, change := range changes {
		action, _ := change.Details["action"].(string)
		switch action {
		case ActionCreateNodeLabel:
			label := detailString(change.Details, "label")
			idField := "id"
			if props, ok := change.Details["properties"].(map[string]any); ok {
				if v, ok := props["id_field"].(string); ok && v != "" {
					idField = v
				}
			}
			ops = append(ops, fmt.Sprintf(
				"// Create constraints for %s\nCREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE;\n",
				change.ModelName, constraintName(label, idField), label, idField))
		case ActionUpdateNodeLabel:
			ops = append(ops, fmt.Sprintf(
				"// Update %s node configuration\n// Manual review may be needed for property changes\n",
				change.ModelName))
		case ActionRemoveNodeLabel:
			label := detailString(change.Details, "label")
			ops = append(ops, fmt.Sprintf(
				"// Remove %s nodes and constraints\nDROP CONSTRAINT %s IF EXISTS;\nMATCH (n:%s) DELETE n;\n",
				change.ModelName, constraintName(label, "id"), label))
		}
	}

	if len(ops) == 0 {
		return ""
	}
	return fmt.Sprintf("// %s\n// Revision: %s\n\n%s", message, version, strings.Join(ops, "\n"))
}

func buildSearchUp(changes []Change, message string) string {
	var actions []map[string]any

	for _, change := range changes {
		action, _ := change.Details["action"].(string)
		switch action {
		case ActionCreateIndex:
			actions = append(actions, map[string]any{
				"action":         "create_index",
				"index_name":     detailString(change.Details, "index_name"),
				"skip_if_exists": true,
				"body": map[string]any{
					"mappings": map[string]any{"properties": map[string]any{}},
				},
				"note": "Auto-generated mapping - review and customize as needed",
			})
		case ActionUpdateIndex:
			index := ""
			if cfg, ok := change.Details["new_config"].(map[string]any); ok {
				index = detailString(cfg, "index_name")
			}
			actions = append(actions, map[string]any{
				"action":     "update_index",
				"index_name": index,
				"note":       "Index updates may require reindexing data",
			})
		case ActionRemoveIndex:
			actions = append(actions, map[string]any{
				"action":          "delete_index",
				"index_name":      detailString(change.Details, "index_name"),
				"skip_if_missing": true,
			})
		}
	}

	if len(actions) == 0 {
		return ""
	}

	doc := map[string]any{"message": message, "actions": actions}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return ""
	}
	return string(data) + "\n"
}

func buildSearchDown(message string) string {
	doc := map[string]any{
		"message": message,
		"actions": []any{},
		"note":    "Implement downgrade logic as needed",
	}
	data, _ := json.MarshalIndent(doc, "", "  ")
	return string(data) + "\n"
}

// constraintName derives a stable constraint name from label and id field,
// e.g. SlackUser/id becomes slack_user_id_unique.
func constraintName(label, idField string) string {
	return fmt.Sprintf("%s_%s_unique", snakeCase(label), idField)
}

func detailString(details map[string]any, key string) string {
	if v, ok := details[key].(string); ok {
		return v
	}
	return ""
}

func snakeCase(s string) string {
	var sb strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				sb.WriteRune('_')
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func slugify(message string) string {
	var sb strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(message)) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			sb.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore && sb.Len() > 0:
			sb.WriteRune('_')
			lastUnderscore = true
		}
	}
	slug := strings.Trim(sb.String(), "_")
	if slug == "" {
		return "annotation_changes"
	}
	return slug
}

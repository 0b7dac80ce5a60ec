// Package manifest loads the ordered list of work items to harvest.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"pageharvest/pkg/config"
	herrors "pageharvest/pkg/errors"
	"pageharvest/pkg/logger"
	"pageharvest/pkg/models"
)

// DefaultIDField is the record key holding the item id
const DefaultIDField = "id"

// ReservedPrefix marks files the artifact store keeps for itself
const ReservedPrefix = ".pageharvest"

// Manifest reads work items from a JSON or YAML file
type Manifest struct {
	path    string
	idField string
	logger  logger.Logger
}

// New creates a manifest reader for cfg
func New(cfg config.ManifestConfig, log logger.Logger) *Manifest {
	idField := cfg.IDField
	if idField == "" {
		idField = DefaultIDField
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Manifest{
		path:    cfg.Path,
		idField: idField,
		logger:  log.WithField("component", "manifest"),
	}
}

// Path returns the manifest location
func (m *Manifest) Path() string {
	return m.path
}

// Load returns the items in file order. A missing file is a MissingManifest
// error; an empty list is not an error.
func (m *Manifest) Load() ([]models.WorkItem, error) {
	content, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, herrors.MissingManifest(m.path, err)
		}
		return nil, invalid(fmt.Sprintf("failed to read %s", m.path), err)
	}

	var records []map[string]interface{}
	switch strings.ToLower(filepath.Ext(m.path)) {
	case ".yaml", ".yml":
		records, err = decodeYAML(content)
	default:
		records, err = decodeJSON(content)
	}
	if err != nil {
		return nil, invalid(fmt.Sprintf("cannot parse %s", m.path), err)
	}

	items := make([]models.WorkItem, 0, len(records))
	seen := make(map[string]int, len(records))
	for i, record := range records {
		id, err := canonicalID(record[m.idField])
		if err != nil {
			return nil, invalid(fmt.Sprintf("record %d: field %q", i, m.idField), err)
		}
		if err := ValidateID(id); err != nil {
			return nil, invalid(fmt.Sprintf("record %d", i), err)
		}
		if first, dup := seen[id]; dup {
			m.logger.WarnWithFields("Duplicate item id, keeping first occurrence", map[string]interface{}{
				"item_id": id,
				"first":   first,
				"record":  i,
			})
			continue
		}
		seen[id] = i

		items = append(items, models.WorkItem{ID: id, Metadata: metadataOf(record, m.idField)})
	}

	m.logger.DebugWithFields("Manifest loaded", map[string]interface{}{
		"path":  m.path,
		"items": len(items),
	})
	return items, nil
}

// ValidateID rejects ids that cannot name a single artifact file
func ValidateID(id string) error {
	switch {
	case strings.HasPrefix(id, ReservedPrefix):
		return fmt.Errorf("id %q uses the reserved prefix %s", id, ReservedPrefix)
	case id == "":
		return fmt.Errorf("id is empty")
	case id == "." || id == "..":
		return fmt.Errorf("id %q is not a valid file name", id)
	case strings.ContainsAny(id, "/\\\x00"):
		return fmt.Errorf("id %q contains a path separator", id)
	}
	return nil
}

func decodeJSON(content []byte) ([]map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()

	var records []map[string]interface{}
	if err := dec.Decode(&records); err != nil {
		return nil, err
	}
	return records, nil
}

func decodeYAML(content []byte) ([]map[string]interface{}, error) {
	var records []map[string]interface{}
	if err := yaml.Unmarshal(content, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// canonicalID renders string and numeric ids; numbers use their shortest
// decimal form so 123 and 123.0 name the same item
func canonicalID(v interface{}) (string, error) {
	switch id := v.(type) {
	case nil:
		return "", fmt.Errorf("missing")
	case string:
		id = strings.TrimSpace(id)
		if id == "" {
			return "", fmt.Errorf("empty")
		}
		return id, nil
	case json.Number:
		if n, err := id.Int64(); err == nil {
			return strconv.FormatInt(n, 10), nil
		}
		f, err := id.Float64()
		if err != nil {
			return "", fmt.Errorf("not a number: %s", id)
		}
		return formatFloat(f)
	case int:
		return strconv.Itoa(id), nil
	case int64:
		return strconv.FormatInt(id, 10), nil
	case uint64:
		return strconv.FormatUint(id, 10), nil
	case float64:
		return formatFloat(id)
	default:
		return "", fmt.Errorf("unsupported type %T", v)
	}
}

func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("not a finite number")
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

func metadataOf(record map[string]interface{}, idField string) map[string]interface{} {
	if len(record) <= 1 {
		return nil
	}
	meta := make(map[string]interface{}, len(record)-1)
	for k, v := range record {
		if k != idField {
			meta[k] = v
		}
	}
	return meta
}

func invalid(msg string, cause error) *herrors.Error {
	return herrors.New(herrors.ErrorTypeInvalidManifest, msg, cause)
}

package annotconv

// Label mappings from source labels to YOLO class indices.

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// SentinelClass is the class index written for unknown labels under SentinelOnUnknown.
const SentinelClass = -1

// UnknownLabelPolicy selects what happens when a label is missing from the mapping.
type UnknownLabelPolicy int

const (
	FailOnUnknown     UnknownLabelPolicy = iota // Fail the file or image with ErrUnknownLabel.
	SentinelOnUnknown                           // Write SentinelClass and log a warning.
)

// ParseUnknownLabelPolicy parses "fail" or "sentinel".
func ParseUnknownLabelPolicy(s string) (UnknownLabelPolicy, error) {
	switch strings.ToLower(s) {
	case "", "fail":
		return FailOnUnknown, nil
	case "sentinel":
		return SentinelOnUnknown, nil
	}
	return FailOnUnknown, fmt.Errorf("unknown label policy %q", s)
}

func (p UnknownLabelPolicy) String() string {
	if p == SentinelOnUnknown {
		return "sentinel"
	}
	return "fail"
}

// LabelMap maps Pascal VOC object names to YOLO class indices.
type LabelMap map[string]int

// Index returns the class index for name.
func (m LabelMap) Index(name string) (int, error) {
	if i, ok := m[name]; ok {
		return i, nil
	}

	known := make([]string, 0, len(m))
	for k := range m {
		known = append(known, k)
	}
	sort.Strings(known)
	return SentinelClass, &UnknownLabelError{Label: name, Known: known}
}

// Names returns the inverse mapping from class index to name.
func (m LabelMap) Names() map[int]string {
	names := make(map[int]string, len(m))
	for k, v := range m {
		names[v] = k
	}
	return names
}

// CategoryMap maps COCO category ids to YOLO class indices.
type CategoryMap map[int]int

// Index returns the class index for the category id.
func (m CategoryMap) Index(id int) (int, error) {
	if i, ok := m[id]; ok {
		return i, nil
	}

	ids := make([]int, 0, len(m))
	for k := range m {
		ids = append(ids, k)
	}
	sort.Ints(ids)
	known := make([]string, len(ids))
	for i, k := range ids {
		known[i] = strconv.Itoa(k)
	}
	return SentinelClass, &UnknownLabelError{Label: strconv.Itoa(id), Known: known}
}

// LoadLabelMap reads a name to index mapping from a YAML (.yaml, .yml) or JSON (.json) file.
func LoadLabelMap(path string) (LabelMap, error) {
	var m LabelMap
	if err := loadMapping(path, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadCategoryMap reads a COCO category id to index mapping from a YAML or JSON file. JSON object
// keys must be decimal category ids.
func LoadCategoryMap(path string) (CategoryMap, error) {
	var m CategoryMap
	if err := loadMapping(path, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func loadMapping(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read label map %q: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, out)
	case ".json":
		err = json.Unmarshal(data, out)
	default:
		return fmt.Errorf("unsupported label map format %q (supported: .yaml, .yml, .json)", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse label map %q: %w", path, err)
	}
	return nil
}

// LabelRename is a single old=new label substring replacement.
type LabelRename struct{ Old, New string }

// ParseLabelRenames parses mappings of the form old=new.
func ParseLabelRenames(mappings []string) ([]LabelRename, error) {
	renames := make([]LabelRename, len(mappings))
	for i, v := range mappings {
		a := strings.Split(v, "=")
		if len(a) != 2 {
			return nil, fmt.Errorf("invalid label rename: %v", v)
		}
		renames[i] = LabelRename{Old: a[0], New: a[1]}
	}
	return renames, nil
}

// applyLabelRenames applies the replacements, in order, to label.
func applyLabelRenames(label string, renames []LabelRename) string {
	for _, r := range renames {
		label = strings.Replace(label, r.Old, r.New, -1)
	}
	return label
}

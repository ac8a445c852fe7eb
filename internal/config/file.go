package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileEnv names the variable that points at an optional YAML config file.
const FileEnv = "EVENT_RADAR_CONFIG"

// values resolves settings from the environment, falling back to the file.
type values struct {
	file map[string]string
}

func newValues() (values, error) {
	path := strings.TrimSpace(os.Getenv(FileEnv))
	if path == "" {
		return values{}, nil
	}
	file, err := loadFile(path)
	if err != nil {
		return values{}, err
	}
	return values{file: file}, nil
}

// loadFile reads a YAML document and flattens it into environment-style keys:
//
//	grouping:
//	  similarity_threshold: 0.35
//	kafka:
//	  brokers: [a:9092, b:9092]
//
// yields GROUPING_SIMILARITY_THRESHOLD=0.35 and KAFKA_BROKERS=a:9092,b:9092.
func loadFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", FileEnv, err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s %q: %w", FileEnv, path, err)
	}

	out := make(map[string]string)
	flatten("", doc, out)
	return out, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		key := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(k), "-", "_"))
		if prefix != "" {
			key = prefix + "_" + key
		}

		switch val := node[k].(type) {
		case map[string]any:
			flatten(key, val, out)
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprint(item))
			}
			out[key] = strings.Join(parts, ",")
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// Package targets reads comment batches from YAML files.
package targets

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bnema/xhs-pilot/internal/domain"
)

type targetsFile struct {
	Targets []domain.CommentTarget `yaml:"targets"`
}

// Load reads comment targets from path. The file is either a list of targets or a
// mapping with a targets key. Entries are returned as written; content checks run
// when the batch executes.
func Load(path string) ([]domain.CommentTarget, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) ([]domain.CommentTarget, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse targets file: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	doc := root.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		var targets []domain.CommentTarget
		if err := doc.Decode(&targets); err != nil {
			return nil, fmt.Errorf("decode targets: %w", err)
		}
		return targets, nil
	case yaml.MappingNode:
		var file targetsFile
		if err := doc.Decode(&file); err != nil {
			return nil, fmt.Errorf("decode targets: %w", err)
		}
		return file.Targets, nil
	default:
		return nil, fmt.Errorf("targets file must hold a list or a targets mapping (line %d)", doc.Line)
	}
}

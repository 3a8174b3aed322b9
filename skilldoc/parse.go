package skilldoc

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// dependencyKeys are frontmatter keys whose values name other skills or
// tools the document relies on.
var dependencyKeys = map[string]bool{
	"allowed-tools": true,
	"dependencies":  true,
	"requires":      true,
}

func IsDependencyKey(key string) bool {
	return dependencyKeys[key]
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// frontmatterEnd returns the index of the closing delimiter line, or -1 when
// the document does not open with a frontmatter block.
func frontmatterEnd(lines []string) int {
	if len(lines) == 0 || strings.TrimRight(lines[0], " \r") != delimiter {
		return -1
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], " \r") == delimiter {
			return i
		}
	}
	return -1
}

// ParseFrontmatter extracts YAML frontmatter and markdown body
func ParseFrontmatter(content string) (map[string]any, string, error) {
	lines := splitLines(content)
	end := frontmatterEnd(lines)
	if end < 0 {
		return nil, "", ErrNoFrontmatter
	}

	var metadata map[string]any
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:end], "\n")), &metadata); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrParseFailed, err)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	return metadata, strings.TrimSpace(strings.Join(lines[end+1:], "\n")), nil
}

// Parse reads a SKILL.md. Documents without frontmatter parse successfully
// with HasFront false and the whole content as body.
func Parse(content []byte) (*Document, error) {
	metadata, body, err := ParseFrontmatter(string(content))
	if err == ErrNoFrontmatter {
		return &Document{Body: strings.TrimSpace(string(content))}, nil
	}
	if err != nil {
		return nil, err
	}

	return &Document{
		Skill:    metadataToSkill(metadata),
		Body:     body,
		Raw:      metadata,
		HasFront: true,
	}, nil
}

func metadataToSkill(m map[string]any) Skill {
	skill := Skill{}

	if v, ok := m["name"].(string); ok {
		skill.Name = strings.TrimSpace(v)
	}
	if v, ok := m["description"].(string); ok {
		skill.Description = strings.TrimSpace(v)
	}
	skill.Version = scalarString(m["version"])
	if v, ok := m["license"].(string); ok {
		skill.License = v
	}
	if v, ok := m["compatibility"].(string); ok {
		skill.Compatibility = v
	}
	skill.AllowedTools = stringList(m["allowed-tools"])
	skill.Dependencies = stringList(m["dependencies"])
	if v, ok := m["metadata"].(map[string]any); ok {
		skill.Metadata = toStringMap(v)
	}

	return skill
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// stringList accepts either a YAML sequence or a space separated string.
func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		return strings.Fields(t)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := scalarString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func toStringMap(m map[string]any) map[string]string {
	result := make(map[string]string, len(m))
	for k, v := range m {
		result[k] = scalarString(v)
	}
	return result
}

// LineSection locates one line of a document.
type LineSection struct {
	InFrontmatter bool
	// Key is the top-level frontmatter key the line belongs to, empty for
	// delimiters and body lines.
	Key string
}

// LineSections classifies each line of content. The result has one entry per
// newline-terminated line.
func LineSections(content []byte) []LineSection {
	lines := splitLines(string(content))
	sections := make([]LineSection, len(lines))
	end := frontmatterEnd(lines)
	if end < 0 {
		return sections
	}

	key := ""
	for i := 0; i <= end; i++ {
		sections[i].InFrontmatter = true
		if i == 0 || i == end {
			continue
		}
		if k, ok := topLevelKey(lines[i]); ok {
			key = k
		}
		sections[i].Key = key
	}
	return sections
}

func topLevelKey(line string) (string, bool) {
	if line == "" || line[0] == ' ' || line[0] == '\t' || line[0] == '-' || line[0] == '#' {
		return "", false
	}
	k, _, found := strings.Cut(line, ":")
	if !found {
		return "", false
	}
	return strings.TrimSpace(k), true
}

// Package skilldoc parses SKILL.md documents: YAML frontmatter followed by a
// markdown body.
package skilldoc

// Skill represents properties parsed from a SKILL.md frontmatter
type Skill struct {
	Name          string            `yaml:"name" json:"name"`
	Description   string            `yaml:"description" json:"description"`
	Version       string            `yaml:"version,omitempty" json:"version,omitempty"`
	License       string            `yaml:"license,omitempty" json:"license,omitempty"`
	Compatibility string            `yaml:"compatibility,omitempty" json:"compatibility,omitempty"`
	AllowedTools  []string          `yaml:"allowed-tools,omitempty" json:"allowed_tools,omitempty"`
	Dependencies  []string          `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	Metadata      map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Document is a parsed SKILL.md.
type Document struct {
	Skill    Skill
	Body     string
	Raw      map[string]any
	HasFront bool
}

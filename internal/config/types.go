package config

// Config is the top-level configuration structure parsed from explainforge YAML.
type Config struct {
	Pipeline   Pipeline   `yaml:"pipeline"`
	Approval   Approval   `yaml:"approval"`
	Monitor    Monitor    `yaml:"monitor"`
	Repository Repository `yaml:"repository"`
	Server     Server     `yaml:"server"`
	Source     Source     `yaml:"source"`
	Generator  Generator  `yaml:"generator"`
}

// Pipeline defines the ordered list of analysis stages and their defaults.
type Pipeline struct {
	Name     string        `yaml:"name"`
	Defaults StageDefaults `yaml:"defaults"`
	Stages   []Stage       `yaml:"stages"`
}

// StageDefaults holds default values applied to stages that don't specify their own.
type StageDefaults struct {
	WordCap int    `yaml:"word_cap"`
	Timeout string `yaml:"timeout"`
}

// Stage defines a single pipeline stage backed by a text-generation call.
type Stage struct {
	ID             string `yaml:"id"`
	PromptTemplate string `yaml:"prompt_template"`
	WordCap        int    `yaml:"word_cap"`
	Disabled       bool   `yaml:"disabled"`
}

// Approval controls which stages require human sign-off before the
// pipeline advances. Mode is "all", "none", or "subset"; Stages is only
// consulted in subset mode.
type Approval struct {
	Mode   string   `yaml:"mode"`
	Stages []string `yaml:"stages"`
}

// Monitor configures the background loop intervals.
type Monitor struct {
	HealthInterval string `yaml:"health_interval"`
	RepoInterval   string `yaml:"repo_interval"`
}

// Repository configures repository analysis: connection defaults, the
// repositories root, session caps, and the scanner toolchain.
type Repository struct {
	Root         string          `yaml:"root"`
	URL          string          `yaml:"url"`
	Branch       string          `yaml:"branch"`
	Username     string          `yaml:"username"`
	Token        string          `yaml:"token"`
	MaxSessions  int             `yaml:"max_sessions"`
	CleanupDelay string          `yaml:"cleanup_delay"`
	ContextLines int             `yaml:"context_lines"`
	Tools        map[string]Tool `yaml:"tools"`
}

// Tool defines an external scanner run over changed files whose extension matches.
type Tool struct {
	Command    string   `yaml:"command"`
	Parser     string   `yaml:"parser"`
	Extensions []string `yaml:"extensions"`
	Timeout    string   `yaml:"timeout"`
}

// Server configures the HTTP API.
type Server struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// Generator configures the text-generation backend. An empty URL selects
// the built-in local generator, which needs no network.
type Generator struct {
	URL     string `yaml:"url"`
	Model   string `yaml:"model"`
	Token   string `yaml:"token"`
	Timeout string `yaml:"timeout"`
}

// Source configures which input item kinds are fetched to seed the pipeline.
// Dir selects the directory-backed fetcher; empty means the built-in samples.
type Source struct {
	Dir        string   `yaml:"dir"`
	Kinds      []string `yaml:"kinds"`
	MaxResults int      `yaml:"max_results"`
}

// DefaultStageIDs is the fixed stage order used when the config lists no stages.
var DefaultStageIDs = []string{
	"contentAnalysis",
	"knowledgeRetrieval",
	"analogyGeneration",
	"analogyValidation",
	"analogyRefinement",
	"explanation",
}

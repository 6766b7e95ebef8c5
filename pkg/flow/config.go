package flow

// Config is the flow configuration document (before the "---" separator).
type Config struct {
	Name  string            `yaml:"name"`
	AppID string            `yaml:"appId"`
	Tags  []string          `yaml:"tags"`
	Env   map[string]string `yaml:"env"`

	// Ext holds free-form extension options. Recognized keys:
	// "jsEngine" selects the scripting backend, "androidWebViewHierarchy"
	// set to "devtools" toggles devtools-based hierarchy dumping.
	Ext map[string]string `yaml:"ext"`

	// Lifecycle hooks, parsed from command lists.
	OnFlowStart    []Command `yaml:"-"`
	OnFlowComplete []Command `yaml:"-"`
}

// Flow is a parsed flow file: configuration plus the ordered command list.
type Flow struct {
	SourcePath string
	Config     Config
	Commands   []Command
}

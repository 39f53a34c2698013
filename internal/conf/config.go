// Package conf defines the dispatcher's configuration surface and
// loads it through viper/YAML, mirroring birdnet-go's internal/conf
// package and cmd/root.go's flag-binding conventions.
package conf

// RegexFilter matches a file's basename against Pattern.
type RegexFilter struct {
	Pattern string `yaml:"pattern" mapstructure:"pattern"`
}

// Filter is the polymorphic (Regex | All) connection/source filter of
// spec.md §3. Exactly one of Regex or All should be set; All takes
// precedence when both are present, mirroring a permissive YAML
// decode over a strict tagged union.
type Filter struct {
	Regex *RegexFilter `yaml:"regex,omitempty" mapstructure:"regex"`
	All   bool         `yaml:"all,omitempty" mapstructure:"all"`
}

// Deduplication configures which attributes of an already-known file
// must match for the SFTP downloader to treat a remote file as
// unchanged and skip the transfer.
type Deduplication struct {
	Hash     bool `yaml:"hash" mapstructure:"hash"`
	Size     bool `yaml:"size" mapstructure:"size"`
	Modified bool `yaml:"modified" mapstructure:"modified"`
}

// DirectorySource is one `directory_sources[]` entry.
type DirectorySource struct {
	Name      string   `yaml:"name" mapstructure:"name"`
	Directory string   `yaml:"directory" mapstructure:"directory"`
	Recursive bool     `yaml:"recursive" mapstructure:"recursive"`
	Events    []string `yaml:"events,omitempty" mapstructure:"events"`
	Filter    Filter   `yaml:"filter" mapstructure:"filter"`
}

// RabbitMQNotify is the `notify.rabbitmq` block of a directory target.
type RabbitMQNotify struct {
	MessageTemplate string `yaml:"message_template" mapstructure:"message_template"`
	Address         string `yaml:"address" mapstructure:"address"`
	Exchange        string `yaml:"exchange" mapstructure:"exchange"`
	RoutingKey      string `yaml:"routing_key" mapstructure:"routing_key"`
}

// Notify is the polymorphic notifier config; rabbitmq is the only
// variant today per spec.md §9, structured so future variants can be
// added as additional optional pointers.
type Notify struct {
	RabbitMQ *RabbitMQNotify `yaml:"rabbitmq,omitempty" mapstructure:"rabbitmq"`
}

// TargetMethod selects how a Target materializes a file onto disk.
type TargetMethod string

const (
	MethodHardlink TargetMethod = "Hardlink"
	MethodCopy     TargetMethod = "Copy"
	MethodSymlink  TargetMethod = "Symlink"
)

// DirectoryTarget is one `directory_targets[]` entry.
type DirectoryTarget struct {
	Name        string       `yaml:"name" mapstructure:"name"`
	Directory   string       `yaml:"directory" mapstructure:"directory"`
	Overwrite   bool         `yaml:"overwrite" mapstructure:"overwrite"`
	Permissions uint32       `yaml:"permissions" mapstructure:"permissions"`
	Method      TargetMethod `yaml:"method" mapstructure:"method"`
	Notify      *Notify      `yaml:"notify,omitempty" mapstructure:"notify"`
}

// SftpSource is one `sftp_sources[]` entry.
type SftpSource struct {
	Name          string         `yaml:"name" mapstructure:"name"`
	Address       string         `yaml:"address" mapstructure:"address"`
	Username      string         `yaml:"username" mapstructure:"username"`
	Password      string         `yaml:"password,omitempty" mapstructure:"password"`
	KeyFile       string         `yaml:"key_file,omitempty" mapstructure:"key_file"`
	KnownHosts    string         `yaml:"known_hosts_file,omitempty" mapstructure:"known_hosts_file"`
	ThreadCount   int            `yaml:"thread_count" mapstructure:"thread_count"`
	Compress      bool           `yaml:"compress" mapstructure:"compress"`
	ScanInterval  int            `yaml:"scan_interval" mapstructure:"scan_interval"`
	Directory     string         `yaml:"directory" mapstructure:"directory"`
	Regex         string         `yaml:"regex" mapstructure:"regex"`
	Recurse       bool           `yaml:"recurse" mapstructure:"recurse"`
	Deduplicate   bool           `yaml:"deduplicate" mapstructure:"deduplicate"`
	Remove        bool           `yaml:"remove" mapstructure:"remove"`
	Deduplication *Deduplication `yaml:"deduplication,omitempty" mapstructure:"deduplication"`
}

// Connection is one `connections[]` entry: a (source, target, filter)
// edge per spec.md §3.
type Connection struct {
	Source string  `yaml:"source" mapstructure:"source"`
	Target string  `yaml:"target" mapstructure:"target"`
	Filter *Filter `yaml:"filter,omitempty" mapstructure:"filter"`
}

// Storage configures the Local Store root.
type Storage struct {
	Directory string `yaml:"directory" mapstructure:"directory"`
}

// CommandQueue configures the broker the scanners enqueue to and the
// consumers read from.
type CommandQueue struct {
	Address string `yaml:"address" mapstructure:"address"`
}

// Postgresql configures the server-side SQL catalog backend.
type Postgresql struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// Sqlite configures the embedded SQL catalog backend.
type Sqlite struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// HTTPServer configures the metrics/health endpoint.
type HTTPServer struct {
	Address string `yaml:"address" mapstructure:"address"`
}

// Logging configures the ambient logging stack (not in spec.md's
// domain scope, but required of any deployable service; see
// SPEC_FULL.md §9).
type Logging struct {
	Level    string `yaml:"level" mapstructure:"level"`
	File     string `yaml:"file,omitempty" mapstructure:"file"`
	Rotation string `yaml:"rotation" mapstructure:"rotation"`
}

// Settings is the root configuration object, loaded from YAML via
// viper, mirroring birdnet-go's conf.Settings. No CLI flag overrides
// its values.
type Settings struct {
	Debug            bool              `yaml:"debug" mapstructure:"debug"`
	Storage          Storage           `yaml:"storage" mapstructure:"storage"`
	CommandQueue     CommandQueue      `yaml:"command_queue" mapstructure:"command_queue"`
	DirectorySources []DirectorySource `yaml:"directory_sources" mapstructure:"directory_sources"`
	DirectoryTargets []DirectoryTarget `yaml:"directory_targets" mapstructure:"directory_targets"`
	SftpSources      []SftpSource      `yaml:"sftp_sources" mapstructure:"sftp_sources"`
	Connections      []Connection      `yaml:"connections" mapstructure:"connections"`
	ScanInterval     int               `yaml:"scan_interval" mapstructure:"scan_interval"`
	Postgresql       *Postgresql       `yaml:"postgresql,omitempty" mapstructure:"postgresql"`
	Sqlite           *Sqlite           `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	HTTPServer       HTTPServer        `yaml:"http_server" mapstructure:"http_server"`
	Logging          Logging           `yaml:"logging" mapstructure:"logging"`
}

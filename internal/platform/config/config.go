package config

type Config struct {
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
	Cache  CacheConfig  `yaml:"cache" mapstructure:"cache"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Web    WebConfig    `yaml:"web" mapstructure:"web"`
}

type ServerConfig struct {
	IP   string `yaml:"ip" mapstructure:"ip"`
	Port int    `yaml:"port" mapstructure:"port"`
}

type LogConfig struct {
	Level string `yaml:"log_level" mapstructure:"log_level"`
	Dir   string `yaml:"log_dir" mapstructure:"log_dir"`
	File  string `yaml:"log_file" mapstructure:"log_file"`
}

// CacheConfig drives the image optimizer: where source assets and
// generated derivatives live, how the cache endpoint is mounted, and how
// many generations may run at once.
type CacheConfig struct {
	// Root is the directory holding served assets. Derivatives are
	// written under <root>/cache/image.
	Root string `yaml:"root" mapstructure:"root"`
	// HandlerPath is the route the image endpoint is mounted on.
	HandlerPath string `yaml:"handler_path" mapstructure:"handler_path"`
	// Parallelism bounds concurrent image generations. Zero means one
	// permit per CPU.
	Parallelism int          `yaml:"parallelism" mapstructure:"parallelism"`
	PreList     bool         `yaml:"pre_list" mapstructure:"pre_list"`
	Limits      SourceLimits `yaml:"limits" mapstructure:"limits"`
}

// SourceLimits rejects pathological source images before the expensive
// decode.
type SourceLimits struct {
	MaxFileSize int64 `yaml:"max_file_size" mapstructure:"max_file_size"`
	MaxPixels   int64 `yaml:"max_pixels" mapstructure:"max_pixels"`
	MaxWidth    int   `yaml:"max_width" mapstructure:"max_width"`
	MaxHeight   int   `yaml:"max_height" mapstructure:"max_height"`
}

type StoreConfig struct {
	Type   string            `yaml:"type" mapstructure:"type"`
	Redis  RedisStoreConfig  `yaml:"redis,omitempty" mapstructure:"redis"`
	SQLite SQLiteStoreConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
}

type RedisStoreConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Username string `yaml:"username,omitempty" mapstructure:"username"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	DB       int    `yaml:"db,omitempty" mapstructure:"db"`
	Prefix   string `yaml:"prefix,omitempty" mapstructure:"prefix"`
}

type SQLiteStoreConfig struct {
	DSN string `yaml:"dsn,omitempty" mapstructure:"dsn"`
}

// WebConfig covers the introspection API and static asset serving.
type WebConfig struct {
	APIEnabled bool `yaml:"api_enabled" mapstructure:"api_enabled"`
	ServeRoot  bool `yaml:"serve_root" mapstructure:"serve_root"`
}

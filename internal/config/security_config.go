package config

type StoreBackend string

const (
	StoreBackendMemory StoreBackend = "memory"
	StoreBackendFile   StoreBackend = "file"
	StoreBackendSQLite StoreBackend = "sqlite"
)

type StoreConfig interface {
	GetStoreBackend() StoreBackend
	GetStorePath() string
	GetStorePassphrase() string
}

type Store struct {
	Backend    StoreBackend `env:"AUTHKIT_STORE" envDefault:"file"`
	Path       string       `env:"AUTHKIT_STORE_PATH" envDefault:"./data"`
	Passphrase string       `env:"AUTHKIT_STORE_PASSPHRASE"`
}

var _ StoreConfig = Store{}

func (s Store) GetStoreBackend() StoreBackend {
	return s.Backend
}

// GetStorePath is a directory for the file store and a database file for sqlite.
func (s Store) GetStorePath() string {
	return s.Path
}

func (s Store) GetStorePassphrase() string {
	return s.Passphrase
}

type LogConfig interface {
	GetLogLevel() string
	GetLogFormat() string
	GetLogFile() string
}

type Logging struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
	File   string `env:"LOG_FILE"`
}

var _ LogConfig = Logging{}

func (l Logging) GetLogLevel() string {
	return l.Level
}

func (l Logging) GetLogFormat() string {
	return l.Format
}

// GetLogFile is a rotatelogs pattern such as "./logs/authkit.%Y%m%d.log".
func (l Logging) GetLogFile() string {
	return l.File
}

// Package config загружает и валидирует конфигурацию агента.
// В отличие от источника (lazy module-level singleton, инициализируемый
// при первом обращении к атрибуту), здесь конфигурация — immutable
// значение, построенное один раз при старте и прокидываемое по
// указателю во все компоненты, которым оно нужно.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// EnvConfigFile — переменная окружения, переопределяющая путь к
// конфигурационному файлу, если явный -c/--config-file не передан.
const EnvConfigFile = "UPPARAT_CONFIG_FILE"

// EnvVerbose — переменная окружения, форсирующая DEBUG уровень
// логирования, эквивалент -v/--verbose.
const EnvVerbose = "UPPARAT_VERBOSE"

const (
	defaultBrokerPort     = 1883
	defaultClientID       = "upparat"
	defaultRetryInterval  = 60
	defaultMaxRetries     = 60
	defaultLogLevel       = "info"
)

// serviceName — подкаталог, который агент добавляет к настроенному
// download_location и создаёт сам, а не требует от оператора заранее.
const serviceName = "upparat"

// Service описывает сервисный раздел конфигурации.
type Service struct {
	LogLevel         string `yaml:"log_level"`
	DownloadLocation string `yaml:"download_location"`
	Sentry           string `yaml:"sentry"`
}

// Broker описывает раздел подключения к message bus-у.
type Broker struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	ThingName string `yaml:"thing_name"`
	ClientID  string `yaml:"client_id"`
	CAFile    string `yaml:"cafile"`
	CertFile  string `yaml:"certfile"`
	KeyFile   string `yaml:"keyfile"`
}

// Hooks описывает раздел внешних команд жизненного цикла.
type Hooks struct {
	Version       string `yaml:"version"`
	Download      string `yaml:"download"`
	Ready         string `yaml:"ready"`
	Install       string `yaml:"install"`
	Restart       string `yaml:"restart"`
	RetryInterval int    `yaml:"retry_interval"`
	MaxRetries    int    `yaml:"max_retries"`
}

// Config — полная, неизменяемая после загрузки конфигурация агента.
type Config struct {
	Service Service `yaml:"service"`
	Broker  Broker  `yaml:"broker"`
	Hooks   Hooks   `yaml:"hooks"`
}

// Load читает файл path, применяет значения по умолчанию, накладывает
// verbose- и thing-name-override и валидирует результат. Это
// единственная точка входа; возвращённое значение дальше не мутируется.
//
// thingNameOverride, если не пустой (-t/--thing-name), побеждает и
// значение из файла, и hostname-default.
func Load(path string, verbose bool, thingNameOverride string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if verbose {
		cfg.Service.LogLevel = "debug"
	}

	if thingNameOverride != "" {
		cfg.Broker.ThingName = thingNameOverride
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaultLogLevel
	}
	if cfg.Broker.Port == 0 {
		cfg.Broker.Port = defaultBrokerPort
	}
	if cfg.Broker.ThingName == "" {
		if hostname, err := os.Hostname(); err == nil {
			cfg.Broker.ThingName = hostname
		}
	}
	if cfg.Broker.ClientID == "" {
		cfg.Broker.ClientID = defaultClientID
	}
	if cfg.Hooks.RetryInterval == 0 {
		cfg.Hooks.RetryInterval = defaultRetryInterval
	}
	if cfg.Hooks.MaxRetries == 0 {
		cfg.Hooks.MaxRetries = defaultMaxRetries
	}
}

// validate проверяет все конфигурационные инварианты, перечисленные
// в протоколе: доступность download-location на запись и выполнение,
// исполняемость заданных hook-ов, и all-or-none + порт-правило для
// TLS material.
func validate(cfg *Config) error {
	if cfg.Service.DownloadLocation == "" {
		return fmt.Errorf("config: service.download_location is required")
	}
	resolved, err := prepareDownloadLocation(cfg.Service.DownloadLocation)
	if err != nil {
		return err
	}
	cfg.Service.DownloadLocation = resolved

	for name, path := range map[string]string{
		"version":  cfg.Hooks.Version,
		"download": cfg.Hooks.Download,
		"ready":    cfg.Hooks.Ready,
		"install":  cfg.Hooks.Install,
		"restart":  cfg.Hooks.Restart,
	} {
		if path == "" {
			continue
		}
		if err := checkExecutable(path); err != nil {
			return fmt.Errorf("config: hooks.%s: %w", name, err)
		}
	}

	set := []bool{cfg.Broker.CAFile != "", cfg.Broker.CertFile != "", cfg.Broker.KeyFile != ""}
	anySet := set[0] || set[1] || set[2]
	allSet := set[0] && set[1] && set[2]
	if anySet && !allSet {
		return fmt.Errorf("config: broker cafile/certfile/keyfile must be set together or not at all")
	}
	if allSet && cfg.Broker.Port != 443 && cfg.Broker.Port != 8883 {
		return fmt.Errorf("config: TLS requires broker.port 443 or 8883, got %d", cfg.Broker.Port)
	}

	return nil
}

// prepareDownloadLocation добавляет к настроенному пути сервисный
// подкаталог, создаёт его (если уже существует — не ошибка) и
// проверяет, что он пригоден для записи. Возвращает разрешённый путь,
// который дальше используется как фактический download-location.
func prepareDownloadLocation(path string) (string, error) {
	resolved := filepath.Join(path, serviceName)
	if err := os.MkdirAll(resolved, 0o755); err != nil {
		return "", fmt.Errorf("download_location %s: %w", resolved, err)
	}
	if err := checkWritableDir(resolved); err != nil {
		return "", err
	}
	return resolved, nil
}

func checkWritableDir(path string) error {
	probe := filepath.Join(path, ".upparat-write-probe-"+uuid.NewString())
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("download_location %s is not writable: %w", path, err)
	}
	f.Close()
	os.Remove(probe)
	return nil
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

// ResolvePath выбирает конфигурационный файл: explicit flag wins,
// otherwise the environment variable, otherwise an error.
func ResolvePath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv(EnvConfigFile); env != "" {
		return env, nil
	}
	return "", fmt.Errorf("config: no config file given (-c/--config-file or %s)", EnvConfigFile)
}

// ResolveVerbose решает, форсировать ли DEBUG: явный флаг или
// переменная окружения.
func ResolveVerbose(flagValue bool) bool {
	if flagValue {
		return true
	}
	return os.Getenv(EnvVerbose) != ""
}

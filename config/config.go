package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/dhcgn/imap-otp/extract"
)

// ErrConfig marks every error caused by missing or invalid settings.
var ErrConfig = errors.New("invalid configuration")

// SecretStore resolves a password for a username, e.g. from the OS keyring.
type SecretStore interface {
	Password(user string) (string, error)
}

// Config captures every setting of one invocation. Nothing reads the environment after
// LoadConfig returns.
type Config struct {
	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPass           string
	UseTLS             bool
	InsecureSkipVerify bool
	Folder             string
	Sender             string
	MboxPath           string
	Timeout            time.Duration
	UseKeyring         bool
	Phrase             string
	Fallbacks          []string
	LogLevel           string
	LogDir             string
	Pretty             bool
}

const (
	DefaultHost   = "imap.gmail.com"
	DefaultPort   = 993
	DefaultFolder = "INBOX"
	DefaultSender = "no-reply@groceries.albertsons.com"
)

// envNames lists the environment variables for each setting, first match wins.
var envNames = map[string][]string{
	"imap-host": {"IMAP_HOST"},
	"imap-port": {"IMAP_PORT"},
	"imap-user": {"IMAP_USER", "GMAIL_USERNAME"},
	"imap-pass": {"IMAP_PASS", "GMAIL_APP_PASSWORD"},
	"folder":    {"IMAP_FOLDER"},
	"sender":    {"OTP_SENDER"},
	"mbox":      {"OTP_MBOX"},
	"timeout":   {"OTP_TIMEOUT"},
	"phrase":    {"OTP_PHRASE"},
	"log-level": {"LOG_LEVEL"},
}

// RegisterPersistentFlags attaches the flags shared by the root command and its
// subcommands.
func RegisterPersistentFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "Optional config file (yaml, toml, json) with flag names as keys")
	flags.String("env-file", ".env", "Dotenv file with IMAP_* / GMAIL_* / OTP_* variables")
	flags.String("phrase", extract.DefaultPhrase, "Text that precedes the code, matched literally and followed by a colon")
	flags.StringSlice("fallback-charset", extract.DefaultFallbacks, "Charsets tried in order when the declared one fails")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for an additional log file")
	flags.Bool("pretty", false, "Styled terminal output instead of plain lines")
}

// RegisterFlags attaches the mailbox flags to the provided command.
func RegisterFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("imap-host", DefaultHost, "IMAP server hostname")
	flags.Int("imap-port", DefaultPort, "IMAP server port")
	flags.String("imap-user", "", "IMAP username (falls back to IMAP_USER or GMAIL_USERNAME)")
	flags.String("imap-pass", "", "IMAP password (falls back to IMAP_PASS or GMAIL_APP_PASSWORD)")
	flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.String("folder", DefaultFolder, "Mailbox folder to search")
	flags.String("sender", DefaultSender, "Sender address whose latest message carries the code")
	flags.String("mbox", "", "Read from a local mbox archive instead of IMAP")
	flags.Duration("timeout", 0, "Overall deadline for the retrieval, e.g. 30s (0 means none)")
	flags.Bool("keyring", false, "Look up a missing password in the OS keyring")
}

// LoadConfig resolves the settings of cmd from flags, environment, the dotenv file and
// the config file, in that order of precedence. Secrets may be nil when no keyring
// lookup is wanted.
func LoadConfig(cmd *cobra.Command, secrets SecretStore) (Config, error) {
	v, err := newViper(cmd)
	if err != nil {
		return Config{}, err
	}

	fallbacks, err := stringList(v.Get("fallback-charset"))
	if err != nil {
		return Config{}, invalid(err, "--fallback-charset")
	}

	logLevel := strings.ToLower(strings.TrimSpace(v.GetString("log-level")))
	if logLevel == "warning" {
		logLevel = "warn"
	}

	cfg := Config{
		IMAPHost:           strings.TrimSpace(v.GetString("imap-host")),
		IMAPPort:           v.GetInt("imap-port"),
		IMAPUser:           strings.TrimSpace(v.GetString("imap-user")),
		IMAPPass:           v.GetString("imap-pass"),
		UseTLS:             v.GetBool("use-tls"),
		InsecureSkipVerify: v.GetBool("insecure-skip-verify"),
		Folder:             strings.TrimSpace(v.GetString("folder")),
		Sender:             strings.TrimSpace(v.GetString("sender")),
		MboxPath:           strings.TrimSpace(v.GetString("mbox")),
		Timeout:            v.GetDuration("timeout"),
		UseKeyring:         v.GetBool("keyring"),
		Phrase:             strings.TrimSpace(v.GetString("phrase")),
		Fallbacks:          fallbacks,
		LogLevel:           logLevel,
		LogDir:             v.GetString("log-dir"),
		Pretty:             v.GetBool("pretty"),
	}

	if cfg.IMAPPass == "" && cfg.UseKeyring && cfg.MboxPath == "" {
		if secrets == nil {
			return Config{}, invalid(nil, "--keyring requested but no keyring is available")
		}
		if cfg.IMAPUser == "" {
			return Config{}, invalid(nil, "--keyring requires --imap-user")
		}
		pass, err := secrets.Password(cfg.IMAPUser)
		if err != nil {
			return Config{}, invalid(err, "password lookup")
		}
		cfg.IMAPPass = pass
	}

	if err := validateConfig(cfg, mailboxFlags(cmd)); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("imap-host", DefaultHost)
	v.SetDefault("imap-port", DefaultPort)
	v.SetDefault("use-tls", true)
	v.SetDefault("folder", DefaultFolder)
	v.SetDefault("sender", DefaultSender)
	v.SetDefault("phrase", extract.DefaultPhrase)
	v.SetDefault("fallback-charset", extract.DefaultFallbacks)
	v.SetDefault("log-level", "info")

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}
	for key, names := range envNames {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if path := flagString(cmd, "config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, invalid(err, "reading config file "+path)
		}
	}

	envFile := flagString(cmd, "env-file")
	if envFile != "" {
		dotenv, err := gotenv.Read(envFile)
		switch {
		case errors.Is(err, fs.ErrNotExist) && !flagChanged(cmd, "env-file"):
		case err != nil:
			return nil, invalid(err, "reading env file "+envFile)
		default:
			if err := v.MergeConfigMap(dotenvSettings(dotenv)); err != nil {
				return nil, invalid(err, "merging env file "+envFile)
			}
		}
	}

	return v, nil
}

// dotenvSettings maps dotenv variables onto setting keys. Values from the dotenv file
// rank above the config file but below real environment variables.
func dotenvSettings(env gotenv.Env) map[string]any {
	settings := make(map[string]any)
	for key, names := range envNames {
		for _, name := range names {
			if val, ok := env[name]; ok && val != "" {
				settings[key] = val
				break
			}
		}
	}
	return settings
}

func validateConfig(cfg Config, mailbox bool) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return invalid(nil, fmt.Sprintf("invalid --log-level: %s", cfg.LogLevel))
	}
	if cfg.Phrase == "" {
		return invalid(nil, "--phrase must not be empty")
	}

	if !mailbox {
		return nil
	}

	if cfg.Folder == "" {
		return invalid(nil, "--folder must not be empty")
	}
	if cfg.Sender == "" {
		return invalid(nil, "--sender must not be empty")
	}
	if cfg.Timeout < 0 {
		return invalid(nil, "--timeout must not be negative")
	}
	if cfg.MboxPath != "" {
		return nil
	}

	if cfg.IMAPHost == "" {
		return invalid(nil, "--imap-host is required")
	}
	if cfg.IMAPPort <= 0 || cfg.IMAPPort > 65535 {
		return invalid(nil, "--imap-port must be between 1 and 65535")
	}
	if cfg.IMAPUser == "" {
		return invalid(nil, "IMAP username must be provided via --imap-user, IMAP_USER or GMAIL_USERNAME")
	}
	if cfg.IMAPPass == "" {
		return invalid(nil, "IMAP password must be provided via --imap-pass, IMAP_PASS, GMAIL_APP_PASSWORD or --keyring")
	}
	return nil
}

// stringList accepts the shapes a list setting takes across sources: a flag slice,
// a config file sequence or a comma separated string.
func stringList(raw any) ([]string, error) {
	var items []string
	switch val := raw.(type) {
	case nil:
		return nil, nil
	case []string:
		items = val
	case []any:
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected list item %v", item)
			}
			items = append(items, s)
		}
	case string:
		items = strings.Split(val, ",")
	default:
		return nil, fmt.Errorf("unexpected value %v", raw)
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(strings.Trim(strings.TrimSpace(item), "[]"))
		if item != "" {
			out = append(out, item)
		}
	}
	return out, nil
}

func mailboxFlags(cmd *cobra.Command) bool {
	return cmd.Flags().Lookup("imap-host") != nil
}

func flagString(cmd *cobra.Command, name string) string {
	flag := cmd.Flags().Lookup(name)
	if flag == nil {
		return ""
	}
	return flag.Value.String()
}

func flagChanged(cmd *cobra.Command, name string) bool {
	flag := cmd.Flags().Lookup(name)
	return flag != nil && flag.Changed
}

type configError struct {
	msg string
	err error
}

func invalid(err error, msg string) error {
	return &configError{msg: msg, err: err}
}

func (e *configError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *configError) Unwrap() []error {
	if e.err == nil {
		return []error{ErrConfig}
	}
	return []error{ErrConfig, e.err}
}

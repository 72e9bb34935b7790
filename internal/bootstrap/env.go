package bootstrap

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LookupFunc reads one environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Setting maps one input to its environment variables, in precedence
// order, and a default.
type Setting struct {
	Name    string
	EnvVars []string
	Default string
}

const (
	EnvFactoryAPIKey     = "FACTORY_API_KEY"
	EnvDroidAPIKey       = "DROID_API_KEY"
	EnvDroidAccountName  = "DROID_ACCOUNT_NAME"
	EnvDroidEndpointType = "DROID_ENDPOINT_TYPE"

	DefaultAccountName  = "Env Factory Account"
	DefaultEndpointType = "anthropic"
)

var (
	SettingAPIKey = Setting{
		Name:    "api_key",
		EnvVars: []string{EnvFactoryAPIKey, EnvDroidAPIKey},
	}
	SettingAccountName = Setting{
		Name:    "account_name",
		EnvVars: []string{EnvDroidAccountName},
		Default: DefaultAccountName,
	}
	SettingEndpointType = Setting{
		Name:    "endpoint_type",
		EnvVars: []string{EnvDroidEndpointType},
		Default: DefaultEndpointType,
	}
)

// Resolve returns the first variable whose value is non-empty after
// trimming surrounding whitespace, together with the variable name. The
// returned value is the trimmed one, so a whitespace-only FACTORY_API_KEY
// falls through to DROID_API_KEY. When nothing is set it returns the
// default and an empty source.
func (s Setting) Resolve(lookup LookupFunc) (value, source string) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, key := range s.EnvVars {
		if raw, ok := lookup(key); ok {
			if trimmed := strings.TrimSpace(raw); trimmed != "" {
				return trimmed, key
			}
		}
	}
	return s.Default, ""
}

// Settings holds every environment input of one bootstrap run.
type Settings struct {
	APIKey       string
	KeySource    string
	AccountName  string
	EndpointType string
}

// ResolveSettings resolves all inputs from the setting table.
func ResolveSettings(lookup LookupFunc) Settings {
	key, source := SettingAPIKey.Resolve(lookup)
	name, _ := SettingAccountName.Resolve(lookup)
	endpoint, _ := SettingEndpointType.Resolve(lookup)
	return Settings{
		APIKey:       key,
		KeySource:    source,
		AccountName:  name,
		EndpointType: endpoint,
	}
}

// LoadEnvFile loads a dotenv file into the process environment without
// overriding variables that are already set. A missing file yields false
// and no error.
func LoadEnvFile(path string) (bool, error) {
	if strings.TrimSpace(path) == "" {
		return false, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := godotenv.Load(path); err != nil {
		return false, err
	}
	return true, nil
}

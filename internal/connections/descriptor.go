// Package connections describes metadata servers and resolves which one
// serves a document, including the credential step for servers whose
// password is not stored.
package connections

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Default values for server descriptors
const (
	DefaultScheme  = "http"
	DefaultPort    = 52773
	DefaultTimeout = 15 * time.Second
	// UnknownUser is the account name of unauthenticated connections.
	UnknownUser = "unknownuser"
)

// Descriptor identifies a metadata server and the namespace to query.
type Descriptor struct {
	// Name is the unique identifier used in servers.toml and env overrides
	Name string `toml:"name"`

	Scheme     string `toml:"scheme,omitempty"`
	Host       string `toml:"host"`
	Port       int    `toml:"port,omitempty"`
	PathPrefix string `toml:"path_prefix,omitempty"`
	Namespace  string `toml:"namespace"`

	// Username supports ${ENV_VAR} expansion.
	Username string `toml:"username,omitempty"`

	// Password supports ${ENV_VAR} expansion. nil means "not stored", which
	// triggers the credential step; an empty string is a stored empty password.
	Password *string `toml:"password,omitempty"`

	Timeout Duration `toml:"timeout,omitempty"`

	// Folders lists workspace-relative directories served by this server.
	Folders []string `toml:"folders,omitempty"`
}

// Duration is a wrapper around time.Duration for TOML serialization.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for Duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// envVarPattern matches ${ENV_VAR} patterns for expansion.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandEnvVars expands ${ENV_VAR} patterns. Unset variables expand to "".
func ExpandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// Validate fills defaults and checks required fields.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("server name is required")
	}
	if d.Host == "" {
		return fmt.Errorf("server %q: host is required", d.Name)
	}
	if d.Namespace == "" {
		return fmt.Errorf("server %q: namespace is required", d.Name)
	}
	if d.Scheme == "" {
		d.Scheme = DefaultScheme
	}
	if d.Scheme != "http" && d.Scheme != "https" {
		return fmt.Errorf("server %q: scheme must be http or https", d.Name)
	}
	if d.Port == 0 {
		d.Port = DefaultPort
	}
	if d.Port < 0 || d.Port > 65535 {
		return fmt.Errorf("server %q: port %d out of range", d.Name, d.Port)
	}
	d.PathPrefix = strings.TrimSuffix(d.PathPrefix, "/")
	if d.PathPrefix != "" && !strings.HasPrefix(d.PathPrefix, "/") {
		d.PathPrefix = "/" + d.PathPrefix
	}
	return nil
}

// BaseURL returns scheme://host:port/prefix without a trailing slash.
func (d Descriptor) BaseURL() string {
	u := url.URL{
		Scheme: d.Scheme,
		Host:   d.Host + ":" + strconv.Itoa(d.Port),
		Path:   d.PathPrefix,
	}
	return strings.TrimSuffix(u.String(), "/")
}

// User returns the expanded username.
func (d Descriptor) User() string {
	return ExpandEnvVars(d.Username)
}

// Secret returns the expanded password and whether one is present.
func (d Descriptor) Secret() (string, bool) {
	if d.Password == nil {
		return "", false
	}
	return ExpandEnvVars(*d.Password), true
}

// GetTimeout returns the timeout, using default if not set.
func (d Descriptor) GetTimeout() time.Duration {
	if d.Timeout.Duration > 0 {
		return d.Timeout.Duration
	}
	return DefaultTimeout
}

// NeedsCredentials reports whether the credential step applies: the server
// is resolved, names an authenticated user and has no password.
func (d Descriptor) NeedsCredentials() bool {
	user := d.User()
	return d.Host != "" &&
		user != "" &&
		!strings.EqualFold(user, UnknownUser) &&
		d.Password == nil
}

// WithPassword returns a copy of d carrying password.
func (d Descriptor) WithPassword(password string) Descriptor {
	d.Password = &password
	return d
}

// String renders name (user@host:port/namespace) without secrets.
func (d Descriptor) String() string {
	user := d.User()
	if user != "" {
		user += "@"
	}
	return fmt.Sprintf("%s (%s%s:%d/%s)", d.Name, user, d.Host, d.Port, d.Namespace)
}

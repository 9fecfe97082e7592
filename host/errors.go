package host

import (
	"errors"
	"fmt"
)

var ErrNoDataSources = errors.New("manifest has no data source to index")

// ConfigError is a fatal problem with a data source definition, detected
// while building a host.
type ConfigError struct {
	DataSource string
	Err        error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("data source %q: %s", e.DataSource, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

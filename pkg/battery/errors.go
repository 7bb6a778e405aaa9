package battery

import (
	"errors"
	"fmt"
)

//ErrNotInitialized returned by reads on a gauge whose Initialize has not succeeded
var ErrNotInitialized = errors.New("battery gauge read before initialization")

//ConfigurationError a gauge parameter that cannot produce meaningful readings
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid battery gauge %s: %s", e.Field, e.Reason)
}

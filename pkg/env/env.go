package env

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

func Must[T any](val T, err error) T {
	if err != nil {
		panic(fmt.Errorf("failed to parse environment: %w", err))
	}
	return val
}

func ParseString(key string) (string, error) {
	str, ok := os.LookupEnv(key)
	if !ok {
		return "", notFoundError(key, "string")
	}
	return str, nil
}

func ParseStringDefault(key, def string) (string, error) {
	str, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	return str, nil
}

func ParseInt(key string) (int, error) {
	str, ok := os.LookupEnv(key)
	if !ok {
		return 0, notFoundError(key, "integer")
	}
	i, err := strconv.Atoi(str)
	if err != nil {
		return 0, invalidValueError(key, "integer")
	}
	return i, nil
}

func ParseIntDefault(key string, def int) (int, error) {
	if _, ok := os.LookupEnv(key); !ok {
		return def, nil
	}
	return ParseInt(key)
}

func ParseBool(key string) (bool, error) {
	str, ok := os.LookupEnv(key)
	if !ok {
		return false, notFoundError(key, "boolean")
	}
	b, err := strconv.ParseBool(str)
	if err != nil {
		return false, fmt.Errorf("%w, true/false or 1/0 expected", invalidValueError(key, "boolean"))
	}
	return b, nil
}

func ParseBoolDefault(key string, def bool) (bool, error) {
	if _, ok := os.LookupEnv(key); !ok {
		return def, nil
	}
	return ParseBool(key)
}

func ParseDuration(key string) (time.Duration, error) {
	str, ok := os.LookupEnv(key)
	if !ok {
		return 0, notFoundError(key, "duration")
	}
	d, err := time.ParseDuration(str)
	if err != nil {
		return 0, invalidValueError(key, "duration")
	}
	return d, nil
}

func ParseDurationDefault(key string, def time.Duration) (time.Duration, error) {
	if _, ok := os.LookupEnv(key); !ok {
		return def, nil
	}
	return ParseDuration(key)
}

func notFoundError(key, varType string) error {
	return fmt.Errorf("env %s with type %s not found", key, varType)
}

func invalidValueError(key, varType string) error {
	return fmt.Errorf("env %s with type %s has invalid value", key, varType)
}

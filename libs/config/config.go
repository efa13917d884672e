package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/kelseyhightower/envconfig"
)

func String(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func RequiredString(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", errors.Newf("%s is required", key)
	}
	return v, nil
}

// Port validates a TCP port value. An empty value takes the fallback.
func Port(key, value, fallback string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		v = fallback
	}
	p, err := strconv.Atoi(v)
	if err != nil || p < 1 || p > 65535 {
		return "", errors.Newf("%s must be a valid TCP port (got %q)", key, v)
	}
	return v, nil
}

// Load fills dst from the environment using envconfig struct tags.
func Load(prefix string, dst any) error {
	if err := envconfig.Process(prefix, dst); err != nil {
		return errors.Wrap(err, "process env config")
	}
	return nil
}

// SplitList splits a comma separated value, dropping blanks.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

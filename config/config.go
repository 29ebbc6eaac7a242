// Package config loads the inputs of an upload from command line flags and
// GitHub Actions style INPUT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"impractical.co/driveup"
	"impractical.co/driveup/gdrive"
)

// EnvPrefix is the prefix GitHub Actions uses when exposing inputs as
// environment variables.
const EnvPrefix = "INPUT"

// Input names, as declared in the action metadata.
const (
	InputCredentials        = "credentials"
	InputParentFolderID     = "parent_folder_id"
	InputSourceFilePath     = "source_filepath"
	InputTargetFilePath     = "target_filepath"
	InputOverwrite          = "overwrite"
	InputChecksum           = "checksum"
	InputChecksumAlgorithm  = "checksum_algorithm"
	InputIntegrityAlgorithm = "integrity_algorithm"
	InputLogLevel           = "log_level"
	InputDryRun             = "dry_run"
	InputTimeout            = "timeout"
)

// ErrInvalid is returned when an input is missing or malformed.
var ErrInvalid = errors.New("invalid configuration")

// Error describes a problem with a single input.
type Error struct {
	Input  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("input %q: %s", e.Input, e.Reason)
}

func (e *Error) Unwrap() error { return ErrInvalid }

// Config holds every input of an upload.
type Config struct {
	Credentials        string
	ParentFolderID     string
	SourceFilePath     string
	TargetFilePath     string
	Overwrite          bool
	Checksum           bool
	ChecksumAlgorithm  string
	IntegrityAlgorithm string
	LogLevel           string
	DryRun             bool
	Timeout            time.Duration
}

// Request returns the driveup.Request described by c.
func (c Config) Request() driveup.Request {
	return driveup.Request{
		SourcePath: c.SourceFilePath,
		TargetPath: c.TargetFilePath,
		ParentID:   c.ParentFolderID,
		Overwrite:  c.Overwrite,
		Checksum:   c.Checksum,
	}
}

var defaults = map[string]interface{}{
	InputOverwrite:          false,
	InputChecksum:           false,
	InputChecksumAlgorithm:  "sha256",
	InputIntegrityAlgorithm: "md5",
	InputLogLevel:           "info",
	InputDryRun:             false,
	InputTimeout:            "10m",
}

// FlagName returns the command line flag name for an input.
func FlagName(input string) string {
	return strings.ReplaceAll(input, "_", "-")
}

// New returns a viper.Viper reading inputs from the environment and from
// any flags in flags named after the inputs. Flags that were set take
// precedence over the environment.
func New(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if flags == nil {
		return v, nil
	}
	for _, input := range []string{
		InputCredentials, InputParentFolderID, InputSourceFilePath, InputTargetFilePath,
		InputOverwrite, InputChecksum, InputChecksumAlgorithm, InputIntegrityAlgorithm,
		InputLogLevel, InputDryRun, InputTimeout,
	} {
		flag := flags.Lookup(FlagName(input))
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(input, flag); err != nil {
			return nil, fmt.Errorf("error binding flag %s: %w", flag.Name, err)
		}
	}
	return v, nil
}

// Load reads and validates a Config from v.
func Load(v *viper.Viper) (Config, error) {
	var err error
	cfg := Config{
		Credentials:        strings.TrimSpace(v.GetString(InputCredentials)),
		ParentFolderID:     strings.TrimSpace(v.GetString(InputParentFolderID)),
		SourceFilePath:     v.GetString(InputSourceFilePath),
		TargetFilePath:     v.GetString(InputTargetFilePath),
		ChecksumAlgorithm:  v.GetString(InputChecksumAlgorithm),
		IntegrityAlgorithm: v.GetString(InputIntegrityAlgorithm),
		LogLevel:           strings.ToLower(v.GetString(InputLogLevel)),
	}
	if cfg.Overwrite, err = parseBool(v, InputOverwrite); err != nil {
		return Config{}, err
	}
	if cfg.Checksum, err = parseBool(v, InputChecksum); err != nil {
		return Config{}, err
	}
	if cfg.DryRun, err = parseBool(v, InputDryRun); err != nil {
		return Config{}, err
	}
	timeout := v.GetString(InputTimeout)
	if cfg.Timeout, err = time.ParseDuration(timeout); err != nil {
		return Config{}, &Error{Input: InputTimeout, Reason: fmt.Sprintf("%q is not a duration", timeout)}
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every required input is set and every value is
// usable.
func Validate(cfg Config) error {
	if cfg.Credentials == "" && !cfg.DryRun {
		return &Error{Input: InputCredentials, Reason: "required"}
	}
	if cfg.ParentFolderID == "" {
		return &Error{Input: InputParentFolderID, Reason: "required"}
	}
	if cfg.SourceFilePath == "" {
		return &Error{Input: InputSourceFilePath, Reason: "required"}
	}
	if _, err := driveup.NewHasher(cfg.ChecksumAlgorithm); err != nil {
		return &Error{Input: InputChecksumAlgorithm, Reason: fmt.Sprintf("must be one of %s", strings.Join(driveup.Algorithms(), ", "))}
	}
	// transfers can only be verified with a digest Drive reports
	integrity, err := driveup.NewHasher(cfg.IntegrityAlgorithm)
	if err != nil || !slices.Contains(gdrive.DigestAlgorithms(), integrity.Algorithm()) {
		return &Error{Input: InputIntegrityAlgorithm, Reason: fmt.Sprintf("must be one of %s", strings.Join(gdrive.DigestAlgorithms(), ", "))}
	}
	switch cfg.LogLevel {
	case "debug", "info", "error":
	default:
		return &Error{Input: InputLogLevel, Reason: fmt.Sprintf("%q is not one of debug, info, error", cfg.LogLevel)}
	}
	if cfg.Timeout <= 0 {
		return &Error{Input: InputTimeout, Reason: "must be positive"}
	}
	return nil
}

// parseBool accepts the same values as strconv.ParseBool, treating an
// empty value as false.
func parseBool(v *viper.Viper, input string) (bool, error) {
	raw := strings.TrimSpace(v.GetString(input))
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &Error{Input: input, Reason: fmt.Sprintf("%q is not a boolean", raw)}
	}
	return b, nil
}

// Package config implements the task's native-property + YAML-profile
// configuration surface (the input to Task.Start), merging one or more
// YAML profile files with native properties layered on top.
package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"s3sink/kcql"
	"s3sink/sinkerr"
)

// AuthMode selects how the S3 client obtains credentials.
type AuthMode string

const (
	AuthCredentials AuthMode = "Credentials"
	AuthDefault     AuthMode = "Default"
)

// WriteMode mirrors stage.Mode at the configuration boundary, kept as a
// separate string-based type here so config stays decoupled from the
// staging package.
type WriteMode string

const (
	WriteModeBuildLocal WriteMode = "BuildLocal"
	WriteModeStreamed   WriteMode = "Streamed"
)

// ErrorPolicy selects the retry/error behavior.
type ErrorPolicy string

const (
	ErrorPolicyThrow ErrorPolicy = "THROW"
	ErrorPolicyNoop  ErrorPolicy = "NOOP"
	ErrorPolicyRetry ErrorPolicy = "RETRY"
)

// Config is the fully resolved task configuration.
type Config struct {
	Statements []kcql.Statement

	AWSAccessKey   string
	AWSSecretKey   string
	AWSAuthMode    AuthMode
	CustomEndpoint string
	VHostBucket    bool

	WriteMode   WriteMode
	LocalTmpDir string

	ErrorPolicy        ErrorPolicy
	ErrorRetryInterval int64 // milliseconds
}

// Load builds a Config from native properties, merging in any YAML
// profiles named by connect.s3.config.profiles first (profiles lowest
// priority, native properties win on conflict).
func Load(props map[string]string, parseKCQL KCQLParser) (*Config, error) {
	merged, err := mergeProfiles(props)
	if err != nil {
		return nil, err
	}
	applyDeprecatedAliases(merged)

	stmtsRaw := getAny(merged, "connect.s3.kcql")
	if stmtsRaw == "" {
		return nil, sinkerr.ErrConfig
	}
	statements, err := parseKCQL(stmtsRaw)
	if err != nil {
		return nil, err
	}
	for _, stmt := range statements {
		if err := stmt.Validate(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Statements:         statements,
		AWSAccessKey:       merged["connect.s3.aws.access.key"],
		AWSSecretKey:       merged["connect.s3.aws.secret.key"],
		AWSAuthMode:        AuthMode(orDefault(merged["connect.s3.aws.auth.mode"], string(AuthDefault))),
		CustomEndpoint:     merged["connect.s3.custom.endpoint"],
		VHostBucket:        parseBool(merged["connect.s3.vhost.bucket"]),
		WriteMode:          WriteMode(orDefault(merged["connect.s3.write.mode"], string(WriteModeStreamed))),
		LocalTmpDir:        orDefault(merged["connect.s3.local.tmp.directory"], os.TempDir()),
		ErrorPolicy:        ErrorPolicy(orDefault(merged["connect.s3.error.policy"], string(ErrorPolicyThrow))),
		ErrorRetryInterval: parseInt64(merged["connect.s3.error.retry.interval"], 60000),
	}
	return cfg, nil
}

// KCQLParser is the external collaborator that tokenizes one or more KCQL
// statements into validated kcql.Statement values; this type only names
// the boundary, it does not implement the grammar.
type KCQLParser func(raw string) ([]kcql.Statement, error)

// mergeProfiles loads every YAML file named by connect.s3.config.profiles
// (comma-separated) and unions their properties under props, which wins on
// any key collision.
func mergeProfiles(props map[string]string) (map[string]string, error) {
	merged := map[string]string{}
	if list := props["connect.s3.config.profiles"]; list != "" {
		for _, path := range strings.Split(list, ",") {
			path = strings.TrimSpace(path)
			if path == "" {
				continue
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			var fileProps map[string]string
			if err := yaml.Unmarshal(data, &fileProps); err != nil {
				return nil, err
			}
			for k, v := range fileProps {
				merged[k] = v
			}
		}
	}
	for k, v := range props {
		merged[k] = v
	}
	return merged, nil
}

// deprecatedAliases mirrors connect.s3.aws.* 1:1 under aws.* for backward
// compatibility; when both are set, the non-deprecated key wins.
var deprecatedAliases = map[string]string{
	"aws.access.key":      "connect.s3.aws.access.key",
	"aws.secret.key":      "connect.s3.aws.secret.key",
	"aws.auth.mode":       "connect.s3.aws.auth.mode",
	"aws.custom.endpoint": "connect.s3.custom.endpoint",
	"aws.vhost.bucket":    "connect.s3.vhost.bucket",
}

func applyDeprecatedAliases(props map[string]string) {
	for oldKey, newKey := range deprecatedAliases {
		if v, ok := props[oldKey]; ok {
			if _, already := props[newKey]; !already {
				props[newKey] = v
			}
		}
	}
}

func getAny(props map[string]string, key string) string { return props[key] }

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func parseBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}

func parseInt64(v string, def int64) int64 {
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

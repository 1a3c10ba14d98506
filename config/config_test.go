package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"s3sink/config"
	"s3sink/kcql"
	"s3sink/sinkerr"
)

func fakeParser(stmts []kcql.Statement, err error) config.KCQLParser {
	return func(raw string) ([]kcql.Statement, error) { return stmts, err }
}

func validStatement() kcql.Statement {
	commit := int64(1000)
	return kcql.Statement{
		Bucket: "my-bucket",
		Prefix: "orders",
		Topic:  "orders-topic",
		Format: kcql.FormatJSON,
		Commit: kcql.CommitPolicy{MaxCount: &commit},
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	props := map[string]string{"connect.s3.kcql": "INSERT INTO my-bucket:orders SELECT * FROM orders-topic"}
	cfg, err := config.Load(props, fakeParser([]kcql.Statement{validStatement()}, nil))
	require.NoError(t, err)

	assert.Equal(t, config.AuthDefault, cfg.AWSAuthMode)
	assert.Equal(t, config.WriteModeStreamed, cfg.WriteMode)
	assert.Equal(t, config.ErrorPolicyThrow, cfg.ErrorPolicy)
	assert.EqualValues(t, 60000, cfg.ErrorRetryInterval)
	assert.Equal(t, os.TempDir(), cfg.LocalTmpDir)
	assert.False(t, cfg.VHostBucket)
}

func TestLoadHonorsExplicitOverrides(t *testing.T) {
	props := map[string]string{
		"connect.s3.kcql":                 "irrelevant, parser is faked",
		"connect.s3.write.mode":           "BuildLocal",
		"connect.s3.error.policy":         "RETRY",
		"connect.s3.error.retry.interval": "5000",
		"connect.s3.vhost.bucket":         "true",
		"connect.s3.local.tmp.directory":  "/tmp/s3sink-test",
	}
	cfg, err := config.Load(props, fakeParser([]kcql.Statement{validStatement()}, nil))
	require.NoError(t, err)

	assert.Equal(t, config.WriteModeBuildLocal, cfg.WriteMode)
	assert.Equal(t, config.ErrorPolicyRetry, cfg.ErrorPolicy)
	assert.EqualValues(t, 5000, cfg.ErrorRetryInterval)
	assert.True(t, cfg.VHostBucket)
	assert.Equal(t, "/tmp/s3sink-test", cfg.LocalTmpDir)
}

func TestLoadRequiresKCQL(t *testing.T) {
	_, err := config.Load(map[string]string{}, fakeParser(nil, nil))
	assert.ErrorIs(t, err, sinkerr.ErrConfig)
}

func TestLoadPropagatesParserError(t *testing.T) {
	boom := assert.AnError
	_, err := config.Load(map[string]string{"connect.s3.kcql": "garbage"}, fakeParser(nil, boom))
	assert.ErrorIs(t, err, boom)
}

func TestLoadValidatesEveryStatement(t *testing.T) {
	invalid := validStatement()
	invalid.Bucket = ""
	props := map[string]string{"connect.s3.kcql": "irrelevant"}
	_, err := config.Load(props, fakeParser([]kcql.Statement{invalid}, nil))
	assert.Error(t, err)
}

func TestLoadMergesYAMLProfileBelowNativeProps(t *testing.T) {
	dir := t.TempDir()
	profilePath := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(profilePath, []byte(
		"connect.s3.aws.access.key: from-profile\n"+
			"connect.s3.write.mode: BuildLocal\n"), 0o600))

	props := map[string]string{
		"connect.s3.kcql":            "irrelevant",
		"connect.s3.config.profiles": profilePath,
		"connect.s3.write.mode":      "Streamed", // native prop wins over profile
	}
	cfg, err := config.Load(props, fakeParser([]kcql.Statement{validStatement()}, nil))
	require.NoError(t, err)

	assert.Equal(t, "from-profile", cfg.AWSAccessKey)
	assert.Equal(t, config.WriteModeStreamed, cfg.WriteMode)
}

func TestLoadAppliesDeprecatedAliasesWithoutOverridingNewKey(t *testing.T) {
	props := map[string]string{
		"connect.s3.kcql":           "irrelevant",
		"aws.access.key":            "legacy-key",
		"connect.s3.aws.secret.key": "new-secret",
		"aws.secret.key":            "legacy-secret",
	}
	cfg, err := config.Load(props, fakeParser([]kcql.Statement{validStatement()}, nil))
	require.NoError(t, err)

	assert.Equal(t, "legacy-key", cfg.AWSAccessKey)
	assert.Equal(t, "new-secret", cfg.AWSSecretKey)
}

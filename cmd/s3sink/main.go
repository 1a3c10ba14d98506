package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"s3sink/config"
	"s3sink/kcqlparse"
	"s3sink/task"
)

func main() {
	propsFile := flag.String("props", "connect-s3.properties", "Path to a KEY=VALUE connector properties file")
	flag.Parse()

	props, err := loadProps(*propsFile)
	if err != nil {
		log.Fatalf("Failed to load connector properties: %v", err)
	}

	cfg, err := config.Load(props, kcqlparse.Parse)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	s3Client, err := newS3Client(cfg)
	if err != nil {
		log.Fatalf("Failed to build S3 client: %v", err)
	}

	t := task.New(s3Client, nil)
	if err := t.Start(cfg); err != nil {
		log.Fatalf("Failed to start task: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Println("Shutting down...")
	case <-ctx.Done():
		log.Println("Context cancelled...")
	}

	t.Stop(ctx)
}

// newS3Client resolves credentials per the configured auth mode and wires
// an optional custom/vhost endpoint, leaning on the SDK's own credential
// chain rather than reimplementing it.
func newS3Client(cfg *config.Config) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWSAuthMode == config.AuthCredentials {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKey, cfg.AWSSecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.CustomEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.CustomEndpoint)
		}
		o.UsePathStyle = !cfg.VHostBucket
	}), nil
}

// loadProps reads a flat KEY=VALUE properties file, the native
// configuration surface connect.s3.kcql and friends are set through.
func loadProps(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	props := map[string]string{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		props[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return props, nil
}

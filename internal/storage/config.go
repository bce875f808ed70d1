package storage

import "os"

// MinIOConfig holds MinIO connection configuration for the cache buckets.
type MinIOConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	BucketPrefix string
}

// LoadMinIOConfig loads MinIO config from environment.
func LoadMinIOConfig() *MinIOConfig {
	return &MinIOConfig{
		Endpoint:     os.Getenv("MINIO_ENDPOINT"),
		AccessKey:    os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey:    os.Getenv("MINIO_SECRET_KEY"),
		UseSSL:       os.Getenv("MINIO_USE_SSL") == "true",
		BucketPrefix: getEnv("MINIO_BUCKET_PREFIX", "ledgerline-cache-"),
	}
}

func getEnv(k, d string) string {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	return v
}

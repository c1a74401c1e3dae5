package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/spendsync/internal/flagx"
	"github.com/dmitrijs2005/spendsync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Intervals use
// timex.Duration so they can be written as "3s" or as integer nanoseconds.
type JsonConfig struct {
	DatabasePath        string         `json:"database_path"`
	RemoteDSN           string         `json:"remote_dsn"`
	HealthEndpoint      string         `json:"health_endpoint"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	SyncInterval        timex.Duration `json:"sync_interval"`
	RemoteTimeout       timex.Duration `json:"remote_timeout"`
	RetryCeiling        int            `json:"retry_ceiling"`
	StatusAddr          *string        `json:"status_addr"`
	JWTSecret           string         `json:"jwt_secret"`
	S3Bucket            string         `json:"s3_bucket"`
	S3Region            string         `json:"s3_region"`
	S3BaseEndpoint      string         `json:"s3_base_endpoint"`
	S3AccessKey         string         `json:"s3_access_key"`
	S3SecretKey         string         `json:"s3_secret_key"`
	LogLevel            string         `json:"log_level"`
	LogFile             string         `json:"log_file"`
}

// parseJson overlays Config with values from the JSON file named by -c or
// -config. Only fields present with a non-zero value are copied, except
// status_addr, where an explicit "" disables the status API.
// Panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}
	jc.apply(cfg)
}

func (jc *JsonConfig) apply(cfg *Config) {
	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setDur := func(dst *time.Duration, v timex.Duration) {
		if v.Duration != 0 {
			*dst = v.Duration
		}
	}

	setStr(&cfg.DatabasePath, jc.DatabasePath)
	setStr(&cfg.RemoteDSN, jc.RemoteDSN)
	setStr(&cfg.HealthEndpoint, jc.HealthEndpoint)
	setDur(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	setDur(&cfg.SyncInterval, jc.SyncInterval)
	setDur(&cfg.RemoteTimeout, jc.RemoteTimeout)
	if jc.RetryCeiling > 0 {
		cfg.RetryCeiling = jc.RetryCeiling
	}
	if jc.StatusAddr != nil {
		cfg.StatusAddr = *jc.StatusAddr
	}
	setStr(&cfg.JWTSecret, jc.JWTSecret)
	setStr(&cfg.S3Bucket, jc.S3Bucket)
	setStr(&cfg.S3Region, jc.S3Region)
	setStr(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)
	setStr(&cfg.S3AccessKey, jc.S3AccessKey)
	setStr(&cfg.S3SecretKey, jc.S3SecretKey)
	setStr(&cfg.LogLevel, jc.LogLevel)
	setStr(&cfg.LogFile, jc.LogFile)
}

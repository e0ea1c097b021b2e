package config

import (
	"os"
	"sync"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"
	"sigs.k8s.io/yaml"
)

type Config struct {
	Host        string `json:"host"`        // The domain name of the server.
	ServerAddr  string `json:"serverAddr"`  // The address the server endpoint binds to.
	MetricsAddr string `json:"metricsAddr"` // The address the metric endpoint binds to.

	Auth struct {
		AccessTokenSecret     string `json:"accessTokenSecret"`
		AccessTokenExpiryHour int    `json:"accessTokenExpiryHour"`
	} `json:"auth"`

	Postgres struct {
		Host     string `json:"host"`
		Port     string `json:"port"`
		DBName   string `json:"dbname"`
		User     string `json:"user"`
		Password string `json:"password"`
		SSLMode  string `json:"sslmode"`
		TimeZone string `json:"TimeZone"`
	} `json:"postgres"`

	// Remote research-environment provisioning API.
	EnvironmentAPI struct {
		URL                string `json:"url"`
		Audience           string `json:"audience"`
		ServiceAccountFile string `json:"serviceAccountFile"`
		RequestTimeoutSec  int    `json:"requestTimeoutSec"`
	} `json:"environmentAPI"`

	// Parameters for Jupyter workbench creation.
	Jupyter struct {
		VMImage            string `json:"vmImage"`
		PersistentDiskGB   int    `json:"persistentDiskGB"`
		BucketNameTemplate string `json:"bucketNameTemplate"` // e.g. "%s-data"
	} `json:"jupyter"`

	SMTP struct {
		Host     string `json:"host"`
		Port     int    `json:"port"`
		User     string `json:"user"`
		Password string `json:"password"`
		From     string `json:"from"`
	} `json:"smtp"`

	TaskQueue struct {
		PollSpec string `json:"pollSpec"` // cron spec for the due-task poller
	} `json:"taskQueue"`

	// Grace period between stopping and terminating environments whose
	// data access expired.
	Expiry struct {
		TerminationGraceDays int `json:"terminationGraceDays"`
	} `json:"expiry"`
}

var (
	once   sync.Once
	config *Config
)

func GetConfig() *Config {
	once.Do(func() {
		config = initConfig()
	})
	return config
}

func IsDebugMode() bool {
	return gin.Mode() == gin.DebugMode
}

// initConfig reads the configuration file. In debug mode it reads
// ./etc/debug-config.yaml (overridable via ENVIRONMENT_DEBUG_CONFIG_PATH),
// otherwise /etc/config/config.yaml from the ConfigMap.
func initConfig() *Config {
	config := &Config{}
	var configPath string
	if IsDebugMode() {
		if os.Getenv("ENVIRONMENT_DEBUG_CONFIG_PATH") != "" {
			configPath = os.Getenv("ENVIRONMENT_DEBUG_CONFIG_PATH")
		} else {
			configPath = "./etc/debug-config.yaml"
		}
	} else {
		configPath = "/etc/config/config.yaml"
	}
	klog.Info("config path: ", configPath)

	err := readConfig(configPath, config)
	if err != nil {
		klog.Error("init config", err)
		panic(err)
	}
	return config
}

func readConfig(filePath string, config *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return err
	}
	return nil
}

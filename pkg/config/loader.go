package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 是环境变量前缀 (BV_STORAGE_TYPE 等)
const EnvPrefix = "BV"

// DirName 是工作目录下的数据目录
const DirName = ".bv"

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	// 1. 读取 .env (不存在时忽略)
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	// 2. 设置默认值 (Defaults)
	setDefaults()

	// 3. 配置搜索路径
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// 搜索顺序：当前目录 -> ./.bv -> ~/.bv
		viper.AddConfigPath(".")
		viper.AddConfigPath(DirName)
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, DirName))
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName("config") // 找 config.yaml
	}

	// 4. 读取环境变量 (BV_DATABASE_HOST 对应 database.host)
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 5. 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		// 没找到配置文件不算错，默认值和环境变量仍然生效
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("fatal error config file: %w", err)
	}
	fmt.Fprintln(os.Stderr, "🔧 Using config file:", viper.ConfigFileUsed())
	return nil
}

func setDefaults() {
	// 账本
	viper.SetDefault("repo.url", "")
	viper.SetDefault("document.identifier", "window.BENCHMARK_DATA")
	viper.SetDefault("document.indent", "")
	viper.SetDefault("document.snapshots", false)

	// 存储
	viper.SetDefault("storage.type", "disk")
	viper.SetDefault("storage.path", filepath.Join(DirName, "data.js"))
	viper.SetDefault("storage.mirrors", []string{})

	// 对象存储
	viper.SetDefault("s3.region", "us-east-1")
	viper.SetDefault("s3.key", "data.js")

	// 缓存
	viper.SetDefault("cache.redis_url", "")
	viper.SetDefault("cache.ttl", "1h")

	// 数据库
	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.path", filepath.Join(DirName, "bench.db"))

	// 日志
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.file", "")
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"benchvault/pkg/app"
	"benchvault/pkg/config"
	"benchvault/pkg/telemetry"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用
	BV *app.App

	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "bv",
	Short: "benchvault: benchmark history for CI dashboards",
	Long: `benchvault keeps an append-only history of benchmark runs per suite and commit,
tracks branch pointers, and writes the window.BENCHMARK_DATA document read by dashboards.`,
	SilenceUsage: true,
	// PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 1. 日志
		closer, err := telemetry.InitLogger(telemetry.LogConfig{
			Level:  viper.GetString("log.level"),
			Format: viper.GetString("log.format"),
			File:   viper.GetString("log.file"),
		})
		if err != nil {
			return err
		}
		logCloser = closer

		// init 命令自己创建环境，不需要 App
		if cmd.Name() == "init" {
			return nil
		}

		// 2. 统一初始化 App
		BV, err = app.NewApp(context.Background(), slog.Default())
		if err != nil {
			return fmt.Errorf("failed to initialize benchvault: %w\n(Did you run 'bv init'?)", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeResources()
	},
}

// Execute 是入口
// 子命令失败时 cobra 不会调用 PersistentPostRunE，所以这里再释放一次
func Execute() error {
	err := rootCmd.Execute()
	return errors.Join(err, closeResources())
}

// closeResources 关闭 App 和日志文件，可以重复调用
func closeResources() error {
	var errs []error
	if BV != nil {
		errs = append(errs, BV.Close())
		BV = nil
	}
	if logCloser != nil {
		errs = append(errs, logCloser.Close())
		logCloser = nil
	}
	return errors.Join(errs...)
}

func init() {
	cobra.OnInitialize(initConfig)

	// 1. 全局参数 --config
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.bv/config.yaml or $HOME/.bv/config.yaml)")

	// 2. 常用配置项可以直接用参数覆盖
	rootCmd.PersistentFlags().String("storage-path", "", "Path of the data.js document (disk storage)")
	rootCmd.PersistentFlags().String("storage-type", "", "Storage backend: disk, s3 or sql")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	for key, flag := range map[string]string{
		"storage.path": "storage-path",
		"storage.type": "storage-type",
		"log.level":    "log-level",
	} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			fmt.Println("Failed to bind flag:", err)
			os.Exit(1)
		}
	}
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if err := config.Load(cfgFile); err != nil {
		fmt.Println("Config error:", err)
		os.Exit(1)
	}
}

// requireApp 子命令的防御检查
func requireApp() error {
	if BV == nil {
		return fmt.Errorf("application not initialized")
	}
	return nil
}

package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"benchvault/pkg/app"
	"benchvault/pkg/config"
	"benchvault/pkg/core"
	"benchvault/pkg/storage"
	"benchvault/pkg/storage/disk"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a benchvault directory",
	Long: `Create the .bv directory and, for disk storage, an empty data.js document.
Other backends (s3, sql) are initialized lazily on the first write.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		// 1. 获取当前路径
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		dir := filepath.Join(wd, config.DirName)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}

		if kind := viper.GetString("storage.type"); kind != app.StorageDisk && kind != "" {
			fmt.Fprintf(out, "✅ Initialized %s (storage: %s)\n", dir, kind)
			return nil
		}

		// 2. 检查账本是否已存在
		path := viper.GetString("storage.path")
		if !filepath.IsAbs(path) {
			path = filepath.Join(wd, path)
		}
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(out, "⚠️  benchvault document already exists at %s\n", path)
			return nil
		}

		// 3. 写入空账本
		blob, err := disk.NewAdapter(filepath.Dir(path))
		if err != nil {
			return err
		}
		docs := storage.NewDocumentStore(blob,
			storage.WithKey(filepath.Base(path)),
			storage.WithEncodeOptions(app.EncodeOptions()),
		)
		if err := docs.Save(context.Background(), nil, core.NewDocument(viper.GetString("repo.url"))); err != nil {
			return fmt.Errorf("failed to write empty document: %w", err)
		}

		fmt.Fprintf(out, "✅ Initialized empty benchvault document in %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

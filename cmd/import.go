package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"Tunevault/core/library"
	"Tunevault/server"
	"Tunevault/storage"

	"github.com/spf13/cobra"
)

var (
	importUserID string
	importDir    string
	importWatch  bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "批量导入本地音乐",
	Long:  `把本地目录（含子目录）中的音频文件上传到指定用户的曲库。使用 --watch 时继续监听目录，新文件写入完成后自动导入。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if fi, err := os.Stat(importDir); err != nil || !fi.IsDir() {
			return fmt.Errorf("目录不存在: %s", importDir)
		}

		app, err := server.NewApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		progress := func(transferred, total int64) {
			if total > 0 {
				fmt.Printf("\r  %s / %s (%.0f%%)", storage.FormatSize(transferred), storage.FormatSize(total),
					float64(transferred)/float64(total)*100)
				if transferred == total {
					fmt.Println()
				}
			}
		}
		importer := library.NewImporter(app.Services.Library, importUserID, progress)

		res, err := importer.ImportDir(ctx, importDir)
		if err != nil {
			return err
		}
		fmt.Printf("导入完成: 成功 %d, 跳过 %d, 失败 %d\n", res.Imported, res.Skipped, res.Failed)

		if !importWatch {
			return nil
		}
		fmt.Printf("正在监听 %s，按 Ctrl+C 退出...\n", importDir)
		return importer.Watch(ctx, importDir)
	},
}

func init() {
	importCmd.Flags().StringVarP(&importUserID, "user", "u", "", "用户ID")
	importCmd.Flags().StringVarP(&importDir, "dir", "d", "", "要导入的目录")
	importCmd.Flags().BoolVarP(&importWatch, "watch", "w", false, "导入后继续监听目录")
	importCmd.MarkFlagRequired("user")
	importCmd.MarkFlagRequired("dir")
	rootCmd.AddCommand(importCmd)
}

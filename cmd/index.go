package cmd

import (
	"fmt"

	"Tunevault/server"

	"github.com/spf13/cobra"
)

var indexUserID string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "搜索索引管理",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "重建用户的搜索索引",
	Long:  `清空指定用户的搜索索引，并按曲库中的全部音乐重新生成。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := server.NewApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		files, err := app.Music.ListByUser(ctx, indexUserID)
		if err != nil {
			return fmt.Errorf("读取曲库失败: %w", err)
		}
		n, err := app.Services.Index.Rebuild(ctx, indexUserID, files)
		if err != nil {
			return err
		}
		fmt.Printf("索引重建完成，共 %d 首音乐\n", n)
		return nil
	},
}

func init() {
	indexRebuildCmd.Flags().StringVarP(&indexUserID, "user", "u", "", "用户ID")
	indexRebuildCmd.MarkFlagRequired("user")
	indexCmd.AddCommand(indexRebuildCmd)
	rootCmd.AddCommand(indexCmd)
}

package cmd

import (
	"fmt"
	"os"

	"Tunevault/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix    string
	minioStats     bool
	minioRecursive bool
	minioDelete    bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO存储桶管理",
	Long:  `查看和管理MinIO存储桶中的文件，支持列出文件、查看统计信息、递归显示目录结构、删除目录等功能。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("开始连接MinIO服务器...")
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		ctx := cmd.Context()
		store, err := storage.InitMinio(ctx, cfg)
		if err != nil {
			return fmt.Errorf("无法连接到MinIO: %w", err)
		}
		fmt.Println("MinIO连接成功！")

		switch {
		case minioDelete:
			fmt.Printf("\n删除目录: %s\n", minioPrefix)
			n, err := store.RemovePrefix(ctx, minioPrefix)
			if err != nil {
				return fmt.Errorf("删除目录失败: %w", err)
			}
			fmt.Printf("已删除 %d 个文件\n", n)
		case minioRecursive:
			fmt.Printf("\n递归显示目录结构 (前缀: %s)...\n", minioPrefix)
			objects, _, err := store.List(ctx, minioPrefix, true)
			if err != nil {
				return fmt.Errorf("显示目录结构失败: %w", err)
			}
			storage.PrintTree(os.Stdout, objects)
		case minioStats:
			fmt.Println("\n获取存储桶统计信息...")
			stats, err := store.Stats(ctx)
			if err != nil {
				return fmt.Errorf("获取存储桶统计信息失败: %w", err)
			}
			storage.PrintStats(os.Stdout, stats)
		default:
			fmt.Printf("\n列出存储桶中的文件 (前缀: %s)...\n", minioPrefix)
			objects, stats, err := store.List(ctx, minioPrefix, false)
			if err != nil {
				return fmt.Errorf("列出文件失败: %w", err)
			}
			storage.PrintList(os.Stdout, objects)
			storage.PrintStats(os.Stdout, stats)
		}

		fmt.Println("\nMinIO操作完成！")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "按前缀过滤文件或指定要操作的目录")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "显示存储桶统计信息")
	minioCmd.Flags().BoolVarP(&minioRecursive, "recursive", "r", false, "递归显示目录结构")
	minioCmd.Flags().BoolVarP(&minioDelete, "delete", "d", false, "删除指定目录及其下的所有文件")

	minioCmd.Example = `  # 列出所有文件
  tunevault_server minio

  # 按前缀过滤文件
  tunevault_server minio -p "music/"

  # 显示存储桶统计信息
  tunevault_server minio -s

  # 递归显示某个用户的目录结构
  tunevault_server minio -r -p "music/<userId>/"

  # 删除歌单封面目录
  tunevault_server minio -d -p "playlist_covers/<userId>/"`
}

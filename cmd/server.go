package cmd

import (
	"Tunevault/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动Tunevault服务器",
	Long:  `启动Tunevault音乐库的HTTP服务器，提供API服务、播放器推送和Web界面`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Start(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

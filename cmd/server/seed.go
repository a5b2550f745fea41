package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed [dir]",
	Short: "把目录中的文档作为系统文档导入",
	Long: `扫描目录（不递归）中受支持的文件并逐个入库，来源标记为 system。
已导入过的文件名会被跳过，重复执行是安全的。未指定目录时使用配置中的 seed.dir。`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	dir := a.cfg.Seed.Dir
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "" {
		return errors.New("未指定导入目录，请传入参数或配置 seed.dir")
	}

	res, err := a.inventory.SeedDirectory(cmd.Context(), dir)
	if err != nil {
		return err
	}
	cmd.Printf("imported=%d skipped=%d failed=%d\n", res.Imported, res.Skipped, res.Failed)
	for i := range res.Documents {
		d := res.Documents[i]
		if d.ErrorMsg != "" {
			cmd.Printf("  [%d] %s %s: %s\n", d.ID, d.Filename, d.ParsingStatus, d.ErrorMsg)
			continue
		}
		cmd.Printf("  [%d] %s %s\n", d.ID, d.Filename, d.ParsingStatus)
	}
	return nil
}

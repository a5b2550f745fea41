package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	querySubjects []uint
	queryLimit    int
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "检索与文本最相关的切片",
	Long:  `向量召回后经 rerank 重排，输出 JSON 格式的切片列表。`,
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().UintSliceVarP(&querySubjects, "subject", "s", nil, "只在这些学科 ID 内检索，可重复")
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", 10, "最多返回的切片数")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.inventory.QueryChunks(cmd.Context(), args[0], querySubjects, queryLimit)
	if err != nil {
		return fmt.Errorf("检索失败: %w", err)
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yuqie6/QuestLog/internal/bootstrap"
	"github.com/yuqie6/QuestLog/internal/pkg/apperr"
	"github.com/yuqie6/QuestLog/internal/pkg/config"
	"github.com/yuqie6/QuestLog/internal/schema"
	"github.com/yuqie6/QuestLog/internal/service"
)

var (
	cfgFile string
	userID  string
	core    *bootstrap.Core
)

// skipCore 不需要数据库的命令
const skipCore = "skip-core"

func main() {
	rootCmd := &cobra.Command{
		Use:           "quest",
		Short:         "QuestLog - 习惯打卡与成长进度",
		Long:          `QuestLog 记录每天的行为，按日结算 XP/SP，并用 SP 解锁技能树节点。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipCore] == "true" {
				return nil
			}
			if strings.TrimSpace(userID) == "" {
				return fmt.Errorf("用户不能为空（--user 或 QUEST_USER）")
			}
			var err error
			core, err = bootstrap.NewCore(cfgFile)
			if err != nil {
				return fmt.Errorf("初始化失败: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if core != nil {
				_ = core.Close()
			}
		},
	}

	defaultUser := os.Getenv("QUEST_USER")
	if defaultUser == "" {
		defaultUser = "local"
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", defaultUser, "用户 ID")

	rootCmd.AddCommand(playCmd())
	rootCmd.AddCommand(unplayCmd())
	rootCmd.AddCommand(confirmCmd())
	rootCmd.AddCommand(backfillCmd())
	rootCmd.AddCommand(unlockCmd())
	rootCmd.AddCommand(titleCmd())
	rootCmd.AddCommand(progressCmd())
	rootCmd.AddCommand(dayCmd())
	rootCmd.AddCommand(treeCmd())
	rootCmd.AddCommand(spendsCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(initConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		if core != nil {
			_ = core.Close()
		}
		fmt.Printf("❌ %s\n", describe(err))
		os.Exit(1)
	}
}

// describe 领域错误按类别输出
func describe(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) {
		return fmt.Sprintf("%s %+v", e.Kind, e.Detail)
	}
	return err.Error()
}

func parseID(name, raw string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || v <= 0 {
		return 0, apperr.NewValidation(name, "must be a positive integer")
	}
	return v, nil
}

func playCmd() *cobra.Command {
	var quantity int64
	var note string

	cmd := &cobra.Command{
		Use:   "play <action-id>",
		Short: "记录一次行为",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actionID, err := parseID("action_id", args[0])
			if err != nil {
				return err
			}
			in := service.RegisterPlayInput{ActionID: actionID}
			if cmd.Flags().Changed("quantity") {
				in.Quantity = &quantity
			}
			if note != "" {
				in.Note = &note
			}
			res, err := core.Services.Progression.RegisterPlay(cmd.Context(), userID, in)
			if err != nil {
				return err
			}
			fmt.Printf("✅ 已记录 %s（%s）\n", res.Play.ID, res.Play.DayKey)
			fmt.Printf("   当日 %d 次 · %d XP · %d SP\n", res.CategoryResult.PlayCount, res.CategoryResult.XPEarned, res.CategoryResult.SPEarned)
			if rc := res.RankChange; rc != nil && rc.Changed {
				fmt.Printf("🏅 称号变化: %s → %s\n", labelOf(rc.Previous), labelOf(rc.Current))
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&quantity, "quantity", 0, "数量（仅有单位的行为）")
	cmd.Flags().StringVar(&note, "note", "", "备注")
	return cmd
}

func unplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unplay <play-id>",
		Short: "删除一条未确认日的行为记录",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := core.Services.Progression.DeletePlay(cmd.Context(), userID, args[0]); err != nil {
				return err
			}
			fmt.Println("✅ 已删除")
			return nil
		},
	}
}

func confirmCmd() *cobra.Command {
	var allow bool

	cmd := &cobra.Command{
		Use:   "confirm [YYYY-MM-DD]",
		Short: "确认某天（默认今天）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day := core.Calendar.Today()
			if len(args) == 1 {
				day = args[0]
			}
			res, err := core.Services.Confirmation.ConfirmDay(cmd.Context(), userID, day, service.ConfirmOptions{AllowAlreadyConfirmed: allow})
			if err != nil {
				return err
			}
			if res.AlreadyConfirmed {
				fmt.Printf("ℹ️  %s 已确认过\n", day)
				return nil
			}
			fmt.Printf("✅ %s 已确认\n", day)
			for _, c := range res.Categories {
				fmt.Printf("  • 分类 %d: %d XP · %d SP\n", c.CategoryID, c.XPEarned, c.SPEarned)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&allow, "allow-confirmed", false, "已确认时不报错")
	return cmd
}

func backfillCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "补确认最近几天（不含今天）",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("days") {
				days = core.Cfg.Progression.AutoConfirmDays
			}
			outcomes, err := core.Services.Confirmation.AutoConfirmRecentDays(cmd.Context(), userID, days)
			if err != nil {
				return err
			}
			for _, o := range outcomes {
				switch {
				case o.Err != nil:
					fmt.Printf("  ❌ %s %s\n", o.DayKey, describe(o.Err))
				case o.Result.AlreadyConfirmed:
					fmt.Printf("  ·  %s 已确认\n", o.DayKey)
				default:
					fmt.Printf("  ✅ %s\n", o.DayKey)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "天数（含今天，最多 366）")
	return cmd
}

func unlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <node-id>",
		Short: "消耗 SP 解锁技能节点",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nodeID, err := parseID("node_id", args[0])
			if err != nil {
				return err
			}
			res, err := core.Services.Unlock.UnlockNode(cmd.Context(), userID, nodeID)
			if err != nil {
				return err
			}
			fmt.Printf("🔓 已解锁「%s」，消耗 %d SP，剩余 %d SP\n", res.Node.Title, res.Spend.CostSP, res.State.SPUnspent)
			return nil
		},
	}
}

func titleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "title <category-id>",
		Short: "查看分类当前称号",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catID, err := parseID("category_id", args[0])
			if err != nil {
				return err
			}
			st, err := core.Services.Rank.CurrentTitle(cmd.Context(), userID, catID)
			if err != nil {
				return err
			}
			fmt.Printf("🏅 %s（近 %d 天 %d SP）\n", labelOf(st.Title), st.WindowDays, st.WindowSP)
			return nil
		},
	}
}

func progressCmd() *cobra.Command {
	var noBackfill bool

	cmd := &cobra.Command{
		Use:   "progress",
		Short: "查看各分类累计进度",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !noBackfill {
				if _, err := core.Services.Confirmation.AutoConfirmRecentDays(ctx, userID, core.Cfg.Progression.AutoConfirmDays); err != nil {
					return err
				}
			}
			list, err := core.Services.Query.CategoryProgress(ctx, userID)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("📚 还没有分类，先用 'quest seed <file>' 导入")
				return nil
			}
			for _, p := range list {
				fmt.Printf("%s\n", p.Category.Name)
				fmt.Printf("  XP %d（%d%%，距下一 SP 还差 %d）· 可用 SP %d\n", p.XPTotal, p.XPProgressPercent, p.XPUntilNextSP, p.SPUnspent)
				fmt.Printf("  称号 %s（近 %d 天 %d SP）\n", labelOf(p.Title), p.Category.RankWindowDays, p.WindowSP)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noBackfill, "no-backfill", false, "跳过补确认")
	return cmd
}

func dayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "day [YYYY-MM-DD]",
		Short: "查看某天的记录与结算状态",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day := core.Calendar.Today()
			if len(args) == 1 {
				day = args[0]
			}
			sum, err := core.Services.Query.DaySummary(cmd.Context(), userID, day)
			if err != nil {
				return err
			}
			fmt.Printf("📅 %s [%s]\n", sum.Day.DayKey, sum.Day.Status)
			for _, c := range sum.Categories {
				fmt.Printf("  • 分类 %d: %d 次 · %d XP · %d SP\n", c.CategoryID, c.PlayCount, c.XPEarned, c.SPEarned)
			}
			for _, p := range sum.Plays {
				fmt.Printf("    %s %s action=%d\n", p.At.In(core.Calendar.Location()).Format("15:04"), p.ID, p.ActionID)
			}
			return nil
		},
	}
}

func treeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree <tree-id>",
		Short: "查看技能树",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			treeID, err := parseID("tree_id", args[0])
			if err != nil {
				return err
			}
			view, err := core.Services.Query.TreeView(cmd.Context(), userID, treeID)
			if err != nil {
				return err
			}
			fmt.Printf("🌳 %s（可用 SP %d）\n", view.Tree.Name, view.SPUnspent)
			for _, n := range view.Nodes {
				mark := "🔒"
				switch {
				case n.Unlocked:
					mark = "✅"
				case n.CanUnlock:
					mark = "✨"
				}
				fmt.Printf("  %s %d. %s (%d SP) #%d\n", mark, n.Node.SortOrder, n.Node.Title, n.Node.CostSP, n.Node.ID)
			}
			return nil
		},
	}
}

func spendsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "spends",
		Short: "查看 SP 支出流水",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := core.Services.Query.SpendHistory(cmd.Context(), userID, limit)
			if err != nil {
				return err
			}
			for _, s := range list {
				fmt.Printf("  %s %s node=%d -%d SP\n", s.DayKey, s.Type, s.RefID, s.CostSP)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "条数")
	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "从 YAML 导入分类、行为、称号与技能树",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := core.Services.Catalog.SeedCatalogFile(cmd.Context(), userID, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("✅ 导入分类 %d（跳过 %d）· 行为 %d · 称号 %d · 技能树 %d · 节点 %d\n",
				sum.Categories, sum.Skipped, sum.Actions, sum.Titles, sum.Trees, sum.Nodes)
			return nil
		},
	}
}

func initConfigCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:         "init-config [path]",
		Short:       "写出默认配置文件",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipCore: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				p, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				path = p
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("配置文件已存在: %s（使用 --force 覆盖）", path)
			}
			if err := config.WriteFile(path, config.Default()); err != nil {
				return err
			}
			fmt.Printf("✅ 已写入 %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "覆盖已有文件")
	return cmd
}

func labelOf(t *schema.SeasonalTitle) string {
	if t == nil {
		return "（无）"
	}
	return t.Label
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/yuqie6/QuestLog/internal/pkg/apperr"
	"github.com/yuqie6/QuestLog/internal/repository"
	"github.com/yuqie6/QuestLog/internal/schema"
	"go.yaml.in/yaml/v3"
)

// catalogValidate 参考数据输入校验
var catalogValidate *validator.Validate

func init() {
	catalogValidate = validator.New()
	// 错误里使用 json 字段名
	catalogValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// validateInput 取第一个字段错误转为 Validation
func validateInput(v any) error {
	err := catalogValidate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		reason := fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		return apperr.NewValidation(fe.Field(), reason)
	}
	return apperr.NewValidation("input", err.Error())
}

type CategoryInput struct {
	Name           string `json:"name" yaml:"name" validate:"required,max=100"`
	Visible        *bool  `json:"visible,omitempty" yaml:"visible"`
	Order          int    `json:"order" yaml:"order" validate:"gte=0"`
	RankWindowDays int    `json:"rank_window_days" yaml:"rank_window_days" validate:"gte=1,lte=366"`
	XPPerPlay      int64  `json:"xp_per_play" yaml:"xp_per_play" validate:"gte=1"`
	XPPerSP        int64  `json:"xp_per_sp" yaml:"xp_per_sp" validate:"gte=1"`
}

type ActionInput struct {
	CategoryID int64   `json:"category_id" yaml:"-" validate:"gt=0"`
	Label      string  `json:"label" yaml:"label" validate:"required,max=200"`
	Unit       *string `json:"unit,omitempty" yaml:"unit" validate:"omitempty,min=1,max=32"`
}

type SkillTreeInput struct {
	CategoryID int64  `json:"category_id" yaml:"-" validate:"gt=0"`
	Name       string `json:"name" yaml:"name" validate:"required,max=100"`
	Order      int    `json:"order" yaml:"order" validate:"gte=0"`
}

// SkillNodeInput Order 为 0 时追加到链尾
type SkillNodeInput struct {
	TreeID int64  `json:"tree_id" yaml:"-" validate:"gt=0"`
	Order  int    `json:"order" yaml:"order" validate:"gte=0"`
	Title  string `json:"title" yaml:"title" validate:"required,max=200"`
	CostSP int64  `json:"cost_sp" yaml:"cost_sp" validate:"gte=0"`
}

type SeasonalTitleInput struct {
	CategoryID  int64  `json:"category_id" yaml:"-" validate:"gt=0"`
	Label       string `json:"label" yaml:"label" validate:"required,max=100"`
	MinSPEarned int64  `json:"min_sp_earned" yaml:"min_sp_earned" validate:"gte=0"`
	Order       int    `json:"order" yaml:"order" validate:"gte=0"`
}

// CatalogService 参考数据（分类/行为/技能树/称号）维护
type CatalogService struct {
	store Store
}

func NewCatalogService(store Store) *CatalogService {
	return &CatalogService{store: store}
}

func (s *CatalogService) CreateCategory(ctx context.Context, userID string, in CategoryInput) (*schema.Category, error) {
	var out *schema.Category
	err := s.store.InTx(ctx, "create_category", func(r *repository.Repos) error {
		var err error
		out, err = createCategory(ctx, r, userID, in)
		return err
	})
	return out, err
}

func createCategory(ctx context.Context, r *repository.Repos, userID string, in CategoryInput) (*schema.Category, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	dup, err := r.Categories.GetByName(ctx, userID, in.Name)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		return nil, apperr.NewValidation("name", "already exists")
	}
	visible := true
	if in.Visible != nil {
		visible = *in.Visible
	}
	c := &schema.Category{
		UserID:         userID,
		Name:           in.Name,
		Visible:        visible,
		SortOrder:      in.Order,
		RankWindowDays: in.RankWindowDays,
		XPPerPlay:      in.XPPerPlay,
		XPPerSP:        in.XPPerSP,
	}
	if err := r.Categories.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CatalogService) CreateAction(ctx context.Context, userID string, in ActionInput) (*schema.Action, error) {
	var out *schema.Action
	err := s.store.InTx(ctx, "create_action", func(r *repository.Repos) error {
		var err error
		out, err = createAction(ctx, r, userID, in)
		return err
	})
	return out, err
}

func createAction(ctx context.Context, r *repository.Repos, userID string, in ActionInput) (*schema.Action, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if err := requireCategory(ctx, r, userID, in.CategoryID); err != nil {
		return nil, err
	}
	a := &schema.Action{UserID: userID, CategoryID: in.CategoryID, Label: in.Label, Unit: in.Unit}
	if err := r.Actions.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *CatalogService) CreateSkillTree(ctx context.Context, userID string, in SkillTreeInput) (*schema.SkillTree, error) {
	var out *schema.SkillTree
	err := s.store.InTx(ctx, "create_skill_tree", func(r *repository.Repos) error {
		var err error
		out, err = createSkillTree(ctx, r, userID, in)
		return err
	})
	return out, err
}

func createSkillTree(ctx context.Context, r *repository.Repos, userID string, in SkillTreeInput) (*schema.SkillTree, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if err := requireCategory(ctx, r, userID, in.CategoryID); err != nil {
		return nil, err
	}
	t := &schema.SkillTree{UserID: userID, CategoryID: in.CategoryID, Name: in.Name, SortOrder: in.Order}
	if err := r.Skills.CreateTree(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateSkillNode 节点序号必须紧接当前链尾，保证 1..n 连续
func (s *CatalogService) CreateSkillNode(ctx context.Context, userID string, in SkillNodeInput) (*schema.SkillNode, error) {
	var out *schema.SkillNode
	err := s.store.InTx(ctx, "create_skill_node", func(r *repository.Repos) error {
		var err error
		out, err = createSkillNode(ctx, r, userID, in)
		return err
	})
	return out, err
}

func createSkillNode(ctx context.Context, r *repository.Repos, userID string, in SkillNodeInput) (*schema.SkillNode, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	tree, err := r.Skills.GetTree(ctx, userID, in.TreeID)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, apperr.NewNotFound("skill_tree", in.TreeID)
	}
	max, err := r.Skills.MaxNodeOrder(ctx, in.TreeID)
	if err != nil {
		return nil, err
	}
	order := in.Order
	if order == 0 {
		order = max + 1
	}
	if order != max+1 {
		return nil, apperr.NewValidation("order", fmt.Sprintf("must be %d", max+1))
	}
	n := &schema.SkillNode{UserID: userID, TreeID: in.TreeID, SortOrder: order, Title: in.Title, CostSP: in.CostSP}
	if err := r.Skills.CreateNode(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *CatalogService) CreateSeasonalTitle(ctx context.Context, userID string, in SeasonalTitleInput) (*schema.SeasonalTitle, error) {
	var out *schema.SeasonalTitle
	err := s.store.InTx(ctx, "create_seasonal_title", func(r *repository.Repos) error {
		var err error
		out, err = createSeasonalTitle(ctx, r, userID, in)
		return err
	})
	return out, err
}

func createSeasonalTitle(ctx context.Context, r *repository.Repos, userID string, in SeasonalTitleInput) (*schema.SeasonalTitle, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if err := requireCategory(ctx, r, userID, in.CategoryID); err != nil {
		return nil, err
	}
	t := &schema.SeasonalTitle{
		UserID:      userID,
		CategoryID:  in.CategoryID,
		Label:       in.Label,
		MinSPEarned: in.MinSPEarned,
		SortOrder:   in.Order,
	}
	if err := r.Titles.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func requireCategory(ctx context.Context, r *repository.Repos, userID string, categoryID int64) error {
	cat, err := r.Categories.GetByID(ctx, userID, categoryID)
	if err != nil {
		return err
	}
	if cat == nil {
		return apperr.NewNotFound("category", categoryID)
	}
	return nil
}

func (s *CatalogService) ListCategories(ctx context.Context, userID string) ([]schema.Category, error) {
	out, err := s.store.Repos().Categories.List(ctx, userID)
	if err != nil {
		return nil, repository.ClassifyStoreError("list_categories", err)
	}
	return out, nil
}

func (s *CatalogService) ListTrees(ctx context.Context, userID string, categoryID int64) ([]schema.SkillTree, error) {
	out, err := s.store.Repos().Skills.ListTrees(ctx, userID, categoryID)
	if err != nil {
		return nil, repository.ClassifyStoreError("list_trees", err)
	}
	return out, nil
}

// ========== YAML 种子 ==========

// CatalogSeed 种子文件结构
type CatalogSeed struct {
	Categories []CategorySeed `yaml:"categories"`
}

type CategorySeed struct {
	CategoryInput `yaml:",inline"`
	Actions       []ActionInput        `yaml:"actions"`
	Titles        []SeasonalTitleInput `yaml:"titles"`
	Trees         []TreeSeed           `yaml:"trees"`
}

type TreeSeed struct {
	SkillTreeInput `yaml:",inline"`
	Nodes          []SkillNodeInput `yaml:"nodes"`
}

// SeedSummary 种子导入统计
type SeedSummary struct {
	Categories int `json:"categories"`
	Skipped    int `json:"skipped"`
	Actions    int `json:"actions"`
	Titles     int `json:"titles"`
	Trees      int `json:"trees"`
	Nodes      int `json:"nodes"`
}

// SeedCatalogFile 从 YAML 文件导入
func (s *CatalogService) SeedCatalogFile(ctx context.Context, userID, path string) (*SeedSummary, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取种子文件失败: %w", err)
	}
	return s.SeedCatalog(ctx, userID, b)
}

// SeedCatalog 整体在一个事务内导入；同名分类已存在则跳过
func (s *CatalogService) SeedCatalog(ctx context.Context, userID string, data []byte) (*SeedSummary, error) {
	var seed CatalogSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, apperr.NewValidation("seed", err.Error())
	}

	var sum SeedSummary
	err := s.store.InTx(ctx, "seed_catalog", func(r *repository.Repos) error {
		sum = SeedSummary{}
		for _, cs := range seed.Categories {
			existing, err := r.Categories.GetByName(ctx, userID, cs.Name)
			if err != nil {
				return err
			}
			if existing != nil {
				sum.Skipped++
				continue
			}
			cat, err := createCategory(ctx, r, userID, cs.CategoryInput)
			if err != nil {
				return err
			}
			sum.Categories++

			for _, a := range cs.Actions {
				a.CategoryID = cat.ID
				if _, err := createAction(ctx, r, userID, a); err != nil {
					return err
				}
				sum.Actions++
			}
			for _, t := range cs.Titles {
				t.CategoryID = cat.ID
				if _, err := createSeasonalTitle(ctx, r, userID, t); err != nil {
					return err
				}
				sum.Titles++
			}
			for _, ts := range cs.Trees {
				ts.CategoryID = cat.ID
				tree, err := createSkillTree(ctx, r, userID, ts.SkillTreeInput)
				if err != nil {
					return err
				}
				sum.Trees++
				for _, n := range ts.Nodes {
					n.TreeID = tree.ID
					if _, err := createSkillNode(ctx, r, userID, n); err != nil {
						return err
					}
					sum.Nodes++
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("种子数据导入完成", "user_id", userID, "categories", sum.Categories, "skipped", sum.Skipped, "nodes", sum.Nodes)
	return &sum, nil
}

package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/yuqie6/QuestLog/internal/eventbus"
	"github.com/yuqie6/QuestLog/internal/observability"
	"github.com/yuqie6/QuestLog/internal/pkg/apperr"
	"github.com/yuqie6/QuestLog/internal/repository"
	"github.com/yuqie6/QuestLog/internal/schema"
	"go.opentelemetry.io/otel/attribute"
)

// UnlockService 技能节点解锁
type UnlockService struct {
	store  Store
	cal    Calendar
	events EventPublisher
}

func NewUnlockService(store Store, cal Calendar, events EventPublisher) *UnlockService {
	return &UnlockService{store: store, cal: cal, events: publisherOrNoop(events)}
}

// UnlockResult 解锁结果
type UnlockResult struct {
	Node     schema.SkillNode           `json:"node"`
	Unlocked schema.UnlockedNode        `json:"unlocked"`
	Spend    schema.SpendLog            `json:"spend"`
	State    schema.PlayerCategoryState `json:"state"`
}

// UnlockNode 检查与扣减在同一事务内完成。
// 检查顺序：节点存在 → 未解锁 → 有累计状态 → 余额足够 → 前置节点已解锁。
func (s *UnlockService) UnlockNode(ctx context.Context, userID string, nodeID int64) (res *UnlockResult, err error) {
	ctx, op := observability.StartOp(ctx, "unlock_node", userID, attribute.Int64("node.id", nodeID))
	defer func() { op.End(err) }()

	var out UnlockResult
	err = s.store.InTx(ctx, "unlock_node", func(r *repository.Repos) error {
		node, err := r.Skills.GetNode(ctx, userID, nodeID)
		if err != nil {
			return err
		}
		if node == nil {
			return apperr.NewNotFound("skill_node", nodeID)
		}
		tree, err := r.Skills.GetTree(ctx, userID, node.TreeID)
		if err != nil {
			return err
		}
		if tree == nil {
			return apperr.NewNotFound("skill_node", nodeID)
		}

		existing, err := r.Skills.GetUnlocked(ctx, userID, nodeID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.NewAlreadyUnlocked(nodeID)
		}

		state, err := r.States.Get(ctx, userID, tree.CategoryID)
		if err != nil {
			return err
		}
		if state == nil {
			return apperr.NewPlayerStateNotFound(tree.CategoryID)
		}
		enough, err := HasEnoughSP(state.SPUnspent, node.CostSP)
		if err != nil {
			return err
		}
		if !enough {
			return apperr.NewInsufficientSP(node.CostSP, state.SPUnspent, nodeID)
		}

		if node.SortOrder > 1 {
			prev, err := r.Skills.GetNodeByOrder(ctx, node.TreeID, node.SortOrder-1)
			if err != nil {
				return err
			}
			if prev == nil {
				return apperr.NewPrerequisiteNotMet(nodeID, 0)
			}
			prevUnlocked, err := r.Skills.GetUnlocked(ctx, userID, prev.ID)
			if err != nil {
				return err
			}
			if prevUnlocked == nil {
				return apperr.NewPrerequisiteNotMet(nodeID, prev.ID)
			}
		}

		// 条件扣减兜底：余额在本事务内被改动时不会扣成负数
		spent, err := r.States.Spend(ctx, userID, tree.CategoryID, node.CostSP)
		if err != nil {
			return err
		}
		if !spent {
			return apperr.NewInsufficientSP(node.CostSP, state.SPUnspent, nodeID)
		}

		now := s.cal.Now()
		unlocked := schema.UnlockedNode{UserID: userID, NodeID: nodeID, UnlockedAt: now}
		if err := r.Skills.CreateUnlocked(ctx, &unlocked); err != nil {
			if repository.IsUniqueViolation(err) {
				return apperr.NewAlreadyUnlocked(nodeID)
			}
			return err
		}
		spend := schema.SpendLog{
			ID:     uuid.NewString(),
			UserID: userID,
			Type:   schema.SpendTypeUnlockNode,
			CostSP: node.CostSP,
			RefID:  nodeID,
			At:     now,
			DayKey: s.cal.Today(),
		}
		if err := r.Spends.Append(ctx, &spend); err != nil {
			return err
		}

		after, err := r.States.Get(ctx, userID, tree.CategoryID)
		if err != nil {
			return err
		}
		out = UnlockResult{Node: *node, Unlocked: unlocked, Spend: spend, State: *after}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.AddSPSpent(out.Spend.CostSP)
	s.events.Publish(eventbus.Event{
		Type:   eventbus.TypeNodeUnlocked,
		UserID: userID,
		Data: map[string]any{
			"node_id":     nodeID,
			"tree_id":     out.Node.TreeID,
			"cost_sp":     out.Spend.CostSP,
			"sp_unspent":  out.State.SPUnspent,
			"category_id": out.State.CategoryID,
		},
	})
	return &out, nil
}

package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/yuqie6/QuestLog/internal/dto"
	"github.com/yuqie6/QuestLog/internal/service"
)

// ========== 行为记录 ==========

func (s *Server) registerPlay(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterPlayRequest
	if err := readJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	res, err := s.core.Services.Progression.RegisterPlay(r.Context(), userID(r), service.RegisterPlayInput{
		ActionID: req.ActionID,
		Quantity: req.Quantity,
		Note:     req.Note,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) deletePlay(w http.ResponseWriter, r *http.Request) {
	if err := s.core.Services.Progression.DeletePlay(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ========== 结算 ==========

func (s *Server) confirmDay(w http.ResponseWriter, r *http.Request) {
	res, err := s.core.Services.Confirmation.ConfirmDay(r.Context(), userID(r), chi.URLParam(r, "dayKey"), service.ConfirmOptions{
		AllowAlreadyConfirmed: queryBool(r, "allow_confirmed"),
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) backfill(w http.ResponseWriter, r *http.Request) {
	req := dto.BackfillRequest{Days: s.core.Cfg.Progression.AutoConfirmDays}
	if err := readJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	outcomes, err := s.core.Services.Confirmation.AutoConfirmRecentDays(r.Context(), userID(r), req.Days)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BackfillResponse{Days: toOutcomeDTOs(outcomes)})
}

func toOutcomeDTOs(outcomes []service.DayOutcome) []dto.DayOutcomeDTO {
	out := make([]dto.DayOutcomeDTO, 0, len(outcomes))
	for _, o := range outcomes {
		d := dto.DayOutcomeDTO{DayKey: o.DayKey}
		if o.Err != nil {
			e := toErrorDTO(o.Err)
			d.Error = &e
		}
		if o.Result != nil {
			d.Status = o.Result.Day.Status
			d.AlreadyConfirmed = o.Result.AlreadyConfirmed
		}
		out = append(out, d)
	}
	return out
}

// ========== 技能树 ==========

func (s *Server) unlockNode(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	res, err := s.core.Services.Unlock.UnlockNode(r.Context(), userID(r), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listTrees(w http.ResponseWriter, r *http.Request) {
	var categoryID int64
	if raw := r.URL.Query().Get("category_id"); raw != "" {
		v, err := parseInt64Param("category_id", raw)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		categoryID = v
	}
	trees, err := s.core.Services.Catalog.ListTrees(r.Context(), userID(r), categoryID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trees)
}

func (s *Server) getTree(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	view, err := s.core.Services.Query.TreeView(r.Context(), userID(r), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ========== 查询 ==========

func (s *Server) getDay(w http.ResponseWriter, r *http.Request) {
	sum, err := s.core.Services.Query.DaySummary(r.Context(), userID(r), chi.URLParam(r, "dayKey"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) getTitle(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	standing, err := s.core.Services.Rank.CurrentTitle(r.Context(), userID(r), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, standing)
}

// getProgress 读路径上先补确认最近几天，再返回累计进度
func (s *Server) getProgress(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if days := s.core.Cfg.Progression.AutoConfirmDays; days > 0 && s.core.RequireWritable() == nil {
		outcomes, err := s.core.Services.Confirmation.AutoConfirmRecentDays(r.Context(), uid, days)
		if err != nil {
			slog.Warn("补确认失败", "user_id", uid, "error", err)
		}
		for _, o := range outcomes {
			if o.Err != nil {
				slog.Warn("补确认单日失败", "user_id", uid, "day_key", o.DayKey, "error", o.Err)
			}
		}
	}

	progress, err := s.core.Services.Query.CategoryProgress(r.Context(), uid)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) listSpends(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	out, err := s.core.Services.Query.SpendHistory(r.Context(), userID(r), limit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ========== 参考数据 ==========

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	out, err := s.core.Services.Catalog.ListCategories(r.Context(), userID(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	var in service.CategoryInput
	if err := readJSON(r, &in); err != nil {
		writeAppError(w, r, err)
		return
	}
	out, err := s.core.Services.Catalog.CreateCategory(r.Context(), userID(r), in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) createAction(w http.ResponseWriter, r *http.Request) {
	var in service.ActionInput
	if err := readJSON(r, &in); err != nil {
		writeAppError(w, r, err)
		return
	}
	out, err := s.core.Services.Catalog.CreateAction(r.Context(), userID(r), in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) createSkillTree(w http.ResponseWriter, r *http.Request) {
	var in service.SkillTreeInput
	if err := readJSON(r, &in); err != nil {
		writeAppError(w, r, err)
		return
	}
	out, err := s.core.Services.Catalog.CreateSkillTree(r.Context(), userID(r), in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) createSkillNode(w http.ResponseWriter, r *http.Request) {
	var in service.SkillNodeInput
	if err := readJSON(r, &in); err != nil {
		writeAppError(w, r, err)
		return
	}
	out, err := s.core.Services.Catalog.CreateSkillNode(r.Context(), userID(r), in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) createSeasonalTitle(w http.ResponseWriter, r *http.Request) {
	var in service.SeasonalTitleInput
	if err := readJSON(r, &in); err != nil {
		writeAppError(w, r, err)
		return
	}
	out, err := s.core.Services.Catalog.CreateSeasonalTitle(r.Context(), userID(r), in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sublarr/sublarr/internal/config"
	"github.com/sublarr/sublarr/internal/wanted"
)

// systemStatus aggregates the runtime state shown on the dashboard.
type systemStatus struct {
	Version   string `json:"version"`
	Queue     any    `json:"queue"`
	Providers any    `json:"providers"`
	Tasks     any    `json:"tasks"`
	WSClients int    `json:"ws_clients"`
}

func (s *Server) getSystemStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, systemStatus{
		Version:   config.Version,
		Queue:     s.queue.StateSnapshot(),
		Providers: s.providers.Statuses(),
		Tasks:     s.scheduler.ListTasks(),
		WSClients: s.hub.ClientCount(),
	})
}

func (s *Server) getTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.scheduler.ListTasks())
}

func (s *Server) runTask(c echo.Context) error {
	if err := s.scheduler.RunNow(c.Param("id")); err != nil {
		return errorResponse(c, http.StatusNotFound, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) listJobs(c echo.Context) error {
	limit := intQuery(c, "limit", 50)
	jobs, err := s.queue.Recent(c.Request().Context(), limit)
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, jobs)
}

func (s *Server) getJob(c echo.Context) error {
	job, err := s.queue.Job(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorResponse(c, http.StatusNotFound, err)
	}
	return c.JSON(http.StatusOK, job)
}

// enqueueJobRequest submits one media file for subtitle processing.
type enqueueJobRequest struct {
	FilePath string `json:"file_path"`
	Force    bool   `json:"force"`
}

func (s *Server) enqueueJob(c echo.Context) error {
	var req enqueueJobRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	if req.FilePath == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "file_path is required"})
	}

	jobCtx, _ := json.Marshal(map[string]any{"source": "api", "force": req.Force})
	id, err := s.queue.Submit(c.Request().Context(), req.FilePath, req.Force, string(jobCtx), "",
		func(ctx context.Context) (string, string, error) {
			result, err := s.engine.Translate(ctx, req.FilePath, req.Force)
			if err != nil {
				return "", "", err
			}
			stats, _ := json.Marshal(result)
			if !result.Success && !result.Skipped {
				return result.OutputPath, string(stats), fmt.Errorf("pipeline failed: %s", result.Reason)
			}
			return result.OutputPath, string(stats), nil
		})
	if err != nil {
		return errorResponse(c, http.StatusServiceUnavailable, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"job_id": id})
}

func (s *Server) listWanted(c echo.Context) error {
	ctx := c.Request().Context()
	limit := intQuery(c, "limit", 100)

	status := c.QueryParam("status")
	if status != "" {
		items, err := s.wantedStore.ListByStatus(ctx, status, limit)
		if err != nil {
			return errorResponse(c, http.StatusInternalServerError, err)
		}
		return c.JSON(http.StatusOK, items)
	}

	items, err := s.wantedStore.List(ctx, limit)
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (s *Server) scanWanted(c echo.Context) error {
	result, err := s.scanner.Scan(c.Request().Context())
	if err != nil {
		return errorResponse(c, http.StatusConflict, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) searchWanted(c echo.Context) error {
	n, err := s.searcher.SearchBatch(c.Request().Context())
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"searched": n})
}

func (s *Server) searchWantedItem(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := wantedID(c)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	item, err := s.wantedStore.Get(ctx, id)
	if err != nil {
		return errorResponse(c, http.StatusNotFound, err)
	}
	if err := s.searcher.SearchItem(ctx, item); err != nil {
		return c.JSON(http.StatusOK, map[string]any{"found": false, "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"found": true})
}

func (s *Server) ignoreWanted(c echo.Context) error {
	id, err := wantedID(c)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	if err := s.wantedStore.SetStatus(c.Request().Context(), id, wanted.StatusIgnored); err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) deleteWanted(c echo.Context) error {
	id, err := wantedID(c)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	if err := s.wantedStore.Delete(c.Request().Context(), id); err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listSettings(c echo.Context) error {
	entries, err := s.settings.Namespace(c.Request().Context(), c.QueryParam("prefix"))
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, entries)
}

// setSettingRequest carries one config override value.
type setSettingRequest struct {
	Value string `json:"value"`
}

func (s *Server) setSetting(c echo.Context) error {
	key := c.Param("key")
	if key == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "key is required"})
	}
	var req setSettingRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	if err := s.settings.Set(c.Request().Context(), key, req.Value); err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) deleteSetting(c echo.Context) error {
	if err := s.settings.Delete(c.Request().Context(), c.Param("key")); err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getProviders(c echo.Context) error {
	return c.JSON(http.StatusOK, s.providers.Statuses())
}

func (s *Server) getHistory(c echo.Context) error {
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	entries, err := s.history.List(c.Request().Context(), limit, offset)
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) getDailyStats(c echo.Context) error {
	days := intQuery(c, "days", 30)
	rows, err := s.stats.Recent(c.Request().Context(), days)
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *Server) getProviderStats(c echo.Context) error {
	rows, err := s.stats.ProviderStats(c.Request().Context())
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *Server) listWhisperJobs(c echo.Context) error {
	limit := intQuery(c, "limit", 50)
	jobs, err := s.whisperSt.List(c.Request().Context(), limit)
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, jobs)
}

func (s *Server) cancelWhisperJob(c echo.Context) error {
	if err := s.whisperQ.Cancel(c.Request().Context(), c.Param("id")); err != nil {
		return errorResponse(c, http.StatusConflict, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) listBackups(c echo.Context) error {
	backups, err := s.backup.List()
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, backups)
}

func (s *Server) runBackup(c echo.Context) error {
	path, err := s.backup.Run(c.Request().Context())
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"path": path})
}

func wantedID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

func intQuery(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

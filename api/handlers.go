package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"dealdesk-api/domain"
)

const (
	postCommandMaxSize    = 64 * 1024  // 64 KiB
	postEnrichmentMaxSize = 256 * 1024 // 256 KiB
	maxEnrichmentBatch    = 500
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, commander Commander, auth Authenticator, deduper Deduper, logger *log.Logger) {
	e.GET("/api/tasks", getTasks(store, auth, logger))
	e.GET("/api/tasks/stream", streamTasks(store, auth))
	e.POST("/api/commands", postCommands(commander, auth, deduper, logger))
	e.POST("/api/enrichment", postEnrichment(store, auth))
	e.GET("/api/contacts", getContacts(store, auth))
	e.GET("/healthz", healthz())

	initEnrichmentSender(store, logger)
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type postCommandResponse struct {
	IdempotencyKeys []string `json:"idempotencyKeys,omitempty"`
	Error           string   `json:"error,omitempty"`
}

type enrichmentResponse struct {
	Companies int    `json:"companies"`
	Error     string `json:"error,omitempty"`
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getTasks(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newTaskRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		workspaceID, authErr := auth.WorkspaceIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		fetchStart := time.Now()
		tasks, fetchErr := store.FetchOpenTasks(ctx, workspaceID)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.String(http.StatusInternalServerError, fetchErr.Error())
			return err
		}

		rankStart := time.Now()
		ranked := domain.RankView(tasks)
		metrics.ObserveRank(time.Since(rankStart))

		metrics.SetTasksReturned(len(ranked))
		pinned := 0
		for _, t := range ranked {
			if t.Pinned {
				pinned++
			}
		}
		metrics.SetPinnedTasks(pinned)

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, tasksResponse{Tasks: ranked})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func postCommands(commander Commander, auth Authenticator, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		workspaceID, err := auth.WorkspaceIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		lr := io.LimitReader(c.Request().Body, postCommandMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		cmds := make([]domain.Command, 0, 4)
		if err := dec.Decode(&cmds); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if len(cmds) == 0 {
			return c.JSON(http.StatusOK, postCommandResponse{})
		}

		keys := finalizeCommands(cmds)

		added, dedupeErr := deduper.AddMany(ctx, workspaceID, keys)
		if dedupeErr != nil {
			rollbackKeys(deduper, workspaceID, keys, added, logger)
			c.Logger().Errorf("dedupe failed: %v", dedupeErr)
			return c.JSON(http.StatusInternalServerError, postCommandResponse{Error: "failed to record commands"})
		}

		fresh := make([]domain.Command, 0, len(cmds))
		addedKeys := make([]string, 0, len(cmds))
		for i, isNew := range added {
			if isNew {
				fresh = append(fresh, cmds[i])
				addedKeys = append(addedKeys, keys[i])
			}
		}
		if len(fresh) == 0 {
			// Whole batch was a replay.
			return c.JSON(http.StatusOK, postCommandResponse{IdempotencyKeys: keys})
		}

		if err := commander.ApplyAll(ctx, workspaceID, fresh); err != nil {
			for _, k := range addedKeys {
				if rerr := deduper.Remove(ctx, workspaceID, k); rerr != nil {
					logger.WithFields(log.Fields{"workspace": workspaceID, "key": k}).WithError(rerr).Error("dedupe rollback failed")
				}
			}
			c.Logger().Errorf("apply commands failed: %v", err)
			return c.JSON(http.StatusInternalServerError, postCommandResponse{Error: "failed to apply commands"})
		}

		return c.JSON(http.StatusOK, postCommandResponse{IdempotencyKeys: keys})
	}
}

func rollbackKeys(deduper Deduper, workspaceID string, keys []string, added []bool, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i, isNew := range added {
		if !isNew {
			continue
		}
		if err := deduper.Remove(ctx, workspaceID, keys[i]); err != nil {
			logger.WithFields(log.Fields{"workspace": workspaceID, "key": keys[i]}).WithError(err).Error("dedupe rollback failed")
		}
	}
}

func postEnrichment(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		workspaceID, err := auth.WorkspaceIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		lr := io.LimitReader(c.Request().Body, postEnrichmentMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)

		companies := make([]domain.Company, 0, 8)
		if err := dec.Decode(&companies); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if len(companies) == 0 || len(companies) > maxEnrichmentBatch {
			return c.String(http.StatusBadRequest, "invalid company batch")
		}
		for _, comp := range companies {
			if comp.Domain == "" && comp.Name == "" {
				return c.String(http.StatusBadRequest, "company requires a domain or name")
			}
		}

		if tryEnqueueEnrichment(enrichJob{workspaceID: workspaceID, companies: companies}) {
			return c.JSON(http.StatusAccepted, enrichmentResponse{Companies: len(companies)})
		}

		if globalEnrichLog != nil {
			globalEnrichLog.Warn("enrichment buffer saturated; enqueuing inline")
		}

		enqueueCtx, cancel := context.WithTimeout(context.Background(), enrichTimeout)
		enqueueErr := store.EnqueueEnrichmentJobs(enqueueCtx, workspaceID, companies)
		cancel()
		if enqueueErr != nil {
			c.Logger().Errorf("enqueue enrichment inline failed: %v", enqueueErr)
			return c.JSON(http.StatusInternalServerError, enrichmentResponse{Error: "failed to enqueue enrichment"})
		}

		return c.JSON(http.StatusAccepted, enrichmentResponse{Companies: len(companies)})
	}
}

func getContacts(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		workspaceID, err := auth.WorkspaceIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		contacts, err := store.FetchContacts(ctx, workspaceID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, contacts)
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sqlexec_go/internal/dbclient"
	"github.com/sqlexec_go/internal/dbexec"
	"github.com/sqlexec_go/internal/rowmap"
)

// statementRequest is the body of every statement endpoint.
type statementRequest struct {
	SQL       string `json:"sql" binding:"required"`
	Args      []any  `json:"args"`
	Procedure bool   `json:"procedure"`
	// Timeout overrides the executor default, e.g. "5s".
	Timeout string `json:"timeout"`
	// Normalize trims string values (query only).
	Normalize bool `json:"normalize"`
}

func (r *statementRequest) options() (dbexec.Options, error) {
	opts := dbexec.Options{Args: r.Args}
	if r.Procedure {
		opts.Kind = dbclient.StoredProcedure
	}
	if r.Timeout != "" {
		d, err := time.ParseDuration(r.Timeout)
		if err != nil {
			return opts, err
		}
		opts.Timeout = d
	}
	return opts, nil
}

func newRouter(factory *dbexec.Factory) *gin.Engine {
	router := gin.Default()
	h := &handler{factory: factory}

	router.GET("/health", h.health)

	api := router.Group("/api/v1")
	api.POST("/execute", h.execute)
	api.POST("/query", h.query)
	api.POST("/query-multiple", h.queryMultiple)

	// Swagger: serve a minimal Swagger UI page backed by a static JSON document.
	router.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
	router.GET("/swagger", serveSwaggerUI)
	router.GET("/swagger/index.html", serveSwaggerUI)

	return router
}

type handler struct {
	factory *dbexec.Factory
}

// withExecutor runs fn on an executor dedicated to the request.
func (h *handler) withExecutor(c *gin.Context, fn func(ctx context.Context, e *dbexec.Executor) error) {
	ctx := c.Request.Context()
	e, err := h.factory.CreateExecutor(ctx)
	if err != nil {
		log.Printf("failed to open executor: %v", err)
		writeError(c, err)
		return
	}
	defer e.Close()

	if err := fn(ctx, e); err != nil {
		log.Printf("%s %s error: %v", c.Request.Method, c.FullPath(), err)
		writeError(c, err)
	}
}

func (h *handler) health(c *gin.Context) {
	h.withExecutor(c, func(ctx context.Context, e *dbexec.Executor) error {
		s, err := dbexec.Query[int64](ctx, e, "SELECT 1", dbexec.Options{Timeout: 3 * time.Second})
		if err != nil {
			return err
		}
		if _, err := s.Collect(); err != nil {
			return err
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return nil
	})
}

func bindStatement(c *gin.Context) (*statementRequest, dbexec.Options, bool) {
	var req statementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, dbexec.Options{}, false
	}
	opts, err := req.options()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timeout"})
		return nil, opts, false
	}
	return &req, opts, true
}

func (h *handler) execute(c *gin.Context) {
	req, opts, ok := bindStatement(c)
	if !ok {
		return
	}
	h.withExecutor(c, func(ctx context.Context, e *dbexec.Executor) error {
		n, err := e.Execute(ctx, req.SQL, opts)
		if err != nil {
			return err
		}
		c.JSON(http.StatusOK, gin.H{"rows_affected": n})
		return nil
	})
}

func (h *handler) query(c *gin.Context) {
	req, opts, ok := bindStatement(c)
	if !ok {
		return
	}
	h.withExecutor(c, func(ctx context.Context, e *dbexec.Executor) error {
		var (
			records []rowmap.Record
			err     error
		)
		if req.Normalize {
			records, err = dbexec.QueryAndNormalize[rowmap.Record](ctx, e, req.SQL, opts)
		} else {
			var s *dbexec.Sequence[rowmap.Record]
			if s, err = e.QueryRecords(ctx, req.SQL, opts); err == nil {
				records, err = s.Collect()
			}
		}
		if err != nil {
			return err
		}
		c.JSON(http.StatusOK, gin.H{"rows": records})
		return nil
	})
}

func (h *handler) queryMultiple(c *gin.Context) {
	req, opts, ok := bindStatement(c)
	if !ok {
		return
	}
	h.withExecutor(c, func(ctx context.Context, e *dbexec.Executor) error {
		cur, err := e.QueryMultiple(ctx, req.SQL, opts)
		if err != nil {
			return err
		}
		defer cur.Close()

		sets := make([][]rowmap.Record, 0)
		for {
			s, err := cur.ReadRecords(dbexec.ReadOptions{})
			if errors.Is(err, dbexec.ErrNoMoreResults) {
				break
			}
			if err != nil {
				return err
			}
			records, err := s.Collect()
			if err != nil {
				return err
			}
			sets = append(sets, records)
		}
		c.JSON(http.StatusOK, gin.H{"result_sets": sets})
		return nil
	})
}

// writeError maps executor errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var (
		stmtErr *dbclient.StatementError
		connErr *dbclient.ConnectivityError
		cfgErr  *dbexec.ConfigurationError
	)
	switch {
	case errors.As(err, &stmtErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": stmtErr.Error(), "code": stmtErr.Code()})
	case errors.As(err, &connErr), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database unavailable"})
	case errors.As(err, &cfgErr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": cfgErr.Error()})
	case errors.Is(err, dbclient.ErrEmptyCommand), errors.Is(err, dbexec.ErrSplitColumn):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

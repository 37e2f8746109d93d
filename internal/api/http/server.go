// Package http is the gin-based REST front door over internal/engine,
// grounded on cmd/http-wrapper/main.go's gin.Default()+CORS+JSON-handler
// style, adapted from ingestion-record endpoints to the engine's
// get/range/insert/remove and branch/version administration operations.
package http

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"versionedkv/internal/auth"
	"versionedkv/internal/catalog"
	"versionedkv/internal/engine"
	"versionedkv/internal/wal"
)

// Server wires the engine, its WAL, and the branch/version catalog
// behind a gin router.
type Server struct {
	engine  *engine.Engine
	wal     *wal.Manager
	catalog *catalog.Catalog
	authMW  *auth.Middleware
}

// NewServer creates a Server. authMW may be nil, in which case every
// request is treated as authorized -- used for local/dev deployments
// where AuthConfig.Enabled is false.
func NewServer(e *engine.Engine, w *wal.Manager, c *catalog.Catalog, authMW *auth.Middleware) *Server {
	return &Server{engine: e, wal: w, catalog: c, authMW: authMW}
}

// Router builds the gin.Engine serving all routes.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	r.GET("/health", s.healthCheck)

	v1 := r.Group("/api/v1")
	v1.Use(s.authenticate)
	{
		v1.GET("/branches", s.authorizeFor("*", "read"), s.listBranches)
		v1.POST("/branches", s.authorizeFor("*", "admin"), s.createBranch)
		v1.DELETE("/branches/:branch", s.authorizeFor("*", "admin"), s.removeBranch)
		v1.POST("/branches/:branch/merge", s.authorizeBranch("admin"), s.mergeBranch)
		v1.POST("/branches/:branch/rebase", s.authorizeBranch("admin"), s.rebaseBranch)

		v1.GET("/branches/:branch/versions", s.authorizeBranch("read"), s.listVersions)
		v1.POST("/branches/:branch/versions", s.authorizeBranch("write"), s.createVersion)

		v1.GET("/branches/:branch/kv/:key", s.authorizeBranch("read"), s.getKey)
		v1.PUT("/branches/:branch/kv/:key", s.authorizeBranch("write"), s.putKey)
		v1.DELETE("/branches/:branch/kv/:key", s.authorizeBranch("write"), s.removeKey)
		v1.GET("/branches/:branch/range", s.authorizeBranch("read"), s.rangeKeys)

		v1.POST("/prune", s.authorizeFor("*", "admin"), s.prune)
	}

	return r
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "versionedkv",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// authenticate extracts and validates the bearer token, stashing the
// resulting claims in the gin context for authorizeFor/authorizeBranch.
func (s *Server) authenticate(c *gin.Context) {
	if s.authMW == nil {
		c.Next()
		return
	}
	claims, err := s.authMW.ExtractAndValidateToken(c.Request.Context(), c.GetHeader("Authorization"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.Set("claims", claims)
	c.Next()
}

func (s *Server) authorizeBranch(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.authorize(c, c.Param("branch"), action)
	}
}

func (s *Server) authorizeFor(branch, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.authorize(c, branch, action)
	}
}

func (s *Server) authorize(c *gin.Context, branch, action string) {
	if s.authMW == nil {
		c.Next()
		return
	}
	claims, ok := c.Get("claims")
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing claims"})
		return
	}
	if err := s.authMW.Authenticator().Authorize(c.Request.Context(), claims.(*auth.Claims), branch, action); err != nil {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	c.Next()
}

func decodeKey(c *gin.Context) ([]byte, error) {
	return base64.URLEncoding.DecodeString(c.Param("key"))
}

func branchID(e *engine.Engine, c *gin.Context) (engine.BranchID, bool) {
	return e.BranchIDByName(c.Param("branch"))
}

func writeErr(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) getKey(c *gin.Context) {
	key, err := decodeKey(c)
	if err != nil {
		writeErr(c, http.StatusBadRequest, err)
		return
	}
	brID, ok := branchID(s.engine, c)
	if !ok {
		writeErr(c, http.StatusNotFound, fmt.Errorf("branch %q not found", c.Param("branch")))
		return
	}
	value, ok := s.engine.GetByBranch(key, brID)
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"value": base64.URLEncoding.EncodeToString(value)})
}

type putKeyRequest struct {
	Value string `json:"value" binding:"required"`
}

func (s *Server) putKey(c *gin.Context) {
	key, err := decodeKey(c)
	if err != nil {
		writeErr(c, http.StatusBadRequest, err)
		return
	}
	var req putKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, http.StatusBadRequest, err)
		return
	}
	value, err := base64.URLEncoding.DecodeString(req.Value)
	if err != nil {
		writeErr(c, http.StatusBadRequest, err)
		return
	}
	branch := c.Param("branch")
	brID, ok := branchID(s.engine, c)
	if !ok {
		writeErr(c, http.StatusNotFound, fmt.Errorf("branch %q not found", branch))
		return
	}

	if s.wal != nil {
		entry := &wal.Entry{Op: wal.OpInsert, Branch: branch, Key: key, Value: value}
		if err := wal.LogAndApply(c.Request.Context(), s.wal, s.engine, entry); err != nil {
			writeErr(c, http.StatusInternalServerError, err)
			return
		}
	} else if _, err := s.engine.InsertByBranch(key, value, brID); err != nil {
		writeErr(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) removeKey(c *gin.Context) {
	key, err := decodeKey(c)
	if err != nil {
		writeErr(c, http.StatusBadRequest, err)
		return
	}
	branch := c.Param("branch")
	brID, ok := branchID(s.engine, c)
	if !ok {
		writeErr(c, http.StatusNotFound, fmt.Errorf("branch %q not found", branch))
		return
	}

	if s.wal != nil {
		entry := &wal.Entry{Op: wal.OpRemove, Branch: branch, Key: key}
		if err := wal.LogAndApply(c.Request.Context(), s.wal, s.engine, entry); err != nil {
			writeErr(c, http.StatusInternalServerError, err)
			return
		}
	} else if _, err := s.engine.RemoveByBranch(key, brID); err != nil {
		writeErr(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) rangeKeys(c *gin.Context) {
	branch := c.Param("branch")
	brID, ok := branchID(s.engine, c)
	if !ok {
		writeErr(c, http.StatusNotFound, fmt.Errorf("branch %q not found", branch))
		return
	}

	var lower, upper []byte
	var err error
	if v := c.Query("lower"); v != "" {
		if lower, err = base64.URLEncoding.DecodeString(v); err != nil {
			writeErr(c, http.StatusBadRequest, err)
			return
		}
	}
	if v := c.Query("upper"); v != "" {
		if upper, err = base64.URLEncoding.DecodeString(v); err != nil {
			writeErr(c, http.StatusBadRequest, err)
			return
		}
	}

	it := s.engine.RangeByBranch(brID, lower, upper)
	type kv struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	var out []kv
	for {
		k, v, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, kv{Key: base64.URLEncoding.EncodeToString(k), Value: base64.URLEncoding.EncodeToString(v)})
	}
	c.JSON(http.StatusOK, gin.H{"entries": out})
}

func (s *Server) listBranches(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"branches": s.engine.BranchList()})
}

type createBranchRequest struct {
	Name        string `json:"name" binding:"required"`
	BaseBranch  string `json:"base_branch"`
	BaseVersion string `json:"base_version"`
	Force       bool   `json:"force"`
}

func (s *Server) createBranch(c *gin.Context) {
	var req createBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, http.StatusBadRequest, err)
		return
	}

	if s.wal != nil {
		entry := &wal.Entry{Op: wal.OpBranchCreate, Branch: req.Name, Version: req.BaseVersion}
		if err := wal.LogAndApply(c.Request.Context(), s.wal, s.engine, entry); err != nil {
			writeErr(c, http.StatusInternalServerError, err)
			return
		}
	} else if err := s.engine.BranchCreate(req.Name, req.BaseVersion, req.Force); err != nil {
		writeErr(c, http.StatusInternalServerError, err)
		return
	}

	if s.catalog != nil {
		_ = s.catalog.RegisterBranch(c.Request.Context(), &catalog.BranchInfo{
			Name: req.Name, BaseBranch: req.BaseBranch, HeadVersion: req.BaseVersion,
		})
	}
	c.Status(http.StatusCreated)
}

func (s *Server) removeBranch(c *gin.Context) {
	branch := c.Param("branch")
	brID, ok := branchID(s.engine, c)
	if !ok {
		writeErr(c, http.StatusNotFound, fmt.Errorf("branch %q not found", branch))
		return
	}

	if s.wal != nil {
		entry := &wal.Entry{Op: wal.OpBranchRemove, Branch: branch}
		if err := wal.LogAndApply(c.Request.Context(), s.wal, s.engine, entry); err != nil {
			writeErr(c, http.StatusInternalServerError, err)
			return
		}
	} else if err := s.engine.BranchRemove(brID); err != nil {
		writeErr(c, http.StatusInternalServerError, err)
		return
	}

	if s.catalog != nil {
		_ = s.catalog.RemoveBranch(c.Request.Context(), branch)
	}
	c.Status(http.StatusNoContent)
}

type mergeBranchRequest struct {
	TargetBranch string `json:"target_branch" binding:"required"`
	Force        bool   `json:"force"`
}

func (s *Server) mergeBranch(c *gin.Context) {
	var req mergeBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, http.StatusBadRequest, err)
		return
	}
	brID, ok := s.engine.BranchIDByName(c.Param("branch"))
	if !ok {
		writeErr(c, http.StatusNotFound, fmt.Errorf("branch %q not found", c.Param("branch")))
		return
	}
	targetID, ok := s.engine.BranchIDByName(req.TargetBranch)
	if !ok {
		writeErr(c, http.StatusNotFound, fmt.Errorf("target branch %q not found", req.TargetBranch))
		return
	}

	var err error
	if req.Force {
		err = s.engine.BranchMergeToForce(brID, targetID)
	} else {
		err = s.engine.BranchMergeTo(brID, targetID)
	}
	if err != nil {
		writeErr(c, http.StatusConflict, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type rebaseBranchRequest struct {
	BaseVersion string `json:"base_version" binding:"required"`
}

func (s *Server) rebaseBranch(c *gin.Context) {
	var req rebaseBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, http.StatusBadRequest, err)
		return
	}
	branch := c.Param("branch")
	brID, ok := s.engine.BranchIDByName(branch)
	if !ok {
		writeErr(c, http.StatusNotFound, fmt.Errorf("branch %q not found", branch))
		return
	}
	baseID, ok := s.engine.VersionIDByName(req.BaseVersion)
	if !ok {
		writeErr(c, http.StatusNotFound, fmt.Errorf("version %q not found", req.BaseVersion))
		return
	}

	if s.wal != nil {
		entry := &wal.Entry{Op: wal.OpVersionRebase, Branch: branch, BaseVer: req.BaseVersion}
		if err := wal.LogAndApply(c.Request.Context(), s.wal, s.engine, entry); err != nil {
			writeErr(c, http.StatusInternalServerError, err)
			return
		}
	} else if err := s.engine.VersionRebaseByBranch(baseID, brID); err != nil {
		writeErr(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listVersions(c *gin.Context) {
	branch := c.Param("branch")
	brID, ok := s.engine.BranchIDByName(branch)
	if !ok {
		writeErr(c, http.StatusNotFound, fmt.Errorf("branch %q not found", branch))
		return
	}
	versions, err := s.engine.VersionListByBranch(brID)
	if err != nil {
		writeErr(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

type createVersionRequest struct {
	Name string `json:"name" binding:"required"`
}

func (s *Server) createVersion(c *gin.Context) {
	var req createVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, http.StatusBadRequest, err)
		return
	}
	branch := c.Param("branch")
	brID, ok := s.engine.BranchIDByName(branch)
	if !ok {
		writeErr(c, http.StatusNotFound, fmt.Errorf("branch %q not found", branch))
		return
	}

	if s.wal != nil {
		entry := &wal.Entry{Op: wal.OpVersionCreate, Branch: branch, Version: req.Name}
		if err := wal.LogAndApply(c.Request.Context(), s.wal, s.engine, entry); err != nil {
			writeErr(c, http.StatusInternalServerError, err)
			return
		}
	} else if err := s.engine.VersionCreateByBranch(req.Name, brID); err != nil {
		writeErr(c, http.StatusInternalServerError, err)
		return
	}

	if s.catalog != nil {
		_ = s.catalog.RegisterVersion(c.Request.Context(), &catalog.VersionInfo{Name: req.Name, Branch: branch})
		_ = s.catalog.UpdateBranchHead(c.Request.Context(), branch, req.Name)
	}
	c.Status(http.StatusCreated)
}

func (s *Server) prune(c *gin.Context) {
	var reserve *int
	if v := c.Query("reserve"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeErr(c, http.StatusBadRequest, err)
			return
		}
		reserve = &n
	}

	if s.wal != nil {
		entry := &wal.Entry{Op: wal.OpPrune}
		if err := wal.LogAndApply(c.Request.Context(), s.wal, s.engine, entry); err != nil {
			writeErr(c, http.StatusInternalServerError, err)
			return
		}
	} else if err := s.engine.Prune(reserve); err != nil {
		writeErr(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

package httpapi

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/memengine/memengine/internal/engine"
	"github.com/memengine/memengine/internal/memory"
	"github.com/memengine/memengine/internal/relationships"
	"github.com/memengine/memengine/internal/search"
	"github.com/memengine/memengine/internal/statemachine"
	"github.com/memengine/memengine/internal/store"
)

type storeChatRequest struct {
	Namespace            string `json:"namespace"`
	ChatID               string `json:"chatId"`
	UserInput            string `json:"userInput" binding:"required"`
	AIOutput             string `json:"aiOutput" binding:"required"`
	ExtractRelationships bool   `json:"extractRelationships"`
}

func (s *Server) storeChat(c *gin.Context) {
	var req storeChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	id, err := s.eng.StoreChat(c.Request.Context(), engine.StoreChatOptions{
		Namespace: req.Namespace, ChatID: req.ChatID,
		UserInput: req.UserInput, AIOutput: req.AIOutput,
		ExtractRelationships: req.ExtractRelationships,
	})
	if err != nil {
		fail(c, err)
		return
	}
	created(c, "memory stored", gin.H{"id": id})
}

func (s *Server) getMemory(c *gin.Context) {
	id := c.Param("id")
	namespace := c.DefaultQuery("namespace", "default")

	rec, err := s.eng.GetMemory(c.Request.Context(), id, namespace)
	if err != nil {
		fail(c, err)
		return
	}
	if rec == nil {
		notFound(c, "memory not found: "+id)
		return
	}
	ok(c, "memory retrieved", rec)
}

func (s *Server) listMemories(c *gin.Context) {
	namespace := c.DefaultQuery("namespace", "default")
	records, err := s.eng.ListMemories(c.Request.Context(), namespace, memory.ListOptions{
		Limit:  parseIntQuery(c, "limit", 50),
		Offset: parseIntQuery(c, "offset", 0),
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "memories listed", records)
}

type updateMemoryRequest struct {
	Content        *string `json:"content"`
	Summary        *string `json:"summary"`
	Classification *string `json:"classification"`
	Importance     *string `json:"importance"`
}

func (s *Server) updateMemory(c *gin.Context) {
	id := c.Param("id")
	namespace := c.DefaultQuery("namespace", "default")

	var req updateMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	updated, err := s.eng.UpdateMemory(c.Request.Context(), id, memory.UpdatePatch{
		Content: req.Content, Summary: req.Summary,
		Classification: req.Classification, Importance: req.Importance,
	}, namespace)
	if err != nil {
		fail(c, err)
		return
	}
	if !updated {
		notFound(c, "memory not found or patch was empty: "+id)
		return
	}
	ok(c, "memory updated", gin.H{"id": id})
}

func (s *Server) deleteMemory(c *gin.Context) {
	id := c.Param("id")
	namespace := c.DefaultQuery("namespace", "default")
	cascade := c.Query("cascade") == "true"

	deleted, err := s.eng.DeleteMemory(c.Request.Context(), id, namespace, memory.DeleteOptions{Cascade: cascade})
	if err != nil {
		fail(c, err)
		return
	}
	if !deleted {
		notFound(c, "memory not found: "+id)
		return
	}
	ok(c, "memory deleted", gin.H{"id": id})
}

func (s *Server) searchMemories(c *gin.Context) {
	q := search.Query{
		Text:          c.Query("text"),
		Namespace:     c.DefaultQuery("namespace", "default"),
		MinImportance: c.Query("minImportance"),
		Since:         c.Query("since"),
		YoungerThan:   c.Query("youngerThan"),
		OlderThan:     c.Query("olderThan"),
		Limit:         parseIntQuery(c, "limit", 20),
		Offset:        parseIntQuery(c, "offset", 0),
	}

	results, err := s.eng.SearchMemories(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "search complete", results)
}

func (s *Server) getMemoryState(c *gin.Context) {
	id := c.Param("id")
	state := s.eng.GetMemoryState(id)
	if state == "" {
		notFound(c, "no tracked state for memory: "+id)
		return
	}
	ok(c, "state retrieved", gin.H{"id": id, "state": state})
}

type transitionRequest struct {
	Target string `json:"target" binding:"required"`
	Reason string `json:"reason"`
}

func (s *Server) transitionMemoryState(c *gin.Context) {
	id := c.Param("id")
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	err := s.eng.TransitionMemoryState(c.Request.Context(), id, req.Target, statemachine.TransitionOptions{Reason: req.Reason})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "state transitioned", gin.H{"id": id, "state": req.Target})
}

func (s *Server) storeRelationships(c *gin.Context) {
	id := c.Param("id")
	namespace := c.DefaultQuery("namespace", "default")

	var rels []store.Relationship
	if err := c.ShouldBindJSON(&rels); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := s.eng.StoreRelationships(c.Request.Context(), id, namespace, rels)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "relationships stored", result)
}

func (s *Server) byRelationship(c *gin.Context) {
	opts := relationships.QueryOptions{
		RelationshipType: c.Query("type"),
		SourceMemoryID:   c.Query("sourceId"),
		TargetMemoryID:   c.Query("targetId"),
		Namespace:        c.DefaultQuery("namespace", "default"),
		Limit:            parseIntQuery(c, "limit", 100),
	}

	matches, err := s.eng.ByRelationship(c.Request.Context(), opts)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "query complete", matches)
}

func (s *Server) relatedTo(c *gin.Context) {
	id := c.Param("id")
	namespace := c.DefaultQuery("namespace", "default")
	maxDepth := parseIntQuery(c, "maxDepth", 2)

	result, err := s.eng.RelatedTo(c.Request.Context(), id, namespace, maxDepth)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "traversal complete", result)
}

func (s *Server) resolveConflicts(c *gin.Context) {
	id := c.Param("id")
	namespace := c.DefaultQuery("namespace", "default")

	conflicts, err := s.eng.ResolveConflicts(c.Request.Context(), id, namespace)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "conflicts resolved", conflicts)
}

type consolidateRequest struct {
	Namespace string   `json:"namespace"`
	PrimaryID string   `json:"primaryId" binding:"required"`
	DupIDs    []string `json:"dupIds" binding:"required"`
}

func (s *Server) consolidate(c *gin.Context) {
	var req consolidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	namespace := req.Namespace
	if namespace == "" {
		namespace = "default"
	}

	result, err := s.eng.Consolidate(c.Request.Context(), namespace, req.PrimaryID, req.DupIDs)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "consolidation complete", result)
}

func (s *Server) startConsolidationSchedule(c *gin.Context) {
	s.eng.StartConsolidationSchedule()
	ok(c, "consolidation schedule started", nil)
}

func (s *Server) stopConsolidationSchedule(c *gin.Context) {
	s.eng.StopConsolidationSchedule()
	ok(c, "consolidation schedule stopped", nil)
}

func (s *Server) stats(c *gin.Context) {
	namespace := c.DefaultQuery("namespace", "default")
	st, err := s.eng.Stats(c.Request.Context(), namespace)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "stats retrieved", st)
}

func parseIntQuery(c *gin.Context, key string, defaultVal int) int {
	val := c.Query(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

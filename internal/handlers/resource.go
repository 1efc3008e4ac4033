package handlers

import (
	"math"
	"net/http"
	"strconv"

	"pragrisk/internal/models"
	"pragrisk/internal/service"
	"pragrisk/internal/store"

	"github.com/gin-gonic/gin"
)

// Resource serves CRUD and search for one entity kind. D is the patch body.
type Resource[D models.Patch[T], T any, P models.Record[T]] struct {
	svc *service.Coordinator[T, P]
}

func NewResource[D models.Patch[T], T any, P models.Record[T]](svc *service.Coordinator[T, P]) *Resource[D, T, P] {
	return &Resource[D, T, P]{svc: svc}
}

// Mount registers the routes under api (the /api group).
func (r *Resource[D, T, P]) Mount(api *gin.RouterGroup) {
	kind := string(r.svc.Kind())
	api.POST("/"+kind, r.Create)
	api.GET("/"+kind, r.List)
	api.GET("/"+kind+"/:id", r.Get)
	api.PUT("/"+kind+"/:id", r.Replace)
	api.PATCH("/"+kind+"/:id", r.Patch)
	api.DELETE("/"+kind+"/:id", r.Delete)
	api.GET("/_search/"+kind, r.Search)
}

func (r *Resource[D, T, P]) Create(c *gin.Context) {
	var body T
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, badRequest("invalid body: "+err.Error()))
		return
	}
	out, err := r.svc.Create(c.Request.Context(), P(&body))
	if !checkWrite(c, err) {
		return
	}
	c.Header("Location", "/api/"+string(r.svc.Kind())+"/"+out.GetID())
	c.JSON(http.StatusCreated, out)
}

func (r *Resource[D, T, P]) Get(c *gin.Context) {
	out, err := r.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (r *Resource[D, T, P]) List(c *gin.Context) {
	req, err := pageRequest(c)
	if err != nil {
		writeError(c, err)
		return
	}
	page, err := r.svc.List(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	writePage(c, page)
}

func (r *Resource[D, T, P]) Replace(c *gin.Context) {
	var body T
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, badRequest("invalid body: "+err.Error()))
		return
	}
	if err := matchID(c, P(&body).GetID()); err != nil {
		writeError(c, err)
		return
	}
	out, err := r.svc.Replace(c.Request.Context(), P(&body))
	if !checkWrite(c, err) {
		return
	}
	c.JSON(http.StatusOK, out)
}

func (r *Resource[D, T, P]) Patch(c *gin.Context) {
	var body D
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, badRequest("invalid body: "+err.Error()))
		return
	}
	if err := matchID(c, body.TargetID()); err != nil {
		writeError(c, err)
		return
	}
	out, err := r.svc.Patch(c.Request.Context(), c.Param("id"), body)
	if !checkWrite(c, err) {
		return
	}
	c.JSON(http.StatusOK, out)
}

func (r *Resource[D, T, P]) Delete(c *gin.Context) {
	err := r.svc.Delete(c.Request.Context(), c.Param("id"))
	if !checkWrite(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Resource[D, T, P]) Search(c *gin.Context) {
	req, err := pageRequest(c)
	if err != nil {
		writeError(c, err)
		return
	}
	page, err := r.svc.Search(c.Request.Context(), c.Query("query"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	writePage(c, page)
}

// matchID enforces that a body id is present and names the path id.
func matchID(c *gin.Context, bodyID string) error {
	switch {
	case bodyID == "":
		return badRequest("invalid id: body id is missing")
	case bodyID != c.Param("id"):
		return badRequest("invalid id: body id does not match path")
	}
	return nil
}

func pageRequest(c *gin.Context) (store.PageRequest, error) {
	var req store.PageRequest
	var err error
	if v := c.Query("page"); v != "" {
		if req.Page, err = strconv.Atoi(v); err != nil || req.Page < 0 {
			return req, badRequest("invalid page")
		}
	}
	if v := c.Query("size"); v != "" {
		if req.Size, err = strconv.Atoi(v); err != nil || req.Size <= 0 {
			return req, badRequest("invalid size")
		}
	}
	if req.Page > math.MaxInt/req.Normalized().Size {
		return req, badRequest("invalid page: out of range")
	}
	if req.Sort, err = store.ParseSort(c.QueryArray("sort")); err != nil {
		return req, err
	}
	return req, nil
}

func writePage[P any](c *gin.Context, page store.Page[P]) {
	c.Header("X-Total-Count", strconv.FormatInt(page.Total, 10))
	items := page.Items
	if items == nil {
		items = []P{}
	}
	c.JSON(http.StatusOK, items)
}

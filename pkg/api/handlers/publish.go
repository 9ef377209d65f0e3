package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/youngmoe/obsync/internal/logger"
	"github.com/youngmoe/obsync/pkg/auth"
	"github.com/youngmoe/obsync/pkg/store"
	"github.com/youngmoe/obsync/pkg/store/models"
)

// PublishHandler serves the publish subsystem: site management under
// /publish and /api, plus the public read-only site routes.
type PublishHandler struct {
	store    *store.Store
	tokens   *auth.TokenService
	host     string
	maxSites int
}

// NewPublishHandler creates a publish handler. maxSites caps the number of
// sites per account.
func NewPublishHandler(st *store.Store, tokens *auth.TokenService, host string, maxSites int) *PublishHandler {
	return &PublishHandler{store: st, tokens: tokens, host: host, maxSites: maxSites}
}

type siteInfo struct {
	ID      string `json:"id"`
	Host    string `json:"host"`
	Created int64  `json:"created"`
	Owner   string `json:"owner"`
	Slug    string `json:"slug"`
	Options string `json:"options"`
	Size    int64  `json:"size"`
}

func toSiteInfo(s *models.Site) siteInfo {
	return siteInfo{
		ID:      s.ID,
		Host:    s.Host,
		Created: s.Created,
		Owner:   s.Owner,
		Slug:    s.Slug,
		Options: s.Options,
		Size:    s.Size,
	}
}

type publishFileInfo struct {
	Slug    string `json:"slug"`
	Path    string `json:"path"`
	CTime   int64  `json:"ctime"`
	MTime   int64  `json:"mtime"`
	Hash    string `json:"hash"`
	Size    int64  `json:"size"`
	Data    string `json:"data"`
	Deleted bool   `json:"deleted"`
}

func toPublishFileInfo(f *models.PublishFile) publishFileInfo {
	return publishFileInfo{
		Slug:    f.Slug,
		Path:    f.Path,
		CTime:   f.CTime,
		MTime:   f.MTime,
		Hash:    f.Hash,
		Size:    f.Size,
		Data:    f.Data,
		Deleted: f.Deleted,
	}
}

type listSitesRequest struct {
	Token string `json:"token"`
	ID    string `json:"id"`
}

// List handles POST /publish/list and POST /api/list. Without an id it lists
// the caller's sites; with an id it lists the files of that site.
func (h *PublishHandler) List(w http.ResponseWriter, r *http.Request) {
	var req listSitesRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	email, ok := authEmail(w, h.tokens, req.Token)
	if !ok {
		return
	}

	if req.ID == "" {
		sites, err := h.store.GetSites(r.Context(), email)
		if err != nil {
			InternalServerError(w, err.Error())
			return
		}
		out := make([]siteInfo, 0, len(sites))
		for i := range sites {
			out = append(out, toSiteInfo(&sites[i]))
		}
		WriteJSONOK(w, map[string]any{
			"sites":  out,
			"shared": []any{},
			"limit":  h.maxSites,
		})
		return
	}

	owner, err := h.store.GetSiteOwner(r.Context(), req.ID)
	if err != nil {
		if errors.Is(err, models.ErrSiteNotFound) {
			NotFound(w, "Site not found")
			return
		}
		InternalServerError(w, err.Error())
		return
	}
	files, err := h.store.GetPublishFiles(r.Context(), req.ID)
	if err != nil {
		InternalServerError(w, err.Error())
		return
	}
	out := make([]publishFileInfo, 0, len(files))
	for i := range files {
		out = append(out, toPublishFileInfo(&files[i]))
	}
	WriteJSONOK(w, map[string]any{
		"files": out,
		"owner": owner == email,
	})
}

// CreateSite handles POST /publish/create.
func (h *PublishHandler) CreateSite(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	email, ok := authEmail(w, h.tokens, req.Token)
	if !ok {
		return
	}

	sites, err := h.store.GetSites(r.Context(), email)
	if err != nil {
		InternalServerError(w, err.Error())
		return
	}
	if len(sites) >= h.maxSites {
		// The client surfaces "detail" inline, so the limit is reported as a
		// 200 rather than an error status.
		WriteJSONOK(w, map[string]string{
			"detail": fmt.Sprintf("You have reached the limit of %d site", h.maxSites),
		})
		return
	}

	site, err := h.store.CreateSite(r.Context(), email, h.host)
	if err != nil {
		InternalServerError(w, err.Error())
		return
	}

	logger.Info("created site", "site", site.ID, "owner", email)
	WriteJSONOK(w, toSiteInfo(site))
}

type deleteSiteRequest struct {
	Token   string `json:"token"`
	SiteUID string `json:"site_uid"`
}

// DeleteSite handles POST /publish/delete.
func (h *PublishHandler) DeleteSite(w http.ResponseWriter, r *http.Request) {
	var req deleteSiteRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	email, ok := authEmail(w, h.tokens, req.Token)
	if !ok {
		return
	}

	if !h.requireSiteOwner(w, r, req.SiteUID, email, "You do not have permission to delete this site") {
		return
	}
	if err := h.store.DeleteSite(r.Context(), req.SiteUID); err != nil {
		InternalServerError(w, err.Error())
		return
	}

	logger.Info("deleted site", "site", req.SiteUID, "owner", email)
	WriteJSONOK(w, map[string]any{})
}

type slugsRequest struct {
	Token string   `json:"token"`
	IDs   []string `json:"ids"`
}

// Slugs handles POST /api/slugs, resolving site ids to their public slugs.
func (h *PublishHandler) Slugs(w http.ResponseWriter, r *http.Request) {
	var req slugsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if _, ok := authEmail(w, h.tokens, req.Token); !ok {
		return
	}

	out := make(map[string]string, len(req.IDs))
	for _, id := range req.IDs {
		slug, err := h.store.GetSiteSlug(r.Context(), id)
		if err != nil {
			continue
		}
		out[id] = slug
	}
	WriteJSONOK(w, out)
}

type siteInfoRequest struct {
	Token string `json:"token"`
	Slug  string `json:"slug"`
}

// Site handles POST /api/site, resolving a slug to its site. Unknown slugs
// are a 200 with code NOTFOUND so the client can probe candidate slugs.
func (h *PublishHandler) Site(w http.ResponseWriter, r *http.Request) {
	var req siteInfoRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if _, ok := authEmail(w, h.tokens, req.Token); !ok {
		return
	}

	site, err := h.store.GetSlug(r.Context(), req.Slug)
	if err != nil {
		if errors.Is(err, models.ErrSiteNotFound) {
			WriteJSONOK(w, map[string]string{
				"code":    "NOTFOUND",
				"message": "Slug not found",
			})
			return
		}
		InternalServerError(w, err.Error())
		return
	}
	WriteJSONOK(w, toSiteInfo(site))
}

type removeFileRequest struct {
	Token   string `json:"token"`
	SiteUID string `json:"site_uid"`
	Path    string `json:"path"`
}

// RemoveFile handles POST /api/remove.
func (h *PublishHandler) RemoveFile(w http.ResponseWriter, r *http.Request) {
	var req removeFileRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	email, ok := authEmail(w, h.tokens, req.Token)
	if !ok {
		return
	}

	if !h.requireSiteOwner(w, r, req.SiteUID, email, "You do not have permission to delete this file") {
		return
	}
	if err := h.store.RemovePublishFile(r.Context(), req.SiteUID, req.Path); err != nil {
		InternalServerError(w, err.Error())
		return
	}
	WriteJSONOK(w, map[string]any{})
}

type configureSlugRequest struct {
	Token string `json:"token"`
	ID    string `json:"id"`
	Slug  string `json:"slug"`
}

// ConfigureSlug handles POST /api/slug, setting a site's public handle.
func (h *PublishHandler) ConfigureSlug(w http.ResponseWriter, r *http.Request) {
	var req configureSlugRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	email, ok := authEmail(w, h.tokens, req.Token)
	if !ok {
		return
	}

	if !h.requireSiteOwner(w, r, req.ID, email, "You do not have permission to change this site's slug") {
		return
	}
	if err := h.store.SetSlug(r.Context(), req.Slug, req.ID); err != nil {
		if errors.Is(err, models.ErrDuplicateSlug) {
			Conflict(w, "Slug is already taken")
			return
		}
		InternalServerError(w, err.Error())
		return
	}
	WriteJSONOK(w, map[string]any{})
}

// Upload handles POST /api/upload. The payload arrives as the raw body;
// everything else travels in obs-* headers, with the path percent-encoded.
func (h *PublishHandler) Upload(w http.ResponseWriter, r *http.Request) {
	email, ok := authEmail(w, h.tokens, r.Header.Get("obs-token"))
	if !ok {
		return
	}

	siteID := r.Header.Get("obs-id")
	path, err := url.QueryUnescape(r.Header.Get("obs-path"))
	if err != nil {
		InternalServerError(w, err.Error())
		return
	}

	if !h.requireSiteOwner(w, r, siteID, email, "You do not have permission to upload to this site") {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		InternalServerError(w, err.Error())
		return
	}

	size, _ := strconv.ParseInt(r.Header.Get("content-length"), 10, 64)
	file := &models.PublishFile{
		Slug: siteID,
		Path: path,
		Hash: r.Header.Get("obs-hash"),
		Size: size,
		Data: string(body),
	}
	if err := h.store.NewPublishFile(r.Context(), file); err != nil {
		InternalServerError(w, err.Error())
		return
	}

	logger.Debug("published file", "site", siteID, "path", path, "size", size)
	WriteJSONOK(w, map[string]any{})
}

// SiteIndex handles GET /publish/{slug}, the public file index of a site.
func (h *PublishHandler) SiteIndex(w http.ResponseWriter, r *http.Request) {
	h.writeSiteIndex(w, r, chi.URLParam(r, "slug"))
}

// SiteFile handles GET /publish/{slug}/{path}, a single published file.
// An empty path falls back to the index.
func (h *PublishHandler) SiteFile(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	path := chi.URLParam(r, "*")
	if path == "" {
		h.writeSiteIndex(w, r, slug)
		return
	}

	site, ok := h.resolveSlug(w, r, slug)
	if !ok {
		return
	}

	file, err := h.store.GetPublishFile(r.Context(), site.ID, path)
	if err != nil {
		if errors.Is(err, models.ErrPublishFileNotFound) {
			NotFound(w, "File not found")
			return
		}
		InternalServerError(w, err.Error())
		return
	}
	WriteJSONOK(w, toPublishFileInfo(file))
}

func (h *PublishHandler) writeSiteIndex(w http.ResponseWriter, r *http.Request, slug string) {
	site, ok := h.resolveSlug(w, r, slug)
	if !ok {
		return
	}

	files, err := h.store.GetPublishFiles(r.Context(), site.ID)
	if err != nil {
		InternalServerError(w, err.Error())
		return
	}
	out := make([]publishFileInfo, 0, len(files))
	for i := range files {
		out = append(out, toPublishFileInfo(&files[i]))
	}
	WriteJSONOK(w, out)
}

func (h *PublishHandler) resolveSlug(w http.ResponseWriter, r *http.Request, slug string) (*models.Site, bool) {
	site, err := h.store.GetSlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, models.ErrSiteNotFound) {
			NotFound(w, "Site not found")
			return nil, false
		}
		InternalServerError(w, err.Error())
		return nil, false
	}
	return site, true
}

// requireSiteOwner checks that email owns the site, writing the appropriate
// problem response when it does not.
func (h *PublishHandler) requireSiteOwner(w http.ResponseWriter, r *http.Request, siteID, email, denied string) bool {
	owner, err := h.store.GetSiteOwner(r.Context(), siteID)
	if err != nil {
		if errors.Is(err, models.ErrSiteNotFound) {
			NotFound(w, "Site not found")
			return false
		}
		InternalServerError(w, err.Error())
		return false
	}
	if owner != email {
		Forbidden(w, denied)
		return false
	}
	return true
}

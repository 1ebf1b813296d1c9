package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/liamwears/reelstream/internal/middleware"
	"github.com/liamwears/reelstream/internal/models"
	"github.com/liamwears/reelstream/internal/services"
	"github.com/rs/zerolog"
)

// PageHandler handles page rendering
type PageHandler struct {
	contentService *services.ContentService
	historyService *services.HistoryService
	statsService   *services.StatsService
	userService    *services.UserService
	sessions       SessionStore
	renderer       *Renderer
	logger         zerolog.Logger
}

// NewPageHandler creates a new page handler
func NewPageHandler(
	contentService *services.ContentService,
	historyService *services.HistoryService,
	statsService *services.StatsService,
	userService *services.UserService,
	sessions SessionStore,
	renderer *Renderer,
	logger zerolog.Logger,
) *PageHandler {
	return &PageHandler{
		contentService: contentService,
		historyService: historyService,
		statsService:   statsService,
		userService:    userService,
		sessions:       sessions,
		renderer:       renderer,
		logger:         logger,
	}
}

// pageData loads the signed-in user and the data shared by every layout page
func (h *PageHandler) pageData(w http.ResponseWriter, r *http.Request, active string) (*middleware.Identity, map[string]interface{}, bool) {
	// Get identity from context
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return nil, nil, false
	}

	user, err := h.userService.Get(r.Context(), identity.UserID)
	if err != nil {
		h.fail(w, "failed to load user", err)
		return nil, nil, false
	}

	var profile *models.Profile
	if identity.ProfileID != nil {
		for i := range user.Profiles {
			if user.Profiles[i].ID == *identity.ProfileID {
				profile = &user.Profiles[i]
			}
		}
	}

	return identity, map[string]interface{}{
		"User":       user,
		"Profile":    profile,
		"IsAdmin":    user.HasRole(models.RoleAdmin),
		"ActivePage": active,
	}, true
}

func (h *PageHandler) fail(w http.ResponseWriter, msg string, err error) {
	if svcErr, ok := services.AsServiceError(err); ok && svcErr.Status == http.StatusNotFound {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	h.logger.Error().Err(err).Msg(msg)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

// Profiles handles GET /profiles
func (h *PageHandler) Profiles(w http.ResponseWriter, r *http.Request) {
	_, data, ok := h.pageData(w, r, "profiles")
	if !ok {
		return
	}
	data["MaxProfiles"] = models.MaxProfiles
	data["Error"] = r.URL.Query().Get("error")
	h.renderer.RenderPage(w, "profiles.html", data)
}

// CreateProfile handles the add-profile form on POST /profiles
func (h *PageHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if _, err := h.userService.AddProfile(r.Context(), identity.UserID, r.FormValue("name"), nil); err != nil {
		if svcErr, ok := services.AsServiceError(err); ok && svcErr.Status < http.StatusInternalServerError {
			http.Redirect(w, r, "/profiles?error="+url.QueryEscape(svcErr.Message), http.StatusSeeOther)
			return
		}
		h.fail(w, "failed to add profile", err)
		return
	}
	http.Redirect(w, r, "/profiles", http.StatusSeeOther)
}

// SelectProfile handles POST /profiles/{id}/select
func (h *PageHandler) SelectProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok || identity.SessionID == "" {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	profileID, err := pathUUID(r, "id")
	if err != nil {
		http.Error(w, "Invalid profile", http.StatusBadRequest)
		return
	}

	if _, err := h.userService.GetProfile(r.Context(), identity.UserID, profileID); err != nil {
		h.fail(w, "failed to load profile", err)
		return
	}
	if err := h.sessions.SetProfile(r.Context(), identity.SessionID, profileID); err != nil {
		h.fail(w, "failed to select profile", err)
		return
	}

	http.Redirect(w, r, "/browse", http.StatusSeeOther)
}

// Browse handles GET /browse
func (h *PageHandler) Browse(w http.ResponseWriter, r *http.Request) {
	_, data, ok := h.pageData(w, r, "browse")
	if !ok {
		return
	}

	// Parse query parameters
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	if page < 1 {
		page = 1
	}
	var genres []string
	if g := strings.TrimSpace(query.Get("genre")); g != "" {
		genres = []string{g}
	}
	contentType := models.ContentType(query.Get("type"))
	if !contentType.IsValid() {
		contentType = ""
	}

	result, err := h.contentService.List(r.Context(), models.ContentFilter{
		Type:   contentType,
		Title:  query.Get("title"),
		Genres: genres,
		Page:   page,
		Limit:  24,
	})
	if err != nil {
		h.fail(w, "failed to list content", err)
		return
	}

	data["Results"] = result.Results
	data["Page"] = result.Page
	data["TotalPages"] = result.TotalPages
	data["Title"] = query.Get("title")
	data["Type"] = string(contentType)
	data["Genre"] = query.Get("genre")

	h.renderer.RenderPage(w, "browse.html", data)
}

// Title handles GET /title/{id}
func (h *PageHandler) Title(w http.ResponseWriter, r *http.Request) {
	_, data, ok := h.pageData(w, r, "browse")
	if !ok {
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	content, err := h.contentService.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "failed to load content", err)
		return
	}

	data["Content"] = content
	h.renderer.RenderPage(w, "title.html", data)
}

// History handles GET /history
func (h *PageHandler) History(w http.ResponseWriter, r *http.Request) {
	identity, data, ok := h.pageData(w, r, "history")
	if !ok {
		return
	}

	filter := models.HistoryFilter{IncludeContent: true, IncludeProfile: true}
	if r.URL.Query().Get("all") == "" && identity.ProfileID != nil {
		filter.ProfileID = identity.ProfileID
	}

	entries, err := h.historyService.ListForUser(r.Context(), identity.UserID, filter)
	if err != nil {
		h.fail(w, "failed to list history", err)
		return
	}

	data["Entries"] = entries
	h.renderer.RenderPage(w, "history.html", data)
}

// Stats handles GET /stats
func (h *PageHandler) Stats(w http.ResponseWriter, r *http.Request) {
	identity, data, ok := h.pageData(w, r, "stats")
	if !ok {
		return
	}
	if identity.ProfileID == nil {
		http.Redirect(w, r, "/profiles", http.StatusSeeOther)
		return
	}

	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days < 1 || days > 365 {
		days = 7
	}

	genres, err := h.statsService.GenreCounts(r.Context(), identity.UserID, *identity.ProfileID, days)
	if err != nil {
		h.fail(w, "failed to load genre stats", err)
		return
	}
	daily, err := h.statsService.DailyCounts(r.Context(), identity.UserID, *identity.ProfileID, days)
	if err != nil {
		h.fail(w, "failed to load daily stats", err)
		return
	}

	data["Days"] = days
	data["Genres"] = genres
	data["Daily"] = daily
	h.renderer.RenderPage(w, "stats.html", data)
}

// Package devstub is an in-memory stand-in for the hosted data service: the
// /v1 REST API, media upload and the realtime websocket gateway, backed by
// maps. It exists for local development and for integration-style tests of
// the rest and realtime clients; nothing here persists.
package devstub

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/MetaFacil/AppConecta/internal/logger"
	"github.com/MetaFacil/AppConecta/internal/model"
)

// Server holds the in-memory rows and implements http.Handler.
type Server struct {
	mu         sync.Mutex
	profiles   map[string]model.Profile
	categories map[string]model.Category
	services   map[string]model.Service
	chats      map[string]model.Chat
	messages   map[string][]model.Message // keyed by chat id
	media      map[string][]byte          // keyed by bucket/path

	hub    *hub
	router chi.Router

	now func() time.Time
}

func New() *Server {
	s := &Server{
		profiles:   make(map[string]model.Profile),
		categories: make(map[string]model.Category),
		services:   make(map[string]model.Service),
		chats:      make(map[string]model.Chat),
		messages:   make(map[string][]model.Message),
		media:      make(map[string][]byte),
		now:        func() time.Time { return time.Now().UTC() },
	}
	s.hub = newHub()

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/chats", s.listChats)
		r.Post("/chats", s.createChat)
		r.Get("/chats/pair", s.findChatByPair)
		r.Get("/chats/{id}", s.getChat)
		r.Get("/chats/{id}/messages", s.listMessages)
		r.Post("/chats/{id}/read", s.markRead)
		r.Post("/messages", s.insertMessage)
		r.Get("/profiles", s.listProfiles)
		r.Get("/profiles/{id}", s.getProfile)
		r.Get("/categories", s.listCategories)
		r.Get("/services", s.listServices)
		r.Post("/media/{bucket}/*", s.uploadMedia)
		r.Get("/media/{bucket}/*", s.serveMedia)
		r.HandleFunc("/realtime", s.hub.serveWS)
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("devstub: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- seeding, used by -dev startup and tests ---

func (s *Server) SeedProfile(p model.Profile) model.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	p.UpdatedAt = p.CreatedAt
	s.profiles[p.ID] = p
	return p
}

func (s *Server) SeedCategory(c model.Category) model.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.categories[c.ID] = c
	return c
}

func (s *Server) SeedService(sv model.Service) model.Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sv.ID == "" {
		sv.ID = uuid.NewString()
	}
	if sv.CreatedAt.IsZero() {
		sv.CreatedAt = s.now()
	}
	s.services[sv.ID] = sv
	return sv
}

func (s *Server) SeedChat(c model.Chat) model.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	s.chats[c.ID] = c
	return c
}

func (s *Server) SeedMessage(m model.Message) model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	s.messages[m.ChatID] = append(s.messages[m.ChatID], m)
	return m
}

// --- chats ---

func (s *Server) listChats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	s.mu.Lock()
	out := make([]model.Chat, 0)
	for _, c := range s.chats {
		if c.HasParticipant(userID) {
			out = append(out, c)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) findChatByPair(w http.ResponseWriter, r *http.Request) {
	a := r.URL.Query().Get("user_a")
	b := r.URL.Query().Get("user_b")
	s.mu.Lock()
	var found *model.Chat
	for _, c := range s.chats {
		if c.HasParticipant(a) && c.HasParticipant(b) {
			if found == nil || c.UpdatedAt.After(found.UpdatedAt) {
				cc := c
				found = &cc
			}
		}
	}
	s.mu.Unlock()
	if found == nil {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) createChat(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ClienteID    string  `json:"cliente_id"`
		FreelancerID string  `json:"freelancer_id"`
		ProjectID    *string `json:"project_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "bad body")
		return
	}
	if in.ClienteID == "" || in.FreelancerID == "" {
		writeError(w, http.StatusBadRequest, "cliente_id and freelancer_id required")
		return
	}
	now := s.now()
	c := model.Chat{
		ID:           uuid.NewString(),
		ClienteID:    in.ClienteID,
		FreelancerID: in.FreelancerID,
		ProjectID:    in.ProjectID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.mu.Lock()
	s.chats[c.ID] = c
	s.mu.Unlock()

	s.hub.fanOutChange("insert", "chats", c)
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) getChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	c, ok := s.chats[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// --- messages ---

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	s.mu.Lock()
	msgs := append([]model.Message(nil), s.messages[chatID]...)
	s.mu.Unlock()
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Less(msgs[j]) })
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) insertMessage(w http.ResponseWriter, r *http.Request) {
	var in model.MessageInsert
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "bad body")
		return
	}
	s.mu.Lock()
	chat, ok := s.chats[in.ChatID]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}
	now := s.now()
	m := model.Message{
		ID:          uuid.NewString(),
		ChatID:      in.ChatID,
		SenderID:    in.SenderID,
		Conteudo:    in.Conteudo,
		MessageType: in.MessageType,
		MediaURL:    in.MediaURL,
		Lida:        false,
		CreatedAt:   now,
	}
	s.messages[in.ChatID] = append(s.messages[in.ChatID], m)
	chat.UpdatedAt = now
	s.chats[chat.ID] = chat
	s.mu.Unlock()

	s.hub.fanOutChange("insert", "messages", m)
	s.hub.fanOutChange("update", "chats", chat)
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	var in struct {
		ReaderID string `json:"reader_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "bad body")
		return
	}
	s.mu.Lock()
	var changed []model.Message
	msgs := s.messages[chatID]
	for i := range msgs {
		if !msgs[i].Lida && msgs[i].SenderID != in.ReaderID {
			msgs[i].Lida = true
			changed = append(changed, msgs[i])
		}
	}
	s.mu.Unlock()

	for _, m := range changed {
		s.hub.fanOutChange("update", "messages", m)
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": len(changed)})
}

// --- profiles and directory ---

func (s *Server) listProfiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tipo := q.Get("tipo")
	query := strings.ToLower(q.Get("q"))
	categoryID := q.Get("category_id")

	s.mu.Lock()
	byCategory := map[string]bool{}
	if categoryID != "" {
		for _, sv := range s.services {
			if sv.CategoryID == categoryID {
				byCategory[sv.FreelancerID] = true
			}
		}
	}
	out := make([]model.Profile, 0)
	for _, p := range s.profiles {
		if tipo != "" && string(p.Tipo) != tipo {
			continue
		}
		if categoryID != "" && !byCategory[p.ID] {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(p.Nome), query) &&
			!strings.Contains(strings.ToLower(p.Descricao), query) &&
			!strings.Contains(strings.ToLower(p.Cidade), query) {
			continue
		}
		out = append(out, p)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	p, ok := s.profiles[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]model.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Nome < out[j].Nome })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listServices(w http.ResponseWriter, r *http.Request) {
	freelancerID := r.URL.Query().Get("freelancer_id")
	s.mu.Lock()
	out := make([]model.Service, 0)
	for _, sv := range s.services {
		if sv.FreelancerID == freelancerID {
			out = append(out, sv)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	writeJSON(w, http.StatusOK, out)
}

// --- media ---

func (s *Server) uploadMedia(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	objPath := chi.URLParam(r, "*")
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	key := bucket + "/" + objPath
	s.mu.Lock()
	s.media[key] = data
	s.mu.Unlock()

	url := "http://" + r.Host + "/v1/media/" + key
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}

func (s *Server) serveMedia(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "bucket") + "/" + chi.URLParam(r, "*")
	s.mu.Lock()
	data, ok := s.media[key]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "object not found")
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

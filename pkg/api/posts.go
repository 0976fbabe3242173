package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/postbox-io/postbox/pkg/content"
	"github.com/postbox-io/postbox/pkg/observability"
)

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var payload content.CreatePostPayload
	if err := parseBody(r, &payload); err != nil {
		writeMessage(w, msgValidationError)
		return
	}
	// The owner is always the authenticated caller, never a body field.
	payload.OwnerID = observability.GetSubjectID(r.Context())

	post, err := s.posts.Create(r.Context(), payload)
	if err != nil {
		writeError(w, err, msgCreatePostFail)
		return
	}
	one := int64(1)
	writeData(w, msgCreatePostOK, []*content.Post{post}, &one)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeMessage(w, msgValidationError)
		return
	}

	post, err := s.posts.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err, msgGetPostFail)
		return
	}
	one := int64(1)
	writeData(w, msgGetPostOK, []*content.Post{post}, &one)
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	listFilter, err := parseListFilter(r)
	if err != nil {
		writeMessage(w, msgValidationError)
		return
	}
	filter := content.PostFilter{
		ListFilter: listFilter,
		OwnerID:    r.URL.Query().Get("owner_id"),
	}

	posts, count, err := s.posts.GetMulti(r.Context(), filter)
	if err != nil {
		writeError(w, err, msgGetPostFail)
		return
	}
	if posts == nil {
		posts = []*content.Post{}
	}
	writeData(w, msgGetPostOK, posts, count)
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	var payload content.UpdatePostPayload
	if err := parseBody(r, &payload); err != nil {
		writeMessage(w, msgValidationError)
		return
	}
	payload.ID = mux.Vars(r)["id"]
	payload.OwnerID = observability.GetSubjectID(r.Context())

	if err := s.posts.Update(r.Context(), payload); err != nil {
		writeError(w, err, msgUpdatePostFail)
		return
	}
	writeMessage(w, msgUpdatePostOK)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	payload := content.DeletePostPayload{
		ID:      mux.Vars(r)["id"],
		OwnerID: observability.GetSubjectID(r.Context()),
	}

	if err := s.posts.Delete(r.Context(), payload); err != nil {
		writeError(w, err, msgDeletePostFail)
		return
	}
	writeMessage(w, msgDeletePostOK)
}

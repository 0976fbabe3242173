package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/postbox-io/postbox/pkg/content"
	"github.com/postbox-io/postbox/pkg/observability"
)

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	var payload content.CreateCommentPayload
	if err := parseBody(r, &payload); err != nil {
		writeMessage(w, msgValidationError)
		return
	}
	payload.OwnerID = observability.GetSubjectID(r.Context())

	comment, err := s.comments.Create(r.Context(), payload)
	if err != nil {
		writeError(w, err, msgCreateCommentFail)
		return
	}
	one := int64(1)
	writeData(w, msgCreateCommentOK, []*content.Comment{comment}, &one)
}

func (s *Server) handleGetComment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeMessage(w, msgValidationError)
		return
	}

	comment, err := s.comments.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err, msgGetCommentFail)
		return
	}
	one := int64(1)
	writeData(w, msgGetCommentOK, []*content.Comment{comment}, &one)
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	listFilter, err := parseListFilter(r)
	if err != nil {
		writeMessage(w, msgValidationError)
		return
	}
	filter := content.CommentFilter{
		ListFilter: listFilter,
		PostID:     r.URL.Query().Get("post_id"),
		OwnerID:    r.URL.Query().Get("owner_id"),
	}

	comments, count, err := s.comments.GetMulti(r.Context(), filter)
	if err != nil {
		writeError(w, err, msgGetCommentFail)
		return
	}
	if comments == nil {
		comments = []*content.Comment{}
	}
	writeData(w, msgGetCommentOK, comments, count)
}

func (s *Server) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	var payload content.UpdateCommentPayload
	if err := parseBody(r, &payload); err != nil {
		writeMessage(w, msgValidationError)
		return
	}
	payload.ID = mux.Vars(r)["id"]
	payload.OwnerID = observability.GetSubjectID(r.Context())

	if err := s.comments.Update(r.Context(), payload); err != nil {
		writeError(w, err, msgUpdateCommentFail)
		return
	}
	writeMessage(w, msgUpdateCommentOK)
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	payload := content.DeleteCommentPayload{
		ID:      mux.Vars(r)["id"],
		OwnerID: observability.GetSubjectID(r.Context()),
	}

	if err := s.comments.Delete(r.Context(), payload); err != nil {
		writeError(w, err, msgDeleteCommentFail)
		return
	}
	writeMessage(w, msgDeleteCommentOK)
}

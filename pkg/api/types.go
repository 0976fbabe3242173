// Package api exposes the HTTP surface: post/comment CRUD, the identity
// webhook receiver, and health endpoints. Every response uses the
// {data, count, message} envelope with a stable per-operation message code;
// internal error detail never leaves the process.
package api

import "net/http"

// Message identifies the outcome of an operation with a stable code.
type Message struct {
	MsgCode    string `json:"msg_code"`
	MsgName    string `json:"msg_name"`
	StatusCode int    `json:"status_code"`
}

// Envelope is the uniform response body.
type Envelope struct {
	Data    interface{} `json:"data"`
	Count   *int64      `json:"count"`
	Message Message     `json:"message"`
}

// Message catalog. Codes are grouped by family: 0xx common, 1xx posts,
// 2xx comments, 3xx webhook sync.
var (
	msgInternalError   = Message{"E001", "Internal Error", http.StatusInternalServerError}
	msgValidationError = Message{"E002", "Validation Error", http.StatusBadRequest}
	msgMissingToken    = Message{"E003", "Missing or invalid token", http.StatusUnauthorized}
	msgInvalidToken    = Message{"E004", "Invalid token", http.StatusUnauthorized}
	msgTokenExpired    = Message{"E005", "Token expired", http.StatusUnauthorized}
	msgUnauthorized    = Message{"E006", "Unauthorized", http.StatusForbidden}
	msgNotFound        = Message{"E007", "Not Found", http.StatusNotFound}

	msgCreatePostOK   = Message{"S101", "Create post success", http.StatusCreated}
	msgGetPostOK      = Message{"S102", "Get post success", http.StatusOK}
	msgUpdatePostOK   = Message{"S103", "Update post success", http.StatusOK}
	msgDeletePostOK   = Message{"S104", "Delete post success", http.StatusOK}
	msgCreatePostFail = Message{"E101", "Create post fail", http.StatusInternalServerError}
	msgGetPostFail    = Message{"E102", "Get post fail", http.StatusInternalServerError}
	msgUpdatePostFail = Message{"E103", "Update post fail", http.StatusInternalServerError}
	msgDeletePostFail = Message{"E104", "Delete post fail", http.StatusInternalServerError}

	msgCreateCommentOK   = Message{"S201", "Create comment success", http.StatusCreated}
	msgGetCommentOK      = Message{"S202", "Get comment success", http.StatusOK}
	msgUpdateCommentOK   = Message{"S203", "Update comment success", http.StatusOK}
	msgDeleteCommentOK   = Message{"S204", "Delete comment success", http.StatusOK}
	msgCreateCommentFail = Message{"E201", "Create comment fail", http.StatusInternalServerError}
	msgGetCommentFail    = Message{"E202", "Get comment fail", http.StatusInternalServerError}
	msgUpdateCommentFail = Message{"E203", "Update comment fail", http.StatusInternalServerError}
	msgDeleteCommentFail = Message{"E204", "Delete comment fail", http.StatusInternalServerError}

	msgSyncWebhookOK      = Message{"S301", "Sync webhook event success", http.StatusOK}
	msgSyncWebhookFail    = Message{"E301", "Sync webhook event fail", http.StatusInternalServerError}
	msgInvalidWebhookAuth = Message{"E302", "Invalid webhook secret", http.StatusUnauthorized}
)

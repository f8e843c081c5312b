package api

import (
	"errors"
	"net/http"

	"seclabel/core"
	"seclabel/storage"
)

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.deps.Users.ListUsers(r.Context())
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, "Failed to list users", err)
		return
	}
	if users == nil {
		users = []core.User{}
	}
	a.respondJSON(w, r, http.StatusOK, users)
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var req core.CreateUserRequest
	if !a.decodeJSONBody(w, r, &req) {
		return
	}
	req.Normalize()
	if err := core.Validate(req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}

	user := &core.User{Username: req.Username, Description: req.Description, Role: req.Role}
	if req.Password != "" {
		hash, err := storage.HashPassword(req.Password)
		if err != nil {
			a.writeError(w, r, http.StatusInternalServerError, "Failed to create user", err)
			return
		}
		user.PasswordHash = hash
	}

	err := a.deps.Users.CreateUser(r.Context(), user)
	if errors.Is(err, storage.ErrUserExists) {
		a.writeError(w, r, http.StatusBadRequest, "User already exists", err)
		return
	}
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, "Failed to create user", err)
		return
	}
	a.logger.Infow("User created", "username", user.Username, "role", user.Role, "request_id", requestID(r))
	a.respondJSON(w, r, http.StatusCreated, user)
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, "Invalid user ID", err)
		return
	}
	err = a.deps.Users.DeleteUser(r.Context(), id)
	if errors.Is(err, storage.ErrUserNotFound) {
		a.writeError(w, r, http.StatusNotFound, "User not found", err)
		return
	}
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, "Failed to delete user", err)
		return
	}
	a.logger.Infow("User deleted", "user_id", id, "request_id", requestID(r))
	a.respondMessage(w, r, http.StatusOK, "User deleted successfully")
}

package main

import (
	"net/http"

	"opreg/internal/response"
)

func handleListEntities(w http.ResponseWriter, r *http.Request) {
	categoryID := r.URL.Query().Get("category_id")
	if categoryID == "" {
		response.Err(w, "category_id is required", 400)
		return
	}
	ents, err := getEntityStore().ListByCategory(categoryID)
	if err != nil {
		writeErr(w, err)
		return
	}
	response.JSONMeta(w, ents, len(ents), 1, len(ents))
}

func handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CategoryID    string                 `json:"category_id"`
		DisplayName   string                 `json:"display_name"`
		ResponsibleID *int                   `json:"responsible_id"`
		Values        map[string]interface{} `json:"values"`
	}
	if err := response.DecodeBody(r, &body); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	ent, err := getEntityStore().Create(body.CategoryID, body.DisplayName, body.Values, body.ResponsibleID)
	if err != nil {
		writeErr(w, err)
		return
	}
	logAudit(getUsername(r), AuditActionCreate, "entities", ent.ID, "Created "+ent.DisplayName)
	response.JSON(w, ent)
}

func handleGetEntity(w http.ResponseWriter, r *http.Request, id string) {
	ents, err := getEntityStore().FetchWithValues([]string{id})
	if err != nil {
		writeErr(w, err)
		return
	}
	if len(ents) == 0 {
		response.Err(w, "entity not found", 404)
		return
	}
	response.JSON(w, ents[0])
}

func handleUpdateEntity(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		Basic  map[string]interface{} `json:"basic"`
		Values map[string]interface{} `json:"values"`
	}
	if err := response.DecodeBody(r, &body); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	before, err := getEntityStore().Get(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	ent, err := getEntityStore().Update(id, body.Basic, body.Values)
	if err != nil {
		writeErr(w, err)
		return
	}
	logAuditDiff(getUsername(r), AuditActionUpdate, "entities", id, "Updated "+ent.DisplayName, before, ent)
	response.JSON(w, ent)
}

func handleDeleteEntity(w http.ResponseWriter, r *http.Request, id string) {
	if err := getEntityStore().Delete(id); err != nil {
		writeErr(w, err)
		return
	}
	logAudit(getUsername(r), AuditActionDelete, "entities", id, "Deleted entity")
	response.JSON(w, map[string]string{"status": "deleted"})
}

package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type CategoryListResponse struct {
	Categories []Category `json:"categories"`
}

type CategoryDetailResponse struct {
	Name      string   `json:"name"`
	ItemCount int      `json:"itemCount"`
	Items     []string `json:"items"`
}

func handleListCategories(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		categories, err := store.Categories(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, CategoryListResponse{Categories: categories})
	}
}

func handleGetCategory(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		items, err := store.CategoryItems(r.Context(), name)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "category not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, CategoryDetailResponse{
			Name:      name,
			ItemCount: len(items),
			Items:     items,
		})
	}
}

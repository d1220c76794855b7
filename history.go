// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/czerwonk/qoo_exporter/store"
	log "github.com/sirupsen/logrus"
)

type historyReader interface {
	Recent(ctx context.Context, target string, limit int) ([]store.Summary, error)
}

// historyHandler serves the stored summaries of a target as JSON.
func historyHandler(h historyReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := r.URL.Query().Get("target")
		if target == "" {
			http.Error(w, "missing target parameter", http.StatusBadRequest)
			return
		}

		limit := 100
		if l := r.URL.Query().Get("limit"); l != "" {
			v, err := strconv.Atoi(l)
			if err != nil || v <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = v
		}

		summaries, err := h.Recent(r.Context(), target, limit)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			log.Errorf("could not read history of %s: %v", target, err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(summaries); err != nil {
			log.Errorf("could not write history: %v", err)
		}
	}
}

package http

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"

	"matador/internal/core"
	"matador/internal/log"
	"matador/internal/services"
)

type leaderboardEntry struct {
	Rank   int    `json:"rank"`
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone_number"`
	Level  string `json:"level"`
	Points int64  `json:"points"`
}

// userFromPath resolves the {phone} parameter, writing the error response
// itself when it fails.
func (s *Server) userFromPath(w http.ResponseWriter, r *http.Request) (core.User, bool) {
	phone, err := phoneParam(r)
	if err != nil {
		writeError(w, r, err, msgUserNotFound)
		return core.User{}, false
	}
	user, err := s.store.GetUserByPhone(r.Context(), phone)
	if err != nil {
		writeError(w, r, err, msgUserNotFound)
		return core.User{}, false
	}
	return user, true
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userFromPath(w, r)
	if !ok {
		return
	}
	var patch core.BudgetPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err, msgUserNotFound)
		return
	}
	if err := patch.Validate(); err != nil {
		writeError(w, r, err, msgUserNotFound)
		return
	}
	updated, err := s.store.UpdateBudget(r.Context(), user.ID, patch)
	if err != nil {
		writeError(w, r, err, msgUserNotFound)
		return
	}
	log.FromContext(r.Context()).WithComponent(log.ComponentHTTP).InfoContext(r.Context(), "Budget updated",
		log.NewFields().WithUser(user.ID).WithOperation(log.OpUpdate).ToSlice()...)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleMonthlyStats(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userFromPath(w, r)
	if !ok {
		return
	}
	stats, err := s.service.Stats().MonthlyStats(r.Context(), user.ID, s.service.Now())
	if err != nil {
		writeError(w, r, err, msgUserNotFound)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleWeeklyStats(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userFromPath(w, r)
	if !ok {
		return
	}
	stats, err := s.service.Stats().WeeklyStats(r.Context(), user.ID, s.service.Now())
	if err != nil {
		writeError(w, r, err, msgUserNotFound)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	period, err := services.ParseBreakdownPeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, r, err, msgUserNotFound)
		return
	}
	user, ok := s.userFromPath(w, r)
	if !ok {
		return
	}
	breakdown, err := s.service.Stats().CategoryBreakdown(r.Context(), user.ID, period, s.service.Now())
	if err != nil {
		writeError(w, r, err, msgUserNotFound)
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	params, err := ParseMonthParams(r.URL.Query(), s.service.Now())
	if err != nil {
		writeError(w, r, err, msgUserNotFound)
		return
	}
	user, ok := s.userFromPath(w, r)
	if !ok {
		return
	}
	txs, err := s.store.FindTransactions(r.Context(), user.ID, params.Period())
	if err != nil {
		writeError(w, r, err, msgUserNotFound)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(txs))
}

func (s *Server) handleRecentTransactions(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userFromPath(w, r)
	if !ok {
		return
	}
	txs, err := s.store.RecentTransactions(r.Context(), user.ID, RecentTransactionsLimit)
	if err != nil {
		writeError(w, r, err, msgUserNotFound)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(txs))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err, msgTransactionNotFound)
		return
	}
	user, ok := s.userFromPath(w, r)
	if !ok {
		return
	}
	if err := s.service.DeleteTransaction(r.Context(), user.ID, id); err != nil {
		writeError(w, r, err, msgTransactionNotFound)
		return
	}
	atomic.AddInt64(&s.appMetrics.deleted, 1)
	log.FromContext(r.Context()).WithComponent(log.ComponentHTTP).InfoContext(r.Context(), "Transaction deleted",
		log.NewFields().WithUser(user.ID).WithOperation(log.OpDelete).ToSlice()...)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := ParseLimit(r.URL.Query(), s.leaderboardSize, MaxLeaderboardSize)
	if err != nil {
		writeError(w, r, err, msgUserNotFound)
		return
	}
	users, err := s.leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, r, err, msgUserNotFound)
		return
	}
	entries := make([]leaderboardEntry, len(users))
	for i, u := range users {
		entries[i] = leaderboardEntry{Rank: i + 1, ID: u.ID, Name: u.Name, Phone: u.Phone, Level: u.Level, Points: u.Points}
	}
	writeJSON(w, http.StatusOK, entries)
}

// leaderboard serves from the LRU cache; concurrent misses share one store read.
func (s *Server) leaderboard(ctx context.Context, limit int) ([]core.User, error) {
	key := "limit:" + strconv.Itoa(limit)
	users, hit, err := s.leaderboardCache.GetOrLoad(ctx, key, func(ctx context.Context) ([]core.User, error) {
		users, err := s.store.Leaderboard(ctx, limit)
		if err == nil {
			log.FromContext(ctx).WithComponent(log.ComponentCache).DebugContext(ctx, "Leaderboard cached", "limit", limit, "count", len(users))
		}
		return users, err
	})
	if hit {
		atomic.AddInt64(&s.appMetrics.cacheHits, 1)
	} else {
		atomic.AddInt64(&s.appMetrics.cacheMisses, 1)
	}
	return users, err
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

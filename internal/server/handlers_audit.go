package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/Savvy-Save/Aetherium/internal/auth"
)

// handleAuditLog returns the hash-chained operation log. Admin only. The
// chain is verified before serving so a tampered log reads as an error
// instead of passing through.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, err := auth.MustClaims(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	if err := s.auditor.Verify(); err != nil {
		s.logger.Error("audit chain verification failed", zap.Error(err))
		http.Error(w, "audit log unavailable", http.StatusInternalServerError)
		return
	}
	s.logger.Info("audit log read", zap.String("user", claims.Sub))
	writeJSON(w, s.auditor.Entries())
}

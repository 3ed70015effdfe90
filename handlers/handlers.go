package handlers

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"tangle-node/dag"
	"tangle-node/logger"
	"tangle-node/models"
	"tangle-node/repository"
)

// Handler contains the HTTP handlers for the transaction API
type Handler struct {
	Cluster *dag.Cluster
	Repo    repository.TransactionRepositoryInterface
}

// NewHandler creates and returns a new Handler instance
func NewHandler(c *dag.Cluster, repo repository.TransactionRepositoryInterface) *Handler {
	return &Handler{Cluster: c, Repo: repo}
}

// SubmitTransactionRequest is the payload of POST /transactions
type SubmitTransactionRequest struct {
	Hash             *models.Hash `json:"hash,omitempty"`
	SenderTrustScore *float64     `json:"sender_trust_score"`
	SenderHash       *models.Hash `json:"sender_hash,omitempty"`
	Description      string       `json:"description"`
	IsGenesis        bool         `json:"is_genesis"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusOf maps engine errors onto HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, dag.ErrInvalidTrustScore):
		return http.StatusBadRequest
	case errors.Is(err, dag.ErrDuplicateAttachment):
		return http.StatusConflict
	case errors.Is(err, dag.ErrUnresolvedParent), errors.Is(err, dag.ErrCycleDetected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dag.ErrNotInitialized):
		return http.StatusServiceUnavailable
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func newTransaction(req *SubmitTransactionRequest) *models.Transaction {
	tx := models.NewTransaction(models.Hash{}, *req.SenderTrustScore, req.Description)
	tx.SenderHash = req.SenderHash
	tx.IsGenesis = req.IsGenesis
	if req.Hash != nil {
		tx.Hash = *req.Hash
		return tx
	}
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(tx.CreateTime.UnixNano()))
	var sender []byte
	if req.SenderHash != nil {
		sender = req.SenderHash[:]
	}
	tx.Hash = models.HashOf([]byte(req.Description), sender, ts[:])
	return tx
}

// SubmitTransaction selects sources for a new transaction, stores it and attaches it to the cluster
func (h *Handler) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req SubmitTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Logger.Error("Failed to decode transaction", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.SenderTrustScore == nil {
		writeError(w, http.StatusBadRequest, "sender_trust_score is required")
		return
	}

	tx := newTransaction(&req)
	if err := tx.ValidateTrustScore(); err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	_, err := h.Repo.GetTransaction(tx.Hash)
	switch {
	case err == nil:
		writeError(w, http.StatusConflict, dag.ErrDuplicateAttachment.Error())
		return
	case !errors.Is(err, repository.ErrNotFound):
		logger.Logger.Error("Failed to look up transaction", zap.Stringer("hash", tx.Hash), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if _, err := h.Cluster.SelectSources(tx); err != nil {
		logger.Logger.Error("Failed to select sources", zap.Stringer("hash", tx.Hash), zap.Error(err))
		writeError(w, statusOf(err), err.Error())
		return
	}
	if err := h.Repo.PutTransaction(tx); err != nil {
		logger.Logger.Error("Failed to store transaction", zap.Stringer("hash", tx.Hash), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := h.Cluster.Attach(tx); err != nil {
		logger.Logger.Error("Failed to attach transaction", zap.Stringer("hash", tx.Hash), zap.Error(err))
		// a duplicate's record belongs to the attached twin
		if !errors.Is(err, dag.ErrDuplicateAttachment) {
			if delErr := h.Repo.DeleteTransaction(tx.Hash); delErr != nil {
				logger.Logger.Error("Failed to remove rejected transaction", zap.Stringer("hash", tx.Hash), zap.Error(delErr))
			}
		}
		writeError(w, statusOf(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":     "Transaction attached successfully",
		"transaction": tx.Clone(),
	})
}

// GetTransaction returns an unconfirmed transaction from memory or a stored one
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	hash, err := models.HashFromHex(mux.Vars(r)["hash"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tx, err := h.Cluster.Get(hash)
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tx.Clone())
}

// GetTips lists the current tips per non-empty trust score bucket
func (h *Handler) GetTips(w http.ResponseWriter, r *http.Request) {
	snapshot := h.Cluster.TipPool().Snapshot()
	buckets := make(map[int][]models.Hash)
	for i := range snapshot {
		for _, tip := range snapshot[i] {
			buckets[i] = append(buckets[i], tip.Hash)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   snapshot.Len(),
		"buckets": buckets,
	})
}

// GetUnconfirmed lists the transactions still waiting for trust chain consensus
func (h *Handler) GetUnconfirmed(w http.ResponseWriter, r *http.Request) {
	hashes := h.Cluster.Registry().Hashes()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(hashes),
		"hashes": hashes,
	})
}

// WakeTCC makes the consensus loop run its next cycle now
func (h *Handler) WakeTCC(w http.ResponseWriter, r *http.Request) {
	h.Cluster.TCC().Wake()
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "trust chain consensus cycle requested"})
}

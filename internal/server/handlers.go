/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */


package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"chainportal-mint-go/internal/models"
)

const maxFeedbackBody = 16 << 10

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.queries.HealthCheck(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleClientEnv(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(s.queries.ClientEnv())
}

func (s *Server) handleMintFees(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	size := 0
	if raw := q.Get("metadataByteSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, &models.FeesResult{Error: "invalid metadata byte size"})
			return
		}
		size = n
	}

	result := s.queries.MintFees(r.Context(), models.AssetType(q.Get("assetType")), strings.Split(q.Get("blockchainSymbol"), ","), size)
	writeJSON(w, statusFor(result.Success), result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	result := s.queries.TransactionHistory(r.Context(), strings.TrimSpace(q.Get("pubkey")), limit, offset)
	writeJSON(w, statusFor(result.Success), result)
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	result := s.queries.TransactionDetails(r.Context(), strings.TrimSpace(r.URL.Query().Get("txId")))
	status := statusFor(result.Success)
	if result.Error == "transaction not found" {
		status = http.StatusNotFound
	}
	writeJSON(w, status, result)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var feedback models.Feedback
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFeedbackBody)).Decode(&feedback); err != nil {
		writeJSON(w, http.StatusBadRequest, &models.FeedbackResult{Error: "invalid feedback body"})
		return
	}
	feedback.IP = clientIP(r)

	result := s.queries.SubmitFeedback(r.Context(), feedback)
	writeJSON(w, statusFor(result.Success), result)
}

func statusFor(success bool) int {
	if success {
		return http.StatusOK
	}
	return http.StatusBadRequest
}

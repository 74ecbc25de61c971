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
	"context"
	"errors"
	"net/http"
	"time"

	"chainportal-mint-go/internal/models"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	// maxMintRequestBytes bounds one request, media included.
	maxMintRequestBytes = 32 << 20

	defaultEventTimeout = 10 * time.Second
	statusEvent         = "mint-nft-status"
)

// socketMessage is one frame sent over the mint socket
type socketMessage struct {
	Event string       `json:"event"`
	Data  models.Event `json:"data"`
}

// handleMintSocket reads one mint request, starts its pipeline and relays
// every event until the pipeline is done. A client that disconnects early
// does not stop the pipeline.
func (s *Server) handleMintSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.cfg.AllowedOrigins})
	if err != nil {
		zap.L().Warn("Websocket upgrade failed", zap.String("ip", clientIP(r)), zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream error")
	conn.SetReadLimit(maxMintRequestBytes)

	ctx := r.Context()
	readCtx, cancel := s.withTimeout(ctx, s.cfg.ReadTimeout)
	var req models.MintRequest
	err = wsjson.Read(readCtx, conn, &req)
	cancel()
	if err != nil {
		zap.L().Warn("Invalid mint request", zap.String("ip", clientIP(r)), zap.Error(err))
		_ = conn.Close(websocket.StatusUnsupportedData, "invalid mint request")
		return
	}

	events := s.pipelines.Start(req)
	for ev := range events {
		if err := s.writeEvent(ctx, conn, ev); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				zap.L().Warn("Mint event not delivered",
					zap.String("signature", req.PaymentSignature),
					zap.Int("step", ev.StepID),
					zap.Error(err))
			}
			return
		}
		if ev.Done {
			break
		}
	}
	_ = conn.Close(websocket.StatusNormalClosure, "mint finished")
}

func (s *Server) writeEvent(ctx context.Context, conn *websocket.Conn, ev models.Event) error {
	timeout := s.cfg.EventTimeout
	if timeout <= 0 {
		timeout = defaultEventTimeout
	}
	writeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, socketMessage{Event: statusEvent, Data: ev})
}

func (s *Server) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

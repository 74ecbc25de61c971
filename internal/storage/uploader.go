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

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"chainportal-mint-go/internal/models"
	"chainportal-mint-go/internal/transport"

	"go.uber.org/zap"
)

var ErrUploadFailed = errors.New("metadata upload failed")

// Upload is a stored object. TxRef is the storage funding transaction, when
// the provider charged the platform on-chain for it.
type Upload struct {
	URI   string `json:"uri"`
	TxRef string `json:"txRef,omitempty"`
}

// Uploader talks to the metadata storage gateway (Arweave for Solana, IPFS
// for Ethereum).
type Uploader struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewUploader(cfg models.StorageConfig, client *http.Client) *Uploader {
	return &Uploader{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  client,
	}
}

// UploadMedia stores a media file for the given chain's storage backend.
func (u *Uploader) UploadMedia(ctx context.Context, chain string, data []byte, name, contentType string) (Upload, error) {
	if len(data) == 0 {
		return Upload{}, fmt.Errorf("%w: empty media", ErrUploadFailed)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("blockchain", chain); err != nil {
		return Upload{}, err
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return Upload{}, err
	}
	if _, err := part.Write(data); err != nil {
		return Upload{}, err
	}
	if err := w.Close(); err != nil {
		return Upload{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/upload", &body)
	if err != nil {
		return Upload{}, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	transport.SetBearer(req, u.apiKey)

	var out Upload
	if err := transport.Do(u.client, req, &out); err != nil {
		return Upload{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if out.URI == "" {
		return Upload{}, fmt.Errorf("%w: gateway returned no uri for %s", ErrUploadFailed, name)
	}

	zap.L().Info("Media uploaded",
		zap.String("chain", chain),
		zap.String("name", name),
		zap.Int("bytes", len(data)),
		zap.String("uri", out.URI),
		zap.String("tx_ref", out.TxRef))
	return out, nil
}

// UploadJSON stores a metadata document.
func (u *Uploader) UploadJSON(ctx context.Context, chain string, doc any) (Upload, error) {
	body := struct {
		Blockchain string `json:"blockchain"`
		Document   any    `json:"document"`
	}{chain, doc}

	var out Upload
	if err := transport.PostJSON(ctx, u.client, u.baseURL+"/upload/json", u.apiKey, body, &out); err != nil {
		return Upload{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if out.URI == "" {
		return Upload{}, fmt.Errorf("%w: gateway returned no uri for metadata", ErrUploadFailed)
	}

	zap.L().Info("Metadata document uploaded",
		zap.String("chain", chain),
		zap.String("uri", out.URI),
		zap.String("tx_ref", out.TxRef))
	return out, nil
}

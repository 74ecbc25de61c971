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


package api

import (
	"context"
	"unicode/utf8"

	"chainportal-mint-go/internal/models"

	"go.uber.org/zap"
)

const maxFeedbackLength = 1000

// SubmitFeedback validates and stores a user rating
func (s *QueryService) SubmitFeedback(ctx context.Context, feedback models.Feedback) *models.FeedbackResult {
	if feedback.Rating < 1 || feedback.Rating > 5 {
		return &models.FeedbackResult{Success: false, Error: "rating should be between 1 and 5"}
	}
	if utf8.RuneCountInString(feedback.Text) > maxFeedbackLength {
		return &models.FeedbackResult{Success: false, Error: "feedback should be at most 1000 characters long"}
	}

	if err := s.db.SaveFeedback(ctx, feedback); err != nil {
		zap.L().Error("Failed to save feedback",
			zap.Int("rating", feedback.Rating),
			zap.String("ip", feedback.IP),
			zap.Error(err))
		return &models.FeedbackResult{Success: false, Error: "failed to save feedback"}
	}

	return &models.FeedbackResult{Success: true}
}

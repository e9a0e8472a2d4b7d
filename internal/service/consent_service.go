package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/learnly/prepexam-backend/internal/config"
	"github.com/learnly/prepexam-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ConsentService stores visitor consent preferences and serves as the
// read-only consent provider for the preview gate. Reads always hit the
// store so mid-session changes take effect on the next operation.
type ConsentService struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewConsentService creates a new ConsentService.
func NewConsentService(rdb *redis.Client, log zerolog.Logger) *ConsentService {
	return &ConsentService{
		rdb: rdb,
		log: log.With().Str("component", "consent_service").Logger(),
	}
}

// Preferences returns the visitor's stored preferences, or the pre-decision
// default (essential only). Implements preview.ConsentReader.
func (s *ConsentService) Preferences(ctx context.Context, visitorID string) model.ConsentPreferences {
	data, err := s.rdb.Get(ctx, config.CacheKey.VisitorConsentKey(visitorID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Str("visitor_id", visitorID).Msg("Consent read failed, using defaults")
		}
		return model.DefaultConsent()
	}

	var prefs model.ConsentPreferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		s.log.Warn().Err(err).Str("visitor_id", visitorID).Msg("Consent decode failed, using defaults")
		return model.DefaultConsent()
	}
	return prefs.Normalize()
}

// Set stores the visitor's preferences. Essential is forced true.
func (s *ConsentService) Set(ctx context.Context, visitorID string, prefs model.ConsentPreferences) error {
	data, err := json.Marshal(prefs.Normalize())
	if err != nil {
		return fmt.Errorf("encode consent: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.VisitorConsentKey(visitorID), data, 0).Err(); err != nil {
		return fmt.Errorf("store consent: %w", err)
	}
	return nil
}

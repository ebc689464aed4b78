package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/HCTech2/GOLD-HFT/config"
	"github.com/HCTech2/GOLD-HFT/internal/logging"
)

// NeutralScore is returned whenever no scorer is reachable. A neutral score
// neither boosts nor shrinks the position size.
const NeutralScore = 0.5

// Features are the signal characteristics sent to the external scorer.
type Features struct {
	Side          string  `json:"side"`
	STCM1         float64 `json:"stc_m1"`
	STCM5         float64 `json:"stc_m5"`
	HTFConfidence float64 `json:"htf_confidence"`
	Spread        float64 `json:"spread"`
	Volatility    float64 `json:"volatility"`
}

// Scorer asks an external model service to rate a signal in [0,1]. The
// collaborator is optional: disabled, unreachable, or slow scorers all
// degrade to the neutral score so a model outage never stalls trading.
type Scorer struct {
	cfg        config.ScorerConfig
	httpClient *http.Client
	log        zerolog.Logger
}

// New creates a scorer from configuration.
func New(cfg config.ScorerConfig) *Scorer {
	return &Scorer{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond},
		log:        logging.Component("scorer"),
	}
}

// Score rates the signal. Every failure path returns the neutral score.
func (s *Scorer) Score(ctx context.Context, features Features) float64 {
	if !s.cfg.Enabled || s.cfg.URL == "" {
		return NeutralScore
	}

	score, err := s.query(ctx, features)
	if err != nil {
		s.log.Warn().Err(err).Msg("Scorer unavailable, using neutral score")
		return NeutralScore
	}
	if score < 0 || score > 1 {
		s.log.Warn().Float64("score", score).Msg("Scorer returned out-of-range value, using neutral score")
		return NeutralScore
	}
	return score
}

func (s *Scorer) query(ctx context.Context, features Features) (float64, error) {
	payload, err := json.Marshal(features)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("scorer status %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("error parsing scorer response: %w", err)
	}
	return out.Score, nil
}

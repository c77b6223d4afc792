package enrich

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pennypulse/pennypulse/internal/market"
	"github.com/pennypulse/pennypulse/internal/models"
)

// Flags toggles each enrichment provider individually. A disabled provider
// contributes its identity value.
type Flags struct {
	Regime   bool
	RVol     bool
	Float    bool
	Offering bool
	Sector   bool
}

// Service assembles the per-item enrichment snapshot the classifier consumes.
type Service struct {
	bars     BarSource
	regime   *RegimeClassifier
	rvol     *RVolProvider
	float    *FloatProvider
	offering *OfferingParser
	sector   *SectorProvider
	flags    Flags
}

func NewService(
	bars BarSource,
	regime *RegimeClassifier,
	rvol *RVolProvider,
	floatProv *FloatProvider,
	offering *OfferingParser,
	sector *SectorProvider,
	flags Flags,
) *Service {
	return &Service{
		bars:     bars,
		regime:   regime,
		rvol:     rvol,
		float:    floatProv,
		offering: offering,
		sector:   sector,
		flags:    flags,
	}
}

// SnapshotFor captures market context for one item's primary ticker at an
// instant. Providers fail soft: a miss yields that provider's identity slice
// and the snapshot is always usable.
func (s *Service) SnapshotFor(ctx context.Context, item models.RawItem, ticker string, instant time.Time) Snapshot {
	snap := Identity()

	px, err := s.bars.PriceAt(ctx, ticker, instant)
	if err == nil {
		snap.LastPrice = px
		snap.HasPrice = true
	} else if !errors.Is(err, market.ErrNoData) {
		log.Warn().Err(err).Str("component", "enrich").Str("ticker", ticker).
			Msg("price lookup failed")
	}

	if s.flags.Regime {
		r := s.regime.Classify(ctx, instant)
		snap.Regime = r.Regime
		snap.RegimeMultiplier = r.Multiplier
		snap.RegimeConfidence = r.Confidence
	}
	if s.flags.RVol {
		rv := s.rvol.At(ctx, ticker, instant)
		snap.RVol = rv.RVol
		snap.RVolMultiplier = rv.Multiplier
	}
	if s.flags.Float {
		f := s.float.At(ctx, ticker)
		snap.FloatClass = f.Class
		snap.FloatMultiplier = f.Multiplier
	}
	if s.flags.Offering {
		var floatShares float64
		if s.flags.Float {
			floatShares = s.float.At(ctx, ticker).Shares
		}
		off := s.offering.Parse(item, floatShares, snap.LastPrice)
		if off.IsOffering {
			snap.OfferingSeverity = off.Severity
			snap.OfferingPenalty = off.Penalty
			snap.DilutionPct = off.DilutionPct
		}
	}
	if s.flags.Sector {
		sec := s.sector.At(ctx, ticker, instant)
		snap.Sector = sec.Sector
		snap.SectorRelReturn = sec.RelReturn5d
	}

	return snap
}

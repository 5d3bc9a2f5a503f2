// Package projection maintains a relational read model of the ledger. It
// subscribes to the typed event stream and writes one row per state change so
// operators can query history without replaying the ledger.
package projection

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"taobridge/core/events"
)

// Store writes committed ledger events into the relational read model.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore constructs a projection store backed by the provided database.
func NewStore(db *gorm.DB, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, now: now}
}

// Apply persists a single committed event. Unknown event types are ignored so
// the core can grow new events without breaking older projections.
func (s *Store) Apply(ev events.Event) error {
	switch e := ev.(type) {
	case events.TransferRequested:
		return s.db.Create(&Transfer{
			ID:                 uuid.New(),
			Direction:          DirectionOutbound,
			Nonce:              e.Nonce,
			SourceChainID:      e.SourceChainID,
			DestinationChainID: e.DestinationChainID,
			TokenKey:           e.TokenKey.Hex(),
			FromAddress:        e.From.Hex(),
			ToAddress:          e.To.Hex(),
			Amount:             e.Amount.String(),
			CreatedAt:          s.now(),
		}).Error
	case events.TransferExecuted:
		return s.db.Create(&Transfer{
			ID:            uuid.New(),
			Direction:     DirectionInbound,
			Nonce:         e.Nonce,
			SourceChainID: e.SourceChainID,
			CreatedAt:     s.now(),
		}).Error
	case events.TokenWrapped:
		return s.upsertToken(Token{
			TokenKey:  e.TokenKey.Hex(),
			Address:   e.Address.Hex(),
			Managed:   true,
			Enabled:   true,
			Supported: true,
			Name:      e.Metadata.Name,
			Symbol:    e.Metadata.Symbol,
			Decimals:  e.Metadata.Decimals,
		})
	case events.TokenWhitelisted:
		return s.upsertToken(Token{
			TokenKey:  e.TokenKey.Hex(),
			Address:   e.Address.Hex(),
			Managed:   e.Managed,
			Enabled:   e.Enabled,
			Supported: e.Supported,
			Name:      e.Metadata.Name,
			Symbol:    e.Metadata.Symbol,
			Decimals:  e.Metadata.Decimals,
		})
	case events.TokensStaked:
		return s.stakeEvent(KindStaked, e.User.Hex(), e.Amount.String(), 0)
	case events.TokensUnstaked:
		return s.stakeEvent(KindUnstaked, e.User.Hex(), e.Amount.String(), 0)
	case events.FundsFlushed:
		return s.stakeEvent(KindFlushed, "", e.Amount.String(), e.EpochID)
	case events.RewardPaid:
		return s.stakeEvent(KindRewardPaid, e.Recipient.Hex(), e.Amount.String(), 0)
	default:
		return nil
	}
}

func (s *Store) upsertToken(token Token) error {
	token.UpdatedAt = s.now()
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token_key"}},
		UpdateAll: true,
	}).Create(&token).Error
}

func (s *Store) stakeEvent(kind, user, amount string, epochID uint64) error {
	return s.db.Create(&StakeEvent{
		ID:        uuid.New(),
		Kind:      kind,
		Staker:    user,
		Amount:    amount,
		EpochID:   epochID,
		CreatedAt: s.now(),
	}).Error
}

// Transfers returns the most recent transfers, newest first.
func (s *Store) Transfers(limit int) ([]Transfer, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Transfer
	err := s.db.Order("created_at desc").Limit(limit).Find(&out).Error
	return out, err
}

// TransferByOrigin looks an inbound transfer up by its cross-chain identity.
func (s *Store) TransferByOrigin(nonce, sourceChainID uint64) (*Transfer, error) {
	var transfer Transfer
	err := s.db.Where("nonce = ? AND source_chain_id = ? AND direction = ?",
		nonce, sourceChainID, DirectionInbound).First(&transfer).Error
	if err != nil {
		return nil, err
	}
	return &transfer, nil
}

// Tokens returns every token the projection has seen.
func (s *Store) Tokens() ([]Token, error) {
	var out []Token
	err := s.db.Order("symbol").Find(&out).Error
	return out, err
}

// StakeEvents returns the stake history for a user, newest first.
func (s *Store) StakeEvents(user string) ([]StakeEvent, error) {
	var out []StakeEvent
	err := s.db.Where("staker = ?", user).Order("created_at desc").Find(&out).Error
	return out, err
}

// Projector adapts the store to the core's Emitter interface. Projection
// failures are logged rather than propagated; the read model is advisory and
// must never veto a committed state change.
type Projector struct {
	store  *Store
	logger *slog.Logger
	next   events.Emitter
}

// NewProjector wraps the store. Events are forwarded to next after being
// projected, so projectors can be chained in front of other sinks.
func NewProjector(store *Store, logger *slog.Logger, next events.Emitter) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{store: store, logger: logger, next: next}
}

// Emit implements the Emitter interface.
func (p *Projector) Emit(ev events.Event) {
	if p.store != nil {
		if err := p.store.Apply(ev); err != nil {
			p.logger.Error("projection write failed",
				slog.String("event", ev.EventType()),
				slog.String("error", fmt.Sprintf("%v", err)))
		}
	}
	if p.next != nil {
		p.next.Emit(ev)
	}
}

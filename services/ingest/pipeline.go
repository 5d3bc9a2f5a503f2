// Package ingest drains attested inbound batches into the settlement ledger.
// Each batch settles atomically; after a commit the full ledger state is
// persisted so a crash never replays or loses a settled batch.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	coreerr "taobridge/core/errors"
	"taobridge/core/types"
	"taobridge/native/bridge"
	"taobridge/observability/metrics"
	"taobridge/storage/statedb"
)

// Pipeline executes inbound batches against the ledger and checkpoints state.
type Pipeline struct {
	engine  *bridge.Engine
	state   *statedb.StateDB
	logger  *slog.Logger
	metrics *metrics.BridgeMetrics
}

// New constructs a pipeline. The state database is optional; without it the
// ledger runs purely in memory.
func New(engine *bridge.Engine, state *statedb.StateDB, logger *slog.Logger, m *metrics.BridgeMetrics) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{engine: engine, state: state, logger: logger, metrics: m}
}

// Run drains envelopes from the source until the context is cancelled.
// Failed batches are logged and skipped; the source decides on redelivery.
func (p *Pipeline) Run(ctx context.Context, source <-chan *Envelope) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-source:
			if !ok {
				return nil
			}
			if err := p.Process(env); err != nil {
				p.logger.Error("batch rejected",
					slog.String("batch", env.BatchID),
					slog.String("error", err.Error()))
			}
		}
	}
}

// Process settles one batch. On success the ledger checkpoint is written
// before returning, so an acknowledged batch survives a restart.
func (p *Pipeline) Process(env *Envelope) error {
	if err := env.Validate(); err != nil {
		p.metrics.ObserveBatchFailure("malformed")
		return err
	}
	authority, err := types.ParseAddress(env.Authority)
	if err != nil {
		p.metrics.ObserveBatchFailure("malformed")
		return fmt.Errorf("%w: authority: %v", ErrMalformedEnvelope, err)
	}

	if err := p.engine.ExecuteTransferRequests(authority, env.Items); err != nil {
		p.metrics.ObserveBatchFailure(failureReason(err))
		if errors.Is(err, coreerr.ErrTransferAlreadyProcessed) {
			p.metrics.ObserveReplayRejection()
		}
		return err
	}

	p.metrics.ObserveBatchExecuted(len(env.Items))
	p.metrics.SetProcessedSetSize(p.engine.ProcessedCount())
	p.metrics.SetBridgeNonce(p.engine.BridgeNonce())
	if status, ok := p.engine.StakeStatus(); ok {
		pooled, _ := new(big.Float).SetInt(status.PooledBalance).Float64()
		metrics.Stake().SetPooledBalance(pooled)
		metrics.Stake().SetNextEpochID(status.NextStakingEpochID)
	}
	p.logger.Info("batch settled",
		slog.String("batch", env.BatchID),
		slog.Int("items", len(env.Items)))

	if p.state != nil {
		if err := p.state.Save(p.engine.ExportState()); err != nil {
			// The batch is committed in memory; surface the checkpoint
			// failure so the operator can intervene before restart.
			return fmt.Errorf("ingest: checkpoint after batch %s: %w", env.BatchID, err)
		}
	}
	return nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, coreerr.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, coreerr.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, coreerr.ErrTransferAlreadyProcessed):
		return "replay"
	case errors.Is(err, coreerr.ErrInvalidAmount), errors.Is(err, coreerr.ErrInvalidRecipient):
		return "invalid_item"
	case errors.Is(err, coreerr.ErrUnstakingFailed), errors.Is(err, coreerr.ErrInsufficientStakedBalance):
		return "unstake"
	default:
		return "other"
	}
}

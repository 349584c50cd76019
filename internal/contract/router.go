// Package contract routes JSON messages to the consumption unit collection,
// records the events each mutation emits and publishes them to subscribers.
package contract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"consumption-unit/internal/consumption"
	"consumption-unit/internal/domain"
	"consumption-unit/internal/idhash"
	"consumption-unit/internal/observability"
	"consumption-unit/internal/storage"
)

// Info identifies one invocation.
type Info struct {
	Sender    string // authenticated caller
	RequestID string // generated when empty
}

// Publisher receives the audit events of every successful mutation.
type Publisher interface {
	Publish(events []*domain.AuditEvent)
}

// Router decodes messages, runs them against the collection and records
// their events. The event sink, publisher and metrics are optional.
type Router struct {
	contract  *consumption.Contract
	events    storage.EventStore
	publisher Publisher
	metrics   *observability.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewRouter creates a router over c. Any of events, publisher, metrics and
// logger may be nil.
func NewRouter(c *consumption.Contract, events storage.EventStore, publisher Publisher, metrics *observability.Metrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		contract:  c,
		events:    events,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.With("component", "router"),
		now:       time.Now,
	}
}

// SetClock replaces the invocation clock.
func (r *Router) SetClock(now func() time.Time) {
	r.now = now
}

// Instantiate decodes an InstantiateMsg and creates the collection.
func (r *Router) Instantiate(ctx context.Context, info Info, raw []byte) (*consumption.Response, error) {
	var msg consumption.InstantiateMsg
	if err := decodeStruct(raw, &msg); err != nil {
		return nil, err
	}
	return r.InstantiateWith(ctx, info, msg)
}

// InstantiateWith creates the collection from an already decoded message.
func (r *Router) InstantiateWith(ctx context.Context, info Info, msg consumption.InstantiateMsg) (*consumption.Response, error) {
	return r.run(ctx, info, "instantiate", "", func(env consumption.Env) (*consumption.Response, error) {
		return r.contract.Instantiate(ctx, env, msg)
	})
}

// Execute decodes an ExecuteMsg and applies it.
func (r *Router) Execute(ctx context.Context, info Info, raw []byte) (*consumption.Response, error) {
	var msg ExecuteMsg
	action, err := decode(raw, &msg)
	if err != nil {
		return nil, err
	}

	switch {
	case msg.Mint != nil:
		return r.run(ctx, info, action, msg.Mint.TokenID, func(env consumption.Env) (*consumption.Response, error) {
			return r.contract.Mint(ctx, env, *msg.Mint)
		})
	case msg.Burn != nil:
		return r.run(ctx, info, action, msg.Burn.TokenID, func(env consumption.Env) (*consumption.Response, error) {
			return r.contract.Burn(ctx, env, msg.Burn.TokenID)
		})
	case msg.UpdateNftInfo != nil:
		m := msg.UpdateNftInfo
		if m.Extension.UpdatePool == nil {
			return nil, fmt.Errorf("%w: extension must be update_pool", consumption.ErrInvalidInput)
		}
		return r.run(ctx, info, action, m.TokenID, func(env consumption.Env) (*consumption.Response, error) {
			return r.contract.UpdateTier(ctx, env, m.TokenID, m.Extension.UpdatePool.NewCommitmentTierID)
		})
	case msg.UpdateCollectionInfo != nil:
		return r.run(ctx, info, action, "", func(env consumption.Env) (*consumption.Response, error) {
			return r.contract.UpdateCollectionInfo(ctx, env, *msg.UpdateCollectionInfo)
		})
	default:
		return r.run(ctx, info, action, msg.Select.TokenID, func(env consumption.Env) (*consumption.Response, error) {
			return r.contract.Select(ctx, env, msg.Select.TokenID)
		})
	}
}

// Migrate decodes a MigrateMsg and bumps the stored version.
func (r *Router) Migrate(ctx context.Context, info Info, raw []byte) (*consumption.Response, error) {
	var msg MigrateMsg
	if _, err := decode(raw, &msg); err != nil {
		return nil, err
	}
	return r.run(ctx, info, "migrate", "", func(consumption.Env) (*consumption.Response, error) {
		return r.contract.Migrate(ctx)
	})
}

// TokenEvents returns the recorded history of a token.
func (r *Router) TokenEvents(ctx context.Context, tokenID string) ([]*domain.AuditEvent, error) {
	if r.events == nil {
		return []*domain.AuditEvent{}, nil
	}
	events, err := r.events.GetByTokenID(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("%w: get token events: %w", consumption.ErrStorage, err)
	}
	return events, nil
}

func (r *Router) run(ctx context.Context, info Info, action, tokenID string, fn func(consumption.Env) (*consumption.Response, error)) (*consumption.Response, error) {
	if info.RequestID == "" {
		info.RequestID = uuid.NewString()
	}
	env := consumption.Env{Sender: info.Sender, Time: r.now()}
	log := r.logger.With("action", action, "sender", info.Sender, "request_id", info.RequestID)
	if tokenID != "" {
		log = log.With("token_id", tokenID)
	}

	start := time.Now()
	resp, err := fn(env)
	if r.metrics != nil {
		r.metrics.RecordExecution(action, time.Since(start), err)
	}
	if err != nil {
		if errors.Is(err, consumption.ErrStorage) {
			log.Error("execute failed", "error", err)
		} else {
			log.Warn("execute rejected", "error", err)
		}
		return nil, err
	}
	log.Info("executed")

	r.record(ctx, info, env, resp, log)
	if r.metrics != nil && (action == "mint" || action == "burn") {
		if n, err := r.contract.NumTokens(ctx); err == nil {
			r.metrics.SetLiveTokens(n)
		}
	}
	return resp, nil
}

// record persists and publishes the response events. The mutation is already
// committed, so failures are logged and counted but not returned.
func (r *Router) record(ctx context.Context, info Info, env consumption.Env, resp *consumption.Response, log *slog.Logger) {
	events := AuditEvents(info, env, resp)
	if len(events) == 0 {
		return
	}

	if r.events != nil {
		err := r.events.InsertBulk(ctx, events)
		if r.metrics != nil {
			r.metrics.RecordAudit(len(events), err)
		}
		if err != nil {
			log.Error("store audit events", "error", err)
		}
	}
	if r.publisher != nil {
		r.publisher.Publish(events)
	}
}

// AuditEvents converts the events of resp into audit records. Event ids are
// derived from the request id, so replaying a request yields the same ids.
func AuditEvents(info Info, env consumption.Env, resp *consumption.Response) []*domain.AuditEvent {
	ts := env.Time.UnixMilli()
	out := make([]*domain.AuditEvent, 0, len(resp.Events))
	for i, ev := range resp.Events {
		tokenID, _ := ev.Attr("token_id")
		attrs := make(map[string]string, len(ev.Attributes))
		for _, a := range ev.Attributes {
			attrs[a.Key] = a.Value
		}
		out = append(out, &domain.AuditEvent{
			EventID:    idhash.ComputeEventID(info.RequestID, ev.Type, tokenID, i, ts),
			Type:       ev.Type,
			TokenID:    tokenID,
			Sender:     info.Sender,
			Attributes: attrs,
			Index:      i,
			Timestamp:  ts,
		})
	}
	return out
}

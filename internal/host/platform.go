package host

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/sib2mqtt/internal/core/domain"
	"github.com/berfenger/sib2mqtt/internal/core/port"

	"github.com/asynkron/protoactor-go/actor"
)

// ActorPlatform runs entity platforms as actors under the master actor.
type ActorPlatform struct {
	root    *actor.RootContext
	master  *actor.PID
	timeout time.Duration
}

func NewActorPlatform(root *actor.RootContext, master *actor.PID, timeout time.Duration) *ActorPlatform {
	return &ActorPlatform{
		root:    root,
		master:  master,
		timeout: timeout,
	}
}

func (p *ActorPlatform) AddEntities(ctx context.Context, entry domain.ConfigurationEntry, platform string, entities []domain.Entity, updateBeforeAdd bool) error {
	res, err := p.request(ctx, domain.SpawnPlatformRequest{
		EntryId:         entry.EntryId,
		Title:           entry.Title,
		Platform:        platform,
		Entities:        entities,
		UpdateBeforeAdd: updateBeforeAdd,
	})
	if err != nil {
		return err
	}
	resp, ok := res.(domain.SpawnPlatformResponse)
	if !ok {
		return fmt.Errorf("unexpected response %T", res)
	}
	return resp.GetResponseError()
}

func (p *ActorPlatform) RemoveEntities(ctx context.Context, entryId string) error {
	res, err := p.request(ctx, domain.StopPlatformRequest{EntryId: entryId})
	if err != nil {
		return err
	}
	resp, ok := res.(domain.StopPlatformResponse)
	if !ok {
		return fmt.Errorf("unexpected response %T", res)
	}
	return resp.GetResponseError()
}

func (p *ActorPlatform) States(ctx context.Context, entryId string) ([]domain.EntityState, error) {
	res, err := p.request(ctx, domain.GetEntityStatesRequest{EntryId: entryId})
	if err != nil {
		return nil, err
	}
	resp, ok := res.(domain.GetEntityStatesResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response %T", res)
	}
	if resp.HasResponseError() {
		return nil, resp.GetResponseError()
	}
	return resp.States, nil
}

// request bounds the actor request by the context deadline when it is sooner
// than the platform timeout.
func (p *ActorPlatform) request(ctx context.Context, msg any) (any, error) {
	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}
	return p.root.RequestFuture(p.master, msg, timeout).Result()
}

var _ port.EntityPlatform = (*ActorPlatform)(nil)

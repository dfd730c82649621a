package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/berfenger/sib2mqtt/internal/core/domain"
	"github.com/berfenger/sib2mqtt/internal/core/port"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type FlowInfo struct {
	FlowId  string `json:"flow_id"`
	Handler string `json:"handler"`
	EntryId string `json:"entry_id,omitempty"`
	StepId  string `json:"step_id,omitempty"`
}

type flowProgress struct {
	mu      sync.Mutex
	info    FlowInfo
	flow    port.Flow
	created uint64
	touched time.Time
}

// FlowManager keeps the flows in progress. A flow that finishes, or is
// aborted, is forgotten. A flow left idle for longer than the idle timeout is
// discarded the next time a flow starts.
//
// An options flow reserves its entry from the moment it reads the entry until
// its commit has been applied, so no other options flow can start from a
// sensor list that is about to change.
type FlowManager struct {
	mu       sync.Mutex
	flows    map[string]*flowProgress
	reserved map[string]string
	counter  uint64

	idleTimeout time.Duration
	now         func() time.Time

	entries     *ConfigEntries
	integration port.Integration
	logger      *zap.Logger
}

// NewFlowManager creates a flow manager. A zero idleTimeout keeps idle flows
// until they are aborted.
func NewFlowManager(entries *ConfigEntries, integration port.Integration, idleTimeout time.Duration, logger *zap.Logger) *FlowManager {
	m := &FlowManager{
		flows:       make(map[string]*flowProgress),
		reserved:    make(map[string]string),
		idleTimeout: idleTimeout,
		now:         time.Now,
		entries:     entries,
		integration: integration,
		logger:      logger.With(zap.String("component", "flow_manager")),
	}
	entries.AddRemoveListener(m.abortEntryFlows)
	return m
}

func (m *FlowManager) StartConfigFlow(ctx context.Context) (domain.FlowResult, error) {
	m.mu.Lock()
	m.expireIdle()
	m.mu.Unlock()
	return m.start(ctx, uuid.NewString(), m.integration.NewConfigFlow(m.entries), "")
}

// StartOptionsFlow starts the options flow of an entry. Only one options flow
// per entry may be in progress, and none may start while a finished one is
// still committing.
func (m *FlowManager) StartOptionsFlow(ctx context.Context, entryId string) (domain.FlowResult, error) {
	flowId := uuid.NewString()

	m.mu.Lock()
	m.expireIdle()
	if _, busy := m.reserved[entryId]; busy {
		m.mu.Unlock()
		return domain.FlowResult{}, fmt.Errorf("%s: %w", entryId, domain.ErrFlowInProgress)
	}
	m.reserved[entryId] = flowId
	m.mu.Unlock()

	entry, ok := m.entries.Get(entryId)
	if !ok {
		m.release(entryId, flowId)
		return domain.FlowResult{}, fmt.Errorf("%s: %w", entryId, domain.ErrEntryNotFound)
	}
	res, err := m.start(ctx, flowId, m.integration.NewOptionsFlow(entry), entryId)
	if err != nil {
		m.release(entryId, flowId)
	}
	return res, err
}

func (m *FlowManager) start(ctx context.Context, flowId string, flow port.Flow, entryId string) (domain.FlowResult, error) {
	res, err := flow.Init(ctx)
	if err != nil {
		return domain.FlowResult{}, err
	}

	progress := &flowProgress{
		info: FlowInfo{
			FlowId:  flowId,
			Handler: flow.Handler(),
			EntryId: entryId,
			StepId:  res.StepId,
		},
		flow: flow,
	}
	res.FlowId = flowId

	m.mu.Lock()
	if entryId != "" && m.reserved[entryId] != flowId {
		// entry removed while the flow was starting
		m.mu.Unlock()
		return domain.FlowResult{}, fmt.Errorf("%s: %w", entryId, domain.ErrEntryNotFound)
	}
	m.counter++
	progress.created = m.counter
	progress.touched = m.now()
	m.flows[flowId] = progress
	m.mu.Unlock()

	m.logger.Debug("flow started", zap.String("flow_id", flowId), zap.String("handler", progress.info.Handler))
	return res, nil
}

// Configure submits the current step of a flow. When the flow finishes with
// create_entry, the entry is created (config flow) or updated (options flow).
func (m *FlowManager) Configure(ctx context.Context, flowId string, input map[string]any) (domain.FlowResult, error) {
	m.mu.Lock()
	progress, ok := m.flows[flowId]
	if ok {
		progress.touched = m.now()
	}
	m.mu.Unlock()
	if !ok {
		return domain.FlowResult{}, fmt.Errorf("%s: %w", flowId, domain.ErrFlowNotFound)
	}

	progress.mu.Lock()
	defer progress.mu.Unlock()

	res, err := progress.flow.Step(ctx, input)
	if err != nil {
		return domain.FlowResult{}, err
	}
	res.FlowId = flowId
	progress.info.StepId = res.StepId

	if !res.IsDone() {
		return res, nil
	}

	// an options flow keeps its entry reserved until the commit is applied
	commit := res.Type == domain.FLOW_RESULT_CREATE_ENTRY && progress.info.Handler == domain.FLOW_HANDLER_OPTIONS
	if !m.finish(flowId, !commit) {
		// aborted while this step ran
		return domain.FlowResult{}, fmt.Errorf("%s: %w", flowId, domain.ErrFlowNotFound)
	}
	m.logger.Debug("flow finished", zap.String("flow_id", flowId), zap.String("type", string(res.Type)))

	if res.Type != domain.FLOW_RESULT_CREATE_ENTRY {
		return res, nil
	}
	switch progress.info.Handler {
	case domain.FLOW_HANDLER_OPTIONS:
		defer m.release(progress.info.EntryId, flowId)
		if res.Options == nil {
			return domain.FlowResult{}, errors.New("options flow finished without options")
		}
		if _, err := m.entries.UpdateEntry(ctx, progress.info.EntryId, *res.Options); err != nil {
			return domain.FlowResult{}, err
		}
	default:
		if res.Entry == nil {
			return domain.FlowResult{}, errors.New("config flow finished without an entry")
		}
		entry, err := m.entries.CreateEntry(ctx, *res.Entry)
		if errors.Is(err, domain.ErrDuplicateInterface) {
			return domain.FlowResult{
				FlowId:  flowId,
				Handler: res.Handler,
				Type:    domain.FLOW_RESULT_ABORT,
				Reason:  domain.ABORT_ALREADY_CONFIGURED,
			}, nil
		}
		if err != nil {
			return domain.FlowResult{}, err
		}
		res.Entry = &entry
	}
	return res, nil
}

func (m *FlowManager) Abort(flowId string) error {
	if !m.finish(flowId, true) {
		return fmt.Errorf("%s: %w", flowId, domain.ErrFlowNotFound)
	}
	m.logger.Debug("flow aborted", zap.String("flow_id", flowId))
	return nil
}

// Progress lists the flows in progress, oldest first.
func (m *FlowManager) Progress() []FlowInfo {
	m.mu.Lock()
	progress := make([]*flowProgress, 0, len(m.flows))
	for _, p := range m.flows {
		progress = append(progress, p)
	}
	m.mu.Unlock()

	sort.Slice(progress, func(i, j int) bool {
		return progress[i].created < progress[j].created
	})
	out := make([]FlowInfo, 0, len(progress))
	for _, p := range progress {
		p.mu.Lock()
		out = append(out, p.info)
		p.mu.Unlock()
	}
	return out
}

// finish drops a flow from the flows in progress. With release set, the entry
// reserved by the flow is released too.
func (m *FlowManager) finish(flowId string, release bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	progress, ok := m.flows[flowId]
	if !ok {
		return false
	}
	delete(m.flows, flowId)
	if release {
		m.releaseLocked(progress.info.EntryId, flowId)
	}
	return true
}

func (m *FlowManager) release(entryId, flowId string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked(entryId, flowId)
}

func (m *FlowManager) releaseLocked(entryId, flowId string) {
	if entryId != "" && m.reserved[entryId] == flowId {
		delete(m.reserved, entryId)
	}
}

// expireIdle discards the flows not stepped for longer than the idle timeout.
// m.mu must be held.
func (m *FlowManager) expireIdle() {
	if m.idleTimeout <= 0 {
		return
	}
	deadline := m.now().Add(-m.idleTimeout)
	for flowId, p := range m.flows {
		if p.touched.After(deadline) {
			continue
		}
		delete(m.flows, flowId)
		m.releaseLocked(p.info.EntryId, flowId)
		m.logger.Info("idle flow discarded", zap.String("flow_id", flowId), zap.String("handler", p.info.Handler))
	}
}

// abortEntryFlows discards the flows of a removed entry.
func (m *FlowManager) abortEntryFlows(entryId string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for flowId, p := range m.flows {
		if p.info.EntryId == entryId {
			delete(m.flows, flowId)
			m.logger.Debug("flow aborted, entry removed", zap.String("flow_id", flowId))
		}
	}
	delete(m.reserved, entryId)
}
